package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method        string
	path          string
	query         string
	body          string
	contentType   string
	authorization string
	principal     string

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.authorization = r.Header.Get("Authorization")
	h.principal = r.Header.Get("X-Datatable-Principal")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

// requestBody decodes the captured JSON body.
func (h *testHandler) requestBody(t *testing.T) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal([]byte(h.body), &body); err != nil {
		t.Fatalf("unmarshaling request body %q: %v", h.body, err)
	}
	return body
}

// newTestClient creates an HTTPClient pointed at a test server with the given handler.
func newTestClient(h http.Handler) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	c := NewHTTPClient(srv.URL, "", "alice")
	return c, srv
}

// --- GetListing ---

func TestHTTPClient_GetListing(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "success", "msg": "", "data": {
			"filters": {"idnumber": {"type": "text", "label": "ID Number"}},
			"initialfilters": {},
			"fields": {"visible": ["idnumber", "startdate"], "hidden": ["enddate"]},
			"labels": {"idnumber": "ID Number"},
			"children": [{"id": 101, "header": "ANA-1", "fields": {"idnumber": "ANA-1"}}],
			"page": 2,
			"perpage": 20,
			"totalresults": 21
		}}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	resp, err := c.GetListing(context.Background(), &ListingRequest{
		Kind:    "course_classes",
		Params:  map[string]string{"courseid": "11"},
		Filters: map[string][]any{"idnumber": {"ANA"}},
		Page:    2,
		Sort:    "idnumber",
	})
	if err != nil {
		t.Fatalf("GetListing() error = %v", err)
	}

	if h.method != http.MethodPost || h.path != "/v1/ajax" {
		t.Errorf("request = %s %s, want POST /v1/ajax", h.method, h.path)
	}
	if h.contentType != "application/json" {
		t.Errorf("content-type = %q, want application/json", h.contentType)
	}
	if h.principal != "alice" {
		t.Errorf("principal = %q, want alice", h.principal)
	}
	body := h.requestBody(t)
	if body["m"] != "get_listing" || body["kind"] != "course_classes" || body["courseid"] != "11" {
		t.Errorf("request body = %v", body)
	}
	if body["page"] != float64(2) || body["sort"] != "idnumber" {
		t.Errorf("request body paging = %v", body)
	}
	filters, ok := body["filters"].(map[string]any)
	if !ok || filters["idnumber"] == nil {
		t.Errorf("request body filters = %v", body["filters"])
	}

	if resp.TotalResults != 21 || resp.Page != 2 || resp.PerPage != 20 {
		t.Errorf("paging = %d/%d/%d", resp.TotalResults, resp.Page, resp.PerPage)
	}
	if len(resp.Children) != 1 || resp.Children[0].Header != "ANA-1" {
		t.Errorf("children = %+v", resp.Children)
	}
	if got := resp.Filters["idnumber"].Label; got != "ID Number" {
		t.Errorf("filter label = %q", got)
	}
	if len(resp.Fields.Visible) != 2 || resp.Fields.Hidden[0] != "enddate" {
		t.Errorf("fields = %+v", resp.Fields)
	}
}

func TestHTTPClient_GetListing_SendsEmptyFilters(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "success", "data": {"children": []}}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	if _, err := c.GetListing(context.Background(), &ListingRequest{Kind: "programs"}); err != nil {
		t.Fatalf("GetListing() error = %v", err)
	}
	body := h.requestBody(t)
	if f, ok := body["filters"].(map[string]any); !ok || len(f) != 0 {
		t.Errorf("filters = %v, want {}", body["filters"])
	}
	if _, ok := body["page"]; ok {
		t.Errorf("page should be omitted, body = %v", body)
	}
}

// --- FilterOptions ---

func TestHTTPClient_FilterOptions(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "success", "data": [{"value": "11", "label": "Anatomy"}, {"value": "12", "label": "Pharmacology"}]}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	opts, err := c.FilterOptions(context.Background(), &FilterOptionsRequest{
		Kind:   "users",
		Filter: "course",
		Parent: "1",
	})
	if err != nil {
		t.Fatalf("FilterOptions() error = %v", err)
	}
	body := h.requestBody(t)
	if body["m"] != "get_filter_options" || body["filter"] != "course" || body["parent"] != "1" {
		t.Errorf("request body = %v", body)
	}
	if len(opts) != 2 || opts[0].Value != "11" || opts[1].Label != "Pharmacology" {
		t.Errorf("opts = %+v", opts)
	}
}

// --- Export ---

func TestHTTPClient_Export(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = w.Write([]byte("PK\x03\x04workbook"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok", "alice")
	var buf bytes.Buffer
	err := c.Export(context.Background(), &ListingRequest{
		Kind:    "course_classes",
		Params:  map[string]string{"courseid": "11"},
		Filters: map[string][]any{"idnumber": {"ANA"}},
		Page:    3,
	}, &buf)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if gotPath != "/v1/listings/course_classes/export" {
		t.Errorf("path = %q", gotPath)
	}
	q, _ := url.ParseQuery(gotQuery)
	if q.Get("courseid") != "11" || q.Get("page") != "3" || q.Get("filters") != `{"idnumber":["ANA"]}` {
		t.Errorf("query = %q", gotQuery)
	}
	if buf.String() != "PK\x03\x04workbook" {
		t.Errorf("body = %q", buf.String())
	}
}

func TestHTTPClient_Export_Error(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusForbidden,
		responseBody: `{"status": "fail", "msg": "forbidden: alice lacks datatable:export", "data": []}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	var buf bytes.Buffer
	err := c.Export(context.Background(), &ListingRequest{Kind: "programs"}, &buf)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 *APIError, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("nothing should be written on error, got %d bytes", buf.Len())
	}
}

// --- Saved searches ---

func TestHTTPClient_SearchSaved(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "success", "data": [
			{"id": "ss-aaaaaaaaaaaa", "name": "Mine", "shared": false, "isdefault": true, "canedit": true, "filters": {"idnumber": ["ANA"]}}
		]}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	sums, err := c.SearchSaved(context.Background(), &SearchSavedRequest{
		Kind:   "course_classes",
		Params: map[string]string{"courseid": "11"},
		Query:  "mi",
		Limit:  5,
	})
	if err != nil {
		t.Fatalf("SearchSaved() error = %v", err)
	}
	if h.path != "/v1/savedsearch" {
		t.Errorf("path = %q", h.path)
	}
	body := h.requestBody(t)
	if body["action"] != "search" || body["query"] != "mi" || body["limit"] != float64(5) || body["courseid"] != "11" {
		t.Errorf("request body = %v", body)
	}
	if len(sums) != 1 || !sums[0].IsDefault || !sums[0].CanEdit || sums[0].Name != "Mine" {
		t.Errorf("sums = %+v", sums)
	}
}

func TestHTTPClient_SaveSearch(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "success", "data": {"id": "ss-bbbbbbbbbbbb", "created": true, "copiedfrom": "ss-aaaaaaaaaaaa"}}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	resp, err := c.SaveSearch(context.Background(), &SaveSearchRequest{
		ID:        "ss-aaaaaaaaaaaa",
		Kind:      "programs",
		Name:      "Nursing",
		Shared:    true,
		IsDefault: false,
		Filters:   map[string][]any{"name": {"Nur"}},
	})
	if err != nil {
		t.Fatalf("SaveSearch() error = %v", err)
	}
	body := h.requestBody(t)
	if body["action"] != "save" || body["id"] != "ss-aaaaaaaaaaaa" || body["name"] != "Nursing" {
		t.Errorf("request body = %v", body)
	}
	if body["shared"] != true || body["isdefault"] != false {
		t.Errorf("flags = %v/%v", body["shared"], body["isdefault"])
	}
	if resp.ID != "ss-bbbbbbbbbbbb" || !resp.Created || resp.CopiedFrom != "ss-aaaaaaaaaaaa" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHTTPClient_DeleteSearch(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "success", "msg": "", "data": []}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	if err := c.DeleteSearch(context.Background(), "ss-aaaaaaaaaaaa"); err != nil {
		t.Fatalf("DeleteSearch() error = %v", err)
	}
	body := h.requestBody(t)
	if body["action"] != "delete" || body["id"] != "ss-aaaaaaaaaaaa" {
		t.Errorf("request body = %v", body)
	}
}

// --- Config ---

func TestHTTPClient_SetConfig(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "success", "data": {
			"key": "visibility:course_classes",
			"value": {"idnumber": {"mode": "locked", "value": ["ANA"]}},
			"created_at": "2026-01-15T10:00:00Z",
			"updated_at": "2026-01-15T10:00:00Z"
		}}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	val := json.RawMessage(`{"idnumber": {"mode": "locked", "value": ["ANA"]}}`)
	cfg, err := c.SetConfig(context.Background(), "visibility:course_classes", val)
	if err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}

	if h.method != http.MethodPut {
		t.Errorf("method = %q, want PUT", h.method)
	}
	if h.path != "/v1/configs/visibility:course_classes" {
		t.Errorf("path = %q", h.path)
	}

	var reqBody map[string]json.RawMessage
	if err := json.Unmarshal([]byte(h.body), &reqBody); err != nil {
		t.Fatalf("unmarshaling request body: %v", err)
	}
	// Compare structurally since json.Marshal may compact whitespace
	var gotVal, wantVal any
	_ = json.Unmarshal(reqBody["value"], &gotVal)
	_ = json.Unmarshal(val, &wantVal)
	gotJSON, _ := json.Marshal(gotVal)
	wantJSON, _ := json.Marshal(wantVal)
	if string(gotJSON) != string(wantJSON) {
		t.Errorf("request body value = %s, want %s", gotJSON, wantJSON)
	}

	if cfg.Key != "visibility:course_classes" {
		t.Errorf("cfg.Key = %q", cfg.Key)
	}
	if cfg.CreatedAt.IsZero() {
		t.Error("cfg.CreatedAt is zero")
	}
}

func TestHTTPClient_GetConfig(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "success", "data": {"key": "listing:programs", "value": {"perpage": 50}}}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	cfg, err := c.GetConfig(context.Background(), "listing:programs")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if h.method != http.MethodGet || h.path != "/v1/configs/listing:programs" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if cfg.Key != "listing:programs" || string(cfg.Value) != `{"perpage": 50}` {
		t.Errorf("cfg = %s %s", cfg.Key, cfg.Value)
	}
}

func TestHTTPClient_ListConfigs(t *testing.T) {
	h := &testHandler{
		responseBody: `{"status": "success", "data": [
			{"key": "visibility:programs", "value": {}},
			{"key": "visibility:users", "value": {}}
		]}`,
	}
	c, srv := newTestClient(h)
	defer srv.Close()

	configs, err := c.ListConfigs(context.Background(), "visibility")
	if err != nil {
		t.Fatalf("ListConfigs() error = %v", err)
	}
	if h.path != "/v1/configs" || !strings.Contains(h.query, "namespace=visibility") {
		t.Errorf("request = %s?%s", h.path, h.query)
	}
	if len(configs) != 2 || configs[0].Key != "visibility:programs" {
		t.Errorf("configs = %+v", configs)
	}
}

func TestHTTPClient_DeleteConfig(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "success", "data": []}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	if err := c.DeleteConfig(context.Background(), "listing:programs"); err != nil {
		t.Fatalf("DeleteConfig() error = %v", err)
	}
	if h.method != http.MethodDelete || h.path != "/v1/configs/listing:programs" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
}

// --- Health ---

func TestHTTPClient_Health(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "success", "data": {"status": "ok"}}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.method != http.MethodGet || h.path != "/v1/health" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if status != "ok" {
		t.Errorf("status = %q, want 'ok'", status)
	}
}

// --- Auth headers ---

func TestHTTPClient_AuthHeaders(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "success", "data": {"status": "ok"}}`}
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret", "")
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.authorization != "Bearer secret" {
		t.Errorf("authorization = %q", h.authorization)
	}
	if h.principal != "" {
		t.Errorf("principal = %q, want none", h.principal)
	}
}

// --- Error handling ---

func TestHTTPClient_Errors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"Envelope", http.StatusBadRequest, `{"status": "fail", "msg": "courseid is required", "data": []}`, "courseid is required"},
		{"NotFound", http.StatusNotFound, `{"status": "fail", "msg": "config not found", "data": []}`, "config not found"},
		{"NonJSON", http.StatusBadGateway, "bad gateway\n", "bad gateway"},
		{"EmptyMsg", http.StatusUnprocessableEntity, `{"status": "fail", "msg": ""}`, `{"status": "fail", "msg": ""}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{statusCode: tc.status, responseBody: tc.body}
			c, srv := newTestClient(h)
			defer srv.Close()

			_, err := c.GetConfig(context.Background(), "listing:programs")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T: %v", err, err)
			}
			if apiErr.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", apiErr.StatusCode, tc.status)
			}
			if apiErr.Message != tc.message {
				t.Errorf("message = %q, want %q", apiErr.Message, tc.message)
			}
		})
	}
}

func TestHTTPClient_Error_FailEnvelopeWith200(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "fail", "msg": "nope", "data": []}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	_, err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "nope" {
		t.Fatalf("expected APIError nope, got %v", err)
	}
}

func TestHTTPClient_Error_FormatString(t *testing.T) {
	apiErr := &APIError{StatusCode: 403, Message: "forbidden"}
	want := "HTTP 403: forbidden"
	if apiErr.Error() != want {
		t.Errorf("Error() = %q, want %q", apiErr.Error(), want)
	}
}

func TestHTTPClient_Error_CanceledContext(t *testing.T) {
	h := &testHandler{responseBody: `{"status": "success", "data": {"status": "ok"}}`}
	c, srv := newTestClient(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := c.Health(ctx)
	if err == nil {
		t.Fatal("expected error for canceled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// --- Close ---

func TestHTTPClient_Close(t *testing.T) {
	c := NewHTTPClient("http://localhost:9999", "", "")
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestNewHTTPClient_TrimsTrailingSlash(t *testing.T) {
	c := NewHTTPClient("http://localhost:8080/", "", "")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want 'http://localhost:8080'", c.baseURL)
	}
}

// --- Interface compliance ---

func TestHTTPClient_ImplementsClient(t *testing.T) {
	var _ Client = (*HTTPClient)(nil)
}

// --- Concurrent requests ---

func TestHTTPClient_ConcurrentRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "success", "data": {"status": "ok"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", "")

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := c.Health(context.Background())
			errs <- err
		}()
	}

	for i := 0; i < 10; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent Health() error = %v", err)
		}
	}
	if calls.Load() != 10 {
		t.Errorf("calls = %d, want 10", calls.Load())
	}
}

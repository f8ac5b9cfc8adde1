package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/auth"
	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/model"
)

// HTTPClient implements Client using the datatable HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	principal  string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request; when principal is non-empty, it is sent
// as the principal header.
func NewHTTPClient(baseURL, token, principal string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		principal:  principal,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Listings ---

func (c *HTTPClient) GetListing(ctx context.Context, req *ListingRequest) (*datatable.Response, error) {
	body := withParams(req.Params)
	body["m"] = "get_listing"
	body["kind"] = req.Kind
	body["filters"] = filtersOrEmpty(req.Filters)
	if req.Page > 0 {
		body["page"] = req.Page
	}
	if req.Sort != "" {
		body["sort"] = req.Sort
	}
	var resp datatable.Response
	if err := c.doJSON(ctx, http.MethodPost, "/v1/ajax", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) FilterOptions(ctx context.Context, req *FilterOptionsRequest) ([]model.Choice, error) {
	body := withParams(req.Params)
	body["m"] = "get_filter_options"
	body["kind"] = req.Kind
	body["filter"] = req.Filter
	body["parent"] = req.Parent
	var opts []model.Choice
	if err := c.doJSON(ctx, http.MethodPost, "/v1/ajax", body, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// Export streams the XLSX rendering of the requested page to w.
func (c *HTTPClient) Export(ctx context.Context, req *ListingRequest, w io.Writer) error {
	q := url.Values{}
	for k, v := range req.Params {
		q.Set(k, v)
	}
	if len(req.Filters) > 0 {
		data, err := json.Marshal(req.Filters)
		if err != nil {
			return fmt.Errorf("marshaling filters: %w", err)
		}
		q.Set("filters", string(data))
	}
	if req.Page > 0 {
		q.Set("page", strconv.Itoa(req.Page))
	}
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	path := "/v1/listings/" + url.PathEscape(req.Kind) + "/export"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading export: %w", err)
	}
	return nil
}

// --- Saved searches ---

func (c *HTTPClient) SearchSaved(ctx context.Context, req *SearchSavedRequest) ([]model.SavedSearchSummary, error) {
	body := withParams(req.Params)
	body["action"] = "search"
	body["kind"] = req.Kind
	if req.Query != "" {
		body["query"] = req.Query
	}
	if req.Limit > 0 {
		body["limit"] = req.Limit
	}
	var sums []model.SavedSearchSummary
	if err := c.doJSON(ctx, http.MethodPost, "/v1/savedsearch", body, &sums); err != nil {
		return nil, err
	}
	return sums, nil
}

func (c *HTTPClient) SaveSearch(ctx context.Context, req *SaveSearchRequest) (*SaveSearchResponse, error) {
	body := withParams(req.Params)
	body["action"] = "save"
	body["kind"] = req.Kind
	body["name"] = req.Name
	body["shared"] = req.Shared
	body["isdefault"] = req.IsDefault
	body["filters"] = filtersOrEmpty(req.Filters)
	if req.ID != "" {
		body["id"] = req.ID
	}
	var resp SaveSearchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/savedsearch", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) DeleteSearch(ctx context.Context, id string) error {
	body := map[string]any{"action": "delete", "id": id}
	return c.doJSON(ctx, http.MethodPost, "/v1/savedsearch", body, nil)
}

// --- Config ---

func (c *HTTPClient) SetConfig(ctx context.Context, key string, value json.RawMessage) (*model.Config, error) {
	body := map[string]json.RawMessage{"value": value}
	var config model.Config
	if err := c.doJSON(ctx, http.MethodPut, "/v1/configs/"+url.PathEscape(key), body, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *HTTPClient) GetConfig(ctx context.Context, key string) (*model.Config, error) {
	var config model.Config
	if err := c.doJSON(ctx, http.MethodGet, "/v1/configs/"+url.PathEscape(key), nil, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *HTTPClient) ListConfigs(ctx context.Context, namespace string) ([]*model.Config, error) {
	path := "/v1/configs?namespace=" + url.QueryEscape(namespace)
	var configs []*model.Config
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &configs); err != nil {
		return nil, err
	}
	return configs, nil
}

func (c *HTTPClient) DeleteConfig(ctx context.Context, key string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/configs/"+url.PathEscape(key), nil, nil)
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// envelope is the shape of every JSON response.
type envelope struct {
	Status string          `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

func withParams(params map[string]string) map[string]any {
	body := make(map[string]any, len(params)+4)
	for k, v := range params {
		body[k] = v
	}
	return body
}

func filtersOrEmpty(f map[string][]any) map[string][]any {
	if f == nil {
		return map[string][]any{}
	}
	return f
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.principal != "" {
		req.Header.Set(auth.PrincipalHeader, c.principal)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	return resp, nil
}

// readAPIError builds an APIError from a failure response, preferring the
// envelope message over the raw body.
func readAPIError(resp *http.Response) error {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	var env envelope
	if json.Unmarshal(respBody, &env) == nil && env.Msg != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Msg}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
}

// doJSON performs an HTTP request with optional JSON body and decodes the
// data of the response envelope into result. If result is nil, the data is
// discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if env.Status != "success" {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Msg}
	}

	if result != nil {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/datatable/internal/auth"
	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/filter"
	"github.com/alfredjeanlab/datatable/internal/listing"
	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/savedsearch"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// Requests other than health and metrics must authenticate when the
// authenticator is enabled.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.instrument(pattern, h))
	}
	route("POST /v1/ajax", s.handleAjax)
	route("POST /v1/savedsearch", s.handleSavedSearch)
	route("GET /v1/listings/{kind}/export", s.handleExport)
	route("PUT /v1/configs/{key...}", s.handleSetConfig)
	route("GET /v1/configs/{key...}", s.handleGetConfig)
	route("GET /v1/configs", s.handleListConfigs)
	route("DELETE /v1/configs/{key...}", s.handleDeleteConfig)
	route("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	var h http.Handler = mux
	h = AuthMiddleware(s.authn, h)
	h = RecoveryMiddleware(s.logger, h)
	h = LoggingMiddleware(s.logger, h)
	h = RequestIDMiddleware(h)
	return h
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, map[string]string{"status": "ok"})
}

// envelope is the shape of every JSON response.
type envelope struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
	Data   any    `json:"data"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

// writeError writes the failure envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: "fail", Msg: message, Data: []any{}})
}

// inputError indicates invalid user input.
type inputError string

func (e inputError) Error() string { return string(e) }

// statusFor maps an error to its HTTP status and client message. Storage
// and other unexpected failures are reported without detail.
func statusFor(err error) (int, string) {
	var ve *model.ValidationError
	var ie inputError
	switch {
	case errors.As(err, &ve), errors.As(err, &ie),
		errors.Is(err, listing.ErrInvalidParam), errors.Is(err, filter.ErrInvalidValue),
		errors.Is(err, datatable.ErrPageOutOfRange):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, savedsearch.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, datatable.ErrUnknownListing), errors.Is(err, savedsearch.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "not found"
	}
	return http.StatusInternalServerError, "internal error"
}

// fail writes err through the failure envelope, logging server-side errors.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeError(w, status, msg)
}

// params is a flat view of request parameters. Form bodies map directly; in
// a JSON object body strings are taken as is and any other value as its
// JSON text, so "filters" may be sent as an object or as a string.
type params map[string]string

func readParams(r *http.Request) (params, error) {
	out := params{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	if r.Body == nil || r.Method == http.MethodGet {
		return out, nil
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if ct == "application/json" {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, inputError("request body too large")
		}
		if strings.TrimSpace(string(data)) == "" {
			return out, nil
		}
		var m map[string]json.RawMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, inputError("invalid JSON body")
		}
		for k, raw := range m {
			var str string
			if err := json.Unmarshal(raw, &str); err == nil {
				out[k] = str
				continue
			}
			if string(raw) == "null" {
				continue
			}
			out[k] = string(raw)
		}
		return out, nil
	}

	r.Body = body
	if err := r.ParseForm(); err != nil {
		return nil, inputError(fmt.Sprintf("invalid form body: %v", err))
	}
	for k, v := range r.PostForm {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}

// listingParams returns every parameter not consumed by the dispatcher.
func (p params) listingParams() listing.Params {
	out := listing.Params{}
	for k, v := range p {
		switch k {
		case "m", "kind", "filters", "page", "sort", "action", "id", "name", "query",
			"shared", "isdefault", "filter", "parent", "limit":
			continue
		}
		out[k] = v
	}
	return out
}

func (p params) bool(name string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(p[name])) {
	case "", "0", "false", "no":
		return false, nil
	case "1", "true", "yes":
		return true, nil
	}
	return false, inputError(fmt.Sprintf("%s must be a boolean", name))
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/auth"
	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/listing"
	"github.com/alfredjeanlab/datatable/internal/model"
)

// Dispatcher methods besides get_<kind>.
const (
	methodListing       = "get_listing"
	methodFilterOptions = "get_filter_options"
)

// handleAjax handles POST /v1/ajax. The "m" parameter names the method:
// get_<kind> for each registered listing, get_listing with a "kind"
// parameter, or get_filter_options.
func (s *Server) handleAjax(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	method := strings.TrimSpace(p["m"])
	switch {
	case method == "":
		s.fail(w, r, inputError("m is required"))
	case method == methodFilterOptions:
		s.filterOptions(w, r, p)
	case method == methodListing:
		s.serveListing(w, r, p["kind"], p)
	case strings.HasPrefix(method, "get_") && listing.Known(strings.TrimPrefix(method, "get_")):
		s.serveListing(w, r, strings.TrimPrefix(method, "get_"), p)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown method %q", method))
	}
}

func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, kind string, p params) {
	label := kind
	if !listing.Known(kind) {
		label = "unknown"
	}
	resp, err := s.runListing(r.Context(), kind, p)
	if err != nil {
		s.metrics.listingRequests.WithLabelValues(label, "error").Inc()
		s.fail(w, r, err)
		return
	}
	s.metrics.listingRequests.WithLabelValues(label, "ok").Inc()
	if len(resp.Dropped) > 0 {
		s.metrics.droppedFilters.WithLabelValues(label).Add(float64(len(resp.Dropped)))
	}
	writeSuccess(w, resp)
}

// runListing prepares the listing, seeds initialfilters from the principal's
// default saved search and runs the request.
func (s *Server) runListing(ctx context.Context, kind string, p params) (*datatable.Response, error) {
	if !listing.Known(kind) {
		return nil, fmt.Errorf("%w: %q", datatable.ErrUnknownListing, kind)
	}
	req, err := listingRequest(p)
	if err != nil {
		return nil, err
	}
	tbl, err := s.table(ctx, kind, p.listingParams())
	if err != nil {
		return nil, err
	}

	principal, _ := auth.FromContext(ctx)
	def, err := s.searches.Default(ctx, principal.ID, kind, tbl.ContextID())
	if err != nil {
		return nil, err
	}
	if def != nil {
		req.Initial = def.Filters
	}
	return s.engine.Run(ctx, tbl, req)
}

// listingRequest parses the filters, page and sort parameters. A missing or
// non-positive page is the first page.
func listingRequest(p params) (datatable.Request, error) {
	var req datatable.Request
	raw, err := model.ParseRawFilterSet(p["filters"])
	if err != nil {
		return req, inputError(err.Error())
	}
	req.Filters = raw

	if v := strings.TrimSpace(p["page"]); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return req, inputError("page must be an integer")
		}
		req.Page = page
	}
	if req.Page < 1 {
		req.Page = 1
	}
	req.Sort = strings.TrimSpace(p["sort"])
	return req, nil
}

// filterOptions returns the child options of a dependent-select filter for
// the "parent" value.
func (s *Server) filterOptions(w http.ResponseWriter, r *http.Request, p params) {
	kind := p["kind"]
	if !listing.Known(kind) {
		s.fail(w, r, fmt.Errorf("%w: %q", datatable.ErrUnknownListing, kind))
		return
	}
	name := strings.TrimSpace(p["filter"])
	if name == "" {
		s.fail(w, r, inputError("filter is required"))
		return
	}
	tbl, err := s.table(r.Context(), kind, p.listingParams())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opts, err := tbl.ChildOptions(name, p["parent"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, opts)
}

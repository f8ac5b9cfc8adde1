package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/auth"
	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/listing"
	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/savedsearch"
)

// saveResponse is the data of a successful save.
type saveResponse struct {
	ID         string `json:"id"`
	Created    bool   `json:"created"`
	CopiedFrom string `json:"copiedfrom,omitempty"`
}

// handleSavedSearch handles POST /v1/savedsearch. The "action" parameter is
// one of search, save or delete. Search and save are scoped to the listing
// context named by "kind" and its listing parameters.
func (s *Server) handleSavedSearch(w http.ResponseWriter, r *http.Request) {
	p, err := readParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	principal, _ := auth.FromContext(r.Context())

	action := strings.TrimSpace(p["action"])
	s.metrics.savedSearchActions.WithLabelValues(actionLabel(action)).Inc()

	switch action {
	case "search":
		s.searchSaved(w, r, principal, p)
	case "save":
		s.saveSearch(w, r, principal, p)
	case "delete":
		if err := s.searches.Delete(r.Context(), principal.ID, p["id"]); err != nil {
			s.fail(w, r, err)
			return
		}
		writeSuccess(w, []any{})
	case "":
		s.fail(w, r, inputError("action is required"))
	default:
		s.fail(w, r, inputError(fmt.Sprintf("unknown action %q", action)))
	}
}

func actionLabel(action string) string {
	switch action {
	case "search", "save", "delete":
		return action
	}
	return "invalid"
}

func (s *Server) searchSaved(w http.ResponseWriter, r *http.Request, principal auth.Principal, p params) {
	tbl, err := s.savedSearchTable(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := model.SavedSearchQuery{
		Listing:   tbl.Kind(),
		ContextID: tbl.ContextID(),
		Text:      p["query"],
	}
	if v := strings.TrimSpace(p["limit"]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, inputError("limit must be a non-negative integer"))
			return
		}
		q.Limit = n
	}
	sums, err := s.searches.Search(r.Context(), principal.ID, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sums == nil {
		sums = []model.SavedSearchSummary{}
	}
	writeSuccess(w, sums)
}

// saveSearch stores the filter set after validating it against the
// listing. Unlike a listing request, a value that fails validation rejects
// the save so a stored search never silently loses a filter.
func (s *Server) saveSearch(w http.ResponseWriter, r *http.Request, principal auth.Principal, p params) {
	tbl, err := s.savedSearchTable(r, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	raw, err := model.ParseRawFilterSet(p["filters"])
	if err != nil {
		s.fail(w, r, inputError(err.Error()))
		return
	}
	v := tbl.Filters().Validate(raw)
	if len(v.Rejected) > 0 {
		ve := &model.ValidationError{}
		for _, rej := range v.Rejected {
			ve.Errors = append(ve.Errors, model.FieldError{Field: "filters." + rej.Filter, Message: rej.Err.Error()})
		}
		s.fail(w, r, ve)
		return
	}
	shared, err := p.bool("shared")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	isDefault, err := p.bool("isdefault")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.searches.Save(r.Context(), principal.ID, savedsearch.SaveRequest{
		ID:        strings.TrimSpace(p["id"]),
		Listing:   tbl.Kind(),
		ContextID: tbl.ContextID(),
		Name:      p["name"],
		Shared:    shared,
		IsDefault: isDefault,
		Filters:   v.Values,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, saveResponse{ID: res.Search.ID, Created: res.Created, CopiedFrom: res.CopiedFrom})
}

func (s *Server) savedSearchTable(r *http.Request, p params) (*datatable.Table, error) {
	kind := p["kind"]
	if !listing.Known(kind) {
		return nil, fmt.Errorf("%w: %q", datatable.ErrUnknownListing, kind)
	}
	return s.table(r.Context(), kind, p.listingParams())
}

package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/datatable/internal/auth"
	"github.com/alfredjeanlab/datatable/internal/export"
	"github.com/alfredjeanlab/datatable/internal/listing"
)

// ExportCapability is required in addition to the listing's own capability.
const ExportCapability = "datatable:export"

// handleExport handles GET /v1/listings/{kind}/export. The query string
// carries the same parameters as a listing request; the requested page is
// rendered with its visible columns.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	p, err := readParams(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	principal, _ := auth.FromContext(r.Context())
	if err := s.checker.Require(r.Context(), principal, ExportCapability, listing.LevelSystem, 0); err != nil {
		s.fail(w, r, err)
		return
	}

	resp, err := s.runListing(r.Context(), kind, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	cols := make([]export.Column, 0, len(resp.Fields.Visible))
	for _, name := range resp.Fields.Visible {
		cols = append(cols, export.Column{Name: name, Label: resp.Labels[name]})
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, kind, "Name", cols, resp.Children); err != nil {
		s.fail(w, r, fmt.Errorf("export %s: %w", kind, err))
		return
	}
	s.metrics.exports.WithLabelValues(kind).Inc()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", kind+".xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

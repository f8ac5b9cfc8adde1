// Package visibility decides which output columns of a listing are shown and
// which locked or defaulted filter values apply to a request.
package visibility

import (
	"sort"

	"github.com/alfredjeanlab/datatable/internal/model"
)

// Column is an output column known to the resolver.
type Column struct {
	Name  string
	Fixed bool
}

// Fields is the visible/hidden partition sent to the client.
type Fields struct {
	Visible []string `json:"visible"`
	Hidden  []string `json:"hidden"`
}

// Resolver applies one visibility configuration to one listing's columns.
type Resolver struct {
	columns []Column
	config  model.VisibilityConfig
}

// New returns a resolver. A nil config behaves as an empty one.
func New(columns []Column, config model.VisibilityConfig) *Resolver {
	if config == nil {
		config = model.VisibilityConfig{}
	}
	return &Resolver{columns: columns, config: config}
}

// Resolve partitions the columns. A column is visible when it is fixed, is
// the target of an active filter, or is configured visible or defaulted.
// Every other column is hidden. Order follows the listing's columns.
func (r *Resolver) Resolve(active []string) Fields {
	on := make(map[string]bool, len(active))
	for _, a := range active {
		on[a] = true
	}
	out := Fields{Visible: []string{}, Hidden: []string{}}
	for _, c := range r.columns {
		if c.Fixed || on[c.Name] || r.shownByConfig(c.Name) {
			out.Visible = append(out.Visible, c.Name)
			continue
		}
		out.Hidden = append(out.Hidden, c.Name)
	}
	return out
}

func (r *Resolver) shownByConfig(name string) bool {
	switch r.config[name].Mode {
	case model.VisibilityVisible, model.VisibilityDefaulted:
		return true
	}
	return false
}

// Locked returns the set of locked field names.
func (r *Resolver) Locked() map[string]bool {
	out := make(map[string]bool)
	for name, fv := range r.config {
		if fv.Mode == model.VisibilityLocked {
			out[name] = true
		}
	}
	return out
}

// LockedValues returns the stored defaults of locked fields. They replace
// whatever the client sent for those fields.
func (r *Resolver) LockedValues() model.RawFilterSet {
	return r.defaults(model.VisibilityLocked)
}

// DefaultedValues returns the stored defaults that pre-populate the filter bar.
func (r *Resolver) DefaultedValues() model.RawFilterSet {
	return r.defaults(model.VisibilityDefaulted)
}

func (r *Resolver) defaults(mode model.VisibilityMode) model.RawFilterSet {
	out := model.RawFilterSet{}
	for name, fv := range r.config {
		if fv.Mode == mode && len(fv.Default) > 0 {
			out[name] = fv.Default
		}
	}
	return out
}

// Referenced returns the configured field names that force their column into
// the query: visible, defaulted and locked fields. The result is sorted.
func (r *Resolver) Referenced() []string {
	var out []string
	for name, fv := range r.config {
		if fv.Mode != model.VisibilityHidden {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ApplyLocked replaces client values of locked fields with their stored
// defaults. A locked field without a default is removed. The input is not
// modified.
func (r *Resolver) ApplyLocked(raw model.RawFilterSet) model.RawFilterSet {
	locked := r.Locked()
	out := make(model.RawFilterSet, len(raw))
	for k, v := range raw {
		if !locked[k] {
			out[k] = v
		}
	}
	for k, v := range r.LockedValues() {
		out[k] = v
	}
	return out
}

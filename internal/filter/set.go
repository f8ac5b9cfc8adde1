package filter

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// Set is the registry of filters available to one listing. It is built once
// per listing and read-only afterwards.
type Set struct {
	order  []Filter
	byName map[string]Filter
}

// NewSet returns a registry holding fs in order. Later filters with a
// duplicate name are rejected.
func NewSet(fs ...Filter) (*Set, error) {
	s := &Set{byName: make(map[string]Filter, len(fs))}
	for _, f := range fs {
		if err := s.Add(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add registers f.
func (s *Set) Add(f Filter) error {
	if f.Name() == "" {
		return fmt.Errorf("filter: empty name")
	}
	if _, dup := s.byName[f.Name()]; dup {
		return fmt.Errorf("filter: duplicate name %q", f.Name())
	}
	s.byName[f.Name()] = f
	s.order = append(s.order, f)
	return nil
}

// Get returns the filter registered under name.
func (s *Set) Get(name string) (Filter, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// All returns the filters in registration order.
func (s *Set) All() []Filter { return s.order }

// Rejection records a filter dropped during validation.
type Rejection struct {
	Filter string
	Err    error
}

// Validation is the outcome of validating a raw filter set.
type Validation struct {
	// Values holds the active filters: those with at least one valid value.
	Values model.FilterSet
	// Rejected lists filters dropped because a value failed validation.
	Rejected []Rejection
	// Unknown lists names that match no registered filter.
	Unknown []string
}

// Validate checks every raw value against its filter. A filter with any
// invalid value is dropped entirely so a bad value can never widen or
// silently alter the result set. Unknown names are ignored.
func (s *Set) Validate(raw model.RawFilterSet) Validation {
	out := Validation{Values: model.FilterSet{}}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f, ok := s.byName[name]
		if !ok {
			out.Unknown = append(out.Unknown, name)
			continue
		}
		vals, err := validateAll(f, raw[name])
		if err != nil {
			out.Rejected = append(out.Rejected, Rejection{Filter: name, Err: err})
			continue
		}
		if len(vals) > 0 {
			out.Values[name] = vals
		}
	}
	return out
}

func validateAll(f Filter, raws []json.RawMessage) ([]model.Value, error) {
	vals := make([]model.Value, 0, len(raws))
	for _, r := range raws {
		v, err := f.Validate(r)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// Rendered is the SQL produced for a set of active filters.
type Rendered struct {
	// Where holds one fragment per active filter, to be ANDed.
	Where []string
	Joins []query.Join
	// Columns lists the output columns targeted by active filters.
	Columns []string
}

// Render renders the active filters of fs in registration order, allocating
// placeholders from args. Names in fs that are not registered are skipped.
func (s *Set) Render(fs model.FilterSet, args *query.Args) (Rendered, error) {
	var out Rendered
	for _, f := range s.order {
		vals := fs[f.Name()]
		if len(vals) == 0 {
			continue
		}
		frag, err := f.Render(vals, args)
		if err != nil {
			return Rendered{}, err
		}
		if frag == "" {
			continue
		}
		out.Where = append(out.Where, frag)
		out.Joins = query.MergeJoins(out.Joins, f.Joins())
		out.Columns = append(out.Columns, f.Column())
	}
	return out, nil
}

// Describe returns the client descriptors of every filter except those named
// in exclude.
func (s *Set) Describe(exclude map[string]bool) map[string]Descriptor {
	out := make(map[string]Descriptor, len(s.order))
	for _, f := range s.order {
		if exclude[f.Name()] {
			continue
		}
		out[f.Name()] = f.Describe()
	}
	return out
}

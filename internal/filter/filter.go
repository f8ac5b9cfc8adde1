// Package filter implements the typed predicate generators a listing exposes
// to its filter bar. A filter validates raw client values and renders bound
// values into a SQL fragment. Filters never touch storage.
package filter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// Type names the comparison family of a filter as presented to the client.
type Type string

const (
	TypeText      Type = "text"
	TypeNumeric   Type = "numeric"
	TypeDate      Type = "date"
	TypeMenu      Type = "menu"
	TypeDependent Type = "dependentselect"
)

// ErrInvalidValue is wrapped by every validation failure.
var ErrInvalidValue = errors.New("invalid filter value")

// Filter is a named predicate generator.
type Filter interface {
	Name() string
	Label() string
	Type() Type
	// Advanced filters are hidden from the filter bar until explicitly added.
	Advanced() bool
	// Column is the name of the output column this filter targets.
	Column() string
	// Joins returns the auxiliary joins the rendered fragment relies on.
	Joins() []query.Join
	Validate(raw json.RawMessage) (model.Value, error)
	// Render returns a fragment matching rows that satisfy any of vals.
	Render(vals []model.Value, args *query.Args) (string, error)
	Describe() Descriptor
}

// Descriptor is the client-facing description of a filter.
type Descriptor struct {
	Type     Type                      `json:"type"`
	Label    string                    `json:"label"`
	Advanced bool                      `json:"advanced,omitempty"`
	Options  []model.Choice            `json:"options,omitempty"`
	Children map[string][]model.Choice `json:"children,omitempty"`
}

// Meta carries the attributes common to every filter type. Column names
// the listing output column the filter targets and defaults to Name.
type Meta struct {
	Name     string
	Label    string
	Advanced bool
	Column   string
	Joins    []query.Join
}

type base struct {
	m Meta
}

func (b base) Name() string { return b.m.Name }

func (b base) Label() string {
	if b.m.Label == "" {
		return b.m.Name
	}
	return b.m.Label
}

func (b base) Advanced() bool { return b.m.Advanced }

func (b base) Column() string {
	if b.m.Column == "" {
		return b.m.Name
	}
	return b.m.Column
}

func (b base) Joins() []query.Join { return b.m.Joins }

func (b base) invalid(format string, a ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidValue, b.m.Name, fmt.Sprintf(format, a...))
}

// anyOf joins per-value fragments into a single OR predicate.
func anyOf(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// decodeString accepts a JSON string, or a JSON number rendered as its
// literal text.
func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func wrongKind(name string, v model.Value, want model.ValueKind) error {
	return fmt.Errorf("filter %s: cannot render %s value, want %s", name, v.Kind, want)
}

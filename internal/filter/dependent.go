package filter

import (
	"bytes"
	"encoding/json"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// DependentSelect is a parent/child pair of dropdowns. Only the child value
// reaches SQL; the parent narrows the child options offered to the client.
type DependentSelect struct {
	base
	column   string
	parents  []model.Choice
	children map[string][]model.Choice
	parentOf map[string]map[string]struct{}
}

// NewDependentSelect returns a dependent-select filter. children maps each
// parent value to the child choices available under it. column is matched
// against the child value.
func NewDependentSelect(m Meta, column string, parents []model.Choice, children map[string][]model.Choice) *DependentSelect {
	parentOf := make(map[string]map[string]struct{})
	for parent, kids := range children {
		for _, c := range kids {
			if parentOf[c.Value] == nil {
				parentOf[c.Value] = make(map[string]struct{})
			}
			parentOf[c.Value][parent] = struct{}{}
		}
	}
	return &DependentSelect{
		base:     base{m: m},
		column:   column,
		parents:  parents,
		children: children,
		parentOf: parentOf,
	}
}

func (f *DependentSelect) Type() Type { return TypeDependent }

// ChildOptions returns the child choices available under parent.
func (f *DependentSelect) ChildOptions(parent string) []model.Choice {
	return f.children[parent]
}

// Validate accepts a bare child value or {"parent": "...", "child": "..."}.
func (f *DependentSelect) Validate(raw json.RawMessage) (model.Value, error) {
	var parent, child string
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var pc struct {
			Parent json.RawMessage `json:"parent"`
			Child  json.RawMessage `json:"child"`
		}
		if err := json.Unmarshal(trimmed, &pc); err != nil {
			return model.Value{}, f.invalid("malformed selection %s", raw)
		}
		var ok bool
		if child, ok = decodeString(pc.Child); !ok {
			return model.Value{}, f.invalid("missing child selection")
		}
		if len(pc.Parent) > 0 && string(pc.Parent) != "null" {
			if parent, ok = decodeString(pc.Parent); !ok {
				return model.Value{}, f.invalid("malformed parent selection %s", pc.Parent)
			}
		}
	} else {
		var ok bool
		if child, ok = decodeString(raw); !ok {
			return model.Value{}, f.invalid("expected a selection, got %s", raw)
		}
	}

	parents, ok := f.parentOf[child]
	if !ok {
		return model.Value{}, f.invalid("unknown choice %q", child)
	}
	if parent != "" {
		if _, ok := parents[parent]; !ok {
			return model.Value{}, f.invalid("choice %q is not available under %q", child, parent)
		}
	}
	return model.DependentValue(parent, child), nil
}

func (f *DependentSelect) Render(vals []model.Value, args *query.Args) (string, error) {
	var parts []string
	for _, v := range vals {
		if v.Kind != model.ValueDependent {
			return "", wrongKind(f.Name(), v, model.ValueDependent)
		}
		if _, ok := f.parentOf[v.Choice]; !ok {
			return "", f.invalid("unknown choice %q", v.Choice)
		}
		parts = append(parts, f.column+" = "+args.Add(v.Choice))
	}
	return anyOf(parts), nil
}

func (f *DependentSelect) Describe() Descriptor {
	return Descriptor{
		Type:     TypeDependent,
		Label:    f.Label(),
		Advanced: f.Advanced(),
		Options:  f.parents,
		Children: f.children,
	}
}

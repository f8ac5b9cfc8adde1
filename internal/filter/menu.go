package filter

import (
	"encoding/json"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// Menu matches rows whose column equals any of the bound choices. Values
// outside the choice set fail validation.
type Menu struct {
	base
	column  string
	options []model.Choice
	known   map[string]struct{}
}

// NewMenu returns an enumerated filter over column with a fixed choice set.
func NewMenu(m Meta, column string, options []model.Choice) *Menu {
	known := make(map[string]struct{}, len(options))
	for _, o := range options {
		known[o.Value] = struct{}{}
	}
	return &Menu{base: base{m: m}, column: column, options: options, known: known}
}

func (f *Menu) Type() Type { return TypeMenu }

// Options returns the choice set.
func (f *Menu) Options() []model.Choice { return f.options }

func (f *Menu) Validate(raw json.RawMessage) (model.Value, error) {
	s, ok := decodeString(raw)
	if !ok {
		return model.Value{}, f.invalid("expected a choice, got %s", raw)
	}
	if _, ok := f.known[s]; !ok {
		return model.Value{}, f.invalid("unknown choice %q", s)
	}
	return model.ChoiceValue(s), nil
}

func (f *Menu) Render(vals []model.Value, args *query.Args) (string, error) {
	var parts []string
	for _, v := range vals {
		if v.Kind != model.ValueChoice {
			return "", wrongKind(f.Name(), v, model.ValueChoice)
		}
		if _, ok := f.known[v.Choice]; !ok {
			return "", f.invalid("unknown choice %q", v.Choice)
		}
		parts = append(parts, f.column+" = "+args.Add(v.Choice))
	}
	return anyOf(parts), nil
}

func (f *Menu) Describe() Descriptor {
	return Descriptor{Type: TypeMenu, Label: f.Label(), Advanced: f.Advanced(), Options: f.options}
}

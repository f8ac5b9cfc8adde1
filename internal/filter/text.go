package filter

import (
	"encoding/json"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// Text matches rows where any of its columns contains the value,
// ignoring case.
type Text struct {
	base
	columns []string
}

// NewText returns a text-search filter over the given column expressions.
func NewText(m Meta, columns ...string) *Text {
	return &Text{base: base{m: m}, columns: columns}
}

func (f *Text) Type() Type { return TypeText }

func (f *Text) Validate(raw json.RawMessage) (model.Value, error) {
	s, ok := decodeString(raw)
	if !ok {
		return model.Value{}, f.invalid("expected a string, got %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Value{}, f.invalid("empty search text")
	}
	return model.TextValue(s), nil
}

func (f *Text) Render(vals []model.Value, args *query.Args) (string, error) {
	var parts []string
	for _, v := range vals {
		if v.Kind != model.ValueText {
			return "", wrongKind(f.Name(), v, model.ValueText)
		}
		pattern := query.ContainsPattern(v.Text)
		for _, col := range f.columns {
			parts = append(parts, args.Dialect().ContainsFold(col, args.Add(pattern)))
		}
	}
	return anyOf(parts), nil
}

func (f *Text) Describe() Descriptor {
	return Descriptor{Type: TypeText, Label: f.Label(), Advanced: f.Advanced()}
}

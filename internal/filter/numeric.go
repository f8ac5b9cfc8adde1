package filter

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// Numeric matches rows whose column equals any of the bound numbers.
type Numeric struct {
	base
	column string
}

// NewNumeric returns an equality filter over a numeric column expression.
func NewNumeric(m Meta, column string) *Numeric {
	return &Numeric{base: base{m: m}, column: column}
}

func (f *Numeric) Type() Type { return TypeNumeric }

func (f *Numeric) Validate(raw json.RawMessage) (model.Value, error) {
	s, ok := decodeString(raw)
	if !ok {
		return model.Value{}, f.invalid("expected a number, got %s", raw)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return model.Value{}, f.invalid("%q is not a number", s)
	}
	return model.NumberValue(n), nil
}

func (f *Numeric) Render(vals []model.Value, args *query.Args) (string, error) {
	var parts []string
	for _, v := range vals {
		if v.Kind != model.ValueNumber || v.Number == nil {
			return "", wrongKind(f.Name(), v, model.ValueNumber)
		}
		parts = append(parts, f.column+" = "+args.Add(bindNumber(*v.Number)))
	}
	return anyOf(parts), nil
}

func (f *Numeric) Describe() Descriptor {
	return Descriptor{Type: TypeNumeric, Label: f.Label(), Advanced: f.Advanced()}
}

// bindNumber binds integral values as int64 so integer columns compare exactly.
func bindNumber(n float64) any {
	if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
		return int64(n)
	}
	return n
}

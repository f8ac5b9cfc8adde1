package filter

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// Date matches rows whose epoch-seconds column falls on any of the bound
// calendar days in the filter's time zone.
type Date struct {
	base
	column string
	loc    *time.Location
}

// NewDate returns a day filter over a column storing epoch seconds.
// A nil location means UTC.
func NewDate(m Meta, column string, loc *time.Location) *Date {
	if loc == nil {
		loc = time.UTC
	}
	return &Date{base: base{m: m}, column: column, loc: loc}
}

func (f *Date) Type() Type { return TypeDate }

// Validate accepts {"year":2024,"month":3,"date":10} or "2024-03-10".
func (f *Date) Validate(raw json.RawMessage) (model.Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var d model.DateValue
		if err := json.Unmarshal(raw, &d); err != nil {
			return model.Value{}, f.invalid("malformed date %s", raw)
		}
		if !validDay(d.Year, d.Month, d.Day) {
			return model.Value{}, f.invalid("%04d-%02d-%02d is not a calendar date", d.Year, d.Month, d.Day)
		}
		return model.DateOf(d.Year, d.Month, d.Day), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return model.Value{}, f.invalid("expected a date, got %s", raw)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return model.Value{}, f.invalid("%q is not a date", s)
	}
	return model.DateOf(t.Year(), int(t.Month()), t.Day()), nil
}

func validDay(year, month, day int) bool {
	if year < 1 || month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

// Bounds returns the half-open epoch range [start, end) covering the day.
func (f *Date) Bounds(d model.DateValue) (start, end int64) {
	s := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, f.loc)
	e := time.Date(d.Year, time.Month(d.Month), d.Day+1, 0, 0, 0, 0, f.loc)
	return s.Unix(), e.Unix()
}

func (f *Date) Render(vals []model.Value, args *query.Args) (string, error) {
	var parts []string
	for _, v := range vals {
		if v.Kind != model.ValueDate || v.Date == nil {
			return "", wrongKind(f.Name(), v, model.ValueDate)
		}
		start, end := f.Bounds(*v.Date)
		parts = append(parts, "("+f.column+" >= "+args.Add(start)+" AND "+f.column+" < "+args.Add(end)+")")
	}
	return anyOf(parts), nil
}

func (f *Date) Describe() Descriptor {
	return Descriptor{Type: TypeDate, Label: f.Label(), Advanced: f.Advanced()}
}

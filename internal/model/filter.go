package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FilterSetVersion is the current version of the stored filter-set encoding.
const FilterSetVersion = 1

// ValueKind tags the shape of a validated filter value.
type ValueKind string

const (
	ValueText      ValueKind = "text"
	ValueNumber    ValueKind = "number"
	ValueDate      ValueKind = "date"
	ValueChoice    ValueKind = "choice"
	ValueDependent ValueKind = "dependent"
)

// IsValid reports whether the kind is a known value.
func (k ValueKind) IsValid() bool {
	switch k {
	case ValueText, ValueNumber, ValueDate, ValueChoice, ValueDependent:
		return true
	}
	return false
}

// DateValue is a calendar date as sent by date pickers.
type DateValue struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"date"`
}

// Value is one validated value bound to a filter. Exactly the members that
// belong to Kind are set.
type Value struct {
	Kind   ValueKind  `json:"kind"`
	Text   string     `json:"text,omitempty"`
	Number *float64   `json:"number,omitempty"`
	Date   *DateValue `json:"date,omitempty"`
	Choice string     `json:"choice,omitempty"`
	Parent string     `json:"parent,omitempty"`
}

// TextValue returns a text value.
func TextValue(s string) Value { return Value{Kind: ValueText, Text: s} }

// NumberValue returns a numeric value.
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Number: &n} }

// DateOf returns a date value.
func DateOf(year, month, day int) Value {
	return Value{Kind: ValueDate, Date: &DateValue{Year: year, Month: month, Day: day}}
}

// ChoiceValue returns an enumerated value.
func ChoiceValue(s string) Value { return Value{Kind: ValueChoice, Choice: s} }

// DependentValue returns a dependent-select value. parent may be empty.
func DependentValue(parent, child string) Value {
	return Value{Kind: ValueDependent, Parent: parent, Choice: child}
}

// Wire returns the primitive the filter bar expects for this value.
func (v Value) Wire() any {
	switch v.Kind {
	case ValueNumber:
		if v.Number != nil {
			return *v.Number
		}
		return nil
	case ValueDate:
		if v.Date != nil {
			return *v.Date
		}
		return nil
	case ValueChoice:
		return v.Choice
	case ValueDependent:
		if v.Parent != "" {
			return map[string]string{"parent": v.Parent, "child": v.Choice}
		}
		return v.Choice
	default:
		return v.Text
	}
}

// RawFilterSet is the wire form of a filter set: filter name to the raw
// values supplied by the client, not yet validated.
type RawFilterSet map[string][]json.RawMessage

// ParseRawFilterSet decodes the JSON string carried in the "filters" request
// parameter. A bare scalar in place of an array is treated as a one-element
// array. An empty string yields an empty set.
func ParseRawFilterSet(s string) (RawFilterSet, error) {
	out := RawFilterSet{}
	if len(bytes.TrimSpace([]byte(s))) == 0 {
		return out, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("filters must be a JSON object: %w", err)
	}
	for name, raw := range m {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if raw[0] == '[' {
			var vals []json.RawMessage
			if err := json.Unmarshal(raw, &vals); err != nil {
				return nil, fmt.Errorf("filter %q: %w", name, err)
			}
			out[name] = vals
			continue
		}
		out[name] = []json.RawMessage{raw}
	}
	return out, nil
}

// FilterSet maps filter names to validated values.
type FilterSet map[string][]Value

// Wire converts the set to the primitive shape used in initialfilters.
func (fs FilterSet) Wire() map[string][]any {
	out := make(map[string][]any, len(fs))
	for name, vals := range fs {
		wire := make([]any, 0, len(vals))
		for _, v := range vals {
			wire = append(wire, v.Wire())
		}
		out[name] = wire
	}
	return out
}

// Raw re-encodes the set into wire form so it can be validated again.
func (fs FilterSet) Raw() RawFilterSet {
	out := make(RawFilterSet, len(fs))
	for name, vals := range fs {
		for _, v := range vals {
			data, err := json.Marshal(v.Wire())
			if err != nil {
				continue
			}
			out[name] = append(out[name], data)
		}
	}
	return out
}

type encodedFilterSet struct {
	Version int                `json:"version"`
	Filters map[string][]Value `json:"filters"`
}

// EncodeFilterSet returns the versioned storage encoding of fs.
func EncodeFilterSet(fs FilterSet) ([]byte, error) {
	if fs == nil {
		fs = FilterSet{}
	}
	return json.Marshal(encodedFilterSet{Version: FilterSetVersion, Filters: fs})
}

// DecodeFilterSet parses a stored filter set. Unknown versions and values
// with an unknown kind are rejected.
func DecodeFilterSet(data []byte) (FilterSet, error) {
	if len(data) == 0 {
		return FilterSet{}, nil
	}
	var enc encodedFilterSet
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("decode filter set: %w", err)
	}
	if enc.Version != FilterSetVersion {
		return nil, fmt.Errorf("decode filter set: unsupported version %d", enc.Version)
	}
	for name, vals := range enc.Filters {
		for _, v := range vals {
			if !v.Kind.IsValid() {
				return nil, fmt.Errorf("decode filter set: filter %q has unknown value kind %q", name, v.Kind)
			}
		}
	}
	if enc.Filters == nil {
		enc.Filters = FilterSet{}
	}
	return enc.Filters, nil
}

package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseRawFilterSet(t *testing.T) {
	for _, tc := range []struct {
		name    string
		in      string
		want    map[string]int // filter name -> number of values
		wantErr bool
	}{
		{"Empty", "", map[string]int{}, false},
		{"Whitespace", "  ", map[string]int{}, false},
		{"Arrays", `{"name":["foo","bar"],"startdate":[{"year":2024,"month":3,"date":10}]}`, map[string]int{"name": 2, "startdate": 1}, false},
		{"Scalar", `{"name":"foo"}`, map[string]int{"name": 1}, false},
		{"NullSkipped", `{"name":null}`, map[string]int{}, false},
		{"NotObject", `["foo"]`, nil, true},
		{"Garbage", `{name`, nil, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRawFilterSet(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d filters, want %d", len(got), len(tc.want))
			}
			for name, n := range tc.want {
				if len(got[name]) != n {
					t.Errorf("filter %q has %d values, want %d", name, len(got[name]), n)
				}
			}
		})
	}
}

func TestFilterSetEncoding(t *testing.T) {
	fs := FilterSet{
		"name":      {TextValue("intro")},
		"credits":   {NumberValue(0)},
		"startdate": {DateOf(2024, 3, 10)},
		"status":    {ChoiceValue("enrolled"), ChoiceValue("waitlisted")},
		"course":    {DependentValue("3", "17")},
	}
	data, err := EncodeFilterSet(fs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.Version != FilterSetVersion {
		t.Fatalf("stored version = %d (err %v), want %d", probe.Version, err, FilterSetVersion)
	}

	got, err := DecodeFilterSet(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(got, fs) {
		t.Errorf("decoded set = %#v, want %#v", got, fs)
	}
	if *got["credits"][0].Number != 0 {
		t.Error("zero number must survive encoding")
	}
}

func TestDecodeFilterSet_Rejects(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
	}{
		{"LegacyUnversioned", `{"name":["foo"]}`},
		{"FutureVersion", `{"version":2,"filters":{}}`},
		{"UnknownKind", `{"version":1,"filters":{"name":[{"kind":"serialized"}]}}`},
		{"NotJSON", `a:1:{s:4:"name";}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeFilterSet([]byte(tc.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFilterSetWire(t *testing.T) {
	fs := FilterSet{
		"name":      {TextValue("intro")},
		"startdate": {DateOf(2024, 3, 10)},
		"course":    {DependentValue("", "17"), DependentValue("3", "18")},
	}
	wire := fs.Wire()
	if wire["name"][0] != "intro" {
		t.Errorf("text wire = %v", wire["name"][0])
	}
	if d, ok := wire["startdate"][0].(DateValue); !ok || d.Year != 2024 || d.Month != 3 || d.Day != 10 {
		t.Errorf("date wire = %#v", wire["startdate"][0])
	}
	if wire["course"][0] != "17" {
		t.Errorf("dependent wire without parent = %v", wire["course"][0])
	}
	if m, ok := wire["course"][1].(map[string]string); !ok || m["parent"] != "3" || m["child"] != "18" {
		t.Errorf("dependent wire with parent = %#v", wire["course"][1])
	}

	raw := fs.Raw()
	if string(raw["startdate"][0]) != `{"year":2024,"month":3,"date":10}` {
		t.Errorf("raw date = %s", raw["startdate"][0])
	}
}

func TestSummarize(t *testing.T) {
	s := &SavedSearch{ID: "ss-1", Name: "Mine", Owner: "alice", Filters: FilterSet{"name": {TextValue("x")}}}
	if !s.Summarize("alice").CanEdit {
		t.Error("owner should be able to edit")
	}
	if s.Summarize("bob").CanEdit {
		t.Error("non-owner should not be able to edit")
	}
}

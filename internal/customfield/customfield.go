// Package customfield maps per-tenant custom fields of one context level onto
// synthetic filters, output columns and LEFT JOINs against the key/value
// attribute tables.
package customfield

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/alfredjeanlab/datatable/internal/filter"
	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// Prefix is prepended to a custom field shortname to form its filter name.
const Prefix = "cf_"

// FilterName returns the deterministic filter name for a shortname.
func FilterName(shortname string) string { return Prefix + shortname }

var shortnamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,100}$`)

// dataTable returns the attribute table holding values of type t.
func dataTable(t model.CustomFieldType) string {
	switch t {
	case model.CustomFieldChar, model.CustomFieldMenu:
		return "custom_field_data_char"
	case model.CustomFieldInt, model.CustomFieldBool, model.CustomFieldDatetime:
		return "custom_field_data_int"
	case model.CustomFieldNum:
		return "custom_field_data_num"
	default:
		return "custom_field_data_text"
	}
}

// Column is the output column of one custom field.
type Column struct {
	Name    string
	Label   string
	Expr    string
	Default string
}

type field struct {
	desc   model.CustomField
	name   string
	filter filter.Filter
	join   query.Join
}

// Adapter serves the custom fields of one context level for one listing.
// It is read-only after construction.
type Adapter struct {
	fields  []field
	byName  map[string]*field
	skipped  []string
	degraded []string
}

// New builds an adapter for fields attached to the entity whose id is
// instanceExpr (e.g. "cls.id"). Date filters use loc. Fields whose
// shortname cannot be used as an identifier are skipped and reported by
// Skipped. Fields of an unknown data type are served as text and reported
// by Degraded.
func New(fields []model.CustomField, instanceExpr string, loc *time.Location) *Adapter {
	a := &Adapter{byName: make(map[string]*field, len(fields))}
	for _, cf := range fields {
		if !shortnamePattern.MatchString(cf.Shortname) {
			a.skipped = append(a.skipped, cf.Shortname)
			continue
		}
		name := FilterName(cf.Shortname)
		if _, dup := a.byName[name]; dup {
			a.skipped = append(a.skipped, cf.Shortname)
			continue
		}
		if !knownTypes[cf.DataType] {
			a.degraded = append(a.degraded, cf.Shortname)
		}
		a.fields = append(a.fields, field{
			desc:   cf,
			name:   name,
			filter: newFilter(cf, name, loc),
			join: query.Join{
				Alias: name,
				SQL: fmt.Sprintf("LEFT JOIN %s %s ON %s.instanceid = %s AND %s.fieldid = %s",
					dataTable(cf.DataType), name, name, instanceExpr, name, strconv.FormatInt(cf.ID, 10)),
			},
		})
	}
	for i := range a.fields {
		a.byName[a.fields[i].name] = &a.fields[i]
	}
	return a
}

var knownTypes = map[model.CustomFieldType]bool{
	model.CustomFieldText:     true,
	model.CustomFieldChar:     true,
	model.CustomFieldInt:      true,
	model.CustomFieldNum:      true,
	model.CustomFieldBool:     true,
	model.CustomFieldDatetime: true,
	model.CustomFieldMenu:     true,
}

var boolChoices = []model.Choice{{Value: "0", Label: "No"}, {Value: "1", Label: "Yes"}}

// newFilter maps a field onto a filter type. Types with no mapping degrade
// to a text filter.
func newFilter(cf model.CustomField, name string, loc *time.Location) filter.Filter {
	label := cf.Name
	if label == "" {
		label = cf.Shortname
	}
	meta := filter.Meta{Name: name, Label: label, Advanced: true}
	expr := name + ".data"
	switch cf.DataType {
	case model.CustomFieldInt, model.CustomFieldNum:
		return filter.NewNumeric(meta, expr)
	case model.CustomFieldBool:
		return filter.NewMenu(meta, expr, boolChoices)
	case model.CustomFieldDatetime:
		return filter.NewDate(meta, expr, loc)
	case model.CustomFieldMenu:
		opts := make([]model.Choice, 0, len(cf.Options))
		for _, o := range cf.Options {
			opts = append(opts, model.Choice{Value: o, Label: o})
		}
		return filter.NewMenu(meta, expr, opts)
	default:
		return filter.NewText(meta, expr)
	}
}

// Filters returns one synthetic filter per custom field.
func (a *Adapter) Filters() []filter.Filter {
	out := make([]filter.Filter, 0, len(a.fields))
	for _, f := range a.fields {
		out = append(out, f.filter)
	}
	return out
}

// Columns returns one output column per custom field.
func (a *Adapter) Columns() []Column {
	out := make([]Column, 0, len(a.fields))
	for _, f := range a.fields {
		out = append(out, Column{
			Name:    f.name,
			Label:   f.filter.Label(),
			Expr:    f.name + ".data",
			Default: f.desc.Default,
		})
	}
	return out
}

// Has reports whether name is a custom field filter served by a.
func (a *Adapter) Has(name string) bool {
	_, ok := a.byName[name]
	return ok
}

// JoinsFor returns the joins needed by the referenced custom fields, in
// field order. Names that are not custom fields are ignored.
func (a *Adapter) JoinsFor(names []string) []query.Join {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []query.Join
	for _, f := range a.fields {
		if want[f.name] {
			out = append(out, f.join)
		}
	}
	return out
}

// FansOut reports whether joining any of the referenced fields can yield
// more than one row per entity.
func (a *Adapter) FansOut(names []string) bool {
	for _, n := range names {
		if f, ok := a.byName[n]; ok && f.desc.Multivalued {
			return true
		}
	}
	return false
}

// Skipped returns the shortnames that were not mapped.
func (a *Adapter) Skipped() []string { return a.skipped }

// Degraded returns the shortnames of fields served as text because their
// data type has no filter mapping.
func (a *Adapter) Degraded() []string { return a.degraded }

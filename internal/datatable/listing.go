// Package datatable composes paginated, filterable listing queries. A
// Listing declares a base table, its columns, fixed joins and predicates and
// the filters it offers; a Table prepares it for queries and the Engine runs
// them.
package datatable

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/alfredjeanlab/datatable/internal/customfield"
	"github.com/alfredjeanlab/datatable/internal/filter"
	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
	"github.com/alfredjeanlab/datatable/internal/visibility"
)

// DefaultPerPage is used when neither the listing nor its options set a page size.
const DefaultPerPage = 20

// ErrUnknownListing is returned for listing kinds outside the registry.
var ErrUnknownListing = errors.New("unknown listing")

// ErrPageOutOfRange is returned for a page whose row offset does not fit in
// an int.
var ErrPageOutOfRange = errors.New("page out of range")

// Column is an output column of a listing.
type Column struct {
	Name  string
	Label string
	// Expr is the SQL expression selected for the column.
	Expr string
	// Fixed columns are always shown.
	Fixed    bool
	Sortable bool
	// Aggregate marks expressions that are aggregates over a fanned-out join.
	// They are left out of GROUP BY. In grouped listings every column drawn
	// from a one-to-many join must be an aggregate.
	Aggregate bool
}

// Predicate renders a fixed WHERE condition, binding its values through args.
type Predicate func(args *query.Args) string

// Equals returns a predicate comparing expr to v.
func Equals(expr string, v any) Predicate {
	return func(args *query.Args) string {
		return expr + " = " + args.Add(v)
	}
}

// Listing is the declaration of one concrete listing. Joins must not carry
// bound parameters; values go through Predicates.
type Listing struct {
	Kind  string
	Table string
	Alias string
	// Header is the SQL expression used as the display label of each row.
	Header     string
	Columns    []Column
	Joins      []query.Join
	Predicates []Predicate
	// GroupBy groups rows by the base id. Required when a fixed join can
	// fan out rows.
	GroupBy bool
	// DefaultSort names the column ordered on when the request has no sort.
	// A leading "-" sorts descending. Empty means the base id ascending.
	DefaultSort  string
	PerPage      int
	Filters      []filter.Filter
	CustomFields *customfield.Adapter
	// ContextLevel selects the visibility configuration for the listing.
	ContextLevel string
	ContextID    int64
	Capability   string
}

// Options is the per-deployment configuration of a listing, passed in
// explicitly at preparation.
type Options struct {
	Visibility model.VisibilityConfig
	PerPage    int
	Capability string
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Table is a Listing prepared for queries. It is read-only and safe for
// concurrent use.
type Table struct {
	def       Listing
	filters   *filter.Set
	config    *visibility.Resolver
	visConfig model.VisibilityConfig
	perPage   int
	columns   map[string]Column
	cfByName  map[string]customfield.Column
}

// Prepare validates def and registers its filters, including one synthetic
// filter per custom field.
func Prepare(def Listing, opts Options) (*Table, error) {
	if def.Kind == "" || def.Table == "" || def.Header == "" {
		return nil, fmt.Errorf("listing %q: kind, table and header are required", def.Kind)
	}
	if !identPattern.MatchString(def.Alias) {
		return nil, fmt.Errorf("listing %q: invalid alias %q", def.Kind, def.Alias)
	}
	if opts.Visibility != nil {
		if err := model.ValidateVisibility(opts.Visibility); err != nil {
			return nil, fmt.Errorf("listing %q: %w", def.Kind, err)
		}
	}

	t := &Table{
		def:      def,
		perPage:  DefaultPerPage,
		columns:  make(map[string]Column, len(def.Columns)),
		cfByName: make(map[string]customfield.Column),
	}
	for _, c := range def.Columns {
		if !identPattern.MatchString(c.Name) || c.Name == "id" || c.Name == "header" {
			return nil, fmt.Errorf("listing %q: invalid column name %q", def.Kind, c.Name)
		}
		if _, dup := t.columns[c.Name]; dup {
			return nil, fmt.Errorf("listing %q: duplicate column %q", def.Kind, c.Name)
		}
		t.columns[c.Name] = c
	}
	if def.PerPage > 0 {
		t.perPage = def.PerPage
	}
	if opts.PerPage > 0 {
		t.perPage = opts.PerPage
	}

	fs, err := filter.NewSet(def.Filters...)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", def.Kind, err)
	}
	if def.CustomFields != nil {
		for _, f := range def.CustomFields.Filters() {
			if err := fs.Add(f); err != nil {
				return nil, fmt.Errorf("listing %q: %w", def.Kind, err)
			}
		}
		for _, c := range def.CustomFields.Columns() {
			if _, clash := t.columns[c.Name]; clash {
				return nil, fmt.Errorf("listing %q: custom field %q shadows a column", def.Kind, c.Name)
			}
			t.cfByName[c.Name] = c
		}
	}
	t.filters = fs
	t.visConfig = opts.Visibility
	t.config = visibility.New(nil, opts.Visibility)
	return t, nil
}

// Kind returns the listing kind.
func (t *Table) Kind() string { return t.def.Kind }

// ContextID returns the id of the context the listing is scoped to.
func (t *Table) ContextID() int64 { return t.def.ContextID }

// PerPage returns the page size.
func (t *Table) PerPage() int { return t.perPage }

// Filters returns the filter registry.
func (t *Table) Filters() *filter.Set { return t.filters }

// Labels returns the display label of every column, including custom fields.
func (t *Table) Labels() map[string]string {
	out := make(map[string]string, len(t.columns)+len(t.cfByName))
	for _, c := range t.def.Columns {
		label := c.Label
		if label == "" {
			label = c.Name
		}
		out[c.Name] = label
	}
	for name, c := range t.cfByName {
		out[name] = c.Label
	}
	return out
}

// ChildOptions returns the child choices of a dependent-select filter for a
// parent value.
func (t *Table) ChildOptions(filterName, parent string) ([]model.Choice, error) {
	f, ok := t.filters.Get(filterName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", filter.ErrInvalidValue, filterName)
	}
	ds, ok := f.(*filter.DependentSelect)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a dependent select", filter.ErrInvalidValue, filterName)
	}
	opts := ds.ChildOptions(parent)
	if opts == nil {
		opts = []model.Choice{}
	}
	return opts, nil
}

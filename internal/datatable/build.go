package datatable

import (
	"fmt"
	"math"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
	"github.com/alfredjeanlab/datatable/internal/visibility"
)

// selected is one column present in the SELECT list.
type selected struct {
	name     string
	expr     string
	sortable bool
	fallback any
}

// Statement is the pair of queries computed for one request.
type Statement struct {
	SQL       string
	Args      []any
	CountSQL  string
	CountArgs []any
	Page      int
	PerPage   int
	Fields    visibility.Fields
	// Active lists the output columns targeted by active filters.
	Active  []string
	columns []selected
}

// Build renders the page and count queries for validated filter values.
// Filter fragments are ANDed, then the listing's fixed predicates are ANDed
// after them. page below 1 is treated as 1. sort names a sortable column,
// prefixed with "-" for descending; anything else falls back to the
// listing's default order. The base id is always the final sort key.
func (t *Table) Build(d query.Dialect, fs model.FilterSet, page int, sort string) (*Statement, error) {
	if page < 1 {
		page = 1
	}
	if page-1 > math.MaxInt/t.perPage {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, page)
	}
	args := query.NewArgs(d)
	rendered, err := t.filters.Render(fs, args)
	if err != nil {
		return nil, err
	}
	where := append([]string(nil), rendered.Where...)
	for _, p := range t.def.Predicates {
		if frag := p(args); frag != "" {
			where = append(where, frag)
		}
	}

	// Custom fields join only when an active filter or the configuration
	// references them.
	var cfJoins []query.Join
	var referenced []string
	grouped := t.def.GroupBy
	if cf := t.def.CustomFields; cf != nil {
		referenced = append(append(referenced, rendered.Columns...), t.config.Referenced()...)
		cfJoins = cf.JoinsFor(referenced)
		grouped = grouped || cf.FansOut(referenced)
	}
	joins := query.MergeJoins(t.def.Joins, cfJoins, rendered.Joins)

	alias := t.def.Alias
	idExpr := alias + ".id"
	cols := make([]selected, 0, len(t.def.Columns)+len(cfJoins))
	groupBy := []string{idExpr}
	if t.def.Header != idExpr {
		groupBy = append(groupBy, t.def.Header)
	}
	for _, c := range t.def.Columns {
		cols = append(cols, selected{name: c.Name, expr: c.Expr, sortable: c.Sortable})
		if !c.Aggregate {
			groupBy = append(groupBy, c.Expr)
		}
	}
	for _, j := range cfJoins {
		c := t.cfByName[j.Alias]
		expr := c.Expr
		if grouped {
			expr = "MAX(" + expr + ")"
		}
		var fallback any
		if c.Default != "" {
			fallback = c.Default
		}
		cols = append(cols, selected{name: c.Name, expr: expr, sortable: true, fallback: fallback})
	}

	var from strings.Builder
	from.WriteString(" FROM ")
	from.WriteString(t.def.Table)
	from.WriteString(" ")
	from.WriteString(alias)
	for _, j := range joins {
		from.WriteString(" ")
		from.WriteString(j.SQL)
	}
	if len(where) > 0 {
		from.WriteString(" WHERE ")
		from.WriteString(strings.Join(where, " AND "))
	}
	if grouped {
		from.WriteString(" GROUP BY ")
		from.WriteString(strings.Join(groupBy, ", "))
	}
	body := from.String()

	countArgs := args.Values()
	var countSQL string
	if grouped {
		countSQL = "SELECT COUNT(DISTINCT matched.id) FROM (SELECT " + idExpr + " AS id" + body + ") matched"
	} else {
		countSQL = "SELECT COUNT(DISTINCT " + idExpr + ")" + body
	}

	var sel strings.Builder
	sel.WriteString("SELECT ")
	sel.WriteString(idExpr)
	sel.WriteString(" AS id, ")
	sel.WriteString(t.def.Header)
	sel.WriteString(" AS header")
	for _, c := range cols {
		sel.WriteString(", ")
		sel.WriteString(c.expr)
		sel.WriteString(" AS ")
		sel.WriteString(c.name)
	}
	sel.WriteString(body)
	sel.WriteString(" ORDER BY ")
	sel.WriteString(t.orderBy(cols, sort, idExpr))
	limit := args.Add(t.perPage)
	offset := args.Add((page - 1) * t.perPage)
	fmt.Fprintf(&sel, " LIMIT %s OFFSET %s", limit, offset)

	shown := make([]visibility.Column, 0, len(cols))
	for _, c := range t.def.Columns {
		shown = append(shown, visibility.Column{Name: c.Name, Fixed: c.Fixed})
	}
	for _, c := range cols[len(t.def.Columns):] {
		shown = append(shown, visibility.Column{Name: c.name})
	}

	return &Statement{
		SQL:       sel.String(),
		Args:      args.Values(),
		CountSQL:  countSQL,
		CountArgs: countArgs,
		Page:      page,
		PerPage:   t.perPage,
		Fields:    visibility.New(shown, t.visConfig).Resolve(rendered.Columns),
		Active:    rendered.Columns,
		columns:   cols,
	}, nil
}

func (t *Table) orderBy(cols []selected, sort, idExpr string) string {
	key, ok := t.sortKey(cols, sort)
	if !ok {
		key, ok = t.sortKey(cols, t.def.DefaultSort)
	}
	if !ok {
		return idExpr + " ASC"
	}
	return key + ", " + idExpr + " ASC"
}

// sortKey resolves a sort request against the sortable columns.
func (t *Table) sortKey(cols []selected, sort string) (string, bool) {
	dir := "ASC"
	name := strings.TrimSpace(sort)
	if strings.HasPrefix(name, "-") {
		dir = "DESC"
		name = name[1:]
	}
	if name == "" {
		return "", false
	}
	for _, c := range cols {
		if c.name == name && c.sortable {
			return c.expr + " " + dir, true
		}
	}
	return "", false
}

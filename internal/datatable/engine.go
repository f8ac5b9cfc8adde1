package datatable

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/datatable/internal/filter"
	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
	"github.com/alfredjeanlab/datatable/internal/visibility"
)

// Engine executes listing queries against a store.
type Engine struct {
	db      query.Executor
	dialect query.Dialect
	logger  *slog.Logger
}

// NewEngine returns an engine issuing queries through db.
func NewEngine(db query.Executor, dialect query.Dialect, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{db: db, dialect: dialect, logger: logger}
}

// Dialect returns the SQL dialect the engine renders for.
func (e *Engine) Dialect() query.Dialect { return e.dialect }

// Search returns one page of rows matching fs plus the total number of
// matches. The page and the total are two separate queries and may observe
// different snapshots under concurrent writes.
func (e *Engine) Search(ctx context.Context, t *Table, fs model.FilterSet, page int, sort string) (*model.Page, *Statement, error) {
	st, err := t.Build(e.dialect, fs, page, sort)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s query: %w", t.Kind(), err)
	}

	rows, err := e.queryRows(ctx, st)
	if err != nil {
		return nil, nil, fmt.Errorf("list %s: %w", t.Kind(), err)
	}

	var total int
	if err := e.db.QueryRowContext(ctx, st.CountSQL, st.CountArgs...).Scan(&total); err != nil {
		return nil, nil, fmt.Errorf("count %s: %w", t.Kind(), err)
	}

	return &model.Page{Rows: rows, Total: total, Page: st.Page, PerPage: st.PerPage}, st, nil
}

func (e *Engine) queryRows(ctx context.Context, st *Statement) ([]model.Row, error) {
	rs, err := e.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	out := []model.Row{}
	for rs.Next() {
		var (
			id     int64
			header any
		)
		vals := make([]any, len(st.columns))
		dest := make([]any, 0, len(st.columns)+2)
		dest = append(dest, &id, &header)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rs.Scan(dest...); err != nil {
			return nil, err
		}
		row := model.Row{ID: id, Fields: make(map[string]any, len(vals))}
		if h := normalize(header); h != nil {
			row.Header = fmt.Sprint(h)
		}
		for i, c := range st.columns {
			v := normalize(vals[i])
			if v == nil {
				v = c.fallback
			}
			row.Fields[c.name] = v
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

// normalize converts driver byte slices to strings.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case nil:
		return nil
	}
	return v
}

// Request is one listing request as received from a client.
type Request struct {
	Filters model.RawFilterSet
	Page    int
	Sort    string
	// Initial, when set, seeds initialfilters (a default saved search).
	Initial model.FilterSet
}

// Response is the listing payload returned to the client.
type Response struct {
	Filters        map[string]filter.Descriptor `json:"filters"`
	InitialFilters map[string][]any             `json:"initialfilters"`
	Fields         visibility.Fields            `json:"fields"`
	Labels         map[string]string            `json:"labels"`
	Children       []model.Row                  `json:"children"`
	Page           int                          `json:"page"`
	PerPage        int                          `json:"perpage"`
	TotalResults   int                          `json:"totalresults"`
	// Dropped names filters whose values failed validation and were ignored.
	Dropped []string `json:"dropped,omitempty"`
}

// Run validates the request's filters, applies locked values and returns the
// requested page with the filter metadata for the client. Invalid filters
// are dropped and logged rather than failing the request.
func (e *Engine) Run(ctx context.Context, t *Table, req Request) (*Response, error) {
	raw := t.config.ApplyLocked(req.Filters)
	v := t.filters.Validate(raw)
	for _, r := range v.Rejected {
		e.logger.Warn("dropped filter", "kind", t.Kind(), "filter", r.Filter, "err", r.Err)
	}
	if len(v.Unknown) > 0 {
		e.logger.Debug("ignored unknown filters", "kind", t.Kind(), "filters", v.Unknown)
	}
	if cf := t.def.CustomFields; cf != nil && len(cf.Degraded()) > 0 {
		e.logger.Debug("custom fields served as text", "kind", t.Kind(), "fields", cf.Degraded())
	}

	page, st, err := e.Search(ctx, t, v.Values, req.Page, req.Sort)
	if err != nil {
		return nil, err
	}

	locked := t.config.Locked()
	resp := &Response{
		Filters:        t.filters.Describe(locked),
		InitialFilters: t.initialFilters(req.Initial, locked),
		Fields:         st.Fields,
		Labels:         t.Labels(),
		Children:       page.Rows,
		Page:           page.Page,
		PerPage:        page.PerPage,
		TotalResults:   page.Total,
	}
	for _, r := range v.Rejected {
		resp.Dropped = append(resp.Dropped, r.Filter)
	}
	return resp, nil
}

// initialFilters returns the pre-populated filter values: the default saved
// search when there is one, otherwise the configured defaulted values.
// Locked fields are never included.
func (t *Table) initialFilters(initial model.FilterSet, locked map[string]bool) map[string][]any {
	if initial == nil {
		initial = t.filters.Validate(t.config.DefaultedValues()).Values
	}
	out := make(map[string][]any, len(initial))
	for name, vals := range initial.Wire() {
		if locked[name] {
			continue
		}
		if _, ok := t.filters.Get(name); !ok {
			continue
		}
		out[name] = vals
	}
	return out
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// savedSearchColumns is the column list used for SELECT statements on the
// saved_searches table.
const savedSearchColumns = `id, listing, context_id, owner, shared, name,
	filters, is_default, created_at, updated_at`

// defaultSearchLimit caps SearchSavedSearches when the query sets no limit.
const defaultSearchLimit = 100

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	query.Executor
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func queryCreateSavedSearch(ctx context.Context, db executor, s *model.SavedSearch) error {
	filters, err := model.EncodeFilterSet(s.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	return db.QueryRowContext(ctx, `
		INSERT INTO saved_searches (
			id, listing, context_id, owner, shared, name, filters, is_default
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		s.ID,
		s.Listing,
		s.ContextID,
		s.Owner,
		s.Shared,
		s.Name,
		filters,
		s.IsDefault,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func queryGetSavedSearch(ctx context.Context, db executor, id string, lock bool) (*model.SavedSearch, error) {
	q := `SELECT ` + savedSearchColumns + ` FROM saved_searches WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	return scanSavedSearch(db.QueryRowContext(ctx, q, id))
}

func queryUpdateSavedSearch(ctx context.Context, db executor, s *model.SavedSearch) error {
	filters, err := model.EncodeFilterSet(s.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	return db.QueryRowContext(ctx, `
		UPDATE saved_searches SET
			name = $2, shared = $3, filters = $4, is_default = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		s.ID,
		s.Name,
		s.Shared,
		filters,
		s.IsDefault,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func queryDeleteSavedSearch(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func querySearchSavedSearches(ctx context.Context, db executor, q model.SavedSearchQuery) ([]*model.SavedSearch, error) {
	var (
		clauses []string
		args    []any
		idx     = 1
	)
	clauses = append(clauses, fmt.Sprintf("listing = $%d", idx))
	args = append(args, q.Listing)
	idx++
	clauses = append(clauses, fmt.Sprintf("context_id = $%d", idx))
	args = append(args, q.ContextID)
	idx++
	clauses = append(clauses, fmt.Sprintf("(owner = $%d OR shared)", idx))
	args = append(args, q.Principal)
	idx++

	if text := strings.TrimSpace(q.Text); text != "" {
		clauses = append(clauses, fmt.Sprintf(`name ILIKE $%d ESCAPE '\'`, idx))
		args = append(args, query.ContainsPattern(text))
		idx++
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	stmt := `SELECT ` + savedSearchColumns + ` FROM saved_searches WHERE ` +
		strings.Join(clauses, " AND ") +
		` ORDER BY is_default DESC, name, id LIMIT $` + strconv.Itoa(idx)
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSavedSearches(rows)
}

func queryGetDefaultSavedSearch(ctx context.Context, db executor, owner, listing string, contextID int64) (*model.SavedSearch, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+savedSearchColumns+`
		FROM saved_searches
		WHERE owner = $1 AND listing = $2 AND context_id = $3 AND is_default`,
		owner, listing, contextID)
	return scanSavedSearch(row)
}

func queryClearDefaultSavedSearch(ctx context.Context, db executor, owner, listing string, contextID int64, exceptID string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE saved_searches SET is_default = FALSE, updated_at = NOW()
		WHERE owner = $1 AND listing = $2 AND context_id = $3 AND is_default AND id <> $4`,
		owner, listing, contextID, exceptID)
	return err
}

func queryListAllSavedSearches(ctx context.Context, db executor) ([]*model.SavedSearch, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+savedSearchColumns+`
		FROM saved_searches ORDER BY listing, context_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSavedSearches(rows)
}

func queryCustomFields(ctx context.Context, db executor, contextLevel string) ([]model.CustomField, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, shortname, name, datatype, contextlevel, multivalued, options, defaultdata
		FROM custom_fields
		WHERE contextlevel = $1
		ORDER BY sortorder, id`, contextLevel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCustomFields(rows)
}

func queryPrograms(ctx context.Context, db executor) ([]model.Choice, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM programs ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Choice
	for rows.Next() {
		c, err := scanChoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func queryProgramCourses(ctx context.Context, db executor) (map[string][]model.Choice, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT pc.programid, c.id, c.fullname
		FROM program_courses pc
		JOIN courses c ON c.id = pc.courseid
		ORDER BY pc.programid, c.fullname, c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.Choice)
	for rows.Next() {
		var programID int64
		var c model.Choice
		var courseID int64
		if err := rows.Scan(&programID, &courseID, &c.Label); err != nil {
			return nil, err
		}
		c.Value = strconv.FormatInt(courseID, 10)
		key := strconv.FormatInt(programID, 10)
		out[key] = append(out[key], c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func querySetConfig(ctx context.Context, db executor, c *model.Config) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO configs (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
		RETURNING created_at, updated_at`,
		c.Key, []byte(c.Value),
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func queryGetConfig(ctx context.Context, db executor, key string) (*model.Config, error) {
	row := db.QueryRowContext(ctx, `
		SELECT key, value, created_at, updated_at
		FROM configs WHERE key = $1`, key)
	return scanConfig(row)
}

func queryListConfigs(ctx context.Context, db executor, namespace string) ([]*model.Config, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT key, value, created_at, updated_at
		FROM configs WHERE key LIKE $1 ESCAPE '\'
		ORDER BY key`, query.PrefixPattern(namespace+":"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows)
}

func queryListAllConfigs(ctx context.Context, db executor) ([]*model.Config, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT key, value, created_at, updated_at
		FROM configs ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows)
}

func queryDeleteConfig(ctx context.Context, db executor, key string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM configs WHERE key = $1`, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

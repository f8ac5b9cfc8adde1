// Package query holds the SQL building blocks shared by filters and the
// listing composer: dialects, placeholder allocation and join fragments.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Executor is the interface satisfied by both *sql.DB and *sql.Tx.
type Executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures the few places where generated SQL differs between backends.
type Dialect interface {
	Name() string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string
	// ContainsFold renders a case-insensitive LIKE of expr against the
	// pattern bound at placeholder. The pattern must be built with ContainsPattern.
	ContainsFold(expr, placeholder string) string
}

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) ContainsFold(expr, placeholder string) string {
	return expr + " ILIKE " + placeholder + ` ESCAPE '\'`
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string           { return "sqlite" }
func (sqliteDialect) Placeholder(int) string { return "?" }

// SQLite's LIKE is already case-insensitive for ASCII.
func (sqliteDialect) ContainsFold(expr, placeholder string) string {
	return expr + " LIKE " + placeholder + ` ESCAPE '\'`
}

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

// DialectByName resolves a configured dialect name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return nil, fmt.Errorf("unknown SQL dialect %q", name)
}

// Args allocates placeholders in order and collects their bound values.
// Fragments must be rendered in the order they appear in the final statement.
type Args struct {
	dialect Dialect
	values  []any
}

// NewArgs returns an empty argument list for the given dialect.
func NewArgs(d Dialect) *Args {
	return &Args{dialect: d}
}

// Add binds v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.values = append(a.values, v)
	return a.dialect.Placeholder(len(a.values))
}

// Values returns a copy of the bound values.
func (a *Args) Values() []any {
	out := make([]any, len(a.values))
	copy(out, a.values)
	return out
}

// Len returns the number of bound values.
func (a *Args) Len() int { return len(a.values) }

// Dialect returns the dialect the placeholders are rendered for.
func (a *Args) Dialect() Dialect { return a.dialect }

// Join is a JOIN clause identified by the alias it introduces.
type Join struct {
	Alias string
	SQL   string
}

// MergeJoins concatenates join groups, keeping the first join seen for each alias.
func MergeJoins(groups ...[]Join) []Join {
	seen := make(map[string]struct{})
	var out []Join
	for _, g := range groups {
		for _, j := range g {
			if _, ok := seen[j.Alias]; ok {
				continue
			}
			seen[j.Alias] = struct{}{}
			out = append(out, j)
		}
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns a LIKE pattern matching any text containing s
// literally. Wildcards in s are escaped with a backslash.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// PrefixPattern returns a LIKE pattern matching any text starting with s
// literally.
func PrefixPattern(s string) string {
	return likeEscaper.Replace(s) + "%"
}

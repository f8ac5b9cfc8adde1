// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
	"github.com/alfredjeanlab/datatable/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already opened database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Executor returns the connection pool.
func (s *PostgresStore) Executor() query.Executor {
	return s.db
}

func (s *PostgresStore) CreateSavedSearch(ctx context.Context, ss *model.SavedSearch) error {
	return queryCreateSavedSearch(ctx, s.db, ss)
}

func (s *PostgresStore) GetSavedSearch(ctx context.Context, id string) (*model.SavedSearch, error) {
	return queryGetSavedSearch(ctx, s.db, id, false)
}

// LockSavedSearch outside a transaction cannot hold a lock past the
// statement, so it reads without one.
func (s *PostgresStore) LockSavedSearch(ctx context.Context, id string) (*model.SavedSearch, error) {
	return queryGetSavedSearch(ctx, s.db, id, false)
}

func (s *PostgresStore) UpdateSavedSearch(ctx context.Context, ss *model.SavedSearch) error {
	return queryUpdateSavedSearch(ctx, s.db, ss)
}

func (s *PostgresStore) DeleteSavedSearch(ctx context.Context, id string) error {
	return queryDeleteSavedSearch(ctx, s.db, id)
}

func (s *PostgresStore) SearchSavedSearches(ctx context.Context, q model.SavedSearchQuery) ([]*model.SavedSearch, error) {
	return querySearchSavedSearches(ctx, s.db, q)
}

func (s *PostgresStore) GetDefaultSavedSearch(ctx context.Context, owner, listing string, contextID int64) (*model.SavedSearch, error) {
	return queryGetDefaultSavedSearch(ctx, s.db, owner, listing, contextID)
}

func (s *PostgresStore) ClearDefaultSavedSearch(ctx context.Context, owner, listing string, contextID int64, exceptID string) error {
	return queryClearDefaultSavedSearch(ctx, s.db, owner, listing, contextID, exceptID)
}

func (s *PostgresStore) ListAllSavedSearches(ctx context.Context) ([]*model.SavedSearch, error) {
	return queryListAllSavedSearches(ctx, s.db)
}

func (s *PostgresStore) CustomFields(ctx context.Context, contextLevel string) ([]model.CustomField, error) {
	return queryCustomFields(ctx, s.db, contextLevel)
}

func (s *PostgresStore) Programs(ctx context.Context) ([]model.Choice, error) {
	return queryPrograms(ctx, s.db)
}

func (s *PostgresStore) ProgramCourses(ctx context.Context) (map[string][]model.Choice, error) {
	return queryProgramCourses(ctx, s.db)
}

func (s *PostgresStore) SetConfig(ctx context.Context, config *model.Config) error {
	return querySetConfig(ctx, s.db, config)
}

func (s *PostgresStore) GetConfig(ctx context.Context, key string) (*model.Config, error) {
	return queryGetConfig(ctx, s.db, key)
}

func (s *PostgresStore) ListConfigs(ctx context.Context, namespace string) ([]*model.Config, error) {
	return queryListConfigs(ctx, s.db, namespace)
}

func (s *PostgresStore) ListAllConfigs(ctx context.Context) ([]*model.Config, error) {
	return queryListAllConfigs(ctx, s.db)
}

func (s *PostgresStore) DeleteConfig(ctx context.Context, key string) error {
	return queryDeleteConfig(ctx, s.db, key)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

// Executor returns the transaction.
func (s *txStore) Executor() query.Executor {
	return s.tx
}

func (s *txStore) CreateSavedSearch(ctx context.Context, ss *model.SavedSearch) error {
	return queryCreateSavedSearch(ctx, s.tx, ss)
}

func (s *txStore) GetSavedSearch(ctx context.Context, id string) (*model.SavedSearch, error) {
	return queryGetSavedSearch(ctx, s.tx, id, false)
}

func (s *txStore) LockSavedSearch(ctx context.Context, id string) (*model.SavedSearch, error) {
	return queryGetSavedSearch(ctx, s.tx, id, true)
}

func (s *txStore) UpdateSavedSearch(ctx context.Context, ss *model.SavedSearch) error {
	return queryUpdateSavedSearch(ctx, s.tx, ss)
}

func (s *txStore) DeleteSavedSearch(ctx context.Context, id string) error {
	return queryDeleteSavedSearch(ctx, s.tx, id)
}

func (s *txStore) SearchSavedSearches(ctx context.Context, q model.SavedSearchQuery) ([]*model.SavedSearch, error) {
	return querySearchSavedSearches(ctx, s.tx, q)
}

func (s *txStore) GetDefaultSavedSearch(ctx context.Context, owner, listing string, contextID int64) (*model.SavedSearch, error) {
	return queryGetDefaultSavedSearch(ctx, s.tx, owner, listing, contextID)
}

func (s *txStore) ClearDefaultSavedSearch(ctx context.Context, owner, listing string, contextID int64, exceptID string) error {
	return queryClearDefaultSavedSearch(ctx, s.tx, owner, listing, contextID, exceptID)
}

func (s *txStore) ListAllSavedSearches(ctx context.Context) ([]*model.SavedSearch, error) {
	return queryListAllSavedSearches(ctx, s.tx)
}

func (s *txStore) CustomFields(ctx context.Context, contextLevel string) ([]model.CustomField, error) {
	return queryCustomFields(ctx, s.tx, contextLevel)
}

func (s *txStore) Programs(ctx context.Context) ([]model.Choice, error) {
	return queryPrograms(ctx, s.tx)
}

func (s *txStore) ProgramCourses(ctx context.Context) (map[string][]model.Choice, error) {
	return queryProgramCourses(ctx, s.tx)
}

func (s *txStore) SetConfig(ctx context.Context, config *model.Config) error {
	return querySetConfig(ctx, s.tx, config)
}

func (s *txStore) GetConfig(ctx context.Context, key string) (*model.Config, error) {
	return queryGetConfig(ctx, s.tx, key)
}

func (s *txStore) ListConfigs(ctx context.Context, namespace string) ([]*model.Config, error) {
	return queryListConfigs(ctx, s.tx, namespace)
}

func (s *txStore) ListAllConfigs(ctx context.Context) ([]*model.Config, error) {
	return queryListAllConfigs(ctx, s.tx)
}

func (s *txStore) DeleteConfig(ctx context.Context, key string) error {
	return queryDeleteConfig(ctx, s.tx, key)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}

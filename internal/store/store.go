package store

import (
	"context"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
)

// Store defines the persistence interface for saved searches, configuration
// records and the host catalog lookups listings depend on.
type Store interface {
	// Saved searches
	CreateSavedSearch(ctx context.Context, s *model.SavedSearch) error
	GetSavedSearch(ctx context.Context, id string) (*model.SavedSearch, error)
	// LockSavedSearch reads a saved search and holds a row lock on it until
	// the surrounding transaction ends. Outside a transaction it is GetSavedSearch.
	LockSavedSearch(ctx context.Context, id string) (*model.SavedSearch, error)
	UpdateSavedSearch(ctx context.Context, s *model.SavedSearch) error
	DeleteSavedSearch(ctx context.Context, id string) error
	SearchSavedSearches(ctx context.Context, q model.SavedSearchQuery) ([]*model.SavedSearch, error)
	GetDefaultSavedSearch(ctx context.Context, owner, listing string, contextID int64) (*model.SavedSearch, error)
	// ClearDefaultSavedSearch unsets the default flag on every search of
	// owner in the listing context except exceptID.
	ClearDefaultSavedSearch(ctx context.Context, owner, listing string, contextID int64, exceptID string) error
	ListAllSavedSearches(ctx context.Context) ([]*model.SavedSearch, error)

	// Catalog
	CustomFields(ctx context.Context, contextLevel string) ([]model.CustomField, error)
	Programs(ctx context.Context) ([]model.Choice, error)
	ProgramCourses(ctx context.Context) (map[string][]model.Choice, error)

	// Configs
	SetConfig(ctx context.Context, config *model.Config) error
	GetConfig(ctx context.Context, key string) (*model.Config, error)
	ListConfigs(ctx context.Context, namespace string) ([]*model.Config, error)
	ListAllConfigs(ctx context.Context) ([]*model.Config, error)
	DeleteConfig(ctx context.Context, key string) error

	// Executor returns the handle listing queries run against.
	Executor() query.Executor

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

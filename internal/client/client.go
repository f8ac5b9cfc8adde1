// Package client provides a transport-agnostic interface for the datatable
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"encoding/json"
	"io"

	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/model"
)

// Client is the interface the dt CLI commands use to talk to the datatable
// server. It is implemented by HTTPClient.
type Client interface {
	// Listings
	GetListing(ctx context.Context, req *ListingRequest) (*datatable.Response, error)
	FilterOptions(ctx context.Context, req *FilterOptionsRequest) ([]model.Choice, error)
	Export(ctx context.Context, req *ListingRequest, w io.Writer) error

	// Saved searches
	SearchSaved(ctx context.Context, req *SearchSavedRequest) ([]model.SavedSearchSummary, error)
	SaveSearch(ctx context.Context, req *SaveSearchRequest) (*SaveSearchResponse, error)
	DeleteSearch(ctx context.Context, id string) error

	// Config
	SetConfig(ctx context.Context, key string, value json.RawMessage) (*model.Config, error)
	GetConfig(ctx context.Context, key string) (*model.Config, error)
	ListConfigs(ctx context.Context, namespace string) ([]*model.Config, error)
	DeleteConfig(ctx context.Context, key string) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// ListingRequest selects one page of a listing. Params carries the
// listing's context parameters, such as courseid.
type ListingRequest struct {
	Kind    string
	Params  map[string]string
	Filters map[string][]any
	Page    int
	Sort    string
}

// FilterOptionsRequest asks for the child options of a dependent filter.
type FilterOptionsRequest struct {
	Kind   string
	Params map[string]string
	Filter string
	Parent string
}

// SearchSavedRequest lists the saved searches visible in a listing context.
type SearchSavedRequest struct {
	Kind   string
	Params map[string]string
	Query  string
	Limit  int
}

// SaveSearchRequest stores a filter set. An empty ID creates a new search.
type SaveSearchRequest struct {
	ID        string
	Kind      string
	Params    map[string]string
	Name      string
	Shared    bool
	IsDefault bool
	Filters   map[string][]any
}

// SaveSearchResponse is the result of SaveSearch. CopiedFrom is set when the
// save created a copy of a search owned by someone else.
type SaveSearchResponse struct {
	ID         string `json:"id"`
	Created    bool   `json:"created"`
	CopiedFrom string `json:"copiedfrom,omitempty"`
}

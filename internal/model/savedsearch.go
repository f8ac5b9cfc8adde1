package model

import "time"

// SavedSearch is a named filter set persisted for a listing context.
// Owner is the principal that created it; Shared searches are visible to
// every principal viewing the same context.
type SavedSearch struct {
	ID        string    `json:"id"`
	Listing   string    `json:"listing"`
	ContextID int64     `json:"contextid"`
	Owner     string    `json:"owner"`
	Shared    bool      `json:"shared"`
	Name      string    `json:"name"`
	Filters   FilterSet `json:"filters"`
	IsDefault bool      `json:"isdefault"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SavedSearchSummary is the search result shape returned to a viewer.
type SavedSearchSummary struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Shared    bool             `json:"shared"`
	IsDefault bool             `json:"isdefault"`
	CanEdit   bool             `json:"canedit"`
	Filters   map[string][]any `json:"filters"`
}

// Summarize returns the summary of s as seen by principal.
func (s *SavedSearch) Summarize(principal string) SavedSearchSummary {
	return SavedSearchSummary{
		ID:        s.ID,
		Name:      s.Name,
		Shared:    s.Shared,
		IsDefault: s.IsDefault,
		CanEdit:   s.Owner == principal,
		Filters:   s.Filters.Wire(),
	}
}

// SavedSearchQuery selects the saved searches visible to Principal in one
// listing context. Text matches a substring of the name, ignoring case.
type SavedSearchQuery struct {
	Listing   string
	ContextID int64
	Principal string
	Text      string
	Limit     int
}

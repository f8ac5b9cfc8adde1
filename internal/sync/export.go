package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/datatable/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version          string    `json:"version"`
	Type             string    `json:"type"`
	Timestamp        time.Time `json:"timestamp"`
	SavedSearchCount int       `json:"saved_search_count"`
	ConfigCount      int       `json:"config_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every saved search and config record in the store as
// JSONL to w. Saved searches are sorted by ID, configs by key.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	searches, err := s.ListAllSavedSearches(ctx)
	if err != nil {
		return fmt.Errorf("list saved searches: %w", err)
	}
	sort.Slice(searches, func(i, j int) bool {
		return searches[i].ID < searches[j].ID
	})

	configs, err := s.ListAllConfigs(ctx)
	if err != nil {
		return fmt.Errorf("list configs: %w", err)
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Key < configs[j].Key
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:          "1",
		Type:             "header",
		Timestamp:        time.Now().UTC(),
		SavedSearchCount: len(searches),
		ConfigCount:      len(configs),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, ss := range searches {
		if err := enc.Encode(record{Type: "saved_search", Data: ss}); err != nil {
			return fmt.Errorf("encode saved search %s: %w", ss.ID, err)
		}
	}
	for _, c := range configs {
		if err := enc.Encode(record{Type: "config", Data: c}); err != nil {
			return fmt.Errorf("encode config %s: %w", c.Key, err)
		}
	}
	return nil
}

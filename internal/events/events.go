// Package events publishes saved-search and configuration changes on the
// message bus and lets other instances react to them.
package events

import (
	"context"

	"github.com/alfredjeanlab/datatable/internal/model"
)

// Event topic constants
const (
	TopicSavedSearchSaved   = "datatable.savedsearch.saved"
	TopicSavedSearchDeleted = "datatable.savedsearch.deleted"

	TopicConfigUpdated = "datatable.config.updated"
	TopicConfigDeleted = "datatable.config.deleted"

	// TopicConfigAll matches every config topic.
	TopicConfigAll = "datatable.config.>"
)

// SavedSearchSaved is emitted after a saved search is created or updated.
// CopiedFrom is set when the save produced a copy of another principal's search.
type SavedSearchSaved struct {
	Search     *model.SavedSearch `json:"search"`
	Created    bool               `json:"created"`
	CopiedFrom string             `json:"copied_from,omitempty"`
}

type SavedSearchDeleted struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Listing   string `json:"listing"`
	ContextID int64  `json:"contextid"`
}

// ConfigChanged is emitted for both config topics.
type ConfigChanged struct {
	Key string `json:"key"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

package model

import (
	"encoding/json"
	"time"
)

// Config is a key-value configuration record stored as JSONB.
// Keys use the format "{namespace}:{name}" (e.g. "visibility:course",
// "listing:course_classes", "capabilities:alice").
type Config struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListingConfig is the per-listing option record stored as "listing:<kind>".
type ListingConfig struct {
	Capability string `json:"capability,omitempty"`
	PerPage    int    `json:"perpage,omitempty"`
}

package model

import "encoding/json"

// VisibilityMode controls how a field is presented by default.
type VisibilityMode string

const (
	VisibilityVisible   VisibilityMode = "visible"
	VisibilityHidden    VisibilityMode = "hidden"
	VisibilityDefaulted VisibilityMode = "defaulted"
	VisibilityLocked    VisibilityMode = "locked"
)

// IsValid reports whether the mode is a known value.
func (m VisibilityMode) IsValid() bool {
	switch m {
	case VisibilityVisible, VisibilityHidden, VisibilityDefaulted, VisibilityLocked:
		return true
	}
	return false
}

// FieldVisibility is the configured presentation of one field. Default holds
// wire values applied for defaulted and locked fields.
type FieldVisibility struct {
	Mode    VisibilityMode    `json:"mode"`
	Default []json.RawMessage `json:"default,omitempty"`
}

// VisibilityConfig maps field names to their configured visibility for one
// context level. It is stored as the config record "visibility:<level>".
type VisibilityConfig map[string]FieldVisibility

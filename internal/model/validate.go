package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateSavedSearch checks a SavedSearch for constraint violations before
// it is persisted. It returns a *ValidationError if any rules fail.
func ValidateSavedSearch(s *SavedSearch) error {
	var ve ValidationError

	name := strings.TrimSpace(s.Name)
	if name == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "is required"})
	} else if len([]rune(name)) > 255 {
		ve.Errors = append(ve.Errors, FieldError{Field: "name", Message: "must be 255 characters or fewer"})
	}

	if strings.TrimSpace(s.Listing) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "listing", Message: "is required"})
	}

	if strings.TrimSpace(s.Owner) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "owner", Message: "is required"})
	}

	for filterName, vals := range s.Filters {
		for _, v := range vals {
			if !v.Kind.IsValid() {
				ve.Errors = append(ve.Errors, FieldError{
					Field:   "filters." + filterName,
					Message: fmt.Sprintf("invalid value kind %q", v.Kind),
				})
			}
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateVisibility checks every entry of a visibility configuration.
func ValidateVisibility(cfg VisibilityConfig) error {
	var ve ValidationError
	for field, fv := range cfg {
		if !fv.Mode.IsValid() {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   field,
				Message: fmt.Sprintf("invalid visibility mode %q", fv.Mode),
			})
		}
		if fv.Mode == VisibilityLocked && len(fv.Default) == 0 {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   field,
				Message: "locked fields require a default value",
			})
		}
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// Package idgen generates identifiers: short nanoid saved-search ids and
// uuid request ids.
package idgen

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// SavedSearchPrefix is prepended to every saved-search id.
const SavedSearchPrefix = "ss-"

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 12
)

var savedSearchPattern = regexp.MustCompile(`^` + SavedSearchPrefix + `[A-Za-z0-9]{` + fmt.Sprint(length) + `}$`)

// SavedSearch returns a new saved-search id.
func SavedSearch() (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return SavedSearchPrefix + id, nil
}

// IsSavedSearch reports whether s has the shape of a saved-search id.
func IsSavedSearch(s string) bool {
	return savedSearchPattern.MatchString(s)
}

// Request returns a new request id.
func Request() string {
	return uuid.NewString()
}

// ValidRequest reports whether s is acceptable as a client supplied request id.
func ValidRequest(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

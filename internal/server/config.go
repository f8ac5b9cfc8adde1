package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alfredjeanlab/datatable/internal/auth"
	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/listing"
	"github.com/alfredjeanlab/datatable/internal/model"
)

// Config record namespaces read by the server.
const (
	nsVisibility   = "visibility"
	nsListing      = "listing"
	nsCapabilities = "capabilities"
)

// ConfigCapability is required to read or change config records.
const ConfigCapability = "datatable:configure"

// maxPerPage bounds the page size a listing record may configure.
const maxPerPage = 500

// optionsCache memoizes the config records that make up listing options.
// Missing records are cached too. Entries are dropped on local writes and
// on config events from other instances. Each invalidation bumps the key's
// generation; a load that started under an older generation is returned to
// its caller but not cached.
type optionsCache struct {
	source auth.ConfigSource

	mu      sync.RWMutex
	entries map[string]cachedConfig
	gens    map[string]uint64
}

type cachedConfig struct {
	value json.RawMessage
	found bool
}

func newOptionsCache(source auth.ConfigSource) *optionsCache {
	return &optionsCache{
		source:  source,
		entries: make(map[string]cachedConfig),
		gens:    make(map[string]uint64),
	}
}

func (c *optionsCache) lookup(ctx context.Context, key string) (json.RawMessage, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	gen := c.gens[key]
	c.mu.RUnlock()
	if ok {
		return e.value, e.found, nil
	}

	cfg, err := c.source.GetConfig(ctx, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		e = cachedConfig{}
	case err != nil:
		return nil, false, fmt.Errorf("load config %s: %w", key, err)
	default:
		e = cachedConfig{value: cfg.Value, found: true}
	}

	c.mu.Lock()
	if c.gens[key] == gen {
		c.entries[key] = e
	}
	c.mu.Unlock()
	return e.value, e.found, nil
}

// get returns the options of listing kind at context level.
func (c *optionsCache) get(ctx context.Context, kind, level string) (datatable.Options, error) {
	var opts datatable.Options
	if level != "" {
		raw, ok, err := c.lookup(ctx, nsVisibility+":"+level)
		if err != nil {
			return opts, err
		}
		if ok {
			if err := json.Unmarshal(raw, &opts.Visibility); err != nil {
				return opts, fmt.Errorf("decode %s:%s: %w", nsVisibility, level, err)
			}
		}
	}

	raw, ok, err := c.lookup(ctx, nsListing+":"+kind)
	if err != nil {
		return opts, err
	}
	if ok {
		var lc model.ListingConfig
		if err := json.Unmarshal(raw, &lc); err != nil {
			return opts, fmt.Errorf("decode %s:%s: %w", nsListing, kind, err)
		}
		opts.PerPage = lc.PerPage
		opts.Capability = lc.Capability
	}
	return opts, nil
}

func (c *optionsCache) invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
}

// validateConfig checks a record before it is stored. Records in the
// namespaces the server reads must decode into their typed form; any other
// namespace only needs valid JSON.
func validateConfig(key string, value json.RawMessage) error {
	ns, name, ok := strings.Cut(key, ":")
	if !ok || ns == "" || name == "" {
		return fieldError("key", "must have the form namespace:name")
	}
	if len(bytes.TrimSpace(value)) == 0 || !json.Valid(value) {
		return fieldError("value", "must be valid JSON")
	}

	switch ns {
	case nsVisibility:
		var vc model.VisibilityConfig
		if err := strictDecode(value, &vc); err != nil {
			return fieldError("value", err.Error())
		}
		return model.ValidateVisibility(vc)
	case nsListing:
		if !listing.Known(name) {
			return fieldError("key", fmt.Sprintf("unknown listing %q", name))
		}
		var lc model.ListingConfig
		if err := strictDecode(value, &lc); err != nil {
			return fieldError("value", err.Error())
		}
		if lc.PerPage < 0 || lc.PerPage > maxPerPage {
			return fieldError("perpage", fmt.Sprintf("must be between 0 and %d", maxPerPage))
		}
	case nsCapabilities:
		var grants []string
		if err := strictDecode(value, &grants); err != nil {
			return fieldError("value", "must be an array of capability strings")
		}
	}
	return nil
}

func strictDecode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func fieldError(field, msg string) *model.ValidationError {
	return &model.ValidationError{Errors: []model.FieldError{{Field: field, Message: msg}}}
}

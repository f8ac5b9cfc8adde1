// Package savedsearch implements saved-search semantics on top of the store:
// ownership checks, copy-on-foreign-save, a single default per listing
// context, and serialized mutations per principal and search.
package savedsearch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/events"
	"github.com/alfredjeanlab/datatable/internal/idgen"
	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/store"
)

var (
	// ErrNotFound is returned for an unknown saved-search id.
	ErrNotFound = errors.New("saved search not found")
	// ErrForbidden is returned when a principal deletes a search it does not own.
	ErrForbidden = errors.New("saved search belongs to another user")
)

// SaveRequest is the payload of a save. An empty ID creates a new search.
type SaveRequest struct {
	ID        string
	Listing   string
	ContextID int64
	Name      string
	Shared    bool
	IsDefault bool
	Filters   model.FilterSet
}

// SaveResult reports what a save did. CopiedFrom is set when the request
// named a search the principal could not update in place.
type SaveResult struct {
	Search     *model.SavedSearch
	Created    bool
	CopiedFrom string
}

// Service coordinates saved-search operations.
type Service struct {
	store     store.Store
	publisher events.Publisher
	logger    *slog.Logger
	locks     keyedMutex
}

// New returns a Service. A nil publisher discards events.
func New(s store.Store, pub events.Publisher, logger *slog.Logger) *Service {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, publisher: pub, logger: logger}
}

// Search returns the searches of the listing context visible to principal:
// its own and every shared one, optionally narrowed by a name substring.
func (s *Service) Search(ctx context.Context, principal string, q model.SavedSearchQuery) ([]model.SavedSearchSummary, error) {
	q.Principal = principal
	found, err := s.store.SearchSavedSearches(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search saved searches: %w", err)
	}
	out := make([]model.SavedSearchSummary, 0, len(found))
	for _, ss := range found {
		out = append(out, ss.Summarize(principal))
	}
	return out, nil
}

// Default returns the principal's default search for the listing context,
// or nil when there is none.
func (s *Service) Default(ctx context.Context, principal, listing string, contextID int64) (*model.SavedSearch, error) {
	ss, err := s.store.GetDefaultSavedSearch(ctx, principal, listing, contextID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get default saved search: %w", err)
	}
	return ss, nil
}

// Save creates or updates a saved search. A request naming a search owned by
// another principal, or owned by principal but in a different listing
// context, never touches that record: a new search owned by principal is
// created instead.
func (s *Service) Save(ctx context.Context, principal string, req SaveRequest) (*SaveResult, error) {
	ss := &model.SavedSearch{
		ID:        strings.TrimSpace(req.ID),
		Listing:   req.Listing,
		ContextID: req.ContextID,
		Owner:     principal,
		Shared:    req.Shared,
		Name:      strings.TrimSpace(req.Name),
		Filters:   req.Filters,
		IsDefault: req.IsDefault,
	}
	if ss.Filters == nil {
		ss.Filters = model.FilterSet{}
	}
	if err := model.ValidateSavedSearch(ss); err != nil {
		return nil, err
	}

	if ss.ID == "" {
		res, err := s.create(ctx, ss, "")
		if err != nil {
			return nil, err
		}
		s.publishSaved(ctx, res)
		return res, nil
	}

	unlock := s.locks.lock(principal + "\x00" + ss.ID)
	defer unlock()

	var res *SaveResult
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		cur, err := tx.LockSavedSearch(ctx, ss.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load saved search %s: %w", ss.ID, err)
		}

		if cur.Owner != principal || cur.Listing != ss.Listing || cur.ContextID != ss.ContextID {
			from := ss.ID
			ss.ID = ""
			res, err = createIn(ctx, tx, ss, from)
			return err
		}

		if ss.IsDefault {
			if err := tx.ClearDefaultSavedSearch(ctx, principal, ss.Listing, ss.ContextID, ss.ID); err != nil {
				return fmt.Errorf("clear default: %w", err)
			}
		}
		if err := tx.UpdateSavedSearch(ctx, ss); err != nil {
			return fmt.Errorf("update saved search %s: %w", ss.ID, err)
		}
		res = &SaveResult{Search: ss}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.CopiedFrom != "" {
		s.logger.Info("saved search copied", "from", res.CopiedFrom, "id", res.Search.ID, "principal", principal)
	}
	s.publishSaved(ctx, res)
	return res, nil
}

func (s *Service) create(ctx context.Context, ss *model.SavedSearch, from string) (*SaveResult, error) {
	var res *SaveResult
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		var err error
		res, err = createIn(ctx, tx, ss, from)
		return err
	})
	return res, err
}

func createIn(ctx context.Context, tx store.Store, ss *model.SavedSearch, from string) (*SaveResult, error) {
	id, err := idgen.SavedSearch()
	if err != nil {
		return nil, err
	}
	ss.ID = id
	if ss.IsDefault {
		if err := tx.ClearDefaultSavedSearch(ctx, ss.Owner, ss.Listing, ss.ContextID, ss.ID); err != nil {
			return nil, fmt.Errorf("clear default: %w", err)
		}
	}
	if err := tx.CreateSavedSearch(ctx, ss); err != nil {
		return nil, fmt.Errorf("create saved search: %w", err)
	}
	return &SaveResult{Search: ss, Created: true, CopiedFrom: from}, nil
}

// Delete removes a search owned by principal.
func (s *Service) Delete(ctx context.Context, principal, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNotFound
	}

	unlock := s.locks.lock(principal + "\x00" + id)
	defer unlock()

	var deleted *model.SavedSearch
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		cur, err := tx.LockSavedSearch(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load saved search %s: %w", id, err)
		}
		if cur.Owner != principal {
			return ErrForbidden
		}
		if err := tx.DeleteSavedSearch(ctx, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("delete saved search %s: %w", id, err)
		}
		deleted = cur
		return nil
	})
	if err != nil {
		return err
	}

	ev := events.SavedSearchDeleted{ID: id, Owner: deleted.Owner, Listing: deleted.Listing, ContextID: deleted.ContextID}
	if err := s.publisher.Publish(ctx, events.TopicSavedSearchDeleted, ev); err != nil {
		s.logger.Warn("publish failed", "topic", events.TopicSavedSearchDeleted, "err", err)
	}
	return nil
}

func (s *Service) publishSaved(ctx context.Context, res *SaveResult) {
	ev := events.SavedSearchSaved{Search: res.Search, Created: res.Created, CopiedFrom: res.CopiedFrom}
	if err := s.publisher.Publish(ctx, events.TopicSavedSearchSaved, ev); err != nil {
		s.logger.Warn("publish failed", "topic", events.TopicSavedSearchSaved, "err", err)
	}
}

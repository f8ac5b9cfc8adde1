// Package memory implements store.Store in process memory. It backs tests
// and single-process tooling; listing queries still need a SQL executor.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/query"
	"github.com/alfredjeanlab/datatable/internal/store"
)

// ErrDuplicateDefault mirrors the unique index that allows one default
// search per owner and listing context.
var ErrDuplicateDefault = errors.New("duplicate default saved search")

// ErrDuplicateID is returned when creating a search whose id exists.
var ErrDuplicateID = errors.New("duplicate saved search id")

// Store is an in-memory store.Store.
type Store struct {
	txMu sync.Mutex

	mu             sync.RWMutex
	searches       map[string]*model.SavedSearch
	configs        map[string]*model.Config
	fields         map[string][]model.CustomField
	programs       []model.Choice
	programCourses map[string][]model.Choice
	db             query.Executor
	now            func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		searches:       make(map[string]*model.SavedSearch),
		configs:        make(map[string]*model.Config),
		fields:         make(map[string][]model.CustomField),
		programCourses: make(map[string][]model.Choice),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// SetExecutor sets the handle returned by Executor.
func (s *Store) SetExecutor(db query.Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db = db
}

// SetCustomFields replaces the custom fields of a context level.
func (s *Store) SetCustomFields(level string, fields []model.CustomField) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[level] = append([]model.CustomField(nil), fields...)
}

// SetPrograms replaces the program choices.
func (s *Store) SetPrograms(programs []model.Choice, courses map[string][]model.Choice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs = append([]model.Choice(nil), programs...)
	s.programCourses = make(map[string][]model.Choice, len(courses))
	for k, v := range courses {
		s.programCourses[k] = append([]model.Choice(nil), v...)
	}
}

func (s *Store) Executor() query.Executor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func cloneSearch(ss *model.SavedSearch) *model.SavedSearch {
	c := *ss
	if ss.Filters != nil {
		c.Filters = make(model.FilterSet, len(ss.Filters))
		for k, v := range ss.Filters {
			c.Filters[k] = append([]model.Value(nil), v...)
		}
	}
	return &c
}

// defaultTaken reports whether a default other than ss exists in ss's context.
func (s *Store) defaultTaken(ss *model.SavedSearch) bool {
	if !ss.IsDefault {
		return false
	}
	for _, o := range s.searches {
		if o.ID != ss.ID && o.IsDefault && o.Owner == ss.Owner && o.Listing == ss.Listing && o.ContextID == ss.ContextID {
			return true
		}
	}
	return false
}

func (s *Store) CreateSavedSearch(_ context.Context, ss *model.SavedSearch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.searches[ss.ID]; ok {
		return ErrDuplicateID
	}
	if s.defaultTaken(ss) {
		return ErrDuplicateDefault
	}
	now := s.now()
	ss.CreatedAt, ss.UpdatedAt = now, now
	s.searches[ss.ID] = cloneSearch(ss)
	return nil
}

func (s *Store) GetSavedSearch(_ context.Context, id string) (*model.SavedSearch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ss, ok := s.searches[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneSearch(ss), nil
}

func (s *Store) LockSavedSearch(ctx context.Context, id string) (*model.SavedSearch, error) {
	return s.GetSavedSearch(ctx, id)
}

func (s *Store) UpdateSavedSearch(_ context.Context, ss *model.SavedSearch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.searches[ss.ID]
	if !ok {
		return sql.ErrNoRows
	}
	next := cloneSearch(cur)
	next.Name, next.Shared, next.Filters, next.IsDefault = ss.Name, ss.Shared, ss.Filters, ss.IsDefault
	if s.defaultTaken(next) {
		return ErrDuplicateDefault
	}
	next.UpdatedAt = s.now()
	s.searches[ss.ID] = cloneSearch(next)
	ss.CreatedAt, ss.UpdatedAt = next.CreatedAt, next.UpdatedAt
	return nil
}

func (s *Store) DeleteSavedSearch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.searches[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.searches, id)
	return nil
}

func (s *Store) SearchSavedSearches(_ context.Context, q model.SavedSearchQuery) ([]*model.SavedSearch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text := strings.ToLower(strings.TrimSpace(q.Text))
	var out []*model.SavedSearch
	for _, ss := range s.searches {
		if ss.Listing != q.Listing || ss.ContextID != q.ContextID {
			continue
		}
		if ss.Owner != q.Principal && !ss.Shared {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(ss.Name), text) {
			continue
		}
		out = append(out, cloneSearch(ss))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) GetDefaultSavedSearch(_ context.Context, owner, listing string, contextID int64) (*model.SavedSearch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ss := range s.searches {
		if ss.IsDefault && ss.Owner == owner && ss.Listing == listing && ss.ContextID == contextID {
			return cloneSearch(ss), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *Store) ClearDefaultSavedSearch(_ context.Context, owner, listing string, contextID int64, exceptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ss := range s.searches {
		if ss.ID != exceptID && ss.IsDefault && ss.Owner == owner && ss.Listing == listing && ss.ContextID == contextID {
			ss.IsDefault = false
			ss.UpdatedAt = s.now()
		}
	}
	return nil
}

func (s *Store) ListAllSavedSearches(_ context.Context) ([]*model.SavedSearch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.SavedSearch, 0, len(s.searches))
	for _, ss := range s.searches {
		out = append(out, cloneSearch(ss))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CustomFields(_ context.Context, contextLevel string) ([]model.CustomField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.CustomField(nil), s.fields[contextLevel]...), nil
}

func (s *Store) Programs(context.Context) ([]model.Choice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Choice(nil), s.programs...), nil
}

func (s *Store) ProgramCourses(context.Context) (map[string][]model.Choice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]model.Choice, len(s.programCourses))
	for k, v := range s.programCourses {
		out[k] = append([]model.Choice(nil), v...)
	}
	return out, nil
}

func (s *Store) SetConfig(_ context.Context, c *model.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if cur, ok := s.configs[c.Key]; ok {
		c.CreatedAt = cur.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	cp := *c
	s.configs[c.Key] = &cp
	return nil
}

func (s *Store) GetConfig(_ context.Context, key string) (*model.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListConfigs(_ context.Context, namespace string) ([]*model.Config, error) {
	return s.listConfigs(namespace + ":"), nil
}

func (s *Store) ListAllConfigs(_ context.Context) ([]*model.Config, error) {
	return s.listConfigs(""), nil
}

func (s *Store) listConfigs(prefix string) []*model.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Config
	for k, c := range s.configs {
		if strings.HasPrefix(k, prefix) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Store) DeleteConfig(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[key]; !ok {
		return sql.ErrNoRows
	}
	delete(s.configs, key)
	return nil
}

// RunInTransaction serializes transactions and restores the previous
// contents when fn fails.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	searches := make(map[string]*model.SavedSearch, len(s.searches))
	for k, v := range s.searches {
		searches[k] = cloneSearch(v)
	}
	configs := make(map[string]*model.Config, len(s.configs))
	for k, v := range s.configs {
		cp := *v
		configs[k] = &cp
	}
	s.mu.RUnlock()

	if err := fn(tx{s}); err != nil {
		s.mu.Lock()
		s.searches, s.configs = searches, configs
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

// tx is the view handed to RunInTransaction callbacks.
type tx struct {
	*Store
}

func (t tx) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t tx) Close() error { return nil }

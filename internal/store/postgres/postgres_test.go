package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// savedSearchRowColumns is the column list for scanSavedSearch results.
var savedSearchRowColumns = []string{
	"id", "listing", "context_id", "owner", "shared", "name",
	"filters", "is_default", "created_at", "updated_at",
}

func encodedFilters(t *testing.T, fs model.FilterSet) []byte {
	t.Helper()
	data, err := model.EncodeFilterSet(fs)
	if err != nil {
		t.Fatalf("encode filters: %v", err)
	}
	return data
}

func TestQueryCreateSavedSearch(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	fs := model.FilterSet{"idnumber": {model.TextValue("abc")}}
	ss := &model.SavedSearch{
		ID: "ss-abc123", Listing: "course_classes", ContextID: 101, Owner: "alice",
		Name: "Mine", Filters: fs, IsDefault: true,
	}
	mock.ExpectQuery("INSERT INTO saved_searches").
		WithArgs("ss-abc123", "course_classes", int64(101), "alice", false, "Mine", encodedFilters(t, fs), true).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	if err := queryCreateSavedSearch(context.Background(), db, ss); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ss.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at to be set, got %v", ss.CreatedAt)
	}
}

func TestQueryGetSavedSearch(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	fs := model.FilterSet{"startdate": {model.DateOf(2024, 3, 10)}}
	mock.ExpectQuery("SELECT .+ FROM saved_searches WHERE id = \\$1$").WithArgs("ss-1").
		WillReturnRows(sqlmock.NewRows(savedSearchRowColumns).
			AddRow("ss-1", "course_classes", int64(101), "alice", true, "March", encodedFilters(t, fs), false, now, now))

	ss, err := queryGetSavedSearch(context.Background(), db, "ss-1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ss.Owner != "alice" || !ss.Shared || ss.ContextID != 101 {
		t.Fatalf("got %+v", ss)
	}
	if !reflect.DeepEqual(ss.Filters, fs) {
		t.Fatalf("filters = %+v, want %+v", ss.Filters, fs)
	}
}

func TestQueryGetSavedSearch_Lock(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM saved_searches WHERE id = \\$1 FOR UPDATE").WithArgs("ss-1").
		WillReturnError(sql.ErrNoRows)

	if _, err := queryGetSavedSearch(context.Background(), db, "ss-1", true); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestQueryGetSavedSearch_CorruptFilters(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM saved_searches").WithArgs("ss-1").
		WillReturnRows(sqlmock.NewRows(savedSearchRowColumns).
			AddRow("ss-1", "users", int64(0), "alice", false, "Old", []byte(`a:1:{s:4:"name";}`), false, now, now))

	if _, err := queryGetSavedSearch(context.Background(), db, "ss-1", false); err == nil {
		t.Fatal("expected an error for an undecodable filter set")
	}
}

func TestQueryUpdateSavedSearch(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	ss := &model.SavedSearch{ID: "ss-1", Name: "Renamed", Shared: true}
	mock.ExpectQuery("UPDATE saved_searches SET").
		WithArgs("ss-1", "Renamed", true, sqlmock.AnyArg(), false).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	if err := queryUpdateSavedSearch(context.Background(), db, ss); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryUpdateSavedSearch_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE saved_searches SET").
		WithArgs("nonexistent", "x", false, sqlmock.AnyArg(), false).
		WillReturnError(sql.ErrNoRows)

	ss := &model.SavedSearch{ID: "nonexistent", Name: "x"}
	if err := queryUpdateSavedSearch(context.Background(), db, ss); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestQueryDeleteSavedSearch(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM saved_searches WHERE id = \\$1").WithArgs("ss-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryDeleteSavedSearch(context.Background(), db, "ss-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryDeleteSavedSearch_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM saved_searches WHERE id = \\$1").WithArgs("nonexistent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := queryDeleteSavedSearch(context.Background(), db, "nonexistent"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestQuerySearchSavedSearches(t *testing.T) {
	for _, tc := range []struct {
		name    string
		q       model.SavedSearchQuery
		pattern string
		args    []any
	}{
		{
			name:    "no text",
			q:       model.SavedSearchQuery{Listing: "users", Principal: "bob"},
			pattern: `WHERE listing = \$1 AND context_id = \$2 AND \(owner = \$3 OR shared\) ORDER BY is_default DESC, name, id LIMIT \$4`,
			args:    []any{"users", int64(0), "bob", defaultSearchLimit},
		},
		{
			name:    "text is escaped",
			q:       model.SavedSearchQuery{Listing: "course_classes", ContextID: 101, Principal: "bob", Text: " 50%_ ", Limit: 5},
			pattern: `\(owner = \$3 OR shared\) AND name ILIKE \$4 ESCAPE '\\' ORDER BY .+ LIMIT \$5`,
			args:    []any{"course_classes", int64(101), "bob", `%50\%\_%`, 5},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			now := time.Now().UTC()
			args := make([]driver.Value, len(tc.args))
			for i, a := range tc.args {
				args[i] = a
			}
			mock.ExpectQuery(tc.pattern).WithArgs(args...).
				WillReturnRows(sqlmock.NewRows(savedSearchRowColumns).
					AddRow("ss-1", tc.q.Listing, tc.q.ContextID, "alice", true, "Shared", []byte(`{"version":1,"filters":{}}`), false, now, now).
					AddRow("ss-2", tc.q.Listing, tc.q.ContextID, "bob", false, "Own", nil, false, now, now))

			got, err := querySearchSavedSearches(context.Background(), db, tc.q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 2 || got[0].ID != "ss-1" || got[1].ID != "ss-2" {
				t.Fatalf("unexpected result: %+v", got)
			}
			if got[1].Filters != nil {
				t.Fatalf("expected nil filters for a NULL column, got %v", got[1].Filters)
			}
		})
	}
}

func TestQueryGetDefaultSavedSearch(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM saved_searches\\s+WHERE owner = \\$1 AND listing = \\$2 AND context_id = \\$3 AND is_default").
		WithArgs("alice", "users", int64(0)).
		WillReturnError(sql.ErrNoRows)

	if _, err := queryGetDefaultSavedSearch(context.Background(), db, "alice", "users", 0); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestQueryClearDefaultSavedSearch(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE saved_searches SET is_default = FALSE").
		WithArgs("alice", "users", int64(0), "ss-keep").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryClearDefaultSavedSearch(context.Background(), db, "alice", "users", 0, "ss-keep"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryCustomFields(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM custom_fields\\s+WHERE contextlevel = \\$1").WithArgs("course").
		WillReturnRows(sqlmock.NewRows([]string{"id", "shortname", "name", "datatype", "contextlevel", "multivalued", "options", "defaultdata"}).
			AddRow(int64(5), "hours", "Hours", "int", "course", false, nil, "0").
			AddRow(int64(6), "region", "Region", "menu", "course", true, "North\n\n South \nEast", nil))

	got, err := queryCustomFields(context.Background(), db, "course")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.CustomField{
		{ID: 5, Shortname: "hours", Name: "Hours", DataType: model.CustomFieldInt, ContextLevel: "course", Default: "0"},
		{ID: 6, Shortname: "region", Name: "Region", DataType: model.CustomFieldMenu, ContextLevel: "course",
			Multivalued: true, Options: []string{"North", "South", "East"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestQueryPrograms(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT id, name FROM programs ORDER BY name, id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(2), "Nursing").AddRow(int64(1), "Welding"))

	got, err := queryPrograms(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []model.Choice{{Value: "2", Label: "Nursing"}, {Value: "1", Label: "Welding"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestQueryProgramCourses(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT pc.programid, c.id, c.fullname").
		WillReturnRows(sqlmock.NewRows([]string{"programid", "id", "fullname"}).
			AddRow(int64(1), int64(11), "Anatomy").
			AddRow(int64(1), int64(12), "Pharmacology").
			AddRow(int64(2), int64(12), "Pharmacology"))

	got, err := queryProgramCourses(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got["1"]) != 2 || len(got["2"]) != 1 || got["2"][0].Value != "12" {
		t.Fatalf("unexpected map: %+v", got)
	}
}

func TestQuerySetConfig(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	config := &model.Config{Key: "visibility:course", Value: json.RawMessage(`{"credits":{"mode":"hidden"}}`)}
	mock.ExpectQuery("INSERT INTO configs").
		WithArgs("visibility:course", []byte(`{"credits":{"mode":"hidden"}}`)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	if err := querySetConfig(context.Background(), db, config); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestQueryGetConfig(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM configs WHERE key = \\$1").WithArgs("listing:users").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "created_at", "updated_at"}).
			AddRow("listing:users", []byte(`{}`), now, now))

	config, err := queryGetConfig(context.Background(), db, "listing:users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Key != "listing:users" {
		t.Fatalf("got key=%q", config.Key)
	}
}

func TestQueryGetConfig_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT .+ FROM configs WHERE key = \\$1").WithArgs("nonexistent").
		WillReturnError(sql.ErrNoRows)

	if _, err := queryGetConfig(context.Background(), db, "nonexistent"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestQueryListConfigs(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM configs WHERE key LIKE").WithArgs("visibility:%").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "created_at", "updated_at"}).
			AddRow("visibility:class", []byte(`{}`), now, now).
			AddRow("visibility:course", []byte(`{}`), now, now))

	configs, err := queryListConfigs(context.Background(), db, "visibility")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(configs))
	}
}

func TestQueryListConfigs_EscapesWildcards(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE key LIKE $1 ESCAPE '\'`)).WithArgs(`a\_\%:%`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "created_at", "updated_at"}))

	configs, err := queryListConfigs(context.Background(), db, "a_%")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(configs) != 0 {
		t.Fatalf("expected no configs, got %d", len(configs))
	}
}

func TestQueryListAllConfigs(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .+ FROM configs ORDER BY key").
		WillReturnRows(sqlmock.NewRows([]string{"key", "value", "created_at", "updated_at"}).
			AddRow("capabilities:alice", []byte(`[]`), now, now).
			AddRow("listing:users", []byte(`{}`), now, now))

	configs, err := queryListAllConfigs(context.Background(), db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(configs))
	}
	if configs[0].Key != "capabilities:alice" || configs[1].Key != "listing:users" {
		t.Fatalf("unexpected keys: %q, %q", configs[0].Key, configs[1].Key)
	}
}

func TestQueryDeleteConfig(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM configs WHERE key = \\$1").WithArgs("listing:users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryDeleteConfig(context.Background(), db, "listing:users"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueryDeleteConfig_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DELETE FROM configs WHERE key = \\$1").WithArgs("nonexistent").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := queryDeleteConfig(context.Background(), db, "nonexistent"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestRunInTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()
	s := NewWithDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM saved_searches WHERE id = \\$1 FOR UPDATE").WithArgs("ss-1").
		WillReturnRows(sqlmock.NewRows(savedSearchRowColumns).
			AddRow("ss-1", "users", int64(0), "alice", false, "Mine", nil, false, now, now))
	mock.ExpectExec("DELETE FROM saved_searches").WithArgs("ss-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		if _, err := tx.LockSavedSearch(context.Background(), "ss-1"); err != nil {
			return err
		}
		return tx.DeleteSavedSearch(context.Background(), "ss-1")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWithDB(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		// Nested calls reuse the transaction.
		return tx.RunInTransaction(context.Background(), func(store.Store) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestSplitOptions(t *testing.T) {
	if got := splitOptions(""); got != nil {
		t.Errorf("splitOptions(\"\") = %v, want nil", got)
	}
	if got := splitOptions("a\r\nb\n"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("splitOptions = %q", got)
	}
}

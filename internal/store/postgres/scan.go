package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/datatable/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanSavedSearch scans a single row into a model.SavedSearch.
// The row must contain columns in the order defined by savedSearchColumns.
func scanSavedSearch(row scannable) (*model.SavedSearch, error) {
	var s model.SavedSearch
	var filters []byte

	err := row.Scan(
		&s.ID,
		&s.Listing,
		&s.ContextID,
		&s.Owner,
		&s.Shared,
		&s.Name,
		&filters,
		&s.IsDefault,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(filters) > 0 {
		fs, err := model.DecodeFilterSet(filters)
		if err != nil {
			return nil, fmt.Errorf("decode filters of %s: %w", s.ID, err)
		}
		s.Filters = fs
	}
	return &s, nil
}

// scanSavedSearches scans multiple rows into a slice of model.SavedSearch pointers.
func scanSavedSearches(rows *sql.Rows) ([]*model.SavedSearch, error) {
	var out []*model.SavedSearch
	for rows.Next() {
		s, err := scanSavedSearch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanCustomFields scans custom field descriptors. Menu options are stored
// one per line.
func scanCustomFields(rows *sql.Rows) ([]model.CustomField, error) {
	var out []model.CustomField
	for rows.Next() {
		var (
			f           model.CustomField
			datatype    string
			multivalued sql.NullBool
			options     sql.NullString
			defaultData sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.Shortname, &f.Name, &datatype, &f.ContextLevel,
			&multivalued, &options, &defaultData); err != nil {
			return nil, err
		}
		f.DataType = model.CustomFieldType(datatype)
		f.Multivalued = multivalued.Bool
		f.Options = splitOptions(options.String)
		f.Default = defaultData.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// scanChoice scans an (id, label) row.
func scanChoice(row scannable) (model.Choice, error) {
	var id int64
	var c model.Choice
	if err := row.Scan(&id, &c.Label); err != nil {
		return model.Choice{}, err
	}
	c.Value = strconv.FormatInt(id, 10)
	return c, nil
}

// scanConfig scans a single row into a model.Config.
func scanConfig(row scannable) (*model.Config, error) {
	var c model.Config
	var value []byte
	err := row.Scan(&c.Key, &value, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Value = json.RawMessage(value)
	return &c, nil
}

// scanConfigs scans multiple rows into a slice of model.Config pointers.
func scanConfigs(rows *sql.Rows) ([]*model.Config, error) {
	var configs []*model.Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return configs, nil
}

func splitOptions(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

package model

// Row is one entity in a listing page.
type Row struct {
	ID     int64          `json:"id"`
	Header string         `json:"header"`
	Fields map[string]any `json:"fields"`
}

// Page is one page of listing results. Total is the number of matching
// entities independent of pagination.
type Page struct {
	Rows    []Row `json:"rows"`
	Total   int   `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"perpage"`
}

// Choice is one selectable option of an enumerated filter.
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// CustomFieldType is the declared data type of a custom field.
type CustomFieldType string

const (
	CustomFieldText     CustomFieldType = "text"
	CustomFieldChar     CustomFieldType = "char"
	CustomFieldInt      CustomFieldType = "int"
	CustomFieldNum      CustomFieldType = "num"
	CustomFieldBool     CustomFieldType = "bool"
	CustomFieldDatetime CustomFieldType = "datetime"
	CustomFieldMenu     CustomFieldType = "menu"
)

// CustomField describes a per-tenant attribute attached to an entity type.
// Values live in a key/value table keyed by (instanceid, fieldid).
type CustomField struct {
	ID           int64           `json:"id"`
	Shortname    string          `json:"shortname"`
	Name         string          `json:"name"`
	DataType     CustomFieldType `json:"datatype"`
	ContextLevel string          `json:"contextlevel"`
	Multivalued  bool            `json:"multivalued,omitempty"`
	Options      []string        `json:"options,omitempty"`
	Default      string          `json:"default,omitempty"`
}

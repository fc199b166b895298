package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON is a raw JSON column. It maps to jsonb on PostgreSQL and to text on
// SQLite. An empty value is stored as NULL.
type JSON json.RawMessage

// NewJSON encodes v. A nil v yields an empty JSON.
func NewJSON(v any) (JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error encoding json column: %w", err)
	}
	return JSON(b), nil
}

// IsNull reports whether the column holds no value.
func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// Decode unmarshals the column into v. A null column leaves v untouched.
func (j JSON) Decode(v any) error {
	if j.IsNull() {
		return nil
	}
	if err := json.Unmarshal(j, v); err != nil {
		return fmt.Errorf("error decoding json column: %w", err)
	}
	return nil
}

// Value implements driver.Valuer.
func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("invalid json column value")
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *JSON) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		*j = append(JSON(nil), v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("unsupported json column type %T", value)
	}
	if !json.Valid(*j) {
		return fmt.Errorf("invalid json in database")
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j.IsNull() {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

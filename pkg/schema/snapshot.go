// Package schema materializes database metadata into snapshots, ranks tables
// against natural-language queries, and carves byte-bounded slices for prompts.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is a point-in-time view of the database metadata consumed by the
// ranking, slicing and reasoning stages. A snapshot is immutable once
// returned; a refresh produces a new value.
type Snapshot struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Tables      map[string]*TableMeta  `json:"tables"`
	ForeignKeys []ForeignKey           `json:"foreign_keys"`
	Indexes     map[string][]IndexMeta `json:"indexes"`
	TableStats  map[string]TableStats  `json:"table_stats"`
}

// TableMeta describes one table. Keys in Snapshot.Tables are
// "<schema>.<name>".
type TableMeta struct {
	Schema      string   `json:"schema"`
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	RowEstimate int64    `json:"row_estimate"`
	SizeBytes   int64    `json:"size_bytes"`
	Columns     *Columns `json:"columns"`
}

// Key returns the snapshot key for the table.
func (t *TableMeta) Key() string {
	return t.Schema + "." + t.Name
}

// ColumnMeta describes one column.
type ColumnMeta struct {
	DataType     string  `json:"data_type"`
	DefaultValue *string `json:"default_value"`
	IsNotNull    bool    `json:"is_not_null"`
	Description  *string `json:"description"`
}

// ForeignKey is one pg_constraint row of contype 'f'. Table names are
// rendered by regclass and may be unqualified; downstream consumers ignore
// entries that do not match snapshot table keys.
type ForeignKey struct {
	Constraint   string `json:"constraint"`
	Definition   string `json:"definition"`
	Table        string `json:"table"`
	ForeignTable string `json:"foreign_table"`
}

// IndexMeta describes one index on a table.
type IndexMeta struct {
	Index      string `json:"index"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
}

// TableStats carries planner-facing size estimates for guardrail decisions.
type TableStats struct {
	RowEstimate int64 `json:"row_estimate"`
	SizeBytes   int64 `json:"size_bytes"`
}

// Slice is the byte-bounded subset of a snapshot sent to the LLM. Foreign
// keys are flattened to [table, column, foreign_table, foreign_column].
type Slice struct {
	Tables      map[string]*TableMeta `json:"tables"`
	ForeignKeys [][]string            `json:"foreign_keys"`
}

// Columns is an insertion-ordered map of column name to metadata. Column
// order (pg_attribute.attnum) must survive JSON round-trips: slice
// serialization, reasoner bounds checks and generated column lists all read
// columns positionally.
type Columns struct {
	names []string
	meta  map[string]ColumnMeta
}

// NewColumns returns an empty ordered column map.
func NewColumns() *Columns {
	return &Columns{meta: make(map[string]ColumnMeta)}
}

// Set adds or replaces a column. A new name is appended to the order.
func (c *Columns) Set(name string, m ColumnMeta) {
	if _, ok := c.meta[name]; !ok {
		c.names = append(c.names, name)
	}
	c.meta[name] = m
}

// Get returns the metadata for name.
func (c *Columns) Get(name string) (ColumnMeta, bool) {
	m, ok := c.meta[name]
	return m, ok
}

// Has reports whether name is a known column.
func (c *Columns) Has(name string) bool {
	_, ok := c.meta[name]
	return ok
}

// Len returns the number of columns.
func (c *Columns) Len() int {
	return len(c.names)
}

// Names returns column names in insertion order. The returned slice is
// shared; callers must not mutate it.
func (c *Columns) Names() []string {
	return c.names
}

// MarshalJSON encodes the columns as a JSON object in insertion order.
func (c *Columns) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(c.meta[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving its key order.
func (c *Columns) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("columns: expected JSON object, got %v", tok)
	}

	c.names = nil
	c.meta = make(map[string]ColumnMeta)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("columns: expected string key, got %v", keyTok)
		}
		var m ColumnMeta
		if err := dec.Decode(&m); err != nil {
			return fmt.Errorf("columns: decode %s: %w", name, err)
		}
		c.Set(name, m)
	}

	_, err = dec.Token()
	return err
}

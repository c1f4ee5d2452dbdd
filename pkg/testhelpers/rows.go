package testhelpers

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Rows is an in-memory pgx.Rows for tests that exercise query paths without
// a database. Data is row-major; values must already carry the Go types the
// code under test scans into.
type Rows struct {
	Columns []string
	Data    [][]any

	idx    int
	closed bool
}

// NewRows builds an in-memory result set.
func NewRows(columns []string, data [][]any) *Rows {
	return &Rows{Columns: columns, Data: data}
}

func (r *Rows) Close()                        { r.closed = true }
func (r *Rows) Err() error                    { return nil }
func (r *Rows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *Rows) RawValues() [][]byte           { return nil }
func (r *Rows) Conn() *pgx.Conn               { return nil }

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.Columns))
	for i, name := range r.Columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return fields
}

func (r *Rows) Next() bool {
	if r.closed || r.idx >= len(r.Data) {
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Values() ([]any, error) {
	if r.idx == 0 || r.idx > len(r.Data) {
		return nil, fmt.Errorf("testhelpers: Values called without Next")
	}
	return r.Data[r.idx-1], nil
}

func (r *Rows) Scan(dest ...any) error {
	row, err := r.Values()
	if err != nil {
		return err
	}
	if len(dest) != len(row) {
		return fmt.Errorf("testhelpers: Scan got %d destinations for %d values", len(dest), len(row))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("testhelpers: Scan destination %d is not a pointer", i)
		}
		elem := dv.Elem()
		if row[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		if !assignValue(elem, row[i]) {
			return fmt.Errorf("testhelpers: cannot scan %T into %T", row[i], d)
		}
	}
	return nil
}

var byteSliceType = reflect.TypeOf([]byte(nil))

func assignValue(elem reflect.Value, value any) bool {
	sv := reflect.ValueOf(value)
	t := elem.Type()
	switch {
	case sv.Type().AssignableTo(t):
		elem.Set(sv)
	case isNumericKind(sv.Kind()) && isNumericKind(t.Kind()):
		elem.Set(sv.Convert(t))
	case sv.Kind() == reflect.String && t == byteSliceType:
		elem.Set(sv.Convert(t))
	case sv.Type() == byteSliceType && t.Kind() == reflect.String:
		elem.Set(sv.Convert(t))
	default:
		return false
	}
	return true
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// QuerierFunc adapts a function to the engine's Querier interface so tests
// can route by statement text.
type QuerierFunc func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

// Query implements database.Querier.
func (f QuerierFunc) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return f(ctx, sql, args...)
}

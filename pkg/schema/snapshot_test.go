package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// makeTable builds a table with text columns in the given order.
func makeTable(schemaName, name, description string, columnNames ...string) *TableMeta {
	cols := NewColumns()
	for _, c := range columnNames {
		cols.Set(c, ColumnMeta{DataType: "text"})
	}
	t := &TableMeta{
		Schema:      schemaName,
		Name:        name,
		RowEstimate: 100,
		SizeBytes:   8192,
		Columns:     cols,
	}
	if description != "" {
		t.Description = strPtr(description)
	}
	return t
}

func TestColumns_PreservesInsertionOrder(t *testing.T) {
	cols := NewColumns()
	cols.Set("zebra", ColumnMeta{DataType: "text"})
	cols.Set("apple", ColumnMeta{DataType: "integer"})
	cols.Set("mango", ColumnMeta{DataType: "boolean"})

	assert.Equal(t, []string{"zebra", "apple", "mango"}, cols.Names())

	data, err := json.Marshal(cols)
	require.NoError(t, err)

	// Keys appear in insertion order, not alphabetical.
	s := string(data)
	assert.Less(t, strings.Index(s, `"zebra"`), strings.Index(s, `"apple"`))
	assert.Less(t, strings.Index(s, `"apple"`), strings.Index(s, `"mango"`))
}

func TestColumns_JSONRoundTrip(t *testing.T) {
	cols := NewColumns()
	cols.Set("id", ColumnMeta{DataType: "bigint", IsNotNull: true})
	cols.Set("status", ColumnMeta{DataType: "text", Description: strPtr("lifecycle state")})
	cols.Set("created_at", ColumnMeta{DataType: "timestamptz", DefaultValue: strPtr("now()")})

	data, err := json.Marshal(cols)
	require.NoError(t, err)

	var decoded Columns
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, cols.Names(), decoded.Names())
	got, ok := decoded.Get("status")
	require.True(t, ok)
	require.NotNil(t, got.Description)
	assert.Equal(t, "lifecycle state", *got.Description)
}

func TestColumns_SetReplacesWithoutDuplicating(t *testing.T) {
	cols := NewColumns()
	cols.Set("id", ColumnMeta{DataType: "integer"})
	cols.Set("id", ColumnMeta{DataType: "bigint"})

	assert.Equal(t, 1, cols.Len())
	got, ok := cols.Get("id")
	require.True(t, ok)
	assert.Equal(t, "bigint", got.DataType)
}

func TestColumns_UnmarshalRejectsNonObject(t *testing.T) {
	var cols Columns
	err := json.Unmarshal([]byte(`["not", "an", "object"]`), &cols)
	assert.Error(t, err)
}

func TestTableMeta_Key(t *testing.T) {
	tbl := makeTable("public", "claims", "")
	assert.Equal(t, "public.claims", tbl.Key())
}

func TestTableMeta_ColumnsSerializeInAttnumOrder(t *testing.T) {
	tbl := makeTable("public", "claims", "Insurance claims", "claim_id", "customer_id", "status")

	data, err := json.Marshal(tbl)
	require.NoError(t, err)

	var decoded TableMeta
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"claim_id", "customer_id", "status"}, decoded.Columns.Names())
}

package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SelectSchemaSlice walks tableIDs in rank order and includes each table
// while the cumulative serialized size stays within maxBytes. The first table
// that would push the total over the budget ends the walk. Foreign keys are
// kept only when both endpoints made it into the slice.
func SelectSchemaSlice(snap *Snapshot, tableIDs []string, maxBytes int) (*Slice, error) {
	slice := &Slice{
		Tables:      make(map[string]*TableMeta),
		ForeignKeys: make([][]string, 0),
	}

	total := 0
	for _, id := range tableIDs {
		meta, ok := snap.Tables[id]
		if !ok {
			continue
		}
		data, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("slice: encode %s: %w", id, err)
		}
		total += len(data)
		if total > maxBytes {
			break
		}
		slice.Tables[id] = meta
	}

	for _, fk := range snap.ForeignKeys {
		if _, ok := slice.Tables[fk.Table]; !ok {
			continue
		}
		if _, ok := slice.Tables[fk.ForeignTable]; !ok {
			continue
		}
		slice.ForeignKeys = append(slice.ForeignKeys, []string{
			fk.Table,
			fkColumn(fk.Definition, 1),
			fk.ForeignTable,
			fkColumn(fk.Definition, 2),
		})
	}

	return slice, nil
}

// fkColumn pulls the index-th parenthesized fragment out of a
// pg_get_constraintdef rendering, e.g. index 1 of
// "FOREIGN KEY (customer_id) REFERENCES customers(customer_id)" is
// "customer_id". Multi-column keys and quoted identifiers are not understood;
// anything unparseable yields "".
func fkColumn(definition string, index int) string {
	parts := strings.Split(definition, "(")
	if index >= len(parts) {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(parts[index], ")", 2)[0])
}

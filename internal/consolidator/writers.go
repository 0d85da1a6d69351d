package consolidator

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mostafazog/mro-harvest/pkg/models"
)

// encodeJSON serializes the canonical collection as an indented array of
// field maps. Map keys marshal in sorted order, so output is deterministic.
func encodeJSON(items []models.Record) ([]byte, error) {
	fieldMaps := make([]map[string]string, len(items))
	for i, item := range items {
		fieldMaps[i] = item.Fields
	}
	data, err := json.MarshalIndent(fieldMaps, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal canonical JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// encodeCSV serializes the canonical collection as a row table. The header
// is the sorted union of every observed field name with the identity field
// first, so the column layout is stable across passes.
func encodeCSV(items []models.Record) ([]byte, error) {
	header := columnOrder(items)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(header))
	for _, item := range items {
		for i, col := range header {
			row[i] = item.Fields[col]
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func columnOrder(items []models.Record) []string {
	union := make(map[string]struct{})
	for _, item := range items {
		for name := range item.Fields {
			union[name] = struct{}{}
		}
	}
	delete(union, models.IdentityField)

	columns := make([]string, 0, len(union)+1)
	for name := range union {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return append([]string{models.IdentityField}, columns...)
}

package jsonrows

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"dwh/internal/storage"
)

const (
	FormatAuto           = "auto"
	FormatAutoIgnoreCase = "auto ignorecase"
)

// IsAutoFormat reports whether format selects key-name mapping rather than a
// JSONPaths file, and whether matching ignores case.
func IsAutoFormat(format string) (auto, ignoreCase bool) {
	switch strings.ToLower(strings.Join(strings.Fields(format), " ")) {
	case FormatAuto:
		return true, false
	case FormatAutoIgnoreCase:
		return true, true
	}
	return false, false
}

// Mapping projects decoded JSON records onto the columns of one table.
// A Mapping is not safe for concurrent use.
type Mapping struct {
	columns []storage.ColumnSpec
	project func(obj map[string]any, dst []any)
}

// Auto maps each column to the record key of the same name. With ignoreCase
// the comparison uses Unicode case folding. Keys that match no column are
// ignored; columns with no key get NULL.
func Auto(columns []storage.ColumnSpec, ignoreCase bool) *Mapping {
	if !ignoreCase {
		return &Mapping{
			columns: columns,
			project: func(obj map[string]any, dst []any) {
				for i, c := range columns {
					dst[i] = obj[c.Name]
				}
			},
		}
	}

	fold := cases.Fold()
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[fold.String(c.Name)] = i
	}
	return &Mapping{
		columns: columns,
		project: func(obj map[string]any, dst []any) {
			for k, v := range obj {
				if i, ok := index[fold.String(k)]; ok {
					dst[i] = v
				}
			}
		},
	}
}

// WithPaths maps the i-th path to the i-th column.
func WithPaths(columns []storage.ColumnSpec, paths []Path) (*Mapping, error) {
	if len(paths) != len(columns) {
		return nil, fmt.Errorf("jsonpaths: %d paths for %d columns", len(paths), len(columns))
	}
	return &Mapping{
		columns: columns,
		project: func(obj map[string]any, dst []any) {
			for i, p := range paths {
				dst[i], _ = p.Eval(obj)
			}
		},
	}, nil
}

// Columns returns the target column names in order.
func (m *Mapping) Columns() []string {
	out := make([]string, len(m.columns))
	for i, c := range m.columns {
		out[i] = c.Name
	}
	return out
}

// Row extracts and coerces one record. The error names the offending column.
func (m *Mapping) Row(obj map[string]any) ([]any, error) {
	row := make([]any, len(m.columns))
	m.project(obj, row)
	for i, c := range m.columns {
		v, err := Coerce(row[i], c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		row[i] = v
	}
	return row, nil
}

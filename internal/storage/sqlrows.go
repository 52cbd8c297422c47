package storage

import "database/sql"

// ScanRows materializes every row of a database/sql result set.
//
// convert, when non-nil, is applied to each scanned value together with its
// column type so backends can normalize driver-specific representations
// (e.g. TEXT timestamps in SQLite).
func ScanRows(rows *sql.Rows, convert func(ct *sql.ColumnType, v any) (any, error)) ([][]any, error) {
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(types))
		dests := make([]any, len(types))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if convert != nil && v != nil {
				if v, err = convert(types[i], v); err != nil {
					return nil, err
				}
			}
			vals[i] = v
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

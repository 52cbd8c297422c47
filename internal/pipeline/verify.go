package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"dwh/internal/queries"
)

// TableDiff is a difference between a declared table and the warehouse
// catalog.
type TableDiff struct {
	Table string

	// Missing is set when the catalog has no columns for the table.
	Missing bool

	MissingColumns []string
	ExtraColumns   []string
}

func (d TableDiff) String() string {
	if d.Missing {
		return fmt.Sprintf("%s: table missing", d.Table)
	}
	var parts []string
	if len(d.MissingColumns) > 0 {
		parts = append(parts, "missing columns "+strings.Join(d.MissingColumns, ", "))
	}
	if len(d.ExtraColumns) > 0 {
		parts = append(parts, "unexpected columns "+strings.Join(d.ExtraColumns, ", "))
	}
	return d.Table + ": " + strings.Join(parts, "; ")
}

// VerifySchema compares the column set of each of the seven tables with the
// catalog. Names compare case-insensitively, since Redshift folds
// identifiers to lowercase. An empty result means the schema matches.
func (r *Runner) VerifySchema(ctx context.Context) ([]TableDiff, error) {
	if r.Warehouse == nil {
		return nil, fmt.Errorf("pipeline: Warehouse is required")
	}
	logf := r.logger()
	d := r.Warehouse.Dialect()

	var diffs []TableDiff
	for _, t := range queries.Tables() {
		rows, err := r.Warehouse.QueryRows(ctx, d.ColumnsQuery(t.Name))
		if err != nil {
			return nil, fmt.Errorf("columns of %s: %w", t.Name, err)
		}

		got := make(map[string]bool, len(rows))
		for _, row := range rows {
			if len(row) == 0 || row[0] == nil {
				continue
			}
			got[strings.ToLower(fmt.Sprint(row[0]))] = true
		}

		if len(got) == 0 {
			diffs = append(diffs, TableDiff{Table: t.Name, Missing: true})
			logf("stage=verify table=%s status=missing", t.Name)
			continue
		}

		diff := TableDiff{Table: t.Name}
		for _, name := range t.ColumnNames() {
			if !got[name] {
				diff.MissingColumns = append(diff.MissingColumns, name)
			}
			delete(got, name)
		}
		for name := range got {
			diff.ExtraColumns = append(diff.ExtraColumns, name)
		}
		sort.Strings(diff.ExtraColumns)

		if len(diff.MissingColumns) > 0 || len(diff.ExtraColumns) > 0 {
			diffs = append(diffs, diff)
			logf("stage=verify table=%s status=mismatch %s", t.Name, diff)
			continue
		}
		logf("stage=verify table=%s ok columns=%d", t.Name, len(t.Columns))
	}
	return diffs, nil
}

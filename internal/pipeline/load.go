package pipeline

import (
	"context"
	"fmt"
	"time"

	"dwh/internal/jsonrows"
	"dwh/internal/metrics"
	"dwh/internal/queries"
	"dwh/internal/storage"
)

// LoadStaging fills staging_events and staging_songs, events first.
//
// Warehouses with a native object-store COPY (Redshift) get one COPY
// statement per table. Everything else reads the objects through Store and
// inserts them in batches. Either way a single bad record fails the whole
// load, and nothing is validated beyond type coercion.
func (r *Runner) LoadStaging(ctx context.Context, opts LoadOptions) error {
	if r.Warehouse == nil {
		return fmt.Errorf("pipeline: Warehouse is required")
	}
	logf := r.logger()
	d := r.Warehouse.Dialect()

	start := time.Now()
	loads := queries.StagingLoads(opts.Sources)
	for _, l := range loads {
		if st, ok := queries.CopyStatement(d, l, opts.IAMRole, opts.Region); ok {
			if err := r.exec(ctx, st); err != nil {
				return err
			}
			continue
		}
		if err := r.copyClientSide(ctx, l, opts.batchSize()); err != nil {
			return err
		}
	}
	logf("stage=%s ok tables=%d duration=%s", queries.StageCopy, len(loads), durMS(start))
	return nil
}

// copyClientSide is the COPY equivalent for warehouses that cannot read
// object storage: every object under l.Source is streamed, mapped with
// l.Format and inserted in batches.
func (r *Runner) copyClientSide(ctx context.Context, l queries.Load, batchSize int) error {
	logf := r.logger()
	step := queries.Statement{Stage: queries.StageCopy, Table: l.Table}.Step()

	start := time.Now()
	rows, batches, err := r.loadObjects(ctx, l, batchSize)
	dur := time.Since(start)
	if err != nil {
		metrics.RecordStep(step, metrics.StatusError, dur)
		logf("stage=%s table=%s status=error duration=%s err=%v", queries.StageCopy, l.Table, dur.Truncate(time.Millisecond), err)
		return fmt.Errorf("%s %s: %w", queries.StageCopy, l.Table, err)
	}

	metrics.RecordStep(step, metrics.StatusOK, dur)
	metrics.RecordRows(l.Table, rows)
	logf("stage=%s table=%s ok rows=%d batches=%d duration=%s", queries.StageCopy, l.Table, rows, batches, dur.Truncate(time.Millisecond))
	return nil
}

func (r *Runner) loadObjects(ctx context.Context, l queries.Load, batchSize int) (rows int64, batches int, err error) {
	if r.Store == nil {
		return 0, 0, fmt.Errorf("no object store configured for client-side load")
	}
	spec, ok := queries.Table(l.Table)
	if !ok {
		return 0, 0, fmt.Errorf("unknown staging table %q", l.Table)
	}

	mapping, err := r.mapping(ctx, spec.Columns, l.Format)
	if err != nil {
		return 0, 0, err
	}

	objects, err := r.Store.List(ctx, l.Source)
	if err != nil {
		return 0, 0, fmt.Errorf("list %s: %w", l.Source, err)
	}
	if len(objects) == 0 {
		return 0, 0, fmt.Errorf("no objects found under %s", l.Source)
	}

	columns := mapping.Columns()
	batch := make([][]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.Warehouse.InsertRows(ctx, l.Table, columns, batch)
		rows += n
		if err != nil {
			return err
		}
		batches++
		metrics.RecordBatch()
		batch = batch[:0]
		return nil
	}

	for _, uri := range objects {
		err := r.streamObject(ctx, uri, mapping, func(row []any) error {
			batch = append(batch, row)
			if len(batch) >= batchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return rows, batches, err
		}
	}
	if err := flush(); err != nil {
		return rows, batches, err
	}
	return rows, batches, nil
}

func (r *Runner) streamObject(ctx context.Context, uri string, m *jsonrows.Mapping, add func([]any) error) error {
	rc, err := r.Store.Open(ctx, uri)
	if err != nil {
		return fmt.Errorf("open %s: %w", uri, err)
	}
	defer rc.Close()

	var emitErr error
	err = jsonrows.Stream(ctx, rc, func(record int, obj map[string]any) error {
		row, err := m.Row(obj)
		if err != nil {
			emitErr = fmt.Errorf("%s:%d: %w", uri, record, err)
			return emitErr
		}
		if err := add(row); err != nil {
			emitErr = err
			return err
		}
		return nil
	})
	if err != nil && err != emitErr {
		return fmt.Errorf("%s: %w", uri, err)
	}
	return err
}

// mapping resolves a COPY format: "auto", "auto ignorecase" or the location
// of a JSONPaths file.
func (r *Runner) mapping(ctx context.Context, columns []storage.ColumnSpec, format string) (*jsonrows.Mapping, error) {
	if auto, ignoreCase := jsonrows.IsAutoFormat(format); auto {
		return jsonrows.Auto(columns, ignoreCase), nil
	}

	rc, err := r.Store.Open(ctx, format)
	if err != nil {
		return nil, fmt.Errorf("open jsonpaths %s: %w", format, err)
	}
	defer rc.Close()

	paths, err := jsonrows.ReadJSONPaths(rc)
	if err != nil {
		return nil, fmt.Errorf("read jsonpaths %s: %w", format, err)
	}
	m, err := jsonrows.WithPaths(columns, paths)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", format, err)
	}
	return m, nil
}

// Package pipeline drives the three sequential stages of a warehouse run:
// schema management (drop, create), the staging bulk load and the star
// schema inserts.
//
// Every statement runs on the single warehouse connection and commits on its
// own. The first failure aborts the stage; tables committed before it stay as
// they are.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"dwh/internal/metrics"
	"dwh/internal/objectstore"
	"dwh/internal/queries"
	"dwh/internal/storage"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger and *logrus.Logger satisfy it.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner executes pipeline stages against one warehouse session.
type Runner struct {
	Warehouse storage.Warehouse

	// Store reads the JSON partitions when the warehouse has no native
	// object-store COPY. It may be nil for Redshift.
	Store objectstore.Store

	Logger Logger
}

// LoadOptions are the inputs of the staging load.
type LoadOptions struct {
	Sources queries.Sources
	IAMRole string
	Region  string

	// BatchSize caps the rows per client-side insert. <= 0 means 1000.
	BatchSize int
}

func (o LoadOptions) batchSize() int {
	if o.BatchSize <= 0 {
		return 1000
	}
	return o.BatchSize
}

// ResetSchema drops and recreates every table.
func (r *Runner) ResetSchema(ctx context.Context) error {
	if err := r.DropTables(ctx); err != nil {
		return err
	}
	return r.CreateTables(ctx)
}

// DropTables runs DROP TABLE IF EXISTS for the seven tables, staging first.
func (r *Runner) DropTables(ctx context.Context) error {
	return r.runStage(ctx, queries.StageDrop, queries.DropTables)
}

// CreateTables runs CREATE TABLE IF NOT EXISTS for the seven tables.
func (r *Runner) CreateTables(ctx context.Context) error {
	return r.runStage(ctx, queries.StageCreate, queries.CreateTables)
}

// InsertTables fills songplays, users, songs, artists and time from the
// staging tables, in that order.
func (r *Runner) InsertTables(ctx context.Context) error {
	return r.runStage(ctx, queries.StageInsert, queries.InsertTables)
}

// Run performs the etl command: staging load, then inserts.
func (r *Runner) Run(ctx context.Context, opts LoadOptions) error {
	if err := r.LoadStaging(ctx, opts); err != nil {
		return err
	}
	return r.InsertTables(ctx)
}

func (r *Runner) runStage(ctx context.Context, stage string, build func(storage.Dialect) []queries.Statement) error {
	if r.Warehouse == nil {
		return fmt.Errorf("pipeline: Warehouse is required")
	}
	logf := r.logger()
	stmts := build(r.Warehouse.Dialect())

	start := time.Now()
	for _, st := range stmts {
		if err := r.exec(ctx, st); err != nil {
			return err
		}
	}
	logf("stage=%s ok statements=%d duration=%s", stage, len(stmts), durMS(start))
	return nil
}

// exec runs one statement, logs and records it. The returned error names the
// step, e.g. "create users: ...".
func (r *Runner) exec(ctx context.Context, st queries.Statement) error {
	logf := r.logger()

	start := time.Now()
	n, err := r.Warehouse.Exec(ctx, st.SQL)
	dur := time.Since(start)
	if err != nil {
		metrics.RecordStep(st.Step(), metrics.StatusError, dur)
		logf("stage=%s table=%s status=error duration=%s err=%v", st.Stage, st.Table, dur.Truncate(time.Millisecond), err)
		return fmt.Errorf("%s %s: %w", st.Stage, st.Table, err)
	}

	metrics.RecordStep(st.Step(), metrics.StatusOK, dur)
	if st.Stage == queries.StageCopy || st.Stage == queries.StageInsert {
		metrics.RecordRows(st.Table, n)
	}
	logf("stage=%s table=%s ok rows=%d duration=%s", st.Stage, st.Table, n, dur.Truncate(time.Millisecond))
	return nil
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return r.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }

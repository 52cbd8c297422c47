// Command dwh builds and loads the song play star schema in a SQL warehouse.
//
//	dwh create-tables   drop and recreate the staging, fact and dimension tables
//	dwh etl             bulk-load the staging tables, then fill the star schema
//	dwh check           test the warehouse connection (--schema: verify tables)
//	dwh probe           sample a staging source and print its JSONPaths file
//
// Exit codes:
//   - 0: success, or create-tables could not connect (reported, nothing done).
//   - 1: configuration error or a failed statement.
//   - 2: usage error.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dwh/internal/metrics"
	"dwh/internal/metrics/datadog"
	"dwh/internal/metrics/prompush"
	"dwh/internal/objectstore"
	"dwh/internal/storage"

	// register all warehouse backends with the storage factory; the config
	// picks one by [WAREHOUSE] kind.
	_ "dwh/internal/storage/all"
)

// backendCloser is the minimal interface used by this command to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	OpenWarehouse func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error)
	NewStore      func(cfg objectstore.S3Config) objectstore.Store

	NewDatadog     func(ctx context.Context, job string, tags []string) (backendCloser, error)
	NewPushgateway func(job, url string) (backendCloser, error)
}

func defaultDeps() deps {
	return deps{
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		Getenv:        os.Getenv,
		OpenWarehouse: storage.New,
		NewStore: func(cfg objectstore.S3Config) objectstore.Store {
			return objectstore.NewRouter(cfg)
		},
		NewDatadog: func(ctx context.Context, job string, tags []string) (backendCloser, error) {
			b, err := datadog.NewBackend(ctx, datadog.Options{
				JobName:    job,
				Tags:       tags,
				FlushEvery: 60 * time.Second,
			})
			if err != nil {
				return nil, err
			}
			return b, nil
		},
		NewPushgateway: func(job, url string) (backendCloser, error) {
			b, err := prompush.NewBackend(job, url)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
	}
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], defaultDeps())
	cancel()
	os.Exit(code)
}

// exitError carries a non-zero exit code out of a cobra RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func fail(err error) error { return &exitError{code: 1, err: err} }

// runMain executes one dwh invocation and returns its exit code.
func runMain(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.OpenWarehouse == nil || d.NewStore == nil || d.NewDatadog == nil || d.NewPushgateway == nil {
		fmt.Fprintln(d.Stderr, "internal error: incomplete deps")
		return 2
	}

	a := newApp(d)
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(d.Stderr, "dwh: %v\n", ee.err)
		}
		return ee.code
	}

	fmt.Fprintf(d.Stderr, "dwh: %v\nRun 'dwh --help' for usage.\n", err)
	return 2
}

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return l
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dwh/internal/config"
	"dwh/internal/metrics"
	"dwh/internal/objectstore"
	"dwh/internal/pipeline"
	"dwh/internal/probe"
	"dwh/internal/queries"
	"dwh/internal/storage"
)

// app holds the parsed persistent flags and the wired dependencies of one
// invocation.
type app struct {
	d   deps
	log *logrus.Logger

	cfgPath        string
	envFile        string
	metricsBackend string
	pushgatewayURL string
	verbose        bool
}

func newApp(d deps) *app {
	return &app{d: d, log: newLogger(d.Stderr)}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dwh",
		Short: "Build and load the song play star schema in a SQL warehouse",
		Long: `dwh drops and recreates the staging and star schema tables, bulk-loads the
song and event JSON partitions into staging, and fills the songplays fact table
and the users, songs, artists and time dimensions with INSERT ... SELECT.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.verbose {
				a.log.SetLevel(logrus.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("missing command (create-tables, etl or check)")
		},
	}
	root.SetOut(a.d.Stdout)
	root.SetErr(a.d.Stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "dwh.cfg", "INI configuration file")
	pf.StringVar(&a.envFile, "env-file", ".env", "optional KEY=VALUE file loaded into the environment first")
	pf.StringVar(&a.metricsBackend, "metrics-backend", "", "metrics backend: none, datadog or pushgateway (overrides METRICS_BACKEND and [METRICS] backend)")
	pf.StringVar(&a.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides PUSHGATEWAY_URL and [METRICS] pushgateway_url)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logs")

	root.AddCommand(newCreateTablesCmd(a), newETLCmd(a), newCheckCmd(a), newProbeCmd(a))
	return root
}

func newCreateTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-tables",
		Short: "Drop and recreate all seven tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(config.ScopeConnection)
			if err != nil {
				return err
			}
			stop := a.initMetrics(ctx, cfg)
			defer stop()

			wh, err := a.connect(ctx, cfg)
			if err != nil {
				// Nothing to set up without a connection; the failure is
				// reported and the command ends normally.
				return nil
			}
			defer a.closeWarehouse(wh)

			r := a.runner(wh, nil)
			a.say("Dropping existing tables...")
			if err := r.DropTables(ctx); err != nil {
				return fail(err)
			}
			a.say("All tables dropped successfully!")

			a.say("Creating tables...")
			if err := r.CreateTables(ctx); err != nil {
				return fail(err)
			}
			a.say("All tables created successfully!")
			a.say("%s Database Setup Complete!", displayName(cfg.Warehouse.Kind))
			return nil
		},
	}
}

func newETLCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "etl",
		Short: "Load the staging tables and fill the star schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(config.ScopeETL)
			if err != nil {
				return err
			}
			stop := a.initMetrics(ctx, cfg)
			defer stop()

			wh, err := a.connect(ctx, cfg)
			if err != nil {
				return fail(err)
			}
			defer a.closeWarehouse(wh)

			store := a.d.NewStore(objectstore.S3Config{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
			r := a.runner(wh, store)
			opts := pipeline.LoadOptions{
				Sources: queries.Sources{
					LogData:      cfg.S3.LogData,
					LogJSONPath:  cfg.S3.LogJSONPath,
					SongData:     cfg.S3.SongData,
					SongJSONPath: cfg.S3.SongJSONPath,
				},
				IAMRole:   cfg.IAM.RoleARN,
				Region:    cfg.AWS.Region,
				BatchSize: cfg.ETL.BatchSize,
			}

			start := time.Now()
			a.say("Starting ETL Pipeline...")
			a.say("Loading data into staging tables...")
			if err := r.LoadStaging(ctx, opts); err != nil {
				return fail(err)
			}
			a.say("Staging tables loaded successfully!")

			a.say("Inserting data into final tables...")
			if err := r.InsertTables(ctx); err != nil {
				return fail(err)
			}
			a.say("Data inserted into final tables successfully!")
			a.say("ETL Pipeline Completed Successfully!")
			a.log.Debugf("etl completed in %s", time.Since(start).Truncate(time.Millisecond))
			return nil
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Test the warehouse connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := a.loadConfig(config.ScopeConnection)
			if err != nil {
				return err
			}
			a.say("Available sections in %s: %v", a.cfgPath, cfg.Sections())

			wh, err := a.connect(ctx, cfg)
			if err != nil {
				return fail(err)
			}
			defer a.closeWarehouse(wh)

			if !schema {
				return nil
			}
			diffs, err := a.runner(wh, nil).VerifySchema(ctx)
			if err != nil {
				return fail(err)
			}
			if len(diffs) > 0 {
				for _, d := range diffs {
					a.say("%s", d)
				}
				return fail(fmt.Errorf("schema check failed: %d of %d tables differ", len(diffs), len(queries.Tables())))
			}
			a.say("Schema OK: %d tables match", len(queries.Tables()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "also verify the column sets of the seven tables")
	return cmd
}

func newProbeCmd(a *app) *cobra.Command {
	var (
		table      string
		source     string
		out        string
		maxRecords int
		report     bool
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Sample a staging source and print the JSONPaths file that maps it",
		Long: `probe reads a bounded sample of JSON records from a staging source, matches
their keys to the columns of the staging table and prints the JSONPaths document
for [S3] log_jsonpath. With --report it prints per-column statistics instead.

The source defaults to [S3] log_data for staging_events and [S3] song_data for
staging_songs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadOptionalConfig()
			if err != nil {
				return err
			}

			var s3cfg objectstore.S3Config
			if cfg != nil {
				s3cfg = objectstore.S3Config{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint}
				if source == "" {
					source = probeSource(cfg, table)
				}
			}
			if source == "" {
				return fail(fmt.Errorf("probe: no source for %s: pass --source or set it in %s", table, a.cfgPath))
			}

			start := time.Now()
			res, err := probe.Run(cmd.Context(), a.d.NewStore(s3cfg), probe.Options{
				Source:     source,
				Table:      table,
				MaxRecords: maxRecords,
			})
			if err != nil {
				return fail(err)
			}
			a.log.Debugf("stage=probe table=%s ok objects=%d records=%d duration=%s",
				res.Table, res.Objects, res.Records, time.Since(start).Truncate(time.Millisecond))
			if u := res.Unmatched(); len(u) > 0 {
				a.log.Warnf("probe: no sampled key for columns %v; they will load as NULL", u)
			}

			if report {
				a.say("%s", res.Report())
				return nil
			}
			body, err := res.RenderJSONPaths()
			if err != nil {
				return fail(err)
			}
			if out == "" || out == "-" {
				_, err = a.d.Stdout.Write(body)
				return err
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return fail(fmt.Errorf("probe: write %s: %w", out, err))
			}
			a.log.Infof("probe: wrote %d paths to %s", len(res.Columns), out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&table, "table", queries.StagingEvents, "staging table the records are loaded into")
	f.StringVar(&source, "source", "", "object prefix to sample (s3://bucket/prefix or a local path)")
	f.StringVarP(&out, "output", "o", "-", "file to write the JSONPaths document to")
	f.IntVar(&maxRecords, "max-records", probe.DefaultMaxRecords, "records to sample")
	f.BoolVar(&report, "report", false, "print per-column sample statistics instead of the JSONPaths document")
	return cmd
}

func probeSource(cfg *config.Config, table string) string {
	switch table {
	case queries.StagingEvents:
		return cfg.S3.LogData
	case queries.StagingSongs:
		return cfg.S3.SongData
	default:
		return ""
	}
}

func (a *app) say(format string, v ...any) {
	fmt.Fprintf(a.d.Stdout, format+"\n", v...)
}

// loadConfig loads the env file and the INI config, prints every validation
// issue and fails on errors.
func (a *app) loadConfig(scope config.Scope) (*config.Config, error) {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return nil, fail(err)
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return nil, fail(err)
	}

	issues := cfg.Validate(scope)
	for _, iss := range issues {
		fmt.Fprintln(a.d.Stderr, iss)
	}
	if config.HasErrors(issues) {
		return nil, fail(fmt.Errorf("configuration is invalid: %s", a.cfgPath))
	}
	a.log.Debugf("config: path=%s warehouse=%s batch_size=%d", a.cfgPath, cfg.Warehouse.Kind, cfg.ETL.BatchSize)
	return cfg, nil
}

// loadOptionalConfig is loadConfig for commands that can run without a
// config file. It returns nil when the file does not exist.
func (a *app) loadOptionalConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return nil, fail(err)
	}
	if _, err := os.Stat(a.cfgPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return nil, fail(err)
	}
	return cfg, nil
}

// connect opens the warehouse and runs a liveness query. Success and failure
// are both reported on stdout.
func (a *app) connect(ctx context.Context, cfg *config.Config) (storage.Warehouse, error) {
	name := displayName(cfg.Warehouse.Kind)

	start := time.Now()
	wh, err := a.open(ctx, cfg)
	if err != nil {
		metrics.RecordStep("connect", metrics.StatusError, time.Since(start))
		a.log.WithError(err).Error("connect failed")
		a.say("Error connecting to %s: %v", name, err)
		return nil, err
	}
	metrics.RecordStep("connect", metrics.StatusOK, time.Since(start))
	a.log.Debugf("stage=connect ok kind=%s duration=%s", cfg.Warehouse.Kind, time.Since(start).Truncate(time.Millisecond))
	a.say("Connected to %s successfully!", name)
	return wh, nil
}

func (a *app) open(ctx context.Context, cfg *config.Config) (storage.Warehouse, error) {
	sc, err := cfg.StorageConfig()
	if err != nil {
		return nil, err
	}
	wh, err := a.d.OpenWarehouse(ctx, sc)
	if err != nil {
		return nil, err
	}
	if err := wh.Ping(ctx); err != nil {
		_ = wh.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return wh, nil
}

func (a *app) closeWarehouse(wh storage.Warehouse) {
	if err := wh.Close(); err != nil {
		a.log.WithError(err).Warn("close warehouse")
	}
}

func (a *app) runner(wh storage.Warehouse, store objectstore.Store) *pipeline.Runner {
	return &pipeline.Runner{Warehouse: wh, Store: store, Logger: a.log}
}

func displayName(kind string) string {
	switch kind {
	case config.KindRedshift:
		return "Redshift"
	case config.KindPostgres:
		return "PostgreSQL"
	case config.KindSQLite:
		return "SQLite"
	case config.KindSQLServer:
		return "SQL Server"
	default:
		return kind
	}
}

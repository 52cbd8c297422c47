package config

import (
	"fmt"
	"strconv"
	"strings"

	"dwh/internal/jsonrows"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is "SECTION.key".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// Scope selects which keys a command needs.
type Scope int

const (
	// ScopeConnection covers what every command needs to reach the warehouse.
	ScopeConnection Scope = iota
	// ScopeETL additionally covers the bulk load inputs.
	ScopeETL
)

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate checks the configuration for the given scope. It never fails
// fast: every finding is returned.
func (c *Config) Validate(scope Scope) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, a ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	require := func(path, v string) {
		if strings.TrimSpace(v) == "" {
			add(SeverityError, path, "is required")
		}
	}

	switch c.Warehouse.Kind {
	case KindRedshift, KindPostgres, KindSQLite, KindSQLServer:
	default:
		add(SeverityError, "WAREHOUSE.kind", "unsupported kind %q (want redshift, postgres, sqlite or sqlserver)", c.Warehouse.Kind)
	}

	if c.Warehouse.DSN == "" {
		if c.Warehouse.Kind == KindSQLite {
			require("CLUSTER.db_name", c.Cluster.DBName)
		} else {
			require("CLUSTER.host", c.Cluster.Host)
			require("CLUSTER.db_name", c.Cluster.DBName)
			require("CLUSTER.db_user", c.Cluster.DBUser)
			require("CLUSTER.db_port", c.Cluster.DBPort)
			if c.Cluster.DBPassword == "" {
				add(SeverityWarning, "CLUSTER.db_password", "not set; connecting without a password")
			}
			if p := c.Cluster.DBPort; p != "" {
				if n, err := strconv.Atoi(p); err != nil || n < 1 || n > 65535 {
					add(SeverityError, "CLUSTER.db_port", "must be a port number, got %q", p)
				}
			}
		}
	}

	switch c.Metrics.Backend {
	case "", "none", "datadog":
	case "pushgateway":
		if c.Metrics.PushgatewayURL == "" {
			add(SeverityWarning, "METRICS.pushgateway_url", "not set; PUSHGATEWAY_URL or the default is used")
		}
	default:
		add(SeverityError, "METRICS.backend", "unsupported backend %q (want none, datadog or pushgateway)", c.Metrics.Backend)
	}

	if scope < ScopeETL {
		return issues
	}

	require("S3.log_data", c.S3.LogData)
	require("S3.log_jsonpath", c.S3.LogJSONPath)
	require("S3.song_data", c.S3.SongData)
	if c.S3.SongJSONPath == "" {
		add(SeverityError, "S3.song_jsonpath", "must not be empty (use 'auto')")
	}

	if c.Warehouse.Kind == KindRedshift {
		require("IAM.role_arn", c.IAM.RoleARN)
		require("AWS.region", c.AWS.Region)
		if auto, _ := jsonrows.IsAutoFormat(c.S3.LogJSONPath); !auto && c.S3.LogJSONPath != "" &&
			!strings.HasPrefix(c.S3.LogJSONPath, "s3://") {
			add(SeverityError, "S3.log_jsonpath", "redshift COPY needs an s3:// JSONPaths file, got %q", c.S3.LogJSONPath)
		}
	}

	if c.ETL.BatchSize <= 0 {
		add(SeverityError, "ETL.batch_size", "must be positive, got %d", c.ETL.BatchSize)
	}
	return issues
}

// Package probe samples a staging source and infers the JSONPaths file that
// maps its records onto a staging table.
//
// The probe is responsible for:
//   - reading a bounded sample of records from the objects under a prefix,
//   - matching JSON keys to the table's columns (exact name first, then
//     Unicode case-folded),
//   - rendering the match as a JSONPaths document usable by the bulk loader
//     and by the warehouse COPY,
//   - reporting per-column coverage, cardinality and coercion failures.
//
// Sampling is bounded by Options.MaxRecords. A value that does not coerce to
// the column type is counted in the report; it never fails the probe.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"dwh/internal/jsonrows"
	"dwh/internal/objectstore"
	"dwh/internal/queries"
	"dwh/internal/storage"
)

// DefaultMaxRecords bounds the sample when Options.MaxRecords is unset.
const DefaultMaxRecords = 1000

const distinctCapPerColumn = 10000

// Options control the sampling.
type Options struct {
	// Source is an object prefix: s3://bucket/prefix, file:// or a local path.
	Source string
	// Table is the staging table the records are meant for.
	Table string
	// MaxRecords is the number of records to sample across all objects.
	MaxRecords int
}

// Column is the inferred mapping and sample statistics of one column.
type Column struct {
	Name string
	Type storage.ColumnType

	// Key is the matched top-level JSON key; empty when no sampled record
	// carries a matching key.
	Key string

	// Present counts records where the key holds a non-null value.
	Present  int
	Distinct int
	Capped   bool

	// Invalid counts values that do not coerce to Type; FirstInvalid is the
	// first such value as JSON text.
	Invalid      int
	FirstInvalid string
}

// Path returns the JSONPath expression for the column. Columns without a
// matched key select a member of the column's own name, which loads NULL.
func (c Column) Path() string {
	key := c.Key
	if key == "" {
		key = c.Name
	}
	if strings.Contains(key, "'") {
		return `$["` + key + `"]`
	}
	return "$['" + key + "']"
}

// Result is the outcome of one probe run.
type Result struct {
	Table   string
	Source  string
	Objects int
	Records int
	Columns []Column

	// UnusedKeys are sampled keys that match no column, sorted.
	UnusedKeys []string
}

var errSampleFull = errors.New("probe: sample full")

// Run samples opt.Source through store and infers the column mapping of
// opt.Table.
//
// Errors:
//   - the table is unknown or not a staging table,
//   - nothing is found under the source prefix,
//   - an object cannot be opened or decoded,
//   - a key cannot be written as a JSONPath member.
func Run(ctx context.Context, store objectstore.Store, opt Options) (Result, error) {
	spec, ok := queries.Table(opt.Table)
	if !ok {
		return Result{}, fmt.Errorf("probe: unknown table %q", opt.Table)
	}
	if spec.Role != storage.RoleStaging {
		return Result{}, fmt.Errorf("probe: %s is a %s table; only staging tables are loaded from JSON", spec.Name, spec.Role)
	}
	if opt.Source == "" {
		return Result{}, fmt.Errorf("probe: source is required")
	}
	limit := opt.MaxRecords
	if limit <= 0 {
		limit = DefaultMaxRecords
	}

	objects, err := store.List(ctx, opt.Source)
	if err != nil {
		return Result{}, fmt.Errorf("probe: list %s: %w", opt.Source, err)
	}
	if len(objects) == 0 {
		return Result{}, fmt.Errorf("probe: no objects found under %s", opt.Source)
	}

	res := Result{Table: spec.Name, Source: opt.Source}
	sample := make([]map[string]any, 0, min(limit, 64))
	for _, uri := range objects {
		if len(sample) >= limit {
			break
		}
		res.Objects++
		if err := readObject(ctx, store, uri, limit, &sample); err != nil {
			return Result{}, err
		}
	}
	res.Records = len(sample)

	keys := sampledKeys(sample)
	res.Columns, res.UnusedKeys = matchColumns(spec.Columns, keys)
	for i := range res.Columns {
		if _, err := jsonrows.ParsePath(res.Columns[i].Path()); err != nil {
			return Result{}, fmt.Errorf("probe: column %s: %w", res.Columns[i].Name, err)
		}
		measure(&res.Columns[i], sample)
	}
	return res, nil
}

func readObject(ctx context.Context, store objectstore.Store, uri string, limit int, sample *[]map[string]any) error {
	rc, err := store.Open(ctx, uri)
	if err != nil {
		return fmt.Errorf("probe: open %s: %w", uri, err)
	}
	defer rc.Close()

	err = jsonrows.Stream(ctx, rc, func(_ int, obj map[string]any) error {
		if len(*sample) >= limit {
			return errSampleFull
		}
		*sample = append(*sample, obj)
		return nil
	})
	if err != nil && !errors.Is(err, errSampleFull) {
		return fmt.Errorf("probe: %s: %w", uri, err)
	}
	return nil
}

// sampledKeys returns every top-level key seen in the sample, sorted.
func sampledKeys(sample []map[string]any) []string {
	seen := map[string]struct{}{}
	for _, obj := range sample {
		for k := range obj {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// matchColumns pairs each column with a key: an exact match wins, otherwise
// the first unclaimed key (in sorted order) that case-folds to the column name.
func matchColumns(columns []storage.ColumnSpec, keys []string) ([]Column, []string) {
	fold := cases.Fold()
	claimed := make(map[string]bool, len(keys))
	exact := make(map[string]bool, len(keys))
	for _, k := range keys {
		exact[k] = true
	}

	out := make([]Column, len(columns))
	for i, c := range columns {
		out[i] = Column{Name: c.Name, Type: c.Type}
		if exact[c.Name] {
			out[i].Key = c.Name
			claimed[c.Name] = true
		}
	}
	for i := range out {
		if out[i].Key != "" {
			continue
		}
		want := fold.String(out[i].Name)
		for _, k := range keys {
			if !claimed[k] && fold.String(k) == want {
				out[i].Key = k
				claimed[k] = true
				break
			}
		}
	}

	var unused []string
	for _, k := range keys {
		if !claimed[k] {
			unused = append(unused, k)
		}
	}
	return out, unused
}

func measure(c *Column, sample []map[string]any) {
	if c.Key == "" {
		return
	}
	distinct := map[string]struct{}{}
	for _, obj := range sample {
		v, ok := obj[c.Key]
		if !ok || v == nil {
			continue
		}
		c.Present++

		if _, err := jsonrows.Coerce(v, c.Type); err != nil {
			c.Invalid++
			if c.FirstInvalid == "" {
				b, _ := json.Marshal(v)
				c.FirstInvalid = string(b)
			}
		}

		if c.Capped {
			continue
		}
		distinct[fmt.Sprint(v)] = struct{}{}
		if len(distinct) >= distinctCapPerColumn {
			c.Capped = true
			distinct = nil
		}
	}
	if !c.Capped {
		c.Distinct = len(distinct)
	} else {
		c.Distinct = distinctCapPerColumn
	}
}

// JSONPaths returns one path per column, in column order.
func (r Result) JSONPaths() []string {
	out := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = c.Path()
	}
	return out
}

// RenderJSONPaths renders the JSONPaths document, newline-terminated.
func (r Result) RenderJSONPaths() ([]byte, error) {
	doc := struct {
		JSONPaths []string `json:"jsonpaths"`
	}{JSONPaths: r.JSONPaths()}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Unmatched returns the names of columns no sampled key maps to.
func (r Result) Unmatched() []string {
	var out []string
	for _, c := range r.Columns {
		if c.Key == "" {
			out = append(out, c.Name)
		}
	}
	return out
}

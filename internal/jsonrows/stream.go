// Package jsonrows turns JSON input objects into rows for the staging tables:
// it streams records, maps keys to columns (auto, auto ignorecase or
// JSONPaths) and coerces values to the column types.
package jsonrows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Stream decodes r as a sequence of JSON object records and calls emit for
// each, with a 1-based record number.
//
// Accepted layouts:
//   - newline-delimited (or concatenated) objects,
//   - a single object,
//   - a root array of objects, optionally followed by more objects.
//
// Numbers are decoded as json.Number so integer columns never pass through
// float64. null array elements are skipped.
func Stream(ctx context.Context, r io.Reader, emit func(record int, obj map[string]any) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	record := 0
	emitObject := func(obj map[string]any) error {
		record++
		if err := ctx.Err(); err != nil {
			return err
		}
		return emit(record, obj)
	}

	// Peek the first token so a root array can be streamed element by element.
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("json: read first token: %w", err)
	}

	switch d := tok.(type) {
	case json.Delim:
		switch d {
		case '[':
			if err := streamArrayOfObjects(dec, emitObject, &record); err != nil {
				return err
			}
			if end, err := dec.Token(); err != nil {
				return fmt.Errorf("json: read array end: %w", err)
			} else if end != json.Delim(']') {
				return fmt.Errorf("json: expected array end ']', got %v", end)
			}

		case '{':
			v, err := materializeValueFromFirstToken(dec, d)
			if err != nil {
				return fmt.Errorf("json: record %d: %w", record+1, err)
			}
			if err := emitObject(v.(map[string]any)); err != nil {
				return err
			}

		default:
			return fmt.Errorf("json: unsupported root delimiter %q", d)
		}

	default:
		return fmt.Errorf("json: unsupported root token %T (want object or array)", tok)
	}

	return streamTrailingObjects(dec, emitObject, &record)
}

func streamTrailingObjects(dec *json.Decoder, emit func(map[string]any) error, record *int) error {
	for {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("json: record %d: %w", *record+1, err)
		}
		if obj == nil {
			continue
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
}

// streamArrayOfObjects streams elements of the current array (after '[' has
// been consumed).
func streamArrayOfObjects(dec *json.Decoder, emit func(map[string]any) error, record *int) error {
	for dec.More() {
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("json: record %d: %w", *record+1, err)
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("json: record %d: array element not an object (got %T)", *record+1, raw)
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
	return nil
}

// materializeValueFromFirstToken builds a Go value for the current JSON value,
// given its first token has already been read.
func materializeValueFromFirstToken(dec *json.Decoder, tok any) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch d {
	case '{':
		m := make(map[string]any)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("read object key: %w", err)
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key not string (got %T)", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("read value of %q: %w", k, err)
			}
			v, err := materializeValueFromFirstToken(dec, vt)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		if end, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("read object end: %w", err)
		} else if end != json.Delim('}') {
			return nil, fmt.Errorf("expected '}', got %v", end)
		}
		return m, nil

	case '[':
		arr := []any{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("read array value: %w", err)
			}
			v, err := materializeValueFromFirstToken(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if end, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("read array end: %w", err)
		} else if end != json.Delim(']') {
			return nil, fmt.Errorf("expected ']', got %v", end)
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("unexpected delimiter %q", d)
	}
}

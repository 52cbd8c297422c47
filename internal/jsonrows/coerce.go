package jsonrows

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"dwh/internal/storage"
)

// Coerce converts a decoded JSON value to the Go value written into a column
// of type t.
//
// Rules:
//   - null stays NULL; an empty or blank string in a numeric column is NULL.
//   - INT and BIGINT accept integral numbers and numeric strings; INT is
//     range-checked to 32 bits.
//   - FLOAT accepts numbers and numeric strings.
//   - VARCHAR and TIMESTAMP keep strings; numbers and booleans are rendered as
//     text, objects and arrays as compact JSON.
func Coerce(v any, t storage.ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case storage.TypeInt, storage.TypeBigInt:
		n, ok, err := toInt(v)
		if err != nil || !ok {
			return nil, err
		}
		if t == storage.TypeInt && (n < math.MinInt32 || n > math.MaxInt32) {
			return nil, fmt.Errorf("value %d out of range for INT", n)
		}
		return n, nil

	case storage.TypeFloat:
		return toFloat(v)

	default:
		return toText(v)
	}
}

func numericText(v any) (string, bool, error) {
	switch x := v.(type) {
	case json.Number:
		return x.String(), true, nil
	case string:
		s := strings.TrimSpace(x)
		return s, s != "", nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true, nil
	case int64:
		return strconv.FormatInt(x, 10), true, nil
	case int:
		return strconv.Itoa(x), true, nil
	default:
		return "", false, fmt.Errorf("cannot load %T into a numeric column", v)
	}
}

func toInt(v any) (int64, bool, error) {
	s, ok, err := numericText(v)
	if err != nil || !ok {
		return 0, false, err
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false, fmt.Errorf("invalid integer %q", s)
	}
	return int64(f), true, nil
}

func toFloat(v any) (any, error) {
	s, ok, err := numericText(v)
	if err != nil || !ok {
		return nil, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

func toText(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

package jsonrows

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Path is a parsed JSONPath expression of the subset warehouse COPY accepts:
// a root "$" followed by dot members ($.a.b), bracket members ($['a'] or
// $["a"]) and array indexes ($['a'][0]).
type Path struct {
	raw   string
	steps []step
}

type step struct {
	key     string
	index   int
	isIndex bool
}

func (p Path) String() string { return p.raw }

// ParsePath parses one JSONPath expression.
func ParsePath(s string) (Path, error) {
	p := Path{raw: s}
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "$")
	if !ok {
		return Path{}, fmt.Errorf("jsonpath %q: must start with '$'", s)
	}

	for rest != "" {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			name := rest[:end]
			if name == "" {
				return Path{}, fmt.Errorf("jsonpath %q: empty member name", s)
			}
			p.steps = append(p.steps, step{key: name})
			rest = rest[end:]

		case '[':
			rest = rest[1:]
			if rest == "" {
				return Path{}, fmt.Errorf("jsonpath %q: unterminated '['", s)
			}
			if q := rest[0]; q == '\'' || q == '"' {
				end := strings.IndexByte(rest[1:], q)
				if end < 0 || !strings.HasPrefix(rest[end+2:], "]") {
					return Path{}, fmt.Errorf("jsonpath %q: unterminated quoted member", s)
				}
				p.steps = append(p.steps, step{key: rest[1 : end+1]})
				rest = rest[end+3:]
				continue
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return Path{}, fmt.Errorf("jsonpath %q: unterminated '['", s)
			}
			n, err := strconv.Atoi(strings.TrimSpace(rest[:end]))
			if err != nil || n < 0 {
				return Path{}, fmt.Errorf("jsonpath %q: invalid array index %q", s, rest[:end])
			}
			p.steps = append(p.steps, step{index: n, isIndex: true})
			rest = rest[end+1:]

		default:
			return Path{}, fmt.Errorf("jsonpath %q: unexpected %q", s, rest[0])
		}
	}

	if len(p.steps) == 0 {
		return Path{}, fmt.Errorf("jsonpath %q: selects the whole record", s)
	}
	return p, nil
}

// Eval resolves the path against a decoded record. A missing member, an
// out-of-range index or a type mismatch yields (nil, false).
func (p Path) Eval(v any) (any, bool) {
	cur := v
	for _, st := range p.steps {
		if st.isIndex {
			arr, ok := cur.([]any)
			if !ok || st.index >= len(arr) {
				return nil, false
			}
			cur = arr[st.index]
			continue
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[st.key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// ReadJSONPaths parses a JSONPaths document: {"jsonpaths": ["$['a']", ...]}.
func ReadJSONPaths(r io.Reader) ([]Path, error) {
	var doc struct {
		JSONPaths *[]string `json:"jsonpaths"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("jsonpaths: decode: %w", err)
	}
	if doc.JSONPaths == nil {
		return nil, fmt.Errorf("jsonpaths: missing \"jsonpaths\" array")
	}

	out := make([]Path, 0, len(*doc.JSONPaths))
	for i, s := range *doc.JSONPaths {
		p, err := ParsePath(s)
		if err != nil {
			return nil, fmt.Errorf("jsonpaths[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

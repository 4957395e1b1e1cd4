// Package template renders {{ path }} placeholders against a session context
// and provides the dot-path get/set helpers shared with the executor.
package template

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Interpolate substitutes each {{ path }} occurrence in s with the value at
// the dot-separated path inside context. Missing values render as the empty
// string. The scan is a single linear pass.
func Interpolate(s string, context map[string]interface{}) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))

	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			sb.WriteString(s)
			break
		}
		end := strings.Index(s[start+2:], "}}")
		if end < 0 {
			sb.WriteString(s)
			break
		}
		end += start + 2

		sb.WriteString(s[:start])
		path := strings.TrimSpace(s[start+2 : end])
		value, ok := Lookup(context, path)
		if !ok {
			// Flows address the context bag both bare and via the
			// "context." prefix the condition grammar uses
			if rest, hasPrefix := strings.CutPrefix(path, "context."); hasPrefix {
				value, ok = Lookup(context, rest)
			}
		}
		if ok {
			sb.WriteString(Stringify(value))
		}
		s = s[end+2:]
	}

	return sb.String()
}

// Lookup resolves a dot-separated path against root, traversing maps by key
// and arrays by integer index. Bracketed indices ("items[0]") are accepted as
// an alias for dotted ones ("items.0").
func Lookup(root interface{}, path string) (interface{}, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false
	}

	current := root
	for _, seg := range segments {
		switch v := current.(type) {
		case map[string]interface{}:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Set stores value at the dot-separated path inside m, creating intermediate
// maps as needed. Existing non-map intermediates are replaced.
func Set(m map[string]interface{}, path string, value interface{}) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return
	}

	current := m
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[seg] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// Stringify renders a context value the way it appears in outbound text.
// Nil renders empty; numbers drop a trailing ".0"; composites render as JSON.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func splitPath(path string) []string {
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	parts := strings.Split(path, ".")

	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

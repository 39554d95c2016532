// Package vars implements the per-session variable store and the ${name}
// substitution syntax keyword parameters are resolved against.
package vars

import (
	"strings"
	"sync"
)

// Store maps variable names to values. Values are strings, numbers
// (float64), lists ([]interface{}) or mappings (map[string]interface{}).
// A store belongs to exactly one session and lives as long as it does.
type Store struct {
	mu     sync.RWMutex
	values map[string]interface{}
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{values: make(map[string]interface{})}
}

// Set binds name to value, replacing any previous binding
func (s *Store) Set(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// SetAll binds every entry of values
func (s *Store) SetAll(values map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
}

// Get returns the value bound to the exact name
func (s *Store) Get(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Len returns the number of bound variables
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a shallow copy of all bindings, for expression
// environments and diagnostics.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Expand substitutes every ${name} occurrence in text with the rendered
// value of the variable. Unknown names are left untouched so failures show
// what did not resolve.
func (s *Store) Expand(text string) string {
	if !strings.Contains(text, "${") {
		return text
	}

	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}")
		if end == -1 {
			b.WriteString(rest)
			break
		}
		end += start

		b.WriteString(rest[:start])
		name := rest[start+2 : end]
		if v, ok := s.Get(name); ok {
			b.WriteString(Render(v))
		} else {
			b.WriteString(rest[start : end+1])
		}
		rest = rest[end+1:]
	}
	return b.String()
}

// ExpandValue substitutes variables inside an arbitrary parameter value.
// A string that is exactly one ${name} reference resolves to the bound
// value with its type preserved, so lists and mappings survive substitution.
// Lists and mappings are expanded element-wise; other types pass through.
func (s *Store) ExpandValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		if name, ok := soleReference(val); ok {
			if bound, found := s.Get(name); found {
				return bound
			}
		}
		return s.Expand(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = s.ExpandValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = s.ExpandValue(item)
		}
		return out
	default:
		return v
	}
}

// soleReference reports whether text is exactly "${name}" and returns name.
func soleReference(text string) (string, bool) {
	if len(text) < 4 || !strings.HasPrefix(text, "${") || !strings.HasSuffix(text, "}") {
		return "", false
	}
	inner := text[2 : len(text)-1]
	if strings.Contains(inner, "${") || strings.Contains(inner, "}") {
		return "", false
	}
	return inner, true
}

// Package locator defines element locators and the polling resolver that
// turns a locator set into on-screen matches via detection capabilities.
package locator

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the detection strategy a locator selects
type Kind string

// Kind values
const (
	KindText  Kind = "text"
	KindPath  Kind = "path"
	KindImage Kind = "image"
)

// Locator identifies a UI element by text, structural path, or image
// template name. Pure data; the resolver decides how to use it.
type Locator struct {
	Kind  Kind
	Value string
}

// String returns the compact prefixed form, e.g. "image:home"
func (l Locator) String() string {
	return string(l.Kind) + ":" + l.Value
}

// Set is an ordered list of locator alternatives for one element slot.
// Alternatives are merged within a poll, not tried sequentially.
type Set []Locator

// String renders the set for error messages
func (s Set) String() string {
	parts := make([]string, len(s))
	for i, l := range s {
		parts[i] = l.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Kinds returns the distinct kinds present in the set
func (s Set) Kinds() []Kind {
	seen := make(map[Kind]bool, 3)
	var out []Kind
	for _, l := range s {
		if !seen[l.Kind] {
			seen[l.Kind] = true
			out = append(out, l.Kind)
		}
	}
	return out
}

// ParseString interprets a scalar locator. Prefixes "text:", "path:" and
// "image:" force a kind; values starting with "/" or "//" are structural
// paths; everything else matches by text.
func ParseString(s string) Locator {
	switch {
	case strings.HasPrefix(s, "text:"):
		return Locator{Kind: KindText, Value: s[len("text:"):]}
	case strings.HasPrefix(s, "path:"):
		return Locator{Kind: KindPath, Value: s[len("path:"):]}
	case strings.HasPrefix(s, "image:"):
		return Locator{Kind: KindImage, Value: s[len("image:"):]}
	case strings.HasPrefix(s, "/"):
		return Locator{Kind: KindPath, Value: s}
	default:
		return Locator{Kind: KindText, Value: s}
	}
}

// ParseValue interprets a raw parameter value as a locator set. Scalars
// become single-locator sets; lists become ordered alternatives; mappings
// accept explicit {text|path|image: value} keys.
func ParseValue(v interface{}) (Set, error) {
	switch val := v.(type) {
	case string:
		return Set{ParseString(val)}, nil
	case Locator:
		return Set{val}, nil
	case Set:
		return val, nil
	case []interface{}:
		if len(val) == 0 {
			return nil, fmt.Errorf("empty locator set")
		}
		set := make(Set, 0, len(val))
		for _, item := range val {
			sub, err := ParseValue(item)
			if err != nil {
				return nil, err
			}
			set = append(set, sub...)
		}
		return set, nil
	case map[string]interface{}:
		return parseMapping(val)
	default:
		return nil, fmt.Errorf("cannot use %T as a locator", v)
	}
}

func parseMapping(m map[string]interface{}) (Set, error) {
	for _, kind := range []Kind{KindText, KindPath, KindImage} {
		raw, ok := m[string(kind)]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("locator %s value must be a string, got %T", kind, raw)
		}
		return Set{{Kind: kind, Value: s}}, nil
	}
	return nil, fmt.Errorf("locator mapping needs a text, path or image key")
}

// UnmarshalYAML allows a Locator to be written as a scalar or a mapping.
func (l *Locator) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = ParseString(node.Value)
		return nil
	}

	var raw map[string]string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	for _, kind := range []Kind{KindText, KindPath, KindImage} {
		if v, ok := raw[string(kind)]; ok {
			*l = Locator{Kind: kind, Value: v}
			return nil
		}
	}
	return fmt.Errorf("locator mapping needs a text, path or image key")
}

// Package keyword defines keyword descriptors and the registry callers use
// to discover and validate keyword invocations.
package keyword

import (
	"strings"
)

// ParamType tags what kind of value a parameter position accepts
type ParamType string

// ParamType values
const (
	TypeString   ParamType = "string"
	TypeNumber   ParamType = "number"
	TypeDuration ParamType = "duration"
	TypeLocator  ParamType = "locator"
	TypeAny      ParamType = "any"
)

// ParamSpec describes one declared parameter position of a keyword
type ParamSpec struct {
	Name        string      `json:"name"`
	Type        ParamType   `json:"type"`
	Description string      `json:"description,omitempty"`
	Optional    bool        `json:"optional,omitempty"`
	Default     interface{} `json:"default,omitempty"` // Applied when an optional position is omitted

	// LocatorSet marks a position where a list is one set of fallback
	// locator alternatives for a single element slot, not a fallback group
	// to expand.
	LocatorSet bool `json:"locatorSet,omitempty"`
}

// Descriptor describes one registered keyword: its canonical name, slug,
// ordered parameter specification, and whether the flow interpreter handles
// it instead of a driver capability.
type Descriptor struct {
	Name        string      `json:"name"` // Canonical, e.g. "Press Element"
	Slug        string      `json:"slug"` // e.g. "press_element"
	Description string      `json:"description,omitempty"`
	Params      []ParamSpec `json:"params"`
	Control     bool        `json:"control,omitempty"`
}

// ParamIndex returns the position of the named parameter, or -1
func (d *Descriptor) ParamIndex(name string) int {
	for i, p := range d.Params {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

// Slugify converts a canonical keyword name to its slug form:
// lowercase with single underscores between words.
func Slugify(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "_")
}

// Normalize maps any accepted spelling of a keyword name (canonical,
// slug, or any casing/spacing in between) to the slug form used as the
// registry key.
func Normalize(name string) string {
	return Slugify(strings.ReplaceAll(name, "_", " "))
}

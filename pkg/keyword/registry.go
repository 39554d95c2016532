package keyword

import (
	"fmt"
	"sort"
)

// Registry holds the full set of keyword descriptors. It is built once at
// process start and never mutated afterwards; concurrent readers need no
// locking.
type Registry struct {
	bySlug  map[string]*Descriptor
	ordered []*Descriptor
}

// NewRegistry builds a registry from the given descriptors. Descriptors
// missing a slug get one derived from the canonical name. Duplicate slugs
// are a configuration error.
func NewRegistry(descs ...*Descriptor) (*Registry, error) {
	r := &Registry{
		bySlug:  make(map[string]*Descriptor, len(descs)),
		ordered: make([]*Descriptor, 0, len(descs)),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("descriptor with empty name")
		}
		if d.Slug == "" {
			d.Slug = Slugify(d.Name)
		}
		if _, exists := r.bySlug[d.Slug]; exists {
			return nil, fmt.Errorf("duplicate keyword %q", d.Name)
		}
		r.bySlug[d.Slug] = d
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

// Lookup finds a descriptor by canonical name or slug, case-insensitively.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.bySlug[Normalize(name)]
	return d, ok
}

// All returns the descriptors sorted by canonical name.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered keywords
func (r *Registry) Len() int {
	return len(r.ordered)
}

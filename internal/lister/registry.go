// Package lister resolves object listers by name.
package lister

import (
	"fmt"
	"sort"

	"BucketCatalog/internal/ports"
)

// Registry keeps a mapping from lister names to their implementations.
type Registry struct {
	listers map[string]ports.ObjectLister
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{listers: map[string]ports.ObjectLister{}}
}

// Register adds or replaces a lister implementation.
func (r *Registry) Register(l ports.ObjectLister) {
	if r.listers == nil {
		r.listers = map[string]ports.ObjectLister{}
	}
	r.listers[l.Name()] = l
}

// Resolve returns a lister by name or an error if it is absent.
func (r *Registry) Resolve(name string) (ports.ObjectLister, error) {
	if l, ok := r.listers[name]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("lister %s is not registered (have %v)", name, r.Names())
}

// Names lists registered lister names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.listers))
	for name := range r.listers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

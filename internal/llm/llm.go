package llm

import (
	"context"
	"sort"
	"strings"
)

// Payload is the structured reply of one provider for one framework.
type Payload = map[string]any

// Adapter turns a prompt context into a framework payload using one provider.
//
// Production adapters degrade to a canned payload on any provider problem and
// return a nil error; the error return is for adapters that cannot do that.
type Adapter interface {
	Name() string
	Analyze(ctx context.Context, promptContext, frameworkID string) (Payload, error)
}

// Registry maps provider ids to adapters. It is built once at startup and
// read-only afterwards.
type Registry map[string]Adapter

// NewRegistry indexes adapters by Name(). Later adapters win on duplicate names.
func NewRegistry(adapters ...Adapter) Registry {
	reg := make(Registry, len(adapters))
	for _, a := range adapters {
		if a == nil {
			continue
		}
		reg[strings.TrimSpace(a.Name())] = a
	}
	return reg
}

// Get returns the adapter registered under id.
func (r Registry) Get(id string) (Adapter, bool) {
	a, ok := r[id]
	return a, ok
}

// Names returns registered provider ids in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

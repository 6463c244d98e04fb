// Package tools implements the built-in tool groups: encoding, hashing,
// math, filesystem paths and network helpers. Handlers are pure apart from
// the DNS tools, which honour the invocation context's deadline.
package tools

import "github.com/triage-ai/toolbox/internal/registry"

// Catalog returns every built-in group in listing order.
func Catalog(resolver Resolver) [][]registry.Tool {
	return [][]registry.Tool{
		Encoding(),
		Hashing(),
		Math(),
		Files(),
		Network(resolver),
	}
}

// NewRegistry builds a registry holding the full catalog.
func NewRegistry(resolver Resolver) (*registry.Registry, error) {
	return registry.New(Catalog(resolver)...)
}

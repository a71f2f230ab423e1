// Package builtin registers the stock operator types: constant sources,
// arithmetic, expression-driven row transforms, list aggregation, and the
// structural container/loop operators the reconciler treats specially.
package builtin

import (
	"github.com/vk/opgraph/internal/registry"
)

// NewRegistry returns a registry populated with every built-in operator
// type. Embedders extend it with their own types before reconciling.
func NewRegistry() *registry.Registry {
	r := registry.New()
	registerValueOps(r)
	registerExprOps(r)
	registerStructuralOps(r)
	return r
}

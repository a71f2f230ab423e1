// Package store provides the arena that owns the live operator
// population. All upstream/downstream and connection references between
// operators are plain ids resolved through this arena; nothing else owns
// an operator. The arena is passed explicitly to the reconciler and the
// executor rather than reached through ambient globals.
//
// sync.Map backs the population: reconciliation writes are batched and
// rare, while evaluation reads the same keys concurrently from many
// branches of a pull.
package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vk/opgraph/internal/field"
	"github.com/vk/opgraph/internal/op"
)

// Population is the id-keyed arena of live operators.
type Population struct {
	ops     sync.Map // Key: operator id string, Value: *op.Operator
	count   atomic.Int64
	batcher *field.Batcher
}

// New creates an empty population with its own notification batcher.
func New() *Population {
	return &Population{batcher: field.NewBatcher()}
}

// Get resolves an operator id. It implements op.Resolver.
func (p *Population) Get(id string) (*op.Operator, bool) {
	v, ok := p.ops.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*op.Operator), true
}

// Set stores an operator under its id, replacing any previous instance.
func (p *Population) Set(o *op.Operator) {
	if _, loaded := p.ops.Swap(o.ID, o); !loaded {
		p.count.Add(1)
	}
}

// Delete removes the operator with the given id without disposing it.
func (p *Population) Delete(id string) {
	if _, loaded := p.ops.LoadAndDelete(id); loaded {
		p.count.Add(-1)
	}
}

// Clear disposes and removes every operator. Used on project load.
func (p *Population) Clear() {
	p.ops.Range(func(key, value any) bool {
		value.(*op.Operator).Dispose()
		p.ops.Delete(key)
		p.count.Add(-1)
		return true
	})
}

// All returns the live operators sorted by id.
func (p *Population) All() []*op.Operator {
	var out []*op.Operator
	p.ops.Range(func(_, value any) bool {
		out = append(out, value.(*op.Operator))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live operators.
func (p *Population) Len() int {
	return int(p.count.Load())
}

// Batcher returns the population-wide notification batcher; fields created
// for this population attach to it.
func (p *Population) Batcher() *field.Batcher {
	return p.batcher
}

// Batch runs fn with external subscriber notification deferred until fn
// returns, so listeners never observe intermediate reconciliation states.
func (p *Population) Batch(fn func()) {
	p.batcher.Run(fn)
}

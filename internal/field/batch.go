package field

import "sync"

// Batcher defers external subscriber notification while a structural batch
// (typically a reconciliation pass) is in flight, so listeners never
// observe intermediate graph states. Owner hooks (dirty propagation) are
// not deferred; only subscriber fan-out is.
type Batcher struct {
	mu      sync.Mutex
	depth   int
	order   []*Field
	pending map[*Field]struct{}
}

// NewBatcher returns an inactive batcher.
func NewBatcher() *Batcher {
	return &Batcher{pending: make(map[*Field]struct{})}
}

// Run executes fn inside a batch. Nested calls are flattened; deferred
// notifications flush once when the outermost batch completes. Each field
// is delivered at most once, with its final value.
func (b *Batcher) Run(fn func()) {
	b.mu.Lock()
	b.depth++
	b.mu.Unlock()

	fn()

	b.mu.Lock()
	b.depth--
	var flush []*Field
	if b.depth == 0 && len(b.order) > 0 {
		flush = b.order
		b.order = nil
		b.pending = make(map[*Field]struct{})
	}
	b.mu.Unlock()

	for _, f := range flush {
		f.deliver(f.Value())
	}
}

// enqueue records a changed field for deferred delivery. It reports false
// when no batch is active, in which case the caller delivers immediately.
func (b *Batcher) enqueue(f *Field) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.depth == 0 {
		return false
	}
	if _, ok := b.pending[f]; !ok {
		b.pending[f] = struct{}{}
		b.order = append(b.order, f)
	}
	return true
}

// Package field implements the typed reactive value cell owned by
// operators. A field validates writes against its schema, accepts
// connections from other fields, and notifies subscribers synchronously on
// every value change, including changes that arrive transitively through a
// connection.
package field

import (
	"fmt"
	"sync"

	"github.com/vk/opgraph/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Kind distinguishes the two connection kinds.
type Kind int

const (
	// KindValue is a data-flow connection: the source value becomes the
	// target field's value.
	KindValue Kind = iota
	// KindReference reads the source without affecting the target's value.
	// It exists for formula-style lookups and still implies an
	// operator-level dependency edge.
	KindReference
)

func (k Kind) String() string {
	if k == KindReference {
		return "reference"
	}
	return "value"
}

// Connection is one named link from a source field into this field.
type Connection struct {
	ID       string
	SourceOp string
	Source   *Field
	Kind     Kind

	unsub func()
}

// Field is a typed reactive value cell.
type Field struct {
	name     string
	schema   *schema.Schema
	list     bool
	accessor bool

	mu    sync.RWMutex
	value cty.Value
	// local is the last value set directly on the field, kept so the field
	// can revert when its active connection is removed.
	local cty.Value
	fn    *function.Function

	conns   []*Connection
	subs    map[int]func(cty.Value)
	nextSub int

	// onChange is the owning operator's hook. It fires synchronously on
	// every committed change and is exempt from batching, because dirty
	// propagation must be eager even when UI notification is deferred.
	onChange func()

	batcher *Batcher
}

// New creates a plain field with the given schema and initial value null.
func New(name string, s *schema.Schema) *Field {
	return &Field{
		name:   name,
		schema: s,
		value:  cty.NullVal(s.Type),
		local:  cty.NullVal(s.Type),
		subs:   make(map[int]func(cty.Value)),
	}
}

// NewList creates a field that accepts multiple simultaneous value
// connections and aggregates them into an ordered sequence.
func NewList(name string, s *schema.Schema) *Field {
	f := New(name, s)
	f.list = true
	f.value = cty.EmptyTupleVal
	f.local = cty.EmptyTupleVal
	return f
}

// NewAccessor creates a field that may hold either a constant or a per-row
// function used during iteration-style evaluation.
func NewAccessor(name string, s *schema.Schema) *Field {
	f := New(name, s)
	f.accessor = true
	return f
}

// Name returns the field's name within its operator.
func (f *Field) Name() string { return f.name }

// Schema returns the field's schema.
func (f *Field) Schema() *schema.Schema { return f.schema }

// IsList reports whether the field aggregates multiple connections.
func (f *Field) IsList() bool { return f.list }

// IsAccessor reports whether the field may hold a per-row function.
func (f *Field) IsAccessor() bool { return f.accessor }

// SetOwnerHook installs the owning operator's synchronous change hook.
func (f *Field) SetOwnerHook(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

// SetBatcher attaches the population-wide notification batcher.
func (f *Field) SetBatcher(b *Batcher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batcher = b
}

// Value returns the field's current value.
func (f *Field) Value() cty.Value {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// SetValue validates v against the schema and, on success, records it as
// the field's local value. If no value connection is active the field's
// visible value updates and subscribers are notified synchronously. On
// validation failure the prior value is retained and the error returned.
func (f *Field) SetValue(v cty.Value) error {
	if err := f.schema.ValidateValue(v); err != nil {
		return err
	}

	f.mu.Lock()
	f.local = v
	changed, newVal := f.recomputeLocked()
	f.mu.Unlock()

	if changed {
		f.notify(newVal)
	}
	return nil
}

// SetFunc stores a per-row function on an accessor field.
func (f *Field) SetFunc(fn function.Function) error {
	if !f.accessor {
		return fmt.Errorf("field %q is not an accessor and cannot hold a function", f.name)
	}
	f.mu.Lock()
	f.fn = &fn
	hook := f.onChange
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

// Func returns the per-row function, if one is set.
func (f *Field) Func() (function.Function, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.fn == nil {
		return function.Function{}, false
	}
	return *f.fn, true
}

// recomputeLocked recalculates the visible value from the active
// connections and the local value. It returns whether the value changed
// and the new value. Caller holds f.mu.
func (f *Field) recomputeLocked() (bool, cty.Value) {
	next := f.resolveLocked()
	if f.value != cty.NilVal && next != cty.NilVal && f.value.RawEquals(next) {
		return false, next
	}
	f.value = next
	return true, next
}

// resolveLocked computes what the field's value should be right now.
func (f *Field) resolveLocked() cty.Value {
	if f.list {
		var elems []cty.Value
		for _, c := range f.conns {
			if c.Kind == KindValue {
				elems = append(elems, c.Source.Value())
			}
		}
		if len(elems) == 0 {
			return f.local
		}
		return cty.TupleVal(elems)
	}

	// Non-list: the most recently added value connection wins.
	for i := len(f.conns) - 1; i >= 0; i-- {
		if f.conns[i].Kind == KindValue {
			return f.conns[i].Source.Value()
		}
	}
	return f.local
}

// notify delivers a committed change: the owner hook fires immediately,
// external subscribers go through the batcher when one is active.
func (f *Field) notify(v cty.Value) {
	f.mu.RLock()
	hook := f.onChange
	b := f.batcher
	f.mu.RUnlock()

	if hook != nil {
		hook()
	}
	if b != nil && b.enqueue(f) {
		return
	}
	f.deliver(v)
}

// deliver invokes every subscriber with the value.
func (f *Field) deliver(v cty.Value) {
	f.mu.RLock()
	listeners := make([]func(cty.Value), 0, len(f.subs))
	for _, fn := range f.subs {
		listeners = append(listeners, fn)
	}
	f.mu.RUnlock()

	for _, fn := range listeners {
		fn(v)
	}
}

// Subscribe registers a listener fired on every value change. The returned
// function unsubscribes it.
func (f *Field) Subscribe(fn func(cty.Value)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// SubscriberCount returns the number of registered listeners.
func (f *Field) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

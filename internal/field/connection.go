package field

import "github.com/zclconf/go-cty/cty"

// AddConnection registers a named connection from src into this field.
// For non-list fields a later value connection supersedes the active one
// (last wins); reference connections never affect the visible value. For
// list fields every value connection contributes one element to the
// aggregate, ordered by insertion.
//
// Adding a connection with an id that is already registered replaces the
// previous registration in place.
func (f *Field) AddConnection(id, sourceOp string, src *Field, kind Kind) {
	// A field can never feed itself: subscribing to our own notifications
	// would deadlock on the field lock.
	if src == f {
		return
	}

	f.mu.Lock()

	for i, c := range f.conns {
		if c.ID == id {
			if c.unsub != nil {
				c.unsub()
			}
			f.conns = append(f.conns[:i], f.conns[i+1:]...)
			break
		}
	}

	conn := &Connection{ID: id, SourceOp: sourceOp, Source: src, Kind: kind}
	if kind == KindValue {
		// Track the source so transitive upstream changes flow through.
		conn.unsub = src.Subscribe(func(cty.Value) {
			f.mu.Lock()
			changed, newVal := f.recomputeLocked()
			f.mu.Unlock()
			if changed {
				f.notify(newVal)
			}
		})
	}
	f.conns = append(f.conns, conn)

	changed, newVal := f.recomputeLocked()
	f.mu.Unlock()

	if changed {
		f.notify(newVal)
	}
}

// RemoveConnection removes the connection registered under id with the
// given kind. If it was the active value source the field reverts to the
// most recently added remaining value connection, or to its last locally
// set value when none remain. It reports whether a connection was removed.
func (f *Field) RemoveConnection(id string, kind Kind) bool {
	f.mu.Lock()

	idx := -1
	for i, c := range f.conns {
		if c.ID == id && c.Kind == kind {
			idx = i
			break
		}
	}
	if idx == -1 {
		f.mu.Unlock()
		return false
	}

	if f.conns[idx].unsub != nil {
		f.conns[idx].unsub()
	}
	f.conns = append(f.conns[:idx], f.conns[idx+1:]...)

	changed, newVal := f.recomputeLocked()
	f.mu.Unlock()

	if changed {
		f.notify(newVal)
	}
	return true
}

// Connections returns a snapshot of the field's connection table.
func (f *Field) Connections() []Connection {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Connection, len(f.conns))
	for i, c := range f.conns {
		out[i] = Connection{ID: c.ID, SourceOp: c.SourceOp, Source: c.Source, Kind: c.Kind}
	}
	return out
}

// HasConnection reports whether a connection with the given id exists.
func (f *Field) HasConnection(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range f.conns {
		if c.ID == id {
			return true
		}
	}
	return false
}

// DisconnectAll removes every connection, unsubscribing from all sources.
// Used on dispose; it does not recompute or notify since the owning
// operator is going away.
func (f *Field) DisconnectAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		if c.unsub != nil {
			c.unsub()
		}
	}
	f.conns = nil
	f.subs = make(map[int]func(cty.Value))
}

package vmap

import "cmp"

// KV is a single yielded (key, value) pair from a Range.
type KV[K cmp.Ordered, V any] struct {
	Key K
	Val V
}

// Range is a lazy, forward-only, non-restartable iterator over a slice of
// the underlying btree filtered by version validity, mirroring mdb's
// snapshot_range (one-slot prefetch cache, lazily computed cached count).
type Range[K cmp.Ordered, V any] struct {
	version Version
	items   []entry[K, V] // pre-selected bound; filtering happens lazily on Next
	pos     int
	count   int // -1 until computed
}

func newRange[K cmp.Ordered, V any](version Version, items []entry[K, V]) *Range[K, V] {
	return &Range[K, V]{version: version, items: items, count: -1}
}

// HasNext reports whether a further valid entry remains.
func (r *Range[K, V]) HasNext() bool {
	for r.pos < len(r.items) {
		if r.items[r.pos].value.ValidAt(r.version) {
			return true
		}
		r.pos++
	}
	return false
}

// Next returns the next valid (key, value) pair. Panics if HasNext is false.
func (r *Range[K, V]) Next() KV[K, V] {
	for r.pos < len(r.items) {
		it := r.items[r.pos]
		if it.value.ValidAt(r.version) {
			r.pos++
			return KV[K, V]{Key: it.key, Val: it.value.Val}
		}
		r.pos++
	}
	panic("vmap: Next called with no more elements")
}

// Count is lazily computed on first call and cached thereafter.
func (r *Range[K, V]) Count() int {
	if r.count >= 0 {
		return r.count
	}
	n := 0
	for _, it := range r.items {
		if it.value.ValidAt(r.version) {
			n++
		}
	}
	r.count = n
	return n
}

func (h *Handle[K, V]) collect(lo, hi *K, inclusiveHi bool) []entry[K, V] {
	g := h.grp
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []entry[K, V]
	if lo == nil {
		g.data.Scan(func(it entry[K, V]) bool {
			if hi != nil && (it.key > *hi || (!inclusiveHi && it.key == *hi)) {
				return false
			}
			out = append(out, it)
			return true
		})
		return out
	}
	g.data.Ascend(entry[K, V]{key: *lo}, func(it entry[K, V]) bool {
		if hi != nil && (it.key > *hi || (!inclusiveHi && it.key == *hi)) {
			return false
		}
		out = append(out, it)
		return true
	})
	return out
}

// All returns every entry valid at this handle's version, in key order.
func (h *Handle[K, V]) All() *Range[K, V] {
	h.checkAlive()
	return newRange(h.version, h.collect(nil, nil, false))
}

// Query returns entries with exact key.
func (h *Handle[K, V]) Query(key K) *Range[K, V] {
	h.checkAlive()
	return newRange(h.version, h.collect(&key, &key, true))
}

// QueryLT returns entries with key strictly less than the bound.
func (h *Handle[K, V]) QueryLT(key K) *Range[K, V] {
	h.checkAlive()
	return newRange(h.version, h.collect(nil, &key, false))
}

// QueryGT returns entries with key strictly greater than the bound.
func (h *Handle[K, V]) QueryGT(key K) *Range[K, V] {
	h.checkAlive()
	g := h.grp
	g.mu.Lock()
	var out []entry[K, V]
	g.data.Ascend(entry[K, V]{key: key}, func(it entry[K, V]) bool {
		if it.key > key {
			out = append(out, it)
		}
		return true
	})
	g.mu.Unlock()
	return newRange(h.version, out)
}

// QueryIn returns entries with key in the half-open range [lo, hi),
// i.e. lower_bound(lo)..lower_bound(hi).
func (h *Handle[K, V]) QueryIn(lo, hi K) *Range[K, V] {
	h.checkAlive()
	return newRange(h.version, h.collect(&lo, &hi, false))
}

// Package vmap implements the versioned ordered map: a sorted multimap from
// key to value where every entry carries a [created_at, removed_at) version
// interval, backed by github.com/tidwall/btree's generic BTreeG. A single
// writer handle mutates a snapshot group; any number of reader handles
// observe a frozen version of it. A scan holds the group mutex only while
// it copies out its key range; version filtering happens afterwards,
// without the lock.
package vmap

import (
	"cmp"
	"sync"

	"github.com/tidwall/btree"

	"corerel/pkg/a_errs"
)

// Version is mdb's version_t: monotonically increasing, -1 means detached.
type Version = int64

const NoVersion Version = -1

// VersionedValue is an immutable payload plus its visibility interval.
type VersionedValue[V any] struct {
	Val       V
	CreatedAt Version
	RemovedAt Version // NoVersion until removed
}

func (vv VersionedValue[V]) ValidAt(v Version) bool {
	return vv.CreatedAt <= v && (vv.RemovedAt == NoVersion || v < vv.RemovedAt)
}

// invalidAtAndBefore mirrors mdb's invalid_at_and_before: true when v is
// strictly before this entry ever became visible.
func (vv VersionedValue[V]) invalidAtAndBefore(v Version) bool {
	return v < vv.CreatedAt
}

// invalidAtAndAfter mirrors mdb's invalid_at_and_after: true when v is at or
// past the entry's removal.
func (vv VersionedValue[V]) invalidAtAndAfter(v Version) bool {
	return vv.RemovedAt != NoVersion && vv.RemovedAt <= v
}

func (vv *VersionedValue[V]) remove(v Version) {
	errs.Verify(vv.RemovedAt == NoVersion, "versioned value removed twice")
	vv.RemovedAt = v
	errs.Verify(vv.CreatedAt < vv.RemovedAt, "remove version must exceed create version")
}

type entry[K cmp.Ordered, V any] struct {
	key   K
	seq   uint64 // tie-breaker: lets duplicate keys coexist in the btree
	value VersionedValue[V]
}

func lessEntry[K cmp.Ordered, V any](a, b entry[K, V]) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.seq < b.seq
}

type removedRange[K cmp.Ordered] struct {
	ver Version
	lo  K
	hi  K
}

// group is the shared backing store for a family of snapshots descended
// from a single writer.
type group[K cmp.Ordered, V any] struct {
	mu sync.Mutex

	data    *btree.BTreeG[entry[K, V]]
	ranges  []removedRange[K] // ordered by ver, ascending (version only grows)
	nextSeq uint64

	writer  *Handle[K, V]
	readers map[*Handle[K, V]]struct{}
	refs    int
}

func newGroup[K cmp.Ordered, V any]() *group[K, V] {
	return &group[K, V]{
		data:    btree.NewBTreeG(lessEntry[K, V]),
		readers: make(map[*Handle[K, V]]struct{}),
	}
}

// Handle is a member of a snapshot group: either the unique writer or one
// of its readers, stamped with a version.
type Handle[K cmp.Ordered, V any] struct {
	grp      *group[K, V]
	version  Version
	isWriter bool
	closed   bool
}

// New creates a fresh VMap with a single writer handle at version 0.
func New[K cmp.Ordered, V any]() *Handle[K, V] {
	grp := newGroup[K, V]()
	h := &Handle[K, V]{grp: grp, version: 0, isWriter: true}
	grp.writer = h
	grp.refs = 1
	return h
}

func (h *Handle[K, V]) checkAlive() {
	errs.Verify(!h.closed, "vmap handle used after Close")
}

func (h *Handle[K, V]) checkWriter() {
	h.checkAlive()
	errs.Verify(h.isWriter, "mutation attempted through a read-only vmap snapshot")
}

// Version returns this handle's stamped version (writer: current; reader:
// frozen at snapshot time).
func (h *Handle[K, V]) Version() Version {
	h.checkAlive()
	return h.version
}

func (h *Handle[K, V]) IsWriter() bool { return h.isWriter }

// HasReaders reports whether the writer's group has any live reader
// snapshots (mdb's has_readonly_snapshot).
func (h *Handle[K, V]) HasReaders() bool {
	h.checkAlive()
	h.grp.mu.Lock()
	defer h.grp.mu.Unlock()
	return len(h.grp.readers) > 0
}

// HasWriter reports whether the group still has a live writer (mdb's
// has_writable_snapshot).
func (h *Handle[K, V]) HasWriter() bool {
	h.checkAlive()
	h.grp.mu.Lock()
	defer h.grp.mu.Unlock()
	return h.grp.writer != nil
}

// Len exposes the raw physical entry count (mdb's debug_storage_size), used
// by tests to observe GC actually shrinking storage.
func (h *Handle[K, V]) Len() int {
	h.checkAlive()
	h.grp.mu.Lock()
	defer h.grp.mu.Unlock()
	return h.grp.data.Len()
}

// Insert places a new versioned value under key, bumping the writer's
// version. Duplicate keys coexist.
func (h *Handle[K, V]) Insert(key K, val V) {
	h.checkWriter()
	g := h.grp
	g.mu.Lock()
	defer g.mu.Unlock()

	h.version++
	seq := g.nextSeq
	g.nextSeq++
	g.data.Set(entry[K, V]{key: key, seq: seq, value: VersionedValue[V]{
		Val:       val,
		CreatedAt: h.version,
		RemovedAt: NoVersion,
	}})
}

// Erase removes every entry with exact key. If readers exist the entries
// are tombstoned (removed_at set) and the erased range recorded for later
// GC; otherwise they are deleted immediately, since no observer can ever
// see the tombstone form.
func (h *Handle[K, V]) Erase(key K) {
	h.checkWriter()
	g := h.grp
	g.mu.Lock()
	defer g.mu.Unlock()

	h.version++

	if len(g.readers) > 0 {
		var toUpdate []entry[K, V]
		g.data.Ascend(entry[K, V]{key: key}, func(it entry[K, V]) bool {
			if it.key != key {
				return false
			}
			if it.value.RemovedAt == NoVersion {
				toUpdate = append(toUpdate, it)
			}
			return true
		})
		for _, it := range toUpdate {
			it.value.remove(h.version)
			g.data.Set(it)
		}
		g.ranges = append(g.ranges, removedRange[K]{ver: h.version, lo: key, hi: key})
	} else {
		var toDelete []entry[K, V]
		g.data.Ascend(entry[K, V]{key: key}, func(it entry[K, V]) bool {
			if it.key != key {
				return false
			}
			toDelete = append(toDelete, it)
			return true
		})
		for _, it := range toDelete {
			g.data.Delete(it)
		}
	}
}

// Snapshot returns a new reader handle sharing this group, stamped at the
// writer's current version. O(1): no data is copied.
func (h *Handle[K, V]) Snapshot() *Handle[K, V] {
	h.checkAlive()
	g := h.grp
	g.mu.Lock()
	defer g.mu.Unlock()

	var ver Version
	if g.writer != nil {
		ver = g.writer.version
	} else {
		ver = h.version
	}
	reader := &Handle[K, V]{grp: g, version: ver, isWriter: false}
	g.readers[reader] = struct{}{}
	g.refs++
	return reader
}

// Clone reproduces mdb's copy-constructor split: cloning a reader yields
// another reader on the same group; cloning a writer yields a fresh writer
// over an independent group deep-copied from the current live view.
func (h *Handle[K, V]) Clone() *Handle[K, V] {
	h.checkAlive()
	if !h.isWriter {
		return h.Snapshot()
	}

	g := h.grp
	g.mu.Lock()
	srcVersion := h.version
	// Start from a structural copy of the tree (cheap, copy-on-write) and
	// prune it down to the entries visible at this version, renumbering
	// them into the new group's version 1 the way mdb's
	// `insert(src.all())` folds the whole live view into a single batch.
	cloned := g.data.Copy()
	g.mu.Unlock()

	newGrp := newGroup[K, V]()
	var seq uint64
	cloned.Scan(func(it entry[K, V]) bool {
		if it.value.ValidAt(srcVersion) {
			newGrp.data.Set(entry[K, V]{
				key: it.key,
				seq: seq,
				value: VersionedValue[V]{
					Val:       it.value.Val,
					CreatedAt: 1,
					RemovedAt: NoVersion,
				},
			})
			seq++
		}
		return true
	})
	newGrp.nextSeq = seq

	nh := &Handle[K, V]{grp: newGrp, version: 1, isWriter: true}
	newGrp.writer = nh
	newGrp.refs = 1
	return nh
}

// Close destroys this handle and runs the garbage-collection pass below.
// The group is freed once its last member departs.
func (h *Handle[K, V]) Close() {
	if h.closed {
		return
	}
	g := h.grp
	g.mu.Lock()
	h.collectGarbage()

	if g.writer == h {
		g.writer = nil
	} else {
		delete(g.readers, h)
	}
	g.refs--
	freed := g.refs == 0
	g.mu.Unlock()

	h.closed = true
	if freed {
		g.data = nil
		g.ranges = nil
	}
}

// collectGarbage must be called with g.mu held.
func (h *Handle[K, V]) collectGarbage() {
	g := h.grp

	if h.isWriter {
		if len(g.readers) == 0 {
			return
		}
		// Writer destroyed while readers remain: only versions strictly
		// beyond the highest remaining observer are unreachable, since no
		// new versions can ever be produced once the writer is gone.
		maxVer := Version(NoVersion)
		for r := range g.readers {
			if r.version > maxVer {
				maxVer = r.version
			}
		}
		var toDelete []entry[K, V]
		g.data.Scan(func(it entry[K, V]) bool {
			if it.value.invalidAtAndBefore(maxVer) {
				toDelete = append(toDelete, it)
			}
			return true
		})
		for _, it := range toDelete {
			g.data.Delete(it)
		}
		return
	}

	// Reader destroyed: if any other snapshot still has version <= ours,
	// it pins the same data we would collect; defer to it.
	for r := range g.readers {
		if r != h && r.version <= h.version {
			return
		}
	}
	if g.writer != nil && g.writer.version <= h.version {
		return
	}

	nextSmallest := Version(NoVersion)
	for r := range g.readers {
		if r == h {
			continue
		}
		if nextSmallest == NoVersion || r.version < nextSmallest {
			nextSmallest = r.version
		}
	}
	if nextSmallest == NoVersion {
		if g.writer != nil {
			nextSmallest = g.writer.version + 1
		} else {
			nextSmallest = h.version + 1
		}
	}

	remaining := g.ranges[:0]
	for _, rr := range g.ranges {
		if rr.ver > nextSmallest {
			remaining = append(remaining, rr)
			continue
		}
		var toDelete []entry[K, V]
		g.data.Ascend(entry[K, V]{key: rr.lo}, func(it entry[K, V]) bool {
			if it.key > rr.hi {
				return false
			}
			if it.value.invalidAtAndAfter(nextSmallest) {
				toDelete = append(toDelete, it)
			}
			return true
		})
		for _, it := range toDelete {
			g.data.Delete(it)
		}
	}
	g.ranges = remaining
}

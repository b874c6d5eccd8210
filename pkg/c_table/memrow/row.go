// Package memrow gives the transaction core something concrete to operate
// on: in-memory COARSE, FINE, and VERSIONED rows, and UNSORTED, SORTED, and
// SNAPSHOT tables built over them. Row/table physical layout stays an
// external collaborator of the transactional core — this package exists
// purely to exercise every capability in pkg/c_table end to end.
package memrow

import (
	"sync/atomic"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
)

func copyValue(v table.Value) table.Value {
	if v == nil {
		return nil
	}
	out := make(table.Value, len(v))
	copy(out, v)
	return out
}

func copyColumns(cols []table.Value) []table.Value {
	out := make([]table.Value, len(cols))
	for i, v := range cols {
		out[i] = copyValue(v)
	}
	return out
}

// base holds the bookkeeping shared by all three row kinds.
type base struct {
	key     table.Key
	columns []table.Value
	tbl     table.Table
	refs    atomic.Int32
}

func newBase(key table.Key, columns []table.Value) base {
	b := base{key: key, columns: copyColumns(columns)}
	b.refs.Store(1)
	return b
}

func (b *base) Key() table.Key           { return b.key }
func (b *base) Get(col int) table.Value  { return b.columns[col] }
func (b *base) ColumnCount() int         { return len(b.columns) }
func (b *base) Update(col int, v table.Value) { b.columns[col] = copyValue(v) }
func (b *base) Table() table.Table       { return b.tbl }
func (b *base) BindTable(t table.Table)  { b.tbl = t }
func (b *base) RefCopy() {
	b.refs.Add(1)
}
func (b *base) Release() {
	if b.refs.Add(-1) < 0 {
		errs.Misuse("row released more times than referenced")
	}
}

// CoarseRow locks its whole row as a unit.
type CoarseRow struct {
	base
	lock *rwlock
}

func NewCoarseRow(key table.Key, columns ...table.Value) *CoarseRow {
	return &CoarseRow{base: newBase(key, columns), lock: newRWLock()}
}

func (r *CoarseRow) Kind() table.RowKind { return table.Coarse }

func (r *CoarseRow) Copy() table.Row {
	return &CoarseRow{base: newBase(r.key, r.columns), lock: newRWLock()}
}

func (r *CoarseRow) RefCopy() table.Row {
	r.base.RefCopy()
	return r
}

func (r *CoarseRow) RLockRow(holder uint64) bool      { return r.lock.tryRLock(holder) }
func (r *CoarseRow) WLockRow(holder uint64) bool      { return r.lock.tryWLock(holder) }
func (r *CoarseRow) UnlockRow(holder uint64)          { r.lock.unlock(holder) }

// FineRow locks each column independently.
type FineRow struct {
	base
	locks []*rwlock
}

func NewFineRow(key table.Key, columns ...table.Value) *FineRow {
	b := newBase(key, columns)
	locks := make([]*rwlock, len(b.columns))
	for i := range locks {
		locks[i] = newRWLock()
	}
	return &FineRow{base: b, locks: locks}
}

func (r *FineRow) Kind() table.RowKind { return table.Fine }

func (r *FineRow) Copy() table.Row {
	return NewFineRow(r.key, r.columns...)
}

func (r *FineRow) RefCopy() table.Row {
	r.base.RefCopy()
	return r
}

func (r *FineRow) RLockColumn(col int, holder uint64) bool { return r.locks[col].tryRLock(holder) }
func (r *FineRow) WLockColumn(col int, holder uint64) bool { return r.locks[col].tryWLock(holder) }
func (r *FineRow) UnlockColumn(col int, holder uint64)     { r.locks[col].unlock(holder) }

// VersionedRow carries a per-column version counter plus whole-row locking,
// used by the OCC two-phase commit variant.
type VersionedRow struct {
	base
	versions []int64
	lock     *rwlock
}

func NewVersionedRow(key table.Key, columns ...table.Value) *VersionedRow {
	b := newBase(key, columns)
	return &VersionedRow{base: b, versions: make([]int64, len(b.columns)), lock: newRWLock()}
}

func (r *VersionedRow) Kind() table.RowKind { return table.Versioned }

func (r *VersionedRow) Copy() table.Row {
	cp := NewVersionedRow(r.key, r.columns...)
	copy(cp.versions, r.versions)
	return cp
}

func (r *VersionedRow) RefCopy() table.Row {
	r.base.RefCopy()
	return r
}

func (r *VersionedRow) ColumnVersion(col int) int64 { return r.versions[col] }
func (r *VersionedRow) IncrColumnVersion(col int)   { r.versions[col]++ }

func (r *VersionedRow) RLockRow(holder uint64) bool { return r.lock.tryRLock(holder) }
func (r *VersionedRow) WLockRow(holder uint64) bool { return r.lock.tryWLock(holder) }
func (r *VersionedRow) UnlockRow(holder uint64)     { r.lock.unlock(holder) }

var (
	_ table.LockableRow     = (*CoarseRow)(nil)
	_ table.FineLockableRow = (*FineRow)(nil)
	_ table.VersionedRow    = (*VersionedRow)(nil)
)

// Package table defines the external Row/Table capability contract the
// transaction core consumes. Row/Schema/Value physical layout is out of
// scope for the core; this package only fixes the shape every concrete
// table/row must present.
package table

// Kind tags a table the way mdb's Table::rtti() does.
type Kind int

const (
	Unsorted Kind = iota
	Sorted
	Snapshot
)

// RowKind tags a row the way mdb's Row::rtti() does; it is immutable and
// dictates which concurrency discipline may bind to the row.
type RowKind int

const (
	Coarse RowKind = iota
	Fine
	Versioned
)

// Order controls scan direction. UNSORTED tables only accept Any.
type Order int

const (
	OrderAny Order = iota
	OrderAsc
	OrderDesc
)

// Key is the opaque, orderable row key (mdb's MultiBlob, reduced to a byte
// string since schema/encoding are out of scope here).
type Key = string

// Value is an opaque column value (mdb's Value, reduced to bytes).
type Value = []byte

// Row is the capability every row, of any kind, presents to the core.
type Row interface {
	Key() Key
	Kind() RowKind
	Get(col int) Value
	Update(col int, v Value)
	Copy() Row
	ColumnCount() int

	// Table returns the table this row is currently bound to, or nil if it
	// lives only in a transaction's staging area.
	Table() Table
	// BindTable is called by a Table's Insert/Remove to update the row's
	// table pointer; never called directly by the transaction core.
	BindTable(t Table)

	RefCopy() Row
	Release()
}

// LockableRow is implemented by COARSE rows: whole-row locking.
type LockableRow interface {
	Row
	RLockRow(holder uint64) bool
	WLockRow(holder uint64) bool
	UnlockRow(holder uint64)
}

// FineLockableRow is implemented by FINE rows: per-column locking.
type FineLockableRow interface {
	Row
	RLockColumn(col int, holder uint64) bool
	WLockColumn(col int, holder uint64) bool
	UnlockColumn(col int, holder uint64)
}

// VersionedRow is implemented by VERSIONED rows: per-column version
// witnesses plus whole-row locking for the OCC two-phase commit variant.
type VersionedRow interface {
	Row
	ColumnVersion(col int) int64
	IncrColumnVersion(col int)
	RLockRow(holder uint64) bool
	WLockRow(holder uint64) bool
	UnlockRow(holder uint64)
}

// Cursor is a lazy, forward-only, non-restartable row sequence, mirroring
// mdb's Enumerator<const Row*>. Ownership of whatever it wraps is released
// by Close.
type Cursor interface {
	HasNext() bool
	Next() Row
	Close()
}

// Table is the capability common to all three kinds.
type Table interface {
	Name() string
	Kind() Kind
	Insert(row Row)
	Remove(row Row)
	Query(key Key) Cursor
	All(order Order) Cursor
}

// RangeTable is additionally implemented by SORTED and SNAPSHOT tables.
type RangeTable interface {
	Table
	QueryLT(key Key, order Order) Cursor
	QueryGT(key Key, order Order) Cursor
	QueryIn(lo, hi Key, order Order) Cursor
}

// SnapshotCapableTable is implemented only by SNAPSHOT tables: a cheap
// copy-on-write handle sharing the same underlying versioned map group.
// Every handle, writer or reader, must be released with Close once done.
type SnapshotCapableTable interface {
	RangeTable
	Snapshot() SnapshotCapableTable
	Close()
}

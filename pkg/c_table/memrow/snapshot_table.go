package memrow

import (
	"corerel/pkg/a_errs"
	"corerel/pkg/b_vmap"
	"corerel/pkg/c_table"
)

// SnapshotTable wraps a vmap.Handle[Key, Row]. Updates are modeled as
// remove-then-insert: the transactional commit path (not this table) is
// responsible for copying the row and replacing it.
type SnapshotTable struct {
	name string
	h    *vmap.Handle[table.Key, table.Row]
}

func NewSnapshotTable(name string) *SnapshotTable {
	return &SnapshotTable{name: name, h: vmap.New[table.Key, table.Row]()}
}

func (t *SnapshotTable) Name() string     { return t.name }
func (t *SnapshotTable) Kind() table.Kind { return table.Snapshot }

func (t *SnapshotTable) Insert(row table.Row) {
	errs.Verify(t.h.IsWriter(), "insert on a read-only snapshot table handle")
	row.BindTable(t)
	t.h.Insert(row.Key(), row)
}

func (t *SnapshotTable) Remove(row table.Row) {
	errs.Verify(t.h.IsWriter(), "remove on a read-only snapshot table handle")
	t.h.Erase(row.Key())
	row.BindTable(nil)
}

func rangeCursor(r *vmap.Range[table.Key, table.Row], order table.Order) table.Cursor {
	var rows []table.Row
	for r.HasNext() {
		rows = append(rows, r.Next().Val)
	}
	if order == table.OrderDesc {
		rows = reversed(rows)
	}
	return &sliceCursor{rows: rows}
}

func (t *SnapshotTable) Query(key table.Key) table.Cursor {
	return rangeCursor(t.h.Query(key), table.OrderAny)
}

func (t *SnapshotTable) All(order table.Order) table.Cursor {
	errs.Verify(order == table.OrderAsc || order == table.OrderDesc || order == table.OrderAny, "invalid scan order")
	return rangeCursor(t.h.All(), order)
}

func (t *SnapshotTable) QueryLT(key table.Key, order table.Order) table.Cursor {
	errs.Verify(order == table.OrderAsc || order == table.OrderDesc || order == table.OrderAny, "invalid scan order")
	return rangeCursor(t.h.QueryLT(key), order)
}

func (t *SnapshotTable) QueryGT(key table.Key, order table.Order) table.Cursor {
	errs.Verify(order == table.OrderAsc || order == table.OrderDesc || order == table.OrderAny, "invalid scan order")
	return rangeCursor(t.h.QueryGT(key), order)
}

func (t *SnapshotTable) QueryIn(lo, hi table.Key, order table.Order) table.Cursor {
	errs.Verify(order == table.OrderAsc || order == table.OrderDesc || order == table.OrderAny, "invalid scan order")
	return rangeCursor(t.h.QueryIn(lo, hi), order)
}

// Snapshot returns a cheap reader handle sharing the same vmap group.
func (t *SnapshotTable) Snapshot() table.SnapshotCapableTable {
	return &SnapshotTable{name: t.name, h: t.h.Snapshot()}
}

// Close releases this handle's vmap membership (writer or reader).
func (t *SnapshotTable) Close() { t.h.Close() }

var _ table.SnapshotCapableTable = (*SnapshotTable)(nil)

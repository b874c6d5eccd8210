// Package nested implements sub-transactions that delegate to a base
// transaction instead of tables directly. It registers itself as e_txn's
// nested-transaction factory on import so TxnMgr.StartNested can
// construct one without e_txn importing this package back.
package nested

import (
	"go.uber.org/zap"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
	"corerel/pkg/d_stage"
	txn "corerel/pkg/e_txn"
)

func init() {
	txn.NestedFactory = func(base txn.Txn) txn.Txn { return New(base) }
}

// TxnNested shares no locks or version witnesses with its parent: it
// keeps its own staging area and a row_inserts set for O(1) "is this row
// locally inserted" checks, and replays to the parent only at commit.
type TxnNested struct {
	txn.Common
	base        txn.Txn
	rowInserts  map[table.Row]struct{}
	insertOrder []stage.InsertEntry
}

func New(base txn.Txn) *TxnNested {
	log := zap.NewNop()
	if c, ok := base.(interface{ Logger() *zap.Logger }); ok {
		log = c.Logger()
	}
	return &TxnNested{
		Common:     txn.NewCommon(base.ID(), log),
		base:       base,
		rowInserts: make(map[table.Row]struct{}),
	}
}

func (t *TxnNested) isLocallyInserted(row table.Row) bool {
	_, ok := t.rowInserts[row]
	return ok
}

// Read goes straight to the row if it is locally inserted; otherwise it
// consults the pending local overlay and, failing that, delegates to the
// parent.
func (t *TxnNested) Read(row table.Row, col int) (table.Value, bool) {
	t.CheckLive()
	if txn.Unbound(row) || t.isLocallyInserted(row) {
		return row.Get(col), true
	}
	if v, ok := t.Staging.PendingWrite(row, col); ok {
		return v, true
	}
	return t.base.Read(row, col)
}

// Write always stages locally; it is never written through to the parent
// until commit.
func (t *TxnNested) Write(row table.Row, col int, val table.Value) (bool, error) {
	t.CheckLive()
	if txn.Unbound(row) || t.isLocallyInserted(row) {
		row.Update(col, val)
		return true, nil
	}
	t.Staging.Write(row, col, val)
	return true, nil
}

func (t *TxnNested) Insert(tbl table.Table, row table.Row) bool {
	t.CheckLive()
	t.Staging.Insert(tbl, row)
	if _, ok := t.rowInserts[row]; !ok {
		t.rowInserts[row] = struct{}{}
		t.insertOrder = append(t.insertOrder, stage.InsertEntry{Table: tbl, Row: row})
	}
	return true
}

func (t *TxnNested) Remove(tbl table.Table, row table.Row) (bool, error) {
	t.CheckLive()
	if t.isLocallyInserted(row) {
		ok := t.Staging.CancelInsert(tbl, row)
		errs.Verify(ok, "remove: staged insert vanished underneath its own transaction")
		delete(t.rowInserts, row)
		return true, nil
	}
	t.Staging.MarkRemoved(tbl, row)
	return true, nil
}

func (t *TxnNested) isRemovedIn(tbl table.Table) func(table.Row) bool {
	return func(row table.Row) bool { return t.Staging.IsRemoved(tbl, row) }
}

// Query builds a merge cursor whose committed side is the parent's own
// scan result, overlaid with only this nested transaction's staged
// inserts and removes.
func (t *TxnNested) Query(tbl table.Table, key table.Key) table.Cursor {
	t.CheckLive()
	committed := t.base.Query(tbl, key)
	staged := t.Staging.InsertsExact(tbl.Name(), key)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), false)
}

func (t *TxnNested) All(tbl table.Table, order table.Order) table.Cursor {
	t.CheckLive()
	committed := t.base.All(tbl, order)
	staged := t.Staging.InsertsAll(tbl.Name(), order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

func (t *TxnNested) QueryLT(tbl table.RangeTable, key table.Key, order table.Order) table.Cursor {
	t.CheckLive()
	committed := t.base.QueryLT(tbl, key, order)
	staged := t.Staging.InsertsLT(tbl.Name(), key, order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

func (t *TxnNested) QueryGT(tbl table.RangeTable, key table.Key, order table.Order) table.Cursor {
	t.CheckLive()
	committed := t.base.QueryGT(tbl, key, order)
	staged := t.Staging.InsertsGT(tbl.Name(), key, order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

func (t *TxnNested) QueryIn(tbl table.RangeTable, lo, hi table.Key, order table.Order) table.Cursor {
	t.CheckLive()
	committed := t.base.QueryIn(tbl, lo, hi, order)
	staged := t.Staging.InsertsIn(tbl.Name(), lo, hi, order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

// Commit replays every staged element to the parent, in order: inserts
// first (in the order they were issued), then column writes, then
// removes. The parent's own discipline governs conflict reporting; the
// first failed replay stops the loop and returns false with whichever
// error the parent reported (or ErrConflict, for the insert path, which
// the parent's Insert never accompanies with a cause of its own). The
// outcome is then left unset for the caller to Abort, and elements
// already replayed stay staged in the parent.
func (t *TxnNested) Commit() (bool, error) {
	t.CheckLive()
	for _, e := range t.insertOrder {
		if !t.isLocallyInserted(e.Row) {
			continue // cancelled by a later local remove
		}
		if !t.base.Insert(e.Table, e.Row) {
			return false, errs.ErrConflict
		}
	}
	for _, batch := range t.Staging.UpdateBatches() {
		for col, val := range batch.Columns {
			if ok, err := t.base.Write(batch.Row, col, val); !ok {
				return false, err
			}
		}
	}
	for _, e := range t.Staging.Removes() {
		if ok, err := t.base.Remove(e.Table, e.Row); !ok {
			return false, err
		}
	}
	t.SetOutcome(txn.Committed)
	return true, nil
}

// Abort discards local staging; the parent is left entirely untouched.
func (t *TxnNested) Abort() {
	t.SetOutcome(txn.Aborted)
}

var _ txn.Txn = (*TxnNested)(nil)

// Package twopl implements strict two-phase locking over both COARSE
// (whole-row) and FINE (per-column) rows: a single controller picks the
// matching lock granularity per access rather than fixing it at
// construction.
package twopl

import (
	"go.uber.org/zap"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
	"corerel/pkg/d_stage"
	txn "corerel/pkg/e_txn"
)

// wholeRow is the col_id used in the lock ledger for a COARSE row's
// single whole-row lock, mirroring the -1 "whole row" convention used
// where a real column id is otherwise expected.
const wholeRow = -1

// Txn2PL is the 2PL concurrency controller.
type Txn2PL struct {
	txn.Common
	mgr   *txn.Mgr
	locks map[table.Row]map[int]struct{} // row -> set of held col_ids (wholeRow for COARSE)
}

func New(mgr *txn.Mgr, id uint64) *Txn2PL {
	return &Txn2PL{
		Common: txn.NewCommon(id, mgr.Logger()),
		mgr:    mgr,
		locks:  make(map[table.Row]map[int]struct{}),
	}
}

func (t *Txn2PL) recordLock(row table.Row, col int) {
	set, ok := t.locks[row]
	if !ok {
		set = make(map[int]struct{})
		t.locks[row] = set
	}
	set[col] = struct{}{}
}

// redirectLocks moves every lock entry keyed on oldRow to newRow, for the
// commit-time snapshot-table update rule where the row is replaced.
func (t *Txn2PL) redirectLocks(oldRow, newRow table.Row) {
	set, ok := t.locks[oldRow]
	if !ok {
		return
	}
	delete(t.locks, oldRow)
	t.locks[newRow] = set
}

func unlockRow(row table.Row, col int, holder uint64) {
	switch row.Kind() {
	case table.Fine:
		row.(table.FineLockableRow).UnlockColumn(col, holder)
	case table.Coarse:
		row.(table.LockableRow).UnlockRow(holder)
	default:
		errs.Misuse("2PL lock ledger holds a non-COARSE/FINE row")
	}
}

func (t *Txn2PL) releaseAllLocks() {
	for row, cols := range t.locks {
		for col := range cols {
			unlockRow(row, col, t.ID())
		}
	}
	t.locks = make(map[table.Row]map[int]struct{})
}

// Read implements common pre-access rules 1-3 then acquires a read lock
// at the row's native granularity.
func (t *Txn2PL) Read(row table.Row, col int) (table.Value, bool) {
	t.CheckLive()
	if txn.Unbound(row) {
		return row.Get(col), true
	}
	if v, ok := t.Staging.PendingWrite(row, col); ok {
		return v, true
	}
	switch row.Kind() {
	case table.Fine:
		fr := row.(table.FineLockableRow)
		if !fr.RLockColumn(col, t.ID()) {
			return nil, false
		}
		t.recordLock(row, col)
	case table.Coarse:
		lr := row.(table.LockableRow)
		if !lr.RLockRow(t.ID()) {
			return nil, false
		}
		t.recordLock(row, wholeRow)
	default:
		errs.Misuse("2PL requires a COARSE or FINE row")
	}
	return row.Get(col), true
}

// Write acquires a write lock at the row's native granularity then
// stages the column write.
func (t *Txn2PL) Write(row table.Row, col int, val table.Value) (bool, error) {
	t.CheckLive()
	if txn.Unbound(row) {
		row.Update(col, val)
		return true, nil
	}
	switch row.Kind() {
	case table.Fine:
		fr := row.(table.FineLockableRow)
		if !fr.WLockColumn(col, t.ID()) {
			return false, errs.ErrLockFailed
		}
		t.recordLock(row, col)
	case table.Coarse:
		lr := row.(table.LockableRow)
		if !lr.WLockRow(t.ID()) {
			return false, errs.ErrLockFailed
		}
		t.recordLock(row, wholeRow)
	default:
		errs.Misuse("2PL requires a COARSE or FINE row")
	}
	t.Staging.Write(row, col, val)
	return true, nil
}

func (t *Txn2PL) Insert(tbl table.Table, row table.Row) bool {
	t.CheckLive()
	errs.Verify(row.Kind() == table.Coarse || row.Kind() == table.Fine, "2PL requires a COARSE or FINE row")
	t.Staging.Insert(tbl, row)
	return true
}

// Remove acquires a write lock on every lockable unit of row (the whole
// row for COARSE, every column for FINE — failures leave already-held
// locks owned by the transaction; a single call never rolls back its own
// partial acquisitions) then stages the removal.
func (t *Txn2PL) Remove(tbl table.Table, row table.Row) (bool, error) {
	t.CheckLive()
	if t.Staging.IsLocallyInserted(row) {
		ok := t.Staging.CancelInsert(tbl, row)
		errs.Verify(ok, "remove: staged insert vanished underneath its own transaction")
		return true, nil
	}
	errs.Verify(row.Table() == tbl, "remove: row not bound to table %q", tbl.Name())

	switch row.Kind() {
	case table.Fine:
		fr := row.(table.FineLockableRow)
		failed := false
		for col := 0; col < row.ColumnCount(); col++ {
			if fr.WLockColumn(col, t.ID()) {
				t.recordLock(row, col)
			} else {
				failed = true
			}
		}
		if failed {
			return false, errs.ErrLockFailed
		}
	case table.Coarse:
		lr := row.(table.LockableRow)
		if !lr.WLockRow(t.ID()) {
			return false, errs.ErrLockFailed
		}
		t.recordLock(row, wholeRow)
	default:
		errs.Misuse("2PL requires a COARSE or FINE row")
	}

	t.Staging.MarkRemoved(tbl, row)
	return true, nil
}

func (t *Txn2PL) isRemovedIn(tbl table.Table) func(table.Row) bool {
	return func(row table.Row) bool { return t.Staging.IsRemoved(tbl, row) }
}

func (t *Txn2PL) Query(tbl table.Table, key table.Key) table.Cursor {
	t.CheckLive()
	committed := tbl.Query(key)
	staged := t.Staging.InsertsExact(tbl.Name(), key)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), false)
}

func (t *Txn2PL) All(tbl table.Table, order table.Order) table.Cursor {
	t.CheckLive()
	committed := tbl.All(order)
	staged := t.Staging.InsertsAll(tbl.Name(), order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

func (t *Txn2PL) QueryLT(tbl table.RangeTable, key table.Key, order table.Order) table.Cursor {
	t.CheckLive()
	committed := tbl.QueryLT(key, order)
	staged := t.Staging.InsertsLT(tbl.Name(), key, order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

func (t *Txn2PL) QueryGT(tbl table.RangeTable, key table.Key, order table.Order) table.Cursor {
	t.CheckLive()
	committed := tbl.QueryGT(key, order)
	staged := t.Staging.InsertsGT(tbl.Name(), key, order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

func (t *Txn2PL) QueryIn(tbl table.RangeTable, lo, hi table.Key, order table.Order) table.Cursor {
	t.CheckLive()
	committed := tbl.QueryIn(lo, hi, order)
	staged := t.Staging.InsertsIn(tbl.Name(), lo, hi, order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

// Commit applies staged inserts, then updates in per-row batches
// (redirecting locks on snapshot-table replacement), then removes, and
// finally releases every lock still held. 2PL already resolved every
// conflict at Write/Remove time, so Commit itself never fails.
func (t *Txn2PL) Commit() (bool, error) {
	t.CheckLive()

	for _, e := range t.Staging.Inserts() {
		e.Table.Insert(e.Row)
	}

	for _, batch := range t.Staging.UpdateBatches() {
		row := batch.Row
		tbl := row.Table()
		if tbl != nil && tbl.Kind() == table.Snapshot {
			newRow := row.Copy()
			for col, val := range batch.Columns {
				newRow.Update(col, val)
			}
			tbl.Remove(row)
			tbl.Insert(newRow)
			t.redirectLocks(row, newRow)
		} else {
			for col, val := range batch.Columns {
				row.Update(col, val)
			}
		}
	}

	for _, e := range t.Staging.Removes() {
		delete(t.locks, e.Row)
		e.Table.Remove(e.Row)
	}

	t.SetOutcome(txn.Committed)
	t.releaseAllLocks()
	t.Log.Debug("2PL commit", zap.Uint64("txn", t.ID()))
	return true, nil
}

func (t *Txn2PL) Abort() {
	t.SetOutcome(txn.Aborted)
	t.releaseAllLocks()
	t.Log.Debug("2PL abort", zap.Uint64("txn", t.ID()))
}

var _ txn.Txn = (*Txn2PL)(nil)

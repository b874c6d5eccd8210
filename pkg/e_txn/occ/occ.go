// Package occ implements optimistic concurrency control over VERSIONED
// rows: version witnesses recorded on access, validated at commit, with
// an eager (bump-at-write) or lazy (bump-at-confirm) policy and an
// optional two-phase prepare/confirm variant.
package occ

import (
	"go.uber.org/zap"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
	"corerel/pkg/d_stage"
	txn "corerel/pkg/e_txn"
)

// Policy selects when a write bumps a column's version.
type Policy int

const (
	// Eager bumps the version at write/remove time, so concurrent readers
	// see the in-flight write and fail validation fast.
	Eager Policy = iota
	// Lazy defers the bump to commit_confirm.
	Lazy
)

type rowCol struct {
	row table.Row
	col int
}

// TxnOCC is the OCC concurrency controller.
type TxnOCC struct {
	txn.Common
	mgr    *txn.Mgr
	policy Policy

	verCheckRead  map[rowCol]int64
	verCheckWrite map[rowCol]int64
	accessedRows  map[table.Row]struct{}
	snapshots     map[string]table.SnapshotCapableTable

	prepareLocks map[table.Row]map[int]struct{}
	prepared     bool
}

// wholeRow mirrors twopl's col_id = -1 convention for COARSE-style
// whole-row locking during the prepare phase of a VERSIONED row.
const wholeRow = -1

// New builds an OCC transaction under policy, taking an immediate
// snapshot of every named table so reads stay wait-free regardless of
// concurrent writers.
func New(mgr *txn.Mgr, id uint64, policy Policy, tableNames ...string) *TxnOCC {
	t := &TxnOCC{
		Common:        txn.NewCommon(id, mgr.Logger()),
		mgr:           mgr,
		policy:        policy,
		verCheckRead:  make(map[rowCol]int64),
		verCheckWrite: make(map[rowCol]int64),
		accessedRows:  make(map[table.Row]struct{}),
		snapshots:     make(map[string]table.SnapshotCapableTable),
		prepareLocks:  make(map[table.Row]map[int]struct{}),
	}
	for _, name := range tableNames {
		base := mgr.SnapshotTable(name)
		t.snapshots[name] = base.Snapshot()
	}
	return t
}

func (t *TxnOCC) pin(row table.Row) {
	if _, ok := t.accessedRows[row]; ok {
		return
	}
	t.accessedRows[row] = struct{}{}
	row.RefCopy()
}

func (t *TxnOCC) versionedRow(row table.Row) table.VersionedRow {
	errs.Verify(row.Kind() == table.Versioned, "OCC requires a VERSIONED row")
	vr, ok := row.(table.VersionedRow)
	errs.Verify(ok, "VERSIONED-kind row does not implement table.VersionedRow")
	return vr
}

func (t *TxnOCC) Read(row table.Row, col int) (table.Value, bool) {
	t.CheckLive()
	if txn.Unbound(row) {
		return row.Get(col), true
	}
	if v, ok := t.Staging.PendingWrite(row, col); ok {
		return v, true
	}
	vr := t.versionedRow(row)
	t.verCheckRead[rowCol{row, col}] = vr.ColumnVersion(col)
	t.pin(row)
	return row.Get(col), true
}

func (t *TxnOCC) Write(row table.Row, col int, val table.Value) (bool, error) {
	t.CheckLive()
	if txn.Unbound(row) {
		row.Update(col, val)
		return true, nil
	}
	vr := t.versionedRow(row)
	if t.policy == Eager {
		vr.IncrColumnVersion(col)
	}
	t.verCheckWrite[rowCol{row, col}] = vr.ColumnVersion(col)
	t.pin(row)
	t.Staging.Write(row, col, val)
	return true, nil
}

func (t *TxnOCC) Insert(tbl table.Table, row table.Row) bool {
	t.CheckLive()
	errs.Verify(row.Kind() == table.Versioned, "OCC requires a VERSIONED row")
	t.Staging.Insert(tbl, row)
	return true
}

func (t *TxnOCC) Remove(tbl table.Table, row table.Row) (bool, error) {
	t.CheckLive()
	if t.Staging.IsLocallyInserted(row) {
		ok := t.Staging.CancelInsert(tbl, row)
		errs.Verify(ok, "remove: staged insert vanished underneath its own transaction")
		return true, nil
	}
	errs.Verify(row.Table() == tbl, "remove: row not bound to table %q", tbl.Name())
	vr := t.versionedRow(row)
	for col := 0; col < row.ColumnCount(); col++ {
		if t.policy == Eager {
			vr.IncrColumnVersion(col)
		}
		t.verCheckWrite[rowCol{row, col}] = vr.ColumnVersion(col)
	}
	t.pin(row)
	t.Staging.MarkRemoved(tbl, row)
	return true, nil
}

func (t *TxnOCC) tableForScan(tbl table.Table) table.Table {
	if snap, ok := t.snapshots[tbl.Name()]; ok {
		return snap
	}
	return tbl
}

func (t *TxnOCC) rangeTableForScan(tbl table.RangeTable) table.RangeTable {
	if snap, ok := t.snapshots[tbl.Name()]; ok {
		return snap
	}
	return tbl
}

func (t *TxnOCC) isRemovedIn(tbl table.Table) func(table.Row) bool {
	return func(row table.Row) bool { return t.Staging.IsRemoved(tbl, row) }
}

func (t *TxnOCC) Query(tbl table.Table, key table.Key) table.Cursor {
	t.CheckLive()
	committed := t.tableForScan(tbl).Query(key)
	staged := t.Staging.InsertsExact(tbl.Name(), key)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), false)
}

func (t *TxnOCC) All(tbl table.Table, order table.Order) table.Cursor {
	t.CheckLive()
	committed := t.tableForScan(tbl).All(order)
	staged := t.Staging.InsertsAll(tbl.Name(), order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

func (t *TxnOCC) QueryLT(tbl table.RangeTable, key table.Key, order table.Order) table.Cursor {
	t.CheckLive()
	committed := t.rangeTableForScan(tbl).QueryLT(key, order)
	staged := t.Staging.InsertsLT(tbl.Name(), key, order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

func (t *TxnOCC) QueryGT(tbl table.RangeTable, key table.Key, order table.Order) table.Cursor {
	t.CheckLive()
	committed := t.rangeTableForScan(tbl).QueryGT(key, order)
	staged := t.Staging.InsertsGT(tbl.Name(), key, order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

func (t *TxnOCC) QueryIn(tbl table.RangeTable, lo, hi table.Key, order table.Order) table.Cursor {
	t.CheckLive()
	committed := t.rangeTableForScan(tbl).QueryIn(lo, hi, order)
	staged := t.Staging.InsertsIn(tbl.Name(), lo, hi, order)
	return stage.NewMergeCursor(committed, staged, t.isRemovedIn(tbl), order == table.OrderDesc)
}

// validate subtracts write witnesses from the read set (a write witness
// subsumes a read witness for the same cell) then checks every remaining
// witness against the row's current version. A transaction that issued
// no writes or removes always validates: it has nothing a concurrent
// committer could conflict with, so its accumulated read witnesses
// (which may have been invalidated by writers that ran entirely after
// this transaction's reads) are never checked.
func (t *TxnOCC) validate() bool {
	if len(t.verCheckWrite) == 0 && len(t.Staging.Removes()) == 0 {
		return true
	}
	for k := range t.verCheckWrite {
		delete(t.verCheckRead, k)
	}
	for k, v := range t.verCheckRead {
		if t.versionedRow(k.row).ColumnVersion(k.col) != v {
			return false
		}
	}
	for k, v := range t.verCheckWrite {
		if t.versionedRow(k.row).ColumnVersion(k.col) != v {
			return false
		}
	}
	return true
}

func (t *TxnOCC) recordPrepareLock(row table.Row, col int) {
	set, ok := t.prepareLocks[row]
	if !ok {
		set = make(map[int]struct{})
		t.prepareLocks[row] = set
	}
	set[col] = struct{}{}
}

func (t *TxnOCC) releasePrepareLocks() {
	for row, cols := range t.prepareLocks {
		vr := row.(table.VersionedRow)
		for range cols {
			vr.UnlockRow(t.ID())
		}
	}
	t.prepareLocks = make(map[table.Row]map[int]struct{})
}

func (t *TxnOCC) cleanup() {
	for row := range t.accessedRows {
		row.Release()
	}
	t.accessedRows = make(map[table.Row]struct{})
	for _, snap := range t.snapshots {
		snap.Close()
	}
}

// CommitPrepare validates, then acquires a read lock on every
// read-witness row and a write lock on every write-witness row. On any
// failure the transaction must be aborted by the caller; locks already
// taken are released by Abort.
func (t *TxnOCC) CommitPrepare() bool {
	t.CheckLive()
	if !t.validate() {
		return false
	}
	for k := range t.verCheckRead {
		vr := t.versionedRow(k.row)
		if !vr.RLockRow(t.ID()) {
			return false
		}
		t.recordPrepareLock(k.row, wholeRow)
	}
	for k := range t.verCheckWrite {
		vr := t.versionedRow(k.row)
		if !vr.WLockRow(t.ID()) {
			return false
		}
		t.recordPrepareLock(k.row, wholeRow)
	}
	t.prepared = true
	return true
}

// replayWrites applies staged inserts/updates/removes exactly as
// twopl.Commit does, additionally bumping versions under the LAZY policy
// so concurrent validators fail on both the old and new row.
func (t *TxnOCC) replayWrites() {
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
			if set, ok := t.prepareLocks[row]; ok {
				delete(t.prepareLocks, row)
				t.prepareLocks[newRow] = set
			}
			if t.policy == Lazy {
				oldVR := row.(table.VersionedRow)
				newVR := newRow.(table.VersionedRow)
				for col := range batch.Columns {
					oldVR.IncrColumnVersion(col)
					newVR.IncrColumnVersion(col)
				}
			}
		} else {
			if t.policy == Lazy {
				vr := row.(table.VersionedRow)
				for col, val := range batch.Columns {
					row.Update(col, val)
					vr.IncrColumnVersion(col)
				}
			} else {
				for col, val := range batch.Columns {
					row.Update(col, val)
				}
			}
		}
	}

	for _, e := range t.Staging.Removes() {
		if t.policy == Lazy {
			if vr, ok := e.Row.(table.VersionedRow); ok {
				for col := 0; col < e.Row.ColumnCount(); col++ {
					vr.IncrColumnVersion(col)
				}
			}
		}
		delete(t.prepareLocks, e.Row)
		e.Table.Remove(e.Row)
	}
}

// CommitConfirm replays the writes recorded by a prior CommitPrepare and
// settles the outcome. Calling it without a successful CommitPrepare is a
// misuse.
func (t *TxnOCC) CommitConfirm() bool {
	t.CheckLive()
	errs.Verify(t.prepared, "commit_confirm called without a successful commit_prepare")
	t.replayWrites()
	t.SetOutcome(txn.Committed)
	t.releasePrepareLocks()
	t.cleanup()
	t.Log.Debug("OCC commit_confirm", zap.Uint64("txn", t.ID()))
	return true
}

// Commit is the one-shot variant: validate then replay directly, with no
// intermediate lock phase. Callers that need strict isolation across
// concurrent committers should use CommitPrepare/CommitConfirm instead.
func (t *TxnOCC) Commit() (bool, error) {
	t.CheckLive()
	if !t.validate() {
		return false, errs.ErrValidationFailed
	}
	t.replayWrites()
	t.SetOutcome(txn.Committed)
	t.cleanup()
	t.Log.Debug("OCC commit", zap.Uint64("txn", t.ID()))
	return true, nil
}

func (t *TxnOCC) Abort() {
	t.SetOutcome(txn.Aborted)
	t.releasePrepareLocks()
	t.cleanup()
	t.Log.Debug("OCC abort", zap.Uint64("txn", t.ID()))
}

var _ txn.Txn = (*TxnOCC)(nil)

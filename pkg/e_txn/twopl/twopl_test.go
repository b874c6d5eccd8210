package twopl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
	"corerel/pkg/c_table/memrow"
	txn "corerel/pkg/e_txn"
)

func drain(c table.Cursor) []table.Row {
	defer c.Close()
	var out []table.Row
	for c.HasNext() {
		out = append(out, c.Next())
	}
	return out
}

func writeOK(tx *Txn2PL, row table.Row, col int, val table.Value) bool {
	ok, _ := tx.Write(row, col, val)
	return ok
}

func removeOK(tx *Txn2PL, tbl table.Table, row table.Row) bool {
	ok, _ := tx.Remove(tbl, row)
	return ok
}

func commitOK(tx *Txn2PL) bool {
	ok, _ := tx.Commit()
	return ok
}

func TestWriteConflictOnTheSameCoarseRowBlocksTheSecondWriter(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("accounts")
	mgr.Register(tbl)
	row := memrow.NewCoarseRow("X", []byte("v0"))
	tbl.Insert(row)

	t1 := New(mgr, mgr.NextTxnID())
	t2 := New(mgr, mgr.NextTxnID())

	ok1, err1 := t1.Write(row, 0, []byte("v1"))
	assert.True(t, ok1)
	assert.NoError(t, err1)
	ok2, err2 := t2.Write(row, 0, []byte("v2"))
	assert.False(t, ok2)
	assert.ErrorIs(t, err2, errs.ErrLockFailed)
	assert.ErrorIs(t, err2, errs.ErrConflict)

	assert.True(t, commitOK(t1))
	assert.True(t, writeOK(t2, row, 0, []byte("v2")))
	assert.True(t, commitOK(t2))

	assert.Equal(t, []byte("v2"), row.Get(0))
}

func TestFineRowLocksAreIndependentAcrossColumns(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	row := memrow.NewFineRow("X", []byte("a"), []byte("b"))
	tbl.Insert(row)

	t1 := New(mgr, mgr.NextTxnID())
	t2 := New(mgr, mgr.NextTxnID())

	assert.True(t, writeOK(t1, row, 0, []byte("a1")))
	assert.True(t, writeOK(t2, row, 1, []byte("b1")))
	assert.True(t, commitOK(t1))
	assert.True(t, commitOK(t2))
}

func TestUnboundRowBypassesLockingEntirely(t *testing.T) {
	mgr := txn.NewMgr(nil)
	row := memrow.NewCoarseRow("X", []byte("v0"))

	tx := New(mgr, mgr.NextTxnID())
	assert.True(t, writeOK(tx, row, 0, []byte("v1")))
	assert.Equal(t, []byte("v1"), row.Get(0))
}

func TestInsertThenRemoveInTheSameTransactionCancelsTheInsert(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	row := memrow.NewCoarseRow("X", []byte("v0"))

	tx := New(mgr, mgr.NextTxnID())
	assert.True(t, tx.Insert(tbl, row))
	assert.True(t, removeOK(tx, tbl, row))
	assert.True(t, commitOK(tx))

	got := drain(tbl.Query("X"))
	assert.Empty(t, got)
}

func TestSnapshotTableCommitReplacesRowAndRedirectsLocks(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewSnapshotTable("snap")
	mgr.Register(tbl)
	row := memrow.NewCoarseRow("Y", []byte("0"))
	tbl.Insert(row)

	tx := New(mgr, mgr.NextTxnID())
	assert.True(t, writeOK(tx, row, 0, []byte("1")))
	assert.True(t, commitOK(tx))

	assert.Nil(t, row.Table())
	got := drain(tbl.Query("Y"))
	assert.Len(t, got, 1)
	assert.Equal(t, []byte("1"), got[0].Get(0))
}

func TestAbortReleasesLocksWithoutApplyingStagedWrites(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	row := memrow.NewCoarseRow("X", []byte("v0"))
	tbl.Insert(row)

	tx := New(mgr, mgr.NextTxnID())
	assert.True(t, writeOK(tx, row, 0, []byte("v1")))
	tx.Abort()

	assert.Equal(t, []byte("v0"), row.Get(0))

	tx2 := New(mgr, mgr.NextTxnID())
	assert.True(t, writeOK(tx2, row, 0, []byte("v2")))
}

func TestQueryMergesCommittedAndStagedInserts(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	tbl.Insert(memrow.NewCoarseRow("a", []byte("1")))

	tx := New(mgr, mgr.NextTxnID())
	tx.Insert(tbl, memrow.NewCoarseRow("b", []byte("2")))

	got := drain(tx.Query(tbl, "b"))
	assert.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Key())
}

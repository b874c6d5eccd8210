package occ

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
	"corerel/pkg/c_table/memrow"
	txn "corerel/pkg/e_txn"
)

func drainCursor(c table.Cursor) []table.Row {
	defer c.Close()
	var out []table.Row
	for c.HasNext() {
		out = append(out, c.Next())
	}
	return out
}

func commitOK(tx *TxnOCC) bool {
	ok, _ := tx.Commit()
	return ok
}

func TestValidationFailsWhenAConcurrentWriterCommittedFirst(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("accounts")
	mgr.Register(tbl)
	row := memrow.NewVersionedRow("Z", []byte("0"), []byte("0"))
	tbl.Insert(row)

	// T1 reads column 0 and writes column 1, so it is not read-only and
	// its read witness on column 0 is checked at commit.
	t1 := New(mgr, mgr.NextTxnID(), Lazy)
	_, ok := t1.Read(row, 0)
	assert.True(t, ok)
	t1.Write(row, 1, []byte("x"))

	t2 := New(mgr, mgr.NextTxnID(), Lazy)
	t2.Write(row, 0, []byte("1"))
	assert.True(t, commitOK(t2))

	failed, err := t1.Commit()
	assert.False(t, failed)
	assert.ErrorIs(t, err, errs.ErrValidationFailed)
	assert.ErrorIs(t, err, errs.ErrConflict)
	t1.Abort()
}

func TestEagerPolicyBumpsVersionImmediatelyOnWrite(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	row := memrow.NewVersionedRow("E", []byte("0"))
	tbl.Insert(row)

	tx := New(mgr, mgr.NextTxnID(), Eager)
	tx.Write(row, 0, []byte("1"))
	assert.Equal(t, int64(1), row.ColumnVersion(0))
	assert.True(t, commitOK(tx))
}

func TestLazyPolicyDefersVersionBumpUntilCommit(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	row := memrow.NewVersionedRow("L", []byte("0"))
	tbl.Insert(row)

	tx := New(mgr, mgr.NextTxnID(), Lazy)
	tx.Write(row, 0, []byte("1"))
	assert.Equal(t, int64(0), row.ColumnVersion(0))
	assert.True(t, commitOK(tx))
	assert.Equal(t, int64(1), row.ColumnVersion(0))
}

func TestReadOnlyTransactionValidatesTrivially(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	row := memrow.NewVersionedRow("R", []byte("0"))
	tbl.Insert(row)

	tx := New(mgr, mgr.NextTxnID(), Lazy)
	_, _ = tx.Read(row, 0)
	assert.True(t, commitOK(tx))
}

// TestReadOnlyTransactionCommitsDespiteAConcurrentWriterBumpingWhatItRead
// exercises the invariant that a transaction issuing no writes or removes
// always commits: the version bump a concurrent committer makes to a cell
// this transaction merely read must not fail its validation.
func TestReadOnlyTransactionCommitsDespiteAConcurrentWriterBumpingWhatItRead(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	row := memrow.NewVersionedRow("RO", []byte("0"))
	tbl.Insert(row)

	reader := New(mgr, mgr.NextTxnID(), Lazy)
	_, ok := reader.Read(row, 0)
	assert.True(t, ok)

	writer := New(mgr, mgr.NextTxnID(), Lazy)
	writer.Write(row, 0, []byte("1"))
	assert.True(t, commitOK(writer))

	assert.True(t, commitOK(reader))
}

func TestCommitPrepareThenCommitConfirmAppliesWrites(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	row := memrow.NewVersionedRow("P", []byte("0"))
	tbl.Insert(row)

	tx := New(mgr, mgr.NextTxnID(), Eager)
	tx.Write(row, 0, []byte("1"))
	assert.True(t, tx.CommitPrepare())
	assert.True(t, tx.CommitConfirm())
	assert.Equal(t, []byte("1"), row.Get(0))
}

func TestCommitConfirmWithoutPrepareIsAMisuse(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	tx := New(mgr, mgr.NextTxnID(), Eager)
	assert.Panics(t, func() {
		tx.CommitConfirm()
	})
}

func TestWriteWitnessSubsumesAnEarlierReadWitnessOnTheSameCell(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewUnsortedTable("t")
	mgr.Register(tbl)
	row := memrow.NewVersionedRow("S", []byte("0"))
	tbl.Insert(row)

	tx := New(mgr, mgr.NextTxnID(), Eager)
	_, _ = tx.Read(row, 0)
	tx.Write(row, 0, []byte("1"))
	assert.True(t, commitOK(tx))
}

func TestSnapshotReadsAreUnaffectedByConcurrentWrites(t *testing.T) {
	mgr := txn.NewMgr(nil)
	tbl := memrow.NewSnapshotTable("snap")
	mgr.Register(tbl)
	row := memrow.NewVersionedRow("V", []byte("0"))
	tbl.Insert(row)

	reader := New(mgr, mgr.NextTxnID(), Lazy, "snap")

	writer := New(mgr, mgr.NextTxnID(), Lazy, "snap")
	writer.Write(row, 0, []byte("1"))
	assert.True(t, commitOK(writer))

	got := drainCursor(reader.All(tbl, table.OrderAsc))
	assert.Len(t, got, 1)
	assert.Equal(t, []byte("0"), got[0].Get(0))
	reader.Abort()
}

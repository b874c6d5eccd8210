package memrow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"corerel/pkg/c_table"
)

func TestSnapshotTableInsertAndQuery(t *testing.T) {
	tbl := NewSnapshotTable("t")
	defer tbl.Close()
	row := NewCoarseRow("X", []byte("v"))
	tbl.Insert(row)

	got := drain(tbl.Query("X"))
	assert.Len(t, got, 1)
	assert.Equal(t, "X", got[0].Key())
}

func TestSnapshotTableSnapshotIsolatesFromLaterWrites(t *testing.T) {
	tbl := NewSnapshotTable("t")
	defer tbl.Close()
	tbl.Insert(NewCoarseRow("a", []byte("1")))

	snap := tbl.Snapshot()
	defer snap.(*SnapshotTable).Close()

	tbl.Insert(NewCoarseRow("b", []byte("2")))

	assert.Len(t, drain(snap.All(table.OrderAsc)), 1)
	assert.Len(t, drain(tbl.All(table.OrderAsc)), 2)
}

func TestSnapshotTableMutationThroughAReaderIsAMisuse(t *testing.T) {
	tbl := NewSnapshotTable("t")
	defer tbl.Close()
	snap := tbl.Snapshot()
	defer snap.(*SnapshotTable).Close()

	assert.Panics(t, func() {
		snap.Insert(NewCoarseRow("x", []byte("1")))
	})
}

func TestSnapshotTableRemoveUnbindsRow(t *testing.T) {
	tbl := NewSnapshotTable("t")
	defer tbl.Close()
	row := NewCoarseRow("X", []byte("v"))
	tbl.Insert(row)
	tbl.Remove(row)

	assert.Nil(t, row.Table())
	assert.Empty(t, drain(tbl.Query("X")))
}

package memrow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"corerel/pkg/c_table"
)

func TestCoarseRowLocksApplyToTheWholeRow(t *testing.T) {
	r := NewCoarseRow("X", []byte("v0"))
	assert.True(t, r.WLockRow(1))
	assert.False(t, r.WLockRow(2))
	r.UnlockRow(1)
	assert.True(t, r.WLockRow(2))
}

func TestFineRowLocksAreIndependentPerColumn(t *testing.T) {
	r := NewFineRow("X", []byte("a"), []byte("b"))
	assert.True(t, r.WLockColumn(0, 1))
	assert.True(t, r.WLockColumn(1, 2))
	assert.False(t, r.WLockColumn(0, 2))
}

func TestVersionedRowIncrColumnVersionIsPerColumn(t *testing.T) {
	r := NewVersionedRow("X", []byte("a"), []byte("b"))
	assert.Equal(t, int64(0), r.ColumnVersion(0))
	r.IncrColumnVersion(0)
	assert.Equal(t, int64(1), r.ColumnVersion(0))
	assert.Equal(t, int64(0), r.ColumnVersion(1))
}

func TestRowCopyDuplicatesColumnsIndependently(t *testing.T) {
	r := NewCoarseRow("X", []byte("v0"))
	cp := r.Copy()

	r.Update(0, []byte("v1"))
	assert.Equal(t, []byte("v0"), cp.Get(0))
	assert.Equal(t, []byte("v1"), r.Get(0))
}

func TestVersionedRowCopyPreservesVersions(t *testing.T) {
	r := NewVersionedRow("X", []byte("a"))
	r.IncrColumnVersion(0)
	cp := r.Copy().(*VersionedRow)
	assert.Equal(t, int64(1), cp.ColumnVersion(0))
}

func TestBindTableRoundTripsThroughTable(t *testing.T) {
	r := NewCoarseRow("X", []byte("v0"))
	assert.Nil(t, r.Table())
	tbl := NewUnsortedTable("t")
	r.BindTable(tbl)
	assert.Equal(t, table.Table(tbl), r.Table())
}

func TestReleaseWithoutMatchingRefCopyIsAMisuse(t *testing.T) {
	r := NewCoarseRow("X", []byte("v0"))
	r.Release()
	assert.Panics(t, func() {
		r.Release()
	})
}

func TestRefCopyKeepsTheSameRowIdentity(t *testing.T) {
	r := NewCoarseRow("X", []byte("v0"))
	same := r.RefCopy()
	assert.Same(t, table.Row(r), same)
}

package memrow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"corerel/pkg/c_table"
)

func drain(c table.Cursor) []table.Row {
	defer c.Close()
	var out []table.Row
	for c.HasNext() {
		out = append(out, c.Next())
	}
	return out
}

func keys(rows []table.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key()
	}
	return out
}

func TestUnsortedTableQueryFindsInsertedRow(t *testing.T) {
	tbl := NewUnsortedTable("t")
	row := NewCoarseRow("X", []byte("v"))
	tbl.Insert(row)

	got := drain(tbl.Query("X"))
	assert.Len(t, got, 1)
	assert.Equal(t, "X", got[0].Key())
}

func TestUnsortedTableRejectsOrderedScans(t *testing.T) {
	tbl := NewUnsortedTable("t")
	assert.Panics(t, func() {
		tbl.All(table.OrderAsc)
	})
}

func TestUnsortedTableRemoveUnbindsRow(t *testing.T) {
	tbl := NewUnsortedTable("t")
	row := NewCoarseRow("X", []byte("v"))
	tbl.Insert(row)
	tbl.Remove(row)

	assert.Nil(t, row.Table())
	assert.Empty(t, drain(tbl.Query("X")))
}

func TestSortedTableAllAscendingReturnsKeysInAscendingOrder(t *testing.T) {
	tbl := NewSortedTable("t")
	tbl.Insert(NewCoarseRow("b", []byte("2")))
	tbl.Insert(NewCoarseRow("a", []byte("1")))
	tbl.Insert(NewCoarseRow("c", []byte("3")))

	got := drain(tbl.All(table.OrderAsc))
	assert.Equal(t, []string{"a", "b", "c"}, keys(got))
}

func TestSortedTableAllDescendingReversesOrder(t *testing.T) {
	tbl := NewSortedTable("t")
	tbl.Insert(NewCoarseRow("a", []byte("1")))
	tbl.Insert(NewCoarseRow("b", []byte("2")))

	got := drain(tbl.All(table.OrderDesc))
	assert.Equal(t, []string{"b", "a"}, keys(got))
}

func TestSortedTableQueryLTAndQueryGTAreStrict(t *testing.T) {
	tbl := NewSortedTable("t")
	tbl.Insert(NewCoarseRow("a", []byte("1")))
	tbl.Insert(NewCoarseRow("b", []byte("2")))
	tbl.Insert(NewCoarseRow("c", []byte("3")))

	assert.Equal(t, []string{"a"}, keys(drain(tbl.QueryLT("b", table.OrderAsc))))
	assert.Equal(t, []string{"c"}, keys(drain(tbl.QueryGT("b", table.OrderAsc))))
}

func TestSortedTableQueryInIsHalfOpen(t *testing.T) {
	tbl := NewSortedTable("t")
	tbl.Insert(NewCoarseRow("a", []byte("1")))
	tbl.Insert(NewCoarseRow("b", []byte("2")))
	tbl.Insert(NewCoarseRow("c", []byte("3")))

	got := keys(drain(tbl.QueryIn("a", "c", table.OrderAsc)))
	assert.Equal(t, []string{"a", "b"}, got)
}

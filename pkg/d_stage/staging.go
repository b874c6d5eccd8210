package stage

import (
	"github.com/google/btree"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
)

type removeKey struct {
	tbl table.Table
	row table.Row
}

type rowUpdates struct {
	row  table.Row
	cols map[int]table.Value
}

// Staging holds one transaction's uncommitted inserts, updates, and
// removes. Invariant: inserts and removes stay disjoint on (table, row)
// at every point between begin and commit/abort.
type Staging struct {
	insertsTree *btree.BTree
	insertsSeq  uint64
	insertKeyOf map[table.Row]stageKey // exact key used to locate/delete a staged insert

	updates     map[table.Row]*rowUpdates
	updateOrder []table.Row // rows in first-write order, for deterministic commit replay

	removes map[removeKey]struct{}
}

func New() *Staging {
	return &Staging{
		insertsTree: btree.New(32),
		insertKeyOf: make(map[table.Row]stageKey),
		updates:     make(map[table.Row]*rowUpdates),
		removes:     make(map[removeKey]struct{}),
	}
}

// Insert stages row for insertion into tbl. Cancels any pending remove of
// the same (table, row): the two must never coexist.
func (s *Staging) Insert(tbl table.Table, row table.Row) {
	k := stageKey{table: tbl.Name(), tag: tagReal, key: row.Key(), seq: s.insertsSeq}
	s.insertsSeq++
	s.insertsTree.ReplaceOrInsert(insertItem{key: k, tbl: tbl, row: row})
	s.insertKeyOf[row] = k
	delete(s.removes, removeKey{tbl: tbl, row: row})
}

// IsLocallyInserted reports whether row is currently a pending insert in
// this staging area (used by nested transactions' row_inserts check).
func (s *Staging) IsLocallyInserted(row table.Row) bool {
	_, ok := s.insertKeyOf[row]
	return ok
}

// CancelInsert removes row from the pending inserts if present, reporting
// whether it was found. Mirrors the "sweep inserts_ for exact pointer
// match" step in Txn2PL::remove_row / TxnNested::remove_row.
func (s *Staging) CancelInsert(tbl table.Table, row table.Row) bool {
	k, ok := s.insertKeyOf[row]
	if !ok {
		return false
	}
	s.insertsTree.Delete(insertItem{key: k})
	delete(s.insertKeyOf, row)
	delete(s.updates, row)
	return true
}

// MarkRemoved stages row as removed from tbl, and drops any pending column
// updates for it (mdb always does `updates_.erase(row)` at the end of
// remove_row, whichever branch was taken).
func (s *Staging) MarkRemoved(tbl table.Table, row table.Row) {
	s.removes[removeKey{tbl: tbl, row: row}] = struct{}{}
	delete(s.updates, row)
}

// IsRemoved reports whether (tbl, row) is in the staged remove set.
func (s *Staging) IsRemoved(tbl table.Table, row table.Row) bool {
	_, ok := s.removes[removeKey{tbl: tbl, row: row}]
	return ok
}

// Write stages a column write. A second write to the same (row, col)
// overwrites the first rather than appending.
func (s *Staging) Write(row table.Row, col int, val table.Value) {
	ru, ok := s.updates[row]
	if !ok {
		ru = &rowUpdates{row: row, cols: make(map[int]table.Value)}
		s.updates[row] = ru
		s.updateOrder = append(s.updateOrder, row)
	}
	ru.cols[col] = val
}

// PendingWrite returns a staged column write for row, if any.
func (s *Staging) PendingWrite(row table.Row, col int) (table.Value, bool) {
	ru, ok := s.updates[row]
	if !ok {
		return nil, false
	}
	v, ok := ru.cols[col]
	return v, ok
}

// ClearRowUpdates drops all pending column writes for row (used when a row
// is removed).
func (s *Staging) ClearRowUpdates(row table.Row) {
	delete(s.updates, row)
}

// RowUpdateBatch is one row's batched pending column writes, used during
// commit replay to apply (and, for SNAPSHOT tables, copy-then-apply) all of
// a row's writes atomically rather than one at a time — grouping by row
// up front avoids mutating the updates map while iterating it.
type RowUpdateBatch struct {
	Row     table.Row
	Columns map[int]table.Value
}

// UpdateBatches returns every row with pending writes, grouped, in
// first-write order.
func (s *Staging) UpdateBatches() []RowUpdateBatch {
	out := make([]RowUpdateBatch, 0, len(s.updateOrder))
	for _, row := range s.updateOrder {
		ru, ok := s.updates[row]
		if !ok {
			continue // cleared by a later remove
		}
		out = append(out, RowUpdateBatch{Row: ru.row, Columns: ru.cols})
	}
	return out
}

// RemoveEntry is one staged (table, row) removal.
type RemoveEntry struct {
	Table table.Table
	Row   table.Row
}

// Removes returns every staged removal. Order is unspecified (the source
// uses an unordered_set here too).
func (s *Staging) Removes() []RemoveEntry {
	out := make([]RemoveEntry, 0, len(s.removes))
	for k := range s.removes {
		out = append(out, RemoveEntry{Table: k.tbl, Row: k.row})
	}
	return out
}

// InsertEntry is one staged insertion.
type InsertEntry struct {
	Table table.Table
	Row   table.Row
}

// Inserts returns every staged insertion across all tables, in (table,
// key) order.
func (s *Staging) Inserts() []InsertEntry {
	var out []InsertEntry
	s.insertsTree.Ascend(func(i btree.Item) bool {
		it := i.(insertItem)
		out = append(out, InsertEntry{Table: it.tbl, Row: it.row})
		return true
	})
	return out
}

func (s *Staging) rangeAsc(lo, hi stageKey) []InsertEntry {
	var out []InsertEntry
	s.insertsTree.AscendRange(insertItem{key: lo}, insertItem{key: hi}, func(i btree.Item) bool {
		it := i.(insertItem)
		out = append(out, InsertEntry{Table: it.tbl, Row: it.row})
		return true
	})
	return out
}

func orderEntries(entries []InsertEntry, order table.Order) []InsertEntry {
	errs.Verify(order == table.OrderAsc || order == table.OrderDesc || order == table.OrderAny, "invalid scan order")
	if order != table.OrderDesc {
		return entries
	}
	out := make([]InsertEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// InsertsAll returns staged inserts for tblName in the requested order.
func (s *Staging) InsertsAll(tblName string, order table.Order) []InsertEntry {
	return orderEntries(s.rangeAsc(minKey(tblName), maxKey(tblName)), order)
}

// InsertsLT returns staged inserts for tblName with key strictly less than
// key, in the requested order.
func (s *Staging) InsertsLT(tblName string, key table.Key, order table.Order) []InsertEntry {
	return orderEntries(s.rangeAsc(minKey(tblName), lowerBoundKey(tblName, key)), order)
}

// InsertsGT returns staged inserts for tblName with key strictly greater
// than key, in the requested order.
func (s *Staging) InsertsGT(tblName string, key table.Key, order table.Order) []InsertEntry {
	return orderEntries(s.rangeAsc(upperBoundKey(tblName, key), maxKey(tblName)), order)
}

// InsertsIn returns staged inserts for tblName with key in the half-open
// range [lo, hi), in the requested order.
func (s *Staging) InsertsIn(tblName string, lo, hi table.Key, order table.Order) []InsertEntry {
	return orderEntries(s.rangeAsc(lowerBoundKey(tblName, lo), lowerBoundKey(tblName, hi)), order)
}

// InsertsExact returns staged inserts for tblName with exactly key.
func (s *Staging) InsertsExact(tblName string, key table.Key) []InsertEntry {
	return s.rangeAsc(lowerBoundKey(tblName, key), upperBoundKey(tblName, key))
}

package memrow

import (
	"sort"
	"sync"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
)

// sliceCursor adapts a pre-materialized row slice to table.Cursor. Real
// table implementations would stream lazily off disk/memory structures;
// since these concrete tables exist only to exercise the transaction core,
// eager materialization keeps them simple.
type sliceCursor struct {
	rows []table.Row
	pos  int
}

func (c *sliceCursor) HasNext() bool   { return c.pos < len(c.rows) }
func (c *sliceCursor) Next() table.Row { r := c.rows[c.pos]; c.pos++; return r }
func (c *sliceCursor) Close()          {}

func reversed(rows []table.Row) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r
	}
	return out
}

// UnsortedTable keeps rows in a map; only ORD_ANY scans are permitted.
type UnsortedTable struct {
	name string
	mu   sync.Mutex
	rows map[table.Key]table.Row
}

func NewUnsortedTable(name string) *UnsortedTable {
	return &UnsortedTable{name: name, rows: make(map[table.Key]table.Row)}
}

func (t *UnsortedTable) Name() string     { return t.name }
func (t *UnsortedTable) Kind() table.Kind { return table.Unsorted }

func (t *UnsortedTable) Insert(row table.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row.BindTable(t)
	t.rows[row.Key()] = row
}

func (t *UnsortedTable) Remove(row table.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, row.Key())
	row.BindTable(nil)
}

func (t *UnsortedTable) Query(key table.Key) table.Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.rows[key]; ok {
		return &sliceCursor{rows: []table.Row{r}}
	}
	return &sliceCursor{}
}

func (t *UnsortedTable) All(order table.Order) table.Cursor {
	errs.Verify(order == table.OrderAny, "unsorted table only accepts ORD_ANY")
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]table.Row, 0, len(t.rows))
	for _, r := range t.rows {
		rows = append(rows, r)
	}
	return &sliceCursor{rows: rows}
}

// SortedTable keeps rows ordered by key.
type SortedTable struct {
	name string
	mu   sync.Mutex
	rows map[table.Key]table.Row
}

func NewSortedTable(name string) *SortedTable {
	return &SortedTable{name: name, rows: make(map[table.Key]table.Row)}
}

func (t *SortedTable) Name() string     { return t.name }
func (t *SortedTable) Kind() table.Kind { return table.Sorted }

func (t *SortedTable) Insert(row table.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row.BindTable(t)
	t.rows[row.Key()] = row
}

func (t *SortedTable) Remove(row table.Row) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, row.Key())
	row.BindTable(nil)
}

func (t *SortedTable) Query(key table.Key) table.Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.rows[key]; ok {
		return &sliceCursor{rows: []table.Row{r}}
	}
	return &sliceCursor{}
}

func (t *SortedTable) sortedKeys() []table.Key {
	keys := make([]table.Key, 0, len(t.rows))
	for k := range t.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *SortedTable) orderedRows(pred func(table.Key) bool) []table.Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	var rows []table.Row
	for _, k := range t.sortedKeys() {
		if pred(k) {
			rows = append(rows, t.rows[k])
		}
	}
	return rows
}

func applyOrder(rows []table.Row, order table.Order) table.Cursor {
	errs.Verify(order == table.OrderAsc || order == table.OrderDesc || order == table.OrderAny, "invalid scan order")
	if order == table.OrderDesc {
		rows = reversed(rows)
	}
	return &sliceCursor{rows: rows}
}

func (t *SortedTable) All(order table.Order) table.Cursor {
	rows := t.orderedRows(func(table.Key) bool { return true })
	return applyOrder(rows, order)
}

func (t *SortedTable) QueryLT(key table.Key, order table.Order) table.Cursor {
	rows := t.orderedRows(func(k table.Key) bool { return k < key })
	return applyOrder(rows, order)
}

func (t *SortedTable) QueryGT(key table.Key, order table.Order) table.Cursor {
	rows := t.orderedRows(func(k table.Key) bool { return k > key })
	return applyOrder(rows, order)
}

func (t *SortedTable) QueryIn(lo, hi table.Key, order table.Order) table.Cursor {
	rows := t.orderedRows(func(k table.Key) bool { return k >= lo && k < hi })
	return applyOrder(rows, order)
}

var (
	_ table.Table      = (*UnsortedTable)(nil)
	_ table.RangeTable = (*SortedTable)(nil)
)

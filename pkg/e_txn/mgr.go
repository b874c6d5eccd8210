package txn

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
)

// Mgr is the table registry and transaction-ID source every discipline is
// built against. It owns no locks of its own beyond the registry mutex:
// all concurrency control lives in the per-row locks and per-transaction
// staging areas.
type Mgr struct {
	mu     sync.RWMutex
	tables map[string]table.Table
	nextID atomic.Uint64
	log    *zap.Logger
}

func NewMgr(log *zap.Logger) *Mgr {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mgr{tables: make(map[string]table.Table), log: log}
}

func (m *Mgr) Logger() *zap.Logger { return m.log }

// Register adds t to the registry. Registering a name twice is a misuse.
func (m *Mgr) Register(t table.Table) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.tables[t.Name()]
	errs.Verify(!exists, "table %q already registered", t.Name())
	m.tables[t.Name()] = t
}

// Table looks up a table by name regardless of kind.
func (m *Mgr) Table(name string) table.Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	errs.Verify(ok, "unknown table %q", name)
	return t
}

// UnsortedTable looks up name and asserts it is an UNSORTED table.
func (m *Mgr) UnsortedTable(name string) table.Table {
	t := m.Table(name)
	errs.Verify(t.Kind() == table.Unsorted, "table %q is not UNSORTED", name)
	return t
}

// SortedTable looks up name and asserts it is a SORTED (range-capable,
// non-snapshot) table.
func (m *Mgr) SortedTable(name string) table.RangeTable {
	t := m.Table(name)
	errs.Verify(t.Kind() == table.Sorted, "table %q is not SORTED", name)
	rt, ok := t.(table.RangeTable)
	errs.Verify(ok, "table %q does not implement range queries", name)
	return rt
}

// SnapshotTable looks up name and asserts it is a SNAPSHOT table.
func (m *Mgr) SnapshotTable(name string) table.SnapshotCapableTable {
	t := m.Table(name)
	errs.Verify(t.Kind() == table.Snapshot, "table %q is not SNAPSHOT", name)
	st, ok := t.(table.SnapshotCapableTable)
	errs.Verify(ok, "table %q does not implement snapshot queries", name)
	return st
}

// NextTxnID hands out a fresh, monotonically increasing transaction ID.
func (m *Mgr) NextTxnID() uint64 { return m.nextID.Add(1) }

// NestedFactory is the construction point for nested transactions. It is
// nil until pkg/e_txn/nested is imported, which registers itself in an
// init function — this package cannot import nested directly without an
// import cycle, since nested needs the Txn interface defined here.
var NestedFactory func(base Txn) Txn

// StartNested builds a nested transaction delegating to base. Panics if
// pkg/e_txn/nested has not been linked in.
func (m *Mgr) StartNested(base Txn) Txn {
	errs.Verify(NestedFactory != nil, "nested transaction support not linked in (import corerel/pkg/e_txn/nested)")
	return NestedFactory(base)
}

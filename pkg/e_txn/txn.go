// Package txn defines the transaction contract every concurrency
// discipline implements and the table registry (TxnMgr) transactions are
// built against.
package txn

import "corerel/pkg/c_table"

// Outcome is a transaction's terminal state. It transitions exactly once,
// NONE -> COMMIT | ABORT; every operation after that is a fatal misuse.
type Outcome int

const (
	None Outcome = iota
	Committed
	Aborted
)

// Txn is the common contract every discipline satisfies: 2PL
// (coarse/fine), OCC, and nested transactions all implement it.
//
// Write, Remove, and Commit report a conflict by returning ok=false
// together with an error from pkg a_errs (ErrLockFailed,
// ErrValidationFailed, or the general ErrConflict they both wrap),
// matched with errors.Is; the caller is expected to Abort. Read reports
// a conflict (a 2PL read lock that could not be taken) by ok=false alone,
// with no error; Insert always succeeds and stays bool-only. None of this
// covers genuine misuse (a row kind the discipline doesn't support, a
// method called after the transaction already settled), which panics
// instead of returning an error, since it terminates the transaction
// via an assertion rather than something a caller could recover from.
type Txn interface {
	ID() uint64
	Outcome() Outcome

	Read(row table.Row, col int) (val table.Value, ok bool)
	Write(row table.Row, col int, val table.Value) (ok bool, err error)
	Insert(tbl table.Table, row table.Row) (ok bool)
	Remove(tbl table.Table, row table.Row) (ok bool, err error)

	Query(tbl table.Table, key table.Key) table.Cursor
	QueryLT(tbl table.RangeTable, key table.Key, order table.Order) table.Cursor
	QueryGT(tbl table.RangeTable, key table.Key, order table.Order) table.Cursor
	QueryIn(tbl table.RangeTable, lo, hi table.Key, order table.Order) table.Cursor
	All(tbl table.Table, order table.Order) table.Cursor

	Commit() (ok bool, err error)
	Abort()
}

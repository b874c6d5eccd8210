package txn

import (
	"go.uber.org/zap"

	"corerel/pkg/a_errs"
	"corerel/pkg/c_table"
	"corerel/pkg/d_stage"
)

// Common holds the fields and pre-access rules every discipline shares:
// an id, the outcome latch, the staging area, and a logger. Each
// concrete controller embeds Common and adds its own lock/witness
// bookkeeping.
type Common struct {
	id      uint64
	outcome Outcome
	Staging *stage.Staging
	Log     *zap.Logger
}

func NewCommon(id uint64, log *zap.Logger) Common {
	if log == nil {
		log = zap.NewNop()
	}
	return Common{id: id, outcome: None, Staging: stage.New(), Log: log}
}

func (c *Common) ID() uint64        { return c.id }
func (c *Common) Logger() *zap.Logger { return c.Log }
func (c *Common) Outcome() Outcome  { return c.outcome }
func (c *Common) SetOutcome(o Outcome) { c.outcome = o }

// CheckLive enforces pre-access rule 1: any operation on a transaction
// whose outcome has already settled is a fatal misuse.
func (c *Common) CheckLive() {
	errs.Verify(c.outcome == None, "txn %d: operation after outcome has settled", c.id)
}

// Unbound reports whether row lives only in staging (pre-access rule 2):
// reads/writes on it bypass the discipline entirely.
func Unbound(row table.Row) bool { return row.Table() == nil }

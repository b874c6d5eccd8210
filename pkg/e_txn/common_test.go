package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"corerel/pkg/c_table/memrow"
)

func TestNewCommonStartsAtOutcomeNone(t *testing.T) {
	c := NewCommon(1, nil)
	assert.Equal(t, uint64(1), c.ID())
	assert.Equal(t, None, c.Outcome())
}

func TestCheckLiveIsAMisuseOnceOutcomeSettles(t *testing.T) {
	c := NewCommon(1, nil)
	c.SetOutcome(Committed)
	assert.Panics(t, func() {
		c.CheckLive()
	})
}

func TestUnboundReportsTrueForARowWithNoTable(t *testing.T) {
	row := memrow.NewCoarseRow("X", []byte("v"))
	assert.True(t, Unbound(row))

	tbl := memrow.NewUnsortedTable("t")
	tbl.Insert(row)
	assert.False(t, Unbound(row))
}

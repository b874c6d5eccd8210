package memrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRLockAllowsMultipleDistinctHolders(t *testing.T) {
	l := newRWLock()
	assert.True(t, l.tryRLock(1))
	assert.True(t, l.tryRLock(2))
}

func TestWLockExcludesOtherHoldersReadOrWrite(t *testing.T) {
	l := newRWLock()
	assert.True(t, l.tryWLock(1))
	assert.False(t, l.tryWLock(2))
	assert.False(t, l.tryRLock(2))
}

func TestWLockByTheSameHolderThatAlreadyReadLocksSucceeds(t *testing.T) {
	l := newRWLock()
	assert.True(t, l.tryRLock(1))
	assert.True(t, l.tryWLock(1))
}

func TestWLockByTheSameHolderIsReentrant(t *testing.T) {
	l := newRWLock()
	assert.True(t, l.tryWLock(1))
	assert.True(t, l.tryWLock(1))
}

func TestUnlockReleasesBothReaderAndWriterState(t *testing.T) {
	l := newRWLock()
	l.tryWLock(1)
	l.unlock(1)
	assert.True(t, l.tryWLock(2))
}

func TestUnlockOfANonHolderIsANoop(t *testing.T) {
	l := newRWLock()
	l.tryRLock(1)
	l.unlock(2)
	assert.False(t, l.tryWLock(2))
}

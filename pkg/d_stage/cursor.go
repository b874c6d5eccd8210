package stage

import "corerel/pkg/c_table"

// MergeCursor unifies a committed-side cursor with a transaction's staged
// inserts, filtered by its staged removes. It takes ownership of the
// committed-side cursor and releases it on Close.
type MergeCursor struct {
	committed table.Cursor
	isRemoved func(table.Row) bool
	staged    []InsertEntry
	stagedPos int
	desc      bool

	committedCand  table.Row
	committedValid bool

	cached     bool
	cachedNext table.Row
}

// NewMergeCursor builds a merge cursor. staged must already be in the
// requested direction (ascending or descending); committed must yield rows
// in that same direction.
func NewMergeCursor(committed table.Cursor, staged []InsertEntry, isRemoved func(table.Row) bool, desc bool) *MergeCursor {
	return &MergeCursor{committed: committed, staged: staged, isRemoved: isRemoved, desc: desc}
}

func (m *MergeCursor) refillCommitted() {
	for m.committed.HasNext() {
		row := m.committed.Next()
		if m.isRemoved != nil && m.isRemoved(row) {
			continue
		}
		m.committedCand = row
		m.committedValid = true
		return
	}
	m.committedValid = false
}

func (m *MergeCursor) stagedHasNext() bool { return m.stagedPos < len(m.staged) }
func (m *MergeCursor) stagedPeek() table.Row {
	return m.staged[m.stagedPos].Row
}
func (m *MergeCursor) stagedAdvance() { m.stagedPos++ }

// less reports whether a should be yielded before b, honoring direction.
func (m *MergeCursor) less(a, b table.Key) bool {
	if m.desc {
		return a > b
	}
	return a < b
}

func (m *MergeCursor) prefetch() bool {
	if !m.committedValid && m.committedCand == nil {
		m.refillCommitted()
	}

	if !m.committedValid {
		if m.stagedHasNext() {
			m.cached = true
			m.cachedNext = m.stagedPeek()
			m.stagedAdvance()
		}
		return m.cached
	}

	m.cached = true
	if m.stagedHasNext() {
		sKey := m.stagedPeek().Key()
		cKey := m.committedCand.Key()
		switch {
		case m.less(cKey, sKey):
			m.cachedNext = m.committedCand
			m.committedValid = false
			m.committedCand = nil
		case cKey == sKey:
			// Same key on both sides: the committed row is the current
			// version, the staged row is a replacement that will surface
			// once the committed cursor moves past this key.
			m.cachedNext = m.committedCand
			m.committedValid = false
			m.committedCand = nil
		default:
			m.cachedNext = m.stagedPeek()
			m.stagedAdvance()
		}
	} else {
		m.cachedNext = m.committedCand
		m.committedValid = false
		m.committedCand = nil
	}
	return m.cached
}

func (m *MergeCursor) HasNext() bool {
	if m.cached {
		return true
	}
	return m.prefetch()
}

func (m *MergeCursor) Next() table.Row {
	if !m.cached {
		if !m.prefetch() {
			panic("merge cursor: Next called with no more elements")
		}
	}
	m.cached = false
	return m.cachedNext
}

func (m *MergeCursor) Close() {
	if m.committed != nil {
		m.committed.Close()
		m.committed = nil
	}
}

var _ table.Cursor = (*MergeCursor)(nil)

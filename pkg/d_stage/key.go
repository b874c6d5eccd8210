// Package stage implements the per-transaction staging buffers (inserts,
// updates, removes) and the merge cursor that unifies them with committed
// table state during scans.
package stage

import (
	"math"

	"github.com/google/btree"

	"corerel/pkg/c_table"
)

// boundTag replaces a raw-pointer ROW_MIN/ROW_MAX sentinel pair with a
// tagged key so comparisons are total and alias-free: Min < Real(key) <
// Max for any key, within one table.
type boundTag int

const (
	tagMin boundTag = iota
	tagReal
	tagMax
)

// stageKey orders staged inserts by (table, row key), using a sequence
// number to keep distinct row objects that happen to share a key ordered
// stably, and a bound tag to express range endpoints without a sentinel
// row that would need to be synthesized.
type stageKey struct {
	table string
	tag   boundTag
	key   table.Key
	seq   uint64
}

func lowerBoundKey(tbl string, key table.Key) stageKey {
	return stageKey{table: tbl, tag: tagReal, key: key, seq: 0}
}

func upperBoundKey(tbl string, key table.Key) stageKey {
	return stageKey{table: tbl, tag: tagReal, key: key, seq: math.MaxUint64}
}

func minKey(tbl string) stageKey { return stageKey{table: tbl, tag: tagMin} }
func maxKey(tbl string) stageKey { return stageKey{table: tbl, tag: tagMax} }

func (k stageKey) less(o stageKey) bool {
	if k.table != o.table {
		return k.table < o.table
	}
	if k.tag != o.tag {
		return k.tag < o.tag
	}
	if k.tag == tagReal && k.key != o.key {
		return k.key < o.key
	}
	return k.seq < o.seq
}

// insertItem is the btree.Item stored for each staged insert.
type insertItem struct {
	key stageKey
	tbl table.Table
	row table.Row
}

func (it insertItem) Less(than btree.Item) bool {
	return it.key.less(than.(insertItem).key)
}

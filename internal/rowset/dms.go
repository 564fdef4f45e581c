package rowset

import (
	"github.com/google/btree"

	"github.com/aalhour/tabletfuzz/internal/row"
)

// DeltaEntry is one change to the row at RowIdx in a rowset's base.
type DeltaEntry struct {
	RowIdx uint32
	TS     uint64
	Change row.RowChange
}

// Less orders entries by row index, then timestamp.
func (e DeltaEntry) Less(than btree.Item) bool {
	o := than.(DeltaEntry)
	if e.RowIdx != o.RowIdx {
		return e.RowIdx < o.RowIdx
	}
	return e.TS < o.TS
}

// DeltaMemStore buffers changes to a rowset's rows until they are flushed
// to a delta file.
type DeltaMemStore struct {
	id    uint64
	tree  *btree.BTree
	bytes int
}

func newDeltaMemStore(id uint64) *DeltaMemStore {
	return &DeltaMemStore{id: id, tree: btree.New(16)}
}

// ID returns the id of the store. A rowset's DMS ids increase by one with
// every flush.
func (d *DeltaMemStore) ID() uint64 { return d.id }

// Len returns the number of buffered changes.
func (d *DeltaMemStore) Len() int { return d.tree.Len() }

// Bytes returns the approximate encoded size of the buffered changes.
func (d *DeltaMemStore) Bytes() int { return d.bytes }

func (d *DeltaMemStore) add(e DeltaEntry) {
	d.tree.ReplaceOrInsert(e)
	d.bytes += len(row.AppendChange(nil, e.Change)) + 12
}

// forRow calls fn for each change to rowIdx in timestamp order.
func (d *DeltaMemStore) forRow(rowIdx uint32, fn func(DeltaEntry)) {
	d.tree.AscendRange(DeltaEntry{RowIdx: rowIdx}, DeltaEntry{RowIdx: rowIdx + 1}, func(i btree.Item) bool {
		fn(i.(DeltaEntry))
		return true
	})
}

// entries returns all buffered changes in (row index, timestamp) order.
func (d *DeltaMemStore) entries() []DeltaEntry {
	out := make([]DeltaEntry, 0, d.tree.Len())
	d.tree.Ascend(func(i btree.Item) bool {
		out = append(out, i.(DeltaEntry))
		return true
	})
	return out
}

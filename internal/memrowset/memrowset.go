// Package memrowset implements the in-memory row store that receives
// every new insert of a tablet.
//
// Rows are kept in key order in a skip list. Each entry is the row as first
// inserted plus the ordered chain of mutations applied to it since, so a
// deleted row stays in the set as a ghost and a later insert of the same key
// revives it in place.
package memrowset

import (
	"errors"

	"github.com/aalhour/tabletfuzz/internal/row"
)

var (
	// ErrKeyExists is returned by Insert when the key already has an entry.
	ErrKeyExists = errors.New("memrowset: key already has an entry")

	// ErrNotFound is returned by Mutate when the key has no entry.
	ErrNotFound = errors.New("memrowset: key not found")

	// ErrInvalidMutation is returned when a change does not fit the row's
	// current state, e.g. updating a ghost.
	ErrInvalidMutation = errors.New("memrowset: mutation does not match row state")
)

// Mutation is one timestamped change in an entry's chain.
type Mutation struct {
	TS     uint64
	Change row.RowChange
}

type entry struct {
	insertTS  uint64
	base      row.Value
	mutations []Mutation
}

// state folds the mutation chain over the inserted value.
func (e *entry) state() (row.Value, bool) {
	val, deleted := e.base, false
	for _, m := range e.mutations {
		val, deleted = m.Change.ApplyTo(val, deleted)
	}
	return val, deleted
}

// MemRowSet is an ordered in-memory set of rows.
// Callers synchronize access; the owning tablet holds its lock.
type MemRowSet struct {
	id        uint64
	rows      *skipList[int32, *entry]
	mutations int
}

// New creates an empty MemRowSet with the given id.
func New(id uint64) *MemRowSet {
	return &MemRowSet{id: id, rows: newSkipList[int32, *entry]()}
}

// ID returns the id of this MemRowSet. Ids increase with every flush.
func (m *MemRowSet) ID() uint64 { return m.id }

// Insert adds a new row. The key must not have an entry, live or ghost.
func (m *MemRowSet) Insert(ts uint64, r row.Row) error {
	if !m.rows.insert(r.Key, &entry{insertTS: ts, base: r.Val}) {
		return ErrKeyExists
	}
	return nil
}

// Mutate appends a change to the entry for key. Updates and deletes need a
// live row and reinserts need a ghost.
func (m *MemRowSet) Mutate(ts uint64, key int32, c row.RowChange) error {
	e, ok := m.rows.get(key)
	if !ok {
		return ErrNotFound
	}
	_, deleted := e.state()
	if deleted != (c.Kind == row.ChangeReinsert) {
		return ErrInvalidMutation
	}
	e.mutations = append(e.mutations, Mutation{TS: ts, Change: c})
	m.mutations++
	return nil
}

// Get returns the current row for key. present reports whether the key has
// an entry at all; live is false for ghosts.
func (m *MemRowSet) Get(key int32) (r row.Row, present, live bool) {
	e, ok := m.rows.get(key)
	if !ok {
		return row.Row{}, false, false
	}
	val, deleted := e.state()
	return row.Row{Key: key, Val: val}, true, !deleted
}

// Scan calls fn for every live row with key >= from, in key order, until fn
// returns false.
func (m *MemRowSet) Scan(from int32, fn func(row.Row) bool) {
	it := m.rows.newIterator()
	for it.seek(from); it.valid(); it.next() {
		val, deleted := it.value().state()
		if deleted {
			continue
		}
		if !fn(row.Row{Key: it.key(), Val: val}) {
			return
		}
	}
}

// LiveRows returns all live rows in key order.
func (m *MemRowSet) LiveRows() []row.Row {
	var out []row.Row
	it := m.rows.newIterator()
	for it.seekToFirst(); it.valid(); it.next() {
		if val, deleted := it.value().state(); !deleted {
			out = append(out, row.Row{Key: it.key(), Val: val})
		}
	}
	return out
}

// Entries returns the number of entries, ghosts included.
func (m *MemRowSet) Entries() int { return m.rows.len() }

// Mutations returns the number of mutations applied since creation.
func (m *MemRowSet) Mutations() int { return m.mutations }

// Empty reports whether nothing was ever inserted.
func (m *MemRowSet) Empty() bool { return m.rows.len() == 0 }

package fuzz

import (
	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/tablet"
)

// Engine is what a Case runs against: a client session on one table plus
// maintenance calls on the table's single tablet. Mutations are staged
// until FlushOps; maintenance calls block until done.
type Engine interface {
	// InsertRow stages an insert and returns the row it writes.
	InsertRow(key int32, val row.Value) (string, error)
	// UpdateRow stages an update and returns the row it writes.
	UpdateRow(key int32, val row.Value) (string, error)
	// DeleteRow stages a delete and returns "".
	DeleteRow(key int32) (string, error)
	// FlushOps commits the staged mutations.
	FlushOps() error
	// LookupRow returns "(<row>)", or "()" if key is absent.
	LookupRow(key int32) (string, error)

	// FlushMRS flushes the MemRowSet to a new DiskRowSet.
	FlushMRS() error
	// FlushBiggestDMS flushes the largest DeltaMemStore to a delta file.
	FlushBiggestDMS() error
	// CompactWorstDeltas runs a minor or major delta compaction.
	CompactWorstDeltas(kind tablet.DeltaCompactionKind) error
	// CompactTablet merges every DiskRowSet into one.
	CompactTablet() error

	// Restart stops and starts the tablet server, or starts it if it is
	// stopped.
	Restart() error
}

// Executor maps ops onto an Engine.
type Executor struct {
	engine Engine
	key    int32
	next   int32
}

// NewExecutor creates an executor writing key.
func NewExecutor(engine Engine, key int32) *Executor {
	return &Executor{engine: engine, key: key}
}

// nextValue returns a fresh value for a mutation. Odd values are NULL.
func (x *Executor) nextValue() row.Value {
	v := x.next
	x.next++
	if v&1 != 0 {
		return row.Null()
	}
	return row.Int(v)
}

// Execute runs op. For mutations it returns the row the mutation leaves
// behind; an update runs updateMultiplier times and returns the last row.
func (x *Executor) Execute(op Op, updateMultiplier int) (string, error) {
	switch op {
	case OpInsert:
		return x.engine.InsertRow(x.key, x.nextValue())
	case OpUpdate:
		var last string
		for i := 0; i < updateMultiplier; i++ {
			s, err := x.engine.UpdateRow(x.key, x.nextValue())
			if err != nil {
				return "", err
			}
			last = s
		}
		return last, nil
	case OpDelete:
		return x.engine.DeleteRow(x.key)
	case OpFlushOps:
		return "", x.engine.FlushOps()
	case OpFlushMRS:
		return "", x.engine.FlushMRS()
	case OpFlushDeltas:
		return "", x.engine.FlushBiggestDMS()
	case OpMinorCompactDeltas:
		return "", x.engine.CompactWorstDeltas(tablet.MinorDeltaCompaction)
	case OpMajorCompactDeltas:
		return "", x.engine.CompactWorstDeltas(tablet.MajorDeltaCompaction)
	case OpCompactTablet:
		return "", x.engine.CompactTablet()
	case OpRestart:
		return "", x.engine.Restart()
	default:
		return "", errors.AssertionFailedf("unknown op %s", op)
	}
}

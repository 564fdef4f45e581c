package tablet

import (
	"fmt"

	"github.com/aalhour/tabletfuzz/internal/row"
)

// OpType is the kind of a write op in a Batch.
type OpType uint8

const (
	// OpInsert adds a row whose key must not be live.
	OpInsert OpType = iota + 1
	// OpUpdate sets the value of a live row.
	OpUpdate
	// OpDelete removes a live row.
	OpDelete
)

func (t OpType) String() string {
	switch t {
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return fmt.Sprintf("OpType(%d)", t)
	}
}

// Op is a single row write.
type Op struct {
	Type OpType
	Row  row.Row
}

func (o Op) String() string {
	if o.Type == OpDelete {
		return fmt.Sprintf("%s int32 key=%d", o.Type, o.Row.Key)
	}
	return fmt.Sprintf("%s %s", o.Type, o.Row)
}

// Batch is an ordered group of ops applied and logged together.
type Batch struct {
	Ops []Op
}

// Insert appends an insert of r.
func (b *Batch) Insert(r row.Row) { b.Ops = append(b.Ops, Op{Type: OpInsert, Row: r}) }

// Update appends an update of r.
func (b *Batch) Update(r row.Row) { b.Ops = append(b.Ops, Op{Type: OpUpdate, Row: r}) }

// Delete appends a delete of key.
func (b *Batch) Delete(key int32) {
	b.Ops = append(b.Ops, Op{Type: OpDelete, Row: row.Row{Key: key}})
}

// Len returns the number of ops.
func (b *Batch) Len() int { return len(b.Ops) }

package row

import (
	"fmt"

	"github.com/aalhour/tabletfuzz/internal/encoding"
)

// ChangeKind identifies the kind of a RowChange.
// Values are persisted and MUST NOT change.
type ChangeKind uint8

const (
	// ChangeUpdate replaces the value of a live row.
	ChangeUpdate ChangeKind = 1
	// ChangeDelete marks a live row deleted.
	ChangeDelete ChangeKind = 2
	// ChangeReinsert brings a deleted row back with a new value.
	ChangeReinsert ChangeKind = 3
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeUpdate:
		return "UPDATE"
	case ChangeDelete:
		return "DELETE"
	case ChangeReinsert:
		return "REINSERT"
	default:
		return fmt.Sprintf("CHANGE(%d)", k)
	}
}

// RowChange is a mutation applied to an existing row. Val is ignored for
// deletes.
type RowChange struct {
	Kind ChangeKind
	Val  Value
}

// Update returns a change setting the value to v.
func Update(v Value) RowChange { return RowChange{Kind: ChangeUpdate, Val: v} }

// Delete returns a deleting change.
func Delete() RowChange { return RowChange{Kind: ChangeDelete} }

// Reinsert returns a change reviving a deleted row with value v.
func Reinsert(v Value) RowChange { return RowChange{Kind: ChangeReinsert, Val: v} }

func (c RowChange) String() string {
	if c.Kind == ChangeDelete {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s val=%s", c.Kind, c.Val)
}

// ApplyTo applies c to a row state and returns the new state.
// deleted tracks whether the row is currently a deleted ghost.
func (c RowChange) ApplyTo(val Value, deleted bool) (Value, bool) {
	switch c.Kind {
	case ChangeUpdate:
		return c.Val, false
	case ChangeDelete:
		return val, true
	case ChangeReinsert:
		return c.Val, false
	default:
		return val, deleted
	}
}

// AppendChange encodes c.
func AppendChange(dst []byte, c RowChange) []byte {
	dst = append(dst, byte(c.Kind))
	if c.Kind != ChangeDelete {
		dst = AppendValue(dst, c.Val)
	}
	return dst
}

// GetChange decodes a change written by AppendChange.
func GetChange(s *encoding.Slice) (RowChange, error) {
	kind, ok := s.GetByte()
	if !ok {
		return RowChange{}, ErrCorruptChange
	}
	c := RowChange{Kind: ChangeKind(kind)}
	switch c.Kind {
	case ChangeDelete:
		return c, nil
	case ChangeUpdate, ChangeReinsert:
		v, ok := GetValue(s)
		if !ok {
			return RowChange{}, ErrCorruptChange
		}
		c.Val = v
		return c, nil
	default:
		return RowChange{}, ErrCorruptChange
	}
}

// Package row defines the two-column schema the tablet stores, the row
// value type, and the encoded form of row mutations.
package row

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aalhour/tabletfuzz/internal/encoding"
)

// ErrCorruptChange is returned when an encoded RowChange cannot be decoded.
var ErrCorruptChange = errors.New("row: corrupt row change")

// ColumnType is the physical type of a column.
type ColumnType uint8

const (
	// Int32 is a 32-bit signed integer column.
	Int32 ColumnType = 1
)

func (t ColumnType) String() string {
	if t == Int32 {
		return "int32"
	}
	return fmt.Sprintf("type(%d)", t)
}

// Column describes one column of a schema.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Key      bool
}

// Schema is an ordered list of columns. The first column is the key.
type Schema struct {
	Columns []Column
}

// DefaultSchema returns (key INT32 NOT NULL PRIMARY KEY, val INT32 NULL).
func DefaultSchema() Schema {
	return Schema{Columns: []Column{
		{Name: "key", Type: Int32, Key: true},
		{Name: "val", Type: Int32, Nullable: true},
	}}
}

// Validate checks that s has the shape this engine stores.
func (s Schema) Validate() error {
	if len(s.Columns) != 2 {
		return fmt.Errorf("row: schema must have 2 columns, got %d", len(s.Columns))
	}
	k, v := s.Columns[0], s.Columns[1]
	if !k.Key || k.Nullable || k.Type != Int32 {
		return fmt.Errorf("row: first column %q must be a non-null int32 key", k.Name)
	}
	if v.Key || v.Type != Int32 {
		return fmt.Errorf("row: second column %q must be a non-key int32", v.Name)
	}
	return nil
}

func (s Schema) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, c := range s.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Type.String())
		b.WriteByte(' ')
		b.WriteString(c.Name)
		if c.Key {
			b.WriteString(" PRIMARY KEY")
		} else if c.Nullable {
			b.WriteString(" NULLABLE")
		}
	}
	b.WriteByte(')')
	return b.String()
}

// Value is a nullable int32.
type Value struct {
	v     int32
	valid bool
}

// Int returns a non-null value.
func Int(v int32) Value { return Value{v: v, valid: true} }

// Null returns the null value.
func Null() Value { return Value{} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return !v.valid }

// Int32 returns the value and whether it is non-null.
func (v Value) Int32() (int32, bool) { return v.v, v.valid }

func (v Value) String() string {
	if !v.valid {
		return "NULL"
	}
	return strconv.FormatInt(int64(v.v), 10)
}

// Row is one (key, val) tuple.
type Row struct {
	Key int32
	Val Value
}

// String renders the row as "int32 key=<k>, int32 val=<v|NULL>".
func (r Row) String() string {
	return fmt.Sprintf("int32 key=%d, int32 val=%s", r.Key, r.Val)
}

// Bracketed renders the row the way a point lookup reports it.
func Bracketed(rows []Row) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = "(" + r.String() + ")"
	}
	if len(parts) == 0 {
		return "()"
	}
	return strings.Join(parts, "\n")
}

// AppendValue appends v as a presence byte followed by a zigzag varint.
func AppendValue(dst []byte, v Value) []byte {
	if !v.valid {
		return append(dst, 0)
	}
	dst = append(dst, 1)
	return encoding.AppendVarsignedint64(dst, int64(v.v))
}

// GetValue decodes a value written by AppendValue.
func GetValue(s *encoding.Slice) (Value, bool) {
	present, ok := s.GetByte()
	if !ok {
		return Value{}, false
	}
	switch present {
	case 0:
		return Null(), true
	case 1:
		n, ok := s.GetVarsignedint64()
		if !ok || n < -1<<31 || n > 1<<31-1 {
			return Value{}, false
		}
		return Int(int32(n)), true
	default:
		return Value{}, false
	}
}

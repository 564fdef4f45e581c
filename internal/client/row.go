package client

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/tablet"
)

// PartialRow is a row being built for an operation. Columns that were never
// set are left out of the operation and of String.
type PartialRow struct {
	schema row.Schema
	key    int32
	keySet bool
	val    row.Value
	valSet bool
}

func (p *PartialRow) column(name string) (int, error) {
	for i, c := range p.schema.Columns {
		if c.Name == name {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidRow, "unknown column %q", name)
}

// SetInt32 sets an int32 column.
func (p *PartialRow) SetInt32(name string, v int32) error {
	i, err := p.column(name)
	if err != nil {
		return err
	}
	if i == 0 {
		p.key, p.keySet = v, true
	} else {
		p.val, p.valSet = row.Int(v), true
	}
	return nil
}

// SetNull sets a nullable column to NULL.
func (p *PartialRow) SetNull(name string) error {
	i, err := p.column(name)
	if err != nil {
		return err
	}
	if !p.schema.Columns[i].Nullable {
		return errors.Wrapf(ErrInvalidRow, "column %q is not nullable", name)
	}
	p.val, p.valSet = row.Null(), true
	return nil
}

// String renders the set columns as "int32 key=1, int32 val=NULL".
func (p *PartialRow) String() string {
	var parts []string
	if p.keySet {
		parts = append(parts, "int32 "+p.schema.Columns[0].Name+"="+row.Int(p.key).String())
	}
	if p.valSet {
		parts = append(parts, "int32 "+p.schema.Columns[1].Name+"="+p.val.String())
	}
	return strings.Join(parts, ", ")
}

// Operation is a single write on a table.
type Operation struct {
	table *Table
	kind  tablet.OpType
	row   *PartialRow
}

// Row returns the row the operation writes.
func (o *Operation) Row() *PartialRow { return o.row }

// Kind returns the operation type.
func (o *Operation) Kind() tablet.OpType { return o.kind }

func (o *Operation) String() string {
	return o.kind.String() + " " + o.row.String()
}

func (o *Operation) toTabletOp() (tablet.Op, error) {
	if !o.row.keySet {
		return tablet.Op{}, errors.Wrapf(ErrInvalidRow, "%s: key column not set", o.kind)
	}
	r := row.Row{Key: o.row.key, Val: o.row.val}
	if o.kind != tablet.OpDelete && !o.row.valSet {
		r.Val = row.Null()
	}
	return tablet.Op{Type: o.kind, Row: r}, nil
}

// RowResult is one row returned by a scan.
type RowResult struct {
	row.Row
}

// String renders the row as "(int32 key=1, int32 val=NULL)".
func (r RowResult) String() string {
	return "(" + r.Row.String() + ")"
}

package client

import (
	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/row"
)

// Scanner reads rows of a table, optionally restricted to one key.
type Scanner struct {
	table *Table
	key   *int32
}

// AddEqualityPredicate restricts the scan to rows whose column equals v.
// Only the key column supports predicates.
func (s *Scanner) AddEqualityPredicate(column string, v int32) error {
	if column != s.table.info.Schema.Columns[0].Name {
		return errors.Newf("client: predicates are only supported on key column %q, not %q",
			s.table.info.Schema.Columns[0].Name, column)
	}
	s.key = &v
	return nil
}

// Scan returns the matching rows in key order.
func (s *Scanner) Scan() ([]RowResult, error) {
	ts, err := s.table.client.server()
	if err != nil {
		return nil, err
	}

	var rows []row.Row
	if s.key != nil {
		r, ok, err := ts.Lookup(s.table.TabletID(), *s.key)
		if err != nil {
			return nil, unavailable(err)
		}
		if ok {
			rows = append(rows, r)
		}
	} else {
		rows, err = ts.Scan(s.table.TabletID())
		if err != nil {
			return nil, unavailable(err)
		}
	}

	out := make([]RowResult, len(rows))
	for i, r := range rows {
		out[i] = RowResult{Row: r}
	}
	return out, nil
}

// ScanToString scans and renders the result the way a point lookup is
// reported: one bracketed row per line, or "()" when nothing matches.
func (s *Scanner) ScanToString() (string, error) {
	results, err := s.Scan()
	if err != nil {
		return "", err
	}
	rows := make([]row.Row, len(results))
	for i, r := range results {
		rows[i] = r.Row
	}
	return row.Bracketed(rows), nil
}

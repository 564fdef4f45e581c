package rowset

import (
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/compression"
	"github.com/aalhour/tabletfuzz/internal/encoding"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/vfs"
)

// deltaFile is a flushed, immutable set of changes sorted by
// (row index, timestamp).
type deltaFile struct {
	id      uint64
	entries []DeltaEntry
}

func (f *deltaFile) forRow(rowIdx uint32, fn func(DeltaEntry)) {
	i := sort.Search(len(f.entries), func(i int) bool { return f.entries[i].RowIdx >= rowIdx })
	for ; i < len(f.entries) && f.entries[i].RowIdx == rowIdx; i++ {
		fn(f.entries[i])
	}
}

func writeDeltaFile(fs vfs.FS, path string, codec compression.Type, entries []DeltaEntry) error {
	var payload []byte
	for _, e := range entries {
		payload = encoding.AppendVarint64(payload, uint64(e.RowIdx))
		payload = encoding.AppendVarint64(payload, e.TS)
		payload = row.AppendChange(payload, e.Change)
	}
	return writeFile(fs, path, kindDelta, codec, len(entries), payload)
}

func readDeltaFile(fs vfs.FS, path string, id uint64) (*deltaFile, error) {
	count, payload, err := readFile(fs, path, kindDelta)
	if err != nil {
		return nil, err
	}
	f := &deltaFile{id: id, entries: make([]DeltaEntry, 0, count)}
	s := encoding.NewSlice(payload)
	for range count {
		idx, ok1 := s.GetVarint64()
		ts, ok2 := s.GetVarint64()
		if !ok1 || !ok2 || idx > 1<<32-1 {
			return nil, errors.Wrapf(ErrCorruption, "%s: bad delta entry header", path)
		}
		c, err := row.GetChange(s)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "%s", path), ErrCorruption)
		}
		f.entries = append(f.entries, DeltaEntry{RowIdx: uint32(idx), TS: ts, Change: c})
	}
	if s.Remaining() != 0 {
		return nil, errors.Wrapf(ErrCorruption, "%s: %d trailing bytes", path, s.Remaining())
	}
	return f, nil
}

// baseRow is one row of a base file. Deleted rows keep their slot so that
// row indexes referenced by deltas stay valid.
type baseRow struct {
	key     int32
	val     row.Value
	deleted bool
}

func writeBaseFile(fs vfs.FS, path string, codec compression.Type, rows []baseRow) error {
	var payload []byte
	for _, r := range rows {
		payload = encoding.AppendVarsignedint64(payload, int64(r.key))
		payload = row.AppendValue(payload, r.val)
		if r.deleted {
			payload = append(payload, 1)
		} else {
			payload = append(payload, 0)
		}
	}
	return writeFile(fs, path, kindBase, codec, len(rows), payload)
}

func readBaseFile(fs vfs.FS, path string) ([]baseRow, error) {
	count, payload, err := readFile(fs, path, kindBase)
	if err != nil {
		return nil, err
	}
	rows := make([]baseRow, 0, count)
	s := encoding.NewSlice(payload)
	for i := range count {
		k, ok := s.GetVarsignedint64()
		if !ok {
			return nil, errors.Wrapf(ErrCorruption, "%s: row %d: bad key", path, i)
		}
		v, ok := row.GetValue(s)
		if !ok {
			return nil, errors.Wrapf(ErrCorruption, "%s: row %d: bad value", path, i)
		}
		del, ok := s.GetByte()
		if !ok || del > 1 {
			return nil, errors.Wrapf(ErrCorruption, "%s: row %d: bad deleted flag", path, i)
		}
		if i > 0 && int32(k) <= rows[i-1].key {
			return nil, errors.Wrapf(ErrCorruption, "%s: row %d: keys out of order", path, i)
		}
		rows = append(rows, baseRow{key: int32(k), val: v, deleted: del == 1})
	}
	if s.Remaining() != 0 {
		return nil, errors.Wrapf(ErrCorruption, "%s: %d trailing bytes", path, s.Remaining())
	}
	return rows, nil
}

// writer.go implements WAL segment writing.
package wal

import (
	"errors"
	"io"

	"github.com/aalhour/tabletfuzz/internal/checksum"
	"github.com/aalhour/tabletfuzz/internal/encoding"
)

// ErrRecordTooLarge is returned by AddRecord for payloads above MaxRecordSize.
var ErrRecordTooLarge = errors.New("wal: record too large")

// Writer appends records to a WAL segment.
type Writer struct {
	dest   io.Writer
	offset int64
	buf    []byte
}

// NewWriter creates a new WAL writer that appends to dest.
// offset is the current size of dest.
func NewWriter(dest io.Writer, offset int64) *Writer {
	return &Writer{dest: dest, offset: offset}
}

// AddRecord writes one record. Header and payload go out in a single Write
// so that a failed write leaves at most one torn record at the tail.
//
// Returns the number of bytes written (including the header) and any error.
func (w *Writer) AddRecord(t RecordType, data []byte) (int, error) {
	if len(data) > MaxRecordSize {
		return 0, ErrRecordTooLarge
	}

	crc := checksum.Value([]byte{byte(t)})
	crc = checksum.Extend(crc, data)

	w.buf = w.buf[:0]
	w.buf = encoding.AppendFixed32(w.buf, checksum.Mask(crc))
	w.buf = encoding.AppendFixed32(w.buf, uint32(len(data)))
	w.buf = append(w.buf, byte(t))
	w.buf = append(w.buf, data...)

	n, err := w.dest.Write(w.buf)
	w.offset += int64(n)
	if err != nil {
		return n, err
	}
	return n, nil
}

// Sync syncs the underlying destination if it supports syncing.
func (w *Writer) Sync() error {
	if s, ok := w.dest.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

// Size returns the number of bytes in the segment, including bytes written
// before the writer was created.
func (w *Writer) Size() int64 {
	return w.offset
}

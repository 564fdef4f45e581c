// reader.go implements WAL segment reading.
package wal

import (
	"bufio"
	"errors"
	"io"

	"github.com/aalhour/tabletfuzz/internal/checksum"
	"github.com/aalhour/tabletfuzz/internal/encoding"
)

var (
	// ErrCorruptedRecord indicates a record with an invalid checksum or
	// header that is followed by more data, so it cannot be a torn tail.
	ErrCorruptedRecord = errors.New("wal: corrupted record")

	// ErrInvalidRecordType indicates an unrecognized record type.
	ErrInvalidRecordType = errors.New("wal: invalid record type")
)

// Reader reads records from a WAL segment.
//
// A segment may end in a partially written record if the process died
// during an append. Such a tail is not an error: ReadRecord returns io.EOF
// and TornTail reports how many bytes were dropped. Damage anywhere else
// is reported as ErrCorruptedRecord.
type Reader struct {
	src    *bufio.Reader
	header [HeaderSize]byte
	offset int64
	torn   int
}

// NewReader creates a new WAL reader.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: bufio.NewReader(src)}
}

// ReadRecord reads the next record.
// Returns the record type and payload, or io.EOF when no more complete
// records are available.
func (r *Reader) ReadRecord() (RecordType, []byte, error) {
	n, err := io.ReadFull(r.src, r.header[:])
	if errors.Is(err, io.EOF) {
		return 0, nil, io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		r.torn = n
		return 0, nil, io.EOF
	}
	if err != nil {
		return 0, nil, err
	}

	masked := encoding.DecodeFixed32(r.header[0:4])
	length := encoding.DecodeFixed32(r.header[4:8])
	t := RecordType(r.header[8])

	if t == ZeroType && masked == 0 && length == 0 {
		// Zero fill past the last record.
		r.torn = HeaderSize + r.drain()
		return 0, nil, io.EOF
	}
	if length > MaxRecordSize {
		return r.damaged(HeaderSize)
	}

	payload := make([]byte, length)
	n, err = io.ReadFull(r.src, payload)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		r.torn = HeaderSize + n
		return 0, nil, io.EOF
	}
	if err != nil {
		return 0, nil, err
	}

	crc := checksum.Value([]byte{byte(t)})
	crc = checksum.Extend(crc, payload)
	if checksum.Unmask(masked) != crc {
		return r.damaged(HeaderSize + int(length))
	}
	if t != CommitType {
		return 0, nil, ErrInvalidRecordType
	}

	r.offset += int64(HeaderSize) + int64(length)
	return t, payload, nil
}

// damaged classifies a bad record: torn if nothing follows it, corrupt
// otherwise.
func (r *Reader) damaged(consumed int) (RecordType, []byte, error) {
	if _, err := r.src.Peek(1); errors.Is(err, io.EOF) {
		r.torn = consumed
		return 0, nil, io.EOF
	}
	return 0, nil, ErrCorruptedRecord
}

func (r *Reader) drain() int {
	n, _ := io.Copy(io.Discard, r.src)
	return int(n)
}

// Offset returns the end offset of the last complete record read.
func (r *Reader) Offset() int64 {
	return r.offset
}

// TornTail returns the number of bytes dropped from an incomplete final
// record, or 0 if the segment ended cleanly.
func (r *Reader) TornTail() int {
	return r.torn
}

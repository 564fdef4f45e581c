// Package wal implements the tablet write-ahead log.
//
// A log segment is a plain sequence of records. Records are never split:
// each committed batch is written as exactly one record, and each record
// is synced before the commit is acknowledged.
//
// Record Format:
//
//	+----------+----------+----------+---------+
//	| CRC (4B) | Len (4B) | Type(1B) | Payload |
//	+----------+----------+----------+---------+
//
// CRC is crc32c over Type + Payload, masked with checksum.Mask. Len is the
// payload length, little-endian.
package wal

// HeaderSize is the size of the record header.
const HeaderSize = 4 + 4 + 1

// MaxRecordSize bounds the payload of a single record. A header announcing
// a larger payload is treated as corruption.
const MaxRecordSize = 64 << 20

// RecordType represents the type of a log record.
// These values are embedded in the on-disk format and MUST NOT change.
type RecordType uint8

const (
	// ZeroType is what a zero-filled (preallocated or torn) region decodes to.
	ZeroType RecordType = 0

	// CommitType holds one committed write batch.
	CommitType RecordType = 1
)

// String returns a string representation of the record type.
func (t RecordType) String() string {
	switch t {
	case ZeroType:
		return "ZeroType"
	case CommitType:
		return "CommitType"
	default:
		return "UnknownType"
	}
}

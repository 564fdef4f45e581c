// Package encoding holds the byte-level primitives of the WAL, rowset and
// superblock formats: little-endian fixed ints, LEB128 varints, zigzag
// signed varints and length-prefixed byte strings, plus Slice for reading
// them back in order.
package encoding

import (
	"encoding/binary"
	"errors"
)

var (
	// ErrVarintOverflow means a varint ran past ten bytes.
	ErrVarintOverflow = errors.New("encoding: varint overflow")
	// ErrVarintTermination means the input ended inside a varint.
	ErrVarintTermination = errors.New("encoding: varint not terminated")
)

// AppendFixed32 appends v little-endian.
func AppendFixed32(dst []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(dst, v) }

// AppendFixed64 appends v little-endian.
func AppendFixed64(dst []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(dst, v) }

// DecodeFixed32 reads the first four bytes of src. It panics if src is short.
func DecodeFixed32(src []byte) uint32 { return binary.LittleEndian.Uint32(src) }

// DecodeFixed64 reads the first eight bytes of src. It panics if src is short.
func DecodeFixed64(src []byte) uint64 { return binary.LittleEndian.Uint64(src) }

// AppendVarint64 appends v as a LEB128 varint.
func AppendVarint64(dst []byte, v uint64) []byte {
	for ; v >= 0x80; v >>= 7 {
		dst = append(dst, 0x80|byte(v&0x7f))
	}
	return append(dst, byte(v))
}

// DecodeVarint64 reads a varint from the front of src and returns it with
// its encoded length.
func DecodeVarint64(src []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < 10; i++ {
		if i == len(src) {
			return 0, 0, ErrVarintTermination
		}
		b := src[i]
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrVarintOverflow
}

// ZigzagEncode maps signed integers onto unsigned ones so small negative
// values stay short as varints.
func ZigzagEncode(v int64) uint64 {
	return (uint64(v) << 1) ^ uint64(v>>63)
}

// ZigzagDecode reverses ZigzagEncode.
func ZigzagDecode(n uint64) int64 {
	return int64(n>>1) ^ -int64(n&1)
}

// AppendVarsignedint64 appends a signed int64 using zigzag + varint encoding.
func AppendVarsignedint64(dst []byte, v int64) []byte {
	return AppendVarint64(dst, ZigzagEncode(v))
}

// AppendLengthPrefixedSlice appends [varint length][bytes] to dst.
func AppendLengthPrefixedSlice(dst []byte, value []byte) []byte {
	dst = AppendVarint64(dst, uint64(len(value)))
	return append(dst, value...)
}

// Slice reads values sequentially from a byte slice. Every getter reports
// false, without consuming input, when the remaining bytes are insufficient.
type Slice struct {
	data []byte
	pos  int
}

// NewSlice creates a new Slice over data.
func NewSlice(data []byte) *Slice {
	return &Slice{data: data}
}

// Remaining returns the number of unread bytes.
func (s *Slice) Remaining() int {
	return len(s.data) - s.pos
}

// GetByte reads a single byte.
func (s *Slice) GetByte() (byte, bool) {
	if s.Remaining() < 1 {
		return 0, false
	}
	b := s.data[s.pos]
	s.pos++
	return b, true
}

// GetFixed32 reads a fixed 32-bit value.
func (s *Slice) GetFixed32() (uint32, bool) {
	if s.Remaining() < 4 {
		return 0, false
	}
	v := DecodeFixed32(s.data[s.pos:])
	s.pos += 4
	return v, true
}

// GetFixed64 reads a fixed 64-bit value.
func (s *Slice) GetFixed64() (uint64, bool) {
	if s.Remaining() < 8 {
		return 0, false
	}
	v := DecodeFixed64(s.data[s.pos:])
	s.pos += 8
	return v, true
}

// GetVarint64 reads a varint64.
func (s *Slice) GetVarint64() (uint64, bool) {
	v, n, err := DecodeVarint64(s.data[s.pos:])
	if err != nil {
		return 0, false
	}
	s.pos += n
	return v, true
}

// GetVarsignedint64 reads a zigzag varint64.
func (s *Slice) GetVarsignedint64() (int64, bool) {
	u, ok := s.GetVarint64()
	if !ok {
		return 0, false
	}
	return ZigzagDecode(u), true
}

// GetLengthPrefixedSlice reads a [varint length][bytes] value. The returned
// slice aliases the underlying buffer.
func (s *Slice) GetLengthPrefixedSlice() ([]byte, bool) {
	start := s.pos
	n, ok := s.GetVarint64()
	if !ok {
		return nil, false
	}
	if uint64(s.Remaining()) < n {
		s.pos = start
		return nil, false
	}
	v := s.data[s.pos : s.pos+int(n)]
	s.pos += int(n)
	return v, true
}

// Package checksum provides the checksums used by the tablet's on-disk
// formats: masked CRC32C for WAL records and the superblock, XXH3-64 for
// rowset files.
package checksum

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Value returns the CRC32C of data.
func Value(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}

// Extend continues crc, the CRC32C of some prefix, over data.
func Extend(crc uint32, data []byte) uint32 {
	return crc32.Update(crc, castagnoli, data)
}

// A WAL payload may itself contain checksums (a superblock, say), so stored
// CRCs are rotated and offset to keep them from colliding with the CRC of
// the bytes around them.
const maskOffset = 0xa282ead8

// Mask returns the stored form of crc.
func Mask(crc uint32) uint32 {
	return (crc<<17 | crc>>15) + maskOffset
}

// Unmask inverts Mask.
func Unmask(stored uint32) uint32 {
	v := stored - maskOffset
	return v<<15 | v>>17
}

// MaskedValue returns Mask(Value(data)).
func MaskedValue(data []byte) uint32 { return Mask(Value(data)) }

// format.go implements the on-disk container shared by base and delta files.
//
// File Format:
//
//	+-----------+---------+----------+-----------+----------------+---------+-----------+
//	| Magic(4B) | Kind(1) | Codec(1) | Count(4B) | PayloadLen(4B) | Payload | XXH3 (8B) |
//	+-----------+---------+----------+-----------+----------------+---------+-----------+
//
// Payload is compressed with Codec. The XXH3-64 trailer covers the header and
// the compressed payload.
package rowset

import (
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/checksum"
	"github.com/aalhour/tabletfuzz/internal/compression"
	"github.com/aalhour/tabletfuzz/internal/encoding"
	"github.com/aalhour/tabletfuzz/internal/vfs"
)

const (
	fileMagic   uint32 = 0x53524654 // "TFRS"
	headerSize         = 4 + 1 + 1 + 4 + 4
	trailerSize        = 8
)

// fileKind distinguishes base files from delta files.
type fileKind uint8

const (
	kindBase  fileKind = 1
	kindDelta fileKind = 2
)

// ErrCorruption marks a rowset file that failed validation.
var ErrCorruption = errors.New("rowset: corruption")

// writeFile writes a complete container to path and syncs it and its
// directory.
func writeFile(fs vfs.FS, path string, kind fileKind, codec compression.Type, count int, payload []byte) error {
	compressed, err := compression.Compress(codec, payload)
	if err != nil {
		return errors.Wrapf(err, "compress %s", path)
	}

	buf := make([]byte, 0, headerSize+len(compressed)+trailerSize)
	buf = encoding.AppendFixed32(buf, fileMagic)
	buf = append(buf, byte(kind), byte(codec))
	buf = encoding.AppendFixed32(buf, uint32(count))
	buf = encoding.AppendFixed32(buf, uint32(len(compressed)))
	buf = append(buf, compressed...)
	buf = encoding.AppendFixed64(buf, checksum.XXH3(buf))

	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "sync %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	return fs.SyncDir(filepath.Dir(path))
}

// readFile reads and validates a container, returning the entry count and
// the decompressed payload.
func readFile(fs vfs.FS, path string, want fileKind) (int, []byte, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "read %s", path)
	}
	if len(data) < headerSize+trailerSize {
		return 0, nil, errors.Wrapf(ErrCorruption, "%s: truncated (%d bytes)", path, len(data))
	}

	body := data[:len(data)-trailerSize]
	if got, stored := checksum.XXH3(body), encoding.DecodeFixed64(data[len(body):]); got != stored {
		return 0, nil, errors.Wrapf(ErrCorruption, "%s: checksum mismatch: stored %x, computed %x", path, stored, got)
	}
	if magic := encoding.DecodeFixed32(body[0:4]); magic != fileMagic {
		return 0, nil, errors.Wrapf(ErrCorruption, "%s: bad magic %x", path, magic)
	}
	if kind := fileKind(body[4]); kind != want {
		return 0, nil, errors.Wrapf(ErrCorruption, "%s: file kind %d, want %d", path, kind, want)
	}
	codec := compression.Type(body[5])
	count := int(encoding.DecodeFixed32(body[6:10]))
	payloadLen := int(encoding.DecodeFixed32(body[10:14]))
	if payloadLen != len(body)-headerSize {
		return 0, nil, errors.Wrapf(ErrCorruption, "%s: payload length %d, have %d", path, payloadLen, len(body)-headerSize)
	}

	payload, err := compression.Decompress(codec, body[headerSize:])
	if err != nil {
		return 0, nil, errors.Mark(errors.Wrapf(err, "%s: decompress", path), ErrCorruption)
	}
	return count, payload, nil
}

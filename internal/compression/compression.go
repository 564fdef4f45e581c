// Package compression compresses rowset file payloads.
//
// Each rowset file records the compression type of its payload in its
// header, so a tablet can change its configured compression without
// rewriting existing files.
package compression

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a codec. Values are written into file headers and must
// not be renumbered.
type Type uint8

const (
	NoCompression     Type = 0
	SnappyCompression Type = 1
	ZlibCompression   Type = 2
	LZ4Compression    Type = 4
	ZstdCompression   Type = 7
)

// AllTypes lists the supported types in header order.
var AllTypes = []Type{NoCompression, SnappyCompression, ZlibCompression, LZ4Compression, ZstdCompression}

type codec struct {
	name   string
	encode func([]byte) ([]byte, error)
	decode func([]byte) ([]byte, error)
}

var codecs = map[Type]codec{
	NoCompression: {
		name:   "none",
		encode: func(b []byte) ([]byte, error) { return b, nil },
		decode: func(b []byte) ([]byte, error) { return b, nil },
	},
	SnappyCompression: {
		name:   "snappy",
		encode: func(b []byte) ([]byte, error) { return snappy.Encode(nil, b), nil },
		decode: func(b []byte) ([]byte, error) { return snappy.Decode(nil, b) },
	},
	ZlibCompression: {
		name: "zlib",
		encode: func(b []byte) ([]byte, error) {
			return streamEncode(zlib.NewWriter, b)
		},
		decode: func(b []byte) ([]byte, error) {
			r, err := zlib.NewReader(bytes.NewReader(b))
			if err != nil {
				return nil, err
			}
			defer r.Close()
			return io.ReadAll(r)
		},
	},
	LZ4Compression: {
		name: "lz4",
		encode: func(b []byte) ([]byte, error) {
			return streamEncode(func(w io.Writer) *lz4.Writer { return lz4.NewWriter(w) }, b)
		},
		decode: func(b []byte) ([]byte, error) {
			return io.ReadAll(lz4.NewReader(bytes.NewReader(b)))
		},
	},
	ZstdCompression: {
		name: "zstd",
		encode: func(b []byte) ([]byte, error) {
			enc, _, err := zstdCodec()
			if err != nil {
				return nil, err
			}
			return enc.EncodeAll(b, nil), nil
		},
		decode: func(b []byte) ([]byte, error) {
			_, dec, err := zstdCodec()
			if err != nil {
				return nil, err
			}
			return dec.DecodeAll(b, nil)
		},
	},
}

// streamEncode runs b through a streaming compressor.
func streamEncode[W io.WriteCloser](newWriter func(io.Writer) W, b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := newWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// zstdCodec returns the process-wide zstd encoder and decoder. EncodeAll
// and DecodeAll may be called concurrently.
func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		if zstdEnc, zstdErr = zstd.NewWriter(nil); zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

func (t Type) String() string {
	if c, ok := codecs[t]; ok {
		return c.name
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// IsSupported reports whether t has a codec.
func (t Type) IsSupported() bool {
	_, ok := codecs[t]
	return ok
}

// ParseType maps a name such as "zstd" or "Snappy" to its Type.
func ParseType(name string) (Type, error) {
	for _, t := range AllTypes {
		if strings.EqualFold(name, t.String()) {
			return t, nil
		}
	}
	return NoCompression, errors.Newf("compression: unknown type %q", name)
}

// Compress encodes data with t. NoCompression returns data itself.
func Compress(t Type, data []byte) ([]byte, error) {
	c, ok := codecs[t]
	if !ok {
		return nil, errors.Newf("compression: unsupported type %s", t)
	}
	out, err := c.encode(data)
	return out, errors.Wrapf(err, "%s compress", c.name)
}

// Decompress decodes data written by Compress with the same t.
func Decompress(t Type, data []byte) ([]byte, error) {
	c, ok := codecs[t]
	if !ok {
		return nil, errors.Newf("compression: unsupported type %s", t)
	}
	out, err := c.decode(data)
	return out, errors.Wrapf(err, "%s decompress", c.name)
}

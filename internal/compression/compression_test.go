package compression

import (
	"bytes"
	"testing"
)

func TestRoundTripAllTypes(t *testing.T) {
	data := bytes.Repeat([]byte("int32 key=1, int32 val=NULL "), 200)

	for _, typ := range AllTypes {
		t.Run(typ.String(), func(t *testing.T) {
			compressed, err := Compress(typ, data)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if typ != NoCompression && len(compressed) >= len(data) {
				t.Errorf("compressed size %d >= original %d for repetitive input", len(compressed), len(data))
			}

			decompressed, err := Decompress(typ, compressed)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(decompressed, data) {
				t.Error("Decompressed data should match original")
			}
		})
	}
}

func TestEmptyInput(t *testing.T) {
	for _, typ := range AllTypes {
		compressed, err := Compress(typ, nil)
		if err != nil {
			t.Fatalf("%s: Compress(nil) failed: %v", typ, err)
		}
		decompressed, err := Decompress(typ, compressed)
		if err != nil {
			t.Fatalf("%s: Decompress failed: %v", typ, err)
		}
		if len(decompressed) != 0 {
			t.Errorf("%s: decompressed %d bytes, want 0", typ, len(decompressed))
		}
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		name    string
		want    Type
		wantErr bool
	}{
		{"none", NoCompression, false},
		{"Snappy", SnappyCompression, false},
		{"ZLIB", ZlibCompression, false},
		{"lz4", LZ4Compression, false},
		{"zstd", ZstdCompression, false},
		{"bzip2", NoCompression, true},
	}

	for _, tt := range tests {
		got, err := ParseType(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestUnsupportedType(t *testing.T) {
	bogus := Type(0x3)
	if bogus.IsSupported() {
		t.Fatal("0x3 should not be supported")
	}
	if _, err := Compress(bogus, []byte("x")); err == nil {
		t.Error("Compress with unsupported type should fail")
	}
	if _, err := Decompress(bogus, []byte("x")); err == nil {
		t.Error("Decompress with unsupported type should fail")
	}
}

func TestCorruptSnappyInput(t *testing.T) {
	if _, err := Decompress(SnappyCompression, []byte{0xff, 0xff, 0xff, 0xff, 0x0f}); err == nil {
		t.Error("corrupt snappy input should fail to decode")
	}
}

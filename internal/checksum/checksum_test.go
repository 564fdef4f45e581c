package checksum

import "testing"

func TestCRC32CKnownValues(t *testing.T) {
	// From the CRC32C test vectors in RFC 3720, B.4.
	zeros := make([]byte, 32)
	if got := Value(zeros); got != 0x8a9136aa {
		t.Errorf("Value(32 zeros) = %#x, want 0x8a9136aa", got)
	}
	ones := make([]byte, 32)
	for i := range ones {
		ones[i] = 0xff
	}
	if got := Value(ones); got != 0x62a8ab43 {
		t.Errorf("Value(32 0xff) = %#x, want 0x62a8ab43", got)
	}
}

func TestCRC32CExtend(t *testing.T) {
	whole := Value([]byte("hello world"))
	split := Extend(Value([]byte("hello ")), []byte("world"))
	if whole != split {
		t.Errorf("Extend mismatch: %#x != %#x", split, whole)
	}
}

func TestMaskRoundTrip(t *testing.T) {
	crc := Value([]byte("foo"))
	if Mask(crc) == crc {
		t.Error("Mask should change the value")
	}
	if Unmask(Mask(crc)) != crc {
		t.Error("Unmask(Mask(crc)) != crc")
	}
	if MaskedValue([]byte("foo")) != Mask(crc) {
		t.Error("MaskedValue disagrees with Mask(Value)")
	}
}

func TestXXH3Parts(t *testing.T) {
	whole := XXH3([]byte("rowset-000001.base"))
	parts := XXH3Parts([]byte("rowset-"), []byte("000001"), []byte(".base"))
	if whole != parts {
		t.Errorf("XXH3Parts = %#x, want %#x", parts, whole)
	}
	if XXH3([]byte("a")) == XXH3([]byte("b")) {
		t.Error("distinct inputs hashed equal")
	}
}

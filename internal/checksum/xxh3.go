package checksum

import "github.com/zeebo/xxh3"

// XXH3 computes the 64-bit XXH3 hash of data.
func XXH3(data []byte) uint64 {
	return xxh3.Hash(data)
}

// XXH3Parts hashes the concatenation of parts without copying them.
func XXH3Parts(parts ...[]byte) uint64 {
	h := xxh3.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum64()
}

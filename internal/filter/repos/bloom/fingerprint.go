package bloom

// FNV-1a 64 parameters. Together with the word-at-a-time loop below they form
// a fixed binary contract with the external filter builder: any change breaks
// every filter file already published.
const (
	fnvOffsetBasis uint64 = 14695981039346656037
	fnvPrime       uint64 = 1099511628211
)

// Fingerprint hashes data with the FNV-1a variant used to place filter bits.
// Whole 4-byte groups are folded in as little-endian 32-bit words, and the
// remaining 0-3 bytes one at a time. Arithmetic wraps modulo 2^64.
func Fingerprint(data []byte) uint64 {
	return fingerprint(data)
}

// FingerprintString is Fingerprint over the UTF-8 bytes of s, without copying s.
func FingerprintString(s string) uint64 {
	return fingerprint(s)
}

func fingerprint[T ~string | ~[]byte](data T) uint64 {
	h := fnvOffsetBasis
	i := 0
	for ; len(data)-i >= 4; i += 4 {
		w := uint32(data[i]) | uint32(data[i+1])<<8 | uint32(data[i+2])<<16 | uint32(data[i+3])<<24
		h ^= uint64(w)
		h *= fnvPrime
	}
	for ; i < len(data); i++ {
		h ^= uint64(data[i])
		h *= fnvPrime
	}
	return h
}

// probes splits a digest into the two 32-bit lanes of the probe sequence.
// The first lane is taken from bit 31 upwards, overlapping the second by one
// bit. Filters built by the indexing pipeline depend on this exact split.
func probes(digest uint64) (h1, h2 uint32) {
	return uint32((digest >> 31) & 0xFFFFFFFF), uint32(digest & 0xFFFFFFFF)
}

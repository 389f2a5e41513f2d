package bloom

import "math"

// Sizing formulas for the filter builder:
//
//	bytes = ceil(-n * ln p / (ln 2)^2 / 8)
//	k     = ceil(-log2 p)
//
// n == 0 is treated as 1 and p outside (0, 1) as 1%. Results are at least 1,
// and k is capped at MaxHashCount.

const defaultFalsePositiveRate = 0.01

// RecommendedBytes returns the bit-array size in bytes for n elements at
// false-positive rate p.
func RecommendedBytes(n uint64, p float64) uint64 {
	if n == 0 {
		n = 1
	}
	p = clampRate(p)
	b := uint64(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2) / 8))
	if b == 0 {
		b = 1
	}
	return b
}

// RecommendedHashCount returns the number of probes for false-positive rate p.
func RecommendedHashCount(p float64) uint32 {
	p = clampRate(p)
	k := uint32(math.Ceil(-math.Log2(p)))
	if k == 0 {
		k = 1
	}
	if k > MaxHashCount {
		k = MaxHashCount
	}
	return k
}

func clampRate(p float64) float64 {
	if !(p > 0 && p < 1) {
		return defaultFalsePositiveRate
	}
	return p
}

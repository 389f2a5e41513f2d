package bloom

import (
	"encoding/base64"
	"encoding/json"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// Builder accumulates keys into a filter that Decode and MayContain accept,
// using the same hash and probe sequence. It is not safe for concurrent use.
type Builder struct {
	bs      *bitset.BitSet
	numBits uint32
	k       uint32
	added   uint64
}

// NewBuilder sizes a builder for n keys at false-positive rate p using
// RecommendedBytes and RecommendedHashCount.
func NewBuilder(n uint64, p float64) *Builder {
	nbytes := RecommendedBytes(n, p)
	if nbytes > math.MaxUint32/8 {
		nbytes = math.MaxUint32 / 8
	}
	return newBuilder(uint32(nbytes)*8, RecommendedHashCount(p))
}

// NewBuilderWithSize creates a builder with an explicit byte length and probe count.
// Zero values are raised to 1 and k is capped at MaxHashCount.
func NewBuilderWithSize(nbytes uint32, k uint32) *Builder {
	if nbytes == 0 {
		nbytes = 1
	}
	if nbytes > math.MaxUint32/8 {
		nbytes = math.MaxUint32 / 8
	}
	if k == 0 {
		k = 1
	}
	if k > MaxHashCount {
		k = MaxHashCount
	}
	return newBuilder(nbytes*8, k)
}

func newBuilder(numBits, k uint32) *Builder {
	return &Builder{bs: bitset.New(uint(numBits)), numBits: numBits, k: k}
}

// Add inserts key.
func (b *Builder) Add(key string) {
	h1, h2 := probes(FingerprintString(key))
	for i := uint32(0); i < b.k; i++ {
		b.bs.Set(uint(h1 % b.numBits))
		h1 += h2
	}
	b.added++
}

// Len returns the number of Add calls, duplicates included.
func (b *Builder) Len() uint64 { return b.added }

// bytes lays the bit set out with bit i at byte i/8, mask 1<<(i%8).
func (b *Builder) bytes() []byte {
	out := make([]byte, b.numBits/8)
	for i, ok := b.bs.NextSet(0); ok; i, ok = b.bs.NextSet(i + 1) {
		out[i/8] |= 1 << (i % 8)
	}
	return out
}

// Filter returns an immutable snapshot of the keys added so far.
func (b *Builder) Filter() *Filter {
	return &Filter{bits: b.bytes(), numBits: b.numBits, k: b.k}
}

// Encode renders the filter payload document.
func (b *Builder) Encode() ([]byte, error) {
	data := base64.StdEncoding.EncodeToString(b.bytes())
	k := b.k
	return json.Marshal(payload{Data: &data, K: &k})
}

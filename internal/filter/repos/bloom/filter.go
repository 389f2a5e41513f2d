// Package bloom decodes and queries the read-only Bloom filters published by
// the indexing pipeline, and builds compatible filters for fixtures and tooling.
package bloom

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

var (
	ErrMalformedPayload = errors.New("filter payload is not a JSON object")
	ErrMissingField     = errors.New("filter payload missing field")
	ErrMalformedBase64  = errors.New("filter payload Data is not valid base64")
	ErrEmptyFilter      = errors.New("filter has no bits or no hash probes")
	ErrFilterTooLarge   = errors.New("filter bit count exceeds 32 bits")
	ErrTooManyProbes    = errors.New("filter hash probe count exceeds limit")
)

// MaxHashCount bounds K. A false-positive rate of 2^-64 already needs only 64
// probes, so anything larger is a corrupt payload.
const MaxHashCount = 64

// Filter is an immutable Bloom filter. It is safe for concurrent use by any
// number of readers and is replaced, never modified, when a newer file loads.
type Filter struct {
	bits    []byte
	numBits uint32
	k       uint32
}

// payload is the on-disk form: {"Data": "<base64 bit array>", "K": <probes>}.
// The bit count is not stored; it is always 8 * len(decoded Data).
type payload struct {
	Data *string `json:"Data"`
	K    *uint32 `json:"K"`
}

// Decode parses a filter payload.
func Decode(data []byte) (*Filter, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Data == nil {
		return nil, fmt.Errorf("%w: Data", ErrMissingField)
	}
	if p.K == nil {
		return nil, fmt.Errorf("%w: K", ErrMissingField)
	}
	bits, err := base64.StdEncoding.DecodeString(*p.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBase64, err)
	}
	return newFilter(bits, *p.K)
}

// Load reads and decodes the filter file at path. It performs blocking file
// I/O and must not be called on a latency-sensitive path.
func Load(path string) (*Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter %s: %w", path, err)
	}
	return Decode(data)
}

func newFilter(bits []byte, k uint32) (*Filter, error) {
	if len(bits) == 0 || k == 0 {
		return nil, ErrEmptyFilter
	}
	if k > MaxHashCount {
		return nil, fmt.Errorf("%w: K=%d, max %d", ErrTooManyProbes, k, MaxHashCount)
	}
	if uint64(len(bits))*8 > math.MaxUint32 {
		return nil, ErrFilterTooLarge
	}
	return &Filter{bits: bits, numBits: uint32(len(bits)) * 8, k: k}, nil
}

// MayContain reports whether key is possibly in the set. A false result is
// definite; a true result may be a false positive. It does not allocate.
func (f *Filter) MayContain(key string) bool {
	h1, h2 := probes(FingerprintString(key))
	for i := uint32(0); i < f.k; i++ {
		idx := h1 % f.numBits
		if f.bits[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
		h1 += h2
	}
	return true
}

// NumBits returns the number of addressable bits.
func (f *Filter) NumBits() uint32 { return f.numBits }

// K returns the number of probes per query.
func (f *Filter) K() uint32 { return f.k }

// FillRatio returns the fraction of bits set, a rough indicator of how close
// the filter is to its designed capacity.
func (f *Filter) FillRatio() float64 {
	var set int
	for _, b := range f.bits {
		for ; b != 0; b &= b - 1 {
			set++
		}
	}
	return float64(set) / float64(f.numBits)
}

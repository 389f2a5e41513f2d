package bloom

import (
	"testing"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
)

func TestRecommendedBytes_CommonCases(t *testing.T) {
	// n=1e6, p=1% -> ~9.585e6 bits -> ~1.198e6 bytes
	got := RecommendedBytes(1_000_000, 0.01)
	if got < 1_190_000 || got > 1_205_000 {
		t.Fatalf("n=1e6,p=0.01: RecommendedBytes=%d, want about 1.198e6", got)
	}

	// n=1, p=1% -> 9.59 bits -> 2 bytes
	if got := RecommendedBytes(1, 0.01); got != 2 {
		t.Fatalf("n=1,p=0.01: RecommendedBytes=%d, want 2", got)
	}
}

func TestRecommendedBytes_AgreesWithReferenceSizer(t *testing.T) {
	cases := []struct {
		n uint64
		p float64
	}{
		{1, 0.01}, {100, 0.05}, {5000, 0.001}, {250_000, 0.01}, {10_000, 0.5},
	}
	for _, c := range cases {
		m, _ := bitsbloom.EstimateParameters(uint(c.n), c.p)
		want := (uint64(m) + 7) / 8
		if got := RecommendedBytes(c.n, c.p); got != want {
			t.Errorf("n=%d p=%v: RecommendedBytes=%d, reference m=%d bits -> %d bytes", c.n, c.p, got, m, want)
		}
	}
}

func TestRecommendedHashCount(t *testing.T) {
	cases := map[float64]uint32{
		0.5:    1,
		0.25:   2,
		0.1:    4,
		0.01:   7,
		0.001:  10,
		0.0001: 14,
	}
	for p, want := range cases {
		if got := RecommendedHashCount(p); got != want {
			t.Errorf("p=%v: RecommendedHashCount=%d, want %d", p, got, want)
		}
	}
}

func TestSizing_ClampingAndDefaults(t *testing.T) {
	if got, want := RecommendedBytes(0, 0), RecommendedBytes(1, 0.01); got != want {
		t.Fatalf("n=0,p=0: got %d, want default sizing %d", got, want)
	}
	if got := RecommendedBytes(100, 1.0); got != RecommendedBytes(100, 0.01) {
		t.Fatalf("p>=1 should default to 1%%, got %d", got)
	}
	if got := RecommendedHashCount(-3); got != 7 {
		t.Fatalf("p<0 should default to 1%%, got k=%d", got)
	}
	if got := RecommendedHashCount(1e-300); got != MaxHashCount {
		t.Fatalf("tiny p should cap k at %d, got %d", MaxHashCount, got)
	}
}

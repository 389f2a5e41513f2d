package bloom

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloadDoc(bits []byte, k int) []byte {
	return []byte(fmt.Sprintf(`{"Data":%q,"K":%d}`, base64.StdEncoding.EncodeToString(bits), k))
}

func testURLs(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://%s.example.com/thread/%06d", prefix, i)
	}
	return out
}

func randomURLs(prefix string, n int, seed int64) []string {
	rng := rand.New(rand.NewSource(seed))
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://%s.example.com/t/%d/%x", prefix, rng.Intn(1_000_000), rng.Uint64())
	}
	return out
}

func TestDecode_DerivesBitCount(t *testing.T) {
	f, err := Decode(payloadDoc(make([]byte, 16), 3))
	require.NoError(t, err)
	assert.Equal(t, uint32(128), f.NumBits())
	assert.Equal(t, uint32(3), f.K())
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `Data=abc`, ErrMalformedPayload},
		{"missing data", `{"K":3}`, ErrMissingField},
		{"missing k", `{"Data":"AAAA"}`, ErrMissingField},
		{"bad base64", `{"Data":"!!!notbase64","K":3}`, ErrMalformedBase64},
		{"unpadded base64", `{"Data":"AAA","K":3}`, ErrMalformedBase64},
		{"empty data", `{"Data":"","K":3}`, ErrEmptyFilter},
		{"zero k", `{"Data":"AAAA","K":0}`, ErrEmptyFilter},
		{"negative k", `{"Data":"AAAA","K":-1}`, ErrMalformedPayload},
		{"k above limit", `{"Data":"AAAA","K":65}`, ErrTooManyProbes},
		{"k near uint32 max", `{"Data":"////","K":4294967295}`, ErrTooManyProbes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode([]byte(tt.doc))
			assert.Nil(t, f)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestDecode_AcceptsMaxHashCount(t *testing.T) {
	f, err := Decode(payloadDoc([]byte(strings.Repeat("\xff", 8)), MaxHashCount))
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxHashCount), f.K())
	assert.True(t, f.MayContain("https://spam.example.com/"))
}

func TestMayContain_AllSetAndAllClear(t *testing.T) {
	full, err := Decode(payloadDoc([]byte(strings.Repeat("\xff", 64)), 7))
	require.NoError(t, err)
	empty, err := Decode(payloadDoc(make([]byte, 64), 7))
	require.NoError(t, err)

	for _, key := range testURLs("any", 50) {
		assert.True(t, full.MayContain(key))
		assert.False(t, empty.MayContain(key))
	}
}

func TestMayContain_SingleKeyBitLayout(t *testing.T) {
	// Set exactly the bits the probe sequence visits for one key, by hand.
	const key = "https://news.example.com/item?id=1"
	const nbytes, k = 32, 4
	bits := make([]byte, nbytes)
	h1, h2 := probes(FingerprintString(key))
	for i := 0; i < k; i++ {
		idx := h1 % (nbytes * 8)
		bits[idx/8] |= 1 << (idx % 8)
		h1 += h2
	}

	f, err := Decode(payloadDoc(bits, k))
	require.NoError(t, err)
	assert.True(t, f.MayContain(key))
}

func TestMayContain_NoFalseNegatives(t *testing.T) {
	keys := testURLs("ugc", 5000)
	b := NewBuilder(uint64(len(keys)), 0.01)
	for _, k := range keys {
		b.Add(k)
	}
	data, err := b.Encode()
	require.NoError(t, err)

	f, err := Decode(data)
	require.NoError(t, err)
	for _, k := range keys {
		if !f.MayContain(k) {
			t.Fatalf("false negative for %q", k)
		}
	}
}

func TestMayContain_FalsePositiveRateBounded(t *testing.T) {
	const n, p = 2000, 0.01
	b := NewBuilder(n, p)
	for _, k := range randomURLs("member", n, 1) {
		b.Add(k)
	}
	f := b.Filter()

	const m = 20000
	var fp int
	for _, k := range randomURLs("outsider", m, 2) {
		if f.MayContain(k) {
			fp++
		}
	}
	rate := float64(fp) / m
	assert.LessOrEqual(t, rate, 3*p, "empirical false-positive rate %.4f exceeds 3x target", rate)
}

func TestMayContain_DoesNotAllocate(t *testing.T) {
	b := NewBuilder(100, 0.01)
	b.Add("https://example.com/a")
	f := b.Filter()
	key := "https://example.com/" + strings.Repeat("long-path-segment/", 10)

	allocs := testing.AllocsPerRun(100, func() {
		_ = f.MayContain(key)
	})
	assert.Zero(t, allocs)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(10, 0.05)
	b.Add("https://example.com/x")
	data, err := b.Encode()
	require.NoError(t, err)

	path := filepath.Join(dir, "test_urls_out.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.True(t, f.MayContain("https://example.com/x"))

	_, err = Load(filepath.Join(dir, "missing.bin"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err = Load(path)
	assert.True(t, errors.Is(err, ErrMissingField))
}

func TestFilter_ConcurrentReaders(t *testing.T) {
	keys := testURLs("c", 256)
	b := NewBuilder(uint64(len(keys)), 0.01)
	for _, k := range keys {
		b.Add(k)
	}
	f := b.Filter()

	done := make(chan struct{})
	for r := 0; r < 8; r++ {
		go func(seed int64) {
			defer func() { done <- struct{}{} }()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 2000; i++ {
				if !f.MayContain(keys[rng.Intn(len(keys))]) {
					t.Errorf("false negative under concurrency")
					return
				}
			}
		}(int64(r))
	}
	for r := 0; r < 8; r++ {
		<-done
	}
}

func BenchmarkMayContain_Positive(b *testing.B) {
	keys := testURLs("bench", 1000)
	bl := NewBuilder(uint64(len(keys)), 0.01)
	for _, k := range keys {
		bl.Add(k)
	}
	f := bl.Filter()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.MayContain(keys[i%len(keys)])
	}
}

func BenchmarkMayContain_Negative(b *testing.B) {
	bl := NewBuilder(1000, 0.01)
	for _, k := range testURLs("present", 1000) {
		bl.Add(k)
	}
	f := bl.Filter()
	absent := testURLs("absent", 1000)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.MayContain(absent[i%len(absent)])
	}
}

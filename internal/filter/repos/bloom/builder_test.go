package bloom

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SizedFromRecommendations(t *testing.T) {
	b := NewBuilder(1000, 0.01)
	f := b.Filter()
	assert.Equal(t, uint32(RecommendedBytes(1000, 0.01))*8, f.NumBits())
	assert.Equal(t, RecommendedHashCount(0.01), f.K())
}

func TestBuilder_EncodeMatchesFilterSnapshot(t *testing.T) {
	b := NewBuilderWithSize(64, 5)
	keys := testURLs("enc", 40)
	for _, k := range keys {
		b.Add(k)
	}
	assert.Equal(t, uint64(40), b.Len())

	data, err := b.Encode()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "Data")
	assert.EqualValues(t, 5, doc["K"])

	decoded, err := Decode(data)
	require.NoError(t, err)
	snap := b.Filter()
	assert.Equal(t, snap.bits, decoded.bits)
	assert.Equal(t, snap.NumBits(), decoded.NumBits())
}

func TestBuilder_SnapshotIsIndependent(t *testing.T) {
	b := NewBuilderWithSize(8, 2)
	before := b.Filter()
	b.Add("https://example.com/later")
	assert.Zero(t, before.FillRatio())
	assert.Greater(t, b.Filter().FillRatio(), 0.0)
}

func TestNewBuilderWithSize_ZeroValuesRaised(t *testing.T) {
	f := NewBuilderWithSize(0, 0).Filter()
	assert.Equal(t, uint32(8), f.NumBits())
	assert.Equal(t, uint32(1), f.K())
}

func TestNewBuilderWithSize_HashCountCapped(t *testing.T) {
	b := NewBuilderWithSize(16, 1000)
	b.Add("k")
	assert.Equal(t, uint32(MaxHashCount), b.Filter().K())

	payload, err := b.Encode()
	require.NoError(t, err)
	_, err = Decode(payload)
	assert.NoError(t, err)
}

package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestDeterministicEmbedder_Dimension(t *testing.T) {
	e := NewDeterministicEmbedder(0)
	defer e.Close()

	v, err := e.Embed(context.Background(), "wireless bluetooth headphones")
	require.NoError(t, err)
	assert.Len(t, v, DefaultDimensions)
}

func TestDeterministicEmbedder_Normalized(t *testing.T) {
	e := NewDeterministicEmbedder(384)
	defer e.Close()

	for _, text := range []string{
		"wireless bluetooth headphones",
		"Luxury Leather Office Chair",
		"a",
		"ünïcødé prödüct nàme",
	} {
		v, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, vectorNorm(v), 1e-6, "norm for %q", text)
	}
}

func TestDeterministicEmbedder_Stable(t *testing.T) {
	a := NewDeterministicEmbedder(384)
	b := NewDeterministicEmbedder(384)
	defer a.Close()
	defer b.Close()

	// Same input must produce identical output across instances.
	v1, err := a.Embed(context.Background(), "ergonomic office chair")
	require.NoError(t, err)
	v2, err := b.Embed(context.Background(), "ergonomic office chair")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestDeterministicEmbedder_CaseInsensitive(t *testing.T) {
	e := NewDeterministicEmbedder(128)
	defer e.Close()

	v1, err := e.Embed(context.Background(), "Wireless Headphones")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "wireless headphones")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestDeterministicEmbedder_DistinctTexts(t *testing.T) {
	e := NewDeterministicEmbedder(384)
	defer e.Close()

	v1, err := e.Embed(context.Background(), "running shoes")
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), "espresso machine")
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)
}

func TestDeterministicEmbedder_EmptyText(t *testing.T) {
	e := NewDeterministicEmbedder(64)
	defer e.Close()

	v, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, 64)
	// Zero vector stays zero; normalization must not divide by zero.
	assert.Equal(t, 0.0, vectorNorm(v))
}

func TestDeterministicEmbedder_EmbedBatch(t *testing.T) {
	e := NewDeterministicEmbedder(96)
	defer e.Close()

	vs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vs, 3)

	single, err := e.Embed(context.Background(), "two")
	require.NoError(t, err)
	assert.Equal(t, single, vs[1])
}

func TestDeterministicEmbedder_ClosedRejects(t *testing.T) {
	e := NewDeterministicEmbedder(32)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "anything")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}

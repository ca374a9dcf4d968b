package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps the deterministic embedder and counts inner calls.
type countingEmbedder struct {
	*DeterministicEmbedder
	embedCalls int32
	batchCalls int32
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&c.embedCalls, 1)
	return c.DeterministicEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&c.batchCalls, 1)
	return c.DeterministicEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{DeterministicEmbedder: NewDeterministicEmbedder(32)}
	c := NewCachedEmbedder(inner, 8)
	defer c.Close()

	v1, err := c.Embed(context.Background(), "repeat query")
	require.NoError(t, err)
	v2, err := c.Embed(context.Background(), "repeat query")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.embedCalls))
}

func TestCachedEmbedder_BatchOnlySendsMisses(t *testing.T) {
	inner := &countingEmbedder{DeterministicEmbedder: NewDeterministicEmbedder(32)}
	c := NewCachedEmbedder(inner, 8)
	defer c.Close()

	_, err := c.Embed(context.Background(), "b")
	require.NoError(t, err)

	vs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vs, 3)

	// "b" was cached; the batch call only carried "a" and "c".
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.batchCalls))

	direct, err := inner.DeterministicEmbedder.Embed(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, direct, vs[1])
}

func TestCachedEmbedder_DelegatesMetadata(t *testing.T) {
	inner := NewDeterministicEmbedder(64)
	c := NewCachedEmbedder(inner, 8)
	defer c.Close()

	assert.Equal(t, 64, c.Dimensions())
	assert.Equal(t, inner.ModelName(), c.ModelName())
	assert.True(t, c.Available(context.Background()))
}

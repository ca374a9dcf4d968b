package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesKindFromCode(t *testing.T) {
	tests := []struct {
		name string
		code string
		want Kind
	}{
		{"empty query is invalid input", ErrCodeQueryEmpty, KindInvalidInput},
		{"repo unavailable", ErrCodeRepoUnavailable, KindUnavailable},
		{"embedding unavailable", ErrCodeEmbeddingUnavailable, KindUnavailable},
		{"product not found", ErrCodeProductNotFound, KindNotFound},
		{"duplicate sku conflicts", ErrCodeDuplicateSKU, KindConflict},
		{"cancelled search", ErrCodeSearchCancelled, KindCancelled},
		{"embedding timeout", ErrCodeEmbeddingTimeout, KindTimeout},
		{"internal bug", ErrCodeInternal, KindInternal},
		{"corrupt vector", ErrCodeVectorCorrupt, KindInternal},
		{"config error is invalid input", ErrCodeConfigInvalid, KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "message", nil)
			assert.Equal(t, tt.want, err.Kind)
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	a := New(ErrCodeQueryEmpty, "query is empty", nil)
	b := New(ErrCodeQueryEmpty, "different message", nil)
	c := New(ErrCodeQueryTooLong, "query too long", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeRepoUnavailable, cause)

	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.Equal(t, "connection refused", err.Message)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(ErrCodeEmbeddingTimeout, "timeout", nil)))
	assert.True(t, IsRetryable(New(ErrCodeRepoUnavailable, "down", nil)))
	assert.False(t, IsRetryable(New(ErrCodeQueryEmpty, "empty", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestFromContext(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := FromContext(ctx)
		require.NotNil(t, err)
		assert.Equal(t, KindCancelled, err.Kind)
	})

	t.Run("live context returns nil", func(t *testing.T) {
		assert.Nil(t, FromContext(context.Background()))
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound(ErrCodeProductNotFound, "product", 42)))
	assert.Equal(t, KindInternal, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, Kind(""), KindOf(nil))

	wrapped := fmt.Errorf("outer: %w", New(ErrCodeDuplicateSKU, "dup", nil))
	assert.Equal(t, KindConflict, KindOf(wrapped))
}

func TestWithDetail(t *testing.T) {
	err := Internal("bad vector", nil).WithDetail("product_id", "17")
	assert.Equal(t, "17", err.Details["product_id"])
}

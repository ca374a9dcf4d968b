package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcart/discovery/internal/errors"
)

func TestWithRetry_SucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		if attempts < 3 {
			return errors.New(errors.ErrCodeEmbeddingUnavailable, "down", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetry_NonRetryableSurfacesImmediately(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		return errors.New(errors.ErrCodeQueryEmpty, "empty", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
	}, func() error {
		attempts++
		return errors.New(errors.ErrCodeEmbeddingTimeout, "slow", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
	assert.Equal(t, errors.KindTimeout, errors.KindOf(err))
}

func TestWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, RetryConfig{MaxRetries: 3}, func() error {
		t.Fatal("fn should not run on cancelled context")
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"portfolio_translation_go_backend/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(3)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow("10.0.0.1"))
		now = now.Add(10 * time.Second)
	}
	assert.Equal(t, 0, limiter.Remaining("10.0.0.1"))

	err := limiter.Allow("10.0.0.1")
	var rlErr *RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, 3, rlErr.Limit)
	assert.Equal(t, 30*time.Second, rlErr.RetryAfter)

	t.Run("Keys are independent", func(t *testing.T) {
		assert.NoError(t, limiter.Allow("10.0.0.2"))
		assert.NoError(t, limiter.Allow(""))
		assert.Equal(t, 2, limiter.Remaining(GlobalRateLimitKey))
	})

	t.Run("Window slides", func(t *testing.T) {
		now = now.Add(31 * time.Second)
		assert.Equal(t, 1, limiter.Remaining("10.0.0.1"))
		assert.NoError(t, limiter.Allow("10.0.0.1"))
		assert.Error(t, limiter.Allow("10.0.0.1"))
	})
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, limiter.Allow("client"))
	}
	assert.Equal(t, -1, limiter.Remaining("client"))

	var nilLimiter *RateLimiter
	assert.NoError(t, nilLimiter.Allow("client"))
}

func TestRateLimiterDropsIdleKeys(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(5)
	limiter.now = func() time.Time { return now }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		require.NoError(t, limiter.Allow(ip))
	}
	assert.Len(t, limiter.hits, 3)

	now = now.Add(2 * time.Minute)
	require.NoError(t, limiter.Allow("10.0.0.4"))
	assert.Len(t, limiter.hits, 1, "keys idle for a full window are removed")
	assert.Contains(t, limiter.hits, "10.0.0.4")
}

func TestTranslateWithBackoff(t *testing.T) {
	items := []providers.Item{{Text: "a", Source: "en", Target: "fr"}}
	opts := TranslateOptions{ClientID: workerClientID}

	t.Run("Waits out rate limits", func(t *testing.T) {
		translator := new(MockBatchTranslator)
		translator.On("TranslateBatch", mock.Anything, items, opts).
			Return(nil, &RateLimitError{Limit: 2, RetryAfter: 20 * time.Second}).Twice()
		translator.On("TranslateBatch", mock.Anything, items, opts).
			Return(translatedChunk(items), nil).Once()

		var waits []time.Duration
		sleep := func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		}
		results, err := translateWithBackoff(context.Background(), translator, items, opts, sleep)
		require.NoError(t, err)
		assert.Equal(t, "fr:a", results[0].TranslatedText)
		assert.Equal(t, []time.Duration{20 * time.Second, 20 * time.Second}, waits)
		translator.AssertExpectations(t)
	})

	t.Run("Stops when context ends", func(t *testing.T) {
		translator := new(MockBatchTranslator)
		translator.On("TranslateBatch", mock.Anything, items, opts).
			Return(nil, &RateLimitError{Limit: 2, RetryAfter: time.Hour})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := translateWithBackoff(ctx, translator, items, opts, sleepContext)
		assert.ErrorIs(t, err, context.Canceled)
		translator.AssertNumberOfCalls(t, "TranslateBatch", 1)
	})

	t.Run("Other errors pass through", func(t *testing.T) {
		translator := new(MockBatchTranslator)
		translator.On("TranslateBatch", mock.Anything, items, opts).Return(nil, ErrNoProviders)

		_, err := translateWithBackoff(context.Background(), translator, items, opts, sleepContext)
		assert.ErrorIs(t, err, ErrNoProviders)
	})
}

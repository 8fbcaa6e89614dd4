package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"portfolio_translation_go_backend/internal/providers"

	"github.com/rs/zerolog/log"
)

const GlobalRateLimitKey = "global"

// RateLimiter is a per-process sliding window counter. With several instances
// the effective limit is the per-instance limit times the instance count.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
	// lastSweep is when idle keys were last dropped from hits.
	lastSweep time.Time
}

// NewRateLimiter allows limit requests per minute per key. limit <= 0 disables limiting.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: time.Minute,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records a request for key, or returns a RateLimitError if the window is full.
func (r *RateLimiter) Allow(key string) error {
	if r == nil || r.limit <= 0 {
		return nil
	}
	if key == "" {
		key = GlobalRateLimitKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastSweep) >= r.window {
		r.sweep(now)
	}
	hits := r.prune(key, now)
	if len(hits) >= r.limit {
		return &RateLimitError{Limit: r.limit, RetryAfter: hits[0].Add(r.window).Sub(now)}
	}
	r.hits[key] = append(hits, now)
	return nil
}

// Remaining is the number of requests key may still make in the current window.
func (r *RateLimiter) Remaining(key string) int {
	if r == nil || r.limit <= 0 {
		return -1
	}
	if key == "" {
		key = GlobalRateLimitKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit - len(r.prune(key, r.now()))
}

func (r *RateLimiter) prune(key string, now time.Time) []time.Time {
	hits := r.hits[key]
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) == 0 {
		delete(r.hits, key)
		return nil
	}
	r.hits[key] = hits
	return hits
}

// sweep drops every key with no hits left in the window.
func (r *RateLimiter) sweep(now time.Time) {
	for key := range r.hits {
		r.prune(key, now)
	}
	r.lastSweep = now
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// translateWithBackoff sends items again after every RateLimitError, once
// RetryAfter has passed. Other errors are returned as they are.
func translateWithBackoff(ctx context.Context, translator BatchTranslator, items []providers.Item, opts TranslateOptions, sleep sleepFunc) ([]TranslationResult, error) {
	for {
		results, err := translator.TranslateBatch(ctx, items, opts)
		var rateErr *RateLimitError
		if !errors.As(err, &rateErr) {
			return results, err
		}
		wait := rateErr.RetryAfter
		if wait <= 0 {
			wait = time.Second
		}
		log.Debug().Str("client_id", opts.ClientID).Dur("retry_after", wait).Msg("Rate limited, waiting before next chunk")
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

package providers

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

type BreakerSettings struct {
	// Consecutive failures before the breaker opens.
	MaxFailures uint32
	// How long the breaker stays open before letting a trial request through.
	Cooldown time.Duration
}

// BreakerProvider short-circuits calls to a provider that keeps failing.
type BreakerProvider struct {
	Provider
	cb *gobreaker.CircuitBreaker
}

func WithCircuitBreaker(p Provider, settings BreakerSettings) *BreakerProvider {
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	cooldown := settings.Cooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Provider circuit breaker state changed")
		},
	})
	return &BreakerProvider{Provider: p, cb: cb}
}

func (b *BreakerProvider) Translate(ctx context.Context, text, source, target string) (*Result, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.Provider.Translate(ctx, text, source, target)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return res.(*Result), nil
}

func (b *BreakerProvider) TranslateBatch(ctx context.Context, items []Item) ([]Result, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.Provider.TranslateBatch(ctx, items)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return res.([]Result), nil
}

// State is the current breaker state.
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerProvider) Unwrap() Provider {
	return b.Provider
}

func (b *BreakerProvider) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &ProviderError{Provider: b.Name(), Err: err}
	}
	return err
}

// BreakerOpen reports whether p is wrapped in a breaker that is currently open.
func BreakerOpen(p Provider) bool {
	bp, ok := p.(*BreakerProvider)
	return ok && bp.State() == gobreaker.StateOpen
}

// UsageOf queries the quota of p or of the provider it wraps. ok is false when
// no quota endpoint exists.
func UsageOf(ctx context.Context, p Provider) (usage *Usage, ok bool, err error) {
	for p != nil {
		if reporter, isReporter := p.(UsageReporter); isReporter {
			usage, err = reporter.Usage(ctx)
			return usage, true, err
		}
		wrapper, isWrapper := p.(interface{ Unwrap() Provider })
		if !isWrapper {
			break
		}
		p = wrapper.Unwrap()
	}
	return nil, false, nil
}

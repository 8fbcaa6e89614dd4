package providers

import "time"

type Config struct {
	DeepL          DeepLConfig
	Google         GoogleConfig
	LibreTranslate LibreTranslateConfig
	Timeout        time.Duration
	Breaker        BreakerSettings
}

// Build constructs every known adapter, each behind its own circuit breaker.
// Adapters without credentials are still returned; the selector skips them.
func Build(cfg Config) []Provider {
	if cfg.DeepL.Timeout == 0 {
		cfg.DeepL.Timeout = cfg.Timeout
	}
	if cfg.Google.Timeout == 0 {
		cfg.Google.Timeout = cfg.Timeout
	}
	if cfg.LibreTranslate.Timeout == 0 {
		cfg.LibreTranslate.Timeout = cfg.Timeout
	}
	return []Provider{
		WithCircuitBreaker(NewDeepL(cfg.DeepL), cfg.Breaker),
		WithCircuitBreaker(NewGoogle(cfg.Google), cfg.Breaker),
		WithCircuitBreaker(NewLibreTranslate(cfg.LibreTranslate), cfg.Breaker),
	}
}

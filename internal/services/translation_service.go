package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/providers"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const unknownProvider = "unknown"

type TranslationConfig struct {
	RetryAttempts   int
	RetryDelay      time.Duration
	BatchSize       int
	MaxTextLength   int
	ProviderTimeout time.Duration
}

func (c TranslationConfig) withDefaults() TranslationConfig {
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = 5000
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 15 * time.Second
	}
	return c
}

type TranslateOptions struct {
	// Provider is tried first when available and scopes the cache key.
	Provider string
	// ClientID keys the rate limiter; empty means the global bucket.
	ClientID string
}

type TranslationResult struct {
	TranslatedText         string `json:"translated_text"`
	DetectedSourceLanguage string `json:"detected_source_language,omitempty"`
	Provider               string `json:"provider"`
	Cached                 bool   `json:"cached"`
	CharactersUsed         int    `json:"characters_used"`
}

// MetricsRecorder receives counters for export. The zero service uses a no-op.
type MetricsRecorder interface {
	ObserveTranslation(provider string, success, cached bool, characters int, elapsed time.Duration)
	ObserveBatch(size, cachedItems int)
	ObserveJob(jobType, status string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTranslation(string, bool, bool, int, time.Duration) {}
func (noopMetrics) ObserveBatch(int, int)                                     {}
func (noopMetrics) ObserveJob(string, string)                                 {}

// AnalyticsStore is the part of the analytics service the orchestrator needs.
type AnalyticsStore interface {
	AnalyticsRecorder
	GetStats(ctx context.Context, period string) (*AnalyticsStats, error)
	Ping(ctx context.Context) error
}

type QueueStatsSource interface {
	GetQueueStats(ctx context.Context) (*QueueStats, error)
}

type TranslationService struct {
	selector     *providers.Selector
	cache        *CacheService
	analytics    AnalyticsStore
	limiter      *RateLimiter
	queue        QueueStatsSource
	metrics      MetricsRecorder
	cfg          TranslationConfig
	newRequestID func() string
}

func NewTranslationService(selector *providers.Selector, cache *CacheService, analytics AnalyticsStore, limiter *RateLimiter, cfg TranslationConfig) *TranslationService {
	return &TranslationService{
		selector:     selector,
		cache:        cache,
		analytics:    analytics,
		limiter:      limiter,
		metrics:      noopMetrics{},
		cfg:          cfg.withDefaults(),
		newRequestID: func() string { return uuid.New().String() },
	}
}

func (s *TranslationService) SetMetricsRecorder(m MetricsRecorder) {
	if m != nil {
		s.metrics = m
	}
}

// AttachQueue adds queue figures to GetStats.
func (s *TranslationService) AttachQueue(q QueueStatsSource) {
	s.queue = q
}

func (s *TranslationService) Config() TranslationConfig {
	return s.cfg
}

func (s *TranslationService) validateText(field, text, target string) error {
	if strings.TrimSpace(text) == "" {
		return newValidationError(field, "text must not be empty")
	}
	if strings.TrimSpace(target) == "" {
		return newValidationError("target_language", "target language is required")
	}
	if n := utf8.RuneCountInString(text); n > s.cfg.MaxTextLength {
		return newValidationError(field, "text is %d characters, maximum is %d", n, s.cfg.MaxTextLength)
	}
	return nil
}

// Translate runs validate, rate limit, cache lookup and the provider fallback loop.
func (s *TranslationService) Translate(ctx context.Context, text, source, target string, opts TranslateOptions) (*TranslationResult, error) {
	if err := s.validateText("text", text, target); err != nil {
		return nil, err
	}
	if err := s.limiter.Allow(opts.ClientID); err != nil {
		return nil, err
	}

	requestID := s.newRequestID()
	characters := utf8.RuneCountInString(text)
	started := time.Now()

	entry, err := s.cache.Get(ctx, text, source, target, opts.Provider)
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("Cache lookup failed")
	}
	if entry != nil {
		elapsed := time.Since(started)
		s.record(ctx, &models.TranslationAnalytics{
			RequestID:      requestID,
			SourceLanguage: source,
			TargetLanguage: target,
			Provider:       entry.Provider,
			CharacterCount: characters,
			ResponseTimeMs: elapsed.Milliseconds(),
			Cached:         true,
			Success:        true,
			AttemptNumber:  1,
		})
		s.metrics.ObserveTranslation(entry.Provider, true, true, characters, elapsed)
		return &TranslationResult{
			TranslatedText:         entry.TranslatedText,
			DetectedSourceLanguage: entry.DetectedSourceLanguage,
			Provider:               entry.Provider,
			Cached:                 true,
			CharactersUsed:         characters,
		}, nil
	}

	chain := s.selector.WithFallback(opts.Provider)
	var lastErr error = ErrNoProviders
	calls := 0
	for attempt := 1; attempt <= s.cfg.RetryAttempts && len(chain) > 0; attempt++ {
		if err := s.backoff(ctx, attempt); err != nil {
			return nil, err
		}
		for _, p := range chain {
			calls++
			callStarted := time.Now()
			res, err := s.callTranslate(ctx, p, text, source, target)
			elapsed := time.Since(callStarted)

			if err == nil {
				if cerr := s.cache.Set(ctx, text, source, target, opts.Provider, res); cerr != nil {
					log.Warn().Err(cerr).Str("request_id", requestID).Msg("Failed to write translation cache")
				}
				s.record(ctx, &models.TranslationAnalytics{
					RequestID:      requestID,
					SourceLanguage: source,
					TargetLanguage: target,
					Provider:       p.Name(),
					CharacterCount: characters,
					ResponseTimeMs: elapsed.Milliseconds(),
					Success:        true,
					AttemptNumber:  attempt,
				})
				s.metrics.ObserveTranslation(p.Name(), true, false, characters, elapsed)
				return &TranslationResult{
					TranslatedText:         res.TranslatedText,
					DetectedSourceLanguage: res.DetectedSourceLanguage,
					Provider:               p.Name(),
					CharactersUsed:         characters,
				}, nil
			}

			lastErr = err
			log.Debug().Err(err).Str("request_id", requestID).Str("provider", p.Name()).Int("attempt", attempt).
				Msg("Provider translation failed")
			s.record(ctx, &models.TranslationAnalytics{
				RequestID:      requestID,
				SourceLanguage: source,
				TargetLanguage: target,
				Provider:       p.Name(),
				CharacterCount: characters,
				ResponseTimeMs: elapsed.Milliseconds(),
				ErrorMessage:   err.Error(),
				AttemptNumber:  attempt,
			})
			s.metrics.ObserveTranslation(p.Name(), false, false, characters, elapsed)

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
	}

	s.record(ctx, &models.TranslationAnalytics{
		RequestID:      requestID,
		SourceLanguage: source,
		TargetLanguage: target,
		Provider:       unknownProvider,
		CharacterCount: characters,
		ResponseTimeMs: time.Since(started).Milliseconds(),
		ErrorMessage:   lastErr.Error(),
		AttemptNumber:  calls,
	})
	log.Error().Err(lastErr).Str("request_id", requestID).Int("attempts", calls).Msg("All translation providers failed")
	return nil, &AllProvidersFailedError{Attempts: calls, LastErr: lastErr}
}

// TranslateBatch translates items, serving cached ones from the cache and
// sending the rest to one provider batch call per attempt. Output order
// always matches input order.
func (s *TranslationService) TranslateBatch(ctx context.Context, items []providers.Item, opts TranslateOptions) ([]TranslationResult, error) {
	if len(items) == 0 {
		return nil, newValidationError("items", "at least one item is required")
	}
	if len(items) > s.cfg.BatchSize {
		return nil, newValidationError("items", "batch of %d exceeds the maximum of %d", len(items), s.cfg.BatchSize)
	}
	characters := 0
	for i, item := range items {
		if err := s.validateText(fmt.Sprintf("items[%d].text", i), item.Text, item.Target); err != nil {
			return nil, err
		}
		characters += utf8.RuneCountInString(item.Text)
	}
	if err := s.limiter.Allow(opts.ClientID); err != nil {
		return nil, err
	}

	requestID := s.newRequestID()
	started := time.Now()
	results := make([]TranslationResult, len(items))

	cached, err := s.cache.GetBatch(ctx, items, opts.Provider)
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("Batch cache lookup failed")
		cached = make([]*models.TranslationCache, len(items))
	}
	var missing []int
	for i, entry := range cached {
		if entry == nil {
			missing = append(missing, i)
			continue
		}
		results[i] = TranslationResult{
			TranslatedText:         entry.TranslatedText,
			DetectedSourceLanguage: entry.DetectedSourceLanguage,
			Provider:               entry.Provider,
			Cached:                 true,
			CharactersUsed:         utf8.RuneCountInString(items[i].Text),
		}
	}
	s.metrics.ObserveBatch(len(items), len(items)-len(missing))

	batchRecord := &models.TranslationAnalytics{
		RequestID:      requestID,
		SourceLanguage: items[0].Source,
		TargetLanguage: items[0].Target,
		CharacterCount: characters,
		BatchSize:      len(items),
	}

	if len(missing) == 0 {
		batchRecord.Provider = results[0].Provider
		batchRecord.Cached = true
		batchRecord.Success = true
		batchRecord.AttemptNumber = 1
		batchRecord.ResponseTimeMs = time.Since(started).Milliseconds()
		s.record(ctx, batchRecord)
		return results, nil
	}

	pending := make([]providers.Item, len(missing))
	for i, idx := range missing {
		pending[i] = items[idx]
	}

	chain := s.selector.WithFallback(opts.Provider)
	var lastErr error = ErrNoProviders
	calls := 0
	for attempt := 1; attempt <= s.cfg.RetryAttempts && len(chain) > 0; attempt++ {
		if err := s.backoff(ctx, attempt); err != nil {
			return nil, err
		}
		for _, p := range chain {
			calls++
			translated, err := s.callTranslateBatch(ctx, p, pending)
			if err != nil {
				lastErr = err
				log.Debug().Err(err).Str("request_id", requestID).Str("provider", p.Name()).Int("attempt", attempt).
					Msg("Provider batch translation failed")
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}

			toCache := make([]*providers.Result, len(translated))
			for i, idx := range missing {
				res := translated[i]
				res.Provider = p.Name()
				toCache[i] = &res
				results[idx] = TranslationResult{
					TranslatedText:         res.TranslatedText,
					DetectedSourceLanguage: res.DetectedSourceLanguage,
					Provider:               p.Name(),
					CharactersUsed:         utf8.RuneCountInString(items[idx].Text),
				}
			}
			if cerr := s.cache.SetBatch(ctx, pending, toCache, opts.Provider); cerr != nil {
				log.Warn().Err(cerr).Str("request_id", requestID).Msg("Failed to write batch to translation cache")
			}

			elapsed := time.Since(started)
			batchRecord.Provider = p.Name()
			batchRecord.Success = true
			batchRecord.AttemptNumber = attempt
			batchRecord.ResponseTimeMs = elapsed.Milliseconds()
			s.record(ctx, batchRecord)
			s.metrics.ObserveTranslation(p.Name(), true, false, characters, elapsed)
			return results, nil
		}
	}

	batchRecord.Provider = unknownProvider
	batchRecord.ErrorMessage = lastErr.Error()
	batchRecord.AttemptNumber = calls
	batchRecord.ResponseTimeMs = time.Since(started).Milliseconds()
	s.record(ctx, batchRecord)
	s.metrics.ObserveTranslation(unknownProvider, false, false, characters, time.Since(started))
	log.Error().Err(lastErr).Str("request_id", requestID).Int("attempts", calls).Int("items", len(pending)).
		Msg("All translation providers failed for batch")
	return nil, &AllProvidersFailedError{Attempts: calls, LastErr: lastErr}
}

func (s *TranslationService) callTranslate(ctx context.Context, p providers.Provider, text, source, target string) (*providers.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	res, err := p.Translate(callCtx, text, source, target)
	if err != nil {
		return nil, deadlineError(ctx, callCtx, p, err)
	}
	if res == nil || res.TranslatedText == "" {
		return nil, &providers.ProviderError{Provider: p.Name(), Err: errors.New("empty translation")}
	}
	out := *res
	out.Provider = p.Name()
	return &out, nil
}

func (s *TranslationService) callTranslateBatch(ctx context.Context, p providers.Provider, items []providers.Item) ([]providers.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	res, err := p.TranslateBatch(callCtx, items)
	if err != nil {
		return nil, deadlineError(ctx, callCtx, p, err)
	}
	if len(res) != len(items) {
		return nil, &providers.ProviderError{
			Provider: p.Name(),
			Err:      fmt.Errorf("batch returned %d results for %d items", len(res), len(items)),
		}
	}
	return res, nil
}

// deadlineError marks errors caused by the per-call deadline as provider timeouts.
func deadlineError(parent, callCtx context.Context, p providers.Provider, err error) error {
	var perr *providers.ProviderError
	if errors.As(err, &perr) {
		return err
	}
	if parent.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &providers.ProviderError{Provider: p.Name(), Timeout: true, Err: err}
	}
	return err
}

// backoff waits RetryDelay times the number of completed rounds before attempt.
func (s *TranslationService) backoff(ctx context.Context, attempt int) error {
	if attempt <= 1 || s.cfg.RetryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.cfg.RetryDelay * time.Duration(attempt-1))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *TranslationService) record(ctx context.Context, rec *models.TranslationAnalytics) {
	if s.analytics == nil {
		return
	}
	s.analytics.LogRequest(context.WithoutCancel(ctx), rec)
}

type ServiceStats struct {
	Cache     *CacheStats     `json:"cache,omitempty"`
	Analytics *AnalyticsStats `json:"analytics,omitempty"`
	Queue     *QueueStats     `json:"queue,omitempty"`
	Providers []string        `json:"available_providers"`
}

// GetStats collects cache, last-24h analytics and queue figures. Sections that
// fail to load are left out.
func (s *TranslationService) GetStats(ctx context.Context) *ServiceStats {
	stats := &ServiceStats{Providers: []string{}}
	for _, p := range s.selector.WithFallback("") {
		stats.Providers = append(stats.Providers, p.Name())
	}
	if cs, err := s.cache.GetStats(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to load cache stats")
	} else {
		stats.Cache = cs
	}
	if s.analytics != nil {
		if as, err := s.analytics.GetStats(ctx, "24h"); err != nil {
			log.Warn().Err(err).Msg("Failed to load analytics stats")
		} else {
			stats.Analytics = as
		}
	}
	if s.queue != nil {
		if qs, err := s.queue.GetQueueStats(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to load queue stats")
		} else {
			stats.Queue = qs
		}
	}
	return stats
}

const (
	HealthHealthy     = "healthy"
	HealthDegraded    = "degraded"
	HealthUnavailable = "unavailable"
	HealthError       = "error"
)

type HealthStatus struct {
	Status    string            `json:"status"`
	Providers map[string]string `json:"providers"`
	Cache     bool              `json:"cache"`
	Analytics bool              `json:"analytics"`
}

// HealthCheck is healthy when at least one provider is usable and both
// stores respond.
func (s *TranslationService) HealthCheck(ctx context.Context) *HealthStatus {
	health := &HealthStatus{Providers: make(map[string]string)}
	healthyProviders := 0
	for _, p := range s.selector.All() {
		status := providerHealth(ctx, p)
		health.Providers[p.Name()] = status
		if status == HealthHealthy {
			healthyProviders++
		}
	}
	if _, err := s.cache.GetStats(ctx); err == nil {
		health.Cache = true
	} else {
		log.Warn().Err(err).Msg("Cache health check failed")
	}
	if s.analytics != nil {
		if err := s.analytics.Ping(ctx); err == nil {
			health.Analytics = true
		} else {
			log.Warn().Err(err).Msg("Analytics health check failed")
		}
	}

	health.Status = HealthDegraded
	if healthyProviders > 0 && health.Cache && health.Analytics {
		health.Status = HealthHealthy
	}
	return health
}

func providerHealth(ctx context.Context, p providers.Provider) string {
	if !p.IsAvailable() {
		return HealthUnavailable
	}
	if providers.BreakerOpen(p) {
		return HealthError
	}
	uctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	usage, ok, err := providers.UsageOf(uctx, p)
	if !ok {
		return HealthHealthy
	}
	if err != nil {
		log.Warn().Err(err).Str("provider", p.Name()).Msg("Provider usage check failed")
		return HealthError
	}
	if usage.CharacterLimit > 0 && usage.CharacterCount >= usage.CharacterLimit {
		return HealthError
	}
	return HealthHealthy
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"portfolio_translation_go_backend/internal/models"

	"github.com/rs/zerolog/log"
)

// AnalyticsRecorder receives one record per translation attempt.
type AnalyticsRecorder interface {
	LogRequest(ctx context.Context, record *models.TranslationAnalytics)
}

var statsPeriods = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

type BreakdownStats struct {
	Requests          int64   `json:"requests"`
	Successful        int64   `json:"successful"`
	Failed            int64   `json:"failed"`
	Cached            int64   `json:"cached"`
	Characters        int64   `json:"characters"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	totalResponseMs   int64
}

type AnalyticsStats struct {
	Period             string                     `json:"period"`
	TotalRequests      int64                      `json:"total_requests"`
	SuccessfulRequests int64                      `json:"successful_requests"`
	FailedRequests     int64                      `json:"failed_requests"`
	CachedRequests     int64                      `json:"cached_requests"`
	TotalCharacters    int64                      `json:"total_characters"`
	SuccessRate        float64                    `json:"success_rate"`
	CacheHitRate       float64                    `json:"cache_hit_rate"`
	AvgResponseTimeMs  float64                    `json:"avg_response_time_ms"`
	ByProvider         map[string]*BreakdownStats `json:"by_provider"`
	ByLanguagePair     map[string]*BreakdownStats `json:"by_language_pair"`
}

type ErrorStats struct {
	Period       string                        `json:"period"`
	TotalErrors  int64                         `json:"total_errors"`
	RecentErrors []models.TranslationAnalytics `json:"recent_errors"`
	ByMessage    []ErrorCount                  `json:"by_message"`
	ByProvider   []ProviderErrorCount          `json:"by_provider"`
}

type UsageTrends struct {
	Days               int          `json:"days"`
	Daily              []DailyUsage `json:"daily"`
	TotalRequests      int64        `json:"total_requests"`
	AvgDailyRequests   float64      `json:"avg_daily_requests"`
	AvgDailyCharacters float64      `json:"avg_daily_characters"`
	SuccessRate        float64      `json:"success_rate"`
	CacheHitRate       float64      `json:"cache_hit_rate"`
}

type AnalyticsService struct {
	db      AnalyticsServiceDB
	now     func() time.Time
	pending sync.WaitGroup
}

func NewAnalyticsService(db AnalyticsServiceDB) *AnalyticsService {
	return &AnalyticsService{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// LogRequest stores the record and folds it into its hourly bucket in the
// background. Failures are logged, never returned.
func (s *AnalyticsService) LogRequest(ctx context.Context, record *models.TranslationAnalytics) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	if err := s.db.CreateAnalyticsDB(ctx, record); err != nil {
		log.Warn().Err(err).Str("request_id", record.RequestID).Str("provider", record.Provider).
			Msg("Failed to store translation analytics")
	}

	date, hour := bucketTime(record.CreatedAt)
	key := BucketKey{
		Date:           date,
		Hour:           hour,
		Provider:       record.Provider,
		SourceLanguage: normalizeLanguage(record.SourceLanguage),
		TargetLanguage: normalizeLanguage(record.TargetLanguage),
	}
	delta := BucketDelta{
		Success:        record.Success,
		Cached:         record.Cached,
		Characters:     int64(record.CharacterCount),
		ResponseTimeMs: record.ResponseTimeMs,
	}
	at := record.CreatedAt
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		bctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.db.IncrementMetricsBucketDB(bctx, key, delta, at); err != nil {
			log.Warn().Err(err).Str("provider", key.Provider).Str("date", key.Date).Int("hour", key.Hour).
				Msg("Failed to update translation metrics bucket")
		}
	}()
}

// Wait blocks until background bucket updates have finished.
func (s *AnalyticsService) Wait() {
	s.pending.Wait()
}

func parsePeriod(period string) (string, time.Duration, error) {
	if period == "" {
		period = "24h"
	}
	d, ok := statsPeriods[period]
	if !ok {
		return "", 0, newValidationError("period", "unsupported period %q (use 1h, 24h, 7d or 30d)", period)
	}
	return period, d, nil
}

func (s *AnalyticsService) GetStats(ctx context.Context, period string) (*AnalyticsStats, error) {
	period, d, err := parsePeriod(period)
	if err != nil {
		return nil, err
	}
	buckets, err := s.db.GetMetricsBucketsDB(ctx, s.now().Add(-d))
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics buckets: %w", err)
	}

	stats := &AnalyticsStats{
		Period:         period,
		ByProvider:     make(map[string]*BreakdownStats),
		ByLanguagePair: make(map[string]*BreakdownStats),
	}
	var totalResponseMs int64
	for _, b := range buckets {
		stats.TotalRequests += b.TotalRequests
		stats.SuccessfulRequests += b.SuccessfulRequests
		stats.FailedRequests += b.FailedRequests
		stats.CachedRequests += b.CachedRequests
		stats.TotalCharacters += b.TotalCharacters
		totalResponseMs += b.TotalResponseTimeMs

		addBreakdown(stats.ByProvider, b.Provider, b)
		addBreakdown(stats.ByLanguagePair, b.SourceLanguage+"-"+b.TargetLanguage, b)
	}
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.SuccessfulRequests) / float64(stats.TotalRequests)
		stats.CacheHitRate = float64(stats.CachedRequests) / float64(stats.TotalRequests)
		stats.AvgResponseTimeMs = float64(totalResponseMs) / float64(stats.TotalRequests)
	}
	for _, group := range []map[string]*BreakdownStats{stats.ByProvider, stats.ByLanguagePair} {
		for _, bd := range group {
			if bd.Requests > 0 {
				bd.AvgResponseTimeMs = float64(bd.totalResponseMs) / float64(bd.Requests)
			}
		}
	}
	return stats, nil
}

func addBreakdown(group map[string]*BreakdownStats, key string, b models.TranslationMetrics) {
	bd, ok := group[key]
	if !ok {
		bd = &BreakdownStats{}
		group[key] = bd
	}
	bd.Requests += b.TotalRequests
	bd.Successful += b.SuccessfulRequests
	bd.Failed += b.FailedRequests
	bd.Cached += b.CachedRequests
	bd.Characters += b.TotalCharacters
	bd.totalResponseMs += b.TotalResponseTimeMs
}

func (s *AnalyticsService) GetErrorStats(ctx context.Context, period string, limit int) (*ErrorStats, error) {
	period, d, err := parsePeriod(period)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	since := s.now().Add(-d)

	recent, err := s.db.GetRecentErrorsDB(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent errors: %w", err)
	}
	byMessage, byProvider, err := s.db.GetErrorCountsDB(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count errors: %w", err)
	}

	stats := &ErrorStats{
		Period:       period,
		RecentErrors: recent,
		ByMessage:    byMessage,
		ByProvider:   byProvider,
	}
	for _, c := range byMessage {
		stats.TotalErrors += c.Count
	}
	return stats, nil
}

func (s *AnalyticsService) GetUsageTrends(ctx context.Context, days int) (*UsageTrends, error) {
	if days <= 0 {
		days = 30
	}
	if days > 365 {
		return nil, newValidationError("days", "must be at most 365")
	}
	since := s.now().AddDate(0, 0, -(days - 1))
	sinceDate, _ := bucketTime(since)

	daily, err := s.db.GetDailyUsageDB(ctx, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily usage: %w", err)
	}

	trends := &UsageTrends{Days: days, Daily: daily}
	var successful, cacheHits, characters int64
	for _, d := range daily {
		trends.TotalRequests += d.Requests
		successful += d.Successful
		cacheHits += d.CacheHits
		characters += d.Characters
	}
	trends.AvgDailyRequests = float64(trends.TotalRequests) / float64(days)
	trends.AvgDailyCharacters = float64(characters) / float64(days)
	if trends.TotalRequests > 0 {
		trends.SuccessRate = float64(successful) / float64(trends.TotalRequests)
		trends.CacheHitRate = float64(cacheHits) / float64(trends.TotalRequests)
	}
	return trends, nil
}

// CleanOldData removes raw records and buckets older than retentionDays.
func (s *AnalyticsService) CleanOldData(ctx context.Context, retentionDays int) (int64, int64, error) {
	if retentionDays <= 0 {
		return 0, 0, newValidationError("retention_days", "must be positive")
	}
	return s.db.DeleteAnalyticsBeforeDB(ctx, s.now().AddDate(0, 0, -retentionDays))
}

func (s *AnalyticsService) Ping(ctx context.Context) error {
	return s.db.PingAnalyticsDB(ctx)
}

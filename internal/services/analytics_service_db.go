package services

import (
	"context"
	"time"

	"portfolio_translation_go_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BucketKey identifies one hourly metrics row.
type BucketKey struct {
	Date           string
	Hour           int
	Provider       string
	SourceLanguage string
	TargetLanguage string
}

// BucketDelta is what a single analytics record adds to its bucket.
type BucketDelta struct {
	Success        bool
	Cached         bool
	Characters     int64
	ResponseTimeMs int64
}

type ErrorCount struct {
	ErrorMessage string `json:"error_message"`
	Count        int64  `json:"count"`
}

type ProviderErrorCount struct {
	Provider     string `json:"provider"`
	ErrorMessage string `json:"error_message"`
	Count        int64  `json:"count"`
}

type DailyUsage struct {
	Date       string `json:"date"`
	Requests   int64  `json:"requests"`
	Successful int64  `json:"successful"`
	CacheHits  int64  `json:"cache_hits"`
	Characters int64  `json:"characters"`
}

type AnalyticsServiceDB interface {
	CreateAnalyticsDB(ctx context.Context, record *models.TranslationAnalytics) error
	IncrementMetricsBucketDB(ctx context.Context, key BucketKey, delta BucketDelta, at time.Time) error
	GetMetricsBucketsDB(ctx context.Context, since time.Time) ([]models.TranslationMetrics, error)
	GetRecentErrorsDB(ctx context.Context, since time.Time, limit int) ([]models.TranslationAnalytics, error)
	GetErrorCountsDB(ctx context.Context, since time.Time) ([]ErrorCount, []ProviderErrorCount, error)
	GetDailyUsageDB(ctx context.Context, sinceDate string) ([]DailyUsage, error)
	DeleteAnalyticsBeforeDB(ctx context.Context, cutoff time.Time) (records int64, buckets int64, err error)
	PingAnalyticsDB(ctx context.Context) error
}

type DefaultAnalyticsService struct {
	db *gorm.DB
}

func NewAnalyticsServiceDB(db *gorm.DB) AnalyticsServiceDB {
	return &DefaultAnalyticsService{db: db}
}

func (s *DefaultAnalyticsService) CreateAnalyticsDB(ctx context.Context, record *models.TranslationAnalytics) error {
	return s.db.WithContext(ctx).Create(record).Error
}

// IncrementMetricsBucketDB adds delta to the bucket in a single UPDATE so
// concurrent writers never lose increments. The average is recomputed from
// the running totals in the same statement.
func (s *DefaultAnalyticsService) IncrementMetricsBucketDB(ctx context.Context, key BucketKey, delta BucketDelta, at time.Time) error {
	success, failed, cached := int64(0), int64(1), int64(0)
	if delta.Success {
		success, failed = 1, 0
	}
	if delta.Cached {
		cached = 1
	}

	update := func() (int64, error) {
		res := s.db.WithContext(ctx).Model(&models.TranslationMetrics{}).
			Where("date = ? AND hour = ? AND provider = ? AND source_language = ? AND target_language = ?",
				key.Date, key.Hour, key.Provider, key.SourceLanguage, key.TargetLanguage).
			Updates(map[string]interface{}{
				"total_requests":         gorm.Expr("total_requests + 1"),
				"successful_requests":    gorm.Expr("successful_requests + ?", success),
				"failed_requests":        gorm.Expr("failed_requests + ?", failed),
				"cached_requests":        gorm.Expr("cached_requests + ?", cached),
				"total_characters":       gorm.Expr("total_characters + ?", delta.Characters),
				"total_response_time_ms": gorm.Expr("total_response_time_ms + ?", delta.ResponseTimeMs),
				"avg_response_time_ms":   gorm.Expr("(total_response_time_ms + ?) * 1.0 / (total_requests + 1)", delta.ResponseTimeMs),
				"updated_at":             at,
			})
		return res.RowsAffected, res.Error
	}

	affected, err := update()
	if err != nil || affected > 0 {
		return err
	}

	bucket := &models.TranslationMetrics{
		Date:                key.Date,
		Hour:                key.Hour,
		Provider:            key.Provider,
		SourceLanguage:      key.SourceLanguage,
		TargetLanguage:      key.TargetLanguage,
		TotalRequests:       1,
		SuccessfulRequests:  success,
		FailedRequests:      failed,
		CachedRequests:      cached,
		TotalCharacters:     delta.Characters,
		TotalResponseTimeMs: delta.ResponseTimeMs,
		AvgResponseTimeMs:   float64(delta.ResponseTimeMs),
		CreatedAt:           at,
		UpdatedAt:           at,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(bucket)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Another writer created the bucket first.
		_, err = update()
	}
	return err
}

func (s *DefaultAnalyticsService) GetMetricsBucketsDB(ctx context.Context, since time.Time) ([]models.TranslationMetrics, error) {
	date, hour := bucketTime(since)
	var buckets []models.TranslationMetrics
	err := s.db.WithContext(ctx).
		Where("date > ? OR (date = ? AND hour >= ?)", date, date, hour).
		Order("date, hour").
		Find(&buckets).Error
	return buckets, err
}

func (s *DefaultAnalyticsService) GetRecentErrorsDB(ctx context.Context, since time.Time, limit int) ([]models.TranslationAnalytics, error) {
	var records []models.TranslationAnalytics
	err := s.db.WithContext(ctx).
		Where("success = ? AND created_at >= ?", false, since).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (s *DefaultAnalyticsService) GetErrorCountsDB(ctx context.Context, since time.Time) ([]ErrorCount, []ProviderErrorCount, error) {
	var byMessage []ErrorCount
	err := s.db.WithContext(ctx).Model(&models.TranslationAnalytics{}).
		Select("error_message, COUNT(*) AS count").
		Where("success = ? AND created_at >= ?", false, since).
		Group("error_message").
		Order("count DESC").
		Scan(&byMessage).Error
	if err != nil {
		return nil, nil, err
	}

	var byProvider []ProviderErrorCount
	err = s.db.WithContext(ctx).Model(&models.TranslationAnalytics{}).
		Select("provider, error_message, COUNT(*) AS count").
		Where("success = ? AND created_at >= ?", false, since).
		Group("provider, error_message").
		Order("count DESC").
		Scan(&byProvider).Error
	if err != nil {
		return nil, nil, err
	}
	return byMessage, byProvider, nil
}

func (s *DefaultAnalyticsService) GetDailyUsageDB(ctx context.Context, sinceDate string) ([]DailyUsage, error) {
	var usage []DailyUsage
	err := s.db.WithContext(ctx).Model(&models.TranslationMetrics{}).
		Select("date, SUM(total_requests) AS requests, SUM(successful_requests) AS successful, SUM(cached_requests) AS cache_hits, SUM(total_characters) AS characters").
		Where("date >= ?", sinceDate).
		Group("date").
		Order("date").
		Scan(&usage).Error
	return usage, err
}

func (s *DefaultAnalyticsService) DeleteAnalyticsBeforeDB(ctx context.Context, cutoff time.Time) (int64, int64, error) {
	records := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.TranslationAnalytics{})
	if records.Error != nil {
		return 0, 0, records.Error
	}
	date, _ := bucketTime(cutoff)
	buckets := s.db.WithContext(ctx).Where("date < ?", date).Delete(&models.TranslationMetrics{})
	return records.RowsAffected, buckets.RowsAffected, buckets.Error
}

func (s *DefaultAnalyticsService) PingAnalyticsDB(ctx context.Context) error {
	var count int64
	return s.db.WithContext(ctx).Model(&models.TranslationMetrics{}).Limit(1).Count(&count).Error
}

func bucketTime(t time.Time) (string, int) {
	t = t.UTC()
	return t.Format("2006-01-02"), t.Hour()
}

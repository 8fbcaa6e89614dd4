package models

import "time"

// TranslationAnalytics records a single provider attempt or cache hit.
type TranslationAnalytics struct {
	ID             uint   `gorm:"primarykey"`
	RequestID      string `gorm:"size:36;index"`
	SourceLanguage string `gorm:"size:10"`
	TargetLanguage string `gorm:"size:10"`
	Provider       string `gorm:"size:32;index"`
	CharacterCount int
	ResponseTimeMs int64
	Cached         bool
	Success        bool   `gorm:"index"`
	ErrorMessage   string `gorm:"type:text"`
	AttemptNumber  int
	BatchSize      int
	CreatedAt      time.Time `gorm:"index"`
}

func (TranslationAnalytics) TableName() string {
	return "translation_analytics"
}

// TranslationMetrics is an hourly rollup per provider and language pair.
type TranslationMetrics struct {
	ID                  uint   `gorm:"primarykey"`
	Date                string `gorm:"size:10;not null;uniqueIndex:idx_metrics_bucket,priority:1"`
	Hour                int    `gorm:"not null;uniqueIndex:idx_metrics_bucket,priority:2"`
	Provider            string `gorm:"size:32;not null;uniqueIndex:idx_metrics_bucket,priority:3"`
	SourceLanguage      string `gorm:"size:10;not null;uniqueIndex:idx_metrics_bucket,priority:4"`
	TargetLanguage      string `gorm:"size:10;not null;uniqueIndex:idx_metrics_bucket,priority:5"`
	TotalRequests       int64
	SuccessfulRequests  int64
	FailedRequests      int64
	CachedRequests      int64
	TotalCharacters     int64
	TotalResponseTimeMs int64
	AvgResponseTimeMs   float64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (TranslationMetrics) TableName() string {
	return "translation_metrics"
}

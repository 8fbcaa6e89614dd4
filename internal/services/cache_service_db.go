package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"portfolio_translation_go_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type CacheServiceDB interface {
	GetCacheEntryDB(ctx context.Context, cacheKey string, now time.Time) (*models.TranslationCache, error)
	GetCacheEntriesDB(ctx context.Context, cacheKeys []string, now time.Time) (map[string]*models.TranslationCache, error)
	UpsertCacheEntriesDB(ctx context.Context, entries []*models.TranslationCache) error
	TouchCacheEntryDB(ctx context.Context, cacheKey string, accessedAt time.Time) error
	GetCacheStatsDB(ctx context.Context, now time.Time) ([]ProviderCacheStats, error)
	DeleteAllCacheDB(ctx context.Context) (int64, error)
	DeleteCacheMatchingDB(ctx context.Context, pattern InvalidatePattern) (int64, error)
	DeleteExpiredCacheDB(ctx context.Context, now time.Time) (int64, error)
}

// InvalidatePattern selects cache rows to delete. Empty fields match anything,
// but a pattern with every field empty deletes nothing.
type InvalidatePattern struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Provider       string `json:"provider"`
	TextContains   string `json:"text_contains"`
}

func (p InvalidatePattern) IsEmpty() bool {
	return p.SourceLanguage == "" && p.TargetLanguage == "" && p.Provider == "" && p.TextContains == ""
}

type ProviderCacheStats struct {
	Provider   string `json:"provider"`
	Entries    int64  `json:"entries"`
	Characters int64  `json:"characters"`
	Accesses   int64  `json:"accesses"`
}

type DefaultCacheService struct {
	db *gorm.DB
}

func NewCacheServiceDB(db *gorm.DB) CacheServiceDB {
	return &DefaultCacheService{db: db}
}

func (s *DefaultCacheService) GetCacheEntryDB(ctx context.Context, cacheKey string, now time.Time) (*models.TranslationCache, error) {
	var entry models.TranslationCache
	err := s.db.WithContext(ctx).
		Where("cache_key = ? AND expires_at > ?", cacheKey, now).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *DefaultCacheService) GetCacheEntriesDB(ctx context.Context, cacheKeys []string, now time.Time) (map[string]*models.TranslationCache, error) {
	found := make(map[string]*models.TranslationCache, len(cacheKeys))
	if len(cacheKeys) == 0 {
		return found, nil
	}
	var entries []models.TranslationCache
	err := s.db.WithContext(ctx).
		Where("cache_key IN ? AND expires_at > ?", cacheKeys, now).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	for i := range entries {
		found[entries[i].CacheKey] = &entries[i]
	}
	return found, nil
}

func (s *DefaultCacheService) UpsertCacheEntriesDB(ctx context.Context, entries []*models.TranslationCache) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_text",
			"translated_text",
			"source_language",
			"target_language",
			"detected_source_language",
			"provider",
			"character_count",
			"access_count",
			"created_at",
			"last_accessed_at",
			"expires_at",
		}),
	}).Create(entries).Error
}

func (s *DefaultCacheService) TouchCacheEntryDB(ctx context.Context, cacheKey string, accessedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&models.TranslationCache{}).
		Where("cache_key = ?", cacheKey).
		Updates(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + ?", 1),
			"last_accessed_at": accessedAt,
		}).Error
}

func (s *DefaultCacheService) GetCacheStatsDB(ctx context.Context, now time.Time) ([]ProviderCacheStats, error) {
	var stats []ProviderCacheStats
	err := s.db.WithContext(ctx).Model(&models.TranslationCache{}).
		Select("provider, COUNT(*) AS entries, COALESCE(SUM(character_count), 0) AS characters, COALESCE(SUM(access_count), 0) AS accesses").
		Where("expires_at > ?", now).
		Group("provider").
		Order("provider").
		Scan(&stats).Error
	return stats, err
}

func (s *DefaultCacheService) DeleteAllCacheDB(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.TranslationCache{})
	return res.RowsAffected, res.Error
}

func (s *DefaultCacheService) DeleteCacheMatchingDB(ctx context.Context, pattern InvalidatePattern) (int64, error) {
	if pattern.IsEmpty() {
		return 0, nil
	}
	q := s.db.WithContext(ctx)
	if pattern.SourceLanguage != "" {
		q = q.Where("source_language = ?", normalizeLanguage(pattern.SourceLanguage))
	}
	if pattern.TargetLanguage != "" {
		q = q.Where("target_language = ?", normalizeLanguage(pattern.TargetLanguage))
	}
	if pattern.Provider != "" {
		q = q.Where("provider = ?", strings.ToLower(pattern.Provider))
	}
	if pattern.TextContains != "" {
		q = q.Where("source_text LIKE ? ESCAPE '\\'", "%"+likeEscaper.Replace(pattern.TextContains)+"%")
	}
	res := q.Delete(&models.TranslationCache{})
	return res.RowsAffected, res.Error
}

func (s *DefaultCacheService) DeleteExpiredCacheDB(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.TranslationCache{})
	return res.RowsAffected, res.Error
}

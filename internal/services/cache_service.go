package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/providers"

	"github.com/rs/zerolog/log"
)

const (
	DefaultCacheTTL   = 24 * time.Hour
	sourceTextPreview = 500
	anyProvider       = "any"
)

type CacheStats struct {
	TotalEntries    int64                         `json:"total_entries"`
	TotalCharacters int64                         `json:"total_characters"`
	TotalAccesses   int64                         `json:"total_accesses"`
	ProviderStats   map[string]ProviderCacheStats `json:"provider_stats"`
	HitRate         float64                       `json:"hit_rate"`
}

// CacheService is the translation cache. Store failures are returned to the
// caller, which decides whether they matter.
type CacheService struct {
	db      CacheServiceDB
	ttl     time.Duration
	now     func() time.Time
	pending sync.WaitGroup
}

func NewCacheService(db CacheServiceDB, ttl time.Duration) *CacheService {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CacheService{
		db:  db,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CacheKey derives the lookup key for a translation. provider "" means any provider.
func CacheKey(text, source, target, provider string) string {
	if provider == "" {
		provider = anyProvider
	}
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(text)))
	for _, part := range []string{normalizeLanguage(source), normalizeLanguage(target), strings.ToLower(provider)} {
		h.Write([]byte{0})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "auto"
	}
	return code
}

// Get returns the live entry for the key, or nil on a miss.
func (s *CacheService) Get(ctx context.Context, text, source, target, provider string) (*models.TranslationCache, error) {
	key := CacheKey(text, source, target, provider)
	now := s.now()
	entry, err := s.db.GetCacheEntryDB(ctx, key, now)
	if err != nil || entry == nil {
		return nil, err
	}
	// Rows can expire between the query and now on slow stores.
	if !entry.ExpiresAt.After(now) {
		return nil, nil
	}
	s.touch(key, now)
	return entry, nil
}

// GetBatch returns entries aligned with items, nil where absent or expired.
func (s *CacheService) GetBatch(ctx context.Context, items []providers.Item, provider string) ([]*models.TranslationCache, error) {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = CacheKey(item.Text, item.Source, item.Target, provider)
	}
	now := s.now()
	found, err := s.db.GetCacheEntriesDB(ctx, keys, now)
	if err != nil {
		return nil, err
	}
	out := make([]*models.TranslationCache, len(items))
	for i, key := range keys {
		if entry, ok := found[key]; ok && entry.ExpiresAt.After(now) {
			out[i] = entry
			s.touch(key, now)
		}
	}
	return out, nil
}

func (s *CacheService) Set(ctx context.Context, text, source, target, provider string, result *providers.Result) error {
	return s.SetWithTTL(ctx, text, source, target, provider, result, s.ttl)
}

// SetWithTTL stores result under the key. A ttl of zero or less stores an
// entry that is already expired.
func (s *CacheService) SetWithTTL(ctx context.Context, text, source, target, provider string, result *providers.Result, ttl time.Duration) error {
	if result == nil || result.TranslatedText == "" {
		return nil
	}
	entry := s.newEntry(text, source, target, provider, result, ttl)
	return s.db.UpsertCacheEntriesDB(ctx, []*models.TranslationCache{entry})
}

// SetBatch stores every non-empty result; nil results are skipped.
func (s *CacheService) SetBatch(ctx context.Context, items []providers.Item, results []*providers.Result, provider string) error {
	entries := make([]*models.TranslationCache, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if i >= len(results) || results[i] == nil || results[i].TranslatedText == "" {
			continue
		}
		entry := s.newEntry(item.Text, item.Source, item.Target, provider, results[i], s.ttl)
		// Duplicate keys in one upsert statement are rejected by postgres.
		if seen[entry.CacheKey] {
			continue
		}
		seen[entry.CacheKey] = true
		entries = append(entries, entry)
	}
	return s.db.UpsertCacheEntriesDB(ctx, entries)
}

func (s *CacheService) newEntry(text, source, target, provider string, result *providers.Result, ttl time.Duration) *models.TranslationCache {
	now := s.now()
	trimmed := strings.TrimSpace(text)
	return &models.TranslationCache{
		CacheKey:               CacheKey(text, source, target, provider),
		SourceText:             runePrefix(trimmed, sourceTextPreview),
		TranslatedText:         result.TranslatedText,
		SourceLanguage:         normalizeLanguage(source),
		TargetLanguage:         normalizeLanguage(target),
		DetectedSourceLanguage: result.DetectedSourceLanguage,
		Provider:               strings.ToLower(result.Provider),
		CharacterCount:         utf8.RuneCountInString(trimmed),
		CreatedAt:              now,
		ExpiresAt:              now.Add(ttl),
		LastAccessedAt:         now,
	}
}

func (s *CacheService) touch(key string, at time.Time) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.db.TouchCacheEntryDB(ctx, key, at); err != nil {
			log.Warn().Err(err).Str("cache_key", key).Msg("Failed to update cache access time")
		}
	}()
}

// Wait blocks until background access updates have finished.
func (s *CacheService) Wait() {
	s.pending.Wait()
}

func (s *CacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	rows, err := s.db.GetCacheStatsDB(ctx, s.now())
	if err != nil {
		return nil, err
	}
	stats := &CacheStats{ProviderStats: make(map[string]ProviderCacheStats, len(rows))}
	for _, row := range rows {
		stats.TotalEntries += row.Entries
		stats.TotalCharacters += row.Characters
		stats.TotalAccesses += row.Accesses
		stats.ProviderStats[row.Provider] = row
	}
	// Every entry was written after exactly one miss.
	if lookups := stats.TotalAccesses + stats.TotalEntries; lookups > 0 {
		stats.HitRate = float64(stats.TotalAccesses) / float64(lookups)
	}
	return stats, nil
}

func (s *CacheService) Clear(ctx context.Context) (int64, error) {
	return s.db.DeleteAllCacheDB(ctx)
}

func (s *CacheService) Invalidate(ctx context.Context, pattern InvalidatePattern) (int64, error) {
	return s.db.DeleteCacheMatchingDB(ctx, pattern)
}

func (s *CacheService) CleanExpired(ctx context.Context) (int64, error) {
	return s.db.DeleteExpiredCacheDB(ctx, s.now())
}

// StartCleanup sweeps expired rows every interval until ctx is done.
func (s *CacheService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go s.periodicCleanup(ctx, interval)
}

func (s *CacheService) periodicCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.CleanExpired(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Cache cleanup failed")
				continue
			}
			if removed > 0 {
				log.Info().Int64("removed", removed).Msg("Removed expired cache entries")
			}
		}
	}
}

func runePrefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

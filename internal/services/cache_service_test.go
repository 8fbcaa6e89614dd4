package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	base := CacheKey("Bonjour", "fr", "en", "")

	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t, base, CacheKey("Bonjour", "fr", "en", ""))
		assert.Len(t, base, 64)
	})

	t.Run("Normalizes text and languages", func(t *testing.T) {
		assert.Equal(t, base, CacheKey("  Bonjour\n", "FR", " en ", ""))
		assert.Equal(t, base, CacheKey("Bonjour", "fr", "en", "any"))
		assert.Equal(t, CacheKey("x", "", "en", ""), CacheKey("x", "auto", "en", ""))
	})

	t.Run("Distinguishes every component", func(t *testing.T) {
		assert.NotEqual(t, base, CacheKey("Bonjour!", "fr", "en", ""))
		assert.NotEqual(t, base, CacheKey("Bonjour", "de", "en", ""))
		assert.NotEqual(t, base, CacheKey("Bonjour", "fr", "es", ""))
		assert.NotEqual(t, base, CacheKey("Bonjour", "fr", "en", "deepl"))
	})

	t.Run("Long texts sharing a prefix do not collide", func(t *testing.T) {
		prefix := strings.Repeat("a", 1000)
		assert.NotEqual(t, CacheKey(prefix+"b", "en", "fr", ""), CacheKey(prefix+"c", "en", "fr", ""))
	})
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheService(NewCacheServiceDB(newTestDB(t)), time.Hour)
	result := &providers.Result{TranslatedText: "Hello", DetectedSourceLanguage: "fr", Provider: "DeepL"}

	require.NoError(t, cache.Set(ctx, "Bonjour", "fr", "en", "", result))

	entry, err := cache.Get(ctx, "Bonjour", "fr", "en", "")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Hello", entry.TranslatedText)
	assert.Equal(t, "fr", entry.DetectedSourceLanguage)
	assert.Equal(t, "deepl", entry.Provider)
	assert.Equal(t, 7, entry.CharacterCount)

	t.Run("Different provider scope misses", func(t *testing.T) {
		entry, err := cache.Get(ctx, "Bonjour", "fr", "en", "google")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Hit bumps access count", func(t *testing.T) {
		cache.Wait()
		stats, err := cache.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalEntries)
		assert.Equal(t, int64(1), stats.TotalAccesses)
		assert.Equal(t, int64(7), stats.TotalCharacters)
		assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
		assert.Equal(t, int64(1), stats.ProviderStats["deepl"].Entries)
	})

	t.Run("Overwrite keeps one row", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "Bonjour", "fr", "en", "", &providers.Result{TranslatedText: "Hi", Provider: "google"}))
		entry, err := cache.Get(ctx, "Bonjour", "fr", "en", "")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "Hi", entry.TranslatedText)
		cache.Wait()
	})
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheService(NewCacheServiceDB(newTestDB(t)), time.Hour)

	require.NoError(t, cache.SetWithTTL(ctx, "Hallo", "de", "en", "", &providers.Result{TranslatedText: "Hello", Provider: "google"}, 0))

	entry, err := cache.Get(ctx, "Hallo", "de", "en", "")
	require.NoError(t, err)
	assert.Nil(t, entry)

	stats, err := cache.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries, "expired rows are left out of stats")

	removed, err := cache.CleanExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestCacheSetIgnoresEmptyResults(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheService(NewCacheServiceDB(newTestDB(t)), time.Hour)

	require.NoError(t, cache.Set(ctx, "a", "en", "fr", "", nil))
	require.NoError(t, cache.Set(ctx, "a", "en", "fr", "", &providers.Result{}))

	entry, err := cache.Get(ctx, "a", "en", "fr", "")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCacheBatch(t *testing.T) {
	ctx := context.Background()
	cache := NewCacheService(NewCacheServiceDB(newTestDB(t)), time.Hour)

	items := []providers.Item{
		{Text: "one", Source: "en", Target: "fr"},
		{Text: "two", Source: "en", Target: "fr"},
		{Text: "three", Source: "en", Target: "fr"},
		{Text: "one", Source: "en", Target: "fr"},
	}
	results := []*providers.Result{
		{TranslatedText: "un", Provider: "deepl"},
		nil,
		{TranslatedText: "", Provider: "deepl"},
		{TranslatedText: "un", Provider: "deepl"},
	}
	require.NoError(t, cache.SetBatch(ctx, items, results, ""))

	entries, err := cache.GetBatch(ctx, items, "")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.NotNil(t, entries[0])
	assert.Equal(t, "un", entries[0].TranslatedText)
	assert.Nil(t, entries[1])
	assert.Nil(t, entries[2])
	require.NotNil(t, entries[3])
	assert.Equal(t, "un", entries[3].TranslatedText)
	cache.Wait()
}

func TestCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	cache := NewCacheService(NewCacheServiceDB(db), time.Hour)

	seed := []struct {
		text, source, target, provider string
	}{
		{"good morning", "en", "fr", "deepl"},
		{"good night", "en", "de", "google"},
		{"thank you", "en", "fr", "google"},
	}
	for _, s := range seed {
		require.NoError(t, cache.Set(ctx, s.text, s.source, s.target, "", &providers.Result{TranslatedText: "x", Provider: s.provider}))
	}
	count := func() int64 {
		var n int64
		require.NoError(t, db.Model(&models.TranslationCache{}).Count(&n).Error)
		return n
	}

	t.Run("Empty pattern deletes nothing", func(t *testing.T) {
		removed, err := cache.Invalidate(ctx, InvalidatePattern{})
		require.NoError(t, err)
		assert.Zero(t, removed)
		assert.Equal(t, int64(3), count())
	})

	t.Run("Fields combine", func(t *testing.T) {
		removed, err := cache.Invalidate(ctx, InvalidatePattern{TargetLanguage: "FR", Provider: "google"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Equal(t, int64(2), count())
	})

	t.Run("Wildcards in text are literal", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, "snake_case", "en", "fr", "", &providers.Result{TranslatedText: "x", Provider: "deepl"}))
		require.NoError(t, cache.Set(ctx, "snakeXcase", "en", "fr", "", &providers.Result{TranslatedText: "x", Provider: "deepl"}))
		require.NoError(t, cache.Set(ctx, "100% done", "en", "fr", "", &providers.Result{TranslatedText: "x", Provider: "deepl"}))
		require.NoError(t, cache.Set(ctx, "1000 done", "en", "fr", "", &providers.Result{TranslatedText: "x", Provider: "deepl"}))

		removed, err := cache.Invalidate(ctx, InvalidatePattern{TextContains: "e_c"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		removed, err = cache.Invalidate(ctx, InvalidatePattern{TextContains: "0%"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		removed, err = cache.Invalidate(ctx, InvalidatePattern{TextContains: "snakeXcase"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		removed, err = cache.Invalidate(ctx, InvalidatePattern{TextContains: "1000"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Equal(t, int64(2), count())
	})

	t.Run("Text substring", func(t *testing.T) {
		removed, err := cache.Invalidate(ctx, InvalidatePattern{TextContains: "night"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	t.Run("Clear", func(t *testing.T) {
		removed, err := cache.Clear(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Zero(t, count())
	})
}

func TestCacheOverwriteResetsAccessStats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	cache := NewCacheService(NewCacheServiceDB(db), time.Hour)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return start }

	require.NoError(t, cache.Set(ctx, "Bonjour", "fr", "en", "", &providers.Result{TranslatedText: "Hello", Provider: "deepl"}))
	for i := 0; i < 3; i++ {
		entry, err := cache.Get(ctx, "Bonjour", "fr", "en", "")
		require.NoError(t, err)
		require.NotNil(t, entry)
	}
	cache.Wait()

	var row models.TranslationCache
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, 3, row.AccessCount)

	later := start.Add(10 * time.Minute)
	cache.now = func() time.Time { return later }
	require.NoError(t, cache.Set(ctx, "Bonjour", "fr", "en", "", &providers.Result{TranslatedText: "Hi", Provider: "google"}))

	row = models.TranslationCache{}
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "Hi", row.TranslatedText)
	assert.Zero(t, row.AccessCount)
	assert.True(t, later.Equal(row.LastAccessedAt.UTC()), "last access restarts with the new translation")
}

func TestCacheStoresBoundedPreview(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	cache := NewCacheService(NewCacheServiceDB(db), time.Hour)

	long := strings.Repeat("é", 800)
	require.NoError(t, cache.Set(ctx, long, "fr", "en", "", &providers.Result{TranslatedText: "e", Provider: "deepl"}))

	var row models.TranslationCache
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, 500, len([]rune(row.SourceText)))
	assert.Equal(t, 800, row.CharacterCount)
}

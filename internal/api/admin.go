package api

import (
	"net/http"
	"strconv"
	"time"

	apperrors "portfolio_translation_go_backend/internal/errors"
	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	defaultTestText      = "Hello, world!"
	defaultErrorLimit    = 10
	defaultTrendDays     = 7
	defaultJobListLimit  = 50
	defaultAnalyticsSpan = "24h"
)

type testTranslationRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	Provider       string `json:"provider"`
}

type bulkTranslateRequest struct {
	SourceLanguage string `json:"source_language"`
	Limit          int    `json:"limit"`
	Offset         int    `json:"offset"`
	Force          bool   `json:"force"`
	// Async queues a translate_table job instead of running inline.
	Async    bool `json:"async"`
	Priority int  `json:"priority"`
}

type mappingPayload struct {
	TableName       string           `json:"table_name"`
	FieldName       string           `json:"field_name"`
	FieldType       models.FieldType `json:"field_type"`
	AutoTranslate   bool             `json:"auto_translate"`
	IsActive        *bool            `json:"is_active"`
	Priority        int              `json:"priority"`
	SourceLanguage  string           `json:"source_language"`
	TargetLanguages []string         `json:"target_languages"`
}

func newMappingPayload(m models.FieldMapping) mappingPayload {
	active := m.IsActive
	return mappingPayload{
		TableName:       m.TableName,
		FieldName:       m.FieldName,
		FieldType:       m.FieldType,
		AutoTranslate:   m.AutoTranslate,
		IsActive:        &active,
		Priority:        m.Priority,
		SourceLanguage:  m.SourceLanguage,
		TargetLanguages: m.TargetLanguages,
	}
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.New400Error("Invalid " + name + " value")
	}
	return v, nil
}

func cacheStatsHandler(cache CacheAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := cache.GetStats(c.Request.Context())
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func clearCacheHandler(cache CacheAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := cache.Clear(c.Request.Context())
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	}
}

func invalidateCacheHandler(cache CacheAdmin) gin.HandlerFunc {
	return func(c *gin.Context) {
		var pattern services.InvalidatePattern
		if err := c.ShouldBindJSON(&pattern); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}
		if pattern.IsEmpty() {
			apperrors.HandleError(c, apperrors.New400Error("At least one pattern field is required"))
			return
		}

		deleted, err := cache.Invalidate(c.Request.Context(), pattern)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	}
}

func analyticsStatsHandler(analytics AnalyticsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := analytics.GetStats(c.Request.Context(), c.DefaultQuery("period", defaultAnalyticsSpan))
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func analyticsErrorsHandler(analytics AnalyticsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit", defaultErrorLimit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		stats, err := analytics.GetErrorStats(c.Request.Context(), c.DefaultQuery("period", defaultAnalyticsSpan), limit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func analyticsTrendsHandler(analytics AnalyticsReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		days, err := queryInt(c, "days", defaultTrendDays)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		trends, err := analytics.GetUsageTrends(c.Request.Context(), days)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, trends)
	}
}

func queueStatsHandler(queue JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := queue.GetQueueStats(c.Request.Context())
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

func listJobsHandler(queue JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := queryInt(c, "limit", defaultJobListLimit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		jobs, err := queue.ListJobs(c.Request.Context(), models.JobStatus(c.Query("status")), limit)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

func testTranslationHandler(translator Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request testTranslationRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				apperrors.HandleError(c, apperrors.New400Error(err.Error()))
				return
			}
		}
		if request.Text == "" {
			request.Text = defaultTestText
		}
		if request.SourceLanguage == "" {
			request.SourceLanguage = "en"
		}
		if request.TargetLanguage == "" {
			request.TargetLanguage = "fr"
		}

		start := time.Now()
		result, err := translator.Translate(c.Request.Context(), request.Text, request.SourceLanguage, request.TargetLanguage, services.TranslateOptions{
			Provider: request.Provider,
			ClientID: clientID(c),
		})
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"result":     result,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}
}

func bulkTranslateHandler(mapper RecordMapper, queue JobQueue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request bulkTranslateRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				apperrors.HandleError(c, apperrors.New400Error(err.Error()))
				return
			}
		}
		table := c.Param("table")

		if request.Async {
			queued, err := queue.AddJob(c.Request.Context(), services.JobRequest{
				JobType:        models.JobTypeTranslateTable,
				Priority:       request.Priority,
				SourceLanguage: request.SourceLanguage,
				TableName:      table,
				Limit:          request.Limit,
				Offset:         request.Offset,
				Force:          request.Force,
			})
			if err != nil {
				apperrors.HandleError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, queued)
			return
		}

		result, err := mapper.BulkTranslateTable(c.Request.Context(), table, request.SourceLanguage, services.BulkOptions{
			Limit:  request.Limit,
			Offset: request.Offset,
			Force:  request.Force,
		})
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func syncRecordHandler(mapper RecordMapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		force, _ := strconv.ParseBool(c.Query("force"))
		translated, err := mapper.SyncRecordTranslations(c.Request.Context(), c.Param("table"), c.Param("id"), c.Query("source_language"), force)
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, translated)
	}
}

func listMappingsHandler(mapper RecordMapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		mappings, err := mapper.ListMappings(c.Request.Context())
		if err != nil {
			apperrors.HandleError(c, err)
			return
		}
		out := make([]mappingPayload, len(mappings))
		for i, m := range mappings {
			out[i] = newMappingPayload(m)
		}
		c.JSON(http.StatusOK, gin.H{"mappings": out})
	}
}

func saveMappingHandler(mapper RecordMapper) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request mappingPayload
		if err := c.ShouldBindJSON(&request); err != nil {
			apperrors.HandleError(c, apperrors.New400Error(err.Error()))
			return
		}

		mapping := &models.FieldMapping{
			TableName:       request.TableName,
			FieldName:       request.FieldName,
			FieldType:       request.FieldType,
			AutoTranslate:   request.AutoTranslate,
			IsActive:        request.IsActive == nil || *request.IsActive,
			Priority:        request.Priority,
			SourceLanguage:  request.SourceLanguage,
			TargetLanguages: request.TargetLanguages,
		}
		if err := mapper.SaveMapping(c.Request.Context(), mapping); err != nil {
			apperrors.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, newMappingPayload(*mapping))
	}
}

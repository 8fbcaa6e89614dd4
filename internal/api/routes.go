package api

import (
	"context"
	"net/http"

	"portfolio_translation_go_backend/internal/auth"
	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/providers"
	"portfolio_translation_go_backend/internal/services"

	"github.com/gin-gonic/gin"
)

type Translator interface {
	Translate(ctx context.Context, text, source, target string, opts services.TranslateOptions) (*services.TranslationResult, error)
	TranslateBatch(ctx context.Context, items []providers.Item, opts services.TranslateOptions) ([]services.TranslationResult, error)
	GetStats(ctx context.Context) *services.ServiceStats
	HealthCheck(ctx context.Context) *services.HealthStatus
}

type JobQueue interface {
	AddJob(ctx context.Context, req services.JobRequest) (*services.QueuedJob, error)
	GetJobStatus(ctx context.Context, jobID string) (*services.JobView, error)
	CancelJob(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*services.JobView, error)
	GetQueueStats(ctx context.Context) (*services.QueueStats, error)
}

type CacheAdmin interface {
	GetStats(ctx context.Context) (*services.CacheStats, error)
	Clear(ctx context.Context) (int64, error)
	Invalidate(ctx context.Context, pattern services.InvalidatePattern) (int64, error)
}

type AnalyticsReader interface {
	GetStats(ctx context.Context, period string) (*services.AnalyticsStats, error)
	GetErrorStats(ctx context.Context, period string, limit int) (*services.ErrorStats, error)
	GetUsageTrends(ctx context.Context, days int) (*services.UsageTrends, error)
}

type RecordMapper interface {
	AutoTranslateRecord(ctx context.Context, table string, record map[string]interface{}, sourceLanguage string) (*services.RecordTranslation, error)
	BulkTranslateTable(ctx context.Context, table, sourceLanguage string, opts services.BulkOptions) (*services.BulkResult, error)
	SyncRecordTranslations(ctx context.Context, table, recordID, sourceLanguage string, force bool) (*services.RecordTranslation, error)
	ListMappings(ctx context.Context) ([]models.FieldMapping, error)
	SaveMapping(ctx context.Context, mapping *models.FieldMapping) error
}

type Dependencies struct {
	Translator  Translator
	Queue       JobQueue
	Cache       CacheAdmin
	Analytics   AnalyticsReader
	Mapper      RecordMapper
	AdminSecret string
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func SetupRoutes(r *gin.Engine, deps Dependencies) {
	api := r.Group("/api/translate")
	{
		api.POST("", translateHandler(deps.Translator))
		api.POST("/batch", translateBatchHandler(deps.Translator))
		api.POST("/jobs", queueJobHandler(deps.Queue))
		api.GET("/jobs/:id", getJobHandler(deps.Queue))
		api.DELETE("/jobs/:id", cancelJobHandler(deps.Queue))
		api.GET("/stats", statsHandler(deps.Translator))
		api.GET("/health", healthHandler(deps.Translator))
		api.POST("/records/:table/auto", autoTranslateRecordHandler(deps.Mapper))
	}

	admin := api.Group("/admin", auth.AdminMiddleware(deps.AdminSecret))
	{
		admin.GET("/cache/stats", cacheStatsHandler(deps.Cache))
		admin.DELETE("/cache", clearCacheHandler(deps.Cache))
		admin.POST("/cache/invalidate", invalidateCacheHandler(deps.Cache))
		admin.GET("/analytics/stats", analyticsStatsHandler(deps.Analytics))
		admin.GET("/analytics/errors", analyticsErrorsHandler(deps.Analytics))
		admin.GET("/analytics/trends", analyticsTrendsHandler(deps.Analytics))
		admin.GET("/queue/stats", queueStatsHandler(deps.Queue))
		admin.GET("/queue/jobs", listJobsHandler(deps.Queue))
		admin.POST("/test", testTranslationHandler(deps.Translator))
		admin.POST("/tables/:table/translate", bulkTranslateHandler(deps.Mapper, deps.Queue))
		admin.POST("/tables/:table/records/:id/sync", syncRecordHandler(deps.Mapper))
		admin.GET("/mappings", listMappingsHandler(deps.Mapper))
		admin.PUT("/mappings", saveMappingHandler(deps.Mapper))
	}

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}
}

// clientID keys the rate limiter by caller address.
func clientID(c *gin.Context) string {
	return c.ClientIP()
}

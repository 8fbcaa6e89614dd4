package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/providers"
	"portfolio_translation_go_backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const adminSecret = "test-admin-secret"

type MockTranslator struct{ mock.Mock }

func (m *MockTranslator) Translate(ctx context.Context, text, source, target string, opts services.TranslateOptions) (*services.TranslationResult, error) {
	args := m.Called(ctx, text, source, target, opts)
	res, _ := args.Get(0).(*services.TranslationResult)
	return res, args.Error(1)
}

func (m *MockTranslator) TranslateBatch(ctx context.Context, items []providers.Item, opts services.TranslateOptions) ([]services.TranslationResult, error) {
	args := m.Called(ctx, items, opts)
	res, _ := args.Get(0).([]services.TranslationResult)
	return res, args.Error(1)
}

func (m *MockTranslator) GetStats(ctx context.Context) *services.ServiceStats {
	return m.Called(ctx).Get(0).(*services.ServiceStats)
}

func (m *MockTranslator) HealthCheck(ctx context.Context) *services.HealthStatus {
	return m.Called(ctx).Get(0).(*services.HealthStatus)
}

type MockQueue struct{ mock.Mock }

func (m *MockQueue) AddJob(ctx context.Context, req services.JobRequest) (*services.QueuedJob, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*services.QueuedJob)
	return res, args.Error(1)
}

func (m *MockQueue) GetJobStatus(ctx context.Context, jobID string) (*services.JobView, error) {
	args := m.Called(ctx, jobID)
	res, _ := args.Get(0).(*services.JobView)
	return res, args.Error(1)
}

func (m *MockQueue) CancelJob(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockQueue) ListJobs(ctx context.Context, status models.JobStatus, limit int) ([]*services.JobView, error) {
	args := m.Called(ctx, status, limit)
	res, _ := args.Get(0).([]*services.JobView)
	return res, args.Error(1)
}

func (m *MockQueue) GetQueueStats(ctx context.Context) (*services.QueueStats, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*services.QueueStats)
	return res, args.Error(1)
}

type MockCache struct{ mock.Mock }

func (m *MockCache) GetStats(ctx context.Context) (*services.CacheStats, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*services.CacheStats)
	return res, args.Error(1)
}

func (m *MockCache) Clear(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCache) Invalidate(ctx context.Context, pattern services.InvalidatePattern) (int64, error) {
	args := m.Called(ctx, pattern)
	return args.Get(0).(int64), args.Error(1)
}

type MockAnalytics struct{ mock.Mock }

func (m *MockAnalytics) GetStats(ctx context.Context, period string) (*services.AnalyticsStats, error) {
	args := m.Called(ctx, period)
	res, _ := args.Get(0).(*services.AnalyticsStats)
	return res, args.Error(1)
}

func (m *MockAnalytics) GetErrorStats(ctx context.Context, period string, limit int) (*services.ErrorStats, error) {
	args := m.Called(ctx, period, limit)
	res, _ := args.Get(0).(*services.ErrorStats)
	return res, args.Error(1)
}

func (m *MockAnalytics) GetUsageTrends(ctx context.Context, days int) (*services.UsageTrends, error) {
	args := m.Called(ctx, days)
	res, _ := args.Get(0).(*services.UsageTrends)
	return res, args.Error(1)
}

type MockMapper struct{ mock.Mock }

func (m *MockMapper) AutoTranslateRecord(ctx context.Context, table string, record map[string]interface{}, sourceLanguage string) (*services.RecordTranslation, error) {
	args := m.Called(ctx, table, record, sourceLanguage)
	res, _ := args.Get(0).(*services.RecordTranslation)
	return res, args.Error(1)
}

func (m *MockMapper) BulkTranslateTable(ctx context.Context, table, sourceLanguage string, opts services.BulkOptions) (*services.BulkResult, error) {
	args := m.Called(ctx, table, sourceLanguage, opts)
	res, _ := args.Get(0).(*services.BulkResult)
	return res, args.Error(1)
}

func (m *MockMapper) SyncRecordTranslations(ctx context.Context, table, recordID, sourceLanguage string, force bool) (*services.RecordTranslation, error) {
	args := m.Called(ctx, table, recordID, sourceLanguage, force)
	res, _ := args.Get(0).(*services.RecordTranslation)
	return res, args.Error(1)
}

func (m *MockMapper) ListMappings(ctx context.Context) ([]models.FieldMapping, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]models.FieldMapping)
	return res, args.Error(1)
}

func (m *MockMapper) SaveMapping(ctx context.Context, mapping *models.FieldMapping) error {
	return m.Called(ctx, mapping).Error(0)
}

type testServer struct {
	router     *gin.Engine
	translator *MockTranslator
	queue      *MockQueue
	cache      *MockCache
	analytics  *MockAnalytics
	mapper     *MockMapper
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &testServer{
		router:     gin.New(),
		translator: new(MockTranslator),
		queue:      new(MockQueue),
		cache:      new(MockCache),
		analytics:  new(MockAnalytics),
		mapper:     new(MockMapper),
	}
	SetupRoutes(s.router, Dependencies{
		Translator:  s.translator,
		Queue:       s.queue,
		Cache:       s.cache,
		Analytics:   s.analytics,
		Mapper:      s.mapper,
		AdminSecret: adminSecret,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("translation_requests_total 1\n"))
		}),
	})
	t.Cleanup(func() {
		s.translator.AssertExpectations(t)
		s.queue.AssertExpectations(t)
		s.cache.AssertExpectations(t)
		s.analytics.AssertExpectations(t)
		s.mapper.AssertExpectations(t)
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  "dashboard",
			"role": "service_role",
			"exp":  time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(adminSecret))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestTranslateHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		s := newTestServer(t)
		s.translator.On("Translate", mock.Anything, "Bonjour", "fr", "en", services.TranslateOptions{Provider: "deepl", ClientID: "192.0.2.1"}).
			Return(&services.TranslationResult{TranslatedText: "Hello", Provider: "deepl"}, nil)

		w := s.do(t, http.MethodPost, "/api/translate", translateRequest{Text: "Bonjour", SourceLanguage: "fr", TargetLanguage: "en", Provider: "deepl"}, false)

		assert.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Hello", body["translated_text"])
		assert.Equal(t, false, body["cached"])
	})

	t.Run("Rate limited", func(t *testing.T) {
		s := newTestServer(t)
		s.translator.On("Translate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &services.RateLimitError{Limit: 100, RetryAfter: 12 * time.Second})

		w := s.do(t, http.MethodPost, "/api/translate", translateRequest{Text: "Hi", TargetLanguage: "fr"}, false)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "12", w.Header().Get("Retry-After"))
	})

	t.Run("Providers exhausted", func(t *testing.T) {
		s := newTestServer(t)
		s.translator.On("Translate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &services.AllProvidersFailedError{Attempts: 6, LastErr: errors.New("quota exceeded")})

		w := s.do(t, http.MethodPost, "/api/translate", translateRequest{Text: "Hi", TargetLanguage: "fr"}, false)

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("Malformed body", func(t *testing.T) {
		s := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/translate", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTranslateBatchHandler(t *testing.T) {
	s := newTestServer(t)
	items := []providers.Item{{Text: "a", Source: "en", Target: "fr"}, {Text: "b", Source: "en", Target: "fr"}}
	s.translator.On("TranslateBatch", mock.Anything, items, services.TranslateOptions{ClientID: "192.0.2.1"}).
		Return([]services.TranslationResult{{TranslatedText: "A", Cached: true}, {TranslatedText: "B"}}, nil)

	w := s.do(t, http.MethodPost, "/api/translate/batch", translateBatchRequest{Items: items}, false)

	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)["results"].([]interface{})
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].(map[string]interface{})["translated_text"])
	assert.Equal(t, "B", results[1].(map[string]interface{})["translated_text"])
}

func TestJobHandlers(t *testing.T) {
	t.Run("Queue defaults to batch job", func(t *testing.T) {
		s := newTestServer(t)
		s.queue.On("AddJob", mock.Anything, mock.MatchedBy(func(req services.JobRequest) bool {
			return req.JobType == models.JobTypeTranslateBatch && len(req.Items) == 1 && req.TargetLanguage == "de"
		})).Return(&services.QueuedJob{JobID: "job-1", Status: models.JobStatusPending, Priority: 6, EstimatedProcessingMs: 1210}, nil)

		w := s.do(t, http.MethodPost, "/api/translate/jobs", services.JobRequest{
			TargetLanguage: "de",
			Items:          []providers.Item{{Text: "hello"}},
		}, false)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "job-1", decode(t, w)["job_id"])
	})

	t.Run("Rejects table and record jobs", func(t *testing.T) {
		for _, body := range []map[string]interface{}{
			{"job_type": "translate_table", "table_name": "projects", "force": true, "limit": 1000},
			{"job_type": "sync_record", "table_name": "projects", "record_id": "p1", "force": true},
		} {
			s := newTestServer(t)
			w := s.do(t, http.MethodPost, "/api/translate/jobs", body, false)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			s.queue.AssertNotCalled(t, "AddJob", mock.Anything, mock.Anything)
		}
	})

	t.Run("Unknown job", func(t *testing.T) {
		s := newTestServer(t)
		s.queue.On("GetJobStatus", mock.Anything, "missing").Return(nil, services.ErrJobNotFound)

		w := s.do(t, http.MethodGet, "/api/translate/jobs/missing", nil, false)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Cancel finished job", func(t *testing.T) {
		s := newTestServer(t)
		s.queue.On("CancelJob", mock.Anything, "job-1").Return(services.ErrInvalidJobTransition)

		w := s.do(t, http.MethodDelete, "/api/translate/jobs/job-1", nil, false)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Cancel pending job", func(t *testing.T) {
		s := newTestServer(t)
		s.queue.On("CancelJob", mock.Anything, "job-2").Return(nil)

		w := s.do(t, http.MethodDelete, "/api/translate/jobs/job-2", nil, false)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "cancelled", decode(t, w)["status"])
	})
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		status string
		code   int
	}{
		{services.HealthHealthy, http.StatusOK},
		{services.HealthDegraded, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			s := newTestServer(t)
			s.translator.On("HealthCheck", mock.Anything).Return(&services.HealthStatus{
				Status:    tt.status,
				Providers: map[string]string{"deepl": services.HealthHealthy},
			})

			w := s.do(t, http.MethodGet, "/api/translate/health", nil, false)
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.status, decode(t, w)["status"])
		})
	}
}

func TestAutoTranslateRecordHandler(t *testing.T) {
	s := newTestServer(t)
	record := map[string]interface{}{"id": "p1", "title_en": "Portfolio"}
	s.mapper.On("AutoTranslateRecord", mock.Anything, "projects", record, "en").
		Return(&services.RecordTranslation{Record: record, Updated: map[string]interface{}{"title_fr": "Portefeuille"}}, nil)

	w := s.do(t, http.MethodPost, "/api/translate/records/projects/auto", autoTranslateRequest{Record: record, SourceLanguage: "en"}, false)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Portefeuille", decode(t, w)["updated_fields"].(map[string]interface{})["title_fr"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodDelete, "/api/translate/admin/cache", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminCacheHandlers(t *testing.T) {
	s := newTestServer(t)
	s.cache.On("Clear", mock.Anything).Return(int64(12), nil)
	s.cache.On("Invalidate", mock.Anything, services.InvalidatePattern{TargetLanguage: "fr"}).Return(int64(3), nil)

	w := s.do(t, http.MethodDelete, "/api/translate/admin/cache", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 12, decode(t, w)["deleted"])

	w = s.do(t, http.MethodPost, "/api/translate/admin/cache/invalidate", services.InvalidatePattern{TargetLanguage: "fr"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["deleted"])

	w = s.do(t, http.MethodPost, "/api/translate/admin/cache/invalidate", services.InvalidatePattern{}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminAnalyticsHandlers(t *testing.T) {
	s := newTestServer(t)
	s.analytics.On("GetStats", mock.Anything, "7d").Return(&services.AnalyticsStats{}, nil)
	s.analytics.On("GetErrorStats", mock.Anything, "24h", 5).Return(&services.ErrorStats{}, nil)
	s.analytics.On("GetUsageTrends", mock.Anything, 7).Return(&services.UsageTrends{}, nil)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/translate/admin/analytics/stats?period=7d", nil, true).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/translate/admin/analytics/errors?limit=5", nil, true).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/translate/admin/analytics/trends", nil, true).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/translate/admin/analytics/trends?days=week", nil, true).Code)
}

func TestAdminTestTranslation(t *testing.T) {
	s := newTestServer(t)
	s.translator.On("Translate", mock.Anything, defaultTestText, "en", "fr", mock.Anything).
		Return(&services.TranslationResult{TranslatedText: "Bonjour, le monde !", Provider: "google"}, nil)

	w := s.do(t, http.MethodPost, "/api/translate/admin/test", nil, true)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "google", body["result"].(map[string]interface{})["provider"])
	assert.Contains(t, body, "elapsed_ms")
}

func TestAdminBulkTranslate(t *testing.T) {
	t.Run("Inline", func(t *testing.T) {
		s := newTestServer(t)
		s.mapper.On("BulkTranslateTable", mock.Anything, "projects", "en", services.BulkOptions{Limit: 20}).
			Return(&services.BulkResult{Processed: 20, Updated: 4, Errors: []string{}}, nil)

		w := s.do(t, http.MethodPost, "/api/translate/admin/tables/projects/translate", bulkTranslateRequest{SourceLanguage: "en", Limit: 20}, true)

		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 4, decode(t, w)["updated"])
	})

	t.Run("Queued", func(t *testing.T) {
		s := newTestServer(t)
		s.queue.On("AddJob", mock.Anything, services.JobRequest{
			JobType:        models.JobTypeTranslateTable,
			SourceLanguage: "en",
			TableName:      "projects",
			Force:          true,
		}).Return(&services.QueuedJob{JobID: "job-9", Status: models.JobStatusPending}, nil)

		w := s.do(t, http.MethodPost, "/api/translate/admin/tables/projects/translate", bulkTranslateRequest{SourceLanguage: "en", Force: true, Async: true}, true)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "job-9", decode(t, w)["job_id"])
	})

	t.Run("Unknown table", func(t *testing.T) {
		s := newTestServer(t)
		s.mapper.On("BulkTranslateTable", mock.Anything, "posts", "", mock.Anything).Return(nil, services.ErrUnknownTable)

		w := s.do(t, http.MethodPost, "/api/translate/admin/tables/posts/translate", nil, true)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminSyncRecord(t *testing.T) {
	s := newTestServer(t)
	s.mapper.On("SyncRecordTranslations", mock.Anything, "projects", "p1", "en", true).
		Return(&services.RecordTranslation{Updated: map[string]interface{}{"title_de": "Mappe"}}, nil)

	w := s.do(t, http.MethodPost, "/api/translate/admin/tables/projects/records/p1/sync?source_language=en&force=true", nil, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminMappings(t *testing.T) {
	s := newTestServer(t)
	s.mapper.On("ListMappings", mock.Anything).Return([]models.FieldMapping{{
		TableName: "projects", FieldName: "title", FieldType: models.FieldTypeText, IsActive: true, TargetLanguages: []string{"fr"},
	}}, nil)
	s.mapper.On("SaveMapping", mock.Anything, mock.MatchedBy(func(m *models.FieldMapping) bool {
		return m.TableName == "projects" && m.FieldName == "summary" && m.IsActive
	})).Return(nil)

	w := s.do(t, http.MethodGet, "/api/translate/admin/mappings", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	mappings := decode(t, w)["mappings"].([]interface{})
	require.Len(t, mappings, 1)
	assert.Equal(t, "title", mappings[0].(map[string]interface{})["field_name"])

	w = s.do(t, http.MethodPut, "/api/translate/admin/mappings", mappingPayload{
		TableName: "projects", FieldName: "summary", TargetLanguages: []string{"fr", "de"},
	}, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "translation_requests_total")
}

package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"portfolio_translation_go_backend/internal/database"
	"portfolio_translation_go_backend/internal/models"
	"portfolio_translation_go_backend/internal/providers"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDB returns a migrated sqlite database that lives for the test.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(database.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "translations.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type MockProvider struct {
	mock.Mock
	name      string
	kind      providers.Kind
	available bool
}

func newMockProvider(kind providers.Kind) *MockProvider {
	return &MockProvider{name: kind.String(), kind: kind, available: true}
}

func (m *MockProvider) Kind() providers.Kind { return m.kind }
func (m *MockProvider) Name() string         { return m.name }
func (m *MockProvider) IsAvailable() bool    { return m.available }

func (m *MockProvider) Translate(ctx context.Context, text, source, target string) (*providers.Result, error) {
	args := m.Called(ctx, text, source, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.Result), args.Error(1)
}

func (m *MockProvider) TranslateBatch(ctx context.Context, items []providers.Item) ([]providers.Result, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]providers.Result), args.Error(1)
}

// MockAnalytics keeps every record it is handed.
type MockAnalytics struct {
	mock.Mock
	mu      sync.Mutex
	records []models.TranslationAnalytics
}

func (m *MockAnalytics) LogRequest(ctx context.Context, record *models.TranslationAnalytics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
}

func (m *MockAnalytics) Records() []models.TranslationAnalytics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TranslationAnalytics(nil), m.records...)
}

func (m *MockAnalytics) GetStats(ctx context.Context, period string) (*AnalyticsStats, error) {
	args := m.Called(ctx, period)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AnalyticsStats), args.Error(1)
}

func (m *MockAnalytics) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockBatchTranslator struct {
	mock.Mock
}

func (m *MockBatchTranslator) TranslateBatch(ctx context.Context, items []providers.Item, opts TranslateOptions) ([]TranslationResult, error) {
	args := m.Called(ctx, items, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]TranslationResult), args.Error(1)
}

type MockRecordTranslator struct {
	mock.Mock
}

func (m *MockRecordTranslator) BulkTranslateTable(ctx context.Context, table, sourceLanguage string, opts BulkOptions) (*BulkResult, error) {
	args := m.Called(ctx, table, sourceLanguage, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BulkResult), args.Error(1)
}

func (m *MockRecordTranslator) SyncRecordTranslations(ctx context.Context, table, recordID, sourceLanguage string, force bool) (*RecordTranslation, error) {
	args := m.Called(ctx, table, recordID, sourceLanguage, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RecordTranslation), args.Error(1)
}

// echoResults translates every item to "<target>:<text>".
func echoResults(items []providers.Item) []providers.Result {
	out := make([]providers.Result, len(items))
	for i, item := range items {
		out[i] = providers.Result{TranslatedText: item.Target + ":" + item.Text, CharactersUsed: len(item.Text)}
	}
	return out
}

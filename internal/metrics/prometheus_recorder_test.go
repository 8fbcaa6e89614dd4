package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portfolio_translation_go_backend/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ services.MetricsRecorder = (*PrometheusRecorder)(nil)

func TestPrometheusRecorderExportsCounters(t *testing.T) {
	r := NewPrometheusRecorder()
	r.ObserveTranslation("deepl", true, false, 42, 120*time.Millisecond)
	r.ObserveTranslation("deepl", true, true, 42, time.Millisecond)
	r.ObserveTranslation("", false, false, 0, time.Second)
	r.ObserveBatch(8, 3)
	r.ObserveJob("translate_batch", "completed")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, `translation_requests_total{cached="false",provider="deepl",success="true"} 1`)
	assert.Contains(t, body, `translation_requests_total{cached="true",provider="deepl",success="true"} 1`)
	assert.Contains(t, body, `translation_requests_total{cached="false",provider="unknown",success="false"} 1`)
	assert.Contains(t, body, `translation_characters_total{provider="deepl"} 42`)
	assert.Contains(t, body, `translation_batch_cached_items_total 3`)
	assert.Contains(t, body, `translation_job_transitions_total{job_type="translate_batch",status="completed"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports translation and job counters on its own registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	charactersTotal    *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	batchSize          prometheus.Histogram
	batchCachedItems   prometheus.Counter
	jobTransitionTotal *prometheus.CounterVec
}

func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "translation_requests_total",
			Help: "Translation requests by provider, outcome and cache hit.",
		}, []string{"provider", "success", "cached"}),
		charactersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "translation_characters_total",
			Help: "Characters translated by provider.",
		}, []string{"provider"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "translation_request_duration_seconds",
			Help:    "Latency of translation requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "cached"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "translation_batch_size",
			Help:    "Items per batch translation request.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		batchCachedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "translation_batch_cached_items_total",
			Help: "Batch items answered from the cache.",
		}),
		jobTransitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "translation_job_transitions_total",
			Help: "Job status transitions by job type.",
		}, []string{"job_type", "status"}),
	}

	registry.MustRegister(r.requestsTotal)
	registry.MustRegister(r.charactersTotal)
	registry.MustRegister(r.requestDuration)
	registry.MustRegister(r.batchSize)
	registry.MustRegister(r.batchCachedItems)
	registry.MustRegister(r.jobTransitionTotal)
	return r
}

func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) ObserveTranslation(provider string, success, cached bool, characters int, elapsed time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	cachedLabel := strconv.FormatBool(cached)
	r.requestsTotal.WithLabelValues(provider, strconv.FormatBool(success), cachedLabel).Inc()
	if success && !cached {
		r.charactersTotal.WithLabelValues(provider).Add(float64(characters))
	}
	r.requestDuration.WithLabelValues(provider, cachedLabel).Observe(elapsed.Seconds())
}

func (r *PrometheusRecorder) ObserveBatch(size, cachedItems int) {
	r.batchSize.Observe(float64(size))
	r.batchCachedItems.Add(float64(cachedItems))
}

func (r *PrometheusRecorder) ObserveJob(jobType, status string) {
	r.jobTransitionTotal.WithLabelValues(jobType, status).Inc()
}

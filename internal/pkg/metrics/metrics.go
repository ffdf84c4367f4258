package metrics

import (
	"strconv"
	"time"

	"fridge-chef/internal/core/recipe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fridgechef"

// Metrics 應用指標。nil 的 *Metrics 可以安全呼叫，所有方法都不做事。
type Metrics struct {
	tagsAdded          prometheus.Counter
	tagsRejected       prometheus.Counter
	generations        *prometheus.CounterVec
	generationDuration prometheus.Histogram
	sessionsActive     prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New 在指定的 registerer 上註冊所有指標
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tagsAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_added_total",
			Help:      "Ingredient tags accepted into a session.",
		}),
		tagsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_rejected_total",
			Help:      "Ingredient tags refused because the session was at capacity.",
		}),
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Recipe requests by outcome.",
		}, []string{"outcome"}),
		generationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time spent waiting for the recipe service.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 90},
		}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently held in memory.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// TagsAdded 記錄新增與被拒絕的食材數
func (m *Metrics) TagsAdded(added, rejected int) {
	if m == nil {
		return
	}
	m.tagsAdded.Add(float64(added))
	m.tagsRejected.Add(float64(rejected))
}

// ObserveGeneration 實作 recipe.Observer
func (m *Metrics) ObserveGeneration(outcome recipe.Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(string(outcome)).Inc()
	if outcome == recipe.OutcomeSucceeded || outcome == recipe.OutcomeFailed {
		m.generationDuration.Observe(d.Seconds())
	}
}

// SetSessions 設定目前的工作階段數
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// ObserveRequest 記錄一次 HTTP 請求
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

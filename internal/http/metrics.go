package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tunefetch/pkg/audiolink"
)

type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	ResolutionsTotal   *prometheus.CounterVec
	ResolveDuration    *prometheus.HistogramVec
	AttemptsTotal      *prometheus.CounterVec
	AttemptDuration    *prometheus.HistogramVec
	RelayedTotal       *prometheus.CounterVec
	SearchesTotal      *prometheus.CounterVec
	RateLimitedTotal   *prometheus.CounterVec
	SearchCacheSize    prometheus.Gauge
	RateLimitedClients prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunefetch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "code"},
		),
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunefetch_resolutions_total",
				Help: "Total number of audio resolutions by result",
			},
			[]string{"result"},
		),
		ResolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunefetch_resolve_duration_seconds",
				Help:    "Time spent resolving audio streams",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunefetch_provider_attempts_total",
				Help: "Total number of provider attempts by family and outcome",
			},
			[]string{"family", "outcome"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunefetch_provider_attempt_duration_seconds",
				Help:    "Time spent on single provider attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"family"},
		),
		RelayedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunefetch_relayed_attempts_total",
				Help: "Total number of provider attempts answered through a relay",
			},
			[]string{"family"},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunefetch_searches_total",
				Help: "Total number of searches by result",
			},
			[]string{"result"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunefetch_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		SearchCacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tunefetch_search_cache_entries",
				Help: "Current number of cached search queries",
			},
		),
		RateLimitedClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tunefetch_rate_limit_tracked_clients",
				Help: "Number of client and route pairs tracked by the rate limiter",
			},
		),
	}

	collectors := []prometheus.Collector{
		metrics.RequestsTotal,
		metrics.ResolutionsTotal,
		metrics.ResolveDuration,
		metrics.AttemptsTotal,
		metrics.AttemptDuration,
		metrics.RelayedTotal,
		metrics.SearchesTotal,
		metrics.RateLimitedTotal,
		metrics.SearchCacheSize,
		metrics.RateLimitedClients,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return metrics, nil
}

// ObserveAttempt records one provider attempt.
func (m *Metrics) ObserveAttempt(rec audiolink.AttemptRecord) {
	m.AttemptsTotal.WithLabelValues(rec.Family, string(rec.Outcome)).Inc()
	m.AttemptDuration.WithLabelValues(rec.Family).Observe(rec.Elapsed.Seconds())
	if rec.Relayed {
		m.RelayedTotal.WithLabelValues(rec.Family).Inc()
	}
}

func (m *Metrics) RecordResolution(result string, duration time.Duration) {
	m.ResolutionsTotal.WithLabelValues(result).Inc()
	m.ResolveDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func (m *Metrics) RecordSearch(result string) {
	m.SearchesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRateLimited(route string) {
	m.RateLimitedTotal.WithLabelValues(route).Inc()
}

func (m *Metrics) RecordRequest(route, code string) {
	m.RequestsTotal.WithLabelValues(route, code).Inc()
}

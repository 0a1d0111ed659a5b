package invoke

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "textwand_provider_attempts_total",
		Help: "Provider invocation attempts by outcome.",
	}, []string{"provider", "outcome"})

	attemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "textwand_provider_attempt_seconds",
		Help:    "Wall time of provider invocation attempts.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"provider"})

	fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textwand_fallbacks_total",
		Help: "Times the engine advanced past a failed provider.",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "textwand_cache_hits_total",
		Help: "Responses served from the cache without invoking a provider.",
	})
)

func observeAttempt(providerID string, kind Kind, d time.Duration) {
	attemptsTotal.WithLabelValues(providerID, string(kind)).Inc()
	attemptDuration.WithLabelValues(providerID).Observe(d.Seconds())
}

func observeFallback() { fallbacksTotal.Inc() }

func observeCacheHit() { cacheHitsTotal.Inc() }

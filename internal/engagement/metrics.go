package engagement

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "yolinkify"

const (
	outcomeLiked    = "liked"
	outcomeUnliked  = "unliked"
	outcomeRecorded = "recorded"
	outcomeRejected = "rejected"
	outcomeNotFound = "not_found"
	outcomeFailed   = "failed"
)

// Metrics holds the Prometheus collectors for the engagement core. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	toggles       *prometheus.CounterVec
	clicks        *prometheus.CounterVec
	storeFailures *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewMetrics creates the engagement collectors and registers them. Collectors
// already registered on the registerer are reused.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	toggles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "like_toggles_total",
			Help:      "Like toggles by outcome",
		},
		[]string{"outcome"},
	)
	clicks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "clicks_total",
			Help:      "Click recordings by outcome",
		},
		[]string{"outcome"},
	)
	storeFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "store_failures_total",
			Help:      "Counter store failures surfaced as transient errors",
		},
		[]string{"operation", "reason"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of engagement operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	metrics := &Metrics{toggles: toggles, clicks: clicks, storeFailures: storeFailures, duration: duration}
	if registerer == nil {
		return metrics, nil
	}

	var err error
	if metrics.toggles, err = registerCounterVec(registerer, toggles); err != nil {
		return nil, err
	}
	if metrics.clicks, err = registerCounterVec(registerer, clicks); err != nil {
		return nil, err
	}
	if metrics.storeFailures, err = registerCounterVec(registerer, storeFailures); err != nil {
		return nil, err
	}
	if err := registerer.Register(duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		metrics.duration = existing
	}
	return metrics, nil
}

func registerCounterVec(registerer prometheus.Registerer, collector *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		return existing, nil
	}
	return collector, nil
}

func (m *Metrics) observeToggle(outcome string) {
	if m == nil {
		return
	}
	m.toggles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeClick(outcome string) {
	if m == nil {
		return
	}
	m.clicks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeStoreFailure(operation, reason string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) observeDuration(operation string, startedAt time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(startedAt).Seconds())
}

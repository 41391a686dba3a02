package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records protocol-level metrics: per-operation activity send
// latency, processed turns, token hand-off events and transport failures.
type Collector struct {
	activitiesTotal     *prometheus.CounterVec
	activitySendLatency *prometheus.HistogramVec

	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	tokenEventsTotal     *prometheus.CounterVec
	transportErrorsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector registered against reg. A nil reg falls
// back to the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.activitiesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activities_total",
			Help:      "Total number of activities handled per adapter operation",
		},
		[]string{"operation", "status"},
	)

	c.activitySendLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "activity_send_latency_seconds",
			Help:      "Latency of one activity transport round trip",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of processed turns",
		},
		[]string{"channel", "status"},
	)

	c.turnDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of one full turn",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	c.tokenEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_events_total",
			Help:      "Total number of token hand-off events",
		},
		[]string{"event", "outcome"},
	)

	c.transportErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Total number of transport send failures",
		},
		[]string{"operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordActivitySend records one transport round trip for an adapter
// operation (SendActivity, UpdateActivity, DeleteActivity).
func (c *Collector) RecordActivitySend(operation, status string, duration time.Duration) {
	c.activitiesTotal.WithLabelValues(operation, status).Inc()
	c.activitySendLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTurn records one processed turn.
func (c *Collector) RecordTurn(channel, status string, duration time.Duration) {
	c.turnsTotal.WithLabelValues(channel, status).Inc()
	c.turnDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordTokenEvent records one auth hand-off event outcome.
func (c *Collector) RecordTokenEvent(event, outcome string) {
	c.tokenEventsTotal.WithLabelValues(event, outcome).Inc()
}

// RecordTransportError records a failed transport send.
func (c *Collector) RecordTransportError(operation string) {
	c.transportErrorsTotal.WithLabelValues(operation).Inc()
}

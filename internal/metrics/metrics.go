package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsehook_deliveries_total",
			Help: "Total number of delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)

	DeliveryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulsehook_delivery_latency_seconds",
			Help:    "Latency of outbound webhook HTTP calls.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsehook_retries_total",
			Help: "Total number of scheduled delivery retries by reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, other
	)

	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsehook_rejections_total",
			Help: "Total number of pre-flight delivery rejections.",
		},
		[]string{"reason"}, // https_required, payload_too_large
	)

	SweepRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsehook_sweep_repairs_total",
			Help: "Total number of delivery rows repaired by the sweeper.",
		},
		[]string{"kind"}, // failed, rescheduled
	)
)

// MustRegister registers all engine collectors on the given registry.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(DeliveriesTotal, DeliveryLatency, RetriesTotal, RejectionsTotal, SweepRepairsTotal)
}

// RecordDelivery records one delivery attempt outcome and its HTTP latency.
func RecordDelivery(outcome string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
	if latency > 0 {
		DeliveryLatency.Observe(latency.Seconds())
	}
}

// RecordRetry records a scheduled retry by failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordRejection records a pre-flight rejection.
func RecordRejection(reason string) {
	RejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordSweep records rows repaired by one sweep pass.
func RecordSweep(kind string, n int) {
	if n > 0 {
		SweepRepairsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

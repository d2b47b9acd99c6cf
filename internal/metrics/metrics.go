// Package metrics holds the Prometheus collectors of the xApp. Collectors are
// registered on a private registry so that several instances (tests in
// particular) can coexist in one process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hwxapp"

// Indication failure stages.
const (
	StageEnvelope = "envelope"
	StageHeader   = "header"
	StageMessage  = "message"
	StageDispatch = "dispatch"
)

// Metrics groups every collector exported by the xApp.
type Metrics struct {
	Registry *prometheus.Registry

	IndicationsReceived *prometheus.CounterVec
	IndicationFailures  *prometheus.CounterVec
	IndicationDuration  prometheus.Histogram
	BuffersInFlight     prometheus.Gauge

	SubscriptionRequests *prometheus.CounterVec
	ActiveSubscriptions  prometheus.Gauge
	RegistryDuration     *prometheus.HistogramVec

	ForwardedReports *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		IndicationsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "indications_received_total",
				Help:      "RIC Indication buffers received, by E2 node",
			},
			[]string{"node"},
		),
		IndicationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "indication_failures_total",
				Help:      "RIC Indication processing failures, by stage",
			},
			[]string{"stage"},
		),
		IndicationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "indication_decode_duration_seconds",
				Help:      "Time spent decoding one RIC Indication",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
			},
		),
		BuffersInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "buffers_in_flight",
				Help:      "Inbound buffers accepted but not yet released",
			},
		),

		SubscriptionRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_requests_total",
				Help:      "Subscription registry requests, by operation and result",
			},
			[]string{"operation", "result"},
		),
		ActiveSubscriptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_subscriptions",
				Help:      "Subscriptions currently tracked as active",
			},
		),
		RegistryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "registry_request_duration_seconds",
				Help:      "Subscription registry round trip time",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ForwardedReports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forwarded_reports_total",
				Help:      "Decoded reports pushed downstream, by result",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (metrics *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{Registry: metrics.Registry})
}

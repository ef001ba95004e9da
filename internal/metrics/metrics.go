package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics holds every collector the storefront exports. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Requests       *prometheus.CounterVec
	LatencyMS      *prometheus.HistogramVec
	Checkouts      *prometheus.CounterVec
	GatewayRetries *prometheus.CounterVec
	WebhookEvents  *prometheus.CounterVec
	InboxPending   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry(); the binary uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "operations_total",
			Help:      "Checkout operations by outcome.",
		}, []string{"operation", "outcome"}),
		GatewayRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Payment gateway calls retried after a transient failure.",
		}, []string{"operation"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Webhook deliveries by event kind and outcome.",
		}, []string{"kind", "outcome"}),
		InboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "inbox_pending",
			Help:      "Verified webhook events waiting to be processed.",
		}),
	}

	reg.MustRegister(m.Requests, m.LatencyMS, m.Checkouts, m.GatewayRetries, m.WebhookEvents, m.InboxPending)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

func (m *Metrics) CheckoutOutcome(operation, outcome string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) GatewayRetry(operation string) {
	if m == nil {
		return
	}
	m.GatewayRetries.WithLabelValues(operation).Inc()
}

func (m *Metrics) WebhookEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SetInboxPending(n int) {
	if m == nil {
		return
	}
	m.InboxPending.Set(float64(n))
}

func (m *Metrics) ObserveRequest(handler string, status int, ms float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(ms)
}

// Handler serves the registry m was built with.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

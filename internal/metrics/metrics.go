package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	Installs             *prometheus.CounterVec
	ShopifyRequests      *prometheus.CounterVec
	ShopifyLatency       *prometheus.HistogramVec
	WebhookRegistrations *prometheus.CounterVec
	WebhooksReceived     *prometheus.CounterVec
	WidgetRenders        *prometheus.CounterVec
	SettingsSaves        *prometheus.CounterVec
	SessionVerifications *prometheus.CounterVec
	Errors               *prometheus.CounterVec
}

// New builds the collectors under namespace and registers them with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "OAuth install callbacks by outcome.",
		}, []string{"outcome"}),
		ShopifyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shopify_requests_total",
			Help:      "Total Shopify API requests by operation and status.",
		}, []string{"operation", "status"}),
		ShopifyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shopify_request_duration_seconds",
			Help:      "Latency distribution for Shopify API calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		WebhookRegistrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_registrations_total",
			Help:      "Background webhook registrations by outcome.",
		}, []string{"outcome"}),
		WebhooksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_received_total",
			Help:      "Incoming webhook deliveries by topic and outcome.",
		}, []string{"topic", "outcome"}),
		WidgetRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "widget_renders_total",
			Help:      "Storefront widget scripts served, split by settings source.",
		}, []string{"source"}),
		SettingsSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_saves_total",
			Help:      "Settings updates by outcome.",
		}, []string{"outcome"}),
		SessionVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_verifications_total",
			Help:      "Admin session token checks by outcome.",
		}, []string{"outcome"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors grouped by component.",
		}, []string{"component"}),
	}

	reg.MustRegister(
		m.Installs,
		m.ShopifyRequests,
		m.ShopifyLatency,
		m.WebhookRegistrations,
		m.WebhooksReceived,
		m.WidgetRenders,
		m.SettingsSaves,
		m.SessionVerifications,
		m.Errors,
	)
	return m
}

// ObserveShopify records one outbound Shopify call started at start.
func (m *Metrics) ObserveShopify(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ShopifyRequests.WithLabelValues(operation, status).Inc()
	m.ShopifyLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Outcome maps err to the "ok"/"error" label used by the outcome counters.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Package telemetry provides Prometheus metrics and OpenTelemetry tracing for
// scout runs, collaborator calls and webhook deliveries.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "dorfkoenig"

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	Executions          *prometheus.CounterVec
	ExecutionDuration   prometheus.Histogram
	UnitsExtracted      prometheus.Counter
	CollaboratorErrors  *prometheus.CounterVec
	WebhookEvents       *prometheus.CounterVec
	VerificationTimeout prometheus.Counter
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge
}

// Provider wraps the tracer and metrics. A nil *Provider is a no-op.
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	gatherer prometheus.Gatherer
}

// NewProvider registers the metrics on reg. Pass prometheus.NewRegistry() in
// tests.
func NewProvider(reg *prometheus.Registry) *Provider {
	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(reg)),
		gatherer: reg,
	}
}

func initMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dorfkoenig_executions_total",
			Help: "Scout executions by final status and change status",
		}, []string{"status", "change_status"}),
		ExecutionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dorfkoenig_execution_duration_seconds",
			Help:    "Wall time of a scout execution",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		UnitsExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "dorfkoenig_units_extracted_total",
			Help: "Information units stored by scout executions",
		}),
		CollaboratorErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dorfkoenig_collaborator_errors_total",
			Help: "Failed calls to external collaborators",
		}, []string{"collaborator"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dorfkoenig_webhook_events_total",
			Help: "Inbound WhatsApp webhook deliveries by outcome",
		}, []string{"status"}),
		VerificationTimeout: f.NewCounter(prometheus.CounterOpts{
			Name: "dorfkoenig_verification_timeouts_total",
			Help: "Drafts confirmed by the timeout sweep",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dorfkoenig_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dorfkoenig_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "dorfkoenig_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

// RecordExecution records one finished execution.
func (p *Provider) RecordExecution(status, changeStatus string, duration time.Duration, units int) {
	if p == nil {
		return
	}
	p.Metrics.Executions.WithLabelValues(status, changeStatus).Inc()
	p.Metrics.ExecutionDuration.Observe(duration.Seconds())
	if units > 0 {
		p.Metrics.UnitsExtracted.Add(float64(units))
	}
}

// RecordCollaboratorError counts a failed remote call. Its signature matches
// llm.ErrorHook.
func (p *Provider) RecordCollaboratorError(collaborator string, _ error) {
	if p == nil {
		return
	}
	p.Metrics.CollaboratorErrors.WithLabelValues(collaborator).Inc()
}

// RecordWebhook counts a webhook delivery by status.
func (p *Provider) RecordWebhook(status string) {
	if p == nil {
		return
	}
	p.Metrics.WebhookEvents.WithLabelValues(status).Inc()
}

// RecordTimeouts counts drafts resolved by the sweep.
func (p *Provider) RecordTimeouts(n int64) {
	if p == nil || n <= 0 {
		return
	}
	p.Metrics.VerificationTimeout.Add(float64(n))
}

// StartSpan starts a span. The caller ends it.
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p == nil || p.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

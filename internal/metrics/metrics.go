package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "expedientes"

// Transfer outcomes.
const (
	OutcomeRequested = "requested"
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
)

// Recorder owns the service collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	transfers        *prometheus.CounterVec
	caseFilesCreated prometheus.Counter
	pendingTransfers prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	webhookDelivery  *prometheus.CounterVec
}

// NewRecorder registers collectors on reg, or on a fresh registry when reg is nil.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	r := &Recorder{
		registry: reg,
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfer workflow operations by outcome",
		}, []string{"outcome"}),
		caseFilesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "case_files_created_total",
			Help:      "Case files created",
		}),
		pendingTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transfers_pending",
			Help:      "Transfer requests awaiting a decision",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route"}),
		webhookDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Webhook delivery attempts by result",
		}, []string{"webhook", "result"}),
	}
	reg.MustRegister(r.transfers, r.caseFilesCreated, r.pendingTransfers, r.httpRequests, r.httpDuration, r.webhookDelivery)
	return r
}

func (r *Recorder) Transfer(outcome string) {
	if r == nil {
		return
	}
	r.transfers.WithLabelValues(outcome).Inc()
}

func (r *Recorder) CaseFileCreated() {
	if r == nil {
		return
	}
	r.caseFilesCreated.Inc()
}

func (r *Recorder) PendingTransfers(n int) {
	if r == nil {
		return
	}
	r.pendingTransfers.Set(float64(n))
}

func (r *Recorder) HTTPRequest(method, route string, code int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (r *Recorder) WebhookDelivery(webhook string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.webhookDelivery.WithLabelValues(webhook, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

package minting

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private prometheus registry for the minting subsystem.
type Metrics struct {
	registry            *prometheus.Registry
	certificationsTotal *prometheus.CounterVec
	mintDuration        *prometheus.HistogramVec
	reconcilerTotal     *prometheus.CounterVec
	hookRequestsTotal   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	certifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certmint_certifications_total",
		Help: "Certification requests by outcome",
	}, []string{"outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "certmint_mint_duration_seconds",
		Help:    "Wall time of ledger mint calls, submission through confirmation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"chain"})

	reconciler := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certmint_reconciler_resolutions_total",
		Help: "Stuck minting assets resolved by the reconciliation sweep",
	}, []string{"outcome"})

	hooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "certmint_hook_requests_total",
		Help: "Ingestion hook requests by status",
	}, []string{"status"})

	r := prometheus.NewRegistry()
	r.MustRegister(certifications, duration, reconciler, hooks)

	return &Metrics{
		registry:            r,
		certificationsTotal: certifications,
		mintDuration:        duration,
		reconcilerTotal:     reconciler,
		hookRequestsTotal:   hooks,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) incCertification(outcome string) {
	m.certificationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeMint(chain string, d time.Duration) {
	m.mintDuration.WithLabelValues(chain).Observe(d.Seconds())
}

func (m *Metrics) incReconciled(outcome string) {
	m.reconcilerTotal.WithLabelValues(outcome).Inc()
}

// IncHook counts ingestion hook requests; called from the HTTP layer.
func (m *Metrics) IncHook(status string) {
	m.hookRequestsTotal.WithLabelValues(status).Inc()
}

// Package metrics provides Prometheus metrics for fault handling, key
// resolution and portal requests
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "annotator"

// Metrics tracks client metrics on its own registry
type Metrics struct {
	registry *prometheus.Registry

	faultsHandled   *prometheus.CounterVec
	faultsPresented *prometheus.CounterVec
	keyResolutions  *prometheus.CounterVec
	portalRequests  *prometheus.CounterVec
	portalDuration  *prometheus.HistogramVec

	mu     sync.RWMutex
	faults int64
	fatal  int64
}

// New creates a metrics collector with a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		faultsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "faults_handled_total",
				Help:      "Faults handled by the escalation pipeline",
			},
			[]string{"kind", "severity"},
		),
		faultsPresented: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "faults_presented_total",
				Help:      "Faults shown to the user",
			},
			[]string{"severity"},
		),
		keyResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "key_resolutions_total",
				Help:      "Successful public key resolutions by origin",
			},
			[]string{"origin"},
		),
		portalRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "portal_requests_total",
				Help:      "Portal API requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		portalDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "portal_request_duration_seconds",
				Help:      "Portal API request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
	}

	m.registry.MustRegister(
		m.faultsHandled,
		m.faultsPresented,
		m.keyResolutions,
		m.portalRequests,
		m.portalDuration,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordFault records a fault handled by the pipeline
func (m *Metrics) RecordFault(kind, severity string) {
	m.mu.Lock()
	m.faults++
	if severity == "fatal" {
		m.fatal++
	}
	m.mu.Unlock()
	m.faultsHandled.WithLabelValues(kind, severity).Inc()
}

// RecordPresented records a fault shown to the user
func (m *Metrics) RecordPresented(severity string) {
	m.faultsPresented.WithLabelValues(severity).Inc()
}

// RecordKeyResolution records where the public key came from
func (m *Metrics) RecordKeyResolution(origin string) {
	m.keyResolutions.WithLabelValues(origin).Inc()
}

// RecordPortalRequest records one portal API call
func (m *Metrics) RecordPortalRequest(endpoint string, ok bool, d time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.portalRequests.WithLabelValues(endpoint, outcome).Inc()
	m.portalDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// GetSnapshot returns fault totals
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"faults": m.faults,
		"fatal":  m.fatal,
	}
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

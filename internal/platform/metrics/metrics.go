// Package metrics owns the Prometheus collectors of the registry daemon.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docregistry"

type Metrics struct {
	registry *prometheus.Registry

	documentsStored *prometheus.CounterVec
	storeRejected   *prometheus.CounterVec
	commitSeconds   prometheus.Histogram
	verifications   *prometheus.CounterVec
	rpcRequests     *prometheus.CounterVec
	rpcRateLimited  prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		documentsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_stored_total",
			Help:      "Documents committed to the registry.",
		}, []string{"method"}),
		storeRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_rejected_total",
			Help:      "Store submissions rejected, before submit or at commit.",
		}, []string{"reason"}),
		commitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_seconds",
			Help:      "Time spent committing one submission.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Lookup-and-verify outcomes.",
		}, []string{"result"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_rate_limited_total",
			Help:      "JSON-RPC requests refused by the rate limiter.",
		}),
	}
	reg.MustRegister(
		m.documentsStored,
		m.storeRejected,
		m.commitSeconds,
		m.verifications,
		m.rpcRequests,
		m.rpcRateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) DocumentsStored(method string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.documentsStored.WithLabelValues(method).Add(float64(n))
}

func (m *Metrics) StoreRejected(reason string) {
	if m == nil {
		return
	}
	m.storeRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.commitSeconds.Observe(d.Seconds())
}

func (m *Metrics) Verification(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) RPCRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) RPCRateLimited() {
	if m == nil {
		return
	}
	m.rpcRateLimited.Inc()
}

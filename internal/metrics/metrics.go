// Package metrics exposes Prometheus instruments for the memory engine.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "just_memory"

// Collector owns its registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Operations         *prometheus.CounterVec
	ActivationDuration prometheus.Histogram
	ActivationVisited  prometheus.Histogram
	ActivationResults  prometheus.Histogram
	ActivationTrunc    prometheus.Counter
	Embeddings         *prometheus.CounterVec
	SweepWeakened      prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Memory and edge operations by outcome",
		}, []string{"operation", "outcome"}),
		ActivationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "activation_duration_seconds",
			Help:      "Spreading activation traversal time",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		ActivationVisited: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "activation_visited_nodes",
			Help:      "Nodes expanded per traversal",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ActivationResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "activation_result_nodes",
			Help:      "Nodes returned per traversal",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ActivationTrunc: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activation_truncated_total",
			Help:      "Traversals stopped by the node bound",
		}),
		Embeddings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_total",
			Help:      "Embedding requests by outcome",
		}, []string{"outcome"}),
		SweepWeakened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_weakened_total",
			Help:      "Memories weakened by the idle sweep",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests,
		c.HTTPDuration,
		c.Operations,
		c.ActivationDuration,
		c.ActivationVisited,
		c.ActivationResults,
		c.ActivationTrunc,
		c.Embeddings,
		c.SweepWeakened,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) ObserveOperation(op string, err error) {
	c.Operations.WithLabelValues(op, Outcome(err)).Inc()
}

func (c *Collector) ObserveActivation(d time.Duration, visited, results int, truncated bool) {
	c.ActivationDuration.Observe(d.Seconds())
	c.ActivationVisited.Observe(float64(visited))
	c.ActivationResults.Observe(float64(results))
	if truncated {
		c.ActivationTrunc.Inc()
	}
}

func (c *Collector) ObserveEmbedding(err error) {
	c.Embeddings.WithLabelValues(Outcome(err)).Inc()
}

func (c *Collector) ObserveSweep(weakened int64) {
	c.SweepWeakened.Add(float64(weakened))
}

// Outcome buckets an error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrReferential):
		return "referential"
	case errors.Is(err, domain.ErrAlreadyInvalidated),
		errors.Is(err, domain.ErrAlreadySuperseded),
		errors.Is(err, domain.ErrCycleDetected):
		return "conflict"
	case errors.Is(err, domain.ErrStorage):
		return "storage_error"
	default:
		return "error"
	}
}

// Package metrics exposes Prometheus collectors for upstream calls and
// credential refreshes.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edge-gateway/internal/gatewayerr"
)

const namespace = "gateway"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Collector owns a private registry. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	tokenRefreshes   *prometheus.CounterVec
}

// NewCollector registers the gateway metrics plus the Go runtime and process
// collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream chat calls by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Time until the upstream answered, or until the stream opened.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		tokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Service-account token exchanges by outcome.",
			},
			[]string{"outcome"},
		),
	}

	c.registry.MustRegister(
		c.upstreamRequests,
		c.upstreamDuration,
		c.tokenRefreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveUpstream records one upstream call. Failures are labelled with
// their error kind.
func (c *Collector) ObserveUpstream(provider string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	c.upstreamRequests.WithLabelValues(provider, outcome(err)).Inc()
	c.upstreamDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveTokenRefresh records one credential exchange.
func (c *Collector) ObserveTokenRefresh(err error) {
	if c == nil {
		return
	}
	result := OutcomeSuccess
	if err != nil {
		result = OutcomeError
	}
	c.tokenRefreshes.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	var gerr *gatewayerr.Error
	if errors.As(err, &gerr) {
		return string(gerr.Kind)
	}
	return string(gatewayerr.KindUnknown)
}

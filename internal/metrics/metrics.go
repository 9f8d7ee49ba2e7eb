// Package metrics holds the Prometheus collectors of the request
// dispatcher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "xserver"

// Collector records per-request counters. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	clients  prometheus.Gauge
}

// New registers the collectors on reg. A nil reg gets a private
// registry.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests dispatched, by opcode name.",
		}, []string{"opcode"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Protocol errors sent to clients, by error name.",
		}, []string{"code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent handling a request, locks included.",
			Buckets:   []float64{.00005, .0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"opcode"}),
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients",
			Help:      "Connected clients.",
		}),
	}
}

func (c *Collector) ObserveRequest(opcode string, d time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(opcode).Inc()
	c.duration.WithLabelValues(opcode).Observe(d.Seconds())
}

func (c *Collector) RequestError(code string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(code).Inc()
}

func (c *Collector) ClientConnected() {
	if c == nil {
		return
	}
	c.clients.Inc()
}

func (c *Collector) ClientDisconnected() {
	if c == nil {
		return
	}
	c.clients.Dec()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

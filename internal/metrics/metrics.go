// Package metrics exposes reminder and realtime counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/julianstephens/habitual/internal/constants"
)

// Collector holds the counters. A nil *Collector records nothing, so
// components can run without metrics wired.
type Collector struct {
	registry *prometheus.Registry

	triggers   *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	realtime   *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.triggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.AppName,
			Subsystem: "scheduler",
			Name:      "triggers_total",
			Help:      "Reminder trigger operations by result (scheduled, skipped, canceled, failed)",
		},
		[]string{"op", "result"},
	)

	c.deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.AppName,
			Subsystem: "notifier",
			Name:      "deliveries_total",
			Help:      "Fired reminders by outcome",
		},
		[]string{"sink", "outcome"},
	)

	c.realtime = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: constants.AppName,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Change feed events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	c.registry.MustRegister(c.triggers, c.deliveries, c.realtime,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return c
}

// Trigger counts a scheduler step. op is schedule or cancel.
func (c *Collector) Trigger(op, result string) {
	if c == nil {
		return
	}
	c.triggers.WithLabelValues(op, result).Inc()
}

func (c *Collector) Delivery(sink, outcome string) {
	if c == nil {
		return
	}
	c.deliveries.WithLabelValues(sink, outcome).Inc()
}

func (c *Collector) RealtimeEvent(kind, outcome string) {
	if c == nil {
		return
	}
	c.realtime.WithLabelValues(kind, outcome).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

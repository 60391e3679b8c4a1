// Package metrics holds the Prometheus collectors for the query layer and the
// realtime adapter. Collectors register on a private registry so tests can
// build as many as they like.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Collectors struct {
	Registry *prometheus.Registry

	QueryDuration   *prometheus.HistogramVec
	QueryErrors     *prometheus.CounterVec
	RealtimeEvents  *prometheus.CounterVec
	Refetches       *prometheus.CounterVec
	LiveSubscribers prometheus.Gauge
}

func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		Registry: reg,
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "query_duration_seconds",
			Help:      "Duration of query layer operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "query_errors_total",
			Help:      "Backend errors caught by the query layer.",
		}, []string{"op"}),
		RealtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "realtime_events_total",
			Help:      "Change notifications received by live views.",
		}, []string{"table", "type"}),
		Refetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "live_refetches_total",
			Help:      "Live view re-fetches by outcome (applied, stale, detached, error).",
		}, []string{"table", "outcome"}),
		LiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "portal",
			Name:      "live_views_mounted",
			Help:      "Live views currently holding a subscription.",
		}),
	}
	reg.MustRegister(
		c.QueryDuration,
		c.QueryErrors,
		c.RealtimeEvents,
		c.Refetches,
		c.LiveSubscribers,
		collectors.NewGoCollector(),
	)
	return c
}

// ObserveQuery records one query layer call. Safe on a nil receiver.
func (c *Collectors) ObserveQuery(op string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.QueryErrors.WithLabelValues(op).Inc()
	}
}

func (c *Collectors) RealtimeEvent(table, eventType string) {
	if c == nil {
		return
	}
	c.RealtimeEvents.WithLabelValues(table, eventType).Inc()
}

func (c *Collectors) Refetch(table, outcome string) {
	if c == nil {
		return
	}
	c.Refetches.WithLabelValues(table, outcome).Inc()
}

func (c *Collectors) ViewMounted(delta float64) {
	if c == nil {
		return
	}
	c.LiveSubscribers.Add(delta)
}

// Package metrics exports event bus traffic as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/next-trace/scg-event-bus/eventbus"
)

const namespace = "scg_event_bus"

// Collector counts published, received, dropped, and handled events.
// It implements eventbus.Observer.
type Collector struct {
	published *prometheus.CounterVec
	received  *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	handled   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

var _ eventbus.Observer = (*Collector)(nil)

// NewCollector creates the bus metrics and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the broker.",
		}, []string{"event"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Deliveries taken off event queues.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Deliveries that reached no handler.",
		}, []string{"event", "reason"}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_invocations_total",
			Help:      "Handler invocations by outcome.",
		}, []string{"event", "handler", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Handler execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event", "handler"}),
	}

	for _, m := range []prometheus.Collector{c.published, c.received, c.dropped, c.handled, c.duration} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Collector) Published(event string) { c.published.WithLabelValues(event).Inc() }

func (c *Collector) Received(event string) { c.received.WithLabelValues(event).Inc() }

func (c *Collector) Dropped(event string, reason eventbus.DropReason) {
	c.dropped.WithLabelValues(event, string(reason)).Inc()
}

func (c *Collector) Handled(event, handler string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	c.handled.WithLabelValues(event, handler, outcome).Inc()
	c.duration.WithLabelValues(event, handler).Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

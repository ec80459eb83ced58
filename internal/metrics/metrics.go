// Package metrics exposes archive ingestion counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "slackarchive"

// Metrics holds the archive's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	inserted    *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	orphans     prometheus.Counter
	edits       prometheus.Counter
	reactions   *prometheus.CounterVec
	notFound    prometheus.Counter
	pagesClosed prometheus.Counter
	events      *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_inserted_total",
			Help:      "Messages and replies stored, by kind.",
		}, []string{"kind"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_total",
			Help:      "Inserts rejected because the timestamp already exists.",
		}, []string{"kind"}),
		orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_replies_total",
			Help:      "Replies dropped because their parent message is unknown.",
		}),
		edits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Message edits applied.",
		}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Reaction deltas applied, by operation.",
		}, []string{"op"}),
		notFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "targets_not_found_total",
			Help:      "Edits or reactions whose target message does not exist.",
		}),
		pagesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_closed_total",
			Help:      "Pages that reached capacity and were closed.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_events_total",
			Help:      "Live events received, by source and type.",
		}, []string{"source", "type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inserted, m.duplicates, m.orphans, m.edits,
		m.reactions, m.notFound, m.pagesClosed, m.events,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Inserted(kind string) {
	if m != nil {
		m.inserted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Duplicate(kind string) {
	if m != nil {
		m.duplicates.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Orphaned() {
	if m != nil {
		m.orphans.Inc()
	}
}

func (m *Metrics) Edited() {
	if m != nil {
		m.edits.Inc()
	}
}

func (m *Metrics) Reaction(add bool) {
	if m == nil {
		return
	}
	op := "remove"
	if add {
		op = "add"
	}
	m.reactions.WithLabelValues(op).Inc()
}

func (m *Metrics) NotFound() {
	if m != nil {
		m.notFound.Inc()
	}
}

func (m *Metrics) PageClosed() {
	if m != nil {
		m.pagesClosed.Inc()
	}
}

func (m *Metrics) Event(source, eventType string) {
	if m != nil {
		m.events.WithLabelValues(source, eventType).Inc()
	}
}

// Package prom implements an observer counting the events of the ledger by
// type, and summing the amounts they move.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.dedis.ch/custody"
	"go.dedis.ch/custody/core"
)

// Counter is an observer updating Prometheus collectors.
//
// - implements core.Observer
type Counter struct {
	events  *prometheus.CounterVec
	amounts *prometheus.CounterVec
}

// NewCounter returns a new counter. Its collectors are appended to the global
// list of collectors of the ledger.
func NewCounter() Counter {
	c := Counter{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_events_total",
			Help: "number of events emitted by type",
		}, []string{"type"}),
		amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "custody_event_amount_total",
			Help: "sum of the amounts of the events by type",
		}, []string{"type"}),
	}

	custody.PromCollectors = append(custody.PromCollectors, c.events, c.amounts)

	return c
}

// NotifyCallback implements core.Observer.
func (c Counter) NotifyCallback(evt core.Event) {
	c.events.WithLabelValues(string(evt.Type)).Inc()
	c.amounts.WithLabelValues(string(evt.Type)).Add(float64(evt.Amount))
}

// Collectors returns the collectors of the counter.
func (c Counter) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.events, c.amounts}
}

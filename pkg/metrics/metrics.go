// Package metrics exposes handshake telemetry as prometheus collectors.
//
// All methods are safe on a nil *Handshake, so components can take an
// optional collector without guarding every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "netauth"

// Outcome label values.
const (
	OutcomeAdmitted = "admitted"
)

// Handshake holds the handshake collectors.
type Handshake struct {
	Attempts *prometheus.CounterVec   // attempts by flow
	Outcomes *prometheus.CounterVec   // completed handshakes by outcome
	Latency  *prometheus.HistogramVec // handshake duration by outcome
	Sessions prometheus.Gauge         // live sessions
}

// NewHandshake creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewHandshake(reg prometheus.Registerer) (*Handshake, error) {
	h := &Handshake{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "handshake",
			Name:      "attempts_total",
			Help:      "Handshakes started, by flow.",
		}, []string{"flow"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "handshake",
			Name:      "outcomes_total",
			Help:      "Handshakes finished, by outcome.",
		}, []string{"outcome"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "handshake",
			Name:      "duration_seconds",
			Help:      "Time from accept to admission or rejection.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"outcome"}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions",
			Help:      "Live admitted sessions.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{h.Attempts, h.Outcomes, h.Latency, h.Sessions} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// Started records the start of a handshake on flow.
func (h *Handshake) Started(flow string) {
	if h == nil {
		return
	}
	h.Attempts.WithLabelValues(flow).Inc()
}

// Finished records a finished handshake.
func (h *Handshake) Finished(outcome string, d time.Duration) {
	if h == nil {
		return
	}
	h.Outcomes.WithLabelValues(outcome).Inc()
	h.Latency.WithLabelValues(outcome).Observe(d.Seconds())
}

// SessionAdded increments the live session gauge.
func (h *Handshake) SessionAdded() {
	if h == nil {
		return
	}
	h.Sessions.Inc()
}

// SessionRemoved decrements the live session gauge.
func (h *Handshake) SessionRemoved() {
	if h == nil {
		return
	}
	h.Sessions.Dec()
}

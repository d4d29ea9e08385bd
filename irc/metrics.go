// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package irc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each Server has its own
// registry, so several servers can live in one process (as in tests).
type Metrics struct {
	Registry *prometheus.Registry

	sessions      prometheus.Gauge
	connections   *prometheus.CounterVec
	channels      prometheus.Gauge
	commands      *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	relayRequests *prometheus.CounterVec
	relayDuration *prometheus.HistogramVec
	relayOutcomes *prometheus.CounterVec
	rehashes      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relayd_sessions",
			Help: "Currently connected sessions",
		}),
		connections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relayd_connections_total",
			Help: "Accepted connections by transport",
		}, []string{"transport"}),
		channels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relayd_channels",
			Help: "Channels known to the server",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relayd_commands_total",
			Help: "Commands received by name",
		}, []string{"command"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relayd_deliveries_total",
			Help: "Messages fanned out to sessions by recipient kind",
		}, []string{"kind"}),
		relayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relayd_relay_requests_total",
			Help: "HTTP requests made to the message backend",
		}, []string{"endpoint", "code"}),
		relayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relayd_relay_request_duration_seconds",
			Help:    "Latency of requests to the message backend",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		relayOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relayd_relay_outcomes_total",
			Help: "Relayed envelopes by final outcome",
		}, []string{"outcome"}),
		rehashes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relayd_rehashes_total",
			Help: "Configuration reloads by result",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) SessionOpened(transport string) {
	m.sessions.Inc()
	m.connections.WithLabelValues(transport).Inc()
}

func (m *Metrics) SessionClosed() {
	m.sessions.Dec()
}

func (m *Metrics) ChannelsChanged(count int) {
	m.channels.Set(float64(count))
}

// CommandReceived counts a command; names outside the handler table share
// one label so clients cannot grow the label set.
func (m *Metrics) CommandReceived(name string) {
	if _, ok := Commands[name]; !ok {
		name = "unknown"
	}
	m.commands.WithLabelValues(name).Inc()
}

func (m *Metrics) MessageDelivered(kind string, count int) {
	m.deliveries.WithLabelValues(kind).Add(float64(count))
}

// ObserveRelay is installed as the relay client's round-trip hook.
func (m *Metrics) ObserveRelay(endpoint string, status int, elapsed time.Duration) {
	m.relayRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.relayDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) RelayOutcome(outcome string) {
	m.relayOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Rehashed(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.rehashes.WithLabelValues(result).Inc()
}

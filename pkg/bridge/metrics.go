package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	clients  prometheus.Gauge
	commands *prometheus.CounterVec
	dropped  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "globe",
			Subsystem: "bridge",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "globe",
			Subsystem: "bridge",
			Name:      "commands_total",
			Help:      "Client commands handled, by type and outcome.",
		}, []string{"type", "outcome"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "globe",
			Subsystem: "bridge",
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped because a client fell behind.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.clients, m.commands, m.dropped)
	}
	return m
}

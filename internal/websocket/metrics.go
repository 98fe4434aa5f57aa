package websocket

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	delivered   prometheus.Counter
	dropped     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wedding_site_ws_connections",
			Help: "Current number of active websocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wedding_site_ws_rooms",
			Help: "Current number of registry rooms with watchers.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wedding_site_ws_messages_delivered_total",
			Help: "Total websocket messages delivered to clients.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wedding_site_ws_slow_clients_dropped_total",
			Help: "Clients disconnected because their send buffer was full.",
		}),
	}
	if reg != nil {
		m.connections = register(reg, m.connections)
		m.rooms = register(reg, m.rooms)
		m.delivered = register(reg, m.delivered)
		m.dropped = register(reg, m.dropped)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

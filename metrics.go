package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// serverMetrics is created once in ServePage and handed down by reference,
// never held in a package variable.
type serverMetrics struct {
	registry *prometheus.Registry

	roomsOpen     prometheus.Gauge
	commands      *prometheus.CounterVec
	gamesStarted  prometheus.Counter
	gamesFinished prometheus.Counter
}

func newMetrics() *serverMetrics {
	registry := prometheus.NewRegistry()

	m := &serverMetrics{
		registry: registry,
		roomsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beatably_rooms_open",
			Help: "Number of rooms currently registered.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beatably_commands_total",
			Help: "Commands processed, by type and outcome.",
		}, []string{"type", "outcome"}),
		gamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beatably_games_started_total",
			Help: "Games started.",
		}),
		gamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beatably_games_finished_total",
			Help: "Games that reached game-over.",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		m.roomsOpen,
		m.commands,
		m.gamesStarted,
		m.gamesFinished,
	)

	return m
}

func (m *serverMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *serverMetrics) countCommand(msgType string, err error) {
	outcome := "accepted"
	if err != nil {
		outcome = "rejected"
	}
	m.commands.WithLabelValues(msgType, outcome).Inc()
}

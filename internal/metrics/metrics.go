// Package metrics defines the Prometheus instruments exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Inbound event metrics
var (
	// EventsReceivedTotal counts inbound client events by event name.
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_received_total",
			Help: "Inbound client events by event name",
		},
		[]string{"event"},
	)

	// EventsDroppedTotal counts silently dropped events by reason.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Silently dropped events by reason (rate_limited, unknown_participant, malformed, no_output)",
		},
		[]string{"event", "reason"},
	)

	// ConductorRejectionsTotal counts conductor join attempts rejected because the slot was taken.
	ConductorRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conductor_rejections_total",
			Help: "Conductor join attempts rejected because the slot was occupied",
		},
	)
)

// Show state metrics
var (
	// ShowParticipants tracks the current number of participants in the show.
	ShowParticipants = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "show_participants",
			Help: "Current number of participants in the show",
		},
	)

	// ShowHasConductor is 1 when the conductor slot is occupied.
	ShowHasConductor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "show_has_conductor",
			Help: "Whether the conductor slot is occupied (0 or 1)",
		},
	)

	// ReaperEvictionsTotal counts participants removed by the inactivity reaper.
	ReaperEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reaper_evictions_total",
			Help: "Participants evicted for inactivity",
		},
	)
)

// Outbound sound-control metrics
var (
	// OscSendsTotal counts outbound OSC messages by path and status.
	OscSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osc_sends_total",
			Help: "Outbound OSC messages by path (solo, crowd) and status (ok, error)",
		},
		[]string{"path", "status"},
	)
)

// WebSocket hub metrics
var (
	// HubConnectedClients tracks the number of connected WebSocket clients.
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	// HubSlowClientsEvicted counts clients disconnected for not draining their send buffer.
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Clients disconnected because their send buffer stayed full",
		},
	)

	// HubPanicsTotal counts recovered panics in the hub goroutine.
	HubPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_panics_total",
			Help: "Recovered panics in the hub goroutine",
		},
	)
)

// Connection admission metrics
var (
	// ConnectionsRejectedTotal counts WebSocket connections rejected at admission by reason.
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connections_rejected_total",
			Help: "WebSocket connections rejected at admission by reason",
		},
		[]string{"reason"},
	)
)

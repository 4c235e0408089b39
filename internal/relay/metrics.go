package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total number of accepted websocket connections",
		},
		[]string{"identity"}, // "present" or "absent"
	)

	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Current number of live websocket connections",
		},
	)

	onlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_online_users",
			Help: "Current number of identities in the presence registry",
		},
	)

	presenceBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_presence_broadcasts_total",
			Help: "Total number of presence broadcasts",
		},
		[]string{"trigger"}, // "connect" or "disconnect"
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Total number of sendMessage events by outcome",
		},
		[]string{"result"},
	)

	framesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Outbound frames dropped because a send queue was full or closed",
		},
	)

	malformedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_malformed_events_total",
			Help: "Inbound frames dropped during validation",
		},
		[]string{"reason"},
	)

	handshakesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_handshakes_rejected_total",
			Help: "Websocket handshakes rejected before upgrade",
		},
		[]string{"reason"},
	)
)

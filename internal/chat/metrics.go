package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics.
	framesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curelink_frames_received_total",
			Help: "Inbound websocket frames by kind",
		},
		[]string{"kind"},
	)

	frameParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curelink_frame_parse_failures_total",
			Help: "Inbound frames dropped because they failed to parse",
		},
	)

	reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curelink_reconnects_total",
			Help: "Reconnect attempts after an unexpected close",
		},
	)

	connectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "curelink_connection_state",
			Help: "Current connection state (0 connecting, 1 open, 2 closed-pending-retry)",
		},
	)

	messagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curelink_messages_sent_total",
			Help: "User messages transmitted over the websocket",
		},
	)

	// History metrics.
	historyFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curelink_history_fetches_total",
			Help: "History page fetches by result",
		},
		[]string{"result"}, // "ok", "error", "dropped"
	)

	errorFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "curelink_error_frames_total",
			Help: "Protocol-level error frames received",
		},
	)
)

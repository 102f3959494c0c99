package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Live channel metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Open frame channel connections",
		},
	)

	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_frames_received_total",
			Help: "Inbound frames by command",
		},
		[]string{"command"},
	)

	ConnectRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_connect_rejected_total",
			Help: "Rejected CONNECT frames by error code",
		},
		[]string{"code"},
	)

	// Delivery metrics
	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Messages written to the store",
		},
		[]string{"room_kind"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Delivery attempts by target and outcome",
		},
		[]string{"target", "outcome"}, // target: room|notify, outcome: ok|failed|timeout
	)

	DeliveryLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_delivery_latency_seconds",
			Help:    "Time from inbound message to completed fan-out",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Room metrics
	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rooms_created_total",
			Help: "Rooms created by kind",
		},
		[]string{"kind"},
	)

	RoomCreateConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_room_create_conflicts_total",
			Help: "Concurrent room creations resolved by re-read",
		},
	)

	RoomCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_room_cache_lookups_total",
			Help: "Room cache lookups by result",
		},
		[]string{"result"}, // hit|miss|error
	)

	// Presence metrics
	PresenceMembers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_presence_members",
			Help: "Members with at least one active room subscription",
		},
	)

	PresenceSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_presence_subscriptions",
			Help: "Active room subscriptions across all connections",
		},
	)
)

const (
	TargetRoom   = "room"
	TargetNotify = "notify"

	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

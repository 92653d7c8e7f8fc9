package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_gateway_online_conns",
		Help: "Current live websocket connections.",
	})
	OpenRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_gateway_open_rooms",
		Help: "Order rooms with at least one member.",
	})

	MessagesFanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_gateway_messages_fanned_total",
		Help: "Total events queued to room members.",
	})
	FanoutBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_gateway_fanout_backpressure_total",
		Help: "Total times a member's outbound queue was full and the event was dropped.",
	})
	OfflineDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_gateway_offline_deliveries_total",
		Help: "Messages persisted with no live counterpart in the room.",
	})
	StatusUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_gateway_status_updates_total",
		Help: "Status update events consumed from the broker.",
	})
)

func Register() {
	prometheus.MustRegister(
		OnlineConns, OpenRooms,
		MessagesFanned, FanoutBackpressure, OfflineDeliveries, StatusUpdates,
	)
}

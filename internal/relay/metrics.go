package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	activeParticipants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_active_participants",
			Help: "Number of registered room participants",
		},
	)
	envelopesRelayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_envelopes_relayed_total",
			Help: "Number of envelopes fanned out to the room",
		},
	)
	registerErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_register_errors_total",
			Help: "Number of rejected registrations",
		},
	)
	deliveryErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_delivery_errors_total",
			Help: "Number of envelopes rejected before fan-out",
		},
	)
	openConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_open_connections",
			Help: "Number of attached websocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(activeParticipants)
	prometheus.MustRegister(envelopesRelayed)
	prometheus.MustRegister(registerErrors)
	prometheus.MustRegister(deliveryErrors)
	prometheus.MustRegister(openConnections)
}

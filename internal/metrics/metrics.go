package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OrdersCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		},
	)

	OrdersFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_finished_total",
			Help: "Total number of orders by terminal status",
		},
		[]string{"status"},
	)

	WebhooksAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhooks_accepted_total",
			Help: "Total number of webhook callbacks that applied a transition",
		},
	)

	WebhooksRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_rejected_total",
			Help: "Total number of webhook callbacks dropped without a transition",
		},
		[]string{"reason"},
	)

	EventsPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published to the notification hub",
		},
	)

	StreamConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connections",
			Help: "Current number of live event stream connections",
		},
	)
)

// Register registers all application metrics with the default registry.
func Register() {
	prometheus.MustRegister(OrdersCreatedTotal)
	prometheus.MustRegister(OrdersFinishedTotal)
	prometheus.MustRegister(WebhooksAcceptedTotal)
	prometheus.MustRegister(WebhooksRejectedTotal)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(StreamConnections)
}

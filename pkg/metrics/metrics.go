// Package metrics registers the messenger's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "messages_created_total",
		Help:      "Messages stored, by chat type and kind (user or system).",
	}, []string{"chat_type", "kind"})

	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "delivery_status_transitions_total",
		Help:      "Messages moved to a new delivery status, by target status.",
	}, []string{"status"})

	Reactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "reactions_total",
		Help:      "Reaction changes, by operation.",
	}, []string{"op"})

	TicketStatusChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "ticket_status_changes_total",
		Help:      "Ticket status updates, by new status.",
	}, []string{"status"})

	MessagesPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "messages_purged_total",
		Help:      "Soft-deleted messages removed by retention.",
	})

	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "send_rate_limited_total",
		Help:      "Send requests rejected by the per-user limiter.",
	})

	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "messenger",
		Name:      "ws_active_connections",
		Help:      "Open WebSocket connections.",
	})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Name:      "events_published_total",
		Help:      "Outbound domain events, by result.",
	}, []string{"result"})
)

// Collectors lists every collector of the package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		MessagesCreated,
		StatusTransitions,
		Reactions,
		TicketStatusChanges,
		MessagesPurged,
		RateLimited,
		ActiveConnections,
		EventsPublished,
	}
}

// Init registers the collectors on the default registry. Call once from main.
func Init() {
	prometheus.MustRegister(Collectors()...)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

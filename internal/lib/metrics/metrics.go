package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "widget",
		Name:      "ws_connections",
		Help:      "Open human-chat websocket connections.",
	})

	GuidedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "widget",
		Name:      "guided_sessions",
		Help:      "Live guided conversation sessions.",
	})

	GuidedSelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "widget",
		Name:      "guided_selections_total",
		Help:      "Option selections by outcome.",
	}, []string{"outcome"})

	HumanChatEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "widget",
		Name:      "human_chat_events_total",
		Help:      "Human-chat session lifecycle events.",
	}, []string{"event"})

	AssistantRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "widget",
		Name:      "assistant_request_seconds",
		Help:      "AI assistant round trip duration.",
		Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 40},
	}, []string{"status"})
)

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

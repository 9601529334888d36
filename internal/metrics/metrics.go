package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_client_polls_total",
		Help: "Fetches issued by the adaptive poller.",
	}, []string{"resource"})

	PollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_client_poll_errors_total",
		Help: "Fetches that ended in error.",
	}, []string{"resource"})

	StaleResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_client_stale_responses_total",
		Help: "Fetch results discarded because a newer result was already applied or the resource was closed.",
	}, []string{"resource"})

	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_client_realtime_reconnects_total",
		Help: "Realtime channel reconnect attempts.",
	})

	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_client_realtime_messages_total",
		Help: "Realtime messages received, by type.",
	}, []string{"type"})

	ConnectionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queue_client_realtime_connection_open",
		Help: "1 while the realtime socket is open.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

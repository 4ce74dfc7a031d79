package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var knownEventTypes = map[string]bool{
	"push":         true,
	"pull_request": true,
	"ping":         true,
}

type IngestMetrics struct {
	deliveries *prometheus.CounterVec
}

func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	return &IngestMetrics{
		deliveries: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "deliveries_total",
			Help:      "Webhook deliveries by event type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
}

// ObserveDelivery counts one delivery. Unknown event types share a label.
func (m *IngestMetrics) ObserveDelivery(eventType, outcome string) {
	et := strings.ToLower(strings.TrimSpace(eventType))
	switch {
	case et == "":
		et = "none"
	case !knownEventTypes[et]:
		et = "other"
	}
	m.deliveries.WithLabelValues(et, outcome).Inc()
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerpulse/engine/internal/store"
)

// Collectors holds the Prometheus metrics exported on /metrics. Each
// instance owns its registry so tests can create as many as they like.
type Collectors struct {
	Registry *prometheus.Registry

	// Feed metrics
	MessagesReceived *prometheus.CounterVec
	TxAccepted       prometheus.Counter
	TxDuplicates     prometheus.Counter
	DecodeErrors     *prometheus.CounterVec
	WhalesDetected   prometheus.Counter
	HandleLatency    prometheus.Histogram

	// Connection metrics
	ConnectionState  prometheus.Gauge
	StateTransitions *prometheus.CounterVec

	// Window metrics
	WindowEvents     prometheus.Gauge
	WindowVolumeXRP  prometheus.Gauge
	WindowMaxXRP     prometheus.Gauge
	ThroughputPerSec prometheus.Gauge

	// Publisher metrics
	UpdatesPublished prometheus.Counter
	UpdatesReplaced  prometheus.Counter
	WhalesDropped    prometheus.Counter
	Subscribers      prometheus.Gauge
}

// NewCollectors registers every metric under namespace on a fresh registry.
func NewCollectors(namespace string) *Collectors {
	if namespace == "" {
		namespace = "ledgerpulse"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collectors{
		Registry: reg,

		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "messages_received_total",
			Help:      "Raw messages received by transport",
		}, []string{"transport"}),
		TxAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "transactions_accepted_total",
			Help:      "Payments decoded and inserted into the window",
		}),
		TxDuplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "transactions_duplicate_total",
			Help:      "Payments dropped because the hash was already in the window",
		}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "decode_errors_total",
			Help:      "Messages rejected by the decoder by reason",
		}, []string{"reason"}),
		WhalesDetected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "whales_detected_total",
			Help:      "Payments at or above the whale threshold",
		}),
		HandleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "handle_duration_seconds",
			Help:      "Time spent decoding, inserting and classifying one message",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),

		ConnectionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Connection state (0 disconnected, 1 connecting, 2 live, 3 degraded)",
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "transitions_total",
			Help:      "Connection state transitions by target state",
		}, []string{"to"}),

		WindowEvents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "window",
			Name:      "events",
			Help:      "Payments currently inside the sliding window",
		}),
		WindowVolumeXRP: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "window",
			Name:      "volume_xrp",
			Help:      "Total XRP moved inside the sliding window",
		}),
		WindowMaxXRP: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "window",
			Name:      "max_amount_xrp",
			Help:      "Largest single payment inside the sliding window",
		}),
		ThroughputPerSec: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "window",
			Name:      "throughput_per_second",
			Help:      "Payments per second averaged over the window length",
		}),

		UpdatesPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "updates_published_total",
			Help:      "Stats updates emitted",
		}),
		UpdatesReplaced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "updates_replaced_total",
			Help:      "Undelivered updates replaced by a newer one for a slow subscriber",
		}),
		WhalesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "whales_dropped_total",
			Help:      "Whale events dropped because the pending queue was full",
		}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "publisher",
			Name:      "subscribers",
			Help:      "Current number of subscribers",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
}

// ObserveTransition matches the ingest.Manager transition callback.
func (c *Collectors) ObserveTransition(_, to store.ConnectionState) {
	c.ConnectionState.Set(float64(to))
	c.StateTransitions.WithLabelValues(to.String()).Inc()
}

// ObserveSnapshot copies the window aggregates into gauges.
func (c *Collectors) ObserveSnapshot(snap store.WindowSnapshot) {
	c.WindowEvents.Set(float64(snap.Count))
	c.WindowVolumeXRP.Set(float64(snap.VolumeInWindow) / store.DropsPerXRP)
	c.WindowMaxXRP.Set(float64(snap.MaxAmountInWindow) / store.DropsPerXRP)
	c.ThroughputPerSec.Set(snap.ThroughputPerSecond)
}

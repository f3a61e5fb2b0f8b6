package board

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the board subsystem.
type Metrics struct {
	PollsTotal         *prometheus.CounterVec
	PollDuration       prometheus.Histogram
	PollsDiscarded     prometheus.Counter
	QueueSize          prometheus.Gauge
	DiscrepanciesShown prometheus.Gauge
	ClearsTotal        *prometheus.CounterVec
	ExplainsTotal      *prometheus.CounterVec
	ExplainDuration    prometheus.Histogram
}

// NewMetrics registers and returns board metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagedesk_board_polls_total",
			Help: "Total patient list refreshes by outcome.",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triagedesk_board_poll_duration_seconds",
			Help:    "Duration of patient list refreshes in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		PollsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triagedesk_board_polls_discarded_total",
			Help: "Refresh responses discarded because a newer request was issued.",
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triagedesk_board_queue_size",
			Help: "Patients on the board after the last applied refresh.",
		}),
		DiscrepanciesShown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triagedesk_board_discrepancies",
			Help: "Patients whose manual and AI priorities disagree.",
		}),
		ClearsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagedesk_board_clears_total",
			Help: "Delete-all requests by outcome.",
		}, []string{"outcome"}),
		ExplainsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagedesk_board_explains_total",
			Help: "Explanation lookups by outcome (fetched, cached, error).",
		}, []string{"outcome"}),
		ExplainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triagedesk_board_explain_duration_seconds",
			Help:    "Duration of explanation fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}),
	}

	reg.MustRegister(
		m.PollsTotal,
		m.PollDuration,
		m.PollsDiscarded,
		m.QueueSize,
		m.DiscrepanciesShown,
		m.ClearsTotal,
		m.ExplainsTotal,
		m.ExplainDuration,
	)
	return m
}

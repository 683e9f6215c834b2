package feedback

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/harken/internal/triage"
)

// Metrics holds Prometheus metrics for the feedback subsystem.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SubmissionsTotal     *prometheus.CounterVec
	ClassificationsTotal *prometheus.CounterVec
	TriageDuration       prometheus.Histogram
	NotificationsTotal   *prometheus.CounterVec
	NotifyDuration       *prometheus.HistogramVec
	TransitionsTotal     *prometheus.CounterVec
	EscalationsTotal     prometheus.Counter
}

// NewMetrics registers and returns feedback metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harken_submissions_total",
			Help: "Total feedback submissions by result.",
		}, []string{"result"}),
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harken_classifications_total",
			Help: "Stored classifications by category, priority and sentiment.",
		}, []string{"category", "priority", "sentiment"}),
		TriageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harken_triage_duration_seconds",
			Help:    "Time spent classifying a single message.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8), // 10us .. ~164ms
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harken_notifications_total",
			Help: "Notification deliveries by notifier, event and result.",
		}, []string{"notifier", "event", "result"}),
		NotifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harken_notify_duration_seconds",
			Help:    "Duration of notification deliveries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}, []string{"notifier"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harken_status_transitions_total",
			Help: "Status changes applied to feedback records.",
		}, []string{"from", "to"}),
		EscalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harken_escalations_total",
			Help: "Records escalated by the stale-feedback sweep.",
		}),
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.ClassificationsTotal,
		m.TriageDuration,
		m.NotificationsTotal,
		m.NotifyDuration,
		m.TransitionsTotal,
		m.EscalationsTotal,
	)

	return m
}

func (m *Metrics) submission(result string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) classified(c triage.Classification, seconds float64) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(string(c.Category), string(c.Priority), string(c.Sentiment)).Inc()
	m.TriageDuration.Observe(seconds)
}

func (m *Metrics) notified(notifier string, kind EventKind, err error, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.NotificationsTotal.WithLabelValues(notifier, string(kind), result).Inc()
	m.NotifyDuration.WithLabelValues(notifier).Observe(seconds)
}

func (m *Metrics) transition(from, to triage.Status) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) escalated(n int) {
	if m == nil {
		return
	}
	m.EscalationsTotal.Add(float64(n))
}

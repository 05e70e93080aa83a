package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registration intake and review.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Submissions        *prometheus.CounterVec
	DuplicateMatches   *prometheus.CounterVec
	DetectionFailures  prometheus.Counter
	DetectionLatency   prometheus.Histogram
	AllocationLatency  prometheus.Histogram
	AllocationFailures *prometheus.CounterVec
	ReviewActions      *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
}

// New registers all registry metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_submissions_total",
			Help: "Registration submissions by outcome",
		}, []string{"outcome"}), // outcome: pending_review, flagged, rejected code

		DuplicateMatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_duplicate_matches_total",
			Help: "Duplicate matches found by rule",
		}, []string{"reason"}),

		DetectionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "registry_duplicate_detection_unavailable_total",
			Help: "Submissions accepted without duplicate detection because the store was unavailable",
		}),

		DetectionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_duplicate_detection_duration_seconds",
			Help:    "Duration of the four-rule duplicate detection fan-out",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		AllocationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_cid_allocation_duration_seconds",
			Help:    "Duration of Community ID allocation including lock wait",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		AllocationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_cid_allocation_failures_total",
			Help: "Community ID allocation failures by code",
		}, []string{"code"}),

		ReviewActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_review_actions_total",
			Help: "Admin review actions by action",
		}, []string{"action"}),

		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_notifications_total",
			Help: "Notification delivery attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncSubmission(outcome string) {
	if m != nil {
		m.Submissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) IncDuplicateMatch(reason string) {
	if m != nil {
		m.DuplicateMatches.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) IncDetectionUnavailable() {
	if m != nil {
		m.DetectionFailures.Inc()
	}
}

func (m *Metrics) ObserveDetection(d time.Duration) {
	if m != nil {
		m.DetectionLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveAllocation(d time.Duration) {
	if m != nil {
		m.AllocationLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncAllocationFailure(code string) {
	if m != nil {
		m.AllocationFailures.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) IncReviewAction(action string) {
	if m != nil {
		m.ReviewActions.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) AddNotifications(result string, n int) {
	if m != nil && n > 0 {
		m.Notifications.WithLabelValues(result).Add(float64(n))
	}
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// WorkflowMetrics exposes counters/histograms for the scheduling workflow.
type WorkflowMetrics struct {
	stageTransitions *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	escalations      *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	remindersSent    *prometheus.CounterVec
	messageLatency   *prometheus.HistogramVec
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	m := &WorkflowMetrics{
		stageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "workflow",
			Name:      "stage_transitions_total",
			Help:      "Total stage transitions",
		}, []string{"from", "to"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "workflow",
			Name:      "stage_failures_total",
			Help:      "Total recoverable failures recorded per stage",
		}, []string{"stage"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "workflow",
			Name:      "escalations_total",
			Help:      "Total sessions escalated to human staff",
		}, []string{"stage", "reason"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "workflow",
			Name:      "bookings_total",
			Help:      "Total bookings created",
		}, []string{"appointment_type"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total notification attempts",
		}, []string{"channel", "status"}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicflow",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Total reminders sent per tier",
		}, []string{"tier"}),
		messageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicflow",
			Subsystem: "workflow",
			Name:      "message_latency_seconds",
			Help:      "Latency of inbound message handling",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.stageTransitions, m.stageFailures, m.escalations,
		m.bookingsTotal, m.notifications, m.remindersSent, m.messageLatency)
	return m
}

func (m *WorkflowMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(from, to).Inc()
}

func (m *WorkflowMetrics) ObserveFailure(stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(stage).Inc()
}

func (m *WorkflowMetrics) ObserveEscalation(stage, reason string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(stage, reason).Inc()
}

func (m *WorkflowMetrics) ObserveBooking(appointmentType string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(appointmentType).Inc()
}

func (m *WorkflowMetrics) ObserveNotification(channel, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, status).Inc()
}

func (m *WorkflowMetrics) ObserveReminder(tier string) {
	if m == nil {
		return
	}
	m.remindersSent.WithLabelValues(tier).Inc()
}

func (m *WorkflowMetrics) ObserveMessageLatency(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.messageLatency.WithLabelValues(stage).Observe(seconds)
}

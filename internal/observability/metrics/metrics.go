package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms shared by the four worker
// pipelines.
type PipelineMetrics struct {
	dialoguesStarted  *prometheus.CounterVec
	turnsProcessed    *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
	llmCost           prometheus.Counter
	remindersSent     *prometheus.CounterVec
	notificationsSent *prometheus.CounterVec
	apiErrors         *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		dialoguesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hragent",
			Subsystem: "poller",
			Name:      "dialogues_started_total",
			Help:      "Dialogues opened from new responses",
		}, []string{"recruiter"}),
		turnsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hragent",
			Subsystem: "processor",
			Name:      "turns_total",
			Help:      "Dialogue turns processed",
		}, []string{"outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hragent",
			Subsystem: "processor",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one dialogue turn end to end",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
		llmCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hragent",
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Accumulated model spend in USD",
		}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hragent",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Nudges and interview reminders sent",
		}, []string{"kind"}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hragent",
			Subsystem: "notifier",
			Name:      "sent_total",
			Help:      "Recruiter notifications delivered",
		}, []string{"queue", "status"}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hragent",
			Subsystem: "jobboard",
			Name:      "errors_total",
			Help:      "Job board API failures",
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.dialoguesStarted, m.turnsProcessed, m.turnLatency,
		m.llmCost, m.remindersSent, m.notificationsSent, m.apiErrors,
	)
	return m
}

func (m *PipelineMetrics) ObserveDialogueStarted(recruiter string) {
	if m == nil {
		return
	}
	m.dialoguesStarted.WithLabelValues(recruiter).Inc()
}

func (m *PipelineMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsProcessed.WithLabelValues(outcome).Inc()
}

func (m *PipelineMetrics) ObserveTurnLatency(state string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(state).Observe(seconds)
}

func (m *PipelineMetrics) ObserveLLMCost(usd float64) {
	if m == nil {
		return
	}
	m.llmCost.Add(usd)
}

func (m *PipelineMetrics) ObserveReminder(kind string) {
	if m == nil {
		return
	}
	m.remindersSent.WithLabelValues(kind).Inc()
}

func (m *PipelineMetrics) ObserveNotification(queue, status string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(queue, status).Inc()
}

func (m *PipelineMetrics) ObserveAPIError(operation string) {
	if m == nil {
		return
	}
	m.apiErrors.WithLabelValues(operation).Inc()
}

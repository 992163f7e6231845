package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for the reminder-call flow.
type CallMetrics struct {
	callsInitiated    prometheus.Counter
	dialFailures      prometheus.Counter
	statusWebhooks    *prometheus.CounterVec
	responseDigits    *prometheus.CounterVec
	audioServes       *prometheus.CounterVec
	synthesisDuration prometheus.Histogram
	synthesisFailures prometheus.Counter
	webhookLatency    *prometheus.HistogramVec
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		callsInitiated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Subsystem: "calls",
			Name:      "initiated_total",
			Help:      "Total outbound reminder calls dialed",
		}),
		dialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Subsystem: "calls",
			Name:      "dial_failures_total",
			Help:      "Total provider dial failures",
		}),
		statusWebhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Subsystem: "calls",
			Name:      "status_webhook_total",
			Help:      "Total provider status callbacks by call status",
		}, []string{"status"}),
		responseDigits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Subsystem: "calls",
			Name:      "patient_response_total",
			Help:      "Total recorded patient keypad responses",
		}, []string{"response"}),
		audioServes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reminders",
			Subsystem: "audio",
			Name:      "serve_total",
			Help:      "Total audio responses by source (cache or on_demand)",
		}, []string{"source"}),
		synthesisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reminders",
			Subsystem: "audio",
			Name:      "synthesis_duration_seconds",
			Help:      "Latency of speech synthesis requests",
			Buckets:   prometheus.DefBuckets,
		}),
		synthesisFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reminders",
			Subsystem: "audio",
			Name:      "synthesis_failures_total",
			Help:      "Total failed speech synthesis requests",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reminders",
			Subsystem: "calls",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of provider webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.callsInitiated,
		m.dialFailures,
		m.statusWebhooks,
		m.responseDigits,
		m.audioServes,
		m.synthesisDuration,
		m.synthesisFailures,
		m.webhookLatency,
	)
	return m
}

func (m *CallMetrics) ObserveCallInitiated() {
	if m == nil {
		return
	}
	m.callsInitiated.Inc()
}

func (m *CallMetrics) ObserveDialFailure() {
	if m == nil {
		return
	}
	m.dialFailures.Inc()
}

func (m *CallMetrics) ObserveStatusWebhook(status string) {
	if m == nil {
		return
	}
	m.statusWebhooks.WithLabelValues(status).Inc()
}

func (m *CallMetrics) ObserveResponseDigit(response string) {
	if m == nil {
		return
	}
	m.responseDigits.WithLabelValues(response).Inc()
}

func (m *CallMetrics) ObserveAudioServe(source string) {
	if m == nil {
		return
	}
	m.audioServes.WithLabelValues(source).Inc()
}

func (m *CallMetrics) ObserveSynthesisDuration(seconds float64) {
	if m == nil {
		return
	}
	m.synthesisDuration.Observe(seconds)
}

func (m *CallMetrics) ObserveSynthesisFailure() {
	if m == nil {
		return
	}
	m.synthesisFailures.Inc()
}

func (m *CallMetrics) ObserveWebhookLatency(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(endpoint).Observe(seconds)
}

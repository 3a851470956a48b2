package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registration service.
type Metrics struct {
	RegistrationsCreated prometheus.Counter
	DuplicateSubmits     prometheus.Counter
	Admissions           *prometheus.CounterVec
	Cancellations        prometheus.Counter
	DataEdits            prometheus.Counter

	MailEnqueued prometheus.Counter
	MailAttempts prometheus.Counter
	MailFailures prometheus.Counter
	MailDropped  prometheus.Counter

	EndpointLatency *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RegistrationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberdb_registrations_created_total",
			Help: "Total number of pending registrations created by submit",
		}),
		DuplicateSubmits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberdb_duplicate_submits_total",
			Help: "Total number of submits that matched an existing registration",
		}),
		Admissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "memberdb_admissions_total",
			Help: "Total number of admission decisions, labeled by outcome status",
		}, []string{"status"}),
		Cancellations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberdb_cancellations_total",
			Help: "Total number of canceled registrations",
		}),
		DataEdits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberdb_data_edits_total",
			Help: "Total number of post-admission answer edits",
		}),
		MailEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberdb_mail_enqueued_total",
			Help: "Total number of messages handed to the notification queue",
		}),
		MailAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberdb_mail_attempts_total",
			Help: "Total number of delivery attempts, including retries",
		}),
		MailFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberdb_mail_failures_total",
			Help: "Total number of messages dropped after exhausting retries",
		}),
		MailDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "memberdb_mail_dropped_total",
			Help: "Total number of messages dropped because the queue was full",
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memberdb_endpoint_latency_seconds",
			Help:    "Latency of endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) IncrementRegistrationsCreated() {
	m.RegistrationsCreated.Inc()
}

func (m *Metrics) IncrementDuplicateSubmits() {
	m.DuplicateSubmits.Inc()
}

// IncrementAdmissions records one admission decision with its outcome status.
func (m *Metrics) IncrementAdmissions(status string) {
	m.Admissions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementCancellations() {
	m.Cancellations.Inc()
}

func (m *Metrics) IncrementDataEdits() {
	m.DataEdits.Inc()
}

func (m *Metrics) IncrementMailEnqueued() {
	m.MailEnqueued.Inc()
}

func (m *Metrics) IncrementMailAttempts() {
	m.MailAttempts.Inc()
}

func (m *Metrics) IncrementMailFailures() {
	m.MailFailures.Inc()
}

func (m *Metrics) IncrementMailDropped() {
	m.MailDropped.Inc()
}

// ObserveEndpointLatency records the latency for a given endpoint.
func (m *Metrics) ObserveEndpointLatency(endpoint string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

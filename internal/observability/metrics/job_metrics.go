package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonNotFound             = "not_found"
	JobReasonUnknown              = "unknown"
)

// JobMetrics captures background job health for the reconcile scheduler.
type JobMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	processed *prometheus.CounterVec
	drifted   *prometheus.CounterVec
}

func NewJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "tokenledger"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tokenledger_job_runs_total",
			Help:        "Background job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "tokenledger_job_duration_seconds",
			Help:        "Background job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			ConstLabels: constLabels,
		}, []string{"job"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tokenledger_job_errors_total",
			Help:        "Background job errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tokenledger_job_items_processed_total",
			Help:        "Items processed by background jobs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		drifted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tokenledger_job_balance_drift_total",
			Help:        "Cached balances corrected by reconciliation.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	registerer.MustRegister(m.runs, m.duration, m.errors, m.processed, m.drifted)
	return m
}

func (m *JobMetrics) IncRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *JobMetrics) IncError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *JobMetrics) AddProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.processed.WithLabelValues(job).Add(float64(count))
}

func (m *JobMetrics) IncDrift(job string) {
	if m == nil {
		return
	}
	m.drifted.WithLabelValues(job).Inc()
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound):
		return JobReasonNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return JobReasonUniqueViolation
	case hasPGCode(err, "55P03"):
		return JobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return JobReasonSerializationFailure
	default:
		return JobReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

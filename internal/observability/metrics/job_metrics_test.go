package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "wrapped_deadline", err: fmt.Errorf("reconcile: %w", context.Canceled), want: JobReasonDeadlineExceeded},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: JobReasonNotFound},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: JobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: JobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyJobReason(tc.err))
		})
	}
}

func TestJobMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg, Config{ServiceName: "tokenledger", Environment: "test"})

	m.IncRun("reconcile")
	m.IncRun("reconcile")
	m.AddProcessed("reconcile", 3)
	m.AddProcessed("reconcile", 0)
	m.IncDrift("reconcile")
	m.IncError("reconcile", &pgconn.PgError{Code: "55P03"})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.runs.WithLabelValues("reconcile")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.processed.WithLabelValues("reconcile")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.drifted.WithLabelValues("reconcile")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.errors.WithLabelValues("reconcile", JobReasonDBLockTimeout)))
}

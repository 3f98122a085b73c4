package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

var errProviderDown = errors.New("provider_down")

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "provider", err: fmt.Errorf("dispatch: %w", errProviderDown), want: SchedulerJobReasonProvider},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
		})
	}
}

func TestSchedulerMetricsCounters(t *testing.T) {
	m := NewSchedulerMetricsForTest(prometheus.NewRegistry())

	m.AddBatchProcessed("dispatch_sweep", "success_fee_charges", 3)
	m.AddBatchProcessed("dispatch_sweep", "success_fee_charges", 0)
	m.SetRoyaltyTotal("2026-09", 200)
	m.ObserveDispatch("dispatched", 20*time.Millisecond)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.batchProcessed.WithLabelValues("dispatch_sweep", "success_fee_charges")))
	assert.Equal(t, float64(200), testutil.ToFloat64(m.royaltyTotal.WithLabelValues("2026-09")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.dispatchDuration))
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/revshare/internal/authorization"
	"github.com/smallbiznis/revshare/internal/clock"
	"github.com/smallbiznis/revshare/internal/config"
	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/revshare/internal/observability/metrics"
	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type royaltyMock struct {
	mock.Mock
	royaltydomain.Service
}

func (m *royaltyMock) ComputeRoyalties(ctx context.Context, period royaltydomain.Period) ([]royaltydomain.RoyaltyLedgerEntry, error) {
	args := m.Called(ctx, period)
	entries, _ := args.Get(0).([]royaltydomain.RoyaltyLedgerEntry)
	return entries, args.Error(1)
}

type dispatcherMock struct {
	mock.Mock
	invoicedomain.Dispatcher
}

func (m *dispatcherMock) Sweep(ctx context.Context, limit int) (invoicedomain.SweepResult, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).(invoicedomain.SweepResult), args.Error(1)
}

type fixture struct {
	sched      *Scheduler
	clock      *clock.FakeClock
	royalty    *royaltyMock
	dispatcher *dispatcherMock
	registry   *prometheus.Registry
}

func newFixture(t *testing.T, cfg Config, authz authorization.Service) *fixture {
	t.Helper()
	f := &fixture{
		clock:      clock.NewFakeClock(time.Date(2026, 10, 1, 0, 5, 0, 0, time.UTC)),
		royalty:    &royaltyMock{},
		dispatcher: &dispatcherMock{},
		registry:   prometheus.NewRegistry(),
	}
	sched, err := New(Params{
		Log:          zap.NewNop(),
		Clock:        f.clock,
		RoyaltySvc:   f.royalty,
		Dispatcher:   f.dispatcher,
		AuthzSvc:     authz,
		SchedMetrics: obsmetrics.NewSchedulerMetricsForTest(f.registry),
		Config:       cfg,
	})
	require.NoError(t, err)
	f.sched = sched
	return f
}

func september() royaltydomain.Period {
	return royaltydomain.MonthPeriod(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
}

// counterValue sums a counter family's samples whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if hasLabels(m, want) {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, pair := range m.GetLabel() {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceRunsBothJobs(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.dispatcher.On("Sweep", mock.Anything, 50).Return(invoicedomain.SweepResult{Scanned: 2, Dispatched: 2}, nil).Once()
	f.royalty.On("ComputeRoyalties", mock.Anything, september()).
		Return([]royaltydomain.RoyaltyLedgerEntry{{TenantID: "T1"}, {TenantID: "T2"}}, nil).Once()

	require.NoError(t, f.sched.RunOnce(context.Background()))

	f.dispatcher.AssertExpectations(t)
	f.royalty.AssertExpectations(t)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "revshare_scheduler_job_runs_total", map[string]string{"job": JobRoyaltyRun}))
	assert.Equal(t, float64(2), counterValue(t, f.registry, "revshare_scheduler_batch_processed_total", map[string]string{"job": JobDispatchSweep}))
	assert.Equal(t, float64(2), counterValue(t, f.registry, "revshare_scheduler_batch_processed_total", map[string]string{"job": JobRoyaltyRun}))
}

func TestRoyaltyRunCadence(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobRoyaltyRun}, RoyaltyInterval: time.Hour}, nil)
	f.royalty.On("ComputeRoyalties", mock.Anything, mock.Anything).Return(nil, nil)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.sched.RunOnce(context.Background()))
	f.royalty.AssertNumberOfCalls(t, "ComputeRoyalties", 1)

	// Hourly recompute folds in late events for the same month.
	f.clock.Advance(time.Hour)
	require.NoError(t, f.sched.RunOnce(context.Background()))
	f.royalty.AssertNumberOfCalls(t, "ComputeRoyalties", 2)

	// Month rollover switches the period.
	f.clock.Set(time.Date(2026, 11, 1, 0, 1, 0, 0, time.UTC))
	require.NoError(t, f.sched.RunOnce(context.Background()))
	f.royalty.AssertNumberOfCalls(t, "ComputeRoyalties", 3)
	f.royalty.AssertCalled(t, "ComputeRoyalties", mock.Anything, royaltydomain.MonthPeriod(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)))
	f.dispatcher.AssertNotCalled(t, "Sweep", mock.Anything, mock.Anything)
}

func TestRoyaltyRunHeldElsewhereIsDeferred(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobRoyaltyRun}}, nil)
	f.royalty.On("ComputeRoyalties", mock.Anything, september()).Return(nil, royaltydomain.ErrRunInProgress)

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, float64(1), counterValue(t, f.registry, "revshare_scheduler_batch_deferred_total", map[string]string{
		"job":    JobRoyaltyRun,
		"reason": obsmetrics.SchedulerBatchDeferredReasonLockHeld,
	}))

	// Not marked done, so the next tick retries.
	require.NoError(t, f.sched.RunOnce(context.Background()))
	f.royalty.AssertNumberOfCalls(t, "ComputeRoyalties", 2)
}

func TestJobErrorsAreJoinedAndCounted(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	sweepErr := errors.New("provider_unavailable")
	f.dispatcher.On("Sweep", mock.Anything, mock.Anything).Return(invoicedomain.SweepResult{Scanned: 1, Failed: 1}, sweepErr).Once()
	f.royalty.On("ComputeRoyalties", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	err := f.sched.RunOnce(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, sweepErr)
	assert.Contains(t, err.Error(), JobRoyaltyRun)
	assert.Equal(t, float64(1), counterValue(t, f.registry, "revshare_scheduler_job_errors_total", map[string]string{
		"job":    JobDispatchSweep,
		"reason": obsmetrics.SchedulerJobReasonProvider,
	}))
}

func TestJobTimeoutIsSoft(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobDispatchSweep}}, nil)
	f.dispatcher.On("Sweep", mock.Anything, mock.Anything).Return(invoicedomain.SweepResult{}, context.DeadlineExceeded).Once()

	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Equal(t, float64(1), counterValue(t, f.registry, "revshare_scheduler_job_timeouts_total", map[string]string{"job": JobDispatchSweep}))
}

func TestRoyaltyRunAuthorizesSystemActor(t *testing.T) {
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	f := newFixture(t, Config{EnabledJobs: []string{JobRoyaltyRun}}, authz)
	f.royalty.On("ComputeRoyalties", mock.Anything, september()).Return(nil, nil).Once()

	require.NoError(t, f.sched.RunOnce(context.Background()))
	f.royalty.AssertExpectations(t)
}

func TestProvideConfigReadsJobList(t *testing.T) {
	t.Setenv("SCHEDULER_JOBS", " dispatch_sweep , ")
	cfg := ProvideConfig(configWithScheduler(false))

	assert.False(t, cfg.Enabled)
	assert.Equal(t, []string{JobDispatchSweep}, cfg.EnabledJobs)
	assert.Equal(t, time.Minute, cfg.RunInterval)
}

func configWithScheduler(enabled bool) config.Config {
	return config.Config{SchedulerEnabled: enabled}
}

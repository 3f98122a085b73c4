package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/revshare/internal/authorization"
	"github.com/smallbiznis/revshare/internal/clock"
	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/revshare/internal/observability/metrics"
	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log          *zap.Logger
	Clock        clock.Clock
	RoyaltySvc   royaltydomain.Service
	Dispatcher   invoicedomain.Dispatcher
	AuthzSvc     authorization.Service        `optional:"true"`
	SchedMetrics *obsmetrics.SchedulerMetrics `optional:"true"`
	Config       Config                       `optional:"true"`
}

type Scheduler struct {
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	royaltySvc   royaltydomain.Service
	dispatcher   invoicedomain.Dispatcher
	authzSvc     authorization.Service
	schedMetrics *obsmetrics.SchedulerMetrics

	mu             sync.Mutex
	lastRoyaltyRun time.Time
	lastPeriod     string
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.RoyaltySvc == nil || p.Dispatcher == nil {
		return nil, ErrInvalidConfig
	}
	schedMetrics := p.SchedMetrics
	if schedMetrics == nil {
		schedMetrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        p.Clock,
		royaltySvc:   p.RoyaltySvc,
		dispatcher:   p.Dispatcher,
		authzSvc:     p.AuthzSvc,
		schedMetrics: schedMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.schedMetrics.IncJobRun(name)

	err := fn(ctx)
	s.schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout; the next tick picks up where this left off.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.schedMetrics.IncJobTimeout(name)
	}
	s.schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobDispatchSweep, func(ctx context.Context) error {
			return s.runJob(ctx, JobDispatchSweep, s.cfg.BatchSize, s.cfg.SweepTimeout, s.DispatchSweepJob)
		}},
		{JobRoyaltyRun, func(ctx context.Context) error {
			if !s.royaltyDue() {
				return nil
			}
			return s.runJob(ctx, JobRoyaltyRun, 0, s.cfg.RoyaltyTimeout, s.RoyaltyRunJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			s.schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// If EnabledJobs is empty, all jobs are enabled by default (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// royaltyDue reports whether the previous month should be recomputed: on
// the first tick, when the month rolls over, and every RoyaltyInterval so
// late-arriving events are folded in.
func (s *Scheduler) royaltyDue() bool {
	now := s.clock.Now()
	label := royaltydomain.PreviousMonth(now).Label()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRoyaltyRun.IsZero() ||
		label != s.lastPeriod ||
		now.Sub(s.lastRoyaltyRun) >= s.cfg.RoyaltyInterval
}

// RoyaltyRunJob recomputes the previous calendar month for every tenant.
func (s *Scheduler) RoyaltyRunJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	now := s.clock.Now()
	period := royaltydomain.PreviousMonth(now)

	if err := s.authorizeSystem(ctx, authorization.ObjectRoyalty, authorization.ActionRoyaltyRun); err != nil {
		return err
	}

	entries, err := s.royaltySvc.ComputeRoyalties(ctx, period)
	if errors.Is(err, royaltydomain.ErrRunInProgress) {
		s.schedMetrics.IncBatchDeferred(JobRoyaltyRun, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.logger(ctx).Info("royalty run held by another process", zap.String("period", period.Label()))
		return nil
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "royalty run failed", JobRoyaltyRun, err, zap.String("period", period.Label()))
		return err
	}

	run.AddProcessed(len(entries))
	s.schedMetrics.AddBatchProcessed(JobRoyaltyRun, "royalty_ledger_entries", len(entries))

	s.mu.Lock()
	s.lastRoyaltyRun = now
	s.lastPeriod = period.Label()
	s.mu.Unlock()
	return nil
}

// DispatchSweepJob retries success fees whose dispatch did not complete.
func (s *Scheduler) DispatchSweepJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	result, err := s.dispatcher.Sweep(ctx, s.cfg.BatchSize)
	run.AddProcessed(result.Dispatched)
	s.schedMetrics.AddBatchProcessed(JobDispatchSweep, "success_fee_charges", result.Dispatched)
	if result.Failed > 0 {
		s.logger(ctx).Warn("dispatch sweep left charges undispatched",
			zap.Int("scanned", result.Scanned),
			zap.Int("dispatched", result.Dispatched),
			zap.Int("failed", result.Failed),
		)
	}
	if err != nil {
		s.logSchedulerError(ctx, run, "dispatch sweep failed", JobDispatchSweep, err)
		return err
	}
	return nil
}

func (s *Scheduler) authorizeSystem(ctx context.Context, object string, action string) error {
	if s.authzSvc == nil {
		return nil
	}
	actor := authorization.Actor{Kind: authorization.ActorSystem, ID: string(authorization.ActorSystem)}
	return s.authzSvc.Authorize(ctx, actor, authorization.DomainNetwork, object, action)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/revshare/internal/config"
	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/revshare/internal/observability/metrics"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"github.com/smallbiznis/revshare/pkg/money"
	"github.com/smallbiznis/revshare/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultDispatchTimeout = 10 * time.Second
	defaultMaxAttempts     = 3
	defaultSweepGrace      = 2 * time.Minute
	defaultSweepLimit      = 50
	stateWriteTimeout      = 5 * time.Second
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Config       config.Config
	Charges      successfeedomain.Service
	Tenants      tenantdomain.Directory
	Provider     invoicedomain.Provider
	ObsMetrics   *obsmetrics.Metrics          `optional:"true"`
	SchedMetrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	charges      successfeedomain.Service
	tenants      tenantdomain.Directory
	provider     invoicedomain.Provider
	obsMetrics   *obsmetrics.Metrics
	schedMetrics *obsmetrics.SchedulerMetrics

	timeout     time.Duration
	maxAttempts uint
	sweepGrace  time.Duration
	newBackOff  func() backoff.BackOff
}

func New(p Params) *Service {
	cfg := p.Config.Dispatch
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	maxAttempts := uint(defaultMaxAttempts)
	if cfg.MaxAttempts > 0 {
		maxAttempts = uint(cfg.MaxAttempts)
	}
	grace := cfg.SweepGrace
	if grace <= 0 {
		grace = defaultSweepGrace
	}
	return &Service{
		log:          p.Log.Named("invoice.dispatcher"),
		charges:      p.Charges,
		tenants:      p.Tenants,
		provider:     p.Provider,
		obsMetrics:   p.ObsMetrics,
		schedMetrics: p.SchedMetrics,
		timeout:      timeout,
		maxAttempts:  maxAttempts,
		sweepGrace:   grace,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
}

func NewDispatcher(s *Service) invoicedomain.Dispatcher { return s }

func (s *Service) Dispatch(ctx context.Context, tenantID, callID string) (invoicedomain.DispatchResult, error) {
	if err := tenantctx.Check(ctx, tenantID); err != nil {
		return invoicedomain.DispatchResult{}, err
	}
	charge, err := s.charges.GetCharge(ctx, tenantID, callID)
	if err != nil {
		return invoicedomain.DispatchResult{}, err
	}
	return s.dispatchCharge(ctx, charge, nil)
}

// Sweep dispatches charges that are still owed, each in its own tenant
// scope. Per-charge failures are counted, not returned.
func (s *Service) Sweep(ctx context.Context, limit int) (invoicedomain.SweepResult, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	pending, err := s.charges.ListPendingDispatch(ctx, s.sweepGrace, limit)
	if err != nil {
		return invoicedomain.SweepResult{}, err
	}
	if len(pending) == 0 {
		return invoicedomain.SweepResult{}, nil
	}

	tenants, err := s.tenants.ResolveMany(ctx, tenantIDs(pending))
	if err != nil {
		return invoicedomain.SweepResult{}, err
	}

	var result invoicedomain.SweepResult
	for _, charge := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++
		scoped := tenantctx.WithTenantID(ctx, charge.TenantID)
		res, err := s.dispatchCharge(scoped, charge, tenants)
		if err != nil {
			result.Failed++
			continue
		}
		if res.Outcome == invoicedomain.OutcomeDispatched || res.Outcome == invoicedomain.OutcomeReconciled {
			result.Dispatched++
		}
	}
	if result.Scanned > 0 {
		s.log.Info("dispatch sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("dispatched", result.Dispatched),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

func tenantIDs(charges []successfeedomain.SuccessFeeCharge) []string {
	seen := make(map[string]struct{}, len(charges))
	ids := make([]string, 0, len(charges))
	for _, charge := range charges {
		if _, ok := seen[charge.TenantID]; ok {
			continue
		}
		seen[charge.TenantID] = struct{}{}
		ids = append(ids, charge.TenantID)
	}
	return ids
}

// resolveTenant reads from the sweep's batch when one is given.
func (s *Service) resolveTenant(ctx context.Context, tenantID string, batch map[string]tenantdomain.Tenant) (tenantdomain.Tenant, error) {
	if batch == nil {
		return s.tenants.Resolve(ctx, tenantID)
	}
	tenant, ok := batch[tenantID]
	if !ok {
		return tenantdomain.Tenant{}, tenantdomain.ErrUnknownTenant
	}
	return tenant, nil
}

func (s *Service) dispatchCharge(ctx context.Context, charge successfeedomain.SuccessFeeCharge, batch map[string]tenantdomain.Tenant) (invoicedomain.DispatchResult, error) {
	if charge.Dispatched {
		result := invoicedomain.DispatchResult{Outcome: invoicedomain.OutcomeAlreadyDispatched, Charge: charge}
		if charge.InvoiceRef != nil {
			result.InvoiceRef = *charge.InvoiceRef
		}
		return result, nil
	}
	if charge.DispatchStatus == successfeedomain.DispatchStatusSkipped || charge.FeeAmount == 0 {
		return invoicedomain.DispatchResult{Outcome: invoicedomain.OutcomeSkipped, Charge: charge}, nil
	}

	log := s.log.With(
		zap.String("tenant_id", charge.TenantID),
		zap.String("source_call_id", charge.SourceCallID),
		zap.String("provider", s.provider.Name()),
	)

	tenant, err := s.resolveTenant(ctx, charge.TenantID, batch)
	if err != nil {
		return s.fail(ctx, log, charge, err)
	}
	customerRef := strings.TrimSpace(tenant.BillingCustomerRef)
	if customerRef == "" {
		return s.fail(ctx, log, charge, invoicedomain.ErrMissingCustomer)
	}
	key := charge.IdempotencyKey()

	// A previous attempt may have reached the provider.
	if charge.DispatchStatus != successfeedomain.DispatchStatusPending {
		found, err := s.findCharge(ctx, customerRef, key)
		if err != nil {
			return s.fail(ctx, log, charge, err)
		}
		if found != nil {
			log.Info("reconciled charge with provider", zap.String("invoice_ref", found.Ref))
			return s.complete(ctx, charge, found.Ref, invoicedomain.OutcomeReconciled)
		}
	}

	req := invoicedomain.ChargeRequest{
		TenantID:       charge.TenantID,
		SourceCallID:   charge.SourceCallID,
		CustomerRef:    customerRef,
		Amount:         charge.FeeAmount,
		Currency:       charge.Currency,
		IdempotencyKey: key,
		Description:    fmt.Sprintf("Success fee %s%% on recovered %s (call %s)", rateLabel(charge.FeeRate), money.Format(charge.RecoveredAmount), charge.SourceCallID),
	}

	attempt := 0
	op := func() (invoicedomain.ProviderCharge, error) {
		attempt++
		created, err := s.createCharge(ctx, req)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, invoicedomain.ErrProviderUnavailable) {
			log.Warn("provider unavailable, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return invoicedomain.ProviderCharge{}, err
		}
		return invoicedomain.ProviderCharge{}, backoff.Permanent(err)
	}
	created, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.maxAttempts),
	)
	if err != nil {
		return s.fail(ctx, log, charge, err)
	}

	log.Info("success fee dispatched",
		zap.String("invoice_ref", created.Ref),
		zap.Int64("fee_amount", charge.FeeAmount),
		zap.Int("attempts", attempt),
	)
	return s.complete(ctx, charge, created.Ref, invoicedomain.OutcomeDispatched)
}

func (s *Service) createCharge(ctx context.Context, req invoicedomain.ChargeRequest) (invoicedomain.ProviderCharge, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	created, err := s.provider.CreateCharge(callCtx, req)
	err = asTimeout(callCtx, err)
	s.schedMetrics.ObserveDispatch(dispatchOutcome(err), time.Since(started))
	return created, err
}

func (s *Service) findCharge(ctx context.Context, customerRef, key string) (*invoicedomain.ProviderCharge, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.provider.FindCharge(callCtx, customerRef, key)
	return found, asTimeout(callCtx, err)
}

func (s *Service) complete(ctx context.Context, charge successfeedomain.SuccessFeeCharge, ref string, outcome invoicedomain.Outcome) (invoicedomain.DispatchResult, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
	defer cancel()

	stored, err := s.charges.MarkDispatched(writeCtx, charge, ref)
	if err != nil {
		s.log.Error("failed to record dispatch",
			zap.String("tenant_id", charge.TenantID),
			zap.String("source_call_id", charge.SourceCallID),
			zap.String("invoice_ref", ref),
			zap.Error(err),
		)
		return invoicedomain.DispatchResult{}, err
	}

	result := invoicedomain.DispatchResult{Outcome: outcome, InvoiceRef: ref, Charge: stored}
	if stored.InvoiceRef != nil && *stored.InvoiceRef != ref {
		result.Outcome = invoicedomain.OutcomeAlreadyDispatched
		result.InvoiceRef = *stored.InvoiceRef
	}
	s.obsMetrics.RecordDispatch(ctx, s.provider.Name(), string(result.Outcome))
	return result, nil
}

// fail records the attempt. A timeout leaves the provider state unknown,
// so the next attempt reconciles before creating.
func (s *Service) fail(ctx context.Context, log *zap.Logger, charge successfeedomain.SuccessFeeCharge, cause error) (invoicedomain.DispatchResult, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stateWriteTimeout)
	defer cancel()

	outcome := invoicedomain.OutcomeFailed
	var err error
	if errors.Is(cause, invoicedomain.ErrProviderTimeout) {
		outcome = invoicedomain.OutcomeUnknown
		err = s.charges.MarkUnknown(writeCtx, charge, cause)
		charge.DispatchStatus = successfeedomain.DispatchStatusUnknown
	} else {
		err = s.charges.MarkFailed(writeCtx, charge, cause)
		charge.DispatchStatus = successfeedomain.DispatchStatusFailed
	}
	if err != nil {
		log.Error("failed to record dispatch failure", zap.Error(err))
	}

	log.Warn("success fee dispatch failed", zap.String("outcome", string(outcome)), zap.Error(cause))
	s.obsMetrics.RecordDispatch(ctx, s.provider.Name(), string(outcome))
	return invoicedomain.DispatchResult{Outcome: outcome, Charge: charge}, cause
}

func asTimeout(callCtx context.Context, err error) error {
	if err == nil || errors.Is(err, invoicedomain.ErrProviderTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", invoicedomain.ErrProviderTimeout, err)
	}
	return err
}

func dispatchOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, invoicedomain.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, invoicedomain.ErrProviderUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}

// rateLabel renders "0.15" as "15".
func rateLabel(rate string) string {
	r, err := money.ParseRate(rate)
	if err != nil {
		return rate
	}
	return r.Shift(2).String()
}

var _ invoicedomain.Dispatcher = (*Service)(nil)

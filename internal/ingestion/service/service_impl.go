package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/revshare/internal/clock"
	ingestiondomain "github.com/smallbiznis/revshare/internal/ingestion/domain"
	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
	obscontext "github.com/smallbiznis/revshare/internal/observability/context"
	"github.com/smallbiznis/revshare/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/revshare/internal/observability/metrics"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"github.com/smallbiznis/revshare/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Tenants    tenantdomain.Directory
	Ledger     revenuedomain.Ledger
	Fees       successfeedomain.Service
	Dispatcher invoicedomain.Dispatcher
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	tenants    tenantdomain.Directory
	ledger     revenuedomain.Ledger
	fees       successfeedomain.Service
	dispatcher invoicedomain.Dispatcher
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) ingestiondomain.Service {
	return &Service{
		log:        p.Log.Named("ingestion.service"),
		clock:      p.Clock,
		tenants:    p.Tenants,
		ledger:     p.Ledger,
		fees:       p.Fees,
		dispatcher: p.Dispatcher,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Decode(body []byte) (ingestiondomain.Request, *ingestiondomain.Rejection) {
	req, rejection := Decode(body)
	if rejection != nil {
		s.obsMetrics.RecordIntake(context.Background(), string(ingestiondomain.StatusRejected), string(rejection.Reason))
	}
	return req, rejection
}

// Ingest records a qualifying notification at most once per (tenant, call)
// and bills its success fee. Everything else is acknowledged without a
// ledger write. A *Rejection is returned for payload faults.
func (s *Service) Ingest(ctx context.Context, req ingestiondomain.Request) (ingestiondomain.Result, error) {
	if req.TenantID == "" || req.CallID == "" || req.Amount < 0 {
		return s.reject(ctx, ingestiondomain.ReasonInvalidRequest, "tenant_id and call_id are required")
	}

	tenant, err := s.tenants.Resolve(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrUnknownTenant) || errors.Is(err, tenantdomain.ErrInvalidTenantID) {
			return s.reject(ctx, ingestiondomain.ReasonUnknownTenant, req.TenantID)
		}
		return ingestiondomain.Result{}, err
	}
	ctx = tenantctx.WithTenantID(ctx, tenant.ID)
	ctx = obscontext.WithTenantID(ctx, tenant.ID)
	log := logger.WithContext(ctx, s.log).With(zap.String("call_id", req.CallID))

	intent, class := ingestiondomain.ClassifyIntent(req.Intent)
	switch class {
	case ingestiondomain.IntentUnknown:
		log.Info("ignoring notification with unknown intent", zap.String("intent", req.Intent))
		return s.done(ctx, ingestiondomain.Result{Status: ingestiondomain.StatusIgnored, Reason: ingestiondomain.ReasonUnknownIntent}), nil
	case ingestiondomain.IntentNonQualifying:
		log.Debug("acknowledged non-qualifying notification", zap.String("intent", string(intent)))
		return s.done(ctx, ingestiondomain.Result{Status: ingestiondomain.StatusAcknowledged, Reason: ingestiondomain.ReasonNonQualifying}), nil
	}

	recordedAt := req.ReceivedAt
	if recordedAt.IsZero() {
		recordedAt = s.clock.Now()
	}
	event, created, err := s.ledger.AppendIfAbsent(ctx, revenuedomain.AppendRequest{
		TenantID:        tenant.ID,
		SourceCallID:    req.CallID,
		RecoveredAmount: req.Amount,
		Intent:          intent,
		RecordedAt:      recordedAt,
		Metadata: map[string]any{
			"tier":   string(tenant.Tier),
			"region": tenant.Region,
		},
	})
	if err != nil {
		log.Error("ledger append failed", zap.Error(err))
		return ingestiondomain.Result{}, err
	}

	if !created {
		return s.duplicate(ctx, log, event)
	}

	charge, _, err := s.fees.ComputeFee(ctx, event)
	if err != nil {
		// A redelivery takes the duplicate path, which creates the charge.
		log.Error("success fee computation failed", zap.Error(err))
		return ingestiondomain.Result{}, err
	}

	result := ingestiondomain.Result{
		Status:     ingestiondomain.StatusRecorded,
		Event:      &event,
		SuccessFee: &charge,
	}
	if !charge.Dispatched && charge.DispatchStatus != successfeedomain.DispatchStatusSkipped {
		dispatch, err := s.dispatcher.Dispatch(ctx, charge.TenantID, charge.SourceCallID)
		if err != nil {
			log.Warn("success fee dispatch deferred to sweep", zap.Error(err))
		}
		result.Dispatch = &dispatch
		if dispatch.Charge.ID != 0 {
			result.SuccessFee = &dispatch.Charge
		}
	}

	log.Info("revenue event recorded",
		zap.String("intent", string(event.Intent)),
		zap.Int64("recovered_amount", event.RecoveredAmount),
		zap.Int64("fee_amount", charge.FeeAmount),
	)
	return s.done(ctx, result), nil
}

// duplicate returns the stored event. The charge is ensured but never
// dispatched from here; a charge created on this path is left to the sweep.
func (s *Service) duplicate(ctx context.Context, log *zap.Logger, event revenuedomain.RevenueEvent) (ingestiondomain.Result, error) {
	result := ingestiondomain.Result{Status: ingestiondomain.StatusDuplicate, Event: &event}
	if event.Intent.Qualifying() {
		charge, repaired, err := s.fees.ComputeFee(ctx, event)
		if err != nil {
			log.Warn("success fee lookup failed for duplicate", zap.Error(err))
		} else {
			result.SuccessFee = &charge
			if repaired {
				log.Info("success fee created on redelivery")
			}
		}
	}
	return s.done(ctx, result), nil
}

func (s *Service) reject(ctx context.Context, reason ingestiondomain.Reason, message string) (ingestiondomain.Result, error) {
	s.obsMetrics.RecordIntake(ctx, string(ingestiondomain.StatusRejected), string(reason))
	return ingestiondomain.Result{Status: ingestiondomain.StatusRejected, Reason: reason}, ingestiondomain.Reject(reason, message)
}

func (s *Service) done(ctx context.Context, result ingestiondomain.Result) ingestiondomain.Result {
	s.obsMetrics.RecordIntake(ctx, string(result.Status), string(result.Reason))
	return result
}

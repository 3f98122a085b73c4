package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revshare/internal/clock"
	"github.com/smallbiznis/revshare/internal/config"
	obsmetrics "github.com/smallbiznis/revshare/internal/observability/metrics"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
	"github.com/smallbiznis/revshare/pkg/money"
	"github.com/smallbiznis/revshare/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxListCharges = 500

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       successfeedomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	billing    config.BillingConfig
	genID      *snowflake.Node
	clock      clock.Clock
	repo       successfeedomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) successfeedomain.Service {
	billing := p.Config.Billing
	if billing.Currency == "" {
		billing.Currency = "usd"
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("successfee.service"),
		billing:    billing,
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ComputeFee(ctx context.Context, event revenuedomain.RevenueEvent) (successfeedomain.SuccessFeeCharge, bool, error) {
	if event.ID == 0 || strings.TrimSpace(event.TenantID) == "" || strings.TrimSpace(event.SourceCallID) == "" {
		return successfeedomain.SuccessFeeCharge{}, false, successfeedomain.ErrInvalidEvent
	}
	if err := tenantctx.Check(ctx, event.TenantID); err != nil {
		return successfeedomain.SuccessFeeCharge{}, false, err
	}
	if !event.Intent.Qualifying() || event.RecoveredAmount < 0 {
		return successfeedomain.SuccessFeeCharge{}, false, successfeedomain.ErrNotChargeable
	}

	now := s.clock.Now()
	fee := money.ApplyRate(event.RecoveredAmount, s.billing.SuccessFeeRate)
	status := successfeedomain.DispatchStatusPending
	if fee == 0 {
		status = successfeedomain.DispatchStatusSkipped
	}
	charge := successfeedomain.SuccessFeeCharge{
		ID:              s.genID.Generate(),
		TenantID:        event.TenantID,
		SourceCallID:    event.SourceCallID,
		RevenueEventID:  event.ID,
		RecoveredAmount: event.RecoveredAmount,
		FeeRate:         s.billing.SuccessFeeRate.String(),
		FeeAmount:       fee,
		Currency:        s.billing.Currency,
		DispatchStatus:  status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, &charge)
	if err != nil {
		return successfeedomain.SuccessFeeCharge{}, false, err
	}
	s.obsMetrics.RecordSuccessFee(ctx, inserted)
	if inserted {
		s.log.Info("success fee computed",
			zap.String("tenant_id", charge.TenantID),
			zap.String("source_call_id", charge.SourceCallID),
			zap.Int64("recovered_amount", charge.RecoveredAmount),
			zap.Int64("fee_amount", charge.FeeAmount),
		)
		return charge, true, nil
	}

	existing, err := s.repo.FindByCallID(ctx, s.db, event.TenantID, event.SourceCallID)
	if err != nil {
		return successfeedomain.SuccessFeeCharge{}, false, err
	}
	if existing == nil {
		return successfeedomain.SuccessFeeCharge{}, false, successfeedomain.ErrChargeNotFound
	}
	return *existing, false, nil
}

func (s *Service) GetCharge(ctx context.Context, tenantID, callID string) (successfeedomain.SuccessFeeCharge, error) {
	if err := tenantctx.Check(ctx, tenantID); err != nil {
		return successfeedomain.SuccessFeeCharge{}, err
	}
	charge, err := s.repo.FindByCallID(ctx, s.db, tenantID, callID)
	if err != nil {
		return successfeedomain.SuccessFeeCharge{}, err
	}
	if charge == nil {
		return successfeedomain.SuccessFeeCharge{}, successfeedomain.ErrChargeNotFound
	}
	return *charge, nil
}

func (s *Service) ListCharges(ctx context.Context, tenantID string) ([]successfeedomain.SuccessFeeCharge, error) {
	if err := tenantctx.Check(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.repo.ListByTenant(ctx, s.db, tenantID, maxListCharges)
}

// ListPendingDispatch returns undispatched charges created more than
// olderThan ago, so the sweep does not race the synchronous dispatch.
func (s *Service) ListPendingDispatch(ctx context.Context, olderThan time.Duration, limit int) ([]successfeedomain.SuccessFeeCharge, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListUndispatched(ctx, s.db, s.clock.Now().Add(-olderThan), limit)
}

func (s *Service) MarkDispatched(ctx context.Context, charge successfeedomain.SuccessFeeCharge, invoiceRef string) (successfeedomain.SuccessFeeCharge, error) {
	now := s.clock.Now()
	flipped, err := s.repo.MarkDispatched(ctx, s.db, charge.ID, invoiceRef, now)
	if err != nil {
		return successfeedomain.SuccessFeeCharge{}, err
	}
	if !flipped {
		// a concurrent dispatcher won; return what it stored
		return s.GetCharge(ctx, charge.TenantID, charge.SourceCallID)
	}
	charge.Dispatched = true
	charge.DispatchStatus = successfeedomain.DispatchStatusDispatched
	charge.InvoiceRef = &invoiceRef
	charge.Attempts++
	charge.LastError = nil
	charge.DispatchedAt = &now
	charge.UpdatedAt = now
	return charge, nil
}

func (s *Service) MarkUnknown(ctx context.Context, charge successfeedomain.SuccessFeeCharge, cause error) error {
	return s.updateDispatch(ctx, charge, successfeedomain.DispatchStatusUnknown, cause)
}

func (s *Service) MarkFailed(ctx context.Context, charge successfeedomain.SuccessFeeCharge, cause error) error {
	return s.updateDispatch(ctx, charge, successfeedomain.DispatchStatusFailed, cause)
}

func (s *Service) updateDispatch(ctx context.Context, charge successfeedomain.SuccessFeeCharge, status successfeedomain.DispatchStatus, cause error) error {
	update := successfeedomain.DispatchUpdate{Status: status, At: s.clock.Now()}
	if cause != nil {
		update.LastError = cause.Error()
	}
	return s.repo.UpdateDispatch(ctx, s.db, charge.ID, update)
}

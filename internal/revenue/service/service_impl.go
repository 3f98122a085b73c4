package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/revshare/internal/clock"
	obsmetrics "github.com/smallbiznis/revshare/internal/observability/metrics"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	"github.com/smallbiznis/revshare/pkg/db"
	"github.com/smallbiznis/revshare/pkg/db/pagination"
	"github.com/smallbiznis/revshare/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultAppendAttempts = 5

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       revenuedomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       revenuedomain.Repository
	obsMetrics *obsmetrics.Metrics

	appendAttempts uint
	newBackOff     func() backoff.BackOff
}

func New(p Params) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("revenue.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		obsMetrics:     p.ObsMetrics,
		appendAttempts: defaultAppendAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			return b
		},
	}
}

func NewLedger(s *Service) revenuedomain.Ledger { return s }

func NewOperatorReader(s *Service) revenuedomain.OperatorReader { return s }

// AppendIfAbsent records the event unless one already exists for
// (tenant, source call). The returned bool is true only for the call that
// wrote the row; every other caller gets the stored event unchanged.
func (s *Service) AppendIfAbsent(ctx context.Context, req revenuedomain.AppendRequest) (revenuedomain.RevenueEvent, bool, error) {
	if err := validateAppend(ctx, req); err != nil {
		return revenuedomain.RevenueEvent{}, false, err
	}
	if !req.Intent.Qualifying() {
		return revenuedomain.RevenueEvent{}, false, revenuedomain.ErrInvalidIntent
	}
	if req.RecoveredAmount < 0 {
		return revenuedomain.RevenueEvent{}, false, revenuedomain.ErrInvalidAmount
	}
	return s.appendEvent(ctx, s.newEvent(req))
}

func (s *Service) newEvent(req revenuedomain.AppendRequest) revenuedomain.RevenueEvent {
	recordedAt := req.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.clock.Now()
	}
	event := revenuedomain.RevenueEvent{
		ID:              s.genID.Generate(),
		TenantID:        strings.TrimSpace(req.TenantID),
		SourceCallID:    strings.TrimSpace(req.SourceCallID),
		RecoveredAmount: req.RecoveredAmount,
		Intent:          req.Intent,
		RecordedAt:      recordedAt.UTC(),
	}
	if len(req.Metadata) > 0 {
		event.Metadata = datatypes.JSONMap(req.Metadata)
	}
	return event
}

func (s *Service) appendEvent(ctx context.Context, record revenuedomain.RevenueEvent) (revenuedomain.RevenueEvent, bool, error) {
	var created bool
	op := func() (revenuedomain.RevenueEvent, error) {
		inserted, err := s.repo.Insert(ctx, s.db, &record)
		if err != nil {
			return revenuedomain.RevenueEvent{}, classifyWriteErr(err)
		}
		if inserted {
			created = true
			return record, nil
		}

		existing, err := s.repo.FindByCallID(ctx, s.db, record.TenantID, record.SourceCallID)
		if err != nil {
			return revenuedomain.RevenueEvent{}, classifyWriteErr(err)
		}
		if existing == nil {
			// conflicting writer not yet visible to this connection
			return revenuedomain.RevenueEvent{}, revenuedomain.ErrLedgerWriteConflict
		}
		return *existing, nil
	}

	event, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.appendAttempts),
	)
	if err != nil {
		return revenuedomain.RevenueEvent{}, false, err
	}

	log := s.log.With(
		zap.String("tenant_id", event.TenantID),
		zap.String("source_call_id", event.SourceCallID),
	)
	if created {
		log.Info("revenue event recorded",
			zap.String("event_id", event.ID.String()),
			zap.String("intent", string(event.Intent)),
			zap.Int64("recovered_amount", event.RecoveredAmount),
		)
		s.obsMetrics.RecordLedgerAppend(ctx, string(event.Intent), event.RecoveredAmount)
		return event, true, nil
	}

	if !sameKind(event, record) {
		log.Error("call id already holds an event of another kind",
			zap.String("recorded_intent", string(event.Intent)),
			zap.String("submitted_intent", string(record.Intent)),
		)
		return revenuedomain.RevenueEvent{}, false, revenuedomain.ErrCallIDConflict
	}
	if event.RecoveredAmount != record.RecoveredAmount || event.Intent != record.Intent {
		log.Warn("duplicate submission differs from recorded event",
			zap.Int64("recorded_amount", event.RecoveredAmount),
			zap.Int64("submitted_amount", record.RecoveredAmount),
		)
	} else {
		log.Debug("duplicate submission")
	}
	return event, false, nil
}

// sameKind reports whether a stored row can stand in for record: a reversal
// only matches a reversal of the same call, and a sale never matches one.
func sameKind(stored, record revenuedomain.RevenueEvent) bool {
	if (stored.Intent == revenuedomain.IntentReversal) != (record.Intent == revenuedomain.IntentReversal) {
		return false
	}
	return ptrValue(stored.ReversesCallID) == ptrValue(record.ReversesCallID)
}

func ptrValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func classifyWriteErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	if db.IsRetryableErr(err) {
		return revenuedomain.ErrLedgerWriteConflict
	}
	return backoff.Permanent(err)
}

func (s *Service) SumRevenue(ctx context.Context, tenantID string, start, end time.Time) (int64, error) {
	if err := validateWindow(ctx, tenantID, start, end); err != nil {
		return 0, err
	}
	total, _, err := s.repo.Sum(ctx, s.db, tenantID, start.UTC(), end.UTC())
	return total, err
}

func (s *Service) ListEvents(ctx context.Context, tenantID string, start, end time.Time) ([]revenuedomain.RevenueEvent, error) {
	if err := validateWindow(ctx, tenantID, start, end); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, s.db, tenantID, start.UTC(), end.UTC(), nil, 0)
}

// ListEventsPage is the restartable form of ListEvents: the page token
// encodes the last (recorded_at, id) returned.
func (s *Service) ListEventsPage(ctx context.Context, req revenuedomain.ListRequest) (revenuedomain.ListResponse, error) {
	if err := validateWindow(ctx, req.TenantID, req.Start, req.End); err != nil {
		return revenuedomain.ListResponse{}, err
	}

	var after *pagination.Cursor
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return revenuedomain.ListResponse{}, err
		}
		after = cursor
	}

	limit := pagination.Pagination{PageSize: req.PageSize}.Size()
	items, err := s.repo.List(ctx, s.db, req.TenantID, req.Start.UTC(), req.End.UTC(), after, limit+1)
	if err != nil {
		return revenuedomain.ListResponse{}, err
	}

	page, info, err := pagination.Trim(items, limit, func(e revenuedomain.RevenueEvent) pagination.Cursor {
		return pagination.Cursor{ID: int64(e.ID), RecordedAt: e.RecordedAt}
	})
	if err != nil {
		return revenuedomain.ListResponse{}, err
	}
	if page == nil {
		page = []revenuedomain.RevenueEvent{}
	}
	return revenuedomain.ListResponse{PageInfo: info, Events: page}, nil
}

func (s *Service) GetByCallID(ctx context.Context, tenantID, callID string) (revenuedomain.RevenueEvent, error) {
	if err := validateAppend(ctx, revenuedomain.AppendRequest{TenantID: tenantID, SourceCallID: callID}); err != nil {
		return revenuedomain.RevenueEvent{}, err
	}
	event, err := s.repo.FindByCallID(ctx, s.db, tenantID, callID)
	if err != nil {
		return revenuedomain.RevenueEvent{}, err
	}
	if event == nil {
		return revenuedomain.RevenueEvent{}, revenuedomain.ErrEventNotFound
	}
	return *event, nil
}

// Reverse appends a signed correction for callID. Reversing twice returns
// the existing reversal.
func (s *Service) Reverse(ctx context.Context, tenantID, callID, reason string) (revenuedomain.RevenueEvent, bool, error) {
	original, err := s.GetByCallID(ctx, tenantID, callID)
	if err != nil {
		return revenuedomain.RevenueEvent{}, false, err
	}
	if original.Intent == revenuedomain.IntentReversal {
		return revenuedomain.RevenueEvent{}, false, revenuedomain.ErrNotReversible
	}

	record := s.newEvent(revenuedomain.AppendRequest{
		TenantID:        original.TenantID,
		SourceCallID:    original.SourceCallID + revenuedomain.ReversalSuffix,
		RecoveredAmount: -original.RecoveredAmount,
		Intent:          revenuedomain.IntentReversal,
		Metadata:        map[string]any{"reason": strings.TrimSpace(reason)},
	})
	reverses := original.SourceCallID
	record.ReversesCallID = &reverses
	return s.appendEvent(ctx, record)
}

func (s *Service) ActiveTenants(ctx context.Context, start, end time.Time) ([]string, error) {
	if !start.Before(end) {
		return nil, revenuedomain.ErrInvalidPeriod
	}
	return s.repo.ActiveTenants(ctx, s.db, start.UTC(), end.UTC())
}

func (s *Service) Summarize(ctx context.Context, tenantID string, start, end time.Time) (revenuedomain.PeriodSummary, error) {
	if err := validateWindow(ctx, tenantID, start, end); err != nil {
		return revenuedomain.PeriodSummary{}, err
	}
	total, count, err := s.repo.Sum(ctx, s.db, tenantID, start.UTC(), end.UTC())
	if err != nil {
		return revenuedomain.PeriodSummary{}, err
	}
	return revenuedomain.PeriodSummary{TenantID: tenantID, TotalRevenue: total, EventCount: count}, nil
}

func validateAppend(ctx context.Context, req revenuedomain.AppendRequest) error {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		return revenuedomain.ErrInvalidTenant
	}
	if strings.TrimSpace(req.SourceCallID) == "" || revenuedomain.IsReservedCallID(req.SourceCallID) {
		return revenuedomain.ErrInvalidCallID
	}
	return tenantctx.Check(ctx, tenantID)
}

func validateWindow(ctx context.Context, tenantID string, start, end time.Time) error {
	if strings.TrimSpace(tenantID) == "" {
		return revenuedomain.ErrInvalidTenant
	}
	if !start.Before(end) {
		return revenuedomain.ErrInvalidPeriod
	}
	return tenantctx.Check(ctx, tenantID)
}

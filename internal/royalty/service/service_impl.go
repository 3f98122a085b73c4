package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revshare/internal/config"
	obsmetrics "github.com/smallbiznis/revshare/internal/observability/metrics"
	"github.com/smallbiznis/revshare/internal/providers/pdf"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
	"github.com/smallbiznis/revshare/pkg/money"
	"github.com/smallbiznis/revshare/pkg/tenantctx"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockKeyPrefix  = "revshare:royalty:run:"
	defaultLockTTL = 15 * time.Minute
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Config       config.Config
	GenID        *snowflake.Node
	Revenue      revenuedomain.OperatorReader
	Repo         royaltydomain.Repository
	PDF          pdf.Provider                 `optional:"true"`
	Locker       royaltydomain.Locker         `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics          `optional:"true"`
	SchedMetrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	rate         decimal.Decimal
	currency     string
	genID        *snowflake.Node
	revenue      revenuedomain.OperatorReader
	repo         royaltydomain.Repository
	pdf          pdf.Provider
	locker       royaltydomain.Locker
	lockTTL      time.Duration
	obsMetrics   *obsmetrics.Metrics
	schedMetrics *obsmetrics.SchedulerMetrics
}

func New(p Params) royaltydomain.Service {
	renderer := p.PDF
	if renderer == nil {
		renderer = pdf.New()
	}
	currency := strings.ToUpper(strings.TrimSpace(p.Config.Billing.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("royalty.service"),
		rate:         p.Config.Billing.RoyaltyRate,
		currency:     currency,
		genID:        p.GenID,
		revenue:      p.Revenue,
		repo:         p.Repo,
		pdf:          renderer,
		locker:       p.Locker,
		lockTTL:      defaultLockTTL,
		obsMetrics:   p.ObsMetrics,
		schedMetrics: p.SchedMetrics,
	}
}

// ComputeRoyalties is a pure function of the ledger for period: every run
// rewrites the same entries from current ledger contents.
func (s *Service) ComputeRoyalties(ctx context.Context, period royaltydomain.Period) ([]royaltydomain.RoyaltyLedgerEntry, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if _, scoped := tenantctx.TenantID(ctx); scoped {
		return nil, royaltydomain.ErrOperatorScope
	}
	label := period.Label()
	log := s.log.With(zap.String("period", label))

	release, err := s.acquire(ctx, log, label)
	if err != nil {
		return nil, err
	}
	defer release()

	tenantIDs, err := s.revenue.ActiveTenants(ctx, period.Start, period.End)
	if err != nil {
		return nil, err
	}

	entries := make([]royaltydomain.RoyaltyLedgerEntry, 0, len(tenantIDs))
	for _, tenantID := range tenantIDs {
		summary, err := s.revenue.Summarize(ctx, tenantID, period.Start, period.End)
		if err != nil {
			return nil, err
		}
		entries = append(entries, royaltydomain.RoyaltyLedgerEntry{
			ID:            s.genID.Generate(),
			TenantID:      tenantID,
			PeriodStart:   period.Start,
			PeriodEnd:     period.End,
			TotalRevenue:  summary.TotalRevenue,
			EventCount:    summary.EventCount,
			RoyaltyRate:   s.rate.String(),
			RoyaltyAmount: money.ApplyRate(summary.TotalRevenue, s.rate),
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Upsert(ctx, tx, entries)
	})
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.List(ctx, s.db, period.Start, period.End)
	if err != nil {
		return nil, err
	}

	summary := royaltydomain.Summarize(period, stored)
	s.schedMetrics.SetRoyaltyTotal(label, summary.RoyaltyAmount)
	s.obsMetrics.RecordRoyaltyEntries(ctx, len(stored))
	log.Info("royalties computed",
		zap.Int("tenants", summary.Tenants),
		zap.Int64("total_revenue", summary.TotalRevenue),
		zap.Int64("royalty_amount", summary.RoyaltyAmount),
	)
	return stored, nil
}

// acquire takes the cross-process run lock when one is configured. Without
// Redis, or when Redis is unreachable, runs proceed unlocked.
func (s *Service) acquire(ctx context.Context, log *zap.Logger, label string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	key := lockKeyPrefix + label
	token, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		log.Warn("royalty lock unavailable, running unlocked", zap.Error(err))
		return noop, nil
	}
	if !ok {
		return nil, royaltydomain.ErrRunInProgress
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			log.Warn("failed to release royalty lock", zap.Error(err))
		}
	}, nil
}

func (s *Service) ListRoyalties(ctx context.Context, period royaltydomain.Period) ([]royaltydomain.RoyaltyLedgerEntry, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	if _, scoped := tenantctx.TenantID(ctx); scoped {
		return nil, royaltydomain.ErrOperatorScope
	}
	return s.repo.List(ctx, s.db, period.Start, period.End)
}

// RenderStatement renders the stored entries for period. It does not
// recompute them.
func (s *Service) RenderStatement(ctx context.Context, period royaltydomain.Period) ([]byte, error) {
	entries, err := s.ListRoyalties(ctx, period)
	if err != nil {
		return nil, err
	}
	summary := royaltydomain.Summarize(period, entries)

	data := pdf.StatementData{
		Title:        "Network royalty statement",
		Period:       summary.Period,
		PeriodStart:  period.Start.Format(time.DateOnly),
		PeriodEnd:    period.End.Format(time.DateOnly),
		RoyaltyRate:  s.rate.Shift(2).String() + "%",
		Currency:     s.currency,
		TotalRevenue: money.Format(summary.TotalRevenue),
		TotalRoyalty: money.Format(summary.RoyaltyAmount),
		TenantCount:  summary.Tenants,
		Lines:        make([]pdf.StatementLine, 0, len(entries)),
	}
	for _, e := range entries {
		data.Lines = append(data.Lines, pdf.StatementLine{
			TenantID:      e.TenantID,
			EventCount:    e.EventCount,
			TotalRevenue:  money.Format(e.TotalRevenue),
			RoyaltyAmount: money.Format(e.RoyaltyAmount),
		})
	}
	return s.pdf.GenerateRoyaltyStatement(ctx, data)
}

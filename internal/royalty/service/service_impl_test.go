package service

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/revshare/internal/clock"
	"github.com/smallbiznis/revshare/internal/config"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	revenuerepo "github.com/smallbiznis/revshare/internal/revenue/repository"
	revenueservice "github.com/smallbiznis/revshare/internal/revenue/service"
	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
	"github.com/smallbiznis/revshare/internal/royalty/repository"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
	successfeerepo "github.com/smallbiznis/revshare/internal/successfee/repository"
	successfeeservice "github.com/smallbiznis/revshare/internal/successfee/service"
	"github.com/smallbiznis/revshare/pkg/money"
	"github.com/smallbiznis/revshare/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var september = royaltydomain.MonthPeriod(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))

type lockerMock struct {
	mock.Mock
}

func (m *lockerMock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *lockerMock) Release(ctx context.Context, key, token string) error {
	return m.Called(ctx, key, token).Error(0)
}

type harness struct {
	db      *gorm.DB
	clock   *clock.FakeClock
	cfg     config.Config
	node    *snowflake.Node
	revenue *revenueservice.Service
	ledger  revenuedomain.Ledger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "royalty.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(
		&revenuedomain.RevenueEvent{},
		&royaltydomain.RoyaltyLedgerEntry{},
		&successfeedomain.SuccessFeeCharge{},
	))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC))
	revenue := revenueservice.New(revenueservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: revenuerepo.Provide(),
	})
	return &harness{
		db:    db,
		clock: clk,
		cfg: config.Config{Billing: config.BillingConfig{
			RoyaltyRate:    money.MustRate("0.20"),
			SuccessFeeRate: money.MustRate("0.15"),
			Currency:       "usd",
		}},
		node:    node,
		revenue: revenue,
		ledger:  revenueservice.NewLedger(revenue),
	}
}

func (h *harness) service(locker royaltydomain.Locker) royaltydomain.Service {
	return New(Params{
		DB:      h.db,
		Log:     zap.NewNop(),
		Config:  h.cfg,
		GenID:   h.node,
		Revenue: revenueservice.NewOperatorReader(h.revenue),
		Repo:    repository.Provide(),
		Locker:  locker,
	})
}

func (h *harness) record(t *testing.T, tenantID, callID string, amount int64, at time.Time) revenuedomain.RevenueEvent {
	t.Helper()
	event, created, err := h.ledger.AppendIfAbsent(context.Background(), revenuedomain.AppendRequest{
		TenantID:        tenantID,
		SourceCallID:    callID,
		RecoveredAmount: amount,
		Intent:          revenuedomain.IntentSaleClosed,
		RecordedAt:      at,
	})
	require.NoError(t, err)
	require.True(t, created)
	return event
}

func TestComputeRoyaltiesIsIdempotent(t *testing.T) {
	h := newHarness(t)
	svc := h.service(nil)
	ctx := context.Background()

	h.record(t, "T1", "C1", 1000, september.Start.Add(time.Hour))
	h.record(t, "T2", "C1", 2499, september.Start.Add(48*time.Hour))
	h.record(t, "T2", "C2", 1, september.End.Add(-time.Nanosecond))
	// outside the window
	h.record(t, "T1", "C0", 5000, september.Start.Add(-time.Second))
	h.record(t, "T3", "C9", 7000, september.End)

	first, err := svc.ComputeRoyalties(ctx, september)
	require.NoError(t, err)
	require.Len(t, first, 2)

	assert.Equal(t, "T1", first[0].TenantID)
	assert.Equal(t, int64(1000), first[0].TotalRevenue)
	assert.Equal(t, int64(200), first[0].RoyaltyAmount)
	assert.Equal(t, "T2", first[1].TenantID)
	assert.Equal(t, int64(2500), first[1].TotalRevenue)
	assert.Equal(t, int64(2), first[1].EventCount)
	assert.Equal(t, int64(500), first[1].RoyaltyAmount)

	second, err := svc.ComputeRoyalties(ctx, september)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var count int64
	require.NoError(t, h.db.Model(&royaltydomain.RoyaltyLedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestComputeRoyaltiesReflectsLateEvents(t *testing.T) {
	h := newHarness(t)
	svc := h.service(nil)
	ctx := context.Background()

	h.record(t, "T1", "C1", 1000, september.Start.Add(time.Hour))
	first, err := svc.ComputeRoyalties(ctx, september)
	require.NoError(t, err)
	require.Len(t, first, 1)

	h.record(t, "T1", "C2", 500, september.Start.Add(2*time.Hour))
	second, err := svc.ComputeRoyalties(ctx, september)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, int64(1500), second[0].TotalRevenue)
	assert.Equal(t, int64(300), second[0].RoyaltyAmount)
}

func TestReversalNetsRoyalty(t *testing.T) {
	h := newHarness(t)
	svc := h.service(nil)
	ctx := context.Background()

	h.record(t, "T1", "C1", 1000, september.Start.Add(time.Hour))
	_, created, err := h.ledger.Reverse(ctx, "T1", "C1", "chargeback")
	require.NoError(t, err)
	require.True(t, created)

	entries, err := svc.ComputeRoyalties(ctx, september)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(0), entries[0].TotalRevenue)
	assert.Equal(t, int64(0), entries[0].RoyaltyAmount)
	assert.Equal(t, int64(2), entries[0].EventCount)
}

func TestSuccessFeeAndRoyaltyShareOneEvent(t *testing.T) {
	h := newHarness(t)
	svc := h.service(nil)
	ctx := context.Background()

	event := h.record(t, "T1", "C1", 1000, september.Start.Add(time.Hour))
	fees := successfeeservice.New(successfeeservice.Params{
		DB: h.db, Log: zap.NewNop(), Config: h.cfg, GenID: h.node, Clock: h.clock, Repo: successfeerepo.Provide(),
	})
	charge, _, err := fees.ComputeFee(ctx, event)
	require.NoError(t, err)

	entries, err := svc.ComputeRoyalties(ctx, september)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, int64(150), charge.FeeAmount)
	assert.Equal(t, int64(200), entries[0].RoyaltyAmount)
	assert.Equal(t, event.RecoveredAmount, entries[0].TotalRevenue)
}

func TestComputeRoyaltiesLocking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.record(t, "T1", "C1", 1000, september.Start.Add(time.Hour))

	held := &lockerMock{}
	held.On("TryLock", mock.Anything, "revshare:royalty:run:2026-09", mock.Anything).Return("", false, nil)
	_, err := h.service(held).ComputeRoyalties(ctx, september)
	assert.ErrorIs(t, err, royaltydomain.ErrRunInProgress)
	held.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)

	free := &lockerMock{}
	free.On("TryLock", mock.Anything, "revshare:royalty:run:2026-09", mock.Anything).Return("tok", true, nil)
	free.On("Release", mock.Anything, "revshare:royalty:run:2026-09", "tok").Return(nil).Once()
	entries, err := h.service(free).ComputeRoyalties(ctx, september)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	free.AssertExpectations(t)
}

func TestRoyaltiesRequireOperatorScope(t *testing.T) {
	h := newHarness(t)
	svc := h.service(nil)
	ctx := tenantctx.WithTenantID(context.Background(), "T1")

	_, err := svc.ComputeRoyalties(ctx, september)
	assert.ErrorIs(t, err, royaltydomain.ErrOperatorScope)
	_, err = svc.ListRoyalties(ctx, september)
	assert.ErrorIs(t, err, royaltydomain.ErrOperatorScope)
	_, err = svc.ComputeRoyalties(context.Background(), royaltydomain.Period{})
	assert.ErrorIs(t, err, royaltydomain.ErrInvalidPeriod)
}

func TestRenderStatement(t *testing.T) {
	h := newHarness(t)
	svc := h.service(nil)
	ctx := context.Background()

	h.record(t, "T1", "C1", 1000, september.Start.Add(time.Hour))
	_, err := svc.ComputeRoyalties(ctx, september)
	require.NoError(t, err)

	doc, err := svc.RenderStatement(ctx, september)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

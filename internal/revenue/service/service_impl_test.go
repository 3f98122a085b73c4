package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/revshare/internal/clock"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	"github.com/smallbiznis/revshare/internal/revenue/repository"
	"github.com/smallbiznis/revshare/pkg/db/pagination"
	"github.com/smallbiznis/revshare/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var periodStart = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&revenuedomain.RevenueEvent{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock, repo revenuedomain.Repository) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	if repo == nil {
		repo = repository.Provide()
	}
	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: repo})
	svc.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return svc
}

func saleClosed(tenantID, callID string, amount int64) revenuedomain.AppendRequest {
	return revenuedomain.AppendRequest{
		TenantID:        tenantID,
		SourceCallID:    callID,
		RecoveredAmount: amount,
		Intent:          revenuedomain.IntentSaleClosed,
	}
}

func TestAppendIfAbsentIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	clk := clock.NewFakeClock(periodStart.Add(time.Hour))
	svc := newTestService(t, db, clk, nil)
	ctx := context.Background()

	first, created, err := svc.AppendIfAbsent(ctx, saleClosed("T1", "C1", 1000))
	require.NoError(t, err)
	assert.True(t, created)

	for i := 0; i < 4; i++ {
		clk.Advance(time.Minute)
		again, created, err := svc.AppendIfAbsent(ctx, saleClosed("T1", "C1", 9999))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, int64(1000), again.RecoveredAmount)
		assert.True(t, first.RecordedAt.Equal(again.RecordedAt))
	}

	var count int64
	require.NoError(t, db.Model(&revenuedomain.RevenueEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// same call id under another tenant is a distinct event
	_, created, err = svc.AppendIfAbsent(ctx, saleClosed("T2", "C1", 500))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestAppendIfAbsentConcurrentDeliveries(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db, clock.NewFakeClock(periodStart), nil)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[snowflake.ID]struct{}{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			event, wasNew, err := svc.AppendIfAbsent(context.Background(), saleClosed("T1", "C-race", 700))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if wasNew {
				created++
			}
			ids[event.ID] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)

	var count int64
	require.NoError(t, db.Model(&revenuedomain.RevenueEvent{}).Where("source_call_id = ?", "C-race").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAppendIfAbsentValidation(t *testing.T) {
	svc := newTestService(t, openTestDB(t), clock.NewFakeClock(periodStart), nil)
	ctx := context.Background()

	_, _, err := svc.AppendIfAbsent(ctx, saleClosed("", "C1", 1))
	assert.ErrorIs(t, err, revenuedomain.ErrInvalidTenant)

	_, _, err = svc.AppendIfAbsent(ctx, saleClosed("T1", " ", 1))
	assert.ErrorIs(t, err, revenuedomain.ErrInvalidCallID)

	_, _, err = svc.AppendIfAbsent(ctx, saleClosed("T1", "C1", -1))
	assert.ErrorIs(t, err, revenuedomain.ErrInvalidAmount)

	_, _, err = svc.AppendIfAbsent(ctx, saleClosed("T1", "C1"+revenuedomain.ReversalSuffix, 500))
	assert.ErrorIs(t, err, revenuedomain.ErrInvalidCallID)

	req := saleClosed("T1", "C1", 1)
	req.Intent = "no_action"
	_, _, err = svc.AppendIfAbsent(ctx, req)
	assert.ErrorIs(t, err, revenuedomain.ErrInvalidIntent)

	scoped := tenantctx.WithTenantID(ctx, "T2")
	_, _, err = svc.AppendIfAbsent(scoped, saleClosed("T1", "C1", 1))
	assert.ErrorIs(t, err, tenantctx.ErrScopeMismatch)
}

func TestSumRevenueUsesHalfOpenWindow(t *testing.T) {
	db := openTestDB(t)
	clk := clock.NewFakeClock(periodStart)
	svc := newTestService(t, db, clk, nil)
	ctx := context.Background()
	end := periodStart.AddDate(0, 1, 0)

	at := func(ts time.Time, callID string, amount int64) {
		req := saleClosed("T1", callID, amount)
		req.RecordedAt = ts
		_, _, err := svc.AppendIfAbsent(ctx, req)
		require.NoError(t, err)
	}
	at(periodStart.Add(-time.Nanosecond), "before", 100)
	at(periodStart, "start", 1000)
	at(end.Add(-time.Second), "last", 250)
	at(end, "end", 5000)

	total, err := svc.SumRevenue(ctx, "T1", periodStart, end)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), total)

	total, err = svc.SumRevenue(ctx, "T9", periodStart, end)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, err = svc.SumRevenue(ctx, "T1", end, periodStart)
	assert.ErrorIs(t, err, revenuedomain.ErrInvalidPeriod)
}

func TestListEventsOrderingAndPaging(t *testing.T) {
	db := openTestDB(t)
	clk := clock.NewFakeClock(periodStart)
	svc := newTestService(t, db, clk, nil)
	ctx := context.Background()
	end := periodStart.AddDate(0, 1, 0)

	for _, callID := range []string{"C1", "C2", "C3", "C4", "C5"} {
		clk.Advance(time.Minute)
		_, _, err := svc.AppendIfAbsent(ctx, saleClosed("T1", callID, 10))
		require.NoError(t, err)
	}
	_, _, err := svc.AppendIfAbsent(ctx, saleClosed("T2", "other", 10))
	require.NoError(t, err)

	all, err := svc.ListEvents(ctx, "T1", periodStart, end)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, want := range []string{"C1", "C2", "C3", "C4", "C5"} {
		assert.Equal(t, want, all[i].SourceCallID)
	}

	var (
		seen  []string
		token string
	)
	for {
		page, err := svc.ListEventsPage(ctx, revenuedomain.ListRequest{
			TenantID: "T1", Start: periodStart, End: end, PageToken: token, PageSize: 2,
		})
		require.NoError(t, err)
		for _, e := range page.Events {
			seen = append(seen, e.SourceCallID)
		}
		if !page.HasMore {
			break
		}
		token = page.NextPageToken
	}
	assert.Equal(t, []string{"C1", "C2", "C3", "C4", "C5"}, seen)

	_, err = svc.ListEventsPage(ctx, revenuedomain.ListRequest{
		TenantID: "T1", Start: periodStart, End: end, PageToken: "not-a-token",
	})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}

func TestReverseNetsOutAndIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	clk := clock.NewFakeClock(periodStart.Add(time.Hour))
	svc := newTestService(t, db, clk, nil)
	ctx := context.Background()
	end := periodStart.AddDate(0, 1, 0)

	_, _, err := svc.AppendIfAbsent(ctx, saleClosed("T1", "C1", 1000))
	require.NoError(t, err)

	reversal, created, err := svc.Reverse(ctx, "T1", "C1", "chargeback")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(-1000), reversal.RecoveredAmount)
	assert.Equal(t, "C1:reversal", reversal.SourceCallID)
	require.NotNil(t, reversal.ReversesCallID)
	assert.Equal(t, "C1", *reversal.ReversesCallID)

	_, created, err = svc.Reverse(ctx, "T1", "C1", "chargeback")
	require.NoError(t, err)
	assert.False(t, created)

	total, err := svc.SumRevenue(ctx, "T1", periodStart, end)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	_, _, err = svc.Reverse(ctx, "T1", "C1:reversal", "")
	assert.ErrorIs(t, err, revenuedomain.ErrNotReversible)

	_, _, err = svc.Reverse(ctx, "T1", "missing", "")
	assert.ErrorIs(t, err, revenuedomain.ErrEventNotFound)
}

func TestReverseRefusesSaleStoredUnderReversalKey(t *testing.T) {
	db := openTestDB(t)
	clk := clock.NewFakeClock(periodStart.Add(time.Hour))
	svc := newTestService(t, db, clk, nil)
	ctx := context.Background()
	end := periodStart.AddDate(0, 1, 0)

	_, _, err := svc.AppendIfAbsent(ctx, saleClosed("T1", "C1", 1000))
	require.NoError(t, err)

	// a sale written under the reversal key before intake reserved it
	legacy := revenuedomain.RevenueEvent{
		ID:              snowflake.ID(42),
		TenantID:        "T1",
		SourceCallID:    "C1:reversal",
		RecoveredAmount: 500,
		Intent:          revenuedomain.IntentSaleClosed,
		RecordedAt:      periodStart.Add(2 * time.Hour),
	}
	require.NoError(t, db.Create(&legacy).Error)

	_, created, err := svc.Reverse(ctx, "T1", "C1", "chargeback")
	assert.ErrorIs(t, err, revenuedomain.ErrCallIDConflict)
	assert.False(t, created)

	total, err := svc.SumRevenue(ctx, "T1", periodStart, end)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), total)
}

func TestActiveTenantsAndSummarize(t *testing.T) {
	db := openTestDB(t)
	clk := clock.NewFakeClock(periodStart.Add(time.Hour))
	svc := newTestService(t, db, clk, nil)
	ctx := context.Background()
	end := periodStart.AddDate(0, 1, 0)

	for _, req := range []revenuedomain.AppendRequest{
		saleClosed("T2", "a", 300),
		saleClosed("T1", "b", 100),
		saleClosed("T1", "c", 200),
	} {
		_, _, err := svc.AppendIfAbsent(ctx, req)
		require.NoError(t, err)
	}

	tenants, err := svc.ActiveTenants(ctx, periodStart, end)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, tenants)

	summary, err := svc.Summarize(ctx, "T1", periodStart, end)
	require.NoError(t, err)
	assert.Equal(t, int64(300), summary.TotalRevenue)
	assert.Equal(t, int64(2), summary.EventCount)
}

type repoMock struct {
	mock.Mock
}

func (m *repoMock) Insert(ctx context.Context, db *gorm.DB, event *revenuedomain.RevenueEvent) (bool, error) {
	args := m.Called(ctx, db, event)
	return args.Bool(0), args.Error(1)
}

func (m *repoMock) FindByCallID(ctx context.Context, db *gorm.DB, tenantID, callID string) (*revenuedomain.RevenueEvent, error) {
	args := m.Called(ctx, db, tenantID, callID)
	event, _ := args.Get(0).(*revenuedomain.RevenueEvent)
	return event, args.Error(1)
}

func (m *repoMock) Sum(ctx context.Context, db *gorm.DB, tenantID string, start, end time.Time) (int64, int64, error) {
	args := m.Called(ctx, db, tenantID, start, end)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func (m *repoMock) List(ctx context.Context, db *gorm.DB, tenantID string, start, end time.Time, after *pagination.Cursor, limit int) ([]revenuedomain.RevenueEvent, error) {
	args := m.Called(ctx, db, tenantID, start, end, after, limit)
	return args.Get(0).([]revenuedomain.RevenueEvent), args.Error(1)
}

func (m *repoMock) ActiveTenants(ctx context.Context, db *gorm.DB, start, end time.Time) ([]string, error) {
	args := m.Called(ctx, db, start, end)
	return args.Get(0).([]string), args.Error(1)
}

func TestAppendIfAbsentRetriesInvisibleConflict(t *testing.T) {
	repo := new(repoMock)
	stored := &revenuedomain.RevenueEvent{ID: 77, TenantID: "T1", SourceCallID: "C1", RecoveredAmount: 1000, Intent: revenuedomain.IntentSaleClosed}

	repo.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	repo.On("FindByCallID", mock.Anything, mock.Anything, "T1", "C1").Return(nil, nil).Once()
	repo.On("FindByCallID", mock.Anything, mock.Anything, "T1", "C1").Return(stored, nil).Once()

	svc := newTestService(t, nil, clock.NewFakeClock(periodStart), repo)

	event, created, err := svc.AppendIfAbsent(context.Background(), saleClosed("T1", "C1", 1000))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, snowflake.ID(77), event.ID)
	repo.AssertNumberOfCalls(t, "Insert", 2)
}

func TestAppendIfAbsentSurfacesConflictAfterBoundedAttempts(t *testing.T) {
	repo := new(repoMock)
	repo.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("database is locked"))

	svc := newTestService(t, nil, clock.NewFakeClock(periodStart), repo)
	svc.appendAttempts = 3

	_, _, err := svc.AppendIfAbsent(context.Background(), saleClosed("T1", "C1", 1000))
	assert.ErrorIs(t, err, revenuedomain.ErrLedgerWriteConflict)
	repo.AssertNumberOfCalls(t, "Insert", 3)
}

func TestAppendIfAbsentDoesNotRetryPermanentErrors(t *testing.T) {
	repo := new(repoMock)
	boom := errors.New("no such table: revenue_events")
	repo.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(false, boom)

	svc := newTestService(t, nil, clock.NewFakeClock(periodStart), repo)

	_, _, err := svc.AppendIfAbsent(context.Background(), saleClosed("T1", "C1", 1000))
	assert.ErrorIs(t, err, boom)
	repo.AssertNumberOfCalls(t, "Insert", 1)
}

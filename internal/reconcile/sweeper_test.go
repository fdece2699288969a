package reconcile

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/farizadam/airport-app-sub000/internal/logger"
	"github.com/farizadam/airport-app-sub000/internal/payout"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

type MockPayoutRepo struct {
	mock.Mock
}

func (m *MockPayoutRepo) CreateInTx(ctx context.Context, tx *sqlx.Tx, idempotencyKey string, userID, walletID int, amountCents int64, destinationAccount string) (*payout.Payout, error) {
	args := m.Called(ctx, tx, idempotencyKey, userID, walletID, amountCents, destinationAccount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.Payout), args.Error(1)
}

func (m *MockPayoutRepo) HasActive(ctx context.Context, userID int) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRepo) GetByID(ctx context.Context, id int) (*payout.Payout, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payout.Payout), args.Error(1)
}

func (m *MockPayoutRepo) ListByUser(ctx context.Context, userID int) ([]payout.Payout, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payout.Payout), args.Error(1)
}

func (m *MockPayoutRepo) MarkProcessing(ctx context.Context, id int, transferID string) error {
	return m.Called(ctx, id, transferID).Error(0)
}

func (m *MockPayoutRepo) MarkCompleted(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPayoutRepo) MarkFailed(ctx context.Context, id int, reason string) error {
	return m.Called(ctx, id, reason).Error(0)
}

func (m *MockPayoutRepo) FlagReconcile(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPayoutRepo) FlagManualRefund(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPayoutRepo) ClaimManualRefund(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPayoutRepo) FinalizeLedger(ctx context.Context, idempotencyKey, status, transferID string) error {
	return m.Called(ctx, idempotencyKey, status, transferID).Error(0)
}

func (m *MockPayoutRepo) ListStalePending(ctx context.Context, olderThan time.Time) ([]payout.Payout, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payout.Payout), args.Error(1)
}

func (m *MockPayoutRepo) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]payout.Payout, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payout.Payout), args.Error(1)
}

func (m *MockPayoutRepo) ListManualRefunds(ctx context.Context) ([]payout.Payout, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payout.Payout), args.Error(1)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) ResolvePending(ctx context.Context, p payout.Payout) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockResolver) ResolveProcessing(ctx context.Context, p payout.Payout) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *MockResolver) RetryManualRefund(ctx context.Context, p payout.Payout) error {
	return m.Called(ctx, p).Error(0)
}

func stalePayout(id int, status string) payout.Payout {
	return payout.Payout{
		ID:                 id,
		IdempotencyKey:     "key",
		UserID:             2,
		AmountCents:        5000,
		DestinationAccount: "acct_driver_2",
		Status:             status,
		RequestedAt:        time.Now().Add(-2 * time.Hour),
	}
}

func TestSweepResolvesAllBuckets(t *testing.T) {
	repo := new(MockPayoutRepo)
	resolver := new(MockResolver)
	sweeper := New(repo, resolver, 15*time.Minute, 24*time.Hour)

	pending := stalePayout(1, payout.StatusPending)
	processing := stalePayout(2, payout.StatusProcessing)
	manual := stalePayout(3, payout.StatusFailed)

	repo.On("ListStalePending", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]payout.Payout{pending}, nil)
	repo.On("ListStaleProcessing", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]payout.Payout{processing}, nil)
	repo.On("ListManualRefunds", mock.Anything).Return([]payout.Payout{manual}, nil)

	resolver.On("ResolvePending", mock.Anything, pending).Return("promoted", nil)
	resolver.On("ResolveProcessing", mock.Anything, processing).Return("refunded", nil)
	resolver.On("RetryManualRefund", mock.Anything, manual).Return(nil)

	report, err := sweeper.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.StalePending)
	assert.Equal(t, 1, report.StaleProcessing)
	assert.Equal(t, 1, report.ManualRefunds)
	assert.Equal(t, 0, report.Unresolved)
	resolver.AssertExpectations(t)
}

func TestSweepCountsUnresolved(t *testing.T) {
	repo := new(MockPayoutRepo)
	resolver := new(MockResolver)
	sweeper := New(repo, resolver, 15*time.Minute, 24*time.Hour)

	pending := stalePayout(1, payout.StatusPending)

	repo.On("ListStalePending", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]payout.Payout{pending}, nil)
	repo.On("ListStaleProcessing", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]payout.Payout{}, nil)
	repo.On("ListManualRefunds", mock.Anything).Return([]payout.Payout{}, nil)

	resolver.On("ResolvePending", mock.Anything, pending).
		Return("unresolved", errors.New("processor unreachable"))

	report, err := sweeper.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.StalePending)
	assert.Equal(t, 1, report.Unresolved)
}

func TestSweepRefusesOverlap(t *testing.T) {
	repo := new(MockPayoutRepo)
	resolver := new(MockResolver)
	sweeper := New(repo, resolver, 15*time.Minute, 24*time.Hour)

	started := make(chan struct{})
	release := make(chan struct{})

	repo.On("ListStalePending", mock.Anything, mock.AnythingOfType("time.Time")).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return([]payout.Payout{}, nil)
	repo.On("ListStaleProcessing", mock.Anything, mock.AnythingOfType("time.Time")).
		Return([]payout.Payout{}, nil)
	repo.On("ListManualRefunds", mock.Anything).Return([]payout.Payout{}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := sweeper.Sweep(context.Background())
		done <- err
	}()

	<-started
	_, err := sweeper.Sweep(context.Background())
	assert.Equal(t, ErrSweepInProgress, err)

	close(release)
	require.NoError(t, <-done)
}

func TestSweepListFailureAborts(t *testing.T) {
	repo := new(MockPayoutRepo)
	resolver := new(MockResolver)
	sweeper := New(repo, resolver, 15*time.Minute, 24*time.Hour)

	repo.On("ListStalePending", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(nil, errors.New("db down"))

	_, err := sweeper.Sweep(context.Background())
	require.Error(t, err)
	resolver.AssertNotCalled(t, "ResolvePending", mock.Anything, mock.Anything)
}

package booking

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/farizadam/airport-app-sub000/internal/logger"
	"github.com/farizadam/airport-app-sub000/internal/refund"
	"github.com/farizadam/airport-app-sub000/internal/ride"
	"github.com/farizadam/airport-app-sub000/internal/wallet"

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

type MockBookingRepo struct {
	mock.Mock
}

func (m *MockBookingRepo) CreateBooking(ctx context.Context, rideID, passengerID, seats, luggageCount int, paymentMethod, paymentIntentID string, amountCents int64) (*Booking, error) {
	args := m.Called(ctx, rideID, passengerID, seats, luggageCount, paymentMethod, paymentIntentID, amountCents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *MockBookingRepo) GetBookingByID(ctx context.Context, id int) (*Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Booking), args.Error(1)
}

func (m *MockBookingRepo) MarkPaid(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBookingRepo) MarkCancelled(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBookingRepo) MarkRefunded(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBookingRepo) GetUserBookings(ctx context.Context, passengerID int) ([]BookingWithDetails, error) {
	args := m.Called(ctx, passengerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]BookingWithDetails), args.Error(1)
}

func (m *MockBookingRepo) GetBookingsByRide(ctx context.Context, rideID int) ([]BookingWithDetails, error) {
	args := m.Called(ctx, rideID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]BookingWithDetails), args.Error(1)
}

func (m *MockBookingRepo) ListActiveByRide(ctx context.Context, rideID int) ([]Booking, error) {
	args := m.Called(ctx, rideID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Booking), args.Error(1)
}

type MockRideRepo struct {
	mock.Mock
}

func (m *MockRideRepo) CreateRide(ctx context.Context, driverID int, origin, destination string, departureTime time.Time, pricePerSeatCents int64, seatsTotal, luggageTotal int) (*ride.Ride, error) {
	args := m.Called(ctx, driverID, origin, destination, departureTime, pricePerSeatCents, seatsTotal, luggageTotal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ride.Ride), args.Error(1)
}

func (m *MockRideRepo) GetRideByID(ctx context.Context, id int) (*ride.Ride, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ride.Ride), args.Error(1)
}

func (m *MockRideRepo) SearchRides(ctx context.Context, origin, destination string, from time.Time) ([]ride.Ride, error) {
	args := m.Called(ctx, origin, destination, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ride.Ride), args.Error(1)
}

func (m *MockRideRepo) GetRidesByDriver(ctx context.Context, driverID int) ([]ride.Ride, error) {
	args := m.Called(ctx, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ride.Ride), args.Error(1)
}

func (m *MockRideRepo) ReserveCapacity(ctx context.Context, rideID, seats, luggage int) error {
	return m.Called(ctx, rideID, seats, luggage).Error(0)
}

func (m *MockRideRepo) ReleaseCapacity(ctx context.Context, rideID, seats, luggage int) error {
	return m.Called(ctx, rideID, seats, luggage).Error(0)
}

func (m *MockRideRepo) CancelRide(ctx context.Context, rideID, driverID int) error {
	return m.Called(ctx, rideID, driverID).Error(0)
}

type MockWalletRepo struct {
	mock.Mock
}

func (m *MockWalletRepo) GetOrCreateWallet(ctx context.Context, userID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) GetByUserID(ctx context.Context, userID int) (*wallet.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Wallet), args.Error(1)
}

func (m *MockWalletRepo) Credit(ctx context.Context, userID int, amountCents int64, meta wallet.TxMeta) (*wallet.Transaction, error) {
	args := m.Called(ctx, userID, amountCents, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Transaction), args.Error(1)
}

func (m *MockWalletRepo) Debit(ctx context.Context, userID int, amountCents int64, meta wallet.TxMeta) (*wallet.Transaction, error) {
	args := m.Called(ctx, userID, amountCents, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Transaction), args.Error(1)
}

func (m *MockWalletRepo) DebitWithBalanceCheck(ctx context.Context, userID int, amountCents int64, meta wallet.TxMeta) (*wallet.Transaction, error) {
	args := m.Called(ctx, userID, amountCents, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Transaction), args.Error(1)
}

func (m *MockWalletRepo) CreditInTx(ctx context.Context, tx *sqlx.Tx, userID int, amountCents int64, meta wallet.TxMeta) (*wallet.Transaction, error) {
	args := m.Called(ctx, tx, userID, amountCents, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Transaction), args.Error(1)
}

func (m *MockWalletRepo) DebitInTx(ctx context.Context, tx *sqlx.Tx, userID int, amountCents int64, meta wallet.TxMeta, checkBalance bool) (*wallet.Transaction, error) {
	args := m.Called(ctx, tx, userID, amountCents, meta, checkBalance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Transaction), args.Error(1)
}

func (m *MockWalletRepo) MarkTransactionStatus(ctx context.Context, transactionID int, status, transferID string) error {
	return m.Called(ctx, transactionID, status, transferID).Error(0)
}

func (m *MockWalletRepo) FlagForReview(ctx context.Context, userID int) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockWalletRepo) GetTransactions(ctx context.Context, userID int, limit, offset int, typeFilter string) ([]wallet.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset, typeFilter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]wallet.Transaction), args.Error(1)
}

func (m *MockWalletRepo) SumCompleted(ctx context.Context, walletID int) (int64, error) {
	args := m.Called(ctx, walletID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWalletRepo) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqlx.Tx), args.Error(1)
}

type MockRefunder struct {
	mock.Mock
}

func (m *MockRefunder) Execute(ctx context.Context, mv refund.Movement) error {
	return m.Called(ctx, mv).Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, userID int, notifType string, payload map[string]interface{}) error {
	return m.Called(ctx, userID, notifType, payload).Error(0)
}

func activeRide() *ride.Ride {
	return &ride.Ride{
		ID:                10,
		DriverID:          2,
		Origin:            "Airport T1",
		Destination:       "Downtown",
		DepartureTime:     time.Now().Add(2 * time.Hour),
		PricePerSeatCents: 2000,
		SeatsTotal:        3,
		SeatsLeft:         3,
		LuggageTotal:      2,
		LuggageLeft:       2,
		Status:            ride.StatusActive,
	}
}

func newTestService(bookings *MockBookingRepo, rides *MockRideRepo, wallets *MockWalletRepo, refunds *MockRefunder, notifier *MockNotifier) Service {
	return NewService(bookings, rides, wallets, refunds, notifier, 10)
}

func TestReserveAndBookWithWallet(t *testing.T) {
	bookings := new(MockBookingRepo)
	rides := new(MockRideRepo)
	wallets := new(MockWalletRepo)
	refunds := new(MockRefunder)
	notifier := new(MockNotifier)

	rides.On("GetRideByID", mock.Anything, 10).Return(activeRide(), nil)
	rides.On("ReserveCapacity", mock.Anything, 10, 2, 1).Return(nil)
	bookings.On("CreateBooking", mock.Anything, 10, 7, 2, 1, MethodWallet, "", int64(4000)).
		Return(&Booking{ID: 42, RideID: 10, PassengerID: 7, Seats: 2, LuggageCount: 1, Status: StatusPending, PaymentStatus: PaymentPending, PaymentMethod: MethodWallet, AmountCents: 4000}, nil)
	// Passenger pays gross 4000; driver earns net 3600 at 10% fee.
	wallets.On("DebitWithBalanceCheck", mock.Anything, 7, int64(4000), mock.MatchedBy(func(meta wallet.TxMeta) bool {
		return meta.Type == wallet.TypeRidePayment && meta.GrossCents == 4000 && meta.FeeCents == 400 && meta.NetCents == 3600
	})).Return(&wallet.Transaction{ID: 1}, nil)
	wallets.On("Credit", mock.Anything, 2, int64(3600), mock.MatchedBy(func(meta wallet.TxMeta) bool {
		return meta.Type == wallet.TypeRideEarning && meta.NetCents == 3600
	})).Return(&wallet.Transaction{ID: 2}, nil)
	bookings.On("MarkPaid", mock.Anything, 42).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything, "booking_confirmed", mock.Anything).Return(nil)

	svc := newTestService(bookings, rides, wallets, refunds, notifier)
	booking, err := svc.ReserveAndBook(context.Background(), 7, 10, BookRideRequest{
		Seats:         2,
		LuggageCount:  1,
		PaymentMethod: MethodWallet,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, booking.Status)
	assert.Equal(t, PaymentPaid, booking.PaymentStatus)
	bookings.AssertExpectations(t)
	rides.AssertExpectations(t)
	wallets.AssertExpectations(t)
}

func TestReserveAndBookCapacityConflict(t *testing.T) {
	bookings := new(MockBookingRepo)
	rides := new(MockRideRepo)
	wallets := new(MockWalletRepo)

	rides.On("GetRideByID", mock.Anything, 10).Return(activeRide(), nil)
	rides.On("ReserveCapacity", mock.Anything, 10, 2, 0).Return(&ride.CapacityError{
		SeatsRequested: 2, SeatsLeft: 1,
	})

	svc := newTestService(bookings, rides, wallets, new(MockRefunder), new(MockNotifier))
	_, err := svc.ReserveAndBook(context.Background(), 7, 10, BookRideRequest{
		Seats:         2,
		PaymentMethod: MethodWallet,
	})

	require.Error(t, err)
	capErr, ok := err.(*ride.CapacityError)
	require.True(t, ok)
	assert.Equal(t, 1, capErr.SeatsLeft)
	bookings.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	wallets.AssertNotCalled(t, "DebitWithBalanceCheck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReserveAndBookInsufficientBalance(t *testing.T) {
	bookings := new(MockBookingRepo)
	rides := new(MockRideRepo)
	wallets := new(MockWalletRepo)

	rd := activeRide()
	rd.PricePerSeatCents = 4000

	rides.On("GetRideByID", mock.Anything, 10).Return(rd, nil)
	rides.On("ReserveCapacity", mock.Anything, 10, 2, 0).Return(nil)
	bookings.On("CreateBooking", mock.Anything, 10, 7, 2, 0, MethodWallet, "", int64(8000)).
		Return(&Booking{ID: 42, RideID: 10, PassengerID: 7, AmountCents: 8000}, nil)
	wallets.On("DebitWithBalanceCheck", mock.Anything, 7, int64(8000), mock.Anything).
		Return(nil, &wallet.InsufficientBalanceError{RequiredCents: 8000, AvailableCents: 5000})
	// Payment failed: booking is cancelled and the reservation undone.
	bookings.On("MarkCancelled", mock.Anything, 42).Return(nil)
	rides.On("ReleaseCapacity", mock.Anything, 10, 2, 0).Return(nil)

	svc := newTestService(bookings, rides, wallets, new(MockRefunder), new(MockNotifier))
	_, err := svc.ReserveAndBook(context.Background(), 7, 10, BookRideRequest{
		Seats:         2,
		PaymentMethod: MethodWallet,
	})

	require.Error(t, err)
	assert.True(t, wallet.IsInsufficientBalance(err))
	var balErr *wallet.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, int64(8000), balErr.RequiredCents)
	assert.Equal(t, int64(5000), balErr.AvailableCents)
	bookings.AssertExpectations(t)
	rides.AssertExpectations(t)
}

func TestReserveAndBookOwnRide(t *testing.T) {
	rides := new(MockRideRepo)
	rides.On("GetRideByID", mock.Anything, 10).Return(activeRide(), nil)

	svc := newTestService(new(MockBookingRepo), rides, new(MockWalletRepo), new(MockRefunder), new(MockNotifier))
	_, err := svc.ReserveAndBook(context.Background(), 2, 10, BookRideRequest{
		Seats:         1,
		PaymentMethod: MethodWallet,
	})

	assert.Equal(t, ErrOwnRide, err)
}

func TestCancelBookingPaidTriggersRefund(t *testing.T) {
	bookings := new(MockBookingRepo)
	rides := new(MockRideRepo)
	refunds := new(MockRefunder)
	notifier := new(MockNotifier)

	bookings.On("GetBookingByID", mock.Anything, 42).Return(&Booking{
		ID: 42, RideID: 10, PassengerID: 7, Seats: 2, LuggageCount: 1,
		Status: StatusAccepted, PaymentStatus: PaymentPaid, PaymentMethod: MethodWallet, AmountCents: 4000,
	}, nil)
	bookings.On("MarkCancelled", mock.Anything, 42).Return(nil)
	rides.On("GetRideByID", mock.Anything, 10).Return(activeRide(), nil)
	rides.On("ReleaseCapacity", mock.Anything, 10, 2, 1).Return(nil)
	bookings.On("MarkRefunded", mock.Anything, 42).Return(nil)
	refunds.On("Execute", mock.Anything, mock.MatchedBy(func(mv refund.Movement) bool {
		return mv.ReferenceID == "42" && mv.DriverID == 2 && mv.PassengerID == 7 && mv.GrossCents == 4000
	})).Return(nil)
	notifier.On("Notify", mock.Anything, 2, "booking_cancelled", mock.Anything).Return(nil)

	svc := newTestService(bookings, rides, new(MockWalletRepo), refunds, notifier)
	booking, err := svc.CancelBooking(context.Background(), 7, 42)

	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, booking.Status)
	bookings.AssertExpectations(t)
	rides.AssertExpectations(t)
	refunds.AssertExpectations(t)
}

func TestCancelBookingAlreadyRefundedIsNoOp(t *testing.T) {
	bookings := new(MockBookingRepo)
	rides := new(MockRideRepo)
	refunds := new(MockRefunder)
	notifier := new(MockNotifier)

	bookings.On("GetBookingByID", mock.Anything, 42).Return(&Booking{
		ID: 42, RideID: 10, PassengerID: 7, Seats: 1,
		Status: StatusAccepted, PaymentStatus: PaymentPaid, PaymentMethod: MethodWallet, AmountCents: 2000,
	}, nil)
	bookings.On("MarkCancelled", mock.Anything, 42).Return(nil)
	rides.On("GetRideByID", mock.Anything, 10).Return(activeRide(), nil)
	rides.On("ReleaseCapacity", mock.Anything, 10, 1, 0).Return(nil)
	// Another path already won the refund flip.
	bookings.On("MarkRefunded", mock.Anything, 42).Return(ErrAlreadyRefunded)
	notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(bookings, rides, new(MockWalletRepo), refunds, notifier)
	_, err := svc.CancelBooking(context.Background(), 7, 42)

	require.NoError(t, err)
	refunds.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestCancelBookingWrongUser(t *testing.T) {
	bookings := new(MockBookingRepo)
	bookings.On("GetBookingByID", mock.Anything, 42).Return(&Booking{ID: 42, PassengerID: 7}, nil)

	svc := newTestService(bookings, new(MockRideRepo), new(MockWalletRepo), new(MockRefunder), new(MockNotifier))
	_, err := svc.CancelBooking(context.Background(), 8, 42)

	assert.Equal(t, ErrNotYourBooking, err)
}

func TestCancelRideCascades(t *testing.T) {
	bookings := new(MockBookingRepo)
	rides := new(MockRideRepo)
	refunds := new(MockRefunder)
	notifier := new(MockNotifier)

	rides.On("CancelRide", mock.Anything, 10, 2).Return(nil)
	bookings.On("ListActiveByRide", mock.Anything, 10).Return([]Booking{
		{ID: 42, RideID: 10, PassengerID: 7, Seats: 1, Status: StatusAccepted, PaymentStatus: PaymentPaid, PaymentMethod: MethodWallet, AmountCents: 2000},
		{ID: 43, RideID: 10, PassengerID: 8, Seats: 1, Status: StatusPending, PaymentStatus: PaymentPending, PaymentMethod: MethodWallet},
	}, nil)
	bookings.On("MarkCancelled", mock.Anything, 42).Return(nil)
	bookings.On("MarkCancelled", mock.Anything, 43).Return(nil)
	bookings.On("MarkRefunded", mock.Anything, 42).Return(nil)
	refunds.On("Execute", mock.Anything, mock.MatchedBy(func(mv refund.Movement) bool {
		return mv.ReferenceID == "42" && mv.GrossCents == 2000
	})).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything, "booking_cancelled", mock.Anything).Return(nil)

	svc := newTestService(bookings, rides, new(MockWalletRepo), refunds, notifier)
	cancelled, err := svc.CancelRide(context.Background(), 2, 10)

	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)
	refunds.AssertNumberOfCalls(t, "Execute", 1)
}

package booking

import (
	"context"
	"errors"
	"strconv"

	"github.com/farizadam/airport-app-sub000/internal/logger"
	"github.com/farizadam/airport-app-sub000/internal/metrics"
	"github.com/farizadam/airport-app-sub000/internal/refund"
	"github.com/farizadam/airport-app-sub000/internal/ride"
	"github.com/farizadam/airport-app-sub000/internal/wallet"
)

var (
	ErrOwnRide          = errors.New("drivers cannot book their own ride")
	ErrNotYourBooking   = errors.New("booking belongs to another user")
	ErrNotYourRide      = errors.New("ride belongs to another driver")
	ErrCardIntentNeeded = errors.New("payment_intent_id is required for card payments")
)

type Refunder interface {
	Execute(ctx context.Context, m refund.Movement) error
}

type Notifier interface {
	Notify(ctx context.Context, userID int, notifType string, payload map[string]interface{}) error
}

type Service interface {
	ReserveAndBook(ctx context.Context, passengerID, rideID int, req BookRideRequest) (*Booking, error)
	CancelBooking(ctx context.Context, userID, bookingID int) (*Booking, error)
	CancelRide(ctx context.Context, driverID, rideID int) (int, error)
	GetUserBookings(ctx context.Context, passengerID int) ([]BookingWithDetails, error)
	GetBookingsByRide(ctx context.Context, driverID, rideID int) ([]BookingWithDetails, error)
}

type service struct {
	bookings   Repository
	rides      ride.Repository
	wallets    wallet.Repository
	refunds    Refunder
	notifier   Notifier
	feePercent float64
}

func NewService(bookings Repository, rides ride.Repository, wallets wallet.Repository, refunds Refunder, notifier Notifier, feePercent float64) Service {
	return &service{
		bookings:   bookings,
		rides:      rides,
		wallets:    wallets,
		refunds:    refunds,
		notifier:   notifier,
		feePercent: feePercent,
	}
}

// ReserveAndBook is the pay-now booking path: reserve capacity, settle
// payment, then promote the booking to accepted/paid. Capacity is released
// again if payment does not settle.
func (s *service) ReserveAndBook(ctx context.Context, passengerID, rideID int, req BookRideRequest) (*Booking, error) {
	rd, err := s.rides.GetRideByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if rd.DriverID == passengerID {
		return nil, ErrOwnRide
	}
	if req.PaymentMethod == MethodCard && req.PaymentIntentID == "" {
		return nil, ErrCardIntentNeeded
	}

	gross := rd.PricePerSeatCents * int64(req.Seats)
	fees := wallet.ComputeFee(gross, s.feePercent)

	if err := s.rides.ReserveCapacity(ctx, rideID, req.Seats, req.LuggageCount); err != nil {
		var capErr *ride.CapacityError
		if errors.As(err, &capErr) {
			metrics.CapacityConflictsTotal.Inc()
		}
		return nil, err
	}

	booking, err := s.bookings.CreateBooking(ctx, rideID, passengerID, req.Seats, req.LuggageCount,
		req.PaymentMethod, req.PaymentIntentID, gross)
	if err != nil {
		s.releaseCapacity(ctx, rideID, req.Seats, req.LuggageCount)
		return nil, err
	}

	refID := strconv.Itoa(booking.ID)

	if req.PaymentMethod == MethodWallet {
		_, err = s.wallets.DebitWithBalanceCheck(ctx, passengerID, gross, wallet.TxMeta{
			Type:          wallet.TypeRidePayment,
			Status:        wallet.StatusCompleted,
			GrossCents:    fees.GrossCents,
			FeeCents:      fees.FeeCents,
			FeePercent:    fees.FeePercent,
			NetCents:      fees.NetCents,
			ReferenceType: "booking",
			ReferenceID:   refID,
		})
		if err != nil {
			if cancelErr := s.bookings.MarkCancelled(ctx, booking.ID); cancelErr != nil {
				logger.Errorf("Failed to cancel unpaid booking %d: %v", booking.ID, cancelErr)
			}
			s.releaseCapacity(ctx, rideID, req.Seats, req.LuggageCount)
			return nil, err
		}
		metrics.RecordWalletDebit(wallet.TypeRidePayment)
	}

	// The driver earns the net amount; the platform fee is the difference
	// between what the passenger paid and what the driver receives.
	if _, err := s.wallets.Credit(ctx, rd.DriverID, fees.NetCents, wallet.TxMeta{
		Type:          wallet.TypeRideEarning,
		Status:        wallet.StatusCompleted,
		GrossCents:    fees.GrossCents,
		FeeCents:      fees.FeeCents,
		FeePercent:    fees.FeePercent,
		NetCents:      fees.NetCents,
		ReferenceType: "booking",
		ReferenceID:   refID,
	}); err != nil {
		logger.Errorf("Failed to credit driver %d for booking %d: %v", rd.DriverID, booking.ID, err)
		if flagErr := s.wallets.FlagForReview(ctx, rd.DriverID); flagErr != nil {
			logger.Errorf("Failed to flag wallet of driver %d: %v", rd.DriverID, flagErr)
		}
	} else {
		metrics.RecordWalletCredit(wallet.TypeRideEarning)
	}

	if err := s.bookings.MarkPaid(ctx, booking.ID); err != nil {
		logger.Errorf("Failed to mark booking %d paid: %v", booking.ID, err)
	}
	booking.Status = StatusAccepted
	booking.PaymentStatus = PaymentPaid

	metrics.RecordBooking(StatusAccepted, req.PaymentMethod)
	s.notify(ctx, rd.DriverID, "booking_confirmed", map[string]interface{}{
		"booking_id": booking.ID,
		"ride_id":    rideID,
		"seats":      req.Seats,
	})
	s.notify(ctx, passengerID, "booking_confirmed", map[string]interface{}{
		"booking_id":   booking.ID,
		"ride_id":      rideID,
		"amount_cents": gross,
	})

	return booking, nil
}

func (s *service) CancelBooking(ctx context.Context, userID, bookingID int) (*Booking, error) {
	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.PassengerID != userID {
		return nil, ErrNotYourBooking
	}

	// The guarded flip decides the single winner; everything after it runs
	// exactly once per booking.
	if err := s.bookings.MarkCancelled(ctx, bookingID); err != nil {
		return nil, err
	}

	rd, err := s.rides.GetRideByID(ctx, booking.RideID)
	if err != nil {
		return nil, err
	}

	if booking.Status == StatusAccepted && rd.Status == ride.StatusActive {
		s.releaseCapacity(ctx, booking.RideID, booking.Seats, booking.LuggageCount)
	}

	s.refundIfPaid(ctx, booking, rd.DriverID)

	metrics.RecordBookingCancellation()
	s.notify(ctx, rd.DriverID, "booking_cancelled", map[string]interface{}{
		"booking_id": booking.ID,
		"ride_id":    booking.RideID,
	})

	booking.Status = StatusCancelled
	return booking, nil
}

// CancelRide flips the ride to cancelled and cascades cancellation and
// refunds to every active booking. Returns the number of bookings cancelled.
func (s *service) CancelRide(ctx context.Context, driverID, rideID int) (int, error) {
	if err := s.rides.CancelRide(ctx, rideID, driverID); err != nil {
		return 0, err
	}

	active, err := s.bookings.ListActiveByRide(ctx, rideID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, b := range active {
		if err := s.bookings.MarkCancelled(ctx, b.ID); err != nil {
			logger.Errorf("Failed to cancel booking %d on ride %d: %v", b.ID, rideID, err)
			continue
		}
		cancelled++

		s.refundIfPaid(ctx, &b, driverID)
		metrics.RecordBookingCancellation()
		s.notify(ctx, b.PassengerID, "booking_cancelled", map[string]interface{}{
			"booking_id": b.ID,
			"ride_id":    rideID,
			"reason":     "ride_cancelled",
		})
	}

	return cancelled, nil
}

func (s *service) GetUserBookings(ctx context.Context, passengerID int) ([]BookingWithDetails, error) {
	return s.bookings.GetUserBookings(ctx, passengerID)
}

func (s *service) GetBookingsByRide(ctx context.Context, driverID, rideID int) ([]BookingWithDetails, error) {
	rd, err := s.rides.GetRideByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if rd.DriverID != driverID {
		return nil, ErrNotYourRide
	}
	return s.bookings.GetBookingsByRide(ctx, rideID)
}

// refundIfPaid wins (or loses) the paid -> refunded flip and, when it wins,
// runs the compensating movement. Losing the flip means another path already
// refunded this booking.
func (s *service) refundIfPaid(ctx context.Context, b *Booking, driverID int) {
	if b.PaymentStatus != PaymentPaid {
		return
	}
	if err := s.bookings.MarkRefunded(ctx, b.ID); err != nil {
		if !errors.Is(err, ErrAlreadyRefunded) {
			logger.Errorf("Failed to flip booking %d to refunded: %v", b.ID, err)
		}
		return
	}

	intentID := ""
	if b.PaymentIntentID != nil {
		intentID = *b.PaymentIntentID
	}
	if err := s.refunds.Execute(ctx, refund.Movement{
		ReferenceType:   "booking",
		ReferenceID:     strconv.Itoa(b.ID),
		DriverID:        driverID,
		PassengerID:     b.PassengerID,
		GrossCents:      b.AmountCents,
		PaymentMethod:   b.PaymentMethod,
		PaymentIntentID: intentID,
	}); err != nil {
		logger.Errorf("Refund failed for booking %d: %v", b.ID, err)
	}
}

func (s *service) releaseCapacity(ctx context.Context, rideID, seats, luggage int) {
	if err := s.rides.ReleaseCapacity(ctx, rideID, seats, luggage); err != nil {
		logger.Errorf("Failed to release capacity on ride %d (%d seats, %d luggage): %v", rideID, seats, luggage, err)
	}
}

func (s *service) notify(ctx context.Context, userID int, notifType string, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, notifType, payload); err != nil {
		logger.Errorf("Failed to notify user %d (%s): %v", userID, notifType, err)
	}
}

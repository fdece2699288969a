package request

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/farizadam/airport-app-sub000/internal/booking"
	"github.com/farizadam/airport-app-sub000/internal/logger"
	"github.com/farizadam/airport-app-sub000/internal/metrics"
	"github.com/farizadam/airport-app-sub000/internal/payment"
	"github.com/farizadam/airport-app-sub000/internal/ride"
	"github.com/farizadam/airport-app-sub000/internal/wallet"
)

var (
	ErrNotYourRequest   = errors.New("request belongs to another passenger")
	ErrNotYourRide      = errors.New("ride belongs to another driver")
	ErrOwnRequest       = errors.New("drivers cannot offer on their own request")
	ErrCardIntentNeeded = errors.New("payment_intent_id is required for card payments")
)

type Notifier interface {
	Notify(ctx context.Context, userID int, notifType string, payload map[string]interface{}) error
}

type Service interface {
	CreateRequest(ctx context.Context, passengerID int, req CreateRequestRequest) (*RideRequest, error)
	ListOpenRequests(ctx context.Context) ([]RideRequest, error)
	ListMyRequests(ctx context.Context, passengerID int) ([]RideRequest, error)
	GetRequest(ctx context.Context, requestID int) (*RequestWithOffers, error)
	CancelRequest(ctx context.Context, passengerID, requestID int) error

	CreateOffer(ctx context.Context, driverID, requestID int, req CreateOfferRequest) (*Offer, error)
	AcceptOffer(ctx context.Context, passengerID, requestID, offerID int, req AcceptOfferRequest) (*RideRequest, error)
	RejectOffer(ctx context.Context, passengerID, requestID, offerID int) error
}

type service struct {
	requests   Repository
	bookings   booking.Repository
	rides      ride.Repository
	wallets    wallet.Repository
	processor  payment.Processor
	notifier   Notifier
	feePercent float64
}

func NewService(requests Repository, bookings booking.Repository, rides ride.Repository, wallets wallet.Repository, processor payment.Processor, notifier Notifier, feePercent float64) Service {
	return &service{
		requests:   requests,
		bookings:   bookings,
		rides:      rides,
		wallets:    wallets,
		processor:  processor,
		notifier:   notifier,
		feePercent: feePercent,
	}
}

func (s *service) CreateRequest(ctx context.Context, passengerID int, req CreateRequestRequest) (*RideRequest, error) {
	departureTime, err := time.Parse(time.RFC3339, req.DepartureTime)
	if err != nil {
		return nil, errors.New("invalid departure_time format, use RFC3339")
	}
	if departureTime.Before(time.Now()) {
		return nil, errors.New("departure_time must be in the future")
	}
	return s.requests.CreateRequest(ctx, passengerID, req.Origin, req.Destination, departureTime, req.Seats, req.LuggageCount)
}

func (s *service) ListOpenRequests(ctx context.Context) ([]RideRequest, error) {
	return s.requests.ListOpen(ctx, time.Now())
}

func (s *service) ListMyRequests(ctx context.Context, passengerID int) ([]RideRequest, error) {
	return s.requests.ListByPassenger(ctx, passengerID)
}

func (s *service) GetRequest(ctx context.Context, requestID int) (*RequestWithOffers, error) {
	req, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	offers, err := s.requests.ListOffersByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if offers == nil {
		offers = []Offer{}
	}

	return &RequestWithOffers{RideRequest: *req, Offers: offers}, nil
}

func (s *service) CancelRequest(ctx context.Context, passengerID, requestID int) error {
	if err := s.requests.CancelRequest(ctx, requestID, passengerID); err != nil {
		return err
	}
	if err := s.requests.RejectPendingOffers(ctx, requestID); err != nil {
		logger.Errorf("Failed to reject pending offers on request %d: %v", requestID, err)
	}
	return nil
}

func (s *service) CreateOffer(ctx context.Context, driverID, requestID int, req CreateOfferRequest) (*Offer, error) {
	request, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != StatusPending {
		return nil, ErrRequestNotPending
	}
	if request.PassengerID == driverID {
		return nil, ErrOwnRequest
	}

	rd, err := s.rides.GetRideByID(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if rd.DriverID != driverID {
		return nil, ErrNotYourRide
	}
	if rd.Status != ride.StatusActive {
		return nil, ride.ErrRideNotActive
	}

	offer, err := s.requests.CreateOffer(ctx, requestID, driverID, req.RideID, req.PricePerSeatCents, req.Message)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, request.PassengerID, "offer_received", map[string]interface{}{
		"request_id":           requestID,
		"offer_id":             offer.ID,
		"price_per_seat_cents": req.PricePerSeatCents,
	})

	return offer, nil
}

// AcceptOffer runs the acceptance saga: reserve capacity, move money, then
// attempt the authoritative pending -> accepted flip on the request. The
// flip, not the reservation, is the commit point; when it is lost to a
// concurrent accept, money and capacity taken by this attempt are unwound
// in reverse order.
func (s *service) AcceptOffer(ctx context.Context, passengerID, requestID, offerID int, req AcceptOfferRequest) (*RideRequest, error) {
	request, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.PassengerID != passengerID {
		return nil, ErrNotYourRequest
	}
	if request.Status != StatusPending {
		return nil, ErrOptimisticConflict
	}

	offer, err := s.requests.GetOfferByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.RequestID != requestID {
		return nil, ErrOfferNotFound
	}
	if offer.Status != OfferPending {
		return nil, ErrOptimisticConflict
	}
	if req.PaymentMethod == booking.MethodCard && req.PaymentIntentID == "" {
		return nil, ErrCardIntentNeeded
	}

	gross := offer.PricePerSeatCents * int64(request.Seats)
	fees := wallet.ComputeFee(gross, s.feePercent)
	refID := strconv.Itoa(requestID)

	// Step 1: capacity.
	if err := s.rides.ReserveCapacity(ctx, offer.RideID, request.Seats, request.LuggageCount); err != nil {
		var capErr *ride.CapacityError
		if errors.As(err, &capErr) {
			metrics.CapacityConflictsTotal.Inc()
		}
		return nil, err
	}

	// Step 2: money.
	if req.PaymentMethod == booking.MethodWallet {
		_, err = s.wallets.DebitWithBalanceCheck(ctx, passengerID, gross, wallet.TxMeta{
			Type:          wallet.TypeRidePayment,
			Status:        wallet.StatusCompleted,
			GrossCents:    fees.GrossCents,
			FeeCents:      fees.FeeCents,
			FeePercent:    fees.FeePercent,
			NetCents:      fees.NetCents,
			ReferenceType: "request",
			ReferenceID:   refID,
		})
		if err != nil {
			s.releaseCapacity(ctx, offer.RideID, request.Seats, request.LuggageCount)
			return nil, err
		}
		metrics.RecordWalletDebit(wallet.TypeRidePayment)
	}

	if _, err := s.wallets.Credit(ctx, offer.DriverID, fees.NetCents, wallet.TxMeta{
		Type:          wallet.TypeRideEarning,
		Status:        wallet.StatusCompleted,
		GrossCents:    fees.GrossCents,
		FeeCents:      fees.FeeCents,
		FeePercent:    fees.FeePercent,
		NetCents:      fees.NetCents,
		ReferenceType: "request",
		ReferenceID:   refID,
	}); err != nil {
		s.rollbackPayment(ctx, passengerID, 0, gross, 0, req, refID)
		s.releaseCapacity(ctx, offer.RideID, request.Seats, request.LuggageCount)
		return nil, err
	}
	metrics.RecordWalletCredit(wallet.TypeRideEarning)

	bookingRow, err := s.bookings.CreateBooking(ctx, offer.RideID, passengerID, request.Seats, request.LuggageCount,
		req.PaymentMethod, req.PaymentIntentID, gross)
	if err != nil {
		s.rollbackPayment(ctx, passengerID, offer.DriverID, gross, fees.NetCents, req, refID)
		s.releaseCapacity(ctx, offer.RideID, request.Seats, request.LuggageCount)
		return nil, err
	}

	// Step 3: the authoritative flip.
	if err := s.requests.AcceptRequestFlip(ctx, requestID, offerID, bookingRow.ID); err != nil {
		if cancelErr := s.bookings.MarkCancelled(ctx, bookingRow.ID); cancelErr != nil {
			logger.Errorf("Failed to cancel booking %d after losing accept race: %v", bookingRow.ID, cancelErr)
		}
		s.rollbackPayment(ctx, passengerID, offer.DriverID, gross, fees.NetCents, req, refID)
		s.releaseCapacity(ctx, offer.RideID, request.Seats, request.LuggageCount)
		if errors.Is(err, ErrOptimisticConflict) {
			metrics.OfferAcceptConflictsTotal.Inc()
		}
		return nil, err
	}

	if err := s.bookings.MarkPaid(ctx, bookingRow.ID); err != nil {
		logger.Errorf("Failed to mark booking %d paid: %v", bookingRow.ID, err)
	}
	if err := s.requests.ResolveOffers(ctx, requestID, offerID); err != nil {
		logger.Errorf("Failed to resolve offers on request %d: %v", requestID, err)
	}

	metrics.OffersAcceptedTotal.Inc()
	metrics.RecordBooking(booking.StatusAccepted, req.PaymentMethod)

	s.notify(ctx, offer.DriverID, "offer_accepted", map[string]interface{}{
		"request_id": requestID,
		"offer_id":   offerID,
		"booking_id": bookingRow.ID,
	})

	request.Status = StatusAccepted
	request.AcceptedOfferID = &offerID
	request.BookingID = &bookingRow.ID
	return request, nil
}

func (s *service) RejectOffer(ctx context.Context, passengerID, requestID, offerID int) error {
	request, err := s.requests.GetRequestByID(ctx, requestID)
	if err != nil {
		return err
	}
	if request.PassengerID != passengerID {
		return ErrNotYourRequest
	}

	offer, err := s.requests.GetOfferByID(ctx, offerID)
	if err != nil {
		return err
	}
	if offer.RequestID != requestID {
		return ErrOfferNotFound
	}

	if err := s.requests.RejectOffer(ctx, offerID); err != nil {
		return err
	}

	s.notify(ctx, offer.DriverID, "offer_rejected", map[string]interface{}{
		"request_id": requestID,
		"offer_id":   offerID,
	})
	return nil
}

// rollbackPayment reverses the money this attempt moved. The passenger gets
// the full gross back; the driver gives back the net they were credited
// (driverNetCents == 0 when the driver was never credited). Card charges are
// reversed best effort through the processor.
func (s *service) rollbackPayment(ctx context.Context, passengerID, driverID int, grossCents, driverNetCents int64, req AcceptOfferRequest, refID string) {
	if driverID != 0 && driverNetCents > 0 {
		if _, err := s.wallets.Debit(ctx, driverID, driverNetCents, wallet.TxMeta{
			Type:          wallet.TypeAdjustment,
			Status:        wallet.StatusCompleted,
			ReferenceType: "request",
			ReferenceID:   refID,
		}); err != nil {
			logger.Errorf("Rollback debit failed for driver %d on request %s: %v", driverID, refID, err)
			if flagErr := s.wallets.FlagForReview(ctx, driverID); flagErr != nil {
				logger.Errorf("Failed to flag wallet of driver %d: %v", driverID, flagErr)
			}
		}
	}

	if req.PaymentMethod == booking.MethodWallet {
		if _, err := s.wallets.Credit(ctx, passengerID, grossCents, wallet.TxMeta{
			Type:          wallet.TypeRefund,
			Status:        wallet.StatusCompleted,
			ReferenceType: "request",
			ReferenceID:   refID,
		}); err != nil {
			logger.Errorf("Rollback credit failed for passenger %d on request %s: %v", passengerID, refID, err)
			if flagErr := s.wallets.FlagForReview(ctx, passengerID); flagErr != nil {
				logger.Errorf("Failed to flag wallet of passenger %d: %v", passengerID, flagErr)
			}
		}
	} else if req.PaymentIntentID != "" {
		if _, err := s.processor.CreateRefund(ctx, req.PaymentIntentID, grossCents); err != nil {
			logger.Errorf("Rollback card refund failed for request %s (intent %s): %v", refID, req.PaymentIntentID, err)
		}
	}
}

func (s *service) releaseCapacity(ctx context.Context, rideID, seats, luggage int) {
	if err := s.rides.ReleaseCapacity(ctx, rideID, seats, luggage); err != nil {
		logger.Errorf("Failed to release capacity on ride %d: %v", rideID, err)
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

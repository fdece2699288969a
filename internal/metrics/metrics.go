package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airlift_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airlift_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airlift_bookings_total",
			Help: "Total number of bookings",
		},
		[]string{"status", "payment_method"},
	)

	BookingCancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airlift_booking_cancellations_total",
			Help: "Total number of booking cancellations",
		},
	)

	CapacityConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airlift_capacity_conflicts_total",
			Help: "Reservation attempts rejected for lack of seats or luggage space",
		},
	)

	OffersAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airlift_offers_accepted_total",
			Help: "Total number of accepted offers",
		},
	)

	OfferAcceptConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airlift_offer_accept_conflicts_total",
			Help: "Accept attempts that lost the race on a request",
		},
	)

	WalletCreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airlift_wallet_credits_total",
			Help: "Total number of wallet credits",
		},
		[]string{"type"},
	)

	WalletDebitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airlift_wallet_debits_total",
			Help: "Total number of wallet debits",
		},
		[]string{"type"},
	)

	PayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airlift_payouts_total",
			Help: "Payout requests by terminal outcome",
		},
		[]string{"outcome"},
	)

	ReconcileResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airlift_reconcile_resolutions_total",
			Help: "Stuck payouts resolved by the reconciliation sweep",
		},
		[]string{"resolution"},
	)

	RefundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airlift_refunds_total",
			Help: "Total number of refunds issued",
		},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "airlift_notification_queue_length",
			Help: "Current length of the notification queue",
		},
	)

	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airlift_notifications_sent_total",
			Help: "Total number of notifications delivered",
		},
		[]string{"type", "status"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(status, paymentMethod string) {
	BookingsTotal.WithLabelValues(status, paymentMethod).Inc()
}

func RecordBookingCancellation() {
	BookingCancellationsTotal.Inc()
}

func RecordWalletCredit(txType string) {
	WalletCreditsTotal.WithLabelValues(txType).Inc()
}

func RecordWalletDebit(txType string) {
	WalletDebitsTotal.WithLabelValues(txType).Inc()
}

func RecordPayout(outcome string) {
	PayoutsTotal.WithLabelValues(outcome).Inc()
}

func RecordReconcileResolution(resolution string) {
	ReconcileResolutionsTotal.WithLabelValues(resolution).Inc()
}

func RecordRefund() {
	RefundsTotal.Inc()
}

func RecordNotification(notifType, status string) {
	NotificationsSentTotal.WithLabelValues(notifType, status).Inc()
}

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/farizadam/airport-app-sub000/internal/auth"
	"github.com/farizadam/airport-app-sub000/internal/booking"
	"github.com/farizadam/airport-app-sub000/internal/config"
	"github.com/farizadam/airport-app-sub000/internal/notify"
	"github.com/farizadam/airport-app-sub000/internal/payment"
	"github.com/farizadam/airport-app-sub000/internal/payout"
	"github.com/farizadam/airport-app-sub000/internal/reconcile"
	"github.com/farizadam/airport-app-sub000/internal/refund"
	"github.com/farizadam/airport-app-sub000/internal/request"
	"github.com/farizadam/airport-app-sub000/internal/ride"
	"github.com/farizadam/airport-app-sub000/internal/user"
	"github.com/farizadam/airport-app-sub000/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Server struct {
	router *gin.Engine
	db     *sqlx.DB
	config *config.Config
	http   *http.Server
}

// Deps carries the collaborators main builds outside the router: the payout
// service is shared with the reconciliation sweeper, and the notifier runs
// its own worker loop.
type Deps struct {
	Notifier  *notify.Service
	Processor payment.Processor
	Payouts   payout.Service
	Sweeper   *reconcile.Sweeper
}

func New(db *sqlx.DB, cfg *config.Config, deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

	walletRepo := wallet.NewRepository(db)
	rideRepo := ride.NewRepository(db)
	bookingRepo := booking.NewRepository(db)
	requestRepo := request.NewRepository(db)

	refundSvc := refund.NewService(walletRepo, deps.Processor, deps.Notifier, cfg.PlatformFeePercent)
	bookingSvc := booking.NewService(bookingRepo, rideRepo, walletRepo, refundSvc, deps.Notifier, cfg.PlatformFeePercent)
	requestSvc := request.NewService(requestRepo, bookingRepo, rideRepo, walletRepo, deps.Processor, deps.Notifier, cfg.PlatformFeePercent)

	userHandler := user.NewHandler(db, cfg.JWTSecret)
	rideHandler := ride.NewHandlerWithRepo(rideRepo)
	walletHandler := wallet.NewHandlerWithRepo(walletRepo)
	bookingHandler := booking.NewHandler(bookingSvc)
	requestHandler := request.NewHandler(requestSvc)
	payoutHandler := payout.NewHandler(deps.Payouts)
	notifyHandler := notify.NewHandler(db)
	reconcileHandler := reconcile.NewHandler(deps.Sweeper)

	public := router.Group("/auth")
	{
		public.POST("/register", userHandler.Register)
		public.POST("/login", userHandler.Login)
		public.POST("/refresh", userHandler.RefreshToken)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", userHandler.GetMe)

		protected.GET("/rides", rideHandler.ListRides)
		protected.GET("/rides/mine", rideHandler.ListMyRides)
		protected.GET("/rides/:rideID", rideHandler.GetRide)
		protected.POST("/rides/:rideID/book", bookingHandler.BookRide)

		protected.GET("/bookings", bookingHandler.ListMyBookings)
		protected.POST("/bookings/:bookingID/cancel", bookingHandler.CancelBooking)

		protected.POST("/requests", requestHandler.CreateRequest)
		protected.GET("/requests", requestHandler.ListRequests)
		protected.GET("/requests/:requestID", requestHandler.GetRequest)
		protected.POST("/requests/:requestID/cancel", requestHandler.CancelRequest)
		protected.POST("/requests/:requestID/offers/:offerID/accept", requestHandler.AcceptOffer)
		protected.POST("/requests/:requestID/offers/:offerID/reject", requestHandler.RejectOffer)

		protected.GET("/wallet", walletHandler.GetWallet)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)
		protected.POST("/wallet/topup", walletHandler.TopUp)

		protected.GET("/notifications", notifyHandler.ListNotifications)
		protected.POST("/notifications/:notificationID/read", notifyHandler.MarkNotificationRead)
	}

	driverMiddleware := auth.RequireRole(auth.RoleDriver)
	driver := router.Group("/")
	driver.Use(authMiddleware, driverMiddleware)
	{
		driver.POST("/rides", rideHandler.CreateRide)
		driver.POST("/rides/:rideID/cancel", bookingHandler.CancelRide)
		driver.GET("/rides/:rideID/bookings", bookingHandler.ListRideBookings)
		driver.POST("/requests/:requestID/offers", requestHandler.CreateOffer)

		driver.POST("/payouts", payoutHandler.RequestWithdrawal)
		driver.GET("/payouts", payoutHandler.ListPayouts)
		driver.GET("/payouts/:payoutID", payoutHandler.GetPayout)
	}

	adminMiddleware := auth.RequireRole(auth.RoleAdmin)
	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.POST("/reconcile", reconcileHandler.Trigger)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Router exposes the engine for handler tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/farizadam/airport-app-sub000/internal/logger"
	"github.com/farizadam/airport-app-sub000/internal/metrics"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey       = "notifications"
	failedQueueKey = "notifications:failed"
	maxTries       = 3
)

// Notification types used across the marketplace.
const (
	TypeWalletUpdate     = "wallet_update"
	TypeOfferReceived    = "offer_received"
	TypeOfferAccepted    = "offer_accepted"
	TypeOfferRejected    = "offer_rejected"
	TypeBookingConfirmed = "booking_confirmed"
	TypeBookingCancelled = "booking_cancelled"
	TypeBookingRefunded  = "booking_refunded"
	TypePayoutProcessing = "payout_processing"
	TypePayoutCompleted  = "payout_completed"
	TypePayoutFailed     = "payout_failed"
)

type Job struct {
	UserID  int                    `json:"user_id"`
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
	Tries   int                    `json:"tries"`
	Created time.Time              `json:"created"`
}

// Service is a fire-and-forget notifier: Notify only enqueues; a worker
// drains the queue into the in-app inbox. Delivery failures never propagate
// into money or capacity operations.
type Service struct {
	redis *redis.Client
	db    *sqlx.DB
}

func New(redisAddr string, db *sqlx.DB) *Service {
	return &Service{
		redis: redis.NewClient(&redis.Options{
			Addr: redisAddr,
		}),
		db: db,
	}
}

// NewWithClient is used by tests to inject a mock redis client.
func NewWithClient(client *redis.Client, db *sqlx.DB) *Service {
	return &Service{redis: client, db: db}
}

func (s *Service) Notify(ctx context.Context, userID int, notifType string, payload map[string]interface{}) error {
	job := Job{
		UserID:  userID,
		Type:    notifType,
		Payload: payload,
		Tries:   0,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		logger.Errorf("Failed to marshal notification job: %v", err)
		return err
	}

	if err := s.redis.LPush(ctx, queueKey, data).Err(); err != nil {
		logger.Errorf("Failed to queue notification for user %d: %v", userID, err)
		return err
	}

	logger.Infof("Notification queued: %s for user %d", notifType, userID)
	return nil
}

func (s *Service) Start(ctx context.Context) {
	logger.Info("Notification service started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Notification service stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, 2*time.Second, queueKey).Result()
	if err != nil {
		return
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Errorf("Bad notification data: %v", err)
		return
	}

	job.Tries++
	if err := s.deliver(ctx, job); err != nil {
		logger.Errorf("Failed to deliver notification to user %d: %v", job.UserID, err)
		metrics.RecordNotification(job.Type, "failed")

		if job.Tries < maxTries {
			data, _ := json.Marshal(job)
			s.redis.LPush(context.Background(), queueKey, data)
			logger.Infof("Retrying notification for user %d (attempt %d)", job.UserID, job.Tries+1)
		} else {
			logger.Errorf("Notification for user %d failed after %d attempts", job.UserID, maxTries)
			s.saveFailed(job, err)
		}
		return
	}

	metrics.RecordNotification(job.Type, "success")
}

func (s *Service) deliver(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, payload) VALUES ($1, $2, $3)`,
		job.UserID, job.Type, payload,
	)
	return err
}

func (s *Service) saveFailed(job Job, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.Background(), failedQueueKey, data)
	logger.Errorf("Notification moved to failed queue: user %d", job.UserID)
}

func (s *Service) QueueLength(ctx context.Context) int64 {
	length, _ := s.redis.LLen(ctx, queueKey).Result()
	return length
}

func (s *Service) Close() error {
	return s.redis.Close()
}

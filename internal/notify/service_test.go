package notify

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"

	"github.com/farizadam/airport-app-sub000/internal/logger"
)

func TestMain(m *testing.M) {
	logger.Init()

	code := m.Run()
	os.Exit(code)
}

func TestNotify(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("notifications", `.*`).SetVal(1)

	svc := NewWithClient(db, nil)

	err := svc.Notify(ctx, 7, TypeBookingConfirmed, map[string]interface{}{
		"booking_id": 42,
		"ride_id":    10,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyNilPayload(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("notifications", `.*`).SetVal(1)

	svc := NewWithClient(db, nil)

	err := svc.Notify(ctx, 7, TypeWalletUpdate, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueLength(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.ExpectLLen("notifications").SetVal(5)

	svc := NewWithClient(db, nil)

	length := svc.QueueLength(ctx)
	assert.Equal(t, int64(5), length)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueLengthZero(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.ExpectLLen("notifications").SetVal(0)

	svc := NewWithClient(db, nil)

	length := svc.QueueLength(ctx)
	assert.Equal(t, int64(0), length)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	ctx := context.Background()

	mock.Regexp().ExpectLPush("notifications", `.*`).SetErr(assert.AnError)

	svc := NewWithClient(db, nil)

	err := svc.Notify(ctx, 7, TypeOfferReceived, map[string]interface{}{"offer_id": 3})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package notify

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrNotificationNotFound = errors.New("notification not found")

type Repository interface {
	ListForUser(ctx context.Context, userID, limit, offset int) ([]Notification, error)
	MarkRead(ctx context.Context, notificationID, userID int) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListForUser(ctx context.Context, userID, limit, offset int) ([]Notification, error) {
	var notifications []Notification
	err := r.db.SelectContext(ctx, &notifications,
		`SELECT id, user_id, type, payload, read, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repository) MarkRead(ctx context.Context, notificationID, userID int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		notificationID, userID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

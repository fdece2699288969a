package notify

import (
	"encoding/json"
	"time"
)

type Notification struct {
	ID        int             `db:"id" json:"id"`
	UserID    int             `db:"user_id" json:"user_id"`
	Type      string          `db:"type" json:"type"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Read      bool            `db:"read" json:"read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Package rating enforces the one-rating-per-party-per-booking gate and
// keeps user average ratings current.
package rating

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	MinScore = 1
	MaxScore = 5
)

type Rating struct {
	ID         uuid.UUID `db:"id"`
	FromUserID uuid.UUID `db:"from_user_id"`
	ToUserID   uuid.UUID `db:"to_user_id"`
	BookingID  uuid.UUID `db:"booking_id"`

	Rating int            `db:"rating"`
	Review sql.NullString `db:"review"`

	CreatedAt time.Time `db:"created_at"`
}

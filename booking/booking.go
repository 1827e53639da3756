// Package booking holds the booking entity and its lifecycle.
package booking

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// transitions is the full state machine: pending -> confirmed -> completed,
// with cancellation allowed from pending and confirmed. Completed and
// cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Booking represents a customer's seat reservation against a ride.
type Booking struct {
	ID         uuid.UUID `db:"id"`
	CustomerID uuid.UUID `db:"customer_id"`
	RideID     uuid.UUID `db:"ride_id"`

	NumberOfSeats int    `db:"number_of_seats"`
	Status        Status `db:"status"`

	// BookingFee is the configured fee snapshotted when the booking was
	// created, in the smallest currency unit.
	BookingFee int64 `db:"booking_fee"`
	IsPaid     bool  `db:"is_paid"`

	CancellationReason sql.NullString `db:"cancellation_reason"`
	CancelledBy        uuid.NullUUID  `db:"cancelled_by"`

	CustomerHasRated bool `db:"customer_has_rated"`
	DriverHasRated   bool `db:"driver_has_rated"`

	CreatedAt time.Time `db:"created_at"`
}

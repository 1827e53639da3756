// Package ride holds the ride entity, its lifecycle, and the seat ledger.
package ride

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Type string

const (
	TypeOneWay  Type = "one-way"
	TypeSharing Type = "sharing"
)

// Ride represents a driver-published trip offering with a capacity of seats.
type Ride struct {
	ID       uuid.UUID `db:"id"`
	DriverID uuid.UUID `db:"driver_id"`

	FromLocation     string       `db:"from_location"`
	ToLocation       string       `db:"to_location"`
	DepartureDate    time.Time    `db:"departure_date"`
	EstimatedArrival sql.NullTime `db:"estimated_arrival"`

	RideType Type `db:"ride_type"`
	// Price is the full-vehicle price in the smallest currency unit.
	Price int64 `db:"price"`

	TotalSeats     int `db:"total_seats"`
	AvailableSeats int `db:"available_seats"`

	VehicleType   string `db:"vehicle_type"`
	VehicleNumber string `db:"vehicle_number"`

	Status             Status         `db:"status"`
	CancellationReason sql.NullString `db:"cancellation_reason"`

	CreatedAt time.Time `db:"created_at"`
}

// SearchFilter narrows the public ride search. Zero values mean "any".
// Search only ever returns active rides.
type SearchFilter struct {
	From          string
	To            string
	DepartureDate *time.Time
	RideType      Type
}

// CascadedBooking identifies a booking touched by a ride-level cascade,
// carried back to the caller for notification dispatch.
type CascadedBooking struct {
	ID         uuid.UUID `db:"id"`
	CustomerID uuid.UUID `db:"customer_id"`
	Seats      int       `db:"number_of_seats"`
}

// CascadeResult reports what a cancel/complete did to the ride's bookings.
type CascadeResult struct {
	// Completed holds bookings that moved confirmed -> completed.
	Completed []CascadedBooking
	// Cancelled holds bookings that were cancelled by the cascade.
	Cancelled []CascadedBooking
}

// SweepResult summarises one expiry sweep pass.
type SweepResult struct {
	CancelledRides int
	CompletedRides int
}

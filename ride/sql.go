package ride

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound          = errors.New("ride not found")
	ErrNotActive         = errors.New("ride is not active")
	ErrNotAuthorized     = errors.New("not authorized to modify this ride")
	ErrDriverNotVerified = errors.New("driver is not KYC verified")
	ErrInsufficientSeats = errors.New("not enough available seats")
)

// ExpiredNoBookingsReason is recorded on rides the sweep cancels.
const ExpiredNoBookingsReason = "expired with no bookings"

// CompletedBeforeConfirmationReason is recorded on pending bookings that a
// ride completion cancels.
const CompletedBeforeConfirmationReason = "ride completed before confirmation"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ReserveSeats decrements a ride's available seats as a single conditional
// update. It is the only way seats are taken, and it must run inside the
// same transaction as the booking transition that needs them.
func ReserveSeats(ctx context.Context, tx sqlx.ExtContext, rideID uuid.UUID, seats int) error {
	res, err := tx.ExecContext(ctx, reserveSeatsQuery, seats, rideID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// The conditional update matched nothing. Work out which precondition
	// failed so the caller gets a precise error.
	var r struct {
		Status         Status `db:"status"`
		AvailableSeats int    `db:"available_seats"`
	}
	err = sqlx.GetContext(ctx, tx, &r, `SELECT status, available_seats FROM rides WHERE id = $1`, rideID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if r.Status != StatusActive {
		return ErrNotActive
	}
	return ErrInsufficientSeats
}

const reserveSeatsQuery = `
UPDATE rides SET available_seats = available_seats - $1
WHERE id = $2 AND status = 'active' AND available_seats >= $1
`

// ReleaseSeats returns seats to a ride, clamped at total_seats so a
// double release can never overshoot.
func ReleaseSeats(ctx context.Context, tx sqlx.ExtContext, rideID uuid.UUID, seats int) error {
	_, err := tx.ExecContext(ctx, releaseSeatsQuery, seats, rideID)
	return err
}

const releaseSeatsQuery = `
UPDATE rides SET available_seats = LEAST(available_seats + $1, total_seats)
WHERE id = $2
`

// Publish creates an active ride after verifying the driver's KYC status.
func (r *Repository) Publish(ctx context.Context, rd *Ride) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var verified bool
	err = tx.GetContext(ctx, &verified, `SELECT is_kyc_verified FROM users WHERE id = $1`, rd.DriverID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotAuthorized
	}
	if err != nil {
		return err
	}
	if !verified {
		return ErrDriverNotVerified
	}

	err = tx.GetContext(ctx, rd, publishQuery,
		rd.ID, rd.DriverID, rd.FromLocation, rd.ToLocation, rd.DepartureDate, rd.EstimatedArrival,
		rd.RideType, rd.Price, rd.TotalSeats, rd.VehicleType, rd.VehicleNumber)
	if err != nil {
		return err
	}

	return tx.Commit()
}

const publishQuery = `
INSERT INTO rides (id, driver_id, from_location, to_location, departure_date, estimated_arrival,
                   ride_type, price, total_seats, available_seats, vehicle_type, vehicle_number, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9, $10, $11, 'active', now())
RETURNING *
`

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Ride, error) {
	var rd Ride
	err := r.db.GetContext(ctx, &rd, `SELECT * FROM rides WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, ErrNotFound
	}
	return rd, err
}

// GetByDriver fetches all rides published by a driver, newest first.
func (r *Repository) GetByDriver(ctx context.Context, driverID uuid.UUID) ([]Ride, error) {
	var rides []Ride
	err := r.db.SelectContext(ctx, &rides, `SELECT * FROM rides WHERE driver_id = $1 ORDER BY departure_date DESC`, driverID)
	return rides, err
}

// Search returns active rides matching the filter, soonest departure first.
func (r *Repository) Search(ctx context.Context, f SearchFilter) ([]Ride, error) {
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`SELECT * FROM rides WHERE status = 'active'`)

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		sb.WriteString(" AND ")
		fmt.Fprintf(&sb, clause, len(args))
	}

	if f.From != "" {
		add("from_location ILIKE $%d", "%"+f.From+"%")
	}
	if f.To != "" {
		add("to_location ILIKE $%d", "%"+f.To+"%")
	}
	if f.DepartureDate != nil {
		// Both sides cast to date so the filter is a calendar-day match.
		add("departure_date::date = $%d::date", *f.DepartureDate)
	}
	if f.RideType != "" {
		add("ride_type = $%d", f.RideType)
	}
	sb.WriteString(" ORDER BY departure_date ASC")

	var rides []Ride
	err := r.db.SelectContext(ctx, &rides, sb.String(), args...)
	return rides, err
}

// Cancel transitions a ride to cancelled and cascades to its bookings:
// every booking that is not already cancelled is cancelled with the ride's
// reason and its seats are returned. The whole cascade is one transaction.
func (r *Repository) Cancel(ctx context.Context, rideID, actorID uuid.UUID, isAdmin bool, reason string) (Ride, CascadeResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Ride{}, CascadeResult{}, err
	}
	defer tx.Rollback()

	var rd Ride
	err = tx.GetContext(ctx, &rd, getForUpdateQuery, rideID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, CascadeResult{}, ErrNotFound
	}
	if err != nil {
		return Ride{}, CascadeResult{}, err
	}

	if rd.DriverID != actorID && !isAdmin {
		return Ride{}, CascadeResult{}, ErrNotAuthorized
	}
	if rd.Status.Terminal() {
		return Ride{}, CascadeResult{}, ErrNotActive
	}

	err = tx.GetContext(ctx, &rd, cancelRideQuery, reason, rideID)
	if err != nil {
		return Ride{}, CascadeResult{}, err
	}

	var res CascadeResult
	err = tx.SelectContext(ctx, &res.Cancelled, cascadeCancelBookingsQuery, rideID, reason, actorID)
	if err != nil {
		return Ride{}, CascadeResult{}, err
	}

	return rd, res, tx.Commit()
}

const getForUpdateQuery = `SELECT * FROM rides WHERE id = $1 FOR UPDATE`

// All live bookings are gone after a cancel, so the ride's full capacity
// comes back in the same statement.
const cancelRideQuery = `
UPDATE rides SET status = 'cancelled', cancellation_reason = $1, available_seats = total_seats
WHERE id = $2
RETURNING *
`

const cascadeCancelBookingsQuery = `
UPDATE bookings SET status = 'cancelled', cancellation_reason = $2, cancelled_by = $3
WHERE ride_id = $1 AND status <> 'cancelled'
RETURNING id, customer_id, number_of_seats
`

// Complete transitions an active ride to completed. Confirmed bookings
// complete with it; pending bookings are cancelled and their seats released,
// so nothing is left dangling on a finished ride.
func (r *Repository) Complete(ctx context.Context, rideID, actorID uuid.UUID, isAdmin bool) (Ride, CascadeResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Ride{}, CascadeResult{}, err
	}
	defer tx.Rollback()

	var rd Ride
	err = tx.GetContext(ctx, &rd, getForUpdateQuery, rideID)
	if errors.Is(err, sql.ErrNoRows) {
		return Ride{}, CascadeResult{}, ErrNotFound
	}
	if err != nil {
		return Ride{}, CascadeResult{}, err
	}

	if rd.DriverID != actorID && !isAdmin {
		return Ride{}, CascadeResult{}, ErrNotAuthorized
	}
	if rd.Status != StatusActive {
		return Ride{}, CascadeResult{}, ErrNotActive
	}

	err = tx.GetContext(ctx, &rd, completeRideQuery, rideID)
	if err != nil {
		return Ride{}, CascadeResult{}, err
	}

	var res CascadeResult
	err = tx.SelectContext(ctx, &res.Completed, cascadeCompleteBookingsQuery, rideID)
	if err != nil {
		return Ride{}, CascadeResult{}, err
	}
	err = tx.SelectContext(ctx, &res.Cancelled, cascadeCancelPendingQuery, rideID, CompletedBeforeConfirmationReason, actorID)
	if err != nil {
		return Ride{}, CascadeResult{}, err
	}
	for _, b := range res.Cancelled {
		if err := ReleaseSeats(ctx, tx, rideID, b.Seats); err != nil {
			return Ride{}, CascadeResult{}, err
		}
	}
	// Re-read so the returned ride reflects any released seats.
	if len(res.Cancelled) > 0 {
		if err := tx.GetContext(ctx, &rd, `SELECT * FROM rides WHERE id = $1`, rideID); err != nil {
			return Ride{}, CascadeResult{}, err
		}
	}

	return rd, res, tx.Commit()
}

const completeRideQuery = `
UPDATE rides SET status = 'completed'
WHERE id = $1 AND status = 'active'
RETURNING *
`

const cascadeCompleteBookingsQuery = `
UPDATE bookings SET status = 'completed'
WHERE ride_id = $1 AND status = 'confirmed'
RETURNING id, customer_id, number_of_seats
`

const cascadeCancelPendingQuery = `
UPDATE bookings SET status = 'cancelled', cancellation_reason = $2, cancelled_by = $3
WHERE ride_id = $1 AND status = 'pending'
RETURNING id, customer_id, number_of_seats
`

// SweepExpired resolves active rides whose departure time has passed:
// rides with no confirmed booking are cancelled, the rest are completed
// (with the same booking cascades as the manual transitions). Every update
// is conditioned on the current status, so the sweep is idempotent and safe
// to run alongside manual cancel/complete calls.
func (r *Repository) SweepExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return SweepResult{}, err
	}
	defer tx.Rollback()

	var res SweepResult

	var cancelledIDs []uuid.UUID
	err = tx.SelectContext(ctx, &cancelledIDs, sweepCancelRidesQuery, now, ExpiredNoBookingsReason)
	if err != nil {
		return SweepResult{}, err
	}
	res.CancelledRides = len(cancelledIDs)
	for _, id := range cancelledIDs {
		_, err = tx.ExecContext(ctx, sweepCancelBookingsQuery, id, ExpiredNoBookingsReason)
		if err != nil {
			return SweepResult{}, err
		}
	}

	var completedIDs []uuid.UUID
	err = tx.SelectContext(ctx, &completedIDs, sweepCompleteRidesQuery, now)
	if err != nil {
		return SweepResult{}, err
	}
	res.CompletedRides = len(completedIDs)
	for _, id := range completedIDs {
		_, err = tx.ExecContext(ctx, sweepCompleteBookingsQuery, id)
		if err != nil {
			return SweepResult{}, err
		}
		var pending []CascadedBooking
		err = tx.SelectContext(ctx, &pending, sweepCancelPendingQuery, id, CompletedBeforeConfirmationReason)
		if err != nil {
			return SweepResult{}, err
		}
		for _, b := range pending {
			if err := ReleaseSeats(ctx, tx, id, b.Seats); err != nil {
				return SweepResult{}, err
			}
		}
	}

	return res, tx.Commit()
}

const sweepCancelRidesQuery = `
UPDATE rides r SET status = 'cancelled', cancellation_reason = $2, available_seats = total_seats
WHERE r.status = 'active' AND r.departure_date < $1
  AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.ride_id = r.id AND b.status = 'confirmed')
RETURNING r.id
`

const sweepCancelBookingsQuery = `
UPDATE bookings SET status = 'cancelled', cancellation_reason = $2
WHERE ride_id = $1 AND status <> 'cancelled'
`

const sweepCompleteRidesQuery = `
UPDATE rides SET status = 'completed'
WHERE status = 'active' AND departure_date < $1
RETURNING id
`

const sweepCompleteBookingsQuery = `
UPDATE bookings SET status = 'completed'
WHERE ride_id = $1 AND status = 'confirmed'
`

const sweepCancelPendingQuery = `
UPDATE bookings SET status = 'cancelled', cancellation_reason = $2
WHERE ride_id = $1 AND status = 'pending'
RETURNING id, customer_id, number_of_seats
`

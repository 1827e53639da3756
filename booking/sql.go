package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/openridehq/rideshare-backend/ride"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrDuplicate         = errors.New("customer already has a booking on this ride")
	ErrKycRequired       = errors.New("KYC verification required to book again")
	ErrInvalidTransition = errors.New("transition not allowed from current booking status")
	ErrNotAuthorized     = errors.New("not authorized to modify this booking")
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Booking, error) {
	var b Booking
	err := r.db.GetContext(ctx, &b, `SELECT * FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

// GetByCustomer fetches a customer's bookings, optionally filtered by
// status, newest first.
func (r *Repository) GetByCustomer(ctx context.Context, customerID uuid.UUID, status *Status) ([]Booking, error) {
	var bookings []Booking
	var err error
	if status != nil {
		err = r.db.SelectContext(ctx, &bookings, getByCustomerWithStatusQuery, customerID, *status)
	} else {
		err = r.db.SelectContext(ctx, &bookings, getByCustomerQuery, customerID)
	}
	return bookings, err
}

const getByCustomerQuery = `SELECT * FROM bookings WHERE customer_id = $1 ORDER BY created_at DESC`
const getByCustomerWithStatusQuery = `SELECT * FROM bookings WHERE customer_id = $1 AND status = $2 ORDER BY created_at DESC`

// GetByRide fetches all bookings on a ride, oldest first.
func (r *Repository) GetByRide(ctx context.Context, rideID uuid.UUID) ([]Booking, error) {
	var bookings []Booking
	err := r.db.SelectContext(ctx, &bookings, `SELECT * FROM bookings WHERE ride_id = $1 ORDER BY created_at ASC`, rideID)
	return bookings, err
}

// Create reserves seats and inserts a pending booking in one transaction.
// The capacity check and decrement happen as a single conditional update in
// the seat ledger, so two near-simultaneous bookings for the last seats
// cannot both succeed. b.NumberOfSeats of zero means "book the full vehicle".
func (r *Repository) Create(ctx context.Context, b *Booking, fee int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rd ride.Ride
	err = tx.GetContext(ctx, &rd, `SELECT * FROM rides WHERE id = $1`, b.RideID)
	if errors.Is(err, sql.ErrNoRows) {
		return ride.ErrNotFound
	}
	if err != nil {
		return err
	}
	if rd.Status != ride.StatusActive {
		return ride.ErrNotActive
	}

	var exists bool
	err = tx.GetContext(ctx, &exists, duplicateBookingQuery, b.RideID, b.CustomerID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}

	// Unverified customers get a single booking before KYC kicks in.
	var verified bool
	err = tx.GetContext(ctx, &verified, `SELECT is_kyc_verified FROM users WHERE id = $1`, b.CustomerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotAuthorized
	}
	if err != nil {
		return err
	}
	if !verified {
		var prior int
		err = tx.GetContext(ctx, &prior, `SELECT count(*) FROM bookings WHERE customer_id = $1`, b.CustomerID)
		if err != nil {
			return err
		}
		if prior > 0 {
			return ErrKycRequired
		}
	}

	if b.NumberOfSeats == 0 {
		b.NumberOfSeats = rd.TotalSeats
	}
	if err := ride.ReserveSeats(ctx, tx, b.RideID, b.NumberOfSeats); err != nil {
		return err
	}

	err = tx.GetContext(ctx, b, createBookingQuery, b.ID, b.CustomerID, b.RideID, b.NumberOfSeats, fee)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

const duplicateBookingQuery = `
SELECT EXISTS (SELECT 1 FROM bookings WHERE ride_id = $1 AND customer_id = $2 AND status <> 'cancelled')
`

const createBookingQuery = `
INSERT INTO bookings (id, customer_id, ride_id, number_of_seats, status, booking_fee, created_at)
VALUES ($1, $2, $3, $4, 'pending', $5, now())
RETURNING *
`

// Confirm transitions a pending booking to confirmed. Only the ride's
// driver (or an admin) may confirm; seats were reserved at creation so
// nothing changes in the ledger.
func (r *Repository) Confirm(ctx context.Context, id, actorID uuid.UUID, isAdmin bool) (Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Booking{}, err
	}
	defer tx.Rollback()

	b, driverID, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return Booking{}, err
	}
	if driverID != actorID && !isAdmin {
		return Booking{}, ErrNotAuthorized
	}
	if !b.Status.CanTransitionTo(StatusConfirmed) {
		return Booking{}, ErrInvalidTransition
	}

	err = tx.GetContext(ctx, &b, `UPDATE bookings SET status = 'confirmed' WHERE id = $1 RETURNING *`, id)
	if err != nil {
		return Booking{}, err
	}

	return b, tx.Commit()
}

// Cancel transitions a pending or confirmed booking to cancelled and
// releases its seats in the same transaction. The booking's customer, the
// ride's driver, or an admin may cancel; who cancelled is recorded for
// notifications.
func (r *Repository) Cancel(ctx context.Context, id, actorID uuid.UUID, isAdmin bool, reason string) (Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Booking{}, err
	}
	defer tx.Rollback()

	b, driverID, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return Booking{}, err
	}
	if b.CustomerID != actorID && driverID != actorID && !isAdmin {
		return Booking{}, ErrNotAuthorized
	}
	if !b.Status.CanTransitionTo(StatusCancelled) {
		return Booking{}, ErrInvalidTransition
	}

	err = tx.GetContext(ctx, &b, cancelBookingQuery, reason, actorID, id)
	if err != nil {
		return Booking{}, err
	}
	if err := ride.ReleaseSeats(ctx, tx, b.RideID, b.NumberOfSeats); err != nil {
		return Booking{}, err
	}

	return b, tx.Commit()
}

const cancelBookingQuery = `
UPDATE bookings SET status = 'cancelled', cancellation_reason = $1, cancelled_by = $2
WHERE id = $3
RETURNING *
`

// Complete transitions a confirmed booking to completed. Usually driven by
// the ride completion cascade, but callable directly by the driver.
func (r *Repository) Complete(ctx context.Context, id, actorID uuid.UUID, isAdmin bool) (Booking, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Booking{}, err
	}
	defer tx.Rollback()

	b, driverID, err := getForUpdate(ctx, tx, id)
	if err != nil {
		return Booking{}, err
	}
	if driverID != actorID && !isAdmin {
		return Booking{}, ErrNotAuthorized
	}
	if !b.Status.CanTransitionTo(StatusCompleted) {
		return Booking{}, ErrInvalidTransition
	}

	err = tx.GetContext(ctx, &b, `UPDATE bookings SET status = 'completed' WHERE id = $1 RETURNING *`, id)
	if err != nil {
		return Booking{}, err
	}

	return b, tx.Commit()
}

// MarkPaid flags a booking's fee as settled. Called from the payment
// follow-up after an invoice succeeds, never from lifecycle transitions.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE bookings SET is_paid = true WHERE id = $1`, id)
	return err
}

// getForUpdate locks the booking row and returns it along with the owning
// ride's driver for permission checks.
func getForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (Booking, uuid.UUID, error) {
	var b Booking
	err := tx.GetContext(ctx, &b, `SELECT * FROM bookings WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, uuid.Nil, ErrNotFound
	}
	if err != nil {
		return Booking{}, uuid.Nil, err
	}

	var driverID uuid.UUID
	err = tx.GetContext(ctx, &driverID, `SELECT driver_id FROM rides WHERE id = $1`, b.RideID)
	if err != nil {
		return Booking{}, uuid.Nil, err
	}
	return b, driverID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

package rating

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrNotCompleted    = errors.New("booking is not completed")
	ErrDuplicate       = errors.New("rater already rated this booking")
	ErrNotAuthorized   = errors.New("rater is not a party to this booking")
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Submit records a rating from one party of a completed booking to the
// other. The (from_user_id, booking_id) unique index is the real guard
// against double submission; the in-transaction checks only exist to give
// precise errors. The target's average rating and the booking's has-rated
// flag are updated in the same transaction.
func (r *Repository) Submit(ctx context.Context, rt *Rating) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var parties struct {
		CustomerID uuid.UUID `db:"customer_id"`
		DriverID   uuid.UUID `db:"driver_id"`
		Status     string    `db:"status"`
	}
	err = tx.GetContext(ctx, &parties, bookingPartiesQuery, rt.BookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookingNotFound
	}
	if err != nil {
		return err
	}

	if parties.Status != "completed" {
		return ErrNotCompleted
	}

	var flagColumn string
	switch rt.FromUserID {
	case parties.CustomerID:
		rt.ToUserID = parties.DriverID
		flagColumn = "customer_has_rated"
	case parties.DriverID:
		rt.ToUserID = parties.CustomerID
		flagColumn = "driver_has_rated"
	default:
		return ErrNotAuthorized
	}

	// Serialise concurrent submissions against the same target so the
	// average recompute below always sees every committed rating.
	var targetID uuid.UUID
	err = tx.GetContext(ctx, &targetID, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, rt.ToUserID)
	if err != nil {
		return err
	}

	err = tx.GetContext(ctx, rt, insertRatingQuery,
		rt.ID, rt.FromUserID, rt.ToUserID, rt.BookingID, rt.Rating, rt.Review)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE bookings SET `+flagColumn+` = true WHERE id = $1`, rt.BookingID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, recomputeAverageQuery, rt.ToUserID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

const bookingPartiesQuery = `
SELECT b.customer_id, r.driver_id, b.status
FROM bookings b JOIN rides r ON b.ride_id = r.id
WHERE b.id = $1
FOR UPDATE OF b
`

const insertRatingQuery = `
INSERT INTO ratings (id, from_user_id, to_user_id, booking_id, rating, review, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING *
`

const recomputeAverageQuery = `
UPDATE users SET average_rating = (SELECT avg(rating) FROM ratings WHERE to_user_id = $1)
WHERE id = $1
`

// GetForUser fetches all ratings addressed to a user, newest first.
func (r *Repository) GetForUser(ctx context.Context, userID uuid.UUID) ([]Rating, error) {
	var ratings []Rating
	err := r.db.SelectContext(ctx, &ratings, `SELECT * FROM ratings WHERE to_user_id = $1 ORDER BY created_at DESC`, userID)
	return ratings, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

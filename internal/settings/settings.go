// Package settings reads operator-tunable values from the settings table.
package settings

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// BookingFee returns the currently configured booking fee in the smallest
// currency unit. Callers snapshot this value into the booking at creation
// time; a missing row means no fee.
func (r *Repository) BookingFee(ctx context.Context) (int64, error) {
	var fee int64
	err := r.db.GetContext(ctx, &fee, `SELECT booking_fee FROM settings WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return fee, err
}

// SetBookingFee updates the configured fee for future bookings. Existing
// bookings keep their snapshot.
func (r *Repository) SetBookingFee(ctx context.Context, fee int64) error {
	_, err := r.db.ExecContext(ctx, setBookingFeeQuery, fee)
	return err
}

const setBookingFeeQuery = `
INSERT INTO settings (id, booking_fee) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET booking_fee = EXCLUDED.booking_fee
`

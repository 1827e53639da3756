package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetByAuthID(ctx context.Context, authID string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE auth_id = $1`, authID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create provisions a user row for a newly seen auth subject.
func (r *Repository) Create(ctx context.Context, authID, email, name string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, createUserQuery, uuid.New(), authID, email, name)
	return &u, err
}

const createUserQuery = `
INSERT INTO users (id, auth_id, role, email, name, created_at)
VALUES ($1, $2, 'customer', NULLIF($3, ''), NULLIF($4, ''), now())
RETURNING *
`

// SetKycVerified records a KYC review outcome.
func (r *Repository) SetKycVerified(ctx context.Context, id uuid.UUID, verified bool) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `UPDATE users SET is_kyc_verified = $1 WHERE id = $2 RETURNING *`, verified, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) AddStripeID(ctx context.Context, authID, stripeID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET stripe_id = $1 WHERE auth_id = $2`, stripeID, authID)
	return err
}

// Package user is the collaborator entity for the lifecycle packages:
// identity comes from the auth layer, this only carries role, KYC state,
// and the rating aggregate.
package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID     uuid.UUID `db:"id"`
	AuthID string    `db:"auth_id"`
	Role   Role      `db:"role"`

	Email sql.NullString `db:"email"`
	Name  sql.NullString `db:"name"`

	IsKycVerified bool            `db:"is_kyc_verified"`
	AverageRating sql.NullFloat64 `db:"average_rating"`

	StripeID sql.NullString `db:"stripe_id"`

	CreatedAt time.Time `db:"created_at"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

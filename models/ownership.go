package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ownership is a user's claim on the principal of one placement
type Ownership struct {
	ID             int64           `db:"id"`
	UserID         string          `db:"user_id"`
	PlacementID    int64           `db:"placement_id"`
	PrincipalOwned decimal.Decimal `db:"principal_owned"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// OwnershipView is an ownership row joined with the placement it points at
type OwnershipView struct {
	UserID         string
	PlacementID    int64
	Counterparty   string
	PrincipalOwned decimal.Decimal
	YieldRate      decimal.Decimal
}

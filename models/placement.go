package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlacementStatus is the state of a placement row; exhausted placements are deleted
type PlacementStatus string

const PlacementStatusActive PlacementStatus = "ACTIVE"

// Placement is a fixed-term deployment of fund cash with one counterparty
type Placement struct {
	ID              int64           `db:"id"`
	Counterparty    string          `db:"counterparty"`
	Principal       decimal.Decimal `db:"principal"`
	AccruedInterest decimal.Decimal `db:"accrued_interest"`
	YieldRate       decimal.Decimal `db:"yield_rate"`      // annual, in percent
	EarlyExitRate   decimal.Decimal `db:"early_exit_rate"` // annual, in percent
	StartDate       time.Time       `db:"start_date"`
	MaturityDate    time.Time       `db:"maturity_date"`
	Status          PlacementStatus `db:"status"`
	CreatedAt       time.Time       `db:"created_at"`
}

// DailyAccrual is one day of simple interest on the current principal:
// principal * rate / 100 / 365, kept at InterestPlaces.
func (p *Placement) DailyAccrual() decimal.Decimal {
	return DailyAccrual(p.Principal, p.YieldRate)
}

// DailyAccrual computes one day of simple interest for a principal and an annual percentage rate
func DailyAccrual(principal, annualRatePercent decimal.Decimal) decimal.Decimal {
	if !principal.IsPositive() {
		return decimal.Zero
	}
	return principal.Mul(annualRatePercent).Div(decimal.NewFromInt(100 * 365)).Round(InterestPlaces)
}

// PlacementParams are the four mandatory terms of a new placement
type PlacementParams struct {
	Counterparty  string
	YieldRate     decimal.Decimal
	EarlyExitRate decimal.Decimal
	TenorDays     int
}

// MaturityFrom returns the maturity date of a placement starting on start
func (p *PlacementParams) MaturityFrom(start time.Time) time.Time {
	return AddDays(start, p.TenorDays)
}

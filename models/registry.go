package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundRegistry is the singleton row holding the fund's authoritative totals
type FundRegistry struct {
	IdleCash      decimal.Decimal `db:"total_idle_cash"`
	TotalInvested decimal.Decimal `db:"total_invested"`
	LastCloseDate *time.Time      `db:"last_close_date"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// NextCloseDate is the only date the next close may target. ok is false before
// the first close, when any date is accepted.
func (r *FundRegistry) NextCloseDate() (next time.Time, ok bool) {
	if r.LastCloseDate == nil {
		return time.Time{}, false
	}
	return AddDays(*r.LastCloseDate, 1), true
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyReport is the audit row written by each successful close
type DailyReport struct {
	ID              int64           `db:"id"`
	ReportDate      time.Time       `db:"report_date"`
	TotalDeposit    decimal.Decimal `db:"total_deposit"`
	TotalWithdrawal decimal.Decimal `db:"total_withdrawal"`
	IdleCashAtClose decimal.Decimal `db:"idle_cash_at_close"`
	InvestedAtClose decimal.Decimal `db:"invested_at_close"`
	InterestAccrued decimal.Decimal `db:"interest_accrued"`
	RequestsSettled int             `db:"requests_settled"`
	PlacementID     *int64          `db:"placement_id"`
	CreatedAt       time.Time       `db:"created_at"`
}

// DayReport is one close with the requests it settled and the placement it
// opened. Placement is nil when the close opened none or it has since been retired.
type DayReport struct {
	Report    *DailyReport
	Settled   []*PendingRequest
	Placement *Placement
	Owners    []*Ownership
}

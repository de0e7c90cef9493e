package testutil

import (
	"time"

	"fundledger/models"

	"github.com/shopspring/decimal"
)

// Amount parses a decimal literal, panicking on malformed test input
func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Date parses a YYYY-MM-DD literal, panicking on malformed test input
func Date(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// CreateTestDeposit creates a pending deposit request
func CreateTestDeposit(userID string, amount string) *models.PendingRequest {
	return &models.PendingRequest{
		UserID: userID,
		Kind:   models.RequestKindDeposit,
		Amount: Amount(amount),
		Status: models.RequestStatusPending,
	}
}

// CreateTestWithdrawal creates a pending withdrawal request against a placement
func CreateTestWithdrawal(userID string, placementID int64, amount string) *models.PendingRequest {
	id := placementID
	return &models.PendingRequest{
		UserID:      userID,
		Kind:        models.RequestKindWithdrawal,
		Amount:      Amount(amount),
		PlacementID: &id,
		Status:      models.RequestStatusPending,
	}
}

// CreateTestPlacement creates an active placement with a 180 day tenor
func CreateTestPlacement(counterparty string, principal string, start time.Time) *models.Placement {
	return &models.Placement{
		Counterparty:  counterparty,
		Principal:     Amount(principal),
		YieldRate:     Amount("8.5"),
		EarlyExitRate: Amount("2"),
		StartDate:     start,
		MaturityDate:  models.AddDays(start, 180),
		Status:        models.PlacementStatusActive,
	}
}

// CreateTestReport creates a daily report for a close date
func CreateTestReport(date time.Time, idle, invested string) *models.DailyReport {
	return &models.DailyReport{
		ReportDate:      date,
		TotalDeposit:    decimal.Zero,
		TotalWithdrawal: decimal.Zero,
		IdleCashAtClose: Amount(idle),
		InvestedAtClose: Amount(invested),
		InterestAccrued: decimal.Zero,
	}
}

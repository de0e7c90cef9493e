package models

import (
	"github.com/shopspring/decimal"
)

// CloseStage names the step a close reached; a failed close reports where it stopped
type CloseStage string

const (
	CloseStageIdle               CloseStage = "idle"
	CloseStageRegistryLocked     CloseStage = "registry_locked"
	CloseStageTimelineChecked    CloseStage = "timeline_checked"
	CloseStageRequestsApplied    CloseStage = "requests_applied"
	CloseStageInterestAccrued    CloseStage = "interest_accrued"
	CloseStagePlacementAllocated CloseStage = "placement_allocated"
	CloseStageFinalized          CloseStage = "finalized"
)

// SkippedWithdrawal is a withdrawal left pending because the live balance did not cover it
type SkippedWithdrawal struct {
	RequestID   int64
	UserID      string
	PlacementID int64
	Requested   decimal.Decimal
	Available   decimal.Decimal
	Reason      string
}

// RetiredPlacement is a placement deleted after its principal ran out
type RetiredPlacement struct {
	PlacementID       int64
	Counterparty      string
	DiscardedInterest decimal.Decimal
}

// CloseOutcome is the result of a daily close. It is always returned; on
// failure Success is false, Err holds the cause and nothing was persisted.
type CloseOutcome struct {
	Success bool
	Message string
	Err     error
	Stage   CloseStage
	RunID   string

	Report             *DailyReport
	NewPlacement       *Placement
	SkippedWithdrawals []SkippedWithdrawal
	RetiredPlacements  []RetiredPlacement
}

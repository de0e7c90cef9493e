package service

import (
	"errors"
	"fmt"
)

var (
	// Request validation
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrMissingPlacement = errors.New("withdrawal requires a placement")
	ErrMissingUser      = errors.New("user id is required")
	ErrInvalidKind      = errors.New("invalid request kind")
	ErrNotFound         = errors.New("pending request not found")

	// Ownership checks
	ErrNoOwnership         = errors.New("no ownership record found")
	ErrInsufficientBalance = errors.New("insufficient balance")

	// Close
	ErrDuplicateOrPastDate    = errors.New("date is already closed")
	ErrCalendarGap            = errors.New("calendar gap detected")
	ErrDuplicateReportDate    = errors.New("daily report already exists for date")
	ErrInvalidPlacementParams = errors.New("invalid placement parameters")

	// Storage
	ErrPersistence = errors.New("persistence failure")
)

// domainErrors are the errors that already carry their own meaning and are
// never wrapped as persistence failures
var domainErrors = []error{
	ErrInvalidAmount,
	ErrMissingPlacement,
	ErrMissingUser,
	ErrInvalidKind,
	ErrNotFound,
	ErrNoOwnership,
	ErrInsufficientBalance,
	ErrDuplicateOrPastDate,
	ErrCalendarGap,
	ErrDuplicateReportDate,
	ErrInvalidPlacementParams,
	ErrPersistence,
}

// persistenceError tags a storage error with ErrPersistence, leaving domain errors alone
func persistenceError(op string, err error) error {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// ErrorReason maps an error to a short, stable label for metrics and logs
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrDuplicateOrPastDate):
		return "duplicate_or_past_date"
	case errors.Is(err, ErrCalendarGap):
		return "calendar_gap"
	case errors.Is(err, ErrDuplicateReportDate):
		return "duplicate_report_date"
	case errors.Is(err, ErrInvalidPlacementParams):
		return "invalid_placement_params"
	case errors.Is(err, ErrNoOwnership):
		return "no_ownership"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrMissingPlacement):
		return "missing_placement"
	case errors.Is(err, ErrMissingUser):
		return "missing_user"
	case errors.Is(err, ErrInvalidKind):
		return "invalid_kind"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "persistence"
	}
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RequestKind is the direction of a queued request
type RequestKind string

const (
	RequestKindDeposit    RequestKind = "DEPOSIT"
	RequestKindWithdrawal RequestKind = "WITHDRAWAL"
)

// ParseRequestKind accepts any casing of DEPOSIT or WITHDRAWAL
func ParseRequestKind(s string) (RequestKind, error) {
	switch RequestKind(strings.ToUpper(strings.TrimSpace(s))) {
	case RequestKindDeposit:
		return RequestKindDeposit, nil
	case RequestKindWithdrawal:
		return RequestKindWithdrawal, nil
	default:
		return "", fmt.Errorf("unknown request kind %q", s)
	}
}

// RequestStatus is the lifecycle state of a queued request
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusCompleted RequestStatus = "COMPLETED"
)

// PendingRequest is a deposit or withdrawal waiting for the next close
type PendingRequest struct {
	ID          int64           `db:"id"`
	UserID      string          `db:"user_id"`
	Kind        RequestKind     `db:"kind"`
	Amount      decimal.Decimal `db:"amount"`
	PlacementID *int64          `db:"placement_id"` // only set for withdrawals
	Status      RequestStatus   `db:"status"`
	SettledOn   *time.Time      `db:"settled_on"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// IsWithdrawal reports whether the request takes money out of a placement
func (r *PendingRequest) IsWithdrawal() bool {
	return r.Kind == RequestKindWithdrawal
}

// QueueAggregate summarises the pending queue
type QueueAggregate struct {
	TotalDeposit    decimal.Decimal
	TotalWithdrawal decimal.Decimal
	Count           int
}

// NetFlow is deposits minus withdrawals
func (a *QueueAggregate) NetFlow() decimal.Decimal {
	return a.TotalDeposit.Sub(a.TotalWithdrawal)
}

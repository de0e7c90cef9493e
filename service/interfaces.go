package service

import (
	"context"
	"time"

	"fundledger/events"
	"fundledger/models"

	"github.com/shopspring/decimal"
)

// PendingRequestRepository defines data access for the pending queue
type PendingRequestRepository interface {
	// Create inserts a PENDING request and fills in ID and timestamps
	Create(ctx context.Context, req *models.PendingRequest) error

	// GetByID retrieves a request in any status
	GetByID(ctx context.Context, id int64) (*models.PendingRequest, error)

	// ListPending returns PENDING requests, newest first
	ListPending(ctx context.Context) ([]*models.PendingRequest, error)

	// LockPending returns PENDING requests oldest first and locks them until the transaction ends
	LockPending(ctx context.Context) ([]*models.PendingRequest, error)

	// Aggregate sums PENDING requests by kind
	Aggregate(ctx context.Context) (*models.QueueAggregate, error)

	// UpdateAmount changes the amount of a PENDING request; false if no such pending row
	UpdateAmount(ctx context.Context, id int64, amount decimal.Decimal) (bool, error)

	// DeletePending removes a PENDING request; false if no such pending row
	DeletePending(ctx context.Context, id int64) (bool, error)

	// MarkCompleted completes the given PENDING requests and returns how many changed
	MarkCompleted(ctx context.Context, ids []int64, settledOn time.Time) (int64, error)

	// ListSettledOn returns the requests completed by the close of a date
	ListSettledOn(ctx context.Context, closeDate time.Time) ([]*models.PendingRequest, error)
}

// PlacementRepository defines data access for placements
type PlacementRepository interface {
	// Create inserts a placement and fills in ID and CreatedAt
	Create(ctx context.Context, placement *models.Placement) error

	// GetByID retrieves a placement
	GetByID(ctx context.Context, id int64) (*models.Placement, error)

	// ListAll returns every placement ordered by ID
	ListAll(ctx context.Context) ([]*models.Placement, error)

	// ListActiveForUpdate returns ACTIVE placements locked for the transaction
	ListActiveForUpdate(ctx context.Context) ([]*models.Placement, error)

	// DecreasePrincipal subtracts amount from a placement's principal
	DecreasePrincipal(ctx context.Context, id int64, amount decimal.Decimal) error

	// AddAccruedInterest adds amount to a placement's accrued bucket
	AddAccruedInterest(ctx context.Context, id int64, amount decimal.Decimal) error

	// DeleteExhausted deletes placements whose principal is <= 0 and returns them
	DeleteExhausted(ctx context.Context) ([]*models.Placement, error)

	// Totals returns the sum of principal and of accrued interest
	Totals(ctx context.Context) (principal decimal.Decimal, accrued decimal.Decimal, err error)
}

// OwnershipRepository defines data access for user ownership of placements
type OwnershipRepository interface {
	// Get retrieves the ownership row for a user and placement
	Get(ctx context.Context, userID string, placementID int64) (*models.Ownership, error)

	// GetForUpdate is Get with a row lock
	GetForUpdate(ctx context.Context, userID string, placementID int64) (*models.Ownership, error)

	// AddPrincipal creates the row or adds to the existing one
	AddPrincipal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) error

	// DecreasePrincipal subtracts amount from an existing row
	DecreasePrincipal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) error

	// ListByPlacement returns the owners of one placement
	ListByPlacement(ctx context.Context, placementID int64) ([]*models.Ownership, error)

	// ListWithPlacements returns ownership rows joined to their live placement
	ListWithPlacements(ctx context.Context) ([]*models.OwnershipView, error)

	// SumPrincipal sums principal owned over rows whose placement still exists
	SumPrincipal(ctx context.Context) (decimal.Decimal, error)
}

// RegistryRepository defines data access for the singleton fund registry
type RegistryRepository interface {
	// Get reads the registry without locking
	Get(ctx context.Context) (*models.FundRegistry, error)

	// GetForUpdate reads the registry and holds its row lock until the transaction ends
	GetForUpdate(ctx context.Context) (*models.FundRegistry, error)

	// Update overwrites the registry totals and last close date
	Update(ctx context.Context, idleCash, invested decimal.Decimal, lastCloseDate time.Time) error
}

// DailyReportRepository defines data access for close reports
type DailyReportRepository interface {
	// Create inserts a report; a second report for the same date returns ErrDuplicateReportDate
	Create(ctx context.Context, report *models.DailyReport) error

	// GetByDate retrieves the report of a close date
	GetByDate(ctx context.Context, date time.Time) (*models.DailyReport, error)

	// GetLatest returns the most recent report
	GetLatest(ctx context.Context) (*models.DailyReport, error)

	// ListRecent returns up to limit reports, newest first
	ListRecent(ctx context.Context, limit int) ([]*models.DailyReport, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a read-write transaction
	Begin(ctx context.Context) error

	// BeginReadOnly starts a read-only REPEATABLE READ transaction
	BeginReadOnly(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction and discards pending events
	Rollback() error

	// Repository getters
	PendingRequestRepository() PendingRequestRepository
	PlacementRepository() PlacementRepository
	OwnershipRepository() OwnershipRepository
	RegistryRepository() RegistryRepository
	DailyReportRepository() DailyReportRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// LedgerService is the pending queue and the withdrawal validator
type LedgerService interface {
	// Enqueue stores a new PENDING request
	Enqueue(ctx context.Context, userID string, kind models.RequestKind, amount decimal.Decimal, placementID *int64) (int64, error)

	// SubmitWithdrawal validates a withdrawal against current ownership, then enqueues it
	SubmitWithdrawal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) (int64, error)

	// Aggregate sums the pending queue
	Aggregate(ctx context.Context) (*models.QueueAggregate, error)

	// Get returns a request in any status; ErrNotFound if it does not exist
	Get(ctx context.Context, id int64) (*models.PendingRequest, error)

	// List returns pending requests, newest first
	List(ctx context.Context) ([]*models.PendingRequest, error)

	// Amend changes the amount of a pending request
	Amend(ctx context.Context, id int64, amount decimal.Decimal) error

	// Cancel removes a pending request; it is a no-op for unknown or settled requests
	Cancel(ctx context.Context, id int64) error

	// ValidateWithdrawal checks a user's ownership covers amount
	ValidateWithdrawal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) error

	// SettledOn returns the requests completed by the close of a date
	SettledOn(ctx context.Context, closeDate time.Time) ([]*models.PendingRequest, error)
}

// SettlementService runs the daily close
type SettlementService interface {
	// Close settles the pending queue for targetDate. It never returns an
	// error; failures are reported in the outcome and leave no trace in storage.
	Close(ctx context.Context, targetDate time.Time, params *models.PlacementParams) *models.CloseOutcome
}

// AuditService is the read-only reconciliation auditor
type AuditService interface {
	// Snapshot reads ownership, placements and registry from one consistent snapshot
	Snapshot(ctx context.Context) (*models.AuditSnapshot, error)

	// Reconcile compares Σownership, Σprincipal and registry.invested
	Reconcile(ctx context.Context) (*models.Reconciliation, error)

	// Status summarises the fund for operators
	Status(ctx context.Context) (*models.FundStatus, error)

	// RecentReports returns the latest close reports, newest first
	RecentReports(ctx context.Context, limit int) ([]*models.DailyReport, error)

	// DayReport returns the report of one close with the requests it settled and
	// the placement it opened. A nil date means the latest close; ErrNotFound if
	// there is no such close.
	DayReport(ctx context.Context, date *time.Time) (*models.DayReport, error)
}

// SettlementMetrics receives measurements from the services
type SettlementMetrics interface {
	ObserveClose(success bool, reason string, duration time.Duration)
	ObserveSettledRequests(settled, skipped int)
	SetFundTotals(idleCash, invested decimal.Decimal)
	ObserveReconciliation(r *models.Reconciliation)
}

type noopMetrics struct{}

func (noopMetrics) ObserveClose(bool, string, time.Duration)       {}
func (noopMetrics) ObserveSettledRequests(int, int)                {}
func (noopMetrics) SetFundTotals(decimal.Decimal, decimal.Decimal) {}
func (noopMetrics) ObserveReconciliation(*models.Reconciliation)   {}

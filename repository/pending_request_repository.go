package repository

import (
	"context"
	"fmt"
	"time"

	"fundledger/database"
	"fundledger/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PendingRequestRepository implements the PendingRequestRepository interface
type PendingRequestRepository struct {
	q queryable
}

// NewPendingRequestRepository creates a new pending request repository
func NewPendingRequestRepository(db *database.DB) *PendingRequestRepository {
	return &PendingRequestRepository{q: db.Pool}
}

// newPendingRequestRepositoryWithTx creates a new pending request repository with a transaction
func newPendingRequestRepositoryWithTx(tx queryable) *PendingRequestRepository {
	return &PendingRequestRepository{q: tx}
}

const pendingRequestColumns = `
	id, user_id, kind, amount::text, placement_id, status, settled_on, created_at, updated_at`

// Create inserts a new PENDING request
func (r *PendingRequestRepository) Create(ctx context.Context, req *models.PendingRequest) error {
	query := `
		INSERT INTO pending_requests (user_id, kind, amount, placement_id, status)
		VALUES ($1, $2, $3, $4, 'PENDING')
		RETURNING id, status, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		req.UserID,
		string(req.Kind),
		req.Amount.String(),
		req.PlacementID,
	).Scan(&req.ID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pending request: %w", err)
	}

	return nil
}

// GetByID retrieves a request by its ID
func (r *PendingRequestRepository) GetByID(ctx context.Context, id int64) (*models.PendingRequest, error) {
	query := `SELECT ` + pendingRequestColumns + ` FROM pending_requests WHERE id = $1`

	req, err := scanPendingRequest(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending request: %w", err)
	}

	return req, nil
}

// ListPending returns all PENDING requests, newest first
func (r *PendingRequestRepository) ListPending(ctx context.Context) ([]*models.PendingRequest, error) {
	query := `
		SELECT ` + pendingRequestColumns + `
		FROM pending_requests
		WHERE status = 'PENDING'
		ORDER BY created_at DESC, id DESC
	`

	return r.queryRequests(ctx, query)
}

// LockPending returns PENDING requests in arrival order and row-locks them.
// Called by the close after the registry lock is held.
func (r *PendingRequestRepository) LockPending(ctx context.Context) ([]*models.PendingRequest, error) {
	query := `
		SELECT ` + pendingRequestColumns + `
		FROM pending_requests
		WHERE status = 'PENDING'
		ORDER BY id ASC
		FOR UPDATE
	`

	return r.queryRequests(ctx, query)
}

// Aggregate sums PENDING requests by kind
func (r *PendingRequestRepository) Aggregate(ctx context.Context) (*models.QueueAggregate, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE kind = 'DEPOSIT'), 0)::text,
			COALESCE(SUM(amount) FILTER (WHERE kind = 'WITHDRAWAL'), 0)::text,
			COUNT(*)
		FROM pending_requests
		WHERE status = 'PENDING'
	`

	var deposit, withdrawal string
	var count int64
	if err := r.q.QueryRow(ctx, query).Scan(&deposit, &withdrawal, &count); err != nil {
		return nil, fmt.Errorf("failed to aggregate pending requests: %w", err)
	}

	agg := &models.QueueAggregate{Count: int(count)}
	var err error
	if agg.TotalDeposit, err = models.ParseNumeric("total_deposit", deposit); err != nil {
		return nil, err
	}
	if agg.TotalWithdrawal, err = models.ParseNumeric("total_withdrawal", withdrawal); err != nil {
		return nil, err
	}

	return agg, nil
}

// UpdateAmount overwrites the amount of a PENDING request
func (r *PendingRequestRepository) UpdateAmount(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE pending_requests
		SET amount = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
	`

	tag, err := r.q.Exec(ctx, query, id, amount.String())
	if err != nil {
		return false, fmt.Errorf("failed to update pending request amount: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// DeletePending removes a PENDING request; completed requests are never deleted
func (r *PendingRequestRepository) DeletePending(ctx context.Context, id int64) (bool, error) {
	query := `DELETE FROM pending_requests WHERE id = $1 AND status = 'PENDING'`

	tag, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete pending request: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkCompleted moves the given PENDING requests to COMPLETED
func (r *PendingRequestRepository) MarkCompleted(ctx context.Context, ids []int64, settledOn time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE pending_requests
		SET status = 'COMPLETED', settled_on = $2, updated_at = NOW()
		WHERE id = ANY($1) AND status = 'PENDING'
	`

	tag, err := r.q.Exec(ctx, query, ids, models.DateOnly(settledOn))
	if err != nil {
		return 0, fmt.Errorf("failed to mark requests completed: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ListSettledOn returns requests completed by the close of closeDate
func (r *PendingRequestRepository) ListSettledOn(ctx context.Context, closeDate time.Time) ([]*models.PendingRequest, error) {
	query := `
		SELECT ` + pendingRequestColumns + `
		FROM pending_requests
		WHERE status = 'COMPLETED' AND settled_on = $1
		ORDER BY id ASC
	`

	return r.queryRequests(ctx, query, models.DateOnly(closeDate))
}

func (r *PendingRequestRepository) queryRequests(ctx context.Context, query string, args ...any) ([]*models.PendingRequest, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.PendingRequest
	for rows.Next() {
		req, err := scanPendingRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending requests: %w", err)
	}

	return requests, nil
}

func scanPendingRequest(row pgx.Row) (*models.PendingRequest, error) {
	var req models.PendingRequest
	var amount string
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.Kind,
		&amount,
		&req.PlacementID,
		&req.Status,
		&req.SettledOn,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if req.Amount, err = models.ParseNumeric("amount", amount); err != nil {
		return nil, err
	}

	return &req, nil
}

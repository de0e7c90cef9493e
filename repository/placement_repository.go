package repository

import (
	"context"
	"fmt"

	"fundledger/database"
	"fundledger/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PlacementRepository implements the PlacementRepository interface
type PlacementRepository struct {
	q queryable
}

// NewPlacementRepository creates a new placement repository
func NewPlacementRepository(db *database.DB) *PlacementRepository {
	return &PlacementRepository{q: db.Pool}
}

// newPlacementRepositoryWithTx creates a new placement repository with a transaction
func newPlacementRepositoryWithTx(tx queryable) *PlacementRepository {
	return &PlacementRepository{q: tx}
}

const placementColumns = `
	id, counterparty, principal::text, accrued_interest::text, yield_rate::text,
	early_exit_rate::text, start_date, maturity_date, status, created_at`

// Create inserts a new ACTIVE placement
func (r *PlacementRepository) Create(ctx context.Context, p *models.Placement) error {
	query := `
		INSERT INTO placements (
			counterparty, principal, accrued_interest, yield_rate, early_exit_rate,
			start_date, maturity_date, status
		) VALUES ($1, $2, 0, $3, $4, $5, $6, 'ACTIVE')
		RETURNING id, status, created_at
	`

	err := r.q.QueryRow(ctx, query,
		p.Counterparty,
		p.Principal.String(),
		p.YieldRate.String(),
		p.EarlyExitRate.String(),
		models.DateOnly(p.StartDate),
		models.DateOnly(p.MaturityDate),
	).Scan(&p.ID, &p.Status, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create placement: %w", err)
	}
	p.AccruedInterest = decimal.Zero

	return nil
}

// GetByID retrieves a placement by ID
func (r *PlacementRepository) GetByID(ctx context.Context, id int64) (*models.Placement, error) {
	query := `SELECT ` + placementColumns + ` FROM placements WHERE id = $1`

	p, err := scanPlacement(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get placement: %w", err)
	}

	return p, nil
}

// ListAll returns every placement ordered by ID
func (r *PlacementRepository) ListAll(ctx context.Context) ([]*models.Placement, error) {
	query := `SELECT ` + placementColumns + ` FROM placements ORDER BY id ASC`
	return r.queryPlacements(ctx, query)
}

// ListActiveForUpdate returns ACTIVE placements locked until the transaction ends
func (r *PlacementRepository) ListActiveForUpdate(ctx context.Context) ([]*models.Placement, error) {
	query := `
		SELECT ` + placementColumns + `
		FROM placements
		WHERE status = 'ACTIVE'
		ORDER BY id ASC
		FOR UPDATE
	`
	return r.queryPlacements(ctx, query)
}

// DecreasePrincipal subtracts amount from the principal of a placement
func (r *PlacementRepository) DecreasePrincipal(ctx context.Context, id int64, amount decimal.Decimal) error {
	query := `UPDATE placements SET principal = principal - $2 WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, amount.String())
	if err != nil {
		return fmt.Errorf("failed to decrease placement principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("placement %d not found", id)
	}

	return nil
}

// AddAccruedInterest adds amount to the accrued interest bucket of a placement
func (r *PlacementRepository) AddAccruedInterest(ctx context.Context, id int64, amount decimal.Decimal) error {
	query := `UPDATE placements SET accrued_interest = accrued_interest + $2 WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, id, amount.String())
	if err != nil {
		return fmt.Errorf("failed to accrue placement interest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("placement %d not found", id)
	}

	return nil
}

// DeleteExhausted deletes placements whose principal reached zero or below
// and returns the deleted rows, accrued interest included
func (r *PlacementRepository) DeleteExhausted(ctx context.Context) ([]*models.Placement, error) {
	query := `
		DELETE FROM placements
		WHERE principal <= 0
		RETURNING ` + placementColumns

	return r.queryPlacements(ctx, query)
}

// Totals returns Σ principal and Σ accrued interest over all placements
func (r *PlacementRepository) Totals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(principal), 0)::text, COALESCE(SUM(accrued_interest), 0)::text
		FROM placements
	`

	var principalText, accruedText string
	if err := r.q.QueryRow(ctx, query).Scan(&principalText, &accruedText); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum placements: %w", err)
	}

	principal, err := models.ParseNumeric("principal", principalText)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	accrued, err := models.ParseNumeric("accrued_interest", accruedText)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return principal, accrued, nil
}

func (r *PlacementRepository) queryPlacements(ctx context.Context, query string, args ...any) ([]*models.Placement, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query placements: %w", err)
	}
	defer rows.Close()

	var placements []*models.Placement
	for rows.Next() {
		p, err := scanPlacement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan placement: %w", err)
		}
		placements = append(placements, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating placements: %w", err)
	}

	return placements, nil
}

func scanPlacement(row pgx.Row) (*models.Placement, error) {
	var p models.Placement
	var principal, accrued, yieldRate, exitRate string
	err := row.Scan(
		&p.ID,
		&p.Counterparty,
		&principal,
		&accrued,
		&yieldRate,
		&exitRate,
		&p.StartDate,
		&p.MaturityDate,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.Principal, err = models.ParseNumeric("principal", principal); err != nil {
		return nil, err
	}
	if p.AccruedInterest, err = models.ParseNumeric("accrued_interest", accrued); err != nil {
		return nil, err
	}
	if p.YieldRate, err = models.ParseNumeric("yield_rate", yieldRate); err != nil {
		return nil, err
	}
	if p.EarlyExitRate, err = models.ParseNumeric("early_exit_rate", exitRate); err != nil {
		return nil, err
	}

	return &p, nil
}

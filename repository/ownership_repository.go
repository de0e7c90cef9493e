package repository

import (
	"context"
	"fmt"

	"fundledger/database"
	"fundledger/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// OwnershipRepository implements the OwnershipRepository interface
type OwnershipRepository struct {
	q queryable
}

// NewOwnershipRepository creates a new ownership repository
func NewOwnershipRepository(db *database.DB) *OwnershipRepository {
	return &OwnershipRepository{q: db.Pool}
}

// newOwnershipRepositoryWithTx creates a new ownership repository with a transaction
func newOwnershipRepositoryWithTx(tx queryable) *OwnershipRepository {
	return &OwnershipRepository{q: tx}
}

const ownershipColumns = `id, user_id, placement_id, principal_owned::text, created_at, updated_at`

// Get retrieves the ownership row for a user and placement
func (r *OwnershipRepository) Get(ctx context.Context, userID string, placementID int64) (*models.Ownership, error) {
	query := `SELECT ` + ownershipColumns + ` FROM ownerships WHERE user_id = $1 AND placement_id = $2`
	return r.getOne(ctx, query, userID, placementID)
}

// GetForUpdate retrieves the ownership row and locks it until the transaction ends
func (r *OwnershipRepository) GetForUpdate(ctx context.Context, userID string, placementID int64) (*models.Ownership, error) {
	query := `SELECT ` + ownershipColumns + ` FROM ownerships WHERE user_id = $1 AND placement_id = $2 FOR UPDATE`
	return r.getOne(ctx, query, userID, placementID)
}

func (r *OwnershipRepository) getOne(ctx context.Context, query string, args ...any) (*models.Ownership, error) {
	o, err := scanOwnership(r.q.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ownership: %w", err)
	}
	return o, nil
}

// AddPrincipal creates the (user, placement) row or adds amount to it
func (r *OwnershipRepository) AddPrincipal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) error {
	query := `
		INSERT INTO ownerships (user_id, placement_id, principal_owned)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, placement_id)
		DO UPDATE SET
			principal_owned = ownerships.principal_owned + EXCLUDED.principal_owned,
			updated_at = NOW()
	`

	if _, err := r.q.Exec(ctx, query, userID, placementID, amount.String()); err != nil {
		return fmt.Errorf("failed to add ownership principal: %w", err)
	}

	return nil
}

// DecreasePrincipal subtracts amount from an existing row. The table check
// constraint rejects a result below zero.
func (r *OwnershipRepository) DecreasePrincipal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) error {
	query := `
		UPDATE ownerships
		SET principal_owned = principal_owned - $3, updated_at = NOW()
		WHERE user_id = $1 AND placement_id = $2
	`

	tag, err := r.q.Exec(ctx, query, userID, placementID, amount.String())
	if err != nil {
		return fmt.Errorf("failed to decrease ownership principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ownership for user %s in placement %d not found", userID, placementID)
	}

	return nil
}

// ListByPlacement returns the owners of a placement, largest stake first
func (r *OwnershipRepository) ListByPlacement(ctx context.Context, placementID int64) ([]*models.Ownership, error) {
	query := `
		SELECT ` + ownershipColumns + `
		FROM ownerships
		WHERE placement_id = $1
		ORDER BY principal_owned DESC, user_id ASC
	`

	rows, err := r.q.Query(ctx, query, placementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ownerships: %w", err)
	}
	defer rows.Close()

	var owners []*models.Ownership
	for rows.Next() {
		o, err := scanOwnership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ownership: %w", err)
		}
		owners = append(owners, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ownerships: %w", err)
	}

	return owners, nil
}

// ListWithPlacements joins every ownership row to its live placement.
// Rows left behind by deleted placements are not returned.
func (r *OwnershipRepository) ListWithPlacements(ctx context.Context) ([]*models.OwnershipView, error) {
	query := `
		SELECT o.user_id, o.placement_id, p.counterparty, o.principal_owned::text, p.yield_rate::text
		FROM ownerships o
		JOIN placements p ON p.id = o.placement_id
		ORDER BY o.placement_id ASC, o.user_id ASC
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ownership view: %w", err)
	}
	defer rows.Close()

	var views []*models.OwnershipView
	for rows.Next() {
		var v models.OwnershipView
		var owned, rate string
		if err := rows.Scan(&v.UserID, &v.PlacementID, &v.Counterparty, &owned, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan ownership view: %w", err)
		}
		if v.PrincipalOwned, err = models.ParseNumeric("principal_owned", owned); err != nil {
			return nil, err
		}
		if v.YieldRate, err = models.ParseNumeric("yield_rate", rate); err != nil {
			return nil, err
		}
		views = append(views, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ownership view: %w", err)
	}

	return views, nil
}

// SumPrincipal sums principal owned over rows whose placement still exists
func (r *OwnershipRepository) SumPrincipal(ctx context.Context) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(o.principal_owned), 0)::text
		FROM ownerships o
		JOIN placements p ON p.id = o.placement_id
	`

	var total string
	if err := r.q.QueryRow(ctx, query).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum ownership: %w", err)
	}

	return models.ParseNumeric("principal_owned", total)
}

func scanOwnership(row pgx.Row) (*models.Ownership, error) {
	var o models.Ownership
	var owned string
	err := row.Scan(&o.ID, &o.UserID, &o.PlacementID, &owned, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if o.PrincipalOwned, err = models.ParseNumeric("principal_owned", owned); err != nil {
		return nil, err
	}

	return &o, nil
}

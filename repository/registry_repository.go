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

// RegistryRepository implements the RegistryRepository interface
type RegistryRepository struct {
	q queryable
}

// NewRegistryRepository creates a new registry repository
func NewRegistryRepository(db *database.DB) *RegistryRepository {
	return &RegistryRepository{q: db.Pool}
}

// newRegistryRepositoryWithTx creates a new registry repository with a transaction
func newRegistryRepositoryWithTx(tx queryable) *RegistryRepository {
	return &RegistryRepository{q: tx}
}

// Get reads the registry row without locking it
func (r *RegistryRepository) Get(ctx context.Context) (*models.FundRegistry, error) {
	return r.get(ctx, false)
}

// GetForUpdate reads the registry row and holds an exclusive lock on it until
// the transaction ends. This lock serialises every close.
func (r *RegistryRepository) GetForUpdate(ctx context.Context) (*models.FundRegistry, error) {
	return r.get(ctx, true)
}

func (r *RegistryRepository) get(ctx context.Context, forUpdate bool) (*models.FundRegistry, error) {
	query := `
		SELECT total_idle_cash::text, total_invested::text, last_close_date, updated_at
		FROM fund_registry
		WHERE id = 1
	`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var reg models.FundRegistry
	var idle, invested string
	err := r.q.QueryRow(ctx, query).Scan(&idle, &invested, &reg.LastCloseDate, &reg.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("fund registry row is missing")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fund registry: %w", err)
	}

	if reg.IdleCash, err = models.ParseNumeric("total_idle_cash", idle); err != nil {
		return nil, err
	}
	if reg.TotalInvested, err = models.ParseNumeric("total_invested", invested); err != nil {
		return nil, err
	}

	return &reg, nil
}

// Update overwrites the fund totals and advances the last close date
func (r *RegistryRepository) Update(ctx context.Context, idleCash, invested decimal.Decimal, lastCloseDate time.Time) error {
	query := `
		UPDATE fund_registry
		SET total_idle_cash = $1, total_invested = $2, last_close_date = $3, updated_at = NOW()
		WHERE id = 1
	`

	tag, err := r.q.Exec(ctx, query, idleCash.String(), invested.String(), models.DateOnly(lastCloseDate))
	if err != nil {
		return fmt.Errorf("failed to update fund registry: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("fund registry row is missing")
	}

	return nil
}

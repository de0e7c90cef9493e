package repository

import (
	"context"
	"fmt"

	"fundledger/database"
	"fundledger/events"
	"fundledger/service"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	transactionalBus *events.TransactionalBus
	pendingRepo      service.PendingRequestRepository
	placementRepo    service.PlacementRepository
	ownershipRepo    service.OwnershipRepository
	registryRepo     service.RegistryRepository
	dailyReportRepo  service.DailyReportRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:       db,
		eventBus: eventBus,
	}
}

type unitOfWorkFactory struct {
	db       *database.DB
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new read-write transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	return u.begin(ctx, pgx.TxOptions{})
}

// BeginReadOnly starts a read-only transaction that sees one snapshot for its
// whole duration
func (u *unitOfWork) BeginReadOnly(ctx context.Context) error {
	return u.begin(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
}

func (u *unitOfWork) begin(ctx context.Context, opts pgx.TxOptions) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	// Create repositories with the transaction
	u.pendingRepo = newPendingRequestRepositoryWithTx(tx)
	u.placementRepo = newPlacementRepositoryWithTx(tx)
	u.ownershipRepo = newOwnershipRepositoryWithTx(tx)
	u.registryRepo = newRegistryRepositoryWithTx(tx)
	u.dailyReportRepo = newDailyReportRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	// Flush pending events after successful commit
	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Nothing to rollback
	}

	// The caller's context may already be cancelled; the rollback must still reach the server
	err := u.tx.Rollback(context.WithoutCancel(u.ctx))
	if err != nil && err != pgx.ErrTxClosed {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	// Discard pending events on rollback
	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

// PendingRequestRepository returns the pending request repository for this unit of work
func (u *unitOfWork) PendingRequestRepository() service.PendingRequestRepository {
	if u.pendingRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.pendingRepo
}

// PlacementRepository returns the placement repository for this unit of work
func (u *unitOfWork) PlacementRepository() service.PlacementRepository {
	if u.placementRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.placementRepo
}

// OwnershipRepository returns the ownership repository for this unit of work
func (u *unitOfWork) OwnershipRepository() service.OwnershipRepository {
	if u.ownershipRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.ownershipRepo
}

// RegistryRepository returns the registry repository for this unit of work
func (u *unitOfWork) RegistryRepository() service.RegistryRepository {
	if u.registryRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.registryRepo
}

// DailyReportRepository returns the daily report repository for this unit of work
func (u *unitOfWork) DailyReportRepository() service.DailyReportRepository {
	if u.dailyReportRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.dailyReportRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fundledger/events"
	"fundledger/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// ledgerService implements the LedgerService interface
type ledgerService struct {
	uowFactory UnitOfWorkFactory
}

// NewLedgerService creates a new ledger service
func NewLedgerService(uowFactory UnitOfWorkFactory) LedgerService {
	return &ledgerService{
		uowFactory: uowFactory,
	}
}

// Enqueue validates and stores a new PENDING request
func (s *ledgerService) Enqueue(ctx context.Context, userID string, kind models.RequestKind, amount decimal.Decimal, placementID *int64) (int64, error) {
	req, err := newPendingRequest(userID, kind, amount, placementID)
	if err != nil {
		return 0, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	if err := s.store(ctx, uow, req); err != nil {
		return 0, err
	}

	if err := uow.Commit(); err != nil {
		return 0, persistenceError("failed to commit transaction", err)
	}

	return req.ID, nil
}

// SubmitWithdrawal checks the user's ownership covers amount, then enqueues the withdrawal
func (s *ledgerService) SubmitWithdrawal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) (int64, error) {
	req, err := newPendingRequest(userID, models.RequestKindWithdrawal, amount, &placementID)
	if err != nil {
		return 0, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	ownership, err := uow.OwnershipRepository().Get(ctx, req.UserID, placementID)
	if err != nil {
		return 0, persistenceError("failed to get ownership", err)
	}
	if err := checkWithdrawal(ownership, req.UserID, placementID, req.Amount); err != nil {
		return 0, err
	}

	if err := s.store(ctx, uow, req); err != nil {
		return 0, err
	}

	if err := uow.Commit(); err != nil {
		return 0, persistenceError("failed to commit transaction", err)
	}

	return req.ID, nil
}

func (s *ledgerService) store(ctx context.Context, uow UnitOfWork, req *models.PendingRequest) error {
	if err := uow.PendingRequestRepository().Create(ctx, req); err != nil {
		return persistenceError("failed to create pending request", err)
	}

	uow.EventBus().Publish(events.RequestQueuedEvent{
		RequestID:   req.ID,
		UserID:      req.UserID,
		Kind:        req.Kind,
		Amount:      req.Amount,
		PlacementID: req.PlacementID,
	})

	log.WithFields(log.Fields{
		"requestID": req.ID,
		"userID":    req.UserID,
		"kind":      req.Kind,
		"amount":    req.Amount.StringFixed(models.CurrencyPlaces),
	}).Info("Request queued")

	return nil
}

// Aggregate sums the pending queue by kind
func (s *ledgerService) Aggregate(ctx context.Context) (*models.QueueAggregate, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginReadOnly(ctx); err != nil {
		return nil, persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	agg, err := uow.PendingRequestRepository().Aggregate(ctx)
	if err != nil {
		return nil, persistenceError("failed to aggregate pending requests", err)
	}

	return agg, nil
}

// Get returns a request in any status, or ErrNotFound
func (s *ledgerService) Get(ctx context.Context, id int64) (*models.PendingRequest, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginReadOnly(ctx); err != nil {
		return nil, persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	req, err := uow.PendingRequestRepository().GetByID(ctx, id)
	if err != nil {
		return nil, persistenceError("failed to get request", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request %d", ErrNotFound, id)
	}

	return req, nil
}

// List returns pending requests, newest first
func (s *ledgerService) List(ctx context.Context) ([]*models.PendingRequest, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginReadOnly(ctx); err != nil {
		return nil, persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	requests, err := uow.PendingRequestRepository().ListPending(ctx)
	if err != nil {
		return nil, persistenceError("failed to list pending requests", err)
	}

	return requests, nil
}

// Amend overwrites the amount of a PENDING request
func (s *ledgerService) Amend(ctx context.Context, id int64, amount decimal.Decimal) error {
	if _, err := models.CheckAmount(amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	updated, err := uow.PendingRequestRepository().UpdateAmount(ctx, id, amount)
	if err != nil {
		return persistenceError("failed to amend pending request", err)
	}
	if !updated {
		return fmt.Errorf("%w: request %d", ErrNotFound, id)
	}

	if err := uow.Commit(); err != nil {
		return persistenceError("failed to commit transaction", err)
	}

	log.WithFields(log.Fields{
		"requestID": id,
		"amount":    amount.StringFixed(models.CurrencyPlaces),
	}).Info("Request amended")

	return nil
}

// Cancel removes a PENDING request. Unknown and settled requests are left alone.
func (s *ledgerService) Cancel(ctx context.Context, id int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	deleted, err := uow.PendingRequestRepository().DeletePending(ctx, id)
	if err != nil {
		return persistenceError("failed to cancel pending request", err)
	}

	if err := uow.Commit(); err != nil {
		return persistenceError("failed to commit transaction", err)
	}

	if deleted {
		log.WithField("requestID", id).Info("Request cancelled")
	} else {
		log.WithField("requestID", id).Debug("Cancel ignored, request is not pending")
	}

	return nil
}

// ValidateWithdrawal reports whether the user's current ownership covers amount.
// The check is advisory; the close re-checks against the live balance.
func (s *ledgerService) ValidateWithdrawal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrMissingUser
	}
	if _, err := models.CheckAmount(amount); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	uow := s.uowFactory.Create()
	if err := uow.BeginReadOnly(ctx); err != nil {
		return persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	ownership, err := uow.OwnershipRepository().Get(ctx, userID, placementID)
	if err != nil {
		return persistenceError("failed to get ownership", err)
	}

	return checkWithdrawal(ownership, userID, placementID, amount)
}

// SettledOn returns the requests completed by the close of closeDate
func (s *ledgerService) SettledOn(ctx context.Context, closeDate time.Time) ([]*models.PendingRequest, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginReadOnly(ctx); err != nil {
		return nil, persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	requests, err := uow.PendingRequestRepository().ListSettledOn(ctx, models.DateOnly(closeDate))
	if err != nil {
		return nil, persistenceError("failed to list settled requests", err)
	}

	return requests, nil
}

// newPendingRequest applies the enqueue validation rules
func newPendingRequest(userID string, kind models.RequestKind, amount decimal.Decimal, placementID *int64) (*models.PendingRequest, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}

	if kind != models.RequestKindDeposit && kind != models.RequestKindWithdrawal {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	if _, err := models.CheckAmount(amount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	req := &models.PendingRequest{
		UserID: userID,
		Kind:   kind,
		Amount: amount,
		Status: models.RequestStatusPending,
	}

	switch kind {
	case models.RequestKindWithdrawal:
		if placementID == nil {
			return nil, ErrMissingPlacement
		}
		id := *placementID
		req.PlacementID = &id
	case models.RequestKindDeposit:
		if placementID != nil {
			log.WithFields(log.Fields{
				"userID":      userID,
				"placementID": *placementID,
			}).Debug("Ignoring placement on deposit request")
		}
	}

	return req, nil
}

// checkWithdrawal compares a withdrawal against an ownership row read by the caller
func checkWithdrawal(ownership *models.Ownership, userID string, placementID int64, amount decimal.Decimal) error {
	if ownership == nil {
		return fmt.Errorf("%w: user %s in placement %d", ErrNoOwnership, userID, placementID)
	}
	if amount.GreaterThan(ownership.PrincipalOwned) {
		return fmt.Errorf("%w: requested %s, owned %s",
			ErrInsufficientBalance,
			amount.StringFixed(models.CurrencyPlaces),
			ownership.PrincipalOwned.StringFixed(models.CurrencyPlaces))
	}
	return nil
}

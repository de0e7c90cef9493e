package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundledger/config"
	"fundledger/events"
	"fundledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// SettlementConfig holds the close settings taken from configuration
type SettlementConfig struct {
	WithdrawalPolicy      config.WithdrawalPolicy
	ReconciliationEpsilon decimal.Decimal
}

// settlementService implements the SettlementService interface
type settlementService struct {
	uowFactory UnitOfWorkFactory
	cfg        SettlementConfig
	metrics    SettlementMetrics
}

// NewSettlementService creates a new settlement service. metrics may be nil.
func NewSettlementService(uowFactory UnitOfWorkFactory, cfg SettlementConfig, metrics SettlementMetrics) SettlementService {
	if cfg.WithdrawalPolicy == "" {
		cfg.WithdrawalPolicy = config.WithdrawalPolicyAbort
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &settlementService{
		uowFactory: uowFactory,
		cfg:        cfg,
		metrics:    metrics,
	}
}

// closeRun carries the running state of one close
type closeRun struct {
	id      string
	date    time.Time
	logger  *log.Entry
	outcome *models.CloseOutcome

	idle       decimal.Decimal
	invested   decimal.Decimal
	deposit    decimal.Decimal
	withdrawal decimal.Decimal
	interest   decimal.Decimal

	deposits   []*models.PendingRequest
	settledIDs []int64
}

// Close settles the pending queue for targetDate in one transaction
func (s *settlementService) Close(ctx context.Context, targetDate time.Time, params *models.PlacementParams) (outcome *models.CloseOutcome) {
	start := time.Now()
	run := &closeRun{
		id:   uuid.NewString(),
		date: models.DateOnly(targetDate),
	}
	run.logger = log.WithFields(log.Fields{
		"runID": run.id,
		"date":  run.date.Format(models.DateLayout),
	})
	run.outcome = &models.CloseOutcome{
		RunID: run.id,
		Stage: models.CloseStageIdle,
	}
	outcome = run.outcome

	defer func() {
		if r := recover(); r != nil {
			run.logger.WithField("panic", r).Error("Close panicked")
			outcome.Err = fmt.Errorf("%w: close panicked: %v", ErrPersistence, r)
		}

		if outcome.Err != nil {
			outcome.Success = false
			outcome.Message = fmt.Sprintf("Close of %s failed at %s: %v", run.date.Format(models.DateLayout), outcome.Stage, outcome.Err)
			outcome.Report = nil
			outcome.NewPlacement = nil
			outcome.RetiredPlacements = nil
			outcome.SkippedWithdrawals = nil
			run.logger.WithFields(log.Fields{
				"stage": outcome.Stage,
				"error": outcome.Err,
			}).Warn("Close aborted")
		}

		s.metrics.ObserveClose(outcome.Success, ErrorReason(outcome.Err), time.Since(start))
	}()

	run.logger.Info("Starting close")

	if err := s.runClose(ctx, run, params); err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.Success = true
	outcome.Message = fmt.Sprintf("Day %s successfully closed.", run.date.Format(models.DateLayout))

	s.metrics.ObserveSettledRequests(len(run.settledIDs), len(outcome.SkippedWithdrawals))
	s.metrics.SetFundTotals(run.idle, run.invested)

	run.logger.WithFields(log.Fields{
		"deposits":    run.deposit.StringFixed(models.CurrencyPlaces),
		"withdrawals": run.withdrawal.StringFixed(models.CurrencyPlaces),
		"idle":        run.idle.StringFixed(models.CurrencyPlaces),
		"invested":    run.invested.StringFixed(models.CurrencyPlaces),
		"settled":     len(run.settledIDs),
		"skipped":     len(outcome.SkippedWithdrawals),
		"duration":    time.Since(start),
	}).Info("Close committed")

	return outcome
}

func (s *settlementService) runClose(ctx context.Context, run *closeRun, params *models.PlacementParams) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	// Every other close blocks here until this transaction ends
	registry, err := uow.RegistryRepository().GetForUpdate(ctx)
	if err != nil {
		return persistenceError("failed to lock registry", err)
	}
	run.outcome.Stage = models.CloseStageRegistryLocked
	run.idle = registry.IdleCash
	run.invested = registry.TotalInvested

	if err := checkTimeline(registry, run.date); err != nil {
		return err
	}
	run.outcome.Stage = models.CloseStageTimelineChecked

	// The snapshot is taken under the registry lock, so requests queued from
	// now on belong to the next close
	requests, err := uow.PendingRequestRepository().LockPending(ctx)
	if err != nil {
		return persistenceError("failed to snapshot pending requests", err)
	}

	if err := s.applyRequests(ctx, uow, run, requests); err != nil {
		return err
	}
	run.outcome.Stage = models.CloseStageRequestsApplied

	if err := s.accrueInterest(ctx, uow, run); err != nil {
		return err
	}
	run.outcome.Stage = models.CloseStageInterestAccrued

	var alloc *allocation
	if params != nil && run.deposit.IsPositive() {
		alloc, err = allocatePlacement(ctx, uow, run.date, params, run.deposits)
		if err != nil {
			return persistenceError("failed to allocate placement", err)
		}
		run.outcome.NewPlacement = alloc.Placement
	} else if run.deposit.IsPositive() {
		run.logger.WithField("deposits", run.deposit.StringFixed(models.CurrencyPlaces)).
			Info("No placement terms given, deposits stay in idle cash")
	}
	run.outcome.Stage = models.CloseStagePlacementAllocated

	deployed := decimal.Zero
	if alloc != nil {
		deployed = alloc.Placement.Principal
	}
	run.idle = run.idle.Add(run.deposit).Sub(run.withdrawal).Sub(deployed)
	run.invested = run.invested.Add(deployed)

	report := &models.DailyReport{
		ReportDate:      run.date,
		TotalDeposit:    run.deposit,
		TotalWithdrawal: run.withdrawal,
		IdleCashAtClose: run.idle,
		InvestedAtClose: run.invested,
		InterestAccrued: run.interest,
		RequestsSettled: len(run.settledIDs),
	}
	if alloc != nil {
		id := alloc.Placement.ID
		report.PlacementID = &id
	}
	if err := uow.DailyReportRepository().Create(ctx, report); err != nil {
		return persistenceError("failed to write daily report", err)
	}

	if err := uow.RegistryRepository().Update(ctx, run.idle, run.invested, run.date); err != nil {
		return persistenceError("failed to update registry", err)
	}

	completed, err := uow.PendingRequestRepository().MarkCompleted(ctx, run.settledIDs, run.date)
	if err != nil {
		return persistenceError("failed to settle requests", err)
	}
	if completed != int64(len(run.settledIDs)) {
		return fmt.Errorf("%w: settled %d of %d requests", ErrPersistence, completed, len(run.settledIDs))
	}

	retired, err := uow.PlacementRepository().DeleteExhausted(ctx)
	if err != nil {
		return persistenceError("failed to delete exhausted placements", err)
	}
	for _, p := range retired {
		run.outcome.RetiredPlacements = append(run.outcome.RetiredPlacements, models.RetiredPlacement{
			PlacementID:       p.ID,
			Counterparty:      p.Counterparty,
			DiscardedInterest: p.AccruedInterest,
		})
		// Accrued interest is not carried anywhere once its placement is gone
		run.logger.WithFields(log.Fields{
			"placementID":       p.ID,
			"counterparty":      p.Counterparty,
			"principal":         p.Principal.StringFixed(models.CurrencyPlaces),
			"discardedInterest": p.AccruedInterest.String(),
		}).Warn("Exhausted placement deleted with its accrued interest")
	}

	if err := s.verifyInvariant(ctx, uow, run); err != nil {
		return err
	}
	run.outcome.Stage = models.CloseStageFinalized

	s.publish(uow, run, alloc)

	if err := uow.Commit(); err != nil {
		return persistenceError("failed to commit close", err)
	}

	run.outcome.Report = report
	return nil
}

// checkTimeline accepts only the day after the last close, or any date before the first close
func checkTimeline(registry *models.FundRegistry, target time.Time) error {
	next, ok := registry.NextCloseDate()
	if !ok {
		return nil
	}

	last := models.DateOnly(*registry.LastCloseDate)
	if !target.After(last) {
		return fmt.Errorf("%w: %s is on or before the last close %s",
			ErrDuplicateOrPastDate, target.Format(models.DateLayout), last.Format(models.DateLayout))
	}
	if target.After(next) {
		return fmt.Errorf("%w: expected next close %s, got %s",
			ErrCalendarGap, next.Format(models.DateLayout), target.Format(models.DateLayout))
	}
	return nil
}

// applyRequests applies withdrawals in arrival order and collects deposits
func (s *settlementService) applyRequests(ctx context.Context, uow UnitOfWork, run *closeRun, requests []*models.PendingRequest) error {
	for _, req := range requests {
		if !req.IsWithdrawal() {
			run.deposit = run.deposit.Add(req.Amount)
			run.deposits = append(run.deposits, req)
			run.settledIDs = append(run.settledIDs, req.ID)
			continue
		}

		applied, err := s.applyWithdrawal(ctx, uow, run, req)
		if err != nil {
			return err
		}
		if applied {
			run.withdrawal = run.withdrawal.Add(req.Amount)
			run.invested = run.invested.Sub(req.Amount)
			run.settledIDs = append(run.settledIDs, req.ID)
		}
	}
	return nil
}

// applyWithdrawal re-checks a withdrawal against the locked live ownership row
// and applies it. It returns false when the request is skipped by policy.
func (s *settlementService) applyWithdrawal(ctx context.Context, uow UnitOfWork, run *closeRun, req *models.PendingRequest) (bool, error) {
	if req.PlacementID == nil {
		return false, fmt.Errorf("%w: request %d", ErrMissingPlacement, req.ID)
	}
	placementID := *req.PlacementID

	ownership, err := uow.OwnershipRepository().GetForUpdate(ctx, req.UserID, placementID)
	if err != nil {
		return false, persistenceError("failed to lock ownership", err)
	}

	if err := checkWithdrawal(ownership, req.UserID, placementID, req.Amount); err != nil {
		if s.cfg.WithdrawalPolicy != config.WithdrawalPolicySkip {
			return false, fmt.Errorf("request %d: %w", req.ID, err)
		}

		available := decimal.Zero
		if ownership != nil {
			available = ownership.PrincipalOwned
		}
		reason := ErrorReason(err)
		run.outcome.SkippedWithdrawals = append(run.outcome.SkippedWithdrawals, models.SkippedWithdrawal{
			RequestID:   req.ID,
			UserID:      req.UserID,
			PlacementID: placementID,
			Requested:   req.Amount,
			Available:   available,
			Reason:      reason,
		})
		run.logger.WithFields(log.Fields{
			"requestID":   req.ID,
			"userID":      req.UserID,
			"placementID": placementID,
			"requested":   req.Amount.StringFixed(models.CurrencyPlaces),
			"available":   available.StringFixed(models.CurrencyPlaces),
			"reason":      reason,
		}).Warn("Withdrawal left pending, live balance does not cover it")
		return false, nil
	}

	if err := uow.OwnershipRepository().DecreasePrincipal(ctx, req.UserID, placementID, req.Amount); err != nil {
		return false, persistenceError("failed to debit ownership", err)
	}
	if err := uow.PlacementRepository().DecreasePrincipal(ctx, placementID, req.Amount); err != nil {
		return false, persistenceError("failed to debit placement", err)
	}

	run.logger.WithFields(log.Fields{
		"requestID":   req.ID,
		"userID":      req.UserID,
		"placementID": placementID,
		"amount":      req.Amount.StringFixed(models.CurrencyPlaces),
	}).Debug("Withdrawal applied")

	return true, nil
}

// accrueInterest adds one day of simple interest to every active placement
func (s *settlementService) accrueInterest(ctx context.Context, uow UnitOfWork, run *closeRun) error {
	placements, err := uow.PlacementRepository().ListActiveForUpdate(ctx)
	if err != nil {
		return persistenceError("failed to list active placements", err)
	}

	for _, p := range placements {
		accrual := p.DailyAccrual()
		if accrual.IsZero() {
			continue
		}
		if err := uow.PlacementRepository().AddAccruedInterest(ctx, p.ID, accrual); err != nil {
			return persistenceError("failed to accrue interest", err)
		}
		run.interest = run.interest.Add(accrual)
	}

	run.logger.WithFields(log.Fields{
		"placements": len(placements),
		"interest":   run.interest.String(),
	}).Debug("Interest accrued")

	return nil
}

// verifyInvariant compares Σprincipal and Σownership with the new invested total
// before commit. A mismatch is logged, not enforced.
func (s *settlementService) verifyInvariant(ctx context.Context, uow UnitOfWork, run *closeRun) error {
	principal, _, err := uow.PlacementRepository().Totals(ctx)
	if err != nil {
		return persistenceError("failed to sum placements", err)
	}
	owned, err := uow.OwnershipRepository().SumPrincipal(ctx)
	if err != nil {
		return persistenceError("failed to sum ownership", err)
	}

	eps := s.cfg.ReconciliationEpsilon
	if principal.Sub(run.invested).Abs().GreaterThan(eps) || owned.Sub(principal).Abs().GreaterThan(eps) {
		run.logger.WithFields(log.Fields{
			"invested":  run.invested.StringFixed(models.CurrencyPlaces),
			"principal": principal.StringFixed(models.CurrencyPlaces),
			"ownership": owned.StringFixed(models.CurrencyPlaces),
		}).Warn("Fund totals do not reconcile after close")
	}
	return nil
}

func (s *settlementService) publish(uow UnitOfWork, run *closeRun, alloc *allocation) {
	bus := uow.EventBus()

	if alloc != nil {
		bus.Publish(events.PlacementOpenedEvent{
			RunID:        run.id,
			PlacementID:  alloc.Placement.ID,
			Counterparty: alloc.Placement.Counterparty,
			Principal:    alloc.Placement.Principal,
			YieldRate:    alloc.Placement.YieldRate,
			MaturityDate: alloc.Placement.MaturityDate,
			Owners:       len(alloc.Stakes),
		})
	}

	for _, r := range run.outcome.RetiredPlacements {
		bus.Publish(events.PlacementRetiredEvent{
			RunID:             run.id,
			PlacementID:       r.PlacementID,
			Counterparty:      r.Counterparty,
			DiscardedInterest: r.DiscardedInterest,
		})
	}

	bus.Publish(events.DayClosedEvent{
		RunID:           run.id,
		CloseDate:       run.date,
		TotalDeposit:    run.deposit,
		TotalWithdrawal: run.withdrawal,
		IdleCash:        run.idle,
		TotalInvested:   run.invested,
		InterestAccrued: run.interest,
		RequestsSettled: len(run.settledIDs),
		RequestsSkipped: len(run.outcome.SkippedWithdrawals),
	})
}

// IsTimelineError reports whether a close failed only because of its target date
func IsTimelineError(err error) bool {
	return errors.Is(err, ErrDuplicateOrPastDate) || errors.Is(err, ErrCalendarGap)
}

package service

import (
	"context"
	"fmt"
	"time"

	"fundledger/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// auditService implements the AuditService interface
type auditService struct {
	uowFactory   UnitOfWorkFactory
	epsilon      decimal.Decimal
	reportLimit  int
	metrics      SettlementMetrics
	timeProvider func() time.Time
}

// NewAuditService creates a new audit service. metrics may be nil.
func NewAuditService(uowFactory UnitOfWorkFactory, epsilon decimal.Decimal, reportLimit int, metrics SettlementMetrics) AuditService {
	if reportLimit <= 0 {
		reportLimit = 15
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &auditService{
		uowFactory:   uowFactory,
		epsilon:      epsilon,
		reportLimit:  reportLimit,
		metrics:      metrics,
		timeProvider: time.Now,
	}
}

// Snapshot reads ownership, placements and registry inside one read-only
// transaction, so it sees the state before or after a close but never between
func (s *auditService) Snapshot(ctx context.Context) (*models.AuditSnapshot, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginReadOnly(ctx); err != nil {
		return nil, persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	ownership, err := uow.OwnershipRepository().ListWithPlacements(ctx)
	if err != nil {
		return nil, persistenceError("failed to read ownership", err)
	}

	placements, err := uow.PlacementRepository().ListAll(ctx)
	if err != nil {
		return nil, persistenceError("failed to read placements", err)
	}

	registry, err := uow.RegistryRepository().Get(ctx)
	if err != nil {
		return nil, persistenceError("failed to read registry", err)
	}

	return &models.AuditSnapshot{
		Ownership:  ownership,
		Placements: placements,
		Registry:   registry,
		TakenAt:    s.timeProvider().UTC(),
	}, nil
}

// Reconcile compares Σownership, Σprincipal and registry.invested
func (s *auditService) Reconcile(ctx context.Context) (*models.Reconciliation, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	rec := snapshot.Reconcile(s.epsilon)
	s.metrics.ObserveReconciliation(rec)
	if snapshot.Registry != nil {
		s.metrics.SetFundTotals(snapshot.Registry.IdleCash, snapshot.Registry.TotalInvested)
	}

	fields := log.Fields{
		"ownership": rec.TotalOwnership.StringFixed(models.CurrencyPlaces),
		"principal": rec.TotalPrincipal.StringFixed(models.CurrencyPlaces),
		"invested":  rec.RegistryInvested.StringFixed(models.CurrencyPlaces),
	}
	if rec.Balanced {
		log.WithFields(fields).Debug("Fund reconciled")
	} else {
		log.WithFields(fields).Warn("Fund does not reconcile")
	}

	return rec, nil
}

// Status summarises the fund for operators
func (s *auditService) Status(ctx context.Context) (*models.FundStatus, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	status := &models.FundStatus{
		IdleCash:        snapshot.Registry.IdleCash,
		TotalInvested:   snapshot.Registry.TotalInvested,
		TotalLiability:  snapshot.TotalOwnership(),
		AccruedInterest: snapshot.TotalAccrued(),
		LastCloseDate:   snapshot.Registry.LastCloseDate,
	}

	if next, ok := snapshot.Registry.NextCloseDate(); ok {
		status.NextExpectedDate = next
	} else {
		status.NextExpectedDate = models.DateOnly(s.timeProvider())
	}

	return status, nil
}

// RecentReports returns the latest close reports, newest first
func (s *auditService) RecentReports(ctx context.Context, limit int) ([]*models.DailyReport, error) {
	if limit <= 0 {
		limit = s.reportLimit
	}

	uow := s.uowFactory.Create()
	if err := uow.BeginReadOnly(ctx); err != nil {
		return nil, persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	reports, err := uow.DailyReportRepository().ListRecent(ctx, limit)
	if err != nil {
		return nil, persistenceError("failed to list daily reports", err)
	}

	return reports, nil
}

// DayReport reads one close's report together with the requests it settled
// and the placement it opened, all from one snapshot
func (s *auditService) DayReport(ctx context.Context, date *time.Time) (*models.DayReport, error) {
	uow := s.uowFactory.Create()
	if err := uow.BeginReadOnly(ctx); err != nil {
		return nil, persistenceError("failed to begin transaction", err)
	}
	defer uow.Rollback()

	var (
		report *models.DailyReport
		err    error
	)
	if date == nil {
		report, err = uow.DailyReportRepository().GetLatest(ctx)
	} else {
		report, err = uow.DailyReportRepository().GetByDate(ctx, models.DateOnly(*date))
	}
	if err != nil {
		return nil, persistenceError("failed to get daily report", err)
	}
	if report == nil {
		if date == nil {
			return nil, fmt.Errorf("%w: no close has run yet", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: no close for %s", ErrNotFound, date.Format(models.DateLayout))
	}

	day := &models.DayReport{Report: report}

	day.Settled, err = uow.PendingRequestRepository().ListSettledOn(ctx, report.ReportDate)
	if err != nil {
		return nil, persistenceError("failed to list settled requests", err)
	}

	if report.PlacementID != nil {
		day.Placement, err = uow.PlacementRepository().GetByID(ctx, *report.PlacementID)
		if err != nil {
			return nil, persistenceError("failed to get placement", err)
		}
		if day.Placement != nil {
			day.Owners, err = uow.OwnershipRepository().ListByPlacement(ctx, day.Placement.ID)
			if err != nil {
				return nil, persistenceError("failed to list placement owners", err)
			}
		}
	}

	return day, nil
}

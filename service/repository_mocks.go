package service

import (
	"context"
	"sync"
	"time"

	"fundledger/events"
	"fundledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockPendingRequestRepository is a mock implementation of PendingRequestRepository
type MockPendingRequestRepository struct {
	mock.Mock
}

func (m *MockPendingRequestRepository) Create(ctx context.Context, req *models.PendingRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockPendingRequestRepository) GetByID(ctx context.Context, id int64) (*models.PendingRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PendingRequest), args.Error(1)
}

func (m *MockPendingRequestRepository) ListPending(ctx context.Context) ([]*models.PendingRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PendingRequest), args.Error(1)
}

func (m *MockPendingRequestRepository) LockPending(ctx context.Context) ([]*models.PendingRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PendingRequest), args.Error(1)
}

func (m *MockPendingRequestRepository) Aggregate(ctx context.Context) (*models.QueueAggregate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueAggregate), args.Error(1)
}

func (m *MockPendingRequestRepository) UpdateAmount(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, id, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockPendingRequestRepository) DeletePending(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockPendingRequestRepository) MarkCompleted(ctx context.Context, ids []int64, settledOn time.Time) (int64, error) {
	args := m.Called(ctx, ids, settledOn)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPendingRequestRepository) ListSettledOn(ctx context.Context, closeDate time.Time) ([]*models.PendingRequest, error) {
	args := m.Called(ctx, closeDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PendingRequest), args.Error(1)
}

// MockPlacementRepository is a mock implementation of PlacementRepository
type MockPlacementRepository struct {
	mock.Mock
}

func (m *MockPlacementRepository) Create(ctx context.Context, placement *models.Placement) error {
	args := m.Called(ctx, placement)
	return args.Error(0)
}

func (m *MockPlacementRepository) GetByID(ctx context.Context, id int64) (*models.Placement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Placement), args.Error(1)
}

func (m *MockPlacementRepository) ListAll(ctx context.Context) ([]*models.Placement, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Placement), args.Error(1)
}

func (m *MockPlacementRepository) ListActiveForUpdate(ctx context.Context) ([]*models.Placement, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Placement), args.Error(1)
}

func (m *MockPlacementRepository) DecreasePrincipal(ctx context.Context, id int64, amount decimal.Decimal) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *MockPlacementRepository) AddAccruedInterest(ctx context.Context, id int64, amount decimal.Decimal) error {
	args := m.Called(ctx, id, amount)
	return args.Error(0)
}

func (m *MockPlacementRepository) DeleteExhausted(ctx context.Context) ([]*models.Placement, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Placement), args.Error(1)
}

func (m *MockPlacementRepository) Totals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Get(1).(decimal.Decimal), args.Error(2)
}

// MockOwnershipRepository is a mock implementation of OwnershipRepository
type MockOwnershipRepository struct {
	mock.Mock
}

func (m *MockOwnershipRepository) Get(ctx context.Context, userID string, placementID int64) (*models.Ownership, error) {
	args := m.Called(ctx, userID, placementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ownership), args.Error(1)
}

func (m *MockOwnershipRepository) GetForUpdate(ctx context.Context, userID string, placementID int64) (*models.Ownership, error) {
	args := m.Called(ctx, userID, placementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ownership), args.Error(1)
}

func (m *MockOwnershipRepository) AddPrincipal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) error {
	args := m.Called(ctx, userID, placementID, amount)
	return args.Error(0)
}

func (m *MockOwnershipRepository) DecreasePrincipal(ctx context.Context, userID string, placementID int64, amount decimal.Decimal) error {
	args := m.Called(ctx, userID, placementID, amount)
	return args.Error(0)
}

func (m *MockOwnershipRepository) ListByPlacement(ctx context.Context, placementID int64) ([]*models.Ownership, error) {
	args := m.Called(ctx, placementID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Ownership), args.Error(1)
}

func (m *MockOwnershipRepository) ListWithPlacements(ctx context.Context) ([]*models.OwnershipView, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.OwnershipView), args.Error(1)
}

func (m *MockOwnershipRepository) SumPrincipal(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockRegistryRepository is a mock implementation of RegistryRepository
type MockRegistryRepository struct {
	mock.Mock
}

func (m *MockRegistryRepository) Get(ctx context.Context) (*models.FundRegistry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FundRegistry), args.Error(1)
}

func (m *MockRegistryRepository) GetForUpdate(ctx context.Context) (*models.FundRegistry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FundRegistry), args.Error(1)
}

func (m *MockRegistryRepository) Update(ctx context.Context, idleCash, invested decimal.Decimal, lastCloseDate time.Time) error {
	args := m.Called(ctx, idleCash, invested, lastCloseDate)
	return args.Error(0)
}

// MockDailyReportRepository is a mock implementation of DailyReportRepository
type MockDailyReportRepository struct {
	mock.Mock
}

func (m *MockDailyReportRepository) Create(ctx context.Context, report *models.DailyReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockDailyReportRepository) GetByDate(ctx context.Context, date time.Time) (*models.DailyReport, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DailyReport), args.Error(1)
}

func (m *MockDailyReportRepository) GetLatest(ctx context.Context) (*models.DailyReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DailyReport), args.Error(1)
}

func (m *MockDailyReportRepository) ListRecent(ctx context.Context, limit int) ([]*models.DailyReport, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DailyReport), args.Error(1)
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns the events published so far
func (m *MockEventPublisher) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.events...)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Transaction calls go
// through mock.Mock; repository getters return whatever SetRepositories installed.
type MockUnitOfWork struct {
	mock.Mock
	pendingRepo     PendingRequestRepository
	placementRepo   PlacementRepository
	ownershipRepo   OwnershipRepository
	registryRepo    RegistryRepository
	dailyReportRepo DailyReportRepository
	eventBus        *MockEventPublisher
}

// SetRepositories installs the repositories returned by the getters
func (m *MockUnitOfWork) SetRepositories(pending PendingRequestRepository, placements PlacementRepository, ownership OwnershipRepository, registry RegistryRepository, reports DailyReportRepository) {
	m.pendingRepo = pending
	m.placementRepo = placements
	m.ownershipRepo = ownership
	m.registryRepo = registry
	m.dailyReportRepo = reports
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) BeginReadOnly(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) PendingRequestRepository() PendingRequestRepository { return m.pendingRepo }
func (m *MockUnitOfWork) PlacementRepository() PlacementRepository           { return m.placementRepo }
func (m *MockUnitOfWork) OwnershipRepository() OwnershipRepository           { return m.ownershipRepo }
func (m *MockUnitOfWork) RegistryRepository() RegistryRepository             { return m.registryRepo }
func (m *MockUnitOfWork) DailyReportRepository() DailyReportRepository       { return m.dailyReportRepo }

func (m *MockUnitOfWork) EventBus() EventPublisher {
	if m.eventBus == nil {
		m.eventBus = &MockEventPublisher{}
	}
	return m.eventBus
}

// PublishedEvents returns the events published through this unit of work
func (m *MockUnitOfWork) PublishedEvents() []events.Event {
	if m.eventBus == nil {
		return nil
	}
	return m.eventBus.Events()
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockSettlementMetrics is a mock implementation of SettlementMetrics
type MockSettlementMetrics struct {
	mock.Mock
}

func (m *MockSettlementMetrics) ObserveClose(success bool, reason string, duration time.Duration) {
	m.Called(success, reason, duration)
}

func (m *MockSettlementMetrics) ObserveSettledRequests(settled, skipped int) {
	m.Called(settled, skipped)
}

func (m *MockSettlementMetrics) SetFundTotals(idleCash, invested decimal.Decimal) {
	m.Called(idleCash, invested)
}

func (m *MockSettlementMetrics) ObserveReconciliation(r *models.Reconciliation) {
	m.Called(r)
}

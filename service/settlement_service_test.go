package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"fundledger/config"
	"fundledger/events"
	"fundledger/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *time.Time {
	d := date(s)
	return &d
}

type settlementMocks struct {
	factory    *MockUnitOfWorkFactory
	uow        *MockUnitOfWork
	pending    *MockPendingRequestRepository
	placements *MockPlacementRepository
	ownership  *MockOwnershipRepository
	registry   *MockRegistryRepository
	reports    *MockDailyReportRepository
}

func newSettlementMocks(registry *models.FundRegistry) *settlementMocks {
	m := &settlementMocks{
		factory:    new(MockUnitOfWorkFactory),
		uow:        new(MockUnitOfWork),
		pending:    new(MockPendingRequestRepository),
		placements: new(MockPlacementRepository),
		ownership:  new(MockOwnershipRepository),
		registry:   new(MockRegistryRepository),
		reports:    new(MockDailyReportRepository),
	}
	m.uow.SetRepositories(m.pending, m.placements, m.ownership, m.registry, m.reports)
	m.factory.On("Create").Return(m.uow)
	m.uow.On("Begin", mock.Anything).Return(nil)
	m.uow.On("Rollback").Return(nil)
	m.registry.On("GetForUpdate", mock.Anything).Return(registry, nil)
	return m
}

// expectFinalize sets up the writes every successful close performs after allocation
func (m *settlementMocks) expectFinalize(closeDate time.Time, idle, invested string, settled []int64, owned string) {
	m.reports.On("Create", mock.Anything, mock.MatchedBy(func(r *models.DailyReport) bool {
		return r.ReportDate.Equal(closeDate)
	})).Return(nil)
	m.registry.On("Update", mock.Anything, decEq(idle), decEq(invested), closeDate).Return(nil)
	m.pending.On("MarkCompleted", mock.Anything, settled, closeDate).Return(int64(len(settled)), nil)
	m.placements.On("Totals", mock.Anything).Return(dec(invested), decimal.Zero, nil)
	m.ownership.On("SumPrincipal", mock.Anything).Return(dec(owned), nil)
	m.uow.On("Commit").Return(nil)
}

func (m *settlementMocks) assert(t *testing.T) {
	m.uow.AssertExpectations(t)
	m.pending.AssertExpectations(t)
	m.placements.AssertExpectations(t)
	m.ownership.AssertExpectations(t)
	m.registry.AssertExpectations(t)
	m.reports.AssertExpectations(t)
}

func abortConfig() SettlementConfig {
	return SettlementConfig{WithdrawalPolicy: config.WithdrawalPolicyAbort, ReconciliationEpsilon: dec("0.01")}
}

func vcbParams() *models.PlacementParams {
	return &models.PlacementParams{
		Counterparty:  "VCB",
		YieldRate:     dec("8.5"),
		EarlyExitRate: dec("2.0"),
		TenorDays:     180,
	}
}

func TestCheckTimeline(t *testing.T) {
	tests := []struct {
		name     string
		last     *time.Time
		target   string
		wantErr  error
		contains string
	}{
		{"first close accepts any date", nil, "2031-07-19", nil, ""},
		{"next day", datePtr("2026-01-01"), "2026-01-02", nil, ""},
		{"same day", datePtr("2026-01-01"), "2026-01-01", ErrDuplicateOrPastDate, ""},
		{"past day", datePtr("2026-01-05"), "2026-01-02", ErrDuplicateOrPastDate, ""},
		{"two days ahead", datePtr("2026-01-01"), "2026-01-03", ErrCalendarGap, "2026-01-02"},
		{"month boundary gap", datePtr("2026-01-31"), "2026-02-05", ErrCalendarGap, "2026-02-01"},
		{"leap day", datePtr("2028-02-28"), "2028-02-29", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkTimeline(&models.FundRegistry{LastCloseDate: tt.last}, date(tt.target))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestSettlementService_Close_RejectsDuplicateDate(t *testing.T) {
	ctx := context.Background()
	m := newSettlementMocks(&models.FundRegistry{
		IdleCash:      dec("1000000"),
		TotalInvested: dec("10000"),
		LastCloseDate: datePtr("2026-01-01"),
	})
	service := NewSettlementService(m.factory, abortConfig(), nil)

	outcome := service.Close(ctx, date("2026-01-01"), vcbParams())

	assert.False(t, outcome.Success)
	assert.ErrorIs(t, outcome.Err, ErrDuplicateOrPastDate)
	assert.Equal(t, models.CloseStageRegistryLocked, outcome.Stage)
	assert.Contains(t, outcome.Message, "2026-01-01")
	assert.NotEmpty(t, outcome.RunID)
	m.pending.AssertNotCalled(t, "LockPending", mock.Anything)
	m.registry.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestSettlementService_Close_RejectsGap(t *testing.T) {
	ctx := context.Background()
	m := newSettlementMocks(&models.FundRegistry{LastCloseDate: datePtr("2026-01-01")})
	service := NewSettlementService(m.factory, abortConfig(), nil)

	outcome := service.Close(ctx, date("2026-01-03"), nil)

	assert.False(t, outcome.Success)
	assert.ErrorIs(t, outcome.Err, ErrCalendarGap)
	assert.Contains(t, outcome.Message, "2026-01-02")
	assert.True(t, IsTimelineError(outcome.Err))
	m.uow.AssertNotCalled(t, "Commit")
}

func TestSettlementService_Close_FirstDepositScenario(t *testing.T) {
	ctx := context.Background()
	closeDate := date("2026-01-01")
	m := newSettlementMocks(&models.FundRegistry{
		IdleCash:      dec("1000000"),
		TotalInvested: decimal.Zero,
	})
	service := NewSettlementService(m.factory, abortConfig(), nil)

	m.pending.On("LockPending", mock.Anything).Return([]*models.PendingRequest{
		{ID: 1, UserID: "A", Kind: models.RequestKindDeposit, Amount: dec("10000"), Status: models.RequestStatusPending},
	}, nil)
	m.placements.On("ListActiveForUpdate", mock.Anything).Return([]*models.Placement{}, nil)
	m.placements.On("Create", mock.Anything, mock.MatchedBy(func(p *models.Placement) bool {
		return p.Counterparty == "VCB" &&
			p.Principal.Equal(dec("10000")) &&
			p.StartDate.Equal(closeDate) &&
			p.MaturityDate.Equal(date("2026-06-30"))
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Placement).ID = 1
	})
	m.ownership.On("AddPrincipal", mock.Anything, "A", int64(1), decEq("10000")).Return(nil)
	m.placements.On("DeleteExhausted", mock.Anything).Return([]*models.Placement{}, nil)
	m.expectFinalize(closeDate, "1000000", "10000", []int64{1}, "10000")

	outcome := service.Close(ctx, closeDate, vcbParams())

	require.True(t, outcome.Success, outcome.Message)
	assert.Equal(t, "Day 2026-01-01 successfully closed.", outcome.Message)
	assert.Equal(t, models.CloseStageFinalized, outcome.Stage)
	require.NotNil(t, outcome.NewPlacement)
	assert.Equal(t, date("2026-06-30"), outcome.NewPlacement.MaturityDate)
	require.NotNil(t, outcome.Report)
	assert.True(t, outcome.Report.TotalDeposit.Equal(dec("10000")))
	assert.True(t, outcome.Report.IdleCashAtClose.Equal(dec("1000000")))
	assert.True(t, outcome.Report.InvestedAtClose.Equal(dec("10000")))
	require.NotNil(t, outcome.Report.PlacementID)
	assert.Equal(t, int64(1), *outcome.Report.PlacementID)

	var types []events.EventType
	for _, e := range m.uow.PublishedEvents() {
		types = append(types, e.Type())
	}
	assert.Equal(t, []events.EventType{events.EventTypePlacementOpened, events.EventTypeDayClosed}, types)
	m.assert(t)
}

func TestSettlementService_Close_AllocationMergesDepositsPerUser(t *testing.T) {
	ctx := context.Background()
	closeDate := date("2026-03-02")
	m := newSettlementMocks(&models.FundRegistry{
		IdleCash:      dec("100"),
		TotalInvested: decimal.Zero,
		LastCloseDate: datePtr("2026-03-01"),
	})
	service := NewSettlementService(m.factory, abortConfig(), nil)

	m.pending.On("LockPending", mock.Anything).Return([]*models.PendingRequest{
		{ID: 4, UserID: "alice", Kind: models.RequestKindDeposit, Amount: dec("100.10")},
		{ID: 5, UserID: "bob", Kind: models.RequestKindDeposit, Amount: dec("0.45")},
		{ID: 6, UserID: "alice", Kind: models.RequestKindDeposit, Amount: dec("899.90")},
	}, nil)
	m.placements.On("ListActiveForUpdate", mock.Anything).Return([]*models.Placement{}, nil)
	m.placements.On("Create", mock.Anything, mock.MatchedBy(func(p *models.Placement) bool {
		return p.Principal.Equal(dec("1000.45"))
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Placement).ID = 9
	})
	m.ownership.On("AddPrincipal", mock.Anything, "alice", int64(9), decEq("1000.00")).Return(nil).Once()
	m.ownership.On("AddPrincipal", mock.Anything, "bob", int64(9), decEq("0.45")).Return(nil).Once()
	m.placements.On("DeleteExhausted", mock.Anything).Return([]*models.Placement{}, nil)
	m.expectFinalize(closeDate, "100", "1000.45", []int64{4, 5, 6}, "1000.45")

	outcome := service.Close(ctx, closeDate, vcbParams())

	require.True(t, outcome.Success, outcome.Message)
	m.assert(t)
}

func TestSettlementService_Close_WithdrawalExactness(t *testing.T) {
	ctx := context.Background()
	closeDate := date("2026-01-02")
	m := newSettlementMocks(&models.FundRegistry{
		IdleCash:      dec("1000000"),
		TotalInvested: dec("10000"),
		LastCloseDate: datePtr("2026-01-01"),
	})
	service := NewSettlementService(m.factory, abortConfig(), nil)

	m.pending.On("LockPending", mock.Anything).Return([]*models.PendingRequest{
		{ID: 2, UserID: "A", Kind: models.RequestKindWithdrawal, Amount: dec("2500"), PlacementID: int64Ptr(1)},
	}, nil)
	m.ownership.On("GetForUpdate", mock.Anything, "A", int64(1)).Return(&models.Ownership{
		UserID: "A", PlacementID: 1, PrincipalOwned: dec("10000"),
	}, nil)
	m.ownership.On("DecreasePrincipal", mock.Anything, "A", int64(1), decEq("2500")).Return(nil).Once()
	m.placements.On("DecreasePrincipal", mock.Anything, int64(1), decEq("2500")).Return(nil).Once()

	remaining := &models.Placement{ID: 1, Counterparty: "VCB", Principal: dec("7500"), YieldRate: dec("8.5")}
	m.placements.On("ListActiveForUpdate", mock.Anything).Return([]*models.Placement{remaining}, nil)
	m.placements.On("AddAccruedInterest", mock.Anything, int64(1), decEq("1.74657534")).Return(nil)
	m.placements.On("DeleteExhausted", mock.Anything).Return([]*models.Placement{}, nil)
	m.expectFinalize(closeDate, "997500", "7500", []int64{2}, "7500")

	outcome := service.Close(ctx, closeDate, nil)

	require.True(t, outcome.Success, outcome.Message)
	assert.Nil(t, outcome.NewPlacement)
	assert.True(t, outcome.Report.TotalWithdrawal.Equal(dec("2500")))
	assert.True(t, outcome.Report.InterestAccrued.Equal(dec("1.74657534")))
	m.placements.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.assert(t)
}

func TestSettlementService_Close_DepositsWithoutParamsStayIdle(t *testing.T) {
	ctx := context.Background()
	closeDate := date("2026-01-02")
	m := newSettlementMocks(&models.FundRegistry{
		IdleCash:      dec("1000"),
		TotalInvested: decimal.Zero,
		LastCloseDate: datePtr("2026-01-01"),
	})
	service := NewSettlementService(m.factory, abortConfig(), nil)

	m.pending.On("LockPending", mock.Anything).Return([]*models.PendingRequest{
		{ID: 3, UserID: "B", Kind: models.RequestKindDeposit, Amount: dec("250")},
	}, nil)
	m.placements.On("ListActiveForUpdate", mock.Anything).Return([]*models.Placement{}, nil)
	m.placements.On("DeleteExhausted", mock.Anything).Return([]*models.Placement{}, nil)
	m.expectFinalize(closeDate, "1250", "0", []int64{3}, "0")

	outcome := service.Close(ctx, closeDate, nil)

	require.True(t, outcome.Success, outcome.Message)
	m.ownership.AssertNotCalled(t, "AddPrincipal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.assert(t)
}

func TestSettlementService_Close_WithdrawalPolicy(t *testing.T) {
	ctx := context.Background()
	closeDate := date("2026-01-02")
	registry := func() *models.FundRegistry {
		return &models.FundRegistry{
			IdleCash:      dec("500"),
			TotalInvested: dec("100"),
			LastCloseDate: datePtr("2026-01-01"),
		}
	}
	requests := func() []*models.PendingRequest {
		return []*models.PendingRequest{
			{ID: 1, UserID: "A", Kind: models.RequestKindWithdrawal, Amount: dec("200"), PlacementID: int64Ptr(1)},
			{ID: 2, UserID: "C", Kind: models.RequestKindDeposit, Amount: dec("50")},
		}
	}
	overdrawn := &models.Ownership{UserID: "A", PlacementID: 1, PrincipalOwned: dec("100")}

	t.Run("abort fails the close", func(t *testing.T) {
		m := newSettlementMocks(registry())
		service := NewSettlementService(m.factory, abortConfig(), nil)

		m.pending.On("LockPending", mock.Anything).Return(requests(), nil)
		m.ownership.On("GetForUpdate", mock.Anything, "A", int64(1)).Return(overdrawn, nil)

		outcome := service.Close(ctx, closeDate, nil)

		assert.False(t, outcome.Success)
		assert.ErrorIs(t, outcome.Err, ErrInsufficientBalance)
		assert.NotErrorIs(t, outcome.Err, ErrPersistence)
		assert.Equal(t, models.CloseStageTimelineChecked, outcome.Stage)
		m.ownership.AssertNotCalled(t, "DecreasePrincipal", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.uow.AssertNotCalled(t, "Commit")
	})

	t.Run("skip leaves the request pending", func(t *testing.T) {
		m := newSettlementMocks(registry())
		cfg := abortConfig()
		cfg.WithdrawalPolicy = config.WithdrawalPolicySkip
		service := NewSettlementService(m.factory, cfg, nil)

		m.pending.On("LockPending", mock.Anything).Return(requests(), nil)
		m.ownership.On("GetForUpdate", mock.Anything, "A", int64(1)).Return(overdrawn, nil)
		m.placements.On("ListActiveForUpdate", mock.Anything).Return([]*models.Placement{
			{ID: 1, Principal: dec("100"), YieldRate: decimal.Zero},
		}, nil)
		m.placements.On("DeleteExhausted", mock.Anything).Return([]*models.Placement{}, nil)
		m.expectFinalize(closeDate, "550", "100", []int64{2}, "100")

		outcome := service.Close(ctx, closeDate, nil)

		require.True(t, outcome.Success, outcome.Message)
		require.Len(t, outcome.SkippedWithdrawals, 1)
		skipped := outcome.SkippedWithdrawals[0]
		assert.Equal(t, int64(1), skipped.RequestID)
		assert.True(t, skipped.Available.Equal(dec("100")))
		assert.Equal(t, "insufficient_balance", skipped.Reason)
		assert.Equal(t, 1, outcome.Report.RequestsSettled)
		m.assert(t)
	})

	t.Run("missing ownership under abort", func(t *testing.T) {
		m := newSettlementMocks(registry())
		service := NewSettlementService(m.factory, abortConfig(), nil)

		m.pending.On("LockPending", mock.Anything).Return(requests(), nil)
		m.ownership.On("GetForUpdate", mock.Anything, "A", int64(1)).Return(nil, nil)

		outcome := service.Close(ctx, closeDate, nil)

		assert.ErrorIs(t, outcome.Err, ErrNoOwnership)
	})
}

func TestSettlementService_Close_InvalidPlacementParams(t *testing.T) {
	ctx := context.Background()
	closeDate := date("2026-01-02")

	tests := []struct {
		name   string
		mutate func(p *models.PlacementParams)
	}{
		{"empty counterparty", func(p *models.PlacementParams) { p.Counterparty = " " }},
		{"negative yield", func(p *models.PlacementParams) { p.YieldRate = dec("-0.1") }},
		{"negative exit rate", func(p *models.PlacementParams) { p.EarlyExitRate = dec("-1") }},
		{"zero tenor", func(p *models.PlacementParams) { p.TenorDays = 0 }},
		{"yield rate the table would round", func(p *models.PlacementParams) { p.YieldRate = dec("8.123456") }},
		{"yield rate the table cannot hold", func(p *models.PlacementParams) { p.YieldRate = dec("100000") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newSettlementMocks(&models.FundRegistry{IdleCash: dec("0"), TotalInvested: decimal.Zero, LastCloseDate: datePtr("2026-01-01")})
			service := NewSettlementService(m.factory, abortConfig(), nil)

			m.pending.On("LockPending", mock.Anything).Return([]*models.PendingRequest{
				{ID: 1, UserID: "A", Kind: models.RequestKindDeposit, Amount: dec("10")},
			}, nil)
			m.placements.On("ListActiveForUpdate", mock.Anything).Return([]*models.Placement{}, nil)

			params := vcbParams()
			tt.mutate(params)
			outcome := service.Close(ctx, closeDate, params)

			assert.False(t, outcome.Success)
			assert.ErrorIs(t, outcome.Err, ErrInvalidPlacementParams)
			assert.Equal(t, models.CloseStageInterestAccrued, outcome.Stage)
			m.placements.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestSettlementService_Close_DuplicateReportDate(t *testing.T) {
	ctx := context.Background()
	closeDate := date("2026-01-01")
	m := newSettlementMocks(&models.FundRegistry{IdleCash: dec("10"), TotalInvested: decimal.Zero})
	service := NewSettlementService(m.factory, abortConfig(), nil)

	m.pending.On("LockPending", mock.Anything).Return([]*models.PendingRequest{}, nil)
	m.placements.On("ListActiveForUpdate", mock.Anything).Return([]*models.Placement{}, nil)
	m.reports.On("Create", mock.Anything, mock.Anything).
		Return(fmt.Errorf("%w: 2026-01-01", ErrDuplicateReportDate))

	outcome := service.Close(ctx, closeDate, nil)

	assert.False(t, outcome.Success)
	assert.ErrorIs(t, outcome.Err, ErrDuplicateReportDate)
	assert.NotErrorIs(t, outcome.Err, ErrPersistence)
	assert.Nil(t, outcome.Report)
	m.registry.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.uow.AssertNotCalled(t, "Commit")
}

func TestSettlementService_Close_RetiresExhaustedPlacement(t *testing.T) {
	ctx := context.Background()
	closeDate := date("2026-02-11")
	m := newSettlementMocks(&models.FundRegistry{
		IdleCash:      dec("5000"),
		TotalInvested: dec("1000"),
		LastCloseDate: datePtr("2026-02-10"),
	})
	service := NewSettlementService(m.factory, abortConfig(), nil)

	m.pending.On("LockPending", mock.Anything).Return([]*models.PendingRequest{
		{ID: 8, UserID: "D", Kind: models.RequestKindWithdrawal, Amount: dec("1000"), PlacementID: int64Ptr(2)},
	}, nil)
	m.ownership.On("GetForUpdate", mock.Anything, "D", int64(2)).Return(&models.Ownership{PrincipalOwned: dec("1000")}, nil)
	m.ownership.On("DecreasePrincipal", mock.Anything, "D", int64(2), decEq("1000")).Return(nil)
	m.placements.On("DecreasePrincipal", mock.Anything, int64(2), decEq("1000")).Return(nil)
	m.placements.On("ListActiveForUpdate", mock.Anything).Return([]*models.Placement{
		{ID: 2, Principal: decimal.Zero, AccruedInterest: dec("3.5"), YieldRate: dec("6")},
	}, nil)
	m.placements.On("DeleteExhausted", mock.Anything).Return([]*models.Placement{
		{ID: 2, Counterparty: "BIDV", Principal: decimal.Zero, AccruedInterest: dec("3.5")},
	}, nil)
	m.expectFinalize(closeDate, "4000", "0", []int64{8}, "0")

	outcome := service.Close(ctx, closeDate, nil)

	require.True(t, outcome.Success, outcome.Message)
	require.Len(t, outcome.RetiredPlacements, 1)
	assert.True(t, outcome.RetiredPlacements[0].DiscardedInterest.Equal(dec("3.5")))
	m.placements.AssertNotCalled(t, "AddAccruedInterest", mock.Anything, mock.Anything, mock.Anything)

	var retired []events.PlacementRetiredEvent
	for _, e := range m.uow.PublishedEvents() {
		if r, ok := e.(events.PlacementRetiredEvent); ok {
			retired = append(retired, r)
		}
	}
	require.Len(t, retired, 1)
	assert.Equal(t, "BIDV", retired[0].Counterparty)
	m.assert(t)
}

func TestSettlementService_Close_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	metrics := new(MockSettlementMetrics)

	t.Run("failure", func(t *testing.T) {
		m := newSettlementMocks(&models.FundRegistry{LastCloseDate: datePtr("2026-01-01")})
		service := NewSettlementService(m.factory, abortConfig(), metrics)
		metrics.On("ObserveClose", false, "calendar_gap", mock.AnythingOfType("time.Duration")).Return().Once()

		outcome := service.Close(ctx, date("2026-01-09"), nil)

		assert.False(t, outcome.Success)
	})

	t.Run("success", func(t *testing.T) {
		closeDate := date("2026-01-02")
		m := newSettlementMocks(&models.FundRegistry{IdleCash: dec("5"), TotalInvested: decimal.Zero, LastCloseDate: datePtr("2026-01-01")})
		service := NewSettlementService(m.factory, abortConfig(), metrics)
		m.pending.On("LockPending", mock.Anything).Return([]*models.PendingRequest{}, nil)
		m.placements.On("ListActiveForUpdate", mock.Anything).Return([]*models.Placement{}, nil)
		m.placements.On("DeleteExhausted", mock.Anything).Return([]*models.Placement{}, nil)
		m.expectFinalize(closeDate, "5", "0", []int64(nil), "0")

		metrics.On("ObserveClose", true, "none", mock.AnythingOfType("time.Duration")).Return().Once()
		metrics.On("ObserveSettledRequests", 0, 0).Return().Once()
		metrics.On("SetFundTotals", decEq("5"), decEq("0")).Return().Once()

		outcome := service.Close(ctx, closeDate, nil)

		require.True(t, outcome.Success, outcome.Message)
	})

	metrics.AssertExpectations(t)
}

func TestSettlementService_Close_RecoversPanic(t *testing.T) {
	ctx := context.Background()
	factory := new(MockUnitOfWorkFactory)
	uow := new(MockUnitOfWork)
	registry := new(MockRegistryRepository)
	uow.SetRepositories(new(MockPendingRequestRepository), new(MockPlacementRepository), new(MockOwnershipRepository), registry, new(MockDailyReportRepository))
	factory.On("Create").Return(uow)
	uow.On("Begin", ctx).Return(nil)
	uow.On("Rollback").Return(nil)
	registry.On("GetForUpdate", ctx).Return(nil, nil).Run(func(mock.Arguments) {
		panic("driver exploded")
	})

	service := NewSettlementService(factory, abortConfig(), nil)

	var outcome *models.CloseOutcome
	require.NotPanics(t, func() {
		outcome = service.Close(ctx, date("2026-01-01"), nil)
	})
	assert.False(t, outcome.Success)
	assert.ErrorIs(t, outcome.Err, ErrPersistence)
	uow.AssertCalled(t, "Rollback")
}

func TestSettlementService_Close_BeginFailure(t *testing.T) {
	ctx := context.Background()
	factory := new(MockUnitOfWorkFactory)
	uow := new(MockUnitOfWork)
	factory.On("Create").Return(uow)
	uow.On("Begin", ctx).Return(errors.New("too many connections"))

	service := NewSettlementService(factory, SettlementConfig{}, nil)

	outcome := service.Close(ctx, date("2026-01-01"), nil)

	assert.False(t, outcome.Success)
	assert.ErrorIs(t, outcome.Err, ErrPersistence)
	assert.Equal(t, models.CloseStageIdle, outcome.Stage)
}

package repository

import (
	"context"
	"testing"
	"time"

	"fundledger/repository/testutil"
	"fundledger/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyReportRepository_GetByDate(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewDailyReportRepository(testDB.DB)
	ctx := context.Background()

	reportDate := time.Date(2026, 1, 15, 12, 30, 45, 0, time.UTC)

	t.Run("no report found", func(t *testing.T) {
		report, err := repo.GetByDate(ctx, reportDate)
		require.NoError(t, err)
		assert.Nil(t, report)
	})

	t.Run("report found", func(t *testing.T) {
		original := testutil.CreateTestReport(reportDate, "990000.00", "10000.00")
		original.InterestAccrued = testutil.Amount("2.32876712")
		original.RequestsSettled = 3
		require.NoError(t, repo.Create(ctx, original))
		assert.NotZero(t, original.ID)

		// Query with a different time on the same day
		report, err := repo.GetByDate(ctx, time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.NotNil(t, report)

		assert.Equal(t, testutil.Date("2026-01-15"), report.ReportDate.UTC())
		assert.True(t, report.IdleCashAtClose.Equal(testutil.Amount("990000")))
		assert.True(t, report.InvestedAtClose.Equal(testutil.Amount("10000")))
		assert.True(t, report.InterestAccrued.Equal(testutil.Amount("2.32876712")))
		assert.Equal(t, 3, report.RequestsSettled)
		assert.Nil(t, report.PlacementID)
	})

	t.Run("duplicate date", func(t *testing.T) {
		err := repo.Create(ctx, testutil.CreateTestReport(reportDate, "1", "0"))
		assert.ErrorIs(t, err, service.ErrDuplicateReportDate)
	})
}

func TestDailyReportRepository_Recent(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	repo := NewDailyReportRepository(testDB.DB)
	ctx := context.Background()

	latest, err := repo.GetLatest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for _, d := range []string{"2026-01-01", "2026-01-03", "2026-01-02"} {
		require.NoError(t, repo.Create(ctx, testutil.CreateTestReport(testutil.Date(d), "100", "0")))
	}

	latest, err = repo.GetLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, testutil.Date("2026-01-03"), latest.ReportDate.UTC())

	reports, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, testutil.Date("2026-01-03"), reports[0].ReportDate.UTC())
	assert.Equal(t, testutil.Date("2026-01-02"), reports[1].ReportDate.UTC())
}

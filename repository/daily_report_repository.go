package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundledger/database"
	"fundledger/models"
	"fundledger/service"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DailyReportRepository implements the DailyReportRepository interface
type DailyReportRepository struct {
	q queryable
}

// NewDailyReportRepository creates a new daily report repository
func NewDailyReportRepository(db *database.DB) *DailyReportRepository {
	return &DailyReportRepository{q: db.Pool}
}

// newDailyReportRepositoryWithTx creates a new daily report repository with a transaction
func newDailyReportRepositoryWithTx(tx queryable) *DailyReportRepository {
	return &DailyReportRepository{q: tx}
}

const dailyReportColumns = `
	id, report_date, total_deposit::text, total_withdrawal::text, idle_cash_at_close::text,
	invested_at_close::text, interest_accrued::text, requests_settled, placement_id, created_at`

// Create inserts a report. The unique report_date constraint is the last guard
// against closing a day twice.
func (r *DailyReportRepository) Create(ctx context.Context, report *models.DailyReport) error {
	query := `
		INSERT INTO daily_reports (
			report_date, total_deposit, total_withdrawal, idle_cash_at_close,
			invested_at_close, interest_accrued, requests_settled, placement_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		models.DateOnly(report.ReportDate),
		report.TotalDeposit.String(),
		report.TotalWithdrawal.String(),
		report.IdleCashAtClose.String(),
		report.InvestedAtClose.String(),
		report.InterestAccrued.String(),
		report.RequestsSettled,
		report.PlacementID,
	).Scan(&report.ID, &report.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", service.ErrDuplicateReportDate, report.ReportDate.Format(models.DateLayout))
		}
		return fmt.Errorf("failed to create daily report: %w", err)
	}

	return nil
}

// GetByDate retrieves the report for a close date
func (r *DailyReportRepository) GetByDate(ctx context.Context, date time.Time) (*models.DailyReport, error) {
	query := `SELECT ` + dailyReportColumns + ` FROM daily_reports WHERE report_date = $1`

	report, err := scanDailyReport(r.q.QueryRow(ctx, query, models.DateOnly(date)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily report: %w", err)
	}

	return report, nil
}

// GetLatest returns the report of the most recent close
func (r *DailyReportRepository) GetLatest(ctx context.Context) (*models.DailyReport, error) {
	query := `SELECT ` + dailyReportColumns + ` FROM daily_reports ORDER BY report_date DESC LIMIT 1`

	report, err := scanDailyReport(r.q.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest daily report: %w", err)
	}

	return report, nil
}

// ListRecent returns up to limit reports, newest first
func (r *DailyReportRepository) ListRecent(ctx context.Context, limit int) ([]*models.DailyReport, error) {
	query := `SELECT ` + dailyReportColumns + ` FROM daily_reports ORDER BY report_date DESC LIMIT $1`

	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.DailyReport
	for rows.Next() {
		report, err := scanDailyReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily report: %w", err)
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily reports: %w", err)
	}

	return reports, nil
}

func scanDailyReport(row pgx.Row) (*models.DailyReport, error) {
	var report models.DailyReport
	var deposit, withdrawal, idle, invested, interest string
	var settled int32
	err := row.Scan(
		&report.ID,
		&report.ReportDate,
		&deposit,
		&withdrawal,
		&idle,
		&invested,
		&interest,
		&settled,
		&report.PlacementID,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	report.RequestsSettled = int(settled)

	if report.TotalDeposit, err = models.ParseNumeric("total_deposit", deposit); err != nil {
		return nil, err
	}
	if report.TotalWithdrawal, err = models.ParseNumeric("total_withdrawal", withdrawal); err != nil {
		return nil, err
	}
	if report.IdleCashAtClose, err = models.ParseNumeric("idle_cash_at_close", idle); err != nil {
		return nil, err
	}
	if report.InvestedAtClose, err = models.ParseNumeric("invested_at_close", invested); err != nil {
		return nil, err
	}
	if report.InterestAccrued, err = models.ParseNumeric("interest_accrued", interest); err != nil {
		return nil, err
	}

	return &report, nil
}

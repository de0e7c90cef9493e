package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"fundledger/models"

	"github.com/shopspring/decimal"
)

const closeUsage = "usage: fundledger close YYYY-MM-DD [counterparty yield_rate early_exit_rate tenor_days]"

// CloseRequest is a parsed close command
type CloseRequest struct {
	Date   time.Time
	Params *models.PlacementParams
}

// ParseCloseArgs parses the close date and the optional placement terms.
// Either all four terms are given or none.
func ParseCloseArgs(args []string) (*CloseRequest, error) {
	if len(args) != 1 && len(args) != 5 {
		return nil, errors.New(closeUsage)
	}

	date, err := models.ParseDate(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid close date %q: %w", args[0], err)
	}
	req := &CloseRequest{Date: date}
	if len(args) == 1 {
		return req, nil
	}

	yield, err := decimal.NewFromString(args[2])
	if err != nil {
		return nil, fmt.Errorf("invalid yield rate %q", args[2])
	}
	exit, err := decimal.NewFromString(args[3])
	if err != nil {
		return nil, fmt.Errorf("invalid early exit rate %q", args[3])
	}
	tenor, err := strconv.Atoi(args[4])
	if err != nil {
		return nil, fmt.Errorf("invalid tenor %q", args[4])
	}

	req.Params = &models.PlacementParams{
		Counterparty:  args[1],
		YieldRate:     yield,
		EarlyExitRate: exit,
		TenorDays:     tenor,
	}
	return req, nil
}

// CloseDay runs one daily close, prints its outcome and pushes the close
// metrics. The returned error is the close failure, if any.
func (a *App) CloseDay(ctx context.Context, w io.Writer, req *CloseRequest) error {
	outcome := a.Settlement.Close(ctx, req.Date, req.Params)
	WriteOutcome(w, outcome)
	a.pushMetrics(ctx)
	if !outcome.Success {
		return outcome.Err
	}
	return nil
}

// WriteOutcome prints a close outcome for operators
func WriteOutcome(w io.Writer, outcome *models.CloseOutcome) {
	fmt.Fprintln(w, outcome.Message)
	fmt.Fprintf(w, "run: %s  stage: %s\n", outcome.RunID, outcome.Stage)
	if !outcome.Success {
		return
	}

	if r := outcome.Report; r != nil {
		fmt.Fprintf(w, "deposits: %s  withdrawals: %s  settled: %d\n",
			models.FormatAmount(r.TotalDeposit), models.FormatAmount(r.TotalWithdrawal), r.RequestsSettled)
		fmt.Fprintf(w, "idle: %s  invested: %s  interest accrued: %s\n",
			models.FormatAmount(r.IdleCashAtClose), models.FormatAmount(r.InvestedAtClose), r.InterestAccrued.String())
	}
	if p := outcome.NewPlacement; p != nil {
		fmt.Fprintf(w, "opened placement #%d with %s: %s at %s%% until %s\n",
			p.ID, p.Counterparty, models.FormatAmount(p.Principal), p.YieldRate.String(), p.MaturityDate.Format(models.DateLayout))
	}
	for _, rp := range outcome.RetiredPlacements {
		fmt.Fprintf(w, "retired placement #%d (%s), discarded interest %s\n",
			rp.PlacementID, rp.Counterparty, rp.DiscardedInterest.String())
	}
	for _, sw := range outcome.SkippedWithdrawals {
		fmt.Fprintf(w, "skipped withdrawal #%d for %s: requested %s, available %s (%s)\n",
			sw.RequestID, sw.UserID, models.FormatAmount(sw.Requested), models.FormatAmount(sw.Available), sw.Reason)
	}
}

// AuditFund reconciles the ledger and prints the result. An unbalanced
// ledger is reported as an error.
func (a *App) AuditFund(ctx context.Context, w io.Writer) error {
	r, err := a.Audit.Reconcile(ctx)
	if err != nil {
		return err
	}
	WriteReconciliation(w, r)
	if !r.Balanced {
		return fmt.Errorf("ledger out of balance beyond %s", r.Epsilon.String())
	}
	return nil
}

// WriteReconciliation prints the three totals and their differences
func WriteReconciliation(w io.Writer, r *models.Reconciliation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ownership\t%s\n", models.FormatAmount(r.TotalOwnership))
	fmt.Fprintf(tw, "principal\t%s\n", models.FormatAmount(r.TotalPrincipal))
	fmt.Fprintf(tw, "registry invested\t%s\n", models.FormatAmount(r.RegistryInvested))
	fmt.Fprintf(tw, "ownership - principal\t%s\n", r.OwnershipVsPrincipal.String())
	fmt.Fprintf(tw, "principal - registry\t%s\n", r.PrincipalVsRegistry.String())
	tw.Flush()

	if r.Balanced {
		fmt.Fprintln(w, "balanced")
	} else {
		fmt.Fprintln(w, "OUT OF BALANCE")
	}
}

// ShowStatus prints the fund summary and the most recent close reports
func (a *App) ShowStatus(ctx context.Context, w io.Writer, limit int) error {
	status, err := a.Audit.Status(ctx)
	if err != nil {
		return err
	}
	reports, err := a.Audit.RecentReports(ctx, limit)
	if err != nil {
		return err
	}
	WriteStatus(w, status, reports)
	return nil
}

// WriteStatus prints a status summary followed by a report table
func WriteStatus(w io.Writer, status *models.FundStatus, reports []*models.DailyReport) {
	last := "never"
	if status.LastCloseDate != nil {
		last = status.LastCloseDate.Format(models.DateLayout)
	}

	fmt.Fprintf(w, "idle cash: %s\n", models.FormatAmount(status.IdleCash))
	fmt.Fprintf(w, "invested: %s\n", models.FormatAmount(status.TotalInvested))
	fmt.Fprintf(w, "liability: %s\n", models.FormatAmount(status.TotalLiability))
	fmt.Fprintf(w, "unallocated interest: %s\n", status.AccruedInterest.String())
	fmt.Fprintf(w, "last close: %s  next expected: %s\n", last, status.NextExpectedDate.Format(models.DateLayout))

	if len(reports) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{"DATE", "DEPOSIT", "WITHDRAWAL", "IDLE", "INVESTED", "INTEREST", "SETTLED"}, "\t"))
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ReportDate.Format(models.DateLayout),
			models.FormatAmount(r.TotalDeposit),
			models.FormatAmount(r.TotalWithdrawal),
			models.FormatAmount(r.IdleCashAtClose),
			models.FormatAmount(r.InvestedAtClose),
			r.InterestAccrued.String(),
			r.RequestsSettled)
	}
	tw.Flush()
}

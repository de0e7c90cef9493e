package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"fundledger/models"
)

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// Deposit queues a deposit: deposit USER AMOUNT
func (a *App) Deposit(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: fundledger deposit USER AMOUNT")
	}
	amount, err := models.ParseAmount(args[1])
	if err != nil {
		return err
	}

	id, err := a.Ledger.Enqueue(ctx, args[0], models.RequestKindDeposit, amount, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "queued deposit #%d of %s for %s\n", id, models.FormatAmount(amount), args[0])
	return nil
}

// Withdraw checks and queues a withdrawal: withdraw USER PLACEMENT AMOUNT
func (a *App) Withdraw(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: fundledger withdraw USER PLACEMENT AMOUNT")
	}
	placementID, err := parseID("placement", args[1])
	if err != nil {
		return err
	}
	amount, err := models.ParseAmount(args[2])
	if err != nil {
		return err
	}

	id, err := a.Ledger.SubmitWithdrawal(ctx, args[0], placementID, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "queued withdrawal #%d of %s for %s from placement #%d\n",
		id, models.FormatAmount(amount), args[0], placementID)
	return nil
}

// Amend changes the amount of a pending request: amend ID AMOUNT
func (a *App) Amend(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: fundledger amend ID AMOUNT")
	}
	id, err := parseID("request id", args[0])
	if err != nil {
		return err
	}
	amount, err := models.ParseAmount(args[1])
	if err != nil {
		return err
	}

	if err := a.Ledger.Amend(ctx, id, amount); err != nil {
		return err
	}
	fmt.Fprintf(w, "request #%d now %s\n", id, models.FormatAmount(amount))
	return nil
}

// Cancel removes a pending request: cancel ID
func (a *App) Cancel(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fundledger cancel ID")
	}
	id, err := parseID("request id", args[0])
	if err != nil {
		return err
	}

	if err := a.Ledger.Cancel(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(w, "request #%d is no longer pending\n", id)
	return nil
}

// ShowRequest prints one request in any status: request ID
func (a *App) ShowRequest(ctx context.Context, w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: fundledger request ID")
	}
	id, err := parseID("request id", args[0])
	if err != nil {
		return err
	}

	req, err := a.Ledger.Get(ctx, id)
	if err != nil {
		return err
	}
	writeRequests(w, []*models.PendingRequest{req})
	return nil
}

// ShowQueue prints the pending queue and its totals
func (a *App) ShowQueue(ctx context.Context, w io.Writer) error {
	agg, err := a.Ledger.Aggregate(ctx)
	if err != nil {
		return err
	}
	requests, err := a.Ledger.List(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "pending: %d  deposits: %s  withdrawals: %s  net: %s\n",
		agg.Count, models.FormatAmount(agg.TotalDeposit), models.FormatAmount(agg.TotalWithdrawal), models.FormatAmount(agg.NetFlow()))
	if len(requests) > 0 {
		fmt.Fprintln(w)
		writeRequests(w, requests)
	}
	return nil
}

// ShowDayReport prints one close with what it settled and opened: report [YYYY-MM-DD]
func (a *App) ShowDayReport(ctx context.Context, w io.Writer, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: fundledger report [YYYY-MM-DD]")
	}

	var date *time.Time
	if len(args) == 1 {
		d, err := models.ParseDate(args[0])
		if err != nil {
			return fmt.Errorf("invalid report date %q: %w", args[0], err)
		}
		date = &d
	}

	day, err := a.Audit.DayReport(ctx, date)
	if err != nil {
		return err
	}

	WriteDayReport(w, day)
	return nil
}

// WriteDayReport prints a close report, its settled requests and its placement
func WriteDayReport(w io.Writer, day *models.DayReport) {
	r := day.Report
	fmt.Fprintf(w, "close %s\n", r.ReportDate.Format(models.DateLayout))
	fmt.Fprintf(w, "deposits: %s  withdrawals: %s  settled: %d\n",
		models.FormatAmount(r.TotalDeposit), models.FormatAmount(r.TotalWithdrawal), r.RequestsSettled)
	fmt.Fprintf(w, "idle: %s  invested: %s  interest accrued: %s\n",
		models.FormatAmount(r.IdleCashAtClose), models.FormatAmount(r.InvestedAtClose), r.InterestAccrued.String())

	switch {
	case day.Placement != nil:
		p := day.Placement
		fmt.Fprintf(w, "placement #%d with %s: %s at %s%% until %s\n",
			p.ID, p.Counterparty, models.FormatAmount(p.Principal), p.YieldRate.String(), p.MaturityDate.Format(models.DateLayout))
		for _, o := range day.Owners {
			fmt.Fprintf(w, "  %s owns %s\n", o.UserID, models.FormatAmount(o.PrincipalOwned))
		}
	case r.PlacementID != nil:
		fmt.Fprintf(w, "placement #%d has since been retired\n", *r.PlacementID)
	}

	if len(day.Settled) > 0 {
		fmt.Fprintln(w)
		writeRequests(w, day.Settled)
	}
}

func writeRequests(w io.Writer, requests []*models.PendingRequest) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tKIND\tAMOUNT\tPLACEMENT\tSTATUS\tSETTLED")
	for _, req := range requests {
		placement, settled := "-", "-"
		if req.PlacementID != nil {
			placement = strconv.FormatInt(*req.PlacementID, 10)
		}
		if req.SettledOn != nil {
			settled = req.SettledOn.Format(models.DateLayout)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			req.ID, req.UserID, req.Kind, models.FormatAmount(req.Amount), placement, req.Status, settled)
	}
	tw.Flush()
}

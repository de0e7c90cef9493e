package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"fundledger/cmd"
	"fundledger/database"
	"fundledger/service"

	log "github.com/sirupsen/logrus"
)

// exitTimeline is the exit code of a close rejected for its date
const exitTimeline = 2

func main() {
	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error: ", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if len(os.Args) > 1 {
		os.Exit(runOperatorCommand(ctx, os.Args[1], os.Args[2:]))
	}

	// Normal service operation
	if err := cmd.Run(ctx); err != nil {
		log.Fatal("Application error: ", err)
	}
}

// operatorCommand is a one-shot command run against a bootstrapped app
type operatorCommand struct {
	// writes marks commands that commit events and therefore need the NATS relay
	writes bool
	run    func(ctx context.Context, app *cmd.App, args []string) error
}

var operatorCommands = map[string]operatorCommand{
	"close": {writes: true, run: func(ctx context.Context, app *cmd.App, args []string) error {
		req, err := cmd.ParseCloseArgs(args)
		if err != nil {
			return err
		}
		return app.CloseDay(ctx, os.Stdout, req)
	}},
	"deposit": {writes: true, run: func(ctx context.Context, app *cmd.App, args []string) error {
		return app.Deposit(ctx, os.Stdout, args)
	}},
	"withdraw": {writes: true, run: func(ctx context.Context, app *cmd.App, args []string) error {
		return app.Withdraw(ctx, os.Stdout, args)
	}},
	"amend": {writes: true, run: func(ctx context.Context, app *cmd.App, args []string) error {
		return app.Amend(ctx, os.Stdout, args)
	}},
	"cancel": {writes: true, run: func(ctx context.Context, app *cmd.App, args []string) error {
		return app.Cancel(ctx, os.Stdout, args)
	}},
	"queue": {run: func(ctx context.Context, app *cmd.App, args []string) error {
		return app.ShowQueue(ctx, os.Stdout)
	}},
	"request": {run: func(ctx context.Context, app *cmd.App, args []string) error {
		return app.ShowRequest(ctx, os.Stdout, args)
	}},
	"report": {run: func(ctx context.Context, app *cmd.App, args []string) error {
		return app.ShowDayReport(ctx, os.Stdout, args)
	}},
	"audit": {run: func(ctx context.Context, app *cmd.App, args []string) error {
		return app.AuditFund(ctx, os.Stdout)
	}},
	"status": {run: func(ctx context.Context, app *cmd.App, args []string) error {
		limit := 0
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid report limit %q", args[0])
			}
			limit = n
		}
		return app.ShowStatus(ctx, os.Stdout, limit)
	}},
}

func runOperatorCommand(ctx context.Context, name string, args []string) int {
	command, ok := operatorCommands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\nusage: fundledger [migrate|close|deposit|withdraw|amend|cancel|queue|request|report|audit|status]\n", name)
		return 1
	}

	app, err := cmd.Bootstrap(ctx, command.writes)
	if err != nil {
		log.WithError(err).Error("Failed to start")
		return 1
	}
	defer app.Close()

	err = command.run(ctx, app, args)
	switch {
	case err == nil:
		return 0
	case service.IsTimelineError(err):
		log.WithError(err).Errorf("%s rejected", name)
		return exitTimeline
	default:
		log.WithError(err).Errorf("%s failed", name)
		return 1
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: fundledger migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"fundledger/config"
	"fundledger/database"
	"fundledger/events"
	"fundledger/infrastructure"
	"fundledger/metrics"
	"fundledger/repository"
	"fundledger/service"

	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// closer is the part of the NATS client the app shuts down
type closer interface {
	Close() error
}

// App holds the wired services shared by the server and the operator commands
type App struct {
	Config     *config.Config
	Ledger     service.LedgerService
	Settlement service.SettlementService
	Audit      service.AuditService
	Metrics    *metrics.Collector

	db      *database.DB
	bus     *events.Bus
	nats    closer
	pushURL string
}

// ConfigureLogging applies the configured level and formatter to logrus
func ConfigureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// Bootstrap connects to the database and wires repositories and services.
// With relayEvents set and NATS_URL configured, committed events are also
// relayed to NATS; read-only commands leave it off.
func Bootstrap(ctx context.Context, relayEvents bool) (*App, error) {
	cfg := config.Get()
	ConfigureLogging(cfg)

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	app := &App{
		Config:  cfg,
		Metrics: metrics.NewCollector(),
		db:      db,
		bus:     events.NewBus(),
		pushURL: cfg.PushgatewayURL,
	}

	switch {
	case !relayEvents:
	case cfg.NATSURL == "":
		log.Info("NATS_URL not set, events stay in process")
	default:
		if err := app.connectNATS(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	uowFactory := repository.NewUnitOfWorkFactory(db, app.bus)

	app.Ledger = service.NewLedgerService(uowFactory)
	app.Settlement = service.NewSettlementService(uowFactory, service.SettlementConfig{
		WithdrawalPolicy:      cfg.WithdrawalPolicy,
		ReconciliationEpsilon: cfg.ReconciliationEpsilon,
	}, app.Metrics)
	app.Audit = service.NewAuditService(uowFactory, cfg.ReconciliationEpsilon, cfg.DefaultReportLimit, app.Metrics)

	log.WithFields(log.Fields{
		"environment":      cfg.Environment,
		"withdrawalPolicy": cfg.WithdrawalPolicy,
		"epsilon":          cfg.ReconciliationEpsilon.String(),
		"relayEvents":      app.nats != nil,
	}).Info("Services initialized")

	return app, nil
}

func (a *App) connectNATS(ctx context.Context) error {
	client := infrastructure.NewNATSClient(a.Config.NATSURL)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	publisher := infrastructure.NewNATSEventPublisher(client, infrastructure.NewEventSubjectMapper(a.Config.NATSSubjectPrefix))
	if err := publisher.EnsureStream(client); err != nil {
		client.Close()
		return fmt.Errorf("failed to ensure event stream: %w", err)
	}
	publisher.Attach(a.bus)

	a.nats = client
	return nil
}

// Close waits for event handlers still relaying committed events, then
// releases the NATS connection and the database pool
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.bus != nil {
		if err := a.bus.Wait(ctx); err != nil {
			log.WithError(err).Warn("Event handlers still running at shutdown")
		}
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			log.WithError(err).Warn("Error closing NATS connection")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// Run starts the long-lived process: metrics endpoint, event relay and the
// periodic reconciliation audit. It returns when ctx is cancelled.
func Run(ctx context.Context) error {
	log.Info("Starting fundledger...")

	app, err := Bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Config.MetricsAddr != "" {
		go func() {
			if err := app.Metrics.Serve(ctx, app.Config.MetricsAddr); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	if app.Config.AuditInterval > 0 {
		go app.auditLoop(ctx, app.Config.AuditInterval)
	}

	log.Infof("fundledger is running in %s mode...", app.Config.Environment)
	<-ctx.Done()

	log.Info("Shutting down...")
	return nil
}

// auditLoop reconciles once at start and then every interval. Each pass also
// refreshes the fund total gauges.
func (a *App) auditLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.Audit.Reconcile(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Scheduled reconciliation failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pushMetrics hands this process's metrics to the Pushgateway when one is configured
func (a *App) pushMetrics(ctx context.Context) {
	if a.pushURL == "" || a.Metrics == nil {
		return
	}
	if err := a.Metrics.Push(ctx, a.pushURL); err != nil {
		log.WithError(err).Warn("Failed to push metrics")
		return
	}
	log.WithField("gateway", a.pushURL).Debug("Pushed metrics")
}

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fundledger/models"
	"fundledger/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const namespace = "fundledger"

var _ service.SettlementMetrics = (*Collector)(nil)

// Collector records settlement and reconciliation metrics in a private registry
type Collector struct {
	registry         *prometheus.Registry
	closes           *prometheus.CounterVec
	closeDuration    prometheus.Histogram
	requestsSettled  prometheus.Counter
	requestsSkipped  prometheus.Counter
	idleCash         prometheus.Gauge
	invested         prometheus.Gauge
	reconcileBalance prometheus.Gauge
	reconcileDrift   *prometheus.GaugeVec
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		closes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closes_total",
			Help:      "Daily closes by result and failure reason",
		}, []string{"result", "reason"}),
		closeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "close_duration_seconds",
			Help:      "Time taken by a daily close, successful or not",
			Buckets:   prometheus.DefBuckets,
		}),
		requestsSettled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_settled_total",
			Help:      "Pending requests completed by successful closes",
		}),
		requestsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_skipped_total",
			Help:      "Withdrawals left pending because the live balance did not cover them",
		}),
		idleCash: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "idle_cash",
			Help:      "Registry idle cash after the last close",
		}),
		invested: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_invested",
			Help:      "Registry total invested after the last close",
		}),
		reconcileBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconciliation_balanced",
			Help:      "1 when the last audit found ownership, principal and registry in agreement",
		}),
		reconcileDrift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconciliation_drift",
			Help:      "Differences found by the last audit",
		}, []string{"pair"}),
	}
}

// ObserveClose counts a close and records how long it took
func (c *Collector) ObserveClose(success bool, reason string, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.closes.WithLabelValues(result, reason).Inc()
	c.closeDuration.Observe(duration.Seconds())
}

// ObserveSettledRequests counts requests completed and skipped by one close
func (c *Collector) ObserveSettledRequests(settled, skipped int) {
	c.requestsSettled.Add(float64(settled))
	c.requestsSkipped.Add(float64(skipped))
}

// SetFundTotals publishes the registry totals. Gauges are floats, so these
// values are for dashboards only.
func (c *Collector) SetFundTotals(idleCash, invested decimal.Decimal) {
	c.idleCash.Set(idleCash.InexactFloat64())
	c.invested.Set(invested.InexactFloat64())
}

// ObserveReconciliation publishes the result of an audit
func (c *Collector) ObserveReconciliation(r *models.Reconciliation) {
	if r.Balanced {
		c.reconcileBalance.Set(1)
	} else {
		c.reconcileBalance.Set(0)
	}
	c.reconcileDrift.WithLabelValues("ownership_vs_principal").Set(r.OwnershipVsPrincipal.InexactFloat64())
	c.reconcileDrift.WithLabelValues("principal_vs_registry").Set(r.PrincipalVsRegistry.InexactFloat64())
}

// Handler returns the HTTP handler exposing this collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Push sends the collector's metrics to a Prometheus Pushgateway under the
// fundledger job, replacing what the previous push left there. One-shot
// commands use it because nothing scrapes them.
func (c *Collector) Push(ctx context.Context, gatewayURL string) error {
	if err := push.New(gatewayURL, namespace).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// Serve exposes /metrics on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to shut down metrics server")
		}
	}()

	log.WithField("addr", addr).Info("Serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

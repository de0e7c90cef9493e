package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundledger/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveClose(t *testing.T) {
	c := NewCollector()

	c.ObserveClose(true, "none", 120*time.Millisecond)
	c.ObserveClose(false, "calendar_gap", 5*time.Millisecond)
	c.ObserveClose(false, "calendar_gap", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.closes.WithLabelValues("success", "none")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.closes.WithLabelValues("failure", "calendar_gap")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.closeDuration))
}

func TestCollector_FundTotalsAndRequests(t *testing.T) {
	c := NewCollector()

	c.SetFundTotals(decimal.RequireFromString("1000000"), decimal.RequireFromString("10000.50"))
	c.ObserveSettledRequests(3, 1)

	assert.Equal(t, 1000000.0, testutil.ToFloat64(c.idleCash))
	assert.Equal(t, 10000.5, testutil.ToFloat64(c.invested))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.requestsSettled))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsSkipped))
}

func TestCollector_ObserveReconciliation(t *testing.T) {
	c := NewCollector()

	c.ObserveReconciliation(&models.Reconciliation{
		Balanced:             false,
		OwnershipVsPrincipal: decimal.Zero,
		PrincipalVsRegistry:  decimal.RequireFromString("-0.02"),
	})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.reconcileBalance))
	assert.Equal(t, -0.02, testutil.ToFloat64(c.reconcileDrift.WithLabelValues("principal_vs_registry")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ObserveClose(true, "none", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fundledger_closes_total{reason="none",result="success"} 1`)
}

func TestCollector_Push(t *testing.T) {
	c := NewCollector()
	c.ObserveClose(true, "none", time.Second)
	c.ObserveSettledRequests(2, 0)

	var method, path string
	var body []byte
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	require.NoError(t, c.Push(context.Background(), gateway.URL))

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/fundledger", path)
	assert.NotEmpty(t, body)
}

func TestCollector_PushFailure(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	err := NewCollector().Push(context.Background(), gateway.URL)
	assert.Error(t, err)
}

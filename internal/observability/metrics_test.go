package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/calendar-engine/internal/observability"
)

func TestMetricsRegistryAndHandler(t *testing.T) {
	reg := observability.InitRegistry()

	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveCommand("BOOK", "EXECUTED")
	observability.ObserveLockWait(false, 50*time.Millisecond)
	observability.ObserveDelivery("sent")
	observability.ObserveReconciliation("airbnb", "SUCCESS", 3, 3)

	rr := httptest.NewRecorder()
	observability.MetricsHandler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, "calendar_http_requests_total")
	assert.Contains(t, out, `calendar_commands_total{status="EXECUTED",type="BOOK"} 1`)
	assert.Contains(t, out, `calendar_property_lock_wait_seconds_count{result="timeout"} 1`)
	assert.Contains(t, out, `calendar_outbox_deliveries_total{result="sent"} 1`)
	assert.Contains(t, out, `calendar_reconciliation_discrepancies_total{channel="airbnb",kind="fixed"} 3`)
}

package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPaymentStatsFromLatestRun(t *testing.T) {
	ts := newTestServer(t)
	ts.seedStore(t)
	run := ts.completeRun(t)

	w, body := ts.request(t, http.MethodGet, "/v1/payments/stats")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, run.ID.String(), body["run_id"])

	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["attempts_total"])
	assert.Equal(t, float64(1), stats["attempts_paid"])
	assert.Equal(t, "1", stats["payment_success_rate"])
	mix := stats["method_mix"].(map[string]any)
	assert.Equal(t, float64(1), mix["credit_card"])
}

func TestGetPaymentStatsWithoutCompletedRun(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.request(t, http.MethodGet, "/v1/payments/stats")

	require.Equal(t, http.StatusNotFound, w.Code)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "no_completed_run", errBody["code"])
}

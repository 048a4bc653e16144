package server

import (
	"net/http"
	"testing"
	"time"

	reconciledomain "github.com/storelytics/tally/internal/reconcile/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFindingsDefaultsToLatestRun(t *testing.T) {
	ts := newTestServer(t)
	ts.seedStore(t)
	first := ts.completeRun(t)
	ts.clk.Advance(time.Minute)
	second := ts.completeRun(t)
	require.NotEqual(t, first.ID, second.ID)

	w, body := ts.request(t, http.MethodGet, "/v1/findings")

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].([]any)
	require.Len(t, data, 1)

	finding := data[0].(map[string]any)
	assert.Equal(t, reconciledomain.FindingMissingDimension, finding["code"])
	assert.Equal(t, reconciledomain.SeverityWarning, finding["severity"])
	assert.Equal(t, "customer", finding["entity_type"])
	assert.Equal(t, float64(200), finding["entity_id"])
	assert.Equal(t, second.ID.String(), finding["run_id"])

	pageInfo := body["page_info"].(map[string]any)
	assert.Equal(t, false, pageInfo["has_more"])
}

func TestListFindingsSeverityFilter(t *testing.T) {
	ts := newTestServer(t)
	ts.seedStore(t)
	ts.completeRun(t)

	w, body := ts.request(t, http.MethodGet, "/v1/findings?severity=error")

	require.Equal(t, http.StatusOK, w.Code)
	data, _ := body["data"].([]any)
	assert.Empty(t, data)
}

func TestListFindingsExplicitRunScope(t *testing.T) {
	ts := newTestServer(t)
	ts.seedStore(t)
	first := ts.completeRun(t)
	ts.clk.Advance(time.Minute)
	ts.completeRun(t)

	w, body := ts.request(t, http.MethodGet, "/v1/findings?run_id="+first.ID.String())

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	finding := data[0].(map[string]any)
	assert.Equal(t, first.ID.String(), finding["run_id"])
}

func TestListFindingsEmptyBeforeFirstRun(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.request(t, http.MethodGet, "/v1/findings")

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].([]any)
	assert.Empty(t, data)
}

func TestListFindingsRejectsMalformedRunID(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.request(t, http.MethodGet, "/v1/findings?run_id=zzz")

	require.Equal(t, http.StatusBadRequest, w.Code)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "invalid_run_id", errBody["code"])
}

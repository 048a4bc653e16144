package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMonthlySummariesAscending(t *testing.T) {
	ts := newTestServer(t)
	ts.seedStore(t)
	ts.completeRun(t)

	w, body := ts.request(t, http.MethodGet, "/v1/summaries/monthly")

	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].([]any)
	require.Len(t, data, 2)

	march := data[0].(map[string]any)
	assert.Equal(t, "2024-03", march["month"])
	assert.Equal(t, float64(1), march["total_orders"])
	assert.Equal(t, float64(1), march["new_buyers"])
	assert.Equal(t, float64(0), march["returning_buyers"])

	april := data[1].(map[string]any)
	assert.Equal(t, "2024-04", april["month"])
	assert.Equal(t, float64(1), april["new_buyers"])
}

func TestListMonthlySummariesEmptyBeforeFirstRun(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.request(t, http.MethodGet, "/v1/summaries/monthly")

	require.Equal(t, http.StatusOK, w.Code)
	data, ok := body["data"].([]any)
	if ok {
		assert.Empty(t, data)
	} else {
		assert.Nil(t, body["data"])
	}
}

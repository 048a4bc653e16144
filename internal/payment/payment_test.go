package payment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storelytics/tally/internal/source/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestResolvePicksMostRecentAttempt(t *testing.T) {
	attempts := []Attempt{
		{PaymentID: 1, OrderID: 5, AttemptNo: 1, Date: day, Amount: decimal.RequireFromString("150.00"), Method: "card", Status: domain.PaymentStatusFailed},
		{PaymentID: 2, OrderID: 5, AttemptNo: 2, Date: day.Add(24 * time.Hour), Amount: decimal.RequireFromString("150.00"), Method: "paypal", Status: domain.PaymentStatusPaid},
	}

	res := Resolve(attempts)

	require.NotNil(t, res.LastAttempt)
	assert.EqualValues(t, 2, res.LastAttempt.PaymentID)
	assert.Equal(t, domain.PaymentStatusPaid, res.Status())
	assert.Equal(t, "paypal", res.Method())
	assert.True(t, res.Paid())
	assert.Equal(t, 2, res.AttemptCount)
	assert.Equal(t, 1, res.PaidCount)
	assert.True(t, res.AmountPaidTotal.Equal(decimal.RequireFromString("150.00")), res.AmountPaidTotal.String())
}

func TestResolveTieBreaksOnDateThenID(t *testing.T) {
	// Duplicated attempt numbers still resolve the same way on every run:
	// later payment_date wins, then higher payment_id.
	attempts := []Attempt{
		{PaymentID: 10, AttemptNo: 1, Date: day, Status: domain.PaymentStatusFailed},
		{PaymentID: 11, AttemptNo: 1, Date: day.Add(time.Hour), Status: domain.PaymentStatusPaid, Amount: decimal.NewFromInt(80)},
	}
	res := Resolve(attempts)
	require.NotNil(t, res.LastAttempt)
	assert.EqualValues(t, 11, res.LastAttempt.PaymentID)

	attempts = []Attempt{
		{PaymentID: 21, AttemptNo: 1, Date: day, Status: domain.PaymentStatusPaid, Amount: decimal.NewFromInt(80)},
		{PaymentID: 20, AttemptNo: 1, Date: day, Status: domain.PaymentStatusFailed},
	}
	res = Resolve(attempts)
	require.NotNil(t, res.LastAttempt)
	assert.EqualValues(t, 21, res.LastAttempt.PaymentID)
}

func TestResolveSumsEveryPaidAttempt(t *testing.T) {
	attempts := []Attempt{
		{PaymentID: 1, AttemptNo: 1, Date: day, Amount: decimal.RequireFromString("100.00"), Status: domain.PaymentStatusPaid},
		{PaymentID: 2, AttemptNo: 2, Date: day.Add(time.Hour), Amount: decimal.RequireFromString("100.00"), Status: domain.PaymentStatusFailed},
		{PaymentID: 3, AttemptNo: 3, Date: day.Add(2 * time.Hour), Amount: decimal.RequireFromString("50.00"), Status: domain.PaymentStatusPaid},
	}

	res := Resolve(attempts)

	assert.Equal(t, 2, res.PaidCount)
	assert.True(t, res.AmountPaidTotal.Equal(decimal.RequireFromString("150.00")), res.AmountPaidTotal.String())
	assert.Equal(t, domain.PaymentStatusPaid, res.Status())
}

func TestResolveRefundedFinalAttemptKeepsCapturedTotal(t *testing.T) {
	attempts := []Attempt{
		{PaymentID: 1, AttemptNo: 1, Date: day, Amount: decimal.RequireFromString("100.00"), Status: domain.PaymentStatusPaid},
		{PaymentID: 2, AttemptNo: 2, Date: day.Add(time.Hour), Amount: decimal.RequireFromString("100.00"), Status: domain.PaymentStatusRefunded},
	}

	res := Resolve(attempts)

	assert.Equal(t, domain.PaymentStatusRefunded, res.Status())
	assert.True(t, res.Paid())
	assert.True(t, res.AmountPaidTotal.Equal(decimal.RequireFromString("100.00")), res.AmountPaidTotal.String())
}

func TestResolveNoAttempts(t *testing.T) {
	res := Resolve(nil)

	assert.Nil(t, res.LastAttempt)
	assert.Equal(t, "", res.Status())
	assert.Equal(t, "", res.Method())
	assert.False(t, res.Paid())
	assert.True(t, res.AmountPaidTotal.IsZero())
}

func TestComputeStats(t *testing.T) {
	retried := Resolve([]Attempt{
		{PaymentID: 1, AttemptNo: 1, Date: day, Amount: decimal.NewFromInt(150), Method: "card", Status: domain.PaymentStatusFailed},
		{PaymentID: 2, AttemptNo: 2, Date: day.Add(time.Hour), Amount: decimal.NewFromInt(150), Method: "card", Status: domain.PaymentStatusPaid},
	})
	abandoned := Resolve([]Attempt{
		{PaymentID: 3, AttemptNo: 1, Date: day, Amount: decimal.NewFromInt(60), Method: "paypal", Status: domain.PaymentStatusFailed},
	})
	noAttempts := Resolve(nil)

	stats := ComputeStats([]Resolution{retried, abandoned, noAttempts})

	assert.EqualValues(t, 3, stats.AttemptsTotal)
	assert.EqualValues(t, 1, stats.AttemptsPaid)
	assert.True(t, stats.SuccessRate.Equal(decimal.RequireFromString("0.3333")), stats.SuccessRate.String())
	assert.EqualValues(t, 2, stats.OrdersWithAttempts)
	assert.EqualValues(t, 1, stats.OrdersPaidOnLast)
	assert.True(t, stats.LastAttemptSuccessRate.Equal(decimal.RequireFromString("0.5")), stats.LastAttemptSuccessRate.String())
	assert.Equal(t, map[string]int64{"card": 1, "paypal": 1}, stats.MethodMix)
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil)

	assert.True(t, stats.SuccessRate.IsZero())
	assert.True(t, stats.LastAttemptSuccessRate.IsZero())
	assert.EqualValues(t, 0, stats.AttemptsTotal)
	assert.Empty(t, stats.MethodMix)
}

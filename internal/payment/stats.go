package payment

import (
	"github.com/shopspring/decimal"
	"github.com/storelytics/tally/internal/source/domain"
	"github.com/storelytics/tally/pkg/money"
)

// Stats aggregates payment behaviour across one reconciliation run.
// SuccessRate counts every attempt; LastAttemptSuccessRate counts only the
// attempt of record per order. The gap between the two is the retry
// recovery margin.
type Stats struct {
	AttemptsTotal          int64
	AttemptsPaid           int64
	SuccessRate            decimal.Decimal
	OrdersWithAttempts     int64
	OrdersPaidOnLast       int64
	LastAttemptSuccessRate decimal.Decimal
	MethodMix              map[string]int64
}

// ComputeStats folds per-order resolutions into run-level stats. Orders
// without attempts contribute nothing; their absence is visible through the
// unpaid flag on their facts instead.
func ComputeStats(resolutions []Resolution) Stats {
	stats := Stats{
		SuccessRate:            decimal.Zero,
		LastAttemptSuccessRate: decimal.Zero,
		MethodMix:              make(map[string]int64),
	}

	for _, res := range resolutions {
		if res.AttemptCount == 0 {
			continue
		}
		stats.OrdersWithAttempts++
		stats.AttemptsTotal += int64(res.AttemptCount)
		stats.AttemptsPaid += int64(res.PaidCount)
		if method := res.Method(); method != "" {
			stats.MethodMix[method]++
		}
		if res.Status() == domain.PaymentStatusPaid {
			stats.OrdersPaidOnLast++
		}
	}

	stats.SuccessRate = money.Rate(stats.AttemptsPaid, stats.AttemptsTotal)
	stats.LastAttemptSuccessRate = money.Rate(stats.OrdersPaidOnLast, stats.OrdersWithAttempts)
	return stats
}

// Fields renders the stats as a JSON-friendly map for run bookkeeping.
func (s Stats) Fields() map[string]any {
	mix := make(map[string]any, len(s.MethodMix))
	for method, count := range s.MethodMix {
		mix[method] = count
	}
	return map[string]any{
		"attempts_total":            s.AttemptsTotal,
		"attempts_paid":             s.AttemptsPaid,
		"payment_success_rate":      s.SuccessRate.String(),
		"orders_with_attempts":      s.OrdersWithAttempts,
		"orders_paid_on_last":       s.OrdersPaidOnLast,
		"last_attempt_success_rate": s.LastAttemptSuccessRate.String(),
		"method_mix":                mix,
	}
}

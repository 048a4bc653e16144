// Package payment resolves multi-attempt payment histories into a single
// canonical outcome per order.
package payment

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storelytics/tally/internal/source/domain"
	"github.com/storelytics/tally/pkg/money"
)

// Attempt is one payment attempt with its lookup codes resolved.
type Attempt struct {
	PaymentID int64
	OrderID   int64
	AttemptNo int
	Date      time.Time
	Amount    decimal.Decimal
	Method    string
	Status    string
}

// Resolution is the canonical payment outcome for one order.
//
// The attempt of record is the most recent attempt; its status and method
// describe the order. Captured money is the sum over every attempt in paid
// status, not just the final one, so a paid-then-retried history still
// reconciles against what the processor actually settled.
type Resolution struct {
	LastAttempt     *Attempt
	AttemptCount    int
	PaidCount       int
	AmountPaidTotal decimal.Decimal
}

// Paid reports whether any attempt settled.
func (r Resolution) Paid() bool { return r.PaidCount > 0 }

// Status returns the status code of the attempt of record, or "" when the
// order has no attempts.
func (r Resolution) Status() string {
	if r.LastAttempt == nil {
		return ""
	}
	return r.LastAttempt.Status
}

// Method returns the method code of the attempt of record, or "" when the
// order has no attempts.
func (r Resolution) Method() string {
	if r.LastAttempt == nil {
		return ""
	}
	return r.LastAttempt.Method
}

// Resolve orders the attempts by recency and derives the canonical outcome.
// Recency is attempt_no first, then payment_date, then payment_id, all
// descending. The full chain keeps the pick deterministic even when source
// rows carry duplicated attempt numbers or equal timestamps.
func Resolve(attempts []Attempt) Resolution {
	res := Resolution{
		AttemptCount:    len(attempts),
		AmountPaidTotal: decimal.Zero,
	}
	if len(attempts) == 0 {
		return res
	}

	ordered := make([]Attempt, len(attempts))
	copy(ordered, attempts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].AttemptNo != ordered[j].AttemptNo {
			return ordered[i].AttemptNo > ordered[j].AttemptNo
		}
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.After(ordered[j].Date)
		}
		return ordered[i].PaymentID > ordered[j].PaymentID
	})

	res.LastAttempt = &ordered[0]
	total := decimal.Zero
	for _, attempt := range ordered {
		if attempt.Status == domain.PaymentStatusPaid {
			res.PaidCount++
			total = total.Add(attempt.Amount)
		}
	}
	res.AmountPaidTotal = money.Round(total)
	return res
}

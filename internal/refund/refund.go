// Package refund attributes explicit returns and implied cancellation
// refunds to orders and their lines.
package refund

import (
	"github.com/shopspring/decimal"
	"github.com/storelytics/tally/pkg/money"
)

// Line is the slice of an order line the attributor needs.
type Line struct {
	OrderItemID int64
	Gross       decimal.Decimal
}

// Return is one explicit product return with its reason code resolved.
type Return struct {
	ReturnID    int64
	OrderItemID int64
	Amount      decimal.Decimal
	Reason      string
}

// LineRefund is the per-line refund outcome.
type LineRefund struct {
	FromReturns      decimal.Decimal
	FromCancellation decimal.Decimal
	ReturnCount      int
	Returned         bool
}

// Total is the combined refund charged against the line.
func (l LineRefund) Total() decimal.Decimal {
	return l.FromReturns.Add(l.FromCancellation)
}

// Attribution is the refund outcome for one order.
type Attribution struct {
	FromReturns      decimal.Decimal
	FromCancellation decimal.Decimal
	Total            decimal.Decimal
	HasReturns       bool
	Lines            map[int64]LineRefund
	ReasonCounts     map[string]int64
}

// Attribute computes the refunds for one order.
//
// Explicit return rows always win. The implied cancellation refund fires
// only when the order is cancelled, money was captured, and not a single
// return row exists on the order; a return row blocks imputation even when
// its amount is zero. At order grain the implied refund equals the captured
// amount. At line grain each line is imputed at its full gross, which can
// diverge from the order figure when captured money never matched the order
// total; the validator reports that divergence rather than hiding it.
func Attribute(cancelled bool, amountPaid decimal.Decimal, lines []Line, returns []Return) Attribution {
	attr := Attribution{
		FromReturns:      decimal.Zero,
		FromCancellation: decimal.Zero,
		Lines:            make(map[int64]LineRefund, len(lines)),
		ReasonCounts:     make(map[string]int64),
	}

	for _, line := range lines {
		attr.Lines[line.OrderItemID] = LineRefund{
			FromReturns:      decimal.Zero,
			FromCancellation: decimal.Zero,
		}
	}

	for _, ret := range returns {
		lr := attr.Lines[ret.OrderItemID]
		lr.FromReturns = money.Round(lr.FromReturns.Add(ret.Amount))
		lr.ReturnCount++
		lr.Returned = true
		attr.Lines[ret.OrderItemID] = lr

		attr.FromReturns = attr.FromReturns.Add(ret.Amount)
		attr.HasReturns = true
		if ret.Reason != "" {
			attr.ReasonCounts[ret.Reason]++
		}
	}

	if cancelled && amountPaid.IsPositive() && !attr.HasReturns {
		attr.FromCancellation = amountPaid
		for _, line := range lines {
			lr := attr.Lines[line.OrderItemID]
			lr.FromCancellation = money.Round(line.Gross)
			attr.Lines[line.OrderItemID] = lr
		}
	}

	attr.FromReturns = money.Round(attr.FromReturns)
	attr.FromCancellation = money.Round(attr.FromCancellation)
	attr.Total = attr.FromReturns.Add(attr.FromCancellation)
	return attr
}

package service

import (
	"github.com/shopspring/decimal"
	"github.com/storelytics/tally/internal/reconcile/domain"
	"github.com/storelytics/tally/pkg/money"
	"gorm.io/datatypes"
)

// validateFacts cross-checks the two grains after the merge. Violations are
// warnings attached to the run, never rejections: the facts still publish,
// the divergence is just visible instead of silent.
func (s *Service) validateFacts(orders []*domain.OrderFact, lines []*domain.LineFact) []*domain.Finding {
	type sums struct {
		net     decimal.Decimal
		refunds decimal.Decimal
	}
	byOrder := make(map[int64]*sums, len(orders))
	for _, line := range lines {
		agg := byOrder[line.OrderID]
		if agg == nil {
			agg = &sums{net: decimal.Zero, refunds: decimal.Zero}
			byOrder[line.OrderID] = agg
		}
		agg.net = agg.net.Add(line.NetRevenue)
		agg.refunds = agg.refunds.Add(line.TotalRefunds)
	}

	var findings []*domain.Finding
	for _, fact := range orders {
		agg := byOrder[fact.OrderID]
		if agg == nil {
			agg = &sums{net: decimal.Zero, refunds: decimal.Zero}
		}

		if !money.Reconciles(agg.net, fact.NetRevenue) {
			findings = append(findings, s.newFinding(
				domain.FindingInconsistentTotals, domain.SeverityWarning, "order", fact.OrderID,
				"line net revenue does not sum to the order figure",
				datatypes.JSONMap{
					"measure":     "net_revenue",
					"order_value": fact.NetRevenue.String(),
					"line_sum":    agg.net.String(),
				},
			))
		}
		if !money.Reconciles(agg.refunds, fact.TotalRefunds) {
			findings = append(findings, s.newFinding(
				domain.FindingInconsistentTotals, domain.SeverityWarning, "order", fact.OrderID,
				"line refunds do not sum to the order figure",
				datatypes.JSONMap{
					"measure":     "total_refunds",
					"order_value": fact.TotalRefunds.String(),
					"line_sum":    agg.refunds.String(),
				},
			))
		}
		if fact.TotalRefunds.Sub(fact.AmountPaidTotal).GreaterThan(money.Tolerance) {
			findings = append(findings, s.newFinding(
				domain.FindingOverRefund, domain.SeverityWarning, "order", fact.OrderID,
				"refunds exceed captured payments",
				datatypes.JSONMap{
					"amount_paid_total": fact.AmountPaidTotal.String(),
					"total_refunds":     fact.TotalRefunds.String(),
				},
			))
		}
	}
	return findings
}

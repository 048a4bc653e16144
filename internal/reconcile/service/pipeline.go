package service

import (
	"context"
	"runtime"
	"sort"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/storelytics/tally/internal/catalog"
	"github.com/storelytics/tally/internal/cohort"
	cohortdomain "github.com/storelytics/tally/internal/cohort/domain"
	"github.com/storelytics/tally/internal/payment"
	"github.com/storelytics/tally/internal/reconcile/domain"
	"github.com/storelytics/tally/internal/refund"
	sourcedomain "github.com/storelytics/tally/internal/source/domain"
	"github.com/storelytics/tally/pkg/money"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// runResult is the full derived dataset of one run, built in memory before
// anything is persisted.
type runResult struct {
	orderFacts []*domain.OrderFact
	lineFacts  []*domain.LineFact
	summaries  []*cohortdomain.MonthlySummary
	findings   []*domain.Finding
	stats      payment.Stats
	reasonMix  map[string]int64
}

func (r *runResult) statsMap() datatypes.JSONMap {
	stats := datatypes.JSONMap(r.stats.Fields())
	stats["orders"] = len(r.orderFacts)
	stats["order_lines"] = len(r.lineFacts)
	stats["months"] = len(r.summaries)
	stats["findings"] = len(r.findings)
	reasons := make(map[string]any, len(r.reasonMix))
	for reason, count := range r.reasonMix {
		reasons[reason] = count
	}
	stats["return_reason_mix"] = reasons
	return stats
}

// orderBundle groups one order with every dependent row that survived
// referential checks.
type orderBundle struct {
	order    sourcedomain.Order
	lines    []sourcedomain.OrderLine
	attempts []sourcedomain.PaymentAttempt
	returns  map[int64][]sourcedomain.Return
}

type partitionResult struct {
	orderFacts  []*domain.OrderFact
	lineFacts   []*domain.LineFact
	findings    []*domain.Finding
	resolutions []payment.Resolution
	reasonMix   map[string]int64
}

// computeRun turns one snapshot into the complete derived dataset. Order
// partitions run concurrently; everything that needs a global view (totals
// validation, payment stats, cohort summaries) runs on the merged output.
func (s *Service) computeRun(ctx context.Context, runID snowflake.ID, snap *sourcedomain.Snapshot) (*runResult, error) {
	ix := catalog.BuildIndex(snap)
	bundles, findings := s.groupSnapshot(snap)

	cfg := s.holder.Get()
	parts := partitionBundles(bundles, cfg.PartitionSize)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]*partitionResult, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, part := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.reconcilePartition(part, ix, runID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &runResult{findings: findings, reasonMix: make(map[string]int64)}
	var resolutions []payment.Resolution
	for _, pr := range results {
		result.orderFacts = append(result.orderFacts, pr.orderFacts...)
		result.lineFacts = append(result.lineFacts, pr.lineFacts...)
		result.findings = append(result.findings, pr.findings...)
		resolutions = append(resolutions, pr.resolutions...)
		for reason, count := range pr.reasonMix {
			result.reasonMix[reason] += count
		}
	}

	sort.Slice(result.orderFacts, func(i, j int) bool {
		return result.orderFacts[i].OrderID < result.orderFacts[j].OrderID
	})
	sort.Slice(result.lineFacts, func(i, j int) bool {
		return result.lineFacts[i].OrderItemID < result.lineFacts[j].OrderItemID
	})

	result.findings = dedupeFindings(result.findings)
	result.findings = append(result.findings, s.validateFacts(result.orderFacts, result.lineFacts)...)
	for _, finding := range result.findings {
		finding.RunID = runID
	}

	result.stats = payment.ComputeStats(resolutions)
	result.summaries = cohort.Build(runID, result.orderFacts)
	return result, nil
}

// groupSnapshot attaches lines, attempts and returns to their orders.
// Rows whose parent chain is broken become error findings and are excluded
// from every downstream metric.
func (s *Service) groupSnapshot(snap *sourcedomain.Snapshot) ([]*orderBundle, []*domain.Finding) {
	bundles := make([]*orderBundle, 0, len(snap.Orders))
	byOrder := make(map[int64]*orderBundle, len(snap.Orders))
	for _, order := range snap.Orders {
		b := &orderBundle{order: order, returns: make(map[int64][]sourcedomain.Return)}
		bundles = append(bundles, b)
		byOrder[order.OrderID] = b
	}

	var findings []*domain.Finding
	lineOwner := make(map[int64]*orderBundle, len(snap.Lines))
	for _, line := range snap.Lines {
		b, ok := byOrder[line.OrderID]
		if !ok {
			findings = append(findings, s.newFinding(
				domain.FindingOrphanLine, domain.SeverityError, "order_line", line.OrderItemID,
				"order_items row references a missing order",
				datatypes.JSONMap{"order_id": line.OrderID},
			))
			continue
		}
		b.lines = append(b.lines, line)
		lineOwner[line.OrderItemID] = b
	}

	for _, attempt := range snap.Attempts {
		b, ok := byOrder[attempt.OrderID]
		if !ok {
			findings = append(findings, s.newFinding(
				domain.FindingOrphanAttempt, domain.SeverityError, "payment", attempt.PaymentID,
				"payments row references a missing order",
				datatypes.JSONMap{"order_id": attempt.OrderID},
			))
			continue
		}
		b.attempts = append(b.attempts, attempt)
	}

	for _, ret := range snap.Returns {
		b, ok := lineOwner[ret.OrderItemID]
		if !ok {
			findings = append(findings, s.newFinding(
				domain.FindingOrphanReturn, domain.SeverityError, "return", ret.ReturnID,
				"product_returns row references a missing order line",
				datatypes.JSONMap{"order_item_id": ret.OrderItemID},
			))
			continue
		}
		b.returns[ret.OrderItemID] = append(b.returns[ret.OrderItemID], ret)
	}

	return bundles, findings
}

func partitionBundles(bundles []*orderBundle, size int) [][]*orderBundle {
	if size <= 0 {
		size = 256
	}
	var parts [][]*orderBundle
	for start := 0; start < len(bundles); start += size {
		end := min(start+size, len(bundles))
		parts = append(parts, bundles[start:end])
	}
	return parts
}

func (s *Service) reconcilePartition(bundles []*orderBundle, ix *catalog.Index, runID snowflake.ID) *partitionResult {
	pr := &partitionResult{
		orderFacts:  make([]*domain.OrderFact, 0, len(bundles)),
		resolutions: make([]payment.Resolution, 0, len(bundles)),
		reasonMix:   make(map[string]int64),
	}
	for _, bundle := range bundles {
		fact, lines, findings, outcome := s.buildOrderFacts(bundle, ix, runID)
		pr.orderFacts = append(pr.orderFacts, fact)
		pr.lineFacts = append(pr.lineFacts, lines...)
		pr.findings = append(pr.findings, findings...)
		pr.resolutions = append(pr.resolutions, outcome.resolution)
		for reason, count := range outcome.reasonCounts {
			pr.reasonMix[reason] += count
		}
	}
	return pr
}

// orderOutcome carries the per-order byproducts that roll into run stats.
type orderOutcome struct {
	resolution   payment.Resolution
	reasonCounts map[string]int64
}

// buildOrderFacts derives the order fact, its line facts and any quality
// findings for a single order.
func (s *Service) buildOrderFacts(b *orderBundle, ix *catalog.Index, runID snowflake.ID) (*domain.OrderFact, []*domain.LineFact, []*domain.Finding, orderOutcome) {
	order := b.order
	var findings []*domain.Finding

	status, ok := ix.OrderStatus(order.OrderStatusID)
	if !ok {
		findings = append(findings, s.newFinding(
			domain.FindingMissingDimension, domain.SeverityWarning, "order", order.OrderID,
			"order_status_id has no matching status code",
			datatypes.JSONMap{"order_status_id": order.OrderStatusID},
		))
	}
	cancelled := status == sourcedomain.OrderStatusCancelled

	country, ok := ix.CustomerCountry(order.CustomerID)
	if !ok {
		findings = append(findings, s.newFinding(
			domain.FindingMissingDimension, domain.SeverityWarning, "customer", order.CustomerID,
			"customer has no resolvable country",
			datatypes.JSONMap{"order_id": order.OrderID},
		))
	}

	attempts := make([]payment.Attempt, 0, len(b.attempts))
	for _, row := range b.attempts {
		method, ok := ix.PaymentMethod(row.PaymentMethodID)
		if !ok {
			findings = append(findings, s.newFinding(
				domain.FindingMissingDimension, domain.SeverityWarning, "payment", row.PaymentID,
				"payment_method_id has no matching method code",
				datatypes.JSONMap{"payment_method_id": row.PaymentMethodID},
			))
		}
		statusCode, ok := ix.PaymentStatus(row.PaymentStatusID)
		if !ok {
			findings = append(findings, s.newFinding(
				domain.FindingMissingDimension, domain.SeverityWarning, "payment", row.PaymentID,
				"payment_status_id has no matching status code",
				datatypes.JSONMap{"payment_status_id": row.PaymentStatusID},
			))
		}
		attempts = append(attempts, payment.Attempt{
			PaymentID: row.PaymentID,
			OrderID:   row.OrderID,
			AttemptNo: row.AttemptNo,
			Date:      row.PaymentDate,
			Amount:    row.AmountPaid,
			Method:    method,
			Status:    statusCode,
		})
	}
	resolution := payment.Resolve(attempts)
	paid := resolution.Paid()

	gross := decimal.Zero
	var units int64
	refundLines := make([]refund.Line, 0, len(b.lines))
	for _, line := range b.lines {
		lineGross := line.Gross()
		gross = gross.Add(lineGross)
		units += line.Quantity
		refundLines = append(refundLines, refund.Line{OrderItemID: line.OrderItemID, Gross: lineGross})
	}

	var returns []refund.Return
	for _, line := range b.lines {
		for _, ret := range b.returns[line.OrderItemID] {
			reason, ok := ix.ReturnReason(ret.ReturnReasonID)
			if !ok {
				findings = append(findings, s.newFinding(
					domain.FindingMissingDimension, domain.SeverityWarning, "return", ret.ReturnID,
					"return_reason_id has no matching reason code",
					datatypes.JSONMap{"return_reason_id": ret.ReturnReasonID},
				))
			}
			returns = append(returns, refund.Return{
				ReturnID:    ret.ReturnID,
				OrderItemID: ret.OrderItemID,
				Amount:      ret.RefundAmount,
				Reason:      reason,
			})
		}
	}

	attr := refund.Attribute(cancelled, resolution.AmountPaidTotal, refundLines, returns)

	now := s.clk.Now()
	fact := &domain.OrderFact{
		OrderID:    order.OrderID,
		RunID:      runID,
		CustomerID: order.CustomerID,
		OrderMonth: order.OrderDate.UTC().Format("2006-01"),
		OrderDate:  order.OrderDate,
		Status:     status,

		LineCount:  len(b.lines),
		UnitsCount: units,

		GrossRevenue:    money.Round(gross),
		AmountPaidTotal: resolution.AmountPaidTotal,
		PaymentStatus:   resolution.Status(),
		PaymentMethod:   resolution.Method(),
		AttemptCount:    resolution.AttemptCount,
		UnpaidOrder:     !paid,
		CancelAtPayment: cancelled && !paid,

		HasReturns:              attr.HasReturns,
		RefundsFromReturns:      attr.FromReturns,
		RefundsFromCancellation: attr.FromCancellation,
		TotalRefunds:            attr.Total,
		NetRevenue:              decimal.Zero,

		CreatedAt: now,
	}
	if paid {
		fact.NetRevenue = money.Round(resolution.AmountPaidTotal.Sub(attr.Total))
	}

	lineFacts := make([]*domain.LineFact, 0, len(b.lines))
	for _, line := range b.lines {
		lineGross := money.Round(line.Gross())
		lr := attr.Lines[line.OrderItemID]

		category, ok := ix.ProductCategory(line.ProductID)
		if !ok {
			findings = append(findings, s.newFinding(
				domain.FindingMissingDimension, domain.SeverityWarning, "product", line.ProductID,
				"product has no resolvable category",
				datatypes.JSONMap{"order_item_id": line.OrderItemID},
			))
		}

		amountPaid := decimal.Zero
		net := decimal.Zero
		if paid {
			amountPaid = lineGross
			net = money.Round(amountPaid.Sub(lr.Total()))
		}

		lineFacts = append(lineFacts, &domain.LineFact{
			OrderItemID: line.OrderItemID,
			OrderID:     order.OrderID,
			RunID:       runID,
			ProductID:   line.ProductID,

			ProductCategory: category,
			CustomerCountry: country,

			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,

			GrossRevenue: lineGross,
			AmountPaid:   amountPaid,

			Returned:                lr.Returned,
			ReturnCount:             lr.ReturnCount,
			CancelAtPayment:         cancelled && !paid,
			RefundsFromReturns:      lr.FromReturns,
			RefundsFromCancellation: lr.FromCancellation,
			TotalRefunds:            lr.Total(),
			NetRevenue:              net,

			CreatedAt: now,
		})
	}

	return fact, lineFacts, findings, orderOutcome{resolution: resolution, reasonCounts: attr.ReasonCounts}
}

// dedupeFindings collapses repeated missing dimension findings for the same
// entity: one broken product dimension should read as one finding, not one
// per line it appears on.
func dedupeFindings(findings []*domain.Finding) []*domain.Finding {
	seen := make(map[string]bool, len(findings))
	out := findings[:0]
	for _, f := range findings {
		if f.Code == domain.FindingMissingDimension {
			key := f.Code + "|" + f.EntityType + "|" + strconv.FormatInt(f.EntityID, 10) + "|" + f.Detail
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, f)
	}
	return out
}

func (s *Service) newFinding(code, severity, entityType string, entityID int64, detail string, context datatypes.JSONMap) *domain.Finding {
	return &domain.Finding{
		ID:         s.genID.Generate(),
		Code:       code,
		Severity:   severity,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		Context:    context,
		CreatedAt:  s.clk.Now(),
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/storelytics/tally/internal/clock"
	cohortdomain "github.com/storelytics/tally/internal/cohort/domain"
	cohortservice "github.com/storelytics/tally/internal/cohort/service"
	"github.com/storelytics/tally/internal/config"
	"github.com/storelytics/tally/internal/reconcile/domain"
	sourcedomain "github.com/storelytics/tally/internal/source/domain"
	sourceservice "github.com/storelytics/tally/internal/source/service"
	"github.com/storelytics/tally/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type engineFixture struct {
	svc     domain.Service
	cohorts cohortdomain.Service
	db      *gorm.DB
	clk     *clock.FakeClock
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	dbConn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(
		&sourcedomain.Order{},
		&sourcedomain.OrderLine{},
		&sourcedomain.PaymentAttempt{},
		&sourcedomain.Return{},
		&sourcedomain.Customer{},
		&sourcedomain.Product{},
		&sourcedomain.Category{},
		&sourcedomain.Country{},
		&sourcedomain.OrderStatus{},
		&sourcedomain.PaymentMethod{},
		&sourcedomain.PaymentStatus{},
		&sourcedomain.ReturnReason{},
		&domain.ReconciliationRun{},
		&domain.OrderFact{},
		&domain.LineFact{},
		&domain.Finding{},
		&cohortdomain.MonthlySummary{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))

	loader := sourceservice.NewService(sourceservice.ServiceParam{
		DB:    dbConn,
		Log:   zap.NewNop(),
		Clock: clk,
	})

	svc := NewService(ServiceParam{
		DB:     dbConn,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Loader: loader,
		// A tiny partition size forces the fixture through the concurrent
		// merge path even with a handful of orders.
		Holder: config.StaticEngineConfigHolder(config.EngineConfig{
			Workers:       2,
			PartitionSize: 2,
			RunClaimLimit: 5,
		}),
	})

	cohorts := cohortservice.NewService(cohortservice.ServiceParam{
		DB:  dbConn,
		Log: zap.NewNop(),
	})

	return &engineFixture{svc: svc, cohorts: cohorts, db: dbConn, clk: clk}
}

// seedWorld loads a small store with every behaviour the engine has to
// handle: a delivered order with a retried payment and a partial return, a
// cancellation after capture, a cancellation before capture, a plain paid
// order, and three rows with broken parents.
func seedWorld(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	create := func(values ...any) {
		t.Helper()
		for _, value := range values {
			require.NoError(t, dbConn.Create(value).Error)
		}
	}

	create(
		&sourcedomain.OrderStatus{OrderStatusID: 1, Code: sourcedomain.OrderStatusDelivered},
		&sourcedomain.OrderStatus{OrderStatusID: 2, Code: sourcedomain.OrderStatusCancelled},
		&sourcedomain.PaymentMethod{PaymentMethodID: 1, Code: "card"},
		&sourcedomain.PaymentMethod{PaymentMethodID: 2, Code: "paypal"},
		&sourcedomain.PaymentStatus{PaymentStatusID: 1, Code: sourcedomain.PaymentStatusPaid},
		&sourcedomain.PaymentStatus{PaymentStatusID: 2, Code: sourcedomain.PaymentStatusFailed},
		&sourcedomain.ReturnReason{ReturnReasonID: 1, Code: "damaged"},
		&sourcedomain.Country{CountryID: 351, ISOCode: "PT"},
		&sourcedomain.Customer{CustomerID: 100, CountryID: 351},
		&sourcedomain.Customer{CustomerID: 200, CountryID: 351},
		&sourcedomain.Category{CategoryID: 1, Name: "books"},
		&sourcedomain.Category{CategoryID: 2, Name: "garden"},
		&sourcedomain.Product{ProductID: 10, CategoryID: 1},
		&sourcedomain.Product{ProductID: 11, CategoryID: 2},
	)

	// Order 1: delivered, failed attempt then paid, one partial return.
	create(
		&sourcedomain.Order{OrderID: 1, CustomerID: 100, OrderDate: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), OrderStatusID: 1},
		&sourcedomain.OrderLine{OrderItemID: 101, OrderID: 1, ProductID: 10, Quantity: 3, UnitPrice: decimal.RequireFromString("30.00")},
		&sourcedomain.OrderLine{OrderItemID: 102, OrderID: 1, ProductID: 11, Quantity: 1, UnitPrice: decimal.RequireFromString("60.00")},
		&sourcedomain.PaymentAttempt{PaymentID: 1001, OrderID: 1, AttemptNo: 1, PaymentDate: time.Date(2024, 1, 15, 10, 5, 0, 0, time.UTC), AmountPaid: decimal.RequireFromString("150.00"), PaymentMethodID: 1, PaymentStatusID: 2},
		&sourcedomain.PaymentAttempt{PaymentID: 1002, OrderID: 1, AttemptNo: 2, PaymentDate: time.Date(2024, 1, 15, 10, 9, 0, 0, time.UTC), AmountPaid: decimal.RequireFromString("150.00"), PaymentMethodID: 2, PaymentStatusID: 1},
		&sourcedomain.Return{ReturnID: 5001, OrderItemID: 101, ReturnDate: time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), RefundAmount: decimal.RequireFromString("30.00"), ReturnReasonID: 1},
	)

	// Order 2: cancelled after a successful capture, no explicit returns.
	create(
		&sourcedomain.Order{OrderID: 2, CustomerID: 100, OrderDate: time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC), OrderStatusID: 2},
		&sourcedomain.OrderLine{OrderItemID: 201, OrderID: 2, ProductID: 10, Quantity: 1, UnitPrice: decimal.RequireFromString("150.00")},
		&sourcedomain.PaymentAttempt{PaymentID: 2001, OrderID: 2, AttemptNo: 1, PaymentDate: time.Date(2024, 2, 20, 9, 1, 0, 0, time.UTC), AmountPaid: decimal.RequireFromString("150.00"), PaymentMethodID: 1, PaymentStatusID: 1},
	)

	// Order 3: cancelled before any capture succeeded.
	create(
		&sourcedomain.Order{OrderID: 3, CustomerID: 200, OrderDate: time.Date(2024, 2, 5, 14, 0, 0, 0, time.UTC), OrderStatusID: 2},
		&sourcedomain.OrderLine{OrderItemID: 301, OrderID: 3, ProductID: 11, Quantity: 1, UnitPrice: decimal.RequireFromString("60.00")},
		&sourcedomain.PaymentAttempt{PaymentID: 3001, OrderID: 3, AttemptNo: 1, PaymentDate: time.Date(2024, 2, 5, 14, 1, 0, 0, time.UTC), AmountPaid: decimal.RequireFromString("60.00"), PaymentMethodID: 1, PaymentStatusID: 2},
	)

	// Order 4: plain delivered and paid.
	create(
		&sourcedomain.Order{OrderID: 4, CustomerID: 200, OrderDate: time.Date(2024, 3, 10, 16, 0, 0, 0, time.UTC), OrderStatusID: 1},
		&sourcedomain.OrderLine{OrderItemID: 401, OrderID: 4, ProductID: 10, Quantity: 2, UnitPrice: decimal.RequireFromString("30.00")},
		&sourcedomain.PaymentAttempt{PaymentID: 4001, OrderID: 4, AttemptNo: 1, PaymentDate: time.Date(2024, 3, 10, 16, 1, 0, 0, time.UTC), AmountPaid: decimal.RequireFromString("60.00"), PaymentMethodID: 1, PaymentStatusID: 1},
	)

	// Broken parents: a line without an order, a payment without an order,
	// and a return pointing at the orphaned line.
	create(
		&sourcedomain.OrderLine{OrderItemID: 999, OrderID: 777, ProductID: 10, Quantity: 1, UnitPrice: decimal.RequireFromString("10.00")},
		&sourcedomain.PaymentAttempt{PaymentID: 888, OrderID: 777, AttemptNo: 1, PaymentDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), AmountPaid: decimal.RequireFromString("10.00"), PaymentMethodID: 1, PaymentStatusID: 1},
		&sourcedomain.Return{ReturnID: 555, OrderItemID: 999, ReturnDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), RefundAmount: decimal.RequireFromString("10.00"), ReturnReasonID: 1},
	)
}

func runOnce(t *testing.T, env *engineFixture, trigger string) *domain.ReconciliationRun {
	t.Helper()
	ctx := context.Background()

	run, err := env.svc.EnqueueRun(ctx, trigger)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPending, run.Status)

	processed, err := env.svc.ProcessPending(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	completed, err := env.svc.GetRun(ctx, run.ID.String())
	require.NoError(t, err)
	return completed
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.RequireFromString(want)), "want %s, got %s", want, got.String())
}

func TestReconciliationEndToEnd(t *testing.T) {
	env := newEngineFixture(t)
	seedWorld(t, env.db)
	ctx := context.Background()

	run := runOnce(t, env, domain.TriggerAPI)
	require.Equal(t, domain.RunStatusCompleted, run.Status)
	require.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.Error)

	// Order 1: retried payment captures 150, the 30.00 return nets 120.
	facts, err := env.svc.GetOrderFacts(ctx, "1")
	require.NoError(t, err)
	order1 := facts.Order
	assert.Equal(t, sourcedomain.OrderStatusDelivered, order1.Status)
	assert.Equal(t, "2024-01", order1.OrderMonth)
	assert.Equal(t, 2, order1.LineCount)
	assert.EqualValues(t, 4, order1.UnitsCount)
	assertMoney(t, "150.00", order1.GrossRevenue)
	assertMoney(t, "150.00", order1.AmountPaidTotal)
	assert.Equal(t, sourcedomain.PaymentStatusPaid, order1.PaymentStatus)
	assert.Equal(t, "paypal", order1.PaymentMethod)
	assert.Equal(t, 2, order1.AttemptCount)
	assert.False(t, order1.UnpaidOrder)
	assert.False(t, order1.CancelAtPayment)
	assert.True(t, order1.HasReturns)
	assertMoney(t, "30.00", order1.RefundsFromReturns)
	assertMoney(t, "0", order1.RefundsFromCancellation)
	assertMoney(t, "120.00", order1.NetRevenue)

	require.Len(t, facts.Lines, 2)
	line101 := facts.Lines[0]
	assert.EqualValues(t, 101, line101.OrderItemID)
	assert.Equal(t, "books", line101.ProductCategory)
	assert.Equal(t, "PT", line101.CustomerCountry)
	assertMoney(t, "90.00", line101.GrossRevenue)
	assertMoney(t, "90.00", line101.AmountPaid)
	assert.True(t, line101.Returned)
	assert.Equal(t, 1, line101.ReturnCount)
	assertMoney(t, "30.00", line101.TotalRefunds)
	assertMoney(t, "60.00", line101.NetRevenue)

	line102 := facts.Lines[1]
	assert.Equal(t, "garden", line102.ProductCategory)
	assert.False(t, line102.Returned)
	assertMoney(t, "60.00", line102.NetRevenue)

	// Order 2: cancelled after capture, no return rows, so the full capture
	// is imputed as a cancellation refund.
	facts, err = env.svc.GetOrderFacts(ctx, "2")
	require.NoError(t, err)
	order2 := facts.Order
	assert.Equal(t, sourcedomain.OrderStatusCancelled, order2.Status)
	assert.False(t, order2.UnpaidOrder)
	assert.False(t, order2.CancelAtPayment)
	assert.False(t, order2.HasReturns)
	assertMoney(t, "150.00", order2.AmountPaidTotal)
	assertMoney(t, "150.00", order2.RefundsFromCancellation)
	assertMoney(t, "0", order2.RefundsFromReturns)
	assertMoney(t, "150.00", order2.TotalRefunds)
	assertMoney(t, "0.00", order2.NetRevenue)
	require.Len(t, facts.Lines, 1)
	assertMoney(t, "150.00", facts.Lines[0].RefundsFromCancellation)
	assert.False(t, facts.Lines[0].Returned)
	assert.False(t, facts.Lines[0].CancelAtPayment)

	// Order 3: cancelled before capture. Nothing to impute.
	facts, err = env.svc.GetOrderFacts(ctx, "3")
	require.NoError(t, err)
	order3 := facts.Order
	assert.True(t, order3.UnpaidOrder)
	assert.True(t, order3.CancelAtPayment)
	require.Len(t, facts.Lines, 1)
	assert.True(t, facts.Lines[0].CancelAtPayment)
	assertMoney(t, "0", order3.AmountPaidTotal)
	assertMoney(t, "0", order3.TotalRefunds)
	assertMoney(t, "0", order3.NetRevenue)
	assert.Equal(t, sourcedomain.PaymentStatusFailed, order3.PaymentStatus)

	// Order 4: plain paid order.
	facts, err = env.svc.GetOrderFacts(ctx, "4")
	require.NoError(t, err)
	assertMoney(t, "60.00", facts.Order.NetRevenue)

	// Monthly summaries ascend and classify buyers against full history.
	summaries, err := env.cohorts.ListMonthly(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	jan := summaries[0]
	assert.Equal(t, "2024-01", jan.Month)
	assert.EqualValues(t, 1, jan.TotalOrders)
	assert.EqualValues(t, 1, jan.NewBuyers)
	assert.EqualValues(t, 0, jan.ReturningBuyers)
	assertMoney(t, "120.00", jan.TotalRevenue)

	feb := summaries[1]
	assert.Equal(t, "2024-02", feb.Month)
	assert.EqualValues(t, 2, feb.TotalOrders)
	assert.EqualValues(t, 1, feb.NewBuyers)
	assert.EqualValues(t, 1, feb.ReturningBuyers)
	assertMoney(t, "0.00", feb.TotalRevenue)

	mar := summaries[2]
	assert.Equal(t, "2024-03", mar.Month)
	assert.EqualValues(t, 0, mar.NewBuyers)
	assert.EqualValues(t, 1, mar.ReturningBuyers)
	assertMoney(t, "60.00", mar.TotalRevenue)

	// Referential breaks surfaced as error findings and stayed out of facts.
	findings, err := env.svc.ListFindings(ctx, domain.ListFindingsRequest{RunID: run.ID.String()})
	require.NoError(t, err)
	require.Len(t, findings.Findings, 3)
	codes := map[string]int64{}
	for _, f := range findings.Findings {
		assert.Equal(t, domain.SeverityError, f.Severity)
		codes[f.Code] = f.EntityID
	}
	assert.EqualValues(t, 999, codes[domain.FindingOrphanLine])
	assert.EqualValues(t, 888, codes[domain.FindingOrphanAttempt])
	assert.EqualValues(t, 555, codes[domain.FindingOrphanReturn])

	// Run stats cover both success rate definitions.
	assert.EqualValues(t, 5, run.Stats["attempts_total"])
	assert.EqualValues(t, 3, run.Stats["attempts_paid"])
	assert.Equal(t, "0.6", run.Stats["payment_success_rate"])
	assert.EqualValues(t, 4, run.Stats["orders_with_attempts"])
	assert.Equal(t, "0.75", run.Stats["last_attempt_success_rate"])
	assert.Equal(t, map[string]any{"card": float64(3), "paypal": float64(1)}, run.Stats["method_mix"])
	assert.Equal(t, map[string]any{"damaged": float64(1)}, run.Stats["return_reason_mix"])
	assert.EqualValues(t, 4, run.Stats["orders"])
	assert.EqualValues(t, 5, run.Stats["order_lines"])
	assert.EqualValues(t, 3, run.Stats["months"])
	assert.EqualValues(t, 3, run.Stats["findings"])

	latest, err := env.svc.LatestCompletedRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
}

func TestReconciliationIsIdempotent(t *testing.T) {
	env := newEngineFixture(t)
	seedWorld(t, env.db)
	ctx := context.Background()

	first := runOnce(t, env, domain.TriggerAPI)
	env.clk.Advance(time.Hour)
	second := runOnce(t, env, domain.TriggerScheduler)

	require.Equal(t, domain.RunStatusCompleted, first.Status)
	require.Equal(t, domain.RunStatusCompleted, second.Status)

	// Facts are a single replaced generation, stamped by the newest run.
	var factCount int64
	require.NoError(t, env.db.Model(&domain.OrderFact{}).Count(&factCount).Error)
	assert.EqualValues(t, 4, factCount)

	facts, err := env.svc.GetOrderFacts(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, facts.Order.RunID)
	assertMoney(t, "120.00", facts.Order.NetRevenue)

	var summaryCount int64
	require.NoError(t, env.db.Model(&cohortdomain.MonthlySummary{}).Count(&summaryCount).Error)
	assert.EqualValues(t, 3, summaryCount)

	// Findings accumulate per run instead of being replaced.
	firstFindings, err := env.svc.ListFindings(ctx, domain.ListFindingsRequest{RunID: first.ID.String()})
	require.NoError(t, err)
	secondFindings, err := env.svc.ListFindings(ctx, domain.ListFindingsRequest{RunID: second.ID.String()})
	require.NoError(t, err)
	assert.Len(t, firstFindings.Findings, 3)
	assert.Len(t, secondFindings.Findings, 3)

	latest, err := env.svc.LatestCompletedRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, domain.TriggerScheduler, latest.TriggeredBy)
}

func TestReconciliationEmptySource(t *testing.T) {
	env := newEngineFixture(t)
	ctx := context.Background()

	run := runOnce(t, env, domain.TriggerAPI)

	require.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.EqualValues(t, 0, run.Stats["orders"])
	assert.EqualValues(t, 0, run.Stats["findings"])

	var factCount int64
	require.NoError(t, env.db.Model(&domain.OrderFact{}).Count(&factCount).Error)
	assert.Zero(t, factCount)

	summaries, err := env.cohorts.ListMonthly(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

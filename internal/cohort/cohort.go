// Package cohort derives monthly buyer summaries from order facts.
package cohort

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	cohortdomain "github.com/storelytics/tally/internal/cohort/domain"
	reconciledomain "github.com/storelytics/tally/internal/reconcile/domain"
	"github.com/storelytics/tally/pkg/money"
)

// Build folds order facts into per-month summaries, ascending by month.
// Cohort assignment spans the whole snapshot: a customer's first order is
// the one with the minimum order timestamp across every month, no matter
// which month window a reader later slices. An order at exactly that
// timestamp is a new-buyer event; every other order is a returning-buyer
// event, including a second order inside the first month. Months without
// orders produce no row.
func Build(runID snowflake.ID, facts []*reconciledomain.OrderFact) []*cohortdomain.MonthlySummary {
	if len(facts) == 0 {
		return nil
	}

	firstOrder := make(map[int64]time.Time, len(facts))
	for _, fact := range facts {
		date, ok := firstOrder[fact.CustomerID]
		if !ok || fact.OrderDate.Before(date) {
			firstOrder[fact.CustomerID] = fact.OrderDate
		}
	}

	type bucket struct {
		orders    int64
		revenue   decimal.Decimal
		newBuyers map[int64]struct{}
		returning map[int64]struct{}
	}
	months := make(map[string]*bucket)
	for _, fact := range facts {
		b := months[fact.OrderMonth]
		if b == nil {
			b = &bucket{
				revenue:   decimal.Zero,
				newBuyers: make(map[int64]struct{}),
				returning: make(map[int64]struct{}),
			}
			months[fact.OrderMonth] = b
		}
		b.orders++
		b.revenue = b.revenue.Add(fact.NetRevenue)
		if fact.OrderDate.Equal(firstOrder[fact.CustomerID]) {
			b.newBuyers[fact.CustomerID] = struct{}{}
		} else {
			b.returning[fact.CustomerID] = struct{}{}
		}
	}

	keys := make([]string, 0, len(months))
	for key := range months {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	summaries := make([]*cohortdomain.MonthlySummary, 0, len(keys))
	for _, key := range keys {
		b := months[key]
		summaries = append(summaries, &cohortdomain.MonthlySummary{
			Month:           key,
			RunID:           runID,
			TotalOrders:     b.orders,
			TotalRevenue:    money.Round(b.revenue),
			NewBuyers:       int64(len(b.newBuyers)),
			ReturningBuyers: int64(len(b.returning)),
		})
	}
	return summaries
}

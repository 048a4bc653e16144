package domain

import "context"

// Service reads published cohort summaries.
type Service interface {
	ListMonthly(ctx context.Context) ([]*MonthlySummary, error)
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/storelytics/tally/pkg/db/pagination"
)

var (
	ErrInvalidRunID      = errors.New("invalid_run_id")
	ErrRunNotFound       = errors.New("run_not_found")
	ErrInvalidOrderID    = errors.New("invalid_order_id")
	ErrOrderFactNotFound = errors.New("order_fact_not_found")
	ErrNoCompletedRun    = errors.New("no_completed_run")
)

// OrderFacts bundles an order fact with its line facts.
type OrderFacts struct {
	Order *OrderFact  `json:"order"`
	Lines []*LineFact `json:"lines"`
}

// ListFindingsRequest filters the findings log.
type ListFindingsRequest struct {
	RunID      string
	Code       string
	Severity   string
	Pagination pagination.Pagination
}

// ListFindingsResponse is one page of findings.
type ListFindingsResponse struct {
	Findings []*Finding           `json:"findings"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type Service interface {
	// EnqueueRun records a pending run and returns immediately; a worker
	// picks it up through ProcessPending.
	EnqueueRun(ctx context.Context, triggeredBy string) (*ReconciliationRun, error)

	// ProcessPending claims up to limit pending runs and executes them
	// serially, oldest first. It returns how many runs it attempted.
	ProcessPending(ctx context.Context, limit int) (int, error)

	// RecoverStuckRuns re-pends runs that have sat in processing longer
	// than olderThan, so work lost to a crashed worker is picked up again.
	RecoverStuckRuns(ctx context.Context, olderThan time.Duration) (int, error)

	GetRun(ctx context.Context, runID string) (*ReconciliationRun, error)
	ListRuns(ctx context.Context, limit int) ([]*ReconciliationRun, error)
	LatestCompletedRun(ctx context.Context) (*ReconciliationRun, error)

	GetOrderFacts(ctx context.Context, orderID string) (*OrderFacts, error)
	ListFindings(ctx context.Context, req ListFindingsRequest) (*ListFindingsResponse, error)
}

package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/storelytics/tally/internal/clock"
	"github.com/storelytics/tally/internal/config"
	obsmetrics "github.com/storelytics/tally/internal/observability/metrics"
	"github.com/storelytics/tally/internal/reconcile/domain"
	sourcedomain "github.com/storelytics/tally/internal/source/domain"
	"github.com/storelytics/tally/pkg/db/option"
	"github.com/storelytics/tally/pkg/db/pagination"
	"github.com/storelytics/tally/pkg/repository"
	"github.com/storelytics/tally/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clk        clock.Clock
	loader     sourcedomain.Loader
	holder     *config.EngineConfigHolder
	metrics    *telemetry.Metrics
	obsMetrics *obsmetrics.Metrics

	runRepo     repository.Repository[domain.ReconciliationRun]
	factRepo    repository.Repository[domain.OrderFact]
	lineRepo    repository.Repository[domain.LineFact]
	findingRepo repository.Repository[domain.Finding]
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Loader     sourcedomain.Loader
	Holder     *config.EngineConfigHolder
	Metrics    *telemetry.Metrics  `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("reconcile.service"),

		genID:      p.GenID,
		clk:        p.Clock,
		loader:     p.Loader,
		holder:     p.Holder,
		metrics:    p.Metrics,
		obsMetrics: p.ObsMetrics,

		runRepo:     repository.ProvideStore[domain.ReconciliationRun](p.DB),
		factRepo:    repository.ProvideStore[domain.OrderFact](p.DB),
		lineRepo:    repository.ProvideStore[domain.LineFact](p.DB),
		findingRepo: repository.ProvideStore[domain.Finding](p.DB),
	}
}

func (s *Service) GetRun(ctx context.Context, runID string) (*domain.ReconciliationRun, error) {
	id, err := parseID(runID)
	if err != nil {
		return nil, domain.ErrInvalidRunID
	}
	run, err := s.runRepo.FindOne(ctx, &domain.ReconciliationRun{ID: id})
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, domain.ErrRunNotFound
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]*domain.ReconciliationRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runRepo.Find(ctx, &domain.ReconciliationRun{},
		option.WithSortBy(option.WithQuerySortBy("id", "desc", map[string]bool{"id": true})),
		option.WithLimit(limit),
	)
}

func (s *Service) LatestCompletedRun(ctx context.Context) (*domain.ReconciliationRun, error) {
	runs, err := s.runRepo.Find(ctx, &domain.ReconciliationRun{Status: domain.RunStatusCompleted},
		option.WithSortBy(option.WithQuerySortBy("completed_at", "desc", map[string]bool{"completed_at": true})),
		option.WithLimit(1),
	)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, domain.ErrNoCompletedRun
	}
	return runs[0], nil
}

func (s *Service) GetOrderFacts(ctx context.Context, orderID string) (*domain.OrderFacts, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(orderID), 10, 64)
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidOrderID
	}

	fact, err := s.factRepo.FindOne(ctx, &domain.OrderFact{OrderID: id})
	if err != nil {
		return nil, err
	}
	if fact == nil {
		return nil, domain.ErrOrderFactNotFound
	}

	lines, err := s.lineRepo.Find(ctx, &domain.LineFact{OrderID: id},
		option.WithSortBy(option.WithQuerySortBy("order_item_id", "asc", map[string]bool{"order_item_id": true})),
	)
	if err != nil {
		return nil, err
	}
	return &domain.OrderFacts{Order: fact, Lines: lines}, nil
}

func (s *Service) ListFindings(ctx context.Context, req domain.ListFindingsRequest) (*domain.ListFindingsResponse, error) {
	filter := &domain.Finding{
		Code:     strings.TrimSpace(req.Code),
		Severity: strings.TrimSpace(req.Severity),
	}
	if req.RunID != "" {
		id, err := parseID(req.RunID)
		if err != nil {
			return nil, domain.ErrInvalidRunID
		}
		filter.RunID = id
	}

	if req.Pagination.PageSize <= 0 {
		req.Pagination.PageSize = 50
	}

	rows, err := s.findingRepo.Find(ctx, filter,
		option.ApplyPagination(req.Pagination),
		option.WithSortBy(option.WithQuerySortBy("id", "desc", map[string]bool{"id": true})),
	)
	if err != nil {
		return nil, err
	}

	pageInfo, rows := pagination.BuildCursorPageInfo(rows, req.Pagination.PageSize, func(f *domain.Finding) string {
		return f.ID.String()
	})
	return &domain.ListFindingsResponse{Findings: rows, PageInfo: pageInfo}, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidRunID
	}
	return id, nil
}

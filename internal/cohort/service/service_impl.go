package service

import (
	"context"

	"github.com/storelytics/tally/internal/cohort/domain"
	"github.com/storelytics/tally/pkg/db/option"
	"github.com/storelytics/tally/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	log         *zap.Logger
	summaryRepo repository.Repository[domain.MonthlySummary]
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:         p.Log.Named("cohort.service"),
		summaryRepo: repository.ProvideStore[domain.MonthlySummary](p.DB),
	}
}

// ListMonthly returns every published summary, oldest month first.
func (s *Service) ListMonthly(ctx context.Context) ([]*domain.MonthlySummary, error) {
	return s.summaryRepo.Find(ctx, &domain.MonthlySummary{},
		option.WithSortBy(option.WithQuerySortBy("month", "asc", map[string]bool{"month": true})),
	)
}

package service

import (
	"context"
	"time"

	"github.com/storelytics/tally/internal/clock"
	"github.com/storelytics/tally/internal/source/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	clk clock.Clock
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

func NewService(p ServiceParam) domain.Loader {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("source.service"),
		clk: p.Clock,
	}
}

// LoadSnapshot reads every source table inside a single transaction so a
// reconciliation run observes one point-in-time view of the store. Columns
// are selected explicitly; the upstream tables carry fields the engine has
// no business reading.
func (s *Service) LoadSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{LoadedAt: s.clk.Now()}
	started := time.Now()

	queries := []struct {
		sql  string
		dest any
	}{
		{`SELECT order_id, customer_id, order_date, order_status_id FROM orders`, &snap.Orders},
		{`SELECT order_item_id, order_id, product_id, quantity, unit_price FROM order_items`, &snap.Lines},
		{`SELECT payment_id, order_id, attempt_no, payment_date, amount_paid, payment_method_id, payment_status_id FROM payments`, &snap.Attempts},
		{`SELECT return_id, order_item_id, return_date, refund_amount, return_reason_id FROM product_returns`, &snap.Returns},
		{`SELECT customer_id, country_id FROM customers`, &snap.Customers},
		{`SELECT product_id, category_id FROM products`, &snap.Products},
		{`SELECT category_id, name FROM product_categories`, &snap.Categories},
		{`SELECT country_id, iso_code FROM countries`, &snap.Countries},
		{`SELECT order_status_id, code FROM order_status`, &snap.OrderStatuses},
		{`SELECT payment_method_id, code FROM payment_methods`, &snap.PaymentMethods},
		{`SELECT payment_status_id, code FROM payment_status`, &snap.PaymentStatuses},
		{`SELECT return_reason_id, code FROM return_reasons`, &snap.ReturnReasons},
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, q := range queries {
			if err := tx.Raw(q.sql).Scan(q.dest).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("source snapshot loaded",
		zap.Int("orders", len(snap.Orders)),
		zap.Int("order_lines", len(snap.Lines)),
		zap.Int("payment_attempts", len(snap.Attempts)),
		zap.Int("returns", len(snap.Returns)),
		zap.Duration("took", time.Since(started)),
	)
	return snap, nil
}

package service

import (
	"context"

	"gorm.io/gorm"
)

const persistBatchSize = 500

// persistRun atomically replaces the published dataset with this run's
// output. Facts and summaries are replaced wholesale so readers only ever
// see one coherent generation; findings accumulate per run as history.
func (s *Service) persistRun(ctx context.Context, result *runResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"order_line_facts", "order_facts", "monthly_summaries"} {
			if err := tx.Exec(`DELETE FROM ` + table).Error; err != nil {
				return err
			}
		}

		if len(result.orderFacts) > 0 {
			if err := tx.CreateInBatches(result.orderFacts, persistBatchSize).Error; err != nil {
				return err
			}
		}
		if len(result.lineFacts) > 0 {
			if err := tx.CreateInBatches(result.lineFacts, persistBatchSize).Error; err != nil {
				return err
			}
		}
		if len(result.summaries) > 0 {
			if err := tx.CreateInBatches(result.summaries, persistBatchSize).Error; err != nil {
				return err
			}
		}
		if len(result.findings) > 0 {
			if err := tx.CreateInBatches(result.findings, persistBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

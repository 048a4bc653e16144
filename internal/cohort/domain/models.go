// Package domain contains persistence models for monthly cohort summaries.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// MonthlySummary aggregates one calendar month of orders. A buyer is new in
// the month of their first order anywhere in history and returning in every
// later month they buy again.
type MonthlySummary struct {
	Month           string          `gorm:"type:varchar(7);primaryKey" json:"month"`
	RunID           snowflake.ID    `gorm:"not null;index" json:"run_id"`
	TotalOrders     int64           `gorm:"not null" json:"total_orders"`
	TotalRevenue    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_revenue"`
	NewBuyers       int64           `gorm:"not null" json:"new_buyers"`
	ReturningBuyers int64           `gorm:"not null" json:"returning_buyers"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (MonthlySummary) TableName() string { return "monthly_summaries" }

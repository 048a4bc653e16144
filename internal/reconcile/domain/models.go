// Package domain contains persistence models for reconciliation output.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RunStatus represents reconciliation run lifecycle states.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// Run trigger origins.
const (
	TriggerAPI       = "api"
	TriggerScheduler = "scheduler"
)

// Finding severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Finding codes. Orphan codes mark referential breaks that exclude rows
// from the run; the rest are warnings attached to facts that still publish.
const (
	FindingOrphanLine         = "orphan_line"
	FindingOrphanAttempt      = "orphan_attempt"
	FindingOrphanReturn       = "orphan_return"
	FindingMissingDimension   = "missing_dimension"
	FindingInconsistentTotals = "inconsistent_totals"
	FindingOverRefund         = "over_refund"
)

// ReconciliationRun tracks one full recomputation of the derived tables.
type ReconciliationRun struct {
	ID            snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"run_id"`
	Status        RunStatus         `gorm:"type:text;not null;default:'pending';index" json:"status"`
	TriggeredBy   string            `gorm:"type:text;not null" json:"triggered_by"`
	CorrelationID string            `gorm:"type:text" json:"correlation_id,omitempty"`
	RequestedAt   time.Time         `gorm:"not null" json:"requested_at"`
	StartedAt     *time.Time        `gorm:"" json:"started_at,omitempty"`
	CompletedAt   *time.Time        `gorm:"" json:"completed_at,omitempty"`
	Error         string            `gorm:"type:text" json:"error,omitempty"`
	Stats         datatypes.JSONMap `gorm:"type:json" json:"stats"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (ReconciliationRun) TableName() string { return "reconciliation_runs" }

// OrderFact is the order-grain canonical financial record. The engine owns
// this table outright: every completed run replaces its full contents, so a
// row always reflects the latest completed run, never a merge of runs.
type OrderFact struct {
	OrderID    int64        `gorm:"primaryKey;autoIncrement:false" json:"order_id"`
	RunID      snowflake.ID `gorm:"not null;index" json:"run_id"`
	CustomerID int64        `gorm:"not null;index" json:"customer_id"`
	OrderMonth string       `gorm:"type:varchar(7);not null;index" json:"order_month"`
	OrderDate  time.Time    `gorm:"not null" json:"order_date"`
	Status     string       `gorm:"type:text;not null" json:"status"`

	LineCount  int   `gorm:"not null" json:"line_count"`
	UnitsCount int64 `gorm:"not null" json:"units_count"`

	GrossRevenue    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"gross_revenue"`
	AmountPaidTotal decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_paid_total"`
	PaymentStatus   string          `gorm:"type:text" json:"payment_status,omitempty"`
	PaymentMethod   string          `gorm:"type:text" json:"payment_method,omitempty"`
	AttemptCount    int             `gorm:"not null" json:"attempt_count"`
	UnpaidOrder     bool            `gorm:"not null" json:"unpaid_order"`
	CancelAtPayment bool            `gorm:"not null" json:"cancel_at_payment"`

	HasReturns              bool            `gorm:"not null" json:"has_returns"`
	RefundsFromReturns      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"refunds_from_returns"`
	RefundsFromCancellation decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"refunds_from_cancellation"`
	TotalRefunds            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_refunds"`
	NetRevenue              decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"net_revenue"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrderFact) TableName() string { return "order_facts" }

// LineFact is the line-grain record mirroring OrderFact semantics.
type LineFact struct {
	OrderItemID int64        `gorm:"primaryKey;autoIncrement:false" json:"order_item_id"`
	OrderID     int64        `gorm:"not null;index" json:"order_id"`
	RunID       snowflake.ID `gorm:"not null;index" json:"run_id"`
	ProductID   int64        `gorm:"not null" json:"product_id"`

	ProductCategory string `gorm:"type:text" json:"product_category,omitempty"`
	CustomerCountry string `gorm:"type:text" json:"customer_country,omitempty"`

	Quantity  int64           `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`

	GrossRevenue decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"gross_revenue"`
	AmountPaid   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_paid"`

	Returned                bool            `gorm:"not null" json:"returned"`
	ReturnCount             int             `gorm:"not null" json:"return_count"`
	CancelAtPayment         bool            `gorm:"not null" json:"cancel_at_payment"`
	RefundsFromReturns      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"refunds_from_returns"`
	RefundsFromCancellation decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"refunds_from_cancellation"`
	TotalRefunds            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_refunds"`
	NetRevenue              decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"net_revenue"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (LineFact) TableName() string { return "order_line_facts" }

// Finding is one data quality observation from a run. Findings accumulate
// per run rather than being replaced, so quality history survives across
// recomputations.
type Finding struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	RunID      snowflake.ID      `gorm:"not null;index" json:"run_id"`
	Code       string            `gorm:"type:text;not null;index" json:"code"`
	Severity   string            `gorm:"type:text;not null" json:"severity"`
	EntityType string            `gorm:"type:text;not null" json:"entity_type"`
	EntityID   int64             `gorm:"not null" json:"entity_id"`
	Detail     string            `gorm:"type:text" json:"detail,omitempty"`
	Context    datatypes.JSONMap `gorm:"type:json" json:"context,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Finding) TableName() string { return "data_quality_findings" }

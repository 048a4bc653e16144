// Package domain mirrors the upstream commerce schema the engine reads.
// Column names are pinned because the tables belong to the store, not to
// the engine, and must never drift with gorm naming changes.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order status codes the engine interprets. Other codes pass through
// untouched; only the terminal subset changes reconciliation behaviour.
const (
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// Payment status codes. paid, failed and refunded are terminal.
const (
	PaymentStatusPaid     = "paid"
	PaymentStatusPending  = "pending"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Order is one row of the upstream orders table.
type Order struct {
	OrderID       int64     `gorm:"column:order_id;primaryKey;autoIncrement:false"`
	CustomerID    int64     `gorm:"column:customer_id"`
	OrderDate     time.Time `gorm:"column:order_date"`
	OrderStatusID int64     `gorm:"column:order_status_id"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// OrderLine is one row of the upstream order_items table.
type OrderLine struct {
	OrderItemID int64           `gorm:"column:order_item_id;primaryKey;autoIncrement:false"`
	OrderID     int64           `gorm:"column:order_id"`
	ProductID   int64           `gorm:"column:product_id"`
	Quantity    int64           `gorm:"column:quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:decimal(10,2)"`
}

// TableName sets the database table name.
func (OrderLine) TableName() string { return "order_items" }

// Gross is the line amount before any refund: quantity times unit price.
func (l OrderLine) Gross() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// PaymentAttempt is one row of the upstream payments table. An order may
// carry several attempts; attempt_no orders them within the order.
type PaymentAttempt struct {
	PaymentID       int64           `gorm:"column:payment_id;primaryKey;autoIncrement:false"`
	OrderID         int64           `gorm:"column:order_id"`
	AttemptNo       int             `gorm:"column:attempt_no"`
	PaymentDate     time.Time       `gorm:"column:payment_date"`
	AmountPaid      decimal.Decimal `gorm:"column:amount_paid;type:decimal(10,2)"`
	PaymentMethodID int64           `gorm:"column:payment_method_id"`
	PaymentStatusID int64           `gorm:"column:payment_status_id"`
}

// TableName sets the database table name.
func (PaymentAttempt) TableName() string { return "payments" }

// Return is one row of the upstream product_returns table. Returns attach
// to order lines, never directly to orders.
type Return struct {
	ReturnID       int64           `gorm:"column:return_id;primaryKey;autoIncrement:false"`
	OrderItemID    int64           `gorm:"column:order_item_id"`
	ReturnDate     time.Time       `gorm:"column:return_date"`
	RefundAmount   decimal.Decimal `gorm:"column:refund_amount;type:decimal(10,2)"`
	ReturnReasonID int64           `gorm:"column:return_reason_id"`
}

// TableName sets the database table name.
func (Return) TableName() string { return "product_returns" }

// Customer carries the dimension columns the engine needs.
type Customer struct {
	CustomerID int64 `gorm:"column:customer_id;primaryKey;autoIncrement:false"`
	CountryID  int64 `gorm:"column:country_id"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }

// Product carries the dimension columns the engine needs.
type Product struct {
	ProductID  int64 `gorm:"column:product_id;primaryKey;autoIncrement:false"`
	CategoryID int64 `gorm:"column:category_id"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }

// Category is one row of the upstream product_categories table.
type Category struct {
	CategoryID int64  `gorm:"column:category_id;primaryKey;autoIncrement:false"`
	Name       string `gorm:"column:name"`
}

// TableName sets the database table name.
func (Category) TableName() string { return "product_categories" }

// Country is one row of the upstream countries table.
type Country struct {
	CountryID int64  `gorm:"column:country_id;primaryKey;autoIncrement:false"`
	ISOCode   string `gorm:"column:iso_code"`
}

// TableName sets the database table name.
func (Country) TableName() string { return "countries" }

// OrderStatus maps an order status id to its code.
type OrderStatus struct {
	OrderStatusID int64  `gorm:"column:order_status_id;primaryKey;autoIncrement:false"`
	Code          string `gorm:"column:code"`
}

// TableName sets the database table name.
func (OrderStatus) TableName() string { return "order_status" }

// PaymentMethod maps a payment method id to its code.
type PaymentMethod struct {
	PaymentMethodID int64  `gorm:"column:payment_method_id;primaryKey;autoIncrement:false"`
	Code            string `gorm:"column:code"`
}

// TableName sets the database table name.
func (PaymentMethod) TableName() string { return "payment_methods" }

// PaymentStatus maps a payment status id to its code.
type PaymentStatus struct {
	PaymentStatusID int64  `gorm:"column:payment_status_id;primaryKey;autoIncrement:false"`
	Code            string `gorm:"column:code"`
}

// TableName sets the database table name.
func (PaymentStatus) TableName() string { return "payment_status" }

// ReturnReason maps a return reason id to its code.
type ReturnReason struct {
	ReturnReasonID int64  `gorm:"column:return_reason_id;primaryKey;autoIncrement:false"`
	Code           string `gorm:"column:code"`
}

// TableName sets the database table name.
func (ReturnReason) TableName() string { return "return_reasons" }

// Snapshot is one consistent read of every source table. All reconciliation
// math runs against a snapshot, never against live queries, so a run sees a
// single point-in-time view of the store.
type Snapshot struct {
	Orders     []Order
	Lines      []OrderLine
	Attempts   []PaymentAttempt
	Returns    []Return
	Customers  []Customer
	Products   []Product
	Categories []Category
	Countries  []Country

	OrderStatuses   []OrderStatus
	PaymentMethods  []PaymentMethod
	PaymentStatuses []PaymentStatus
	ReturnReasons   []ReturnReason

	LoadedAt time.Time
}

// Package catalog resolves dimension and lookup references for a snapshot.
package catalog

import (
	"github.com/storelytics/tally/internal/source/domain"
)

// Index answers the dimension joins for one snapshot: status ids to codes,
// products to category names, customers to country ISO codes. Lookups
// report ok=false when the chain breaks anywhere along the way (a missing
// product row counts the same as a product pointing at a missing category);
// callers decide whether that becomes a data quality finding.
type Index struct {
	orderStatus   map[int64]string
	paymentMethod map[int64]string
	paymentStatus map[int64]string
	returnReason  map[int64]string

	productCategory map[int64]string
	customerCountry map[int64]string
}

// BuildIndex flattens the snapshot dimension tables into lookup maps.
func BuildIndex(snap *domain.Snapshot) *Index {
	ix := &Index{
		orderStatus:     make(map[int64]string, len(snap.OrderStatuses)),
		paymentMethod:   make(map[int64]string, len(snap.PaymentMethods)),
		paymentStatus:   make(map[int64]string, len(snap.PaymentStatuses)),
		returnReason:    make(map[int64]string, len(snap.ReturnReasons)),
		productCategory: make(map[int64]string, len(snap.Products)),
		customerCountry: make(map[int64]string, len(snap.Customers)),
	}

	for _, row := range snap.OrderStatuses {
		ix.orderStatus[row.OrderStatusID] = row.Code
	}
	for _, row := range snap.PaymentMethods {
		ix.paymentMethod[row.PaymentMethodID] = row.Code
	}
	for _, row := range snap.PaymentStatuses {
		ix.paymentStatus[row.PaymentStatusID] = row.Code
	}
	for _, row := range snap.ReturnReasons {
		ix.returnReason[row.ReturnReasonID] = row.Code
	}

	categories := make(map[int64]string, len(snap.Categories))
	for _, row := range snap.Categories {
		categories[row.CategoryID] = row.Name
	}
	for _, row := range snap.Products {
		if name, ok := categories[row.CategoryID]; ok {
			ix.productCategory[row.ProductID] = name
		}
	}

	countries := make(map[int64]string, len(snap.Countries))
	for _, row := range snap.Countries {
		countries[row.CountryID] = row.ISOCode
	}
	for _, row := range snap.Customers {
		if iso, ok := countries[row.CountryID]; ok {
			ix.customerCountry[row.CustomerID] = iso
		}
	}

	return ix
}

// OrderStatus resolves an order status id to its code.
func (ix *Index) OrderStatus(id int64) (string, bool) {
	code, ok := ix.orderStatus[id]
	return code, ok
}

// PaymentMethod resolves a payment method id to its code.
func (ix *Index) PaymentMethod(id int64) (string, bool) {
	code, ok := ix.paymentMethod[id]
	return code, ok
}

// PaymentStatus resolves a payment status id to its code.
func (ix *Index) PaymentStatus(id int64) (string, bool) {
	code, ok := ix.paymentStatus[id]
	return code, ok
}

// ReturnReason resolves a return reason id to its code.
func (ix *Index) ReturnReason(id int64) (string, bool) {
	code, ok := ix.returnReason[id]
	return code, ok
}

// ProductCategory resolves a product id to its category name.
func (ix *Index) ProductCategory(productID int64) (string, bool) {
	name, ok := ix.productCategory[productID]
	return name, ok
}

// CustomerCountry resolves a customer id to its country ISO code.
func (ix *Index) CustomerCountry(customerID int64) (string, bool) {
	iso, ok := ix.customerCountry[customerID]
	return iso, ok
}

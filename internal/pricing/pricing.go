// Package pricing computes sale totals. It is pure: callers supply the
// product snapshots and receive per-line detail plus aggregates, so the same
// math runs identically inside a database transaction or against the
// in-memory store.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tokosakti/backend/internal/domain"
	"tokosakti/backend/internal/store"
)

var oneHundred = decimal.NewFromInt(100)

// LineDetail is the computed form of one sale line, rounded to two decimals
// at the storage boundary.
type LineDetail struct {
	ProductID      int64
	ProductName    string
	Quantity       int
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	LineTotal      decimal.Decimal
	Subtotal       decimal.Decimal
}

type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
	Lines          []LineDetail
}

// Compute derives per-line and aggregate totals for the given items.
// Each line: subtotal = unitPrice * qty, tax = (subtotal - lineDiscount) *
// taxRate / 100, lineTotal = subtotal - lineDiscount + tax. The sale-level
// discount is subtracted from the undiscounted subtotal sum; line and sale
// discounts are independent and each applied once.
//
// Tax is computed in full precision and rounded per line; aggregates are
// sums of the rounded values so stored lines always reconstruct them.
// Stock is validated here (inside the caller's transaction scope) so a
// sale can never oversell: quantity above the product's current stock
// fails with store.ErrInsufficientStock.
func Compute(items []domain.SaleItemInput, saleDiscount decimal.Decimal, products map[int64]domain.Product) (Totals, error) {
	totals := Totals{
		Subtotal:       decimal.Zero,
		DiscountAmount: saleDiscount.Round(2),
		TaxAmount:      decimal.Zero,
		Lines:          make([]LineDetail, 0, len(items)),
	}

	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return Totals{}, fmt.Errorf("%w: product %d", store.ErrNotFound, item.ProductID)
		}
		if product.StockQuantity < item.Quantity {
			return Totals{}, fmt.Errorf("%w: product %d has %d, requested %d",
				store.ErrInsufficientStock, item.ProductID, product.StockQuantity, item.Quantity)
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		lineSubtotal := item.UnitPrice.Mul(qty).Round(2)
		afterDiscount := lineSubtotal.Sub(item.DiscountAmount)
		lineTax := afterDiscount.Mul(product.TaxRate).Div(oneHundred).Round(2)
		lineTotal := afterDiscount.Add(lineTax).Round(2)

		totals.Lines = append(totals.Lines, LineDetail{
			ProductID:      item.ProductID,
			ProductName:    product.Name,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice.Round(2),
			DiscountAmount: item.DiscountAmount.Round(2),
			TaxAmount:      lineTax,
			LineTotal:      lineTotal,
			Subtotal:       lineSubtotal,
		})

		totals.Subtotal = totals.Subtotal.Add(lineSubtotal)
		totals.TaxAmount = totals.TaxAmount.Add(lineTax)
	}

	totals.TotalAmount = totals.Subtotal.Sub(totals.DiscountAmount).Add(totals.TaxAmount).Round(2)
	return totals, nil
}

// RecomputeTotal re-derives a sale's total after a discount-only change.
// Valid only while line items are unchanged: subtotal and taxAmount are the
// stored aggregates and the new total is subtotal - discount + tax.
func RecomputeTotal(subtotal, taxAmount, discount decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(discount).Add(taxAmount).Round(2)
}

package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tokosakti/backend/internal/domain"
	"tokosakti/backend/internal/store"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func product(id int64, price string, taxRate string, stock int) domain.Product {
	return domain.Product{ID: id, Name: "product", UnitPrice: dec(price), TaxRate: dec(taxRate), StockQuantity: stock, Active: true}
}

func TestComputeSingleLine(t *testing.T) {
	products := map[int64]domain.Product{1: product(1, "100", "10", 10)}
	items := []domain.SaleItemInput{{ProductID: 1, Quantity: 3, UnitPrice: dec("100")}}

	totals, err := Compute(items, decimal.Zero, products)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !totals.Subtotal.Equal(dec("300")) {
		t.Fatalf("subtotal = %s, want 300", totals.Subtotal)
	}
	if !totals.TaxAmount.Equal(dec("30")) {
		t.Fatalf("tax = %s, want 30", totals.TaxAmount)
	}
	if !totals.TotalAmount.Equal(dec("330")) {
		t.Fatalf("total = %s, want 330", totals.TotalAmount)
	}
	if len(totals.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(totals.Lines))
	}
	line := totals.Lines[0]
	if !line.Subtotal.Equal(dec("300")) || !line.TaxAmount.Equal(dec("30")) || !line.LineTotal.Equal(dec("330")) {
		t.Fatalf("line = subtotal %s tax %s total %s", line.Subtotal, line.TaxAmount, line.LineTotal)
	}
}

func TestComputeLineAndSaleDiscountsAreIndependent(t *testing.T) {
	products := map[int64]domain.Product{1: product(1, "100", "10", 10)}
	items := []domain.SaleItemInput{{ProductID: 1, Quantity: 2, UnitPrice: dec("100"), DiscountAmount: dec("20")}}

	totals, err := Compute(items, dec("30"), products)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// Line: subtotal 200, tax on 180 = 18, line total 198.
	line := totals.Lines[0]
	if !line.TaxAmount.Equal(dec("18")) {
		t.Fatalf("line tax = %s, want 18", line.TaxAmount)
	}
	if !line.LineTotal.Equal(dec("198")) {
		t.Fatalf("line total = %s, want 198", line.LineTotal)
	}
	// Sale-level discount comes off the undiscounted subtotal sum:
	// 200 - 30 + 18 = 188.
	if !totals.TotalAmount.Equal(dec("188")) {
		t.Fatalf("total = %s, want 188", totals.TotalAmount)
	}
}

func TestComputeAggregatesReconstructFromLines(t *testing.T) {
	products := map[int64]domain.Product{
		1: product(1, "19.99", "11", 50),
		2: product(2, "3.33", "0", 50),
	}
	items := []domain.SaleItemInput{
		{ProductID: 1, Quantity: 3, UnitPrice: dec("19.99"), DiscountAmount: dec("1.50")},
		{ProductID: 2, Quantity: 7, UnitPrice: dec("3.33")},
	}

	totals, err := Compute(items, dec("2.00"), products)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	sumSubtotal := decimal.Zero
	sumTax := decimal.Zero
	for _, line := range totals.Lines {
		sumSubtotal = sumSubtotal.Add(line.Subtotal)
		sumTax = sumTax.Add(line.TaxAmount)
	}
	if !sumSubtotal.Equal(totals.Subtotal) {
		t.Fatalf("line subtotals sum %s != aggregate %s", sumSubtotal, totals.Subtotal)
	}
	if !sumTax.Equal(totals.TaxAmount) {
		t.Fatalf("line taxes sum %s != aggregate %s", sumTax, totals.TaxAmount)
	}
	want := totals.Subtotal.Sub(totals.DiscountAmount).Add(totals.TaxAmount)
	if !totals.TotalAmount.Equal(want) {
		t.Fatalf("total %s != subtotal - discount + tax %s", totals.TotalAmount, want)
	}
}

func TestComputeInsufficientStock(t *testing.T) {
	products := map[int64]domain.Product{1: product(1, "100", "10", 5)}
	items := []domain.SaleItemInput{{ProductID: 1, Quantity: 10, UnitPrice: dec("100")}}

	_, err := Compute(items, decimal.Zero, products)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestComputeUnknownProduct(t *testing.T) {
	items := []domain.SaleItemInput{{ProductID: 42, Quantity: 1, UnitPrice: dec("100")}}

	_, err := Compute(items, decimal.Zero, map[int64]domain.Product{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecomputeTotal(t *testing.T) {
	got := RecomputeTotal(dec("300"), dec("30"), dec("50"))
	if !got.Equal(dec("280")) {
		t.Fatalf("recomputed total = %s, want 280", got)
	}
}

// Package ledger centralizes the stock arithmetic implied by inventory
// transaction types. Every write path (create, update, delete, sale effects)
// goes through Apply so the sign conventions live in exactly one place.
package ledger

import "tokosakti/backend/internal/domain"

// Entry is one inventory movement in a product's history, ordered by
// creation time ascending.
type Entry struct {
	ID              int64
	TransactionType domain.TransactionType
	Quantity        int
}

// Apply maps (type, quantity, previousStock) to the resulting stock level.
// Adjustment sets an absolute value; purchase/return add; damage/transfer
// subtract. The result may be negative; callers decide whether to reject
// or clamp.
func Apply(t domain.TransactionType, quantity int, previousStock int) int {
	switch t {
	case domain.TransactionAdjustment:
		return quantity
	case domain.TransactionPurchase, domain.TransactionReturn:
		return previousStock + quantity
	case domain.TransactionDamage, domain.TransactionTransfer:
		return previousStock - quantity
	}
	return previousStock
}

// Reverse undoes a non-adjustment movement by applying its inverse delta to
// the current stock. Adjustment reversals are ambiguous without history and
// must use Replay instead.
func Reverse(t domain.TransactionType, quantity int, currentStock int) int {
	switch t {
	case domain.TransactionPurchase, domain.TransactionReturn:
		return currentStock - quantity
	case domain.TransactionDamage, domain.TransactionTransfer:
		return currentStock + quantity
	}
	return currentStock
}

// Replay folds a product's full movement history from zero, skipping the
// entry with excludeID. The result is the stock level implied by history
// with that entry removed, which is the only reliable way to undo an
// adjustment since adjustments are absolute sets rather than deltas.
func Replay(entries []Entry, excludeID int64) int {
	stock := 0
	for _, e := range entries {
		if e.ID == excludeID {
			continue
		}
		stock = Apply(e.TransactionType, e.Quantity, stock)
	}
	return stock
}

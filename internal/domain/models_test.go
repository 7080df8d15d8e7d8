package domain

import "testing"

func TestPaymentStatusTransitions(t *testing.T) {
	cases := []struct {
		from PaymentStatus
		to   PaymentStatus
		ok   bool
	}{
		{PaymentStatusPending, PaymentStatusPartial, true},
		{PaymentStatusPending, PaymentStatusPaid, true},
		{PaymentStatusPending, PaymentStatusCancelled, true},
		{PaymentStatusPartial, PaymentStatusPartial, true},
		{PaymentStatusPartial, PaymentStatusPaid, true},
		{PaymentStatusPartial, PaymentStatusCancelled, true},
		{PaymentStatusPaid, PaymentStatusCancelled, true},
		{PaymentStatusPaid, PaymentStatusPartial, false},
		{PaymentStatusPaid, PaymentStatusPending, false},
		{PaymentStatusCancelled, PaymentStatusPending, false},
		{PaymentStatusCancelled, PaymentStatusPaid, false},
		{PaymentStatusCancelled, PaymentStatusCancelled, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Errorf("%s -> %s = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestPaymentStatusEditable(t *testing.T) {
	if !PaymentStatusPending.Editable() || !PaymentStatusPartial.Editable() {
		t.Fatalf("pending and partial sales must stay editable")
	}
	if PaymentStatusPaid.Editable() || PaymentStatusCancelled.Editable() {
		t.Fatalf("paid and cancelled sales must not be editable")
	}
}

func TestPaymentStatusValid(t *testing.T) {
	for _, s := range []PaymentStatus{
		PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusCancelled,
	} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if PaymentStatus("refunded").Valid() {
		t.Errorf("unknown status accepted")
	}
}

func TestTransactionTypeValid(t *testing.T) {
	for _, tt := range []TransactionType{
		TransactionAdjustment, TransactionPurchase, TransactionReturn,
		TransactionDamage, TransactionTransfer,
	} {
		if !tt.Valid() {
			t.Errorf("%s should be valid", tt)
		}
	}
	if TransactionType("sale").Valid() {
		t.Errorf("unknown type accepted")
	}
	if TransactionType("").Valid() {
		t.Errorf("empty type accepted")
	}
}

func TestValidationErrorAccumulates(t *testing.T) {
	verr := &ValidationError{}
	verr.Add("items", "is required")
	verr.Add("discount_amount", "must not be negative")
	if !verr.HasErrors() {
		t.Fatalf("expected errors")
	}
	if len(verr.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(verr.Fields))
	}
	if verr.Error() == "" {
		t.Fatalf("expected non-empty message")
	}
}

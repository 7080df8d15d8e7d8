package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	StockQuantity int             `json:"stock_quantity"`
	MinStockLevel int             `json:"min_stock_level"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// paymentTransitions is the validated state machine for a sale's payment
// status. Paid sales can only move to cancelled; cancelled is terminal.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPartial, PaymentStatusPaid, PaymentStatusCancelled},
	PaymentStatusPartial: {PaymentStatusPartial, PaymentStatusPaid, PaymentStatusCancelled},
	PaymentStatusPaid:    {PaymentStatusCancelled},
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusCancelled:
		return true
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Editable reports whether the sale's scalar fields and items may still be
// changed. Paid sales are immutable and cancelled is terminal.
func (s PaymentStatus) Editable() bool {
	return s == PaymentStatusPending || s == PaymentStatusPartial
}

type Sale struct {
	ID             int64           `json:"id"`
	InvoiceNo      string          `json:"invoice_no"`
	CustomerID     *int64          `json:"customer_id,omitempty"`
	CustomerName   string          `json:"customer_name,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []SaleItem      `json:"items"`
}

type SaleItem struct {
	ID             int64           `json:"id"`
	SaleID         int64           `json:"sale_id"`
	ProductID      int64           `json:"product_id"`
	ProductName    string          `json:"product_name,omitempty"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	LineTotal      decimal.Decimal `json:"line_total"`
}

type TransactionType string

const (
	TransactionAdjustment TransactionType = "adjustment"
	TransactionPurchase   TransactionType = "purchase"
	TransactionReturn     TransactionType = "return"
	TransactionDamage     TransactionType = "damage"
	TransactionTransfer   TransactionType = "transfer"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionAdjustment, TransactionPurchase, TransactionReturn, TransactionDamage, TransactionTransfer:
		return true
	}
	return false
}

type InventoryTransaction struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name,omitempty"`
	TransactionType TransactionType `json:"transaction_type"`
	Quantity        int             `json:"quantity"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	ReferenceID     *int64          `json:"reference_id,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Payment struct {
	ID             int64           `json:"id"`
	SaleID         int64           `json:"sale_id"`
	PaymentMethod  string          `json:"payment_method"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	PaymentDate    time.Time       `json:"payment_date"`
}

// SaleItemInput is one requested line of a sale create/update. Unit price is
// taken from the request (a point-of-sale may override the catalog price);
// tax is always derived from the product's current tax rate.
type SaleItemInput struct {
	ProductID      int64           `json:"product_id" validate:"required,gt=0"`
	Quantity       int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

type SaleCreateRequest struct {
	CustomerID     *int64          `json:"customer_id,omitempty"`
	Items          []SaleItemInput `json:"items" validate:"required,min=1,dive"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// SaleUpdateRequest patches a sale. A nil Items slice leaves the line items
// untouched; a non-nil slice replaces them wholesale.
type SaleUpdateRequest struct {
	CustomerID     *int64           `json:"customer_id,omitempty"`
	Items          []SaleItemInput  `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	DiscountAmount *decimal.Decimal `json:"discount_amount,omitempty"`
	PaymentMethod  *string          `json:"payment_method,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
}

type InventoryTransactionCreateRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	TransactionType TransactionType `json:"transaction_type" validate:"required"`
	Quantity        int             `json:"quantity" validate:"required,gt=0"`
	ReferenceType   string          `json:"reference_type,omitempty"`
	ReferenceID     *int64          `json:"reference_id,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

type InventoryTransactionUpdateRequest struct {
	TransactionType *TransactionType `json:"transaction_type,omitempty"`
	Quantity        *int             `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Notes           *string          `json:"notes,omitempty"`
}

type PaymentCreateRequest struct {
	SaleID         int64           `json:"sale_id" validate:"required,gt=0"`
	PaymentMethod  string          `json:"payment_method" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

type SaleListFilter struct {
	Page          int
	Limit         int
	StartDate     *time.Time
	EndDate       *time.Time
	CustomerID    *int64
	PaymentStatus PaymentStatus
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Total int64  `json:"total"`
}

type InventoryTransactionFilter struct {
	ProductID       *int64
	TransactionType TransactionType
	Limit           int
}

type SalesSummaryStatusRow struct {
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Sales         int64           `json:"sales"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

type SalesSummary struct {
	StartDate      string                  `json:"start_date"`
	EndDate        string                  `json:"end_date"`
	Sales          int64                   `json:"sales"`
	GrossAmount    decimal.Decimal         `json:"gross_amount"`
	DiscountAmount decimal.Decimal         `json:"discount_amount"`
	TaxAmount      decimal.Decimal         `json:"tax_amount"`
	NetAmount      decimal.Decimal         `json:"net_amount"`
	ByStatus       []SalesSummaryStatusRow `json:"by_status"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

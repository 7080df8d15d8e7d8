package store

import (
	"context"
	"errors"
	"time"

	"tokosakti/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidState      = errors.New("invalid state")
)

// Repository is the persistence boundary. Implementations must run every
// multi-step mutation (sale create/update/cancel, inventory transaction
// create/update/delete, payment create) as one atomic unit: on any failure
// no partial effect (item rows without a stock decrement, a status flip
// without a payment row) is ever observable.
type Repository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	// ListLowStock returns active products at or below the threshold.
	// A nil threshold compares each product against its own min stock level.
	ListLowStock(ctx context.Context, threshold *int) ([]domain.Product, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)

	CreateSale(ctx context.Context, req domain.SaleCreateRequest, createdBy string) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, int64, error)
	UpdateSale(ctx context.Context, id int64, req domain.SaleUpdateRequest) (*domain.Sale, error)
	CancelSale(ctx context.Context, id int64) (*domain.Sale, error)

	ListInventoryTransactions(ctx context.Context, filter domain.InventoryTransactionFilter) ([]domain.InventoryTransaction, error)
	CreateInventoryTransaction(ctx context.Context, req domain.InventoryTransactionCreateRequest, createdBy string) (*domain.InventoryTransaction, error)
	UpdateInventoryTransaction(ctx context.Context, id int64, req domain.InventoryTransactionUpdateRequest) (*domain.InventoryTransaction, error)
	DeleteInventoryTransaction(ctx context.Context, id int64) (*domain.InventoryTransaction, error)

	ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error)
	CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (*domain.Payment, error)

	GetSalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

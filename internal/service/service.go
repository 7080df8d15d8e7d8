package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"tokosakti/backend/internal/cache"
	"tokosakti/backend/internal/domain"
	"tokosakti/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	lowStock    cache.LowStockCache
	lowStockTTL time.Duration
	validate    *validator.Validate
	log         *logrus.Logger
}

func New(repo store.Repository, lowStock cache.LowStockCache, logger *logrus.Logger, lowStockTTL time.Duration) *Service {
	if lowStock == nil {
		lowStock = cache.NoopLowStockCache{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if lowStockTTL <= 0 {
		lowStockTTL = 30 * time.Second
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Service{
		repo:        repo,
		lowStock:    lowStock,
		lowStockTTL: lowStockTTL,
		validate:    v,
		log:         logger,
	}
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.Sale, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	verr := domain.ValidationError{}
	if req.DiscountAmount.IsNegative() {
		verr.Add("discount_amount", "must not be negative")
	}
	for i, item := range req.Items {
		if item.UnitPrice.IsNegative() {
			verr.Add(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
		if item.DiscountAmount.IsNegative() {
			verr.Add(fmt.Sprintf("items[%d].discount_amount", i), "must not be negative")
		}
	}
	if verr.HasErrors() {
		return nil, &verr
	}

	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.Notes = strings.TrimSpace(req.Notes)

	sale, err := s.repo.CreateSale(ctx, req, s.actorUsername(ctx))
	if err != nil {
		return nil, err
	}
	s.invalidateLowStock(ctx)
	s.logAudit(ctx, "sale_create", "sale", fmt.Sprintf("%d", sale.ID),
		fmt.Sprintf("invoice=%s,total=%s,items=%d", sale.InvoiceNo, sale.TotalAmount.StringFixed(2), len(sale.Items)))
	return sale, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleListFilter) (domain.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return domain.SaleListResponse{}, domain.NewValidationError("paymentStatus", "unknown payment status")
	}

	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{
		Sales: sales,
		Page:  filter.Page,
		Limit: filter.Limit,
		Total: total,
	}, nil
}

func (s *Service) UpdateSale(ctx context.Context, id int64, req domain.SaleUpdateRequest) (*domain.Sale, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	verr := domain.ValidationError{}
	if req.DiscountAmount != nil && req.DiscountAmount.IsNegative() {
		verr.Add("discount_amount", "must not be negative")
	}
	for i, item := range req.Items {
		if item.UnitPrice.IsNegative() {
			verr.Add(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
		if item.DiscountAmount.IsNegative() {
			verr.Add(fmt.Sprintf("items[%d].discount_amount", i), "must not be negative")
		}
	}
	if verr.HasErrors() {
		return nil, &verr
	}

	sale, err := s.repo.UpdateSale(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if req.Items != nil {
		s.invalidateLowStock(ctx)
	}
	s.logAudit(ctx, "sale_update", "sale", fmt.Sprintf("%d", sale.ID),
		fmt.Sprintf("invoice=%s,total=%s", sale.InvoiceNo, sale.TotalAmount.StringFixed(2)))
	return sale, nil
}

func (s *Service) CancelSale(ctx context.Context, id int64) (*domain.Sale, error) {
	sale, err := s.repo.CancelSale(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidateLowStock(ctx)
	s.logAudit(ctx, "sale_cancel", "sale", fmt.Sprintf("%d", sale.ID),
		fmt.Sprintf("invoice=%s,restored_items=%d", sale.InvoiceNo, len(sale.Items)))
	return sale, nil
}

func (s *Service) ListInventoryTransactions(ctx context.Context, filter domain.InventoryTransactionFilter) ([]domain.InventoryTransaction, error) {
	if filter.TransactionType != "" && !filter.TransactionType.Valid() {
		return nil, domain.NewValidationError("transactionType", "unknown transaction type")
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.repo.ListInventoryTransactions(ctx, filter)
}

func (s *Service) CreateInventoryTransaction(ctx context.Context, req domain.InventoryTransactionCreateRequest) (*domain.InventoryTransaction, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if !req.TransactionType.Valid() {
		return nil, domain.NewValidationError("transaction_type", "unknown transaction type")
	}

	req.Notes = strings.TrimSpace(req.Notes)
	req.ReferenceType = strings.TrimSpace(req.ReferenceType)

	created, err := s.repo.CreateInventoryTransaction(ctx, req, s.actorUsername(ctx))
	if err != nil {
		return nil, err
	}
	s.invalidateLowStock(ctx)
	s.logAudit(ctx, "inventory_create", "inventory_transaction", fmt.Sprintf("%d", created.ID),
		fmt.Sprintf("product=%d,type=%s,qty=%d", created.ProductID, created.TransactionType, created.Quantity))
	return created, nil
}

func (s *Service) UpdateInventoryTransaction(ctx context.Context, id int64, req domain.InventoryTransactionUpdateRequest) (*domain.InventoryTransaction, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if req.TransactionType != nil && !req.TransactionType.Valid() {
		return nil, domain.NewValidationError("transaction_type", "unknown transaction type")
	}

	updated, err := s.repo.UpdateInventoryTransaction(ctx, id, req)
	if err != nil {
		return nil, err
	}
	s.invalidateLowStock(ctx)
	s.logAudit(ctx, "inventory_update", "inventory_transaction", fmt.Sprintf("%d", updated.ID),
		fmt.Sprintf("product=%d,type=%s,qty=%d", updated.ProductID, updated.TransactionType, updated.Quantity))
	return updated, nil
}

func (s *Service) DeleteInventoryTransaction(ctx context.Context, id int64) (*domain.InventoryTransaction, error) {
	deleted, err := s.repo.DeleteInventoryTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidateLowStock(ctx)
	s.logAudit(ctx, "inventory_delete", "inventory_transaction", fmt.Sprintf("%d", deleted.ID),
		fmt.Sprintf("product=%d,type=%s,qty=%d", deleted.ProductID, deleted.TransactionType, deleted.Quantity))
	return deleted, nil
}

func (s *Service) ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error) {
	return s.repo.ListPayments(ctx, saleID)
}

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (*domain.Payment, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, domain.NewValidationError("amount", "must be greater than 0")
	}

	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.Notes = strings.TrimSpace(req.Notes)

	payment, err := s.repo.CreatePayment(ctx, req)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "payment_create", "payment", fmt.Sprintf("%d", payment.ID),
		fmt.Sprintf("sale=%d,amount=%s,method=%s", payment.SaleID, payment.Amount.StringFixed(2), payment.PaymentMethod))
	return payment, nil
}

// LowStock returns active products at or below the threshold, or below
// their own min stock level when no threshold is given. Results are cached
// briefly since dashboards poll this endpoint.
func (s *Service) LowStock(ctx context.Context, threshold *int) ([]domain.Product, error) {
	if threshold != nil && *threshold < 0 {
		return nil, domain.NewValidationError("threshold", "must not be negative")
	}

	key := "min-level"
	if threshold != nil {
		key = fmt.Sprintf("threshold:%d", *threshold)
	}
	if cached, ok, err := s.lowStock.Get(ctx, key); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.log.WithError(err).Warn("low stock cache read failed")
	}

	products, err := s.repo.ListLowStock(ctx, threshold)
	if err != nil {
		return nil, err
	}
	if err := s.lowStock.Set(ctx, key, products, s.lowStockTTL); err != nil {
		s.log.WithError(err).Warn("low stock cache write failed")
	}
	return products, nil
}

func (s *Service) SalesSummary(ctx context.Context, startDate string, endDate string) (domain.SalesSummary, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30).Truncate(24 * time.Hour)
	to := now

	if startDate != "" {
		parsed, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return domain.SalesSummary{}, domain.NewValidationError("startDate", "must be YYYY-MM-DD")
		}
		from = parsed
	}
	if endDate != "" {
		parsed, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return domain.SalesSummary{}, domain.NewValidationError("endDate", "must be YYYY-MM-DD")
		}
		to = parsed.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	if to.Before(from) {
		return domain.SalesSummary{}, domain.NewValidationError("endDate", "must not be before startDate")
	}

	return s.repo.GetSalesSummary(ctx, from, to)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, domain.NewValidationError("date", "must be YYYY-MM-DD")
		}
		day = parsed
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, day, day.AddDate(0, 0, 1).Add(-time.Nanosecond), limit)
}

func (s *Service) validateStruct(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := domain.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(fe), messageForTag(fe))
	}
	return &verr
}

// fieldPath strips the root struct name from the validator namespace so
// clients see "items[0].quantity" rather than "SaleCreateRequest.Items[0].Quantity".
func fieldPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	return path
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func (s *Service) actorUsername(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

func (s *Service) invalidateLowStock(ctx context.Context) {
	if err := s.lowStock.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("low stock cache invalidation failed")
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + entityID,
		}).Warn("failed to write audit log")
	}
}

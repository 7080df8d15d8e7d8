package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tokosakti/backend/internal/domain"
	"tokosakti/backend/internal/ledger"
	"tokosakti/backend/internal/pricing"
	"tokosakti/backend/internal/store"
	"tokosakti/backend/internal/xid"
)

// Store is an in-memory implementation of store.Repository used for tests
// and for running the backend without PostgreSQL. A single mutex stands in
// for the database's transaction isolation: every mutation holds it for the
// whole read-then-write sequence, so the atomicity rules match the SQL
// implementation.
type Store struct {
	mu              sync.RWMutex
	products        map[int64]domain.Product
	customers       map[int64]domain.Customer
	sales           map[int64]*domain.Sale
	paymentsBySale  map[int64][]domain.Payment
	movements       []domain.InventoryTransaction
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount

	productSeq  int64
	customerSeq int64
	saleSeq     int64
	itemSeq     int64
	movementSeq int64
	paymentSeq  int64
	invoiceSeq  map[string]int64
}

func New() *Store {
	return &Store{
		products:        make(map[int64]domain.Product),
		customers:       make(map[int64]domain.Customer),
		sales:           make(map[int64]*domain.Sale),
		paymentsBySale:  make(map[int64][]domain.Payment),
		usersByUsername: make(map[string]domain.UserAccount),
		invoiceSeq:      make(map[string]int64),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers(s *Store) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	seedUsers(s)

	price := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }
	for _, p := range []domain.Product{
		{SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", UnitPrice: price("3500"), TaxRate: price("11"), StockQuantity: 120, MinStockLevel: 24, Active: true},
		{SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", UnitPrice: price("26500"), TaxRate: price("0"), StockQuantity: 40, MinStockLevel: 10, Active: true},
		{SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", UnitPrice: price("18900"), TaxRate: price("11"), StockQuantity: 36, MinStockLevel: 12, Active: true},
		{SKU: "SKU-ROTI-01", Name: "Roti Tawar", Category: "bakery", UnitPrice: price("17800"), TaxRate: price("11"), StockQuantity: 18, MinStockLevel: 6, Active: true},
		{SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", UnitPrice: price("2600"), TaxRate: price("11"), StockQuantity: 200, MinStockLevel: 50, Active: true},
		{SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", UnitPrice: price("17400"), TaxRate: price("0"), StockQuantity: 3, MinStockLevel: 8, Active: true},
		{SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household", UnitPrice: price("7400"), TaxRate: price("11"), StockQuantity: 55, MinStockLevel: 15, Active: true},
	} {
		s.PutProduct(p)
	}

	for _, c := range []domain.Customer{
		{Name: "Pelanggan Umum", Phone: "", Email: "", Active: true},
		{Name: "Warung Bu Sari", Phone: "0812-1111-2222", Email: "sari@example.com", Active: true},
		{Name: "Kantin SMA 3", Phone: "0812-3333-4444", Email: "kantin3@example.com", Active: true},
	} {
		s.PutCustomer(c)
	}
	return s
}

// PutProduct inserts or replaces a product, assigning an id when missing.
// Used by seeding and by tests to arrange stock levels.
func (s *Store) PutProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if p.ID == 0 {
		s.productSeq++
		p.ID = s.productSeq
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p
}

// PutCustomer inserts or replaces a customer, assigning an id when missing.
func (s *Store) PutCustomer(c domain.Customer) domain.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.customerSeq++
		c.ID = s.customerSeq
		c.CreatedAt = time.Now().UTC()
	}
	s.customers[c.ID] = c
	return c
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	return &p, nil
}

func (s *Store) ListLowStock(_ context.Context, threshold *int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		limit := p.MinStockLevel
		if threshold != nil {
			limit = *threshold
		}
		if p.StockQuantity <= limit {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StockQuantity != out[j].StockQuantity {
			return out[i].StockQuantity < out[j].StockQuantity
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, id)
	}
	return &c, nil
}

func (s *Store) CreateSale(_ context.Context, req domain.SaleCreateRequest, createdBy string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.CustomerID != nil {
		if _, ok := s.customers[*req.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, *req.CustomerID)
		}
	}

	items, products, err := s.resolveItemsLocked(req.Items)
	if err != nil {
		return nil, err
	}
	totals, err := pricing.Compute(items, req.DiscountAmount, products)
	if err != nil {
		return nil, err
	}

	for _, line := range totals.Lines {
		p := s.products[line.ProductID]
		p.StockQuantity -= line.Quantity
		p.UpdatedAt = time.Now().UTC()
		s.products[p.ID] = p
	}

	status := domain.PaymentStatusPending
	if req.PaymentMethod != "" {
		status = domain.PaymentStatusPaid
	}

	now := time.Now().UTC()
	s.saleSeq++
	sale := &domain.Sale{
		ID:             s.saleSeq,
		InvoiceNo:      s.nextInvoiceLocked(now),
		CustomerID:     req.CustomerID,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		TaxAmount:      totals.TaxAmount,
		TotalAmount:    totals.TotalAmount,
		PaymentStatus:  status,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          s.buildItemsLocked(s.saleSeq, totals.Lines),
	}
	s.sales[sale.ID] = sale
	return s.cloneSaleLocked(sale), nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	return s.cloneSaleLocked(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleListFilter) ([]domain.Sale, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.StartDate != nil && sale.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && sale.CreatedAt.After(*filter.EndDate) {
			continue
		}
		if filter.CustomerID != nil && (sale.CustomerID == nil || *sale.CustomerID != *filter.CustomerID) {
			continue
		}
		if filter.PaymentStatus != "" && sale.PaymentStatus != filter.PaymentStatus {
			continue
		}
		matched = append(matched, sale)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []domain.Sale{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	out := make([]domain.Sale, 0, end-start)
	for _, sale := range matched[start:end] {
		out = append(out, *s.cloneSaleLocked(sale))
	}
	return out, total, nil
}

func (s *Store) UpdateSale(_ context.Context, id int64, req domain.SaleUpdateRequest) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	if !sale.PaymentStatus.Editable() {
		return nil, fmt.Errorf("%w: sale %d is %s", store.ErrInvalidState, id, sale.PaymentStatus)
	}

	if req.CustomerID != nil {
		if _, ok := s.customers[*req.CustomerID]; !ok {
			return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, *req.CustomerID)
		}
		sale.CustomerID = req.CustomerID
	}

	discount := sale.DiscountAmount
	if req.DiscountAmount != nil {
		discount = req.DiscountAmount.Round(2)
	}

	if req.Items != nil {
		// Restore the old items' stock first so the calculator validates the
		// new list against the stock the sale would see without itself.
		for _, item := range sale.Items {
			p := s.products[item.ProductID]
			p.StockQuantity += item.Quantity
			s.products[p.ID] = p
		}

		items, products, err := s.resolveItemsLocked(req.Items)
		if err == nil {
			var totals pricing.Totals
			totals, err = pricing.Compute(items, discount, products)
			if err == nil {
				for _, line := range totals.Lines {
					p := s.products[line.ProductID]
					p.StockQuantity -= line.Quantity
					p.UpdatedAt = time.Now().UTC()
					s.products[p.ID] = p
				}
				sale.Subtotal = totals.Subtotal
				sale.DiscountAmount = totals.DiscountAmount
				sale.TaxAmount = totals.TaxAmount
				sale.TotalAmount = totals.TotalAmount
				sale.Items = s.buildItemsLocked(sale.ID, totals.Lines)
			}
		}
		if err != nil {
			// Roll the restoration back so a failed update leaves no trace.
			for _, item := range sale.Items {
				p := s.products[item.ProductID]
				p.StockQuantity -= item.Quantity
				s.products[p.ID] = p
			}
			return nil, err
		}
	} else if req.DiscountAmount != nil {
		sale.DiscountAmount = discount
		sale.TotalAmount = pricing.RecomputeTotal(sale.Subtotal, sale.TaxAmount, discount)
	}

	if req.PaymentMethod != nil {
		sale.PaymentMethod = strings.TrimSpace(*req.PaymentMethod)
		// Supplying a method settles the sale, clearing it reopens it,
		// subject to the same transition rules as the create path.
		next := domain.PaymentStatusPending
		if sale.PaymentMethod != "" {
			next = domain.PaymentStatusPaid
		}
		if sale.PaymentStatus != next && sale.PaymentStatus.CanTransitionTo(next) {
			sale.PaymentStatus = next
		}
	}
	if req.Notes != nil {
		sale.Notes = *req.Notes
	}
	sale.UpdatedAt = time.Now().UTC()
	return s.cloneSaleLocked(sale), nil
}

func (s *Store) CancelSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	if !sale.PaymentStatus.CanTransitionTo(domain.PaymentStatusCancelled) {
		return nil, fmt.Errorf("%w: sale %d is already cancelled", store.ErrInvalidState, id)
	}

	for _, item := range sale.Items {
		p := s.products[item.ProductID]
		p.StockQuantity += item.Quantity
		p.UpdatedAt = time.Now().UTC()
		s.products[p.ID] = p
	}
	sale.PaymentStatus = domain.PaymentStatusCancelled
	sale.UpdatedAt = time.Now().UTC()
	return s.cloneSaleLocked(sale), nil
}

func (s *Store) ListInventoryTransactions(_ context.Context, filter domain.InventoryTransactionFilter) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryTransaction, 0)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if filter.ProductID != nil && m.ProductID != *filter.ProductID {
			continue
		}
		if filter.TransactionType != "" && m.TransactionType != filter.TransactionType {
			continue
		}
		if p, ok := s.products[m.ProductID]; ok {
			m.ProductName = p.Name
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateInventoryTransaction(_ context.Context, req domain.InventoryTransactionCreateRequest, createdBy string) (*domain.InventoryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[req.ProductID]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, req.ProductID)
	}

	newStock := ledger.Apply(req.TransactionType, req.Quantity, p.StockQuantity)
	if newStock < 0 {
		return nil, fmt.Errorf("%w: product %d would go to %d", store.ErrInsufficientStock, p.ID, newStock)
	}

	s.movementSeq++
	m := domain.InventoryTransaction{
		ID:              s.movementSeq,
		ProductID:       req.ProductID,
		ProductName:     p.Name,
		TransactionType: req.TransactionType,
		Quantity:        req.Quantity,
		ReferenceType:   req.ReferenceType,
		ReferenceID:     req.ReferenceID,
		Notes:           req.Notes,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now().UTC(),
	}
	s.movements = append(s.movements, m)

	p.StockQuantity = newStock
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return &m, nil
}

func (s *Store) UpdateInventoryTransaction(_ context.Context, id int64, req domain.InventoryTransactionUpdateRequest) (*domain.InventoryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.movementIndexLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: inventory transaction %d", store.ErrNotFound, id)
	}
	old := s.movements[idx]
	p := s.products[old.ProductID]

	reversed := s.reverseLocked(old, p.StockQuantity)

	newType := old.TransactionType
	if req.TransactionType != nil {
		newType = *req.TransactionType
	}
	newQty := old.Quantity
	if req.Quantity != nil {
		newQty = *req.Quantity
	}

	newStock := ledger.Apply(newType, newQty, reversed)
	if newStock < 0 {
		return nil, fmt.Errorf("%w: product %d would go to %d", store.ErrInsufficientStock, p.ID, newStock)
	}

	old.TransactionType = newType
	old.Quantity = newQty
	if req.Notes != nil {
		old.Notes = *req.Notes
	}
	old.ProductName = p.Name
	s.movements[idx] = old

	p.StockQuantity = newStock
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return &old, nil
}

func (s *Store) DeleteInventoryTransaction(_ context.Context, id int64) (*domain.InventoryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.movementIndexLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: inventory transaction %d", store.ErrNotFound, id)
	}
	old := s.movements[idx]
	p := s.products[old.ProductID]

	// Delete is lenient: a reversal that would go negative floors at zero
	// instead of failing.
	newStock := s.reverseLocked(old, p.StockQuantity)
	if newStock < 0 {
		newStock = 0
	}

	s.movements = append(s.movements[:idx], s.movements[idx+1:]...)
	p.StockQuantity = newStock
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	return &old, nil
}

func (s *Store) ListPayments(_ context.Context, saleID int64) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sales[saleID]; !ok {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, saleID)
	}
	out := make([]domain.Payment, len(s.paymentsBySale[saleID]))
	copy(out, s.paymentsBySale[saleID])
	return out, nil
}

func (s *Store) CreatePayment(_ context.Context, req domain.PaymentCreateRequest) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[req.SaleID]
	if !ok {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, req.SaleID)
	}
	if sale.PaymentStatus == domain.PaymentStatusCancelled {
		return nil, fmt.Errorf("%w: sale %d is cancelled", store.ErrInvalidState, req.SaleID)
	}

	totalPaid := decimal.Zero
	for _, p := range s.paymentsBySale[req.SaleID] {
		totalPaid = totalPaid.Add(p.Amount)
	}
	remaining := sale.TotalAmount.Sub(totalPaid)
	amount := req.Amount.Round(2)
	if amount.GreaterThan(remaining) {
		return nil, domain.NewValidationError("amount",
			fmt.Sprintf("amount %s exceeds remaining balance %s", amount.StringFixed(2), remaining.StringFixed(2)))
	}

	s.paymentSeq++
	payment := domain.Payment{
		ID:             s.paymentSeq,
		SaleID:         req.SaleID,
		PaymentMethod:  req.PaymentMethod,
		Amount:         amount,
		TransactionRef: req.TransactionRef,
		Notes:          req.Notes,
		PaymentDate:    time.Now().UTC(),
	}
	s.paymentsBySale[req.SaleID] = append(s.paymentsBySale[req.SaleID], payment)

	newStatus := domain.PaymentStatusPartial
	if totalPaid.Add(amount).GreaterThanOrEqual(sale.TotalAmount) {
		newStatus = domain.PaymentStatusPaid
	}
	sale.PaymentStatus = newStatus
	if sale.PaymentMethod == "" {
		sale.PaymentMethod = req.PaymentMethod
	}
	sale.UpdatedAt = time.Now().UTC()
	return &payment, nil
}

func (s *Store) GetSalesSummary(_ context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{
		StartDate:      from.Format("2006-01-02"),
		EndDate:        to.Format("2006-01-02"),
		GrossAmount:    decimal.Zero,
		DiscountAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		NetAmount:      decimal.Zero,
	}
	byStatus := map[domain.PaymentStatus]*domain.SalesSummaryStatusRow{}
	for _, sale := range s.sales {
		if sale.CreatedAt.Before(from) || sale.CreatedAt.After(to) {
			continue
		}
		row, ok := byStatus[sale.PaymentStatus]
		if !ok {
			row = &domain.SalesSummaryStatusRow{PaymentStatus: sale.PaymentStatus, TotalAmount: decimal.Zero}
			byStatus[sale.PaymentStatus] = row
		}
		row.Sales++
		row.TotalAmount = row.TotalAmount.Add(sale.TotalAmount)

		if sale.PaymentStatus == domain.PaymentStatusCancelled {
			continue
		}
		summary.Sales++
		summary.GrossAmount = summary.GrossAmount.Add(sale.Subtotal)
		summary.DiscountAmount = summary.DiscountAmount.Add(sale.DiscountAmount)
		summary.TaxAmount = summary.TaxAmount.Add(sale.TaxAmount)
		summary.NetAmount = summary.NetAmount.Add(sale.TotalAmount)
	}
	for _, status := range []domain.PaymentStatus{
		domain.PaymentStatusPending, domain.PaymentStatusPartial,
		domain.PaymentStatusPaid, domain.PaymentStatusCancelled,
	} {
		if row, ok := byStatus[status]; ok {
			summary.ByStatus = append(summary.ByStatus, *row)
		}
	}
	return summary, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLog, 0)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || entry.CreatedAt.After(to) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return fmt.Errorf("user %s already exists", user.Username)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByUsername[username]
	if !ok {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

// resolveItemsLocked validates item products and fills snapshot unit prices
// from the catalog when the caller did not supply an override.
func (s *Store) resolveItemsLocked(inputs []domain.SaleItemInput) ([]domain.SaleItemInput, map[int64]domain.Product, error) {
	items := make([]domain.SaleItemInput, len(inputs))
	products := make(map[int64]domain.Product, len(inputs))
	for i, in := range inputs {
		p, ok := s.products[in.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: product %d", store.ErrNotFound, in.ProductID)
		}
		if in.UnitPrice.IsZero() {
			in.UnitPrice = p.UnitPrice
		}
		items[i] = in
		products[p.ID] = p
	}
	return items, products, nil
}

func (s *Store) buildItemsLocked(saleID int64, lines []pricing.LineDetail) []domain.SaleItem {
	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		s.itemSeq++
		items = append(items, domain.SaleItem{
			ID:             s.itemSeq,
			SaleID:         saleID,
			ProductID:      line.ProductID,
			ProductName:    line.ProductName,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			DiscountAmount: line.DiscountAmount,
			TaxAmount:      line.TaxAmount,
			LineTotal:      line.LineTotal,
		})
	}
	return items
}

// reverseLocked undoes a movement's stock effect. Adjustments replay the
// product's remaining history from zero; every other type is a simple
// inverse delta.
func (s *Store) reverseLocked(m domain.InventoryTransaction, currentStock int) int {
	if m.TransactionType != domain.TransactionAdjustment {
		return ledger.Reverse(m.TransactionType, m.Quantity, currentStock)
	}
	entries := make([]ledger.Entry, 0)
	for _, e := range s.movements {
		if e.ProductID != m.ProductID {
			continue
		}
		entries = append(entries, ledger.Entry{ID: e.ID, TransactionType: e.TransactionType, Quantity: e.Quantity})
	}
	return ledger.Replay(entries, m.ID)
}

func (s *Store) movementIndexLocked(id int64) int {
	for i, m := range s.movements {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) nextInvoiceLocked(now time.Time) string {
	period := now.Format("200601")
	s.invoiceSeq[period]++
	return fmt.Sprintf("INV-%s-%06d", period, s.invoiceSeq[period])
}

func (s *Store) cloneSaleLocked(src *domain.Sale) *domain.Sale {
	out := *src
	out.Items = make([]domain.SaleItem, len(src.Items))
	copy(out.Items, src.Items)
	if src.CustomerID != nil {
		if c, ok := s.customers[*src.CustomerID]; ok {
			out.CustomerName = c.Name
		}
	}
	return &out
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tokosakti/backend/internal/domain"
	"tokosakti/backend/internal/ledger"
	"tokosakti/backend/internal/pricing"
	"tokosakti/backend/internal/store"
	"tokosakti/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx so read helpers can run
// inside or outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q querier, id int64) (*domain.Product, error) {
	var p domain.Product
	err := q.QueryRowContext(ctx, `
		SELECT id, sku, name, category, unit_price, tax_rate, stock_quantity, min_stock_level, active, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.UnitPrice, &p.TaxRate,
		&p.StockQuantity, &p.MinStockLevel, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListLowStock(ctx context.Context, threshold *int) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, name, category, unit_price, tax_rate, stock_quantity, min_stock_level, active, created_at, updated_at
		FROM products
		WHERE active = true AND stock_quantity <= COALESCE($1, min_stock_level)
		ORDER BY stock_quantity ASC, id ASC
	`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.UnitPrice, &p.TaxRate,
			&p.StockQuantity, &p.MinStockLevel, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, active, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Active, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateSale(ctx context.Context, req domain.SaleCreateRequest, createdBy string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if req.CustomerID != nil {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, *req.CustomerID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, *req.CustomerID)
		}
	}

	items, products, err := lockSaleProducts(ctx, tx, req.Items)
	if err != nil {
		return nil, err
	}
	totals, err := pricing.Compute(items, req.DiscountAmount, products)
	if err != nil {
		return nil, err
	}

	for _, line := range totals.Lines {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = now() WHERE id = $2
		`, line.Quantity, line.ProductID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	invoiceNo, err := nextInvoiceNo(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	status := domain.PaymentStatusPending
	if req.PaymentMethod != "" {
		status = domain.PaymentStatusPaid
	}

	var saleID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (invoice_no, customer_id, subtotal, discount_amount, tax_amount, total_amount,
			payment_status, payment_method, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id
	`, invoiceNo, req.CustomerID, totals.Subtotal, totals.DiscountAmount, totals.TaxAmount, totals.TotalAmount,
		string(status), nullIfEmpty(req.PaymentMethod), strings.TrimSpace(req.Notes), createdBy, now).Scan(&saleID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("invoice number collision: %w", err)
		}
		return nil, err
	}

	if err := insertSaleItems(ctx, tx, saleID, totals.Lines); err != nil {
		return nil, err
	}

	sale, err := getSale(ctx, tx, saleID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return getSale(ctx, s.db, id)
}

func getSale(ctx context.Context, q querier, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullInt64
	var customerName, paymentMethod, notes sql.NullString
	var status string
	err := q.QueryRowContext(ctx, `
		SELECT s.id, s.invoice_no, s.customer_id, c.name, s.subtotal, s.discount_amount, s.tax_amount,
			s.total_amount, s.payment_status, s.payment_method, s.notes, s.created_by, s.created_at, s.updated_at
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1
	`, id).Scan(&sale.ID, &sale.InvoiceNo, &customerID, &customerName, &sale.Subtotal, &sale.DiscountAmount,
		&sale.TaxAmount, &sale.TotalAmount, &status, &paymentMethod, &notes, &sale.CreatedBy, &sale.CreatedAt, &sale.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		sale.CustomerID = &customerID.Int64
		sale.CustomerName = customerName.String
	}
	sale.PaymentStatus = domain.PaymentStatus(status)
	sale.PaymentMethod = paymentMethod.String
	sale.Notes = notes.String

	items, err := listSaleItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func listSaleItems(ctx context.Context, q querier, saleID int64) ([]domain.SaleItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.id, i.sale_id, i.product_id, p.name, i.quantity, i.unit_price, i.discount_amount, i.tax_amount, i.line_total
		FROM sale_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = $1
		ORDER BY i.id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.DiscountAmount, &item.TaxAmount, &item.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 20
	}

	var status any
	if filter.PaymentStatus != "" {
		status = string(filter.PaymentStatus)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.invoice_no, s.customer_id, c.name, s.subtotal, s.discount_amount, s.tax_amount,
			s.total_amount, s.payment_status, s.payment_method, s.notes, s.created_by, s.created_at, s.updated_at,
			COUNT(*) OVER () AS total
		FROM sales s
		LEFT JOIN customers c ON c.id = s.customer_id
		WHERE ($1::timestamptz IS NULL OR s.created_at >= $1)
			AND ($2::timestamptz IS NULL OR s.created_at <= $2)
			AND ($3::bigint IS NULL OR s.customer_id = $3)
			AND ($4::text IS NULL OR s.payment_status = $4)
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $5 OFFSET $6
	`, filter.StartDate, filter.EndDate, filter.CustomerID, status, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var total int64
	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		var customerID sql.NullInt64
		var customerName, paymentMethod, notes sql.NullString
		var saleStatus string
		if err := rows.Scan(&sale.ID, &sale.InvoiceNo, &customerID, &customerName, &sale.Subtotal,
			&sale.DiscountAmount, &sale.TaxAmount, &sale.TotalAmount, &saleStatus, &paymentMethod,
			&notes, &sale.CreatedBy, &sale.CreatedAt, &sale.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		if customerID.Valid {
			sale.CustomerID = &customerID.Int64
			sale.CustomerName = customerName.String
		}
		sale.PaymentStatus = domain.PaymentStatus(saleStatus)
		sale.PaymentMethod = paymentMethod.String
		sale.Notes = notes.String
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range sales {
		items, err := listSaleItems(ctx, s.db, sales[i].ID)
		if err != nil {
			return nil, 0, err
		}
		sales[i].Items = items
	}
	return sales, total, nil
}

func (s *Store) UpdateSale(ctx context.Context, id int64, req domain.SaleUpdateRequest) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := lockSale(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !sale.PaymentStatus.Editable() {
		return nil, fmt.Errorf("%w: sale %d is %s", store.ErrInvalidState, id, sale.PaymentStatus)
	}

	customerID := sale.CustomerID
	if req.CustomerID != nil {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, *req.CustomerID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: customer %d", store.ErrNotFound, *req.CustomerID)
		}
		customerID = req.CustomerID
	}

	discount := sale.DiscountAmount
	if req.DiscountAmount != nil {
		discount = req.DiscountAmount.Round(2)
	}

	subtotal := sale.Subtotal
	taxAmount := sale.TaxAmount
	totalAmount := pricing.RecomputeTotal(subtotal, taxAmount, discount)

	if req.Items != nil {
		oldItems, err := listSaleItems(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		// Restore old quantities before revalidating stock for the new list.
		for _, item := range oldItems {
			if _, err := tx.ExecContext(ctx, `
				UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = now() WHERE id = $2
			`, item.Quantity, item.ProductID); err != nil {
				return nil, err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
			return nil, err
		}

		items, products, err := lockSaleProducts(ctx, tx, req.Items)
		if err != nil {
			return nil, err
		}
		totals, err := pricing.Compute(items, discount, products)
		if err != nil {
			return nil, err
		}
		for _, line := range totals.Lines {
			if _, err := tx.ExecContext(ctx, `
				UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = now() WHERE id = $2
			`, line.Quantity, line.ProductID); err != nil {
				return nil, err
			}
		}
		if err := insertSaleItems(ctx, tx, id, totals.Lines); err != nil {
			return nil, err
		}
		subtotal = totals.Subtotal
		taxAmount = totals.TaxAmount
		totalAmount = totals.TotalAmount
	}

	paymentMethod := sale.PaymentMethod
	paymentStatus := sale.PaymentStatus
	if req.PaymentMethod != nil {
		paymentMethod = strings.TrimSpace(*req.PaymentMethod)
		// Supplying a method settles the sale, clearing it reopens it,
		// subject to the same transition rules as the create path.
		next := domain.PaymentStatusPending
		if paymentMethod != "" {
			next = domain.PaymentStatusPaid
		}
		if paymentStatus != next && paymentStatus.CanTransitionTo(next) {
			paymentStatus = next
		}
	}
	notes := sale.Notes
	if req.Notes != nil {
		notes = *req.Notes
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET customer_id = $1, subtotal = $2, discount_amount = $3, tax_amount = $4, total_amount = $5,
			payment_method = $6, payment_status = $7, notes = $8, updated_at = now()
		WHERE id = $9
	`, customerID, subtotal, discount, taxAmount, totalAmount, nullIfEmpty(paymentMethod), string(paymentStatus), notes, id); err != nil {
		return nil, err
	}

	updated, err := getSale(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) CancelSale(ctx context.Context, id int64) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := lockSale(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !sale.PaymentStatus.CanTransitionTo(domain.PaymentStatusCancelled) {
		return nil, fmt.Errorf("%w: sale %d is already cancelled", store.ErrInvalidState, id)
	}

	items, err := listSaleItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = now() WHERE id = $2
		`, item.Quantity, item.ProductID); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sales SET payment_status = $1, updated_at = now() WHERE id = $2
	`, string(domain.PaymentStatusCancelled), id); err != nil {
		return nil, err
	}

	cancelled, err := getSale(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, filter domain.InventoryTransactionFilter) ([]domain.InventoryTransaction, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	var txType any
	if filter.TransactionType != "" {
		txType = string(filter.TransactionType)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.product_id, p.name, t.transaction_type, t.quantity, t.reference_type, t.reference_id,
			t.notes, t.created_by, t.created_at
		FROM inventory_transactions t
		JOIN products p ON p.id = t.product_id
		WHERE ($1::bigint IS NULL OR t.product_id = $1)
			AND ($2::text IS NULL OR t.transaction_type = $2)
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $3
	`, filter.ProductID, txType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.InventoryTransaction, 0, limit)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CreateInventoryTransaction(ctx context.Context, req domain.InventoryTransactionCreateRequest, createdBy string) (*domain.InventoryTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := lockProduct(ctx, tx, req.ProductID)
	if err != nil {
		return nil, err
	}

	newStock := ledger.Apply(req.TransactionType, req.Quantity, p.StockQuantity)
	if newStock < 0 {
		return nil, fmt.Errorf("%w: product %d would go to %d", store.ErrInsufficientStock, p.ID, newStock)
	}

	var m domain.InventoryTransaction
	err = tx.QueryRowContext(ctx, `
		INSERT INTO inventory_transactions (product_id, transaction_type, quantity, reference_type, reference_id, notes, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id, created_at
	`, req.ProductID, string(req.TransactionType), req.Quantity, nullIfEmpty(req.ReferenceType),
		req.ReferenceID, strings.TrimSpace(req.Notes), createdBy).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.ProductID = req.ProductID
	m.ProductName = p.Name
	m.TransactionType = req.TransactionType
	m.Quantity = req.Quantity
	m.ReferenceType = req.ReferenceType
	m.ReferenceID = req.ReferenceID
	m.Notes = strings.TrimSpace(req.Notes)
	m.CreatedBy = createdBy

	if err := setStock(ctx, tx, p.ID, newStock); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpdateInventoryTransaction(ctx context.Context, id int64, req domain.InventoryTransactionUpdateRequest) (*domain.InventoryTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	old, err := getMovement(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	p, err := lockProduct(ctx, tx, old.ProductID)
	if err != nil {
		return nil, err
	}

	reversed, err := reverseMovement(ctx, tx, *old, p.StockQuantity)
	if err != nil {
		return nil, err
	}

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

	notes := old.Notes
	if req.Notes != nil {
		notes = *req.Notes
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE inventory_transactions SET transaction_type = $1, quantity = $2, notes = $3 WHERE id = $4
	`, string(newType), newQty, notes, id); err != nil {
		return nil, err
	}
	if err := setStock(ctx, tx, p.ID, newStock); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	old.TransactionType = newType
	old.Quantity = newQty
	old.Notes = notes
	old.ProductName = p.Name
	return old, nil
}

func (s *Store) DeleteInventoryTransaction(ctx context.Context, id int64) (*domain.InventoryTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	old, err := getMovement(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	p, err := lockProduct(ctx, tx, old.ProductID)
	if err != nil {
		return nil, err
	}

	// Delete is lenient: a reversal that would go negative floors at zero.
	newStock, err := reverseMovement(ctx, tx, *old, p.StockQuantity)
	if err != nil {
		return nil, err
	}
	if newStock < 0 {
		newStock = 0
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_transactions WHERE id = $1`, id); err != nil {
		return nil, err
	}
	if err := setStock(ctx, tx, p.ID, newStock); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	old.ProductName = p.Name
	return old, nil
}

func (s *Store) ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE id = $1)`, saleID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, saleID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, payment_method, amount, transaction_ref, notes, payment_date
		FROM payments
		WHERE sale_id = $1
		ORDER BY payment_date ASC, id ASC
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Payment, 0)
	for rows.Next() {
		var p domain.Payment
		var ref, notes sql.NullString
		if err := rows.Scan(&p.ID, &p.SaleID, &p.PaymentMethod, &p.Amount, &ref, &notes, &p.PaymentDate); err != nil {
			return nil, err
		}
		p.TransactionRef = ref.String
		p.Notes = notes.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (*domain.Payment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := lockSale(ctx, tx, req.SaleID)
	if err != nil {
		return nil, err
	}
	if sale.PaymentStatus == domain.PaymentStatusCancelled {
		return nil, fmt.Errorf("%w: sale %d is cancelled", store.ErrInvalidState, req.SaleID)
	}

	var totalPaid decimal.Decimal
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments WHERE sale_id = $1
	`, req.SaleID).Scan(&totalPaid); err != nil {
		return nil, err
	}

	remaining := sale.TotalAmount.Sub(totalPaid)
	amount := req.Amount.Round(2)
	if amount.GreaterThan(remaining) {
		return nil, domain.NewValidationError("amount",
			fmt.Sprintf("amount %s exceeds remaining balance %s", amount.StringFixed(2), remaining.StringFixed(2)))
	}

	payment := domain.Payment{
		SaleID:         req.SaleID,
		PaymentMethod:  req.PaymentMethod,
		Amount:         amount,
		TransactionRef: req.TransactionRef,
		Notes:          req.Notes,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (sale_id, payment_method, amount, transaction_ref, notes, payment_date)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, payment_date
	`, req.SaleID, req.PaymentMethod, amount, nullIfEmpty(req.TransactionRef), strings.TrimSpace(req.Notes)).
		Scan(&payment.ID, &payment.PaymentDate)
	if err != nil {
		return nil, err
	}

	newStatus := domain.PaymentStatusPartial
	if totalPaid.Add(amount).GreaterThanOrEqual(sale.TotalAmount) {
		newStatus = domain.PaymentStatusPaid
	}
	paymentMethod := sale.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = req.PaymentMethod
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sales SET payment_status = $1, payment_method = $2, updated_at = now() WHERE id = $3
	`, string(newStatus), paymentMethod, req.SaleID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Store) GetSalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	summary := domain.SalesSummary{
		StartDate:      from.Format("2006-01-02"),
		EndDate:        to.Format("2006-01-02"),
		GrossAmount:    decimal.Zero,
		DiscountAmount: decimal.Zero,
		TaxAmount:      decimal.Zero,
		NetAmount:      decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(subtotal), 0), COALESCE(SUM(discount_amount), 0),
			COALESCE(SUM(tax_amount), 0), COALESCE(SUM(total_amount), 0)
		FROM sales
		WHERE created_at BETWEEN $1 AND $2 AND payment_status <> $3
	`, from, to, string(domain.PaymentStatusCancelled)).
		Scan(&summary.Sales, &summary.GrossAmount, &summary.DiscountAmount, &summary.TaxAmount, &summary.NetAmount)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_status, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM sales
		WHERE created_at BETWEEN $1 AND $2
		GROUP BY payment_status
		ORDER BY payment_status
	`, from, to)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var row domain.SalesSummaryStatusRow
		var status string
		if err := rows.Scan(&status, &row.Sales, &row.TotalAmount); err != nil {
			return domain.SalesSummary{}, err
		}
		row.PaymentStatus = domain.PaymentStatus(status)
		summary.ByStatus = append(summary.ByStatus, row)
	}
	return summary, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at BETWEEN $1 AND $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (username) DO NOTHING
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserAccount, 0)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $1 WHERE username = $2
	`, password, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", store.ErrNotFound, username)
	}
	return nil
}

// lockSaleProducts locks the products referenced by the items for the
// duration of the transaction and fills snapshot unit prices from the
// catalog when the caller did not supply an override.
func lockSaleProducts(ctx context.Context, tx *sql.Tx, inputs []domain.SaleItemInput) ([]domain.SaleItemInput, map[int64]domain.Product, error) {
	ids := make([]int64, 0, len(inputs))
	seen := make(map[int64]bool, len(inputs))
	for _, in := range inputs {
		if !seen[in.ProductID] {
			seen[in.ProductID] = true
			ids = append(ids, in.ProductID)
		}
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, unit_price, tax_rate, stock_quantity
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, nil, err
	}
	products := make(map[int64]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.TaxRate, &p.StockQuantity); err != nil {
			_ = rows.Close()
			return nil, nil, err
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, nil, err
	}
	_ = rows.Close()

	items := make([]domain.SaleItemInput, len(inputs))
	for i, in := range inputs {
		p, ok := products[in.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: product %d", store.ErrNotFound, in.ProductID)
		}
		if in.UnitPrice.IsZero() {
			in.UnitPrice = p.UnitPrice
		}
		items[i] = in
	}
	return items, products, nil
}

func lockProduct(ctx context.Context, tx *sql.Tx, id int64) (*domain.Product, error) {
	var p domain.Product
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, stock_quantity
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&p.ID, &p.Name, &p.StockQuantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// lockSale reads the sale header under FOR UPDATE so concurrent payment and
// cancel operations on the same sale serialize.
func lockSale(ctx context.Context, tx *sql.Tx, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	var customerID sql.NullInt64
	var paymentMethod, notes sql.NullString
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT id, invoice_no, customer_id, subtotal, discount_amount, tax_amount, total_amount,
			payment_status, payment_method, notes, created_by, created_at, updated_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&sale.ID, &sale.InvoiceNo, &customerID, &sale.Subtotal, &sale.DiscountAmount,
		&sale.TaxAmount, &sale.TotalAmount, &status, &paymentMethod, &notes, &sale.CreatedBy,
		&sale.CreatedAt, &sale.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		sale.CustomerID = &customerID.Int64
	}
	sale.PaymentStatus = domain.PaymentStatus(status)
	sale.PaymentMethod = paymentMethod.String
	sale.Notes = notes.String
	return &sale, nil
}

func insertSaleItems(ctx context.Context, tx *sql.Tx, saleID int64, lines []pricing.LineDetail) error {
	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, discount_amount, tax_amount, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, saleID, line.ProductID, line.Quantity, line.UnitPrice, line.DiscountAmount, line.TaxAmount, line.LineTotal); err != nil {
			return err
		}
	}
	return nil
}

func setStock(ctx context.Context, tx *sql.Tx, productID int64, qty int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products SET stock_quantity = $1, updated_at = now() WHERE id = $2
	`, qty, productID)
	return err
}

func getMovement(ctx context.Context, q querier, id int64) (*domain.InventoryTransaction, error) {
	row := q.QueryRowContext(ctx, `
		SELECT t.id, t.product_id, p.name, t.transaction_type, t.quantity, t.reference_type, t.reference_id,
			t.notes, t.created_by, t.created_at
		FROM inventory_transactions t
		JOIN products p ON p.id = t.product_id
		WHERE t.id = $1
	`, id)
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: inventory transaction %d", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovement(row rowScanner) (domain.InventoryTransaction, error) {
	var m domain.InventoryTransaction
	var txType string
	var refType, notes sql.NullString
	var refID sql.NullInt64
	err := row.Scan(&m.ID, &m.ProductID, &m.ProductName, &txType, &m.Quantity, &refType, &refID,
		&notes, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		return domain.InventoryTransaction{}, err
	}
	m.TransactionType = domain.TransactionType(txType)
	m.ReferenceType = refType.String
	if refID.Valid {
		m.ReferenceID = &refID.Int64
	}
	m.Notes = notes.String
	return m, nil
}

// reverseMovement undoes a movement's stock effect inside the caller's
// transaction. Adjustments replay the product's remaining history from
// zero; every other type is a simple inverse delta.
func reverseMovement(ctx context.Context, tx *sql.Tx, m domain.InventoryTransaction, currentStock int) (int, error) {
	if m.TransactionType != domain.TransactionAdjustment {
		return ledger.Reverse(m.TransactionType, m.Quantity, currentStock), nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, transaction_type, quantity
		FROM inventory_transactions
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
	`, m.ProductID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	entries := make([]ledger.Entry, 0)
	for rows.Next() {
		var e ledger.Entry
		var txType string
		if err := rows.Scan(&e.ID, &txType, &e.Quantity); err != nil {
			return 0, err
		}
		e.TransactionType = domain.TransactionType(txType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return ledger.Replay(entries, m.ID), nil
}

// nextInvoiceNo allocates the next monthly invoice number inside the sale's
// transaction; a rolled-back sale releases its number with the rest of the
// transaction.
func nextInvoiceNo(ctx context.Context, tx *sql.Tx, now time.Time) (string, error) {
	period := now.Format("200601")
	var counter int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (period, counter)
		VALUES ($1, 1)
		ON CONFLICT (period) DO UPDATE SET counter = invoice_counters.counter + 1
		RETURNING counter
	`, period).Scan(&counter)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%06d", period, counter), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

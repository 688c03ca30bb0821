package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"lojinha/backend/internal/domain"
	"lojinha/backend/internal/store"
	"lojinha/backend/internal/xid"
)

// maxTxAttempts bounds retries of sale transactions that lose a
// serialization conflict (SQLSTATE 40001) or a deadlock (40P01).
const maxTxAttempts = 3

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

// EnsureSchema creates the tables on first boot. Statements are idempotent,
// so concurrent replicas racing on startup are harmless.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			weekly_goal INT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT true,
			variants JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id TEXT PRIMARY KEY,
			date TIMESTAMPTZ NOT NULL,
			seller TEXT NOT NULL,
			invoice_number TEXT NOT NULL DEFAULT '',
			total_value DOUBLE PRECISION NOT NULL,
			test_sale BOOLEAN NOT NULL DEFAULT false,
			items JSONB NOT NULL,
			payments JSONB NOT NULL DEFAULT '[]',
			payment_methods JSONB NOT NULL DEFAULT '[]',
			note TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			modified_by TEXT NOT NULL DEFAULT '',
			modified_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_date ON sales (date DESC, id)`,
		`CREATE TABLE IF NOT EXISTS stock_ledger (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			variant_id TEXT NOT NULL,
			variant_name TEXT NOT NULL,
			previous_stock INT NOT NULL,
			new_stock INT NOT NULL,
			delta INT NOT NULL,
			reason TEXT NOT NULL,
			sale_id TEXT NOT NULL DEFAULT '',
			actor_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_variant ON stock_ledger (product_id, variant_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			date TIMESTAMPTZ NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			description TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			modified_by TEXT NOT NULL DEFAULT '',
			modified_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS deposits (
			id TEXT PRIMARY KEY,
			date TIMESTAMPTZ NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			note TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			modified_by TEXT NOT NULL DEFAULT '',
			modified_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS sellers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payment_methods (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS phone_models (
			id TEXT PRIMARY KEY,
			brand TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (brand, model)
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INT PRIMARY KEY DEFAULT 1,
			company_name TEXT NOT NULL DEFAULT '',
			tax_id TEXT NOT NULL DEFAULT '',
			monthly_goal DOUBLE PRECISION NOT NULL DEFAULT 0,
			logo_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS cash_closings (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL UNIQUE,
			inflows DOUBLE PRECISION NOT NULL,
			expenses DOUBLE PRECISION NOT NULL,
			deposits DOUBLE PRECISION NOT NULL,
			expected DOUBLE PRECISION NOT NULL,
			counted DOUBLE PRECISION NOT NULL,
			difference DOUBLE PRECISION NOT NULL,
			closed_by TEXT NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	query := `
		SELECT id, name, weekly_goal, active, variants, created_at
		FROM products
	`
	if !includeInactive {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY lower(name)`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Product, 0, 32)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *product)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var variantsRaw []byte
	if err := row.Scan(&p.ID, &p.Name, &p.WeeklyGoal, &p.Active, &variantsRaw, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(variantsRaw, &p.Variants); err != nil {
		return nil, fmt.Errorf("decode variants for %s: %w", p.ID, err)
	}
	return &p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, weekly_goal, active, variants, created_at
		FROM products
		WHERE id = $1
	`, id)
	return scanProduct(row)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	variantsRaw, err := json.Marshal(product.Variants)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, weekly_goal, active, variants, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, product.ID, product.Name, product.WeeklyGoal, product.Active, variantsRaw, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product, entries []domain.StockLedgerEntry) (*domain.Product, error) {
	variantsRaw, err := json.Marshal(product.Variants)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, weekly_goal = $3, active = $4, variants = $5
		WHERE id = $1
	`, product.ID, product.Name, product.WeeklyGoal, product.Active, variantsRaw)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrProductNotFound
	}
	if err := insertLedgerEntries(ctx, tx, entries); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) DeactivateProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET active = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrProductNotFound
	}
	return nil
}

// lockProducts loads and row-locks the products touched by a sale mutation.
func lockProducts(ctx context.Context, tx *sql.Tx, ids []string) (map[string]domain.Product, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, weekly_goal, active, variants, created_at
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[product.ID] = *product
	}
	return out, rows.Err()
}

func loadModelNames(ctx context.Context, tx *sql.Tx, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT id, brand, model FROM phone_models WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string, len(ids))
	for rows.Next() {
		var id, brand, model string
		if err := rows.Scan(&id, &brand, &model); err != nil {
			return nil, err
		}
		out[id] = brand + " " + model
	}
	return out, rows.Err()
}

// applySaleItems resolves the item inputs against the locked product state,
// decrements one unit of stock per item and fills in the sale snapshot
// fields. It mutates products in place; the caller persists on success.
func applySaleItems(products map[string]domain.Product, modelNames map[string]string, sale *domain.Sale, items []domain.SaleItemInput, reason string, actorID string, now time.Time) ([]domain.StockLedgerEntry, error) {
	entries := make([]domain.StockLedgerEntry, 0, len(items))
	resolved := make([]domain.SaleItem, 0, len(items))
	total := 0.0

	for _, in := range items {
		p, ok := products[in.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, in.ProductID)
		}
		if !p.Active {
			return nil, fmt.Errorf("%w: product %s is inactive", store.ErrValidation, in.ProductID)
		}
		vi := slices.IndexFunc(p.Variants, func(v domain.Variant) bool { return v.ID == in.VariantID })
		if vi < 0 {
			return nil, fmt.Errorf("%w: %s in product %s", store.ErrVariantNotFound, in.VariantID, in.ProductID)
		}
		variant := p.Variants[vi]
		if variant.Stock < 1 {
			return nil, fmt.Errorf("%w: %s / %s", store.ErrInsufficientStock, p.Name, variant.Name)
		}
		p.Variants[vi].Stock--
		products[in.ProductID] = p

		modelName := ""
		if in.ModelID != "" {
			name, exists := modelNames[in.ModelID]
			if !exists {
				return nil, fmt.Errorf("%w: phone model %s", store.ErrValidation, in.ModelID)
			}
			modelName = name
		}
		soldPrice := in.SoldPrice
		if sale.TestSale {
			soldPrice = 0
		}
		fullName := p.Name + " " + variant.Name
		if modelName != "" {
			fullName += " (" + modelName + ")"
		}
		resolved = append(resolved, domain.SaleItem{
			ProductID:     in.ProductID,
			VariantID:     in.VariantID,
			FullName:      fullName,
			ModelID:       in.ModelID,
			ModelName:     modelName,
			OriginalPrice: variant.Price,
			SoldPrice:     soldPrice,
		})
		total += soldPrice

		entries = append(entries, domain.StockLedgerEntry{
			ID:            xid.New("stk"),
			ProductID:     in.ProductID,
			VariantID:     in.VariantID,
			VariantName:   variant.Name,
			PreviousStock: variant.Stock,
			NewStock:      variant.Stock - 1,
			Delta:         -1,
			Reason:        reason,
			SaleID:        sale.ID,
			ActorID:       actorID,
			CreatedAt:     now,
		})
	}

	sale.Items = resolved
	sale.TotalValue = total
	return entries, nil
}

// restoreSaleItems increments stock for a previously applied sale. Items
// whose product or variant no longer exists are skipped.
func restoreSaleItems(products map[string]domain.Product, sale *domain.Sale, reason string, actorID string, now time.Time) []domain.StockLedgerEntry {
	entries := make([]domain.StockLedgerEntry, 0, len(sale.Items))
	for _, item := range sale.Items {
		p, ok := products[item.ProductID]
		if !ok {
			continue
		}
		vi := slices.IndexFunc(p.Variants, func(v domain.Variant) bool { return v.ID == item.VariantID })
		if vi < 0 {
			continue
		}
		prev := p.Variants[vi].Stock
		p.Variants[vi].Stock++
		products[item.ProductID] = p

		entries = append(entries, domain.StockLedgerEntry{
			ID:            xid.New("stk"),
			ProductID:     item.ProductID,
			VariantID:     item.VariantID,
			VariantName:   p.Variants[vi].Name,
			PreviousStock: prev,
			NewStock:      prev + 1,
			Delta:         1,
			Reason:        reason,
			SaleID:        sale.ID,
			ActorID:       actorID,
			CreatedAt:     now,
		})
	}
	return entries
}

func saveProducts(ctx context.Context, tx *sql.Tx, products map[string]domain.Product) error {
	for _, p := range products {
		variantsRaw, err := json.Marshal(p.Variants)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET variants = $2 WHERE id = $1`, p.ID, variantsRaw); err != nil {
			return err
		}
	}
	return nil
}

func insertLedgerEntries(ctx context.Context, tx *sql.Tx, entries []domain.StockLedgerEntry) error {
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stock_ledger (id, product_id, variant_id, variant_name, previous_stock, new_stock, delta, reason, sale_id, actor_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, e.ID, e.ProductID, e.VariantID, e.VariantName, e.PreviousStock, e.NewStock, e.Delta, e.Reason, e.SaleID, e.ActorID, e.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertSale(ctx context.Context, tx *sql.Tx, sale *domain.Sale) error {
	itemsRaw, err := json.Marshal(sale.Items)
	if err != nil {
		return err
	}
	paymentsRaw, err := json.Marshal(sale.Payments)
	if err != nil {
		return err
	}
	methodsRaw, err := json.Marshal(sale.PaymentMethodsUsed)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, date, seller, invoice_number, total_value, test_sale, items, payments, payment_methods, note, created_by, created_at, modified_by, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date,
			seller = EXCLUDED.seller,
			invoice_number = EXCLUDED.invoice_number,
			total_value = EXCLUDED.total_value,
			test_sale = EXCLUDED.test_sale,
			items = EXCLUDED.items,
			payments = EXCLUDED.payments,
			payment_methods = EXCLUDED.payment_methods,
			note = EXCLUDED.note,
			modified_by = EXCLUDED.modified_by,
			modified_at = EXCLUDED.modified_at
	`, sale.ID, sale.Date, sale.Seller, sale.InvoiceNumber, sale.TotalValue, sale.TestSale,
		itemsRaw, paymentsRaw, methodsRaw, sale.Note, sale.CreatedBy, sale.CreatedAt,
		sale.ModifiedBy, nullTime(sale.ModifiedAt))
	return err
}

func productIDsFromInputs(items []domain.SaleItemInput) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		out = append(out, item.ProductID)
	}
	return out
}

func modelIDsFromInputs(items []domain.SaleItemInput) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item.ModelID == "" {
			continue
		}
		if _, ok := seen[item.ModelID]; ok {
			continue
		}
		seen[item.ModelID] = struct{}{}
		out = append(out, item.ModelID)
	}
	return out
}

// runSaleTx executes fn inside a serializable transaction, retrying a bounded
// number of times when the database aborts it with a serialization or
// deadlock error.
func (s *Store) runSaleTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := func() error {
			tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
			if err != nil {
				return err
			}
			defer func() { _ = tx.Rollback() }()
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit()
		}()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", store.ErrTransactionFailed, lastErr)
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItemInput, actorID string) (*domain.Sale, error) {
	var out *domain.Sale
	err := s.runSaleTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		saleCopy := sale

		products, err := lockProducts(ctx, tx, productIDsFromInputs(items))
		if err != nil {
			return err
		}
		modelNames, err := loadModelNames(ctx, tx, modelIDsFromInputs(items))
		if err != nil {
			return err
		}
		entries, err := applySaleItems(products, modelNames, &saleCopy, items, domain.StockReasonNewSale, actorID, now)
		if err != nil {
			return err
		}
		if err := saveProducts(ctx, tx, products); err != nil {
			return err
		}
		if err := insertLedgerEntries(ctx, tx, entries); err != nil {
			return err
		}
		if err := insertSale(ctx, tx, &saleCopy); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: sale %s already exists", store.ErrValidation, saleCopy.ID)
			}
			return err
		}
		out = &saleCopy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItemInput, actorID string) (*domain.Sale, error) {
	var out *domain.Sale
	err := s.runSaleTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		saleCopy := sale

		existing, err := getSaleTx(ctx, tx, sale.ID, true)
		if err != nil {
			return err
		}

		ids := productIDsFromInputs(items)
		for _, item := range existing.Items {
			if !slices.Contains(ids, item.ProductID) {
				ids = append(ids, item.ProductID)
			}
		}
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}
		modelNames, err := loadModelNames(ctx, tx, modelIDsFromInputs(items))
		if err != nil {
			return err
		}

		reversals := restoreSaleItems(products, existing, domain.StockReasonEditReversal, actorID, now)
		applications, err := applySaleItems(products, modelNames, &saleCopy, items, domain.StockReasonEditApplication, actorID, now)
		if err != nil {
			return err
		}

		if err := saveProducts(ctx, tx, products); err != nil {
			return err
		}
		if err := insertLedgerEntries(ctx, tx, reversals); err != nil {
			return err
		}
		if err := insertLedgerEntries(ctx, tx, applications); err != nil {
			return err
		}
		if err := insertSale(ctx, tx, &saleCopy); err != nil {
			return err
		}
		out = &saleCopy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string, actorID string) error {
	return s.runSaleTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		existing, err := getSaleTx(ctx, tx, id, true)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(existing.Items))
		for _, item := range existing.Items {
			if !slices.Contains(ids, item.ProductID) {
				ids = append(ids, item.ProductID)
			}
		}
		products := map[string]domain.Product{}
		if len(ids) > 0 {
			products, err = lockProducts(ctx, tx, ids)
			if err != nil {
				return err
			}
		}
		entries := restoreSaleItems(products, existing, domain.StockReasonSaleDeletion, actorID, now)

		if err := saveProducts(ctx, tx, products); err != nil {
			return err
		}
		if err := insertLedgerEntries(ctx, tx, entries); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
		return err
	})
}

const saleColumns = `id, date, seller, invoice_number, total_value, test_sale, items, payments, payment_methods, note, created_by, created_at, modified_by, modified_at`

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var itemsRaw, paymentsRaw, methodsRaw []byte
	var modifiedAt sql.NullTime
	err := row.Scan(&sale.ID, &sale.Date, &sale.Seller, &sale.InvoiceNumber, &sale.TotalValue,
		&sale.TestSale, &itemsRaw, &paymentsRaw, &methodsRaw, &sale.Note,
		&sale.CreatedBy, &sale.CreatedAt, &sale.ModifiedBy, &modifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(itemsRaw, &sale.Items); err != nil {
		return nil, fmt.Errorf("decode sale items for %s: %w", sale.ID, err)
	}
	if err := json.Unmarshal(paymentsRaw, &sale.Payments); err != nil {
		return nil, fmt.Errorf("decode sale payments for %s: %w", sale.ID, err)
	}
	if err := json.Unmarshal(methodsRaw, &sale.PaymentMethodsUsed); err != nil {
		return nil, fmt.Errorf("decode payment methods for %s: %w", sale.ID, err)
	}
	if modifiedAt.Valid {
		at := modifiedAt.Time
		sale.ModifiedAt = &at
	}
	return &sale, nil
}

func getSaleTx(ctx context.Context, tx *sql.Tx, id string, forUpdate bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	return scanSale(tx.QueryRowContext(ctx, query, id))
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	return scanSale(row)
}

func (s *Store) ListSales(ctx context.Context, query domain.SaleQuery) (*domain.SalePage, error) {
	sortCol := "date"
	if query.SortKey == "total" {
		sortCol = "total_value"
	}
	descending := query.SortOrder != "asc"
	direction := "DESC"
	cmp := "<"
	if !descending {
		direction = "ASC"
		cmp = ">"
	}

	where := make([]string, 0, 4)
	args := make([]any, 0, 6)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if query.Seller != "" {
		where = append(where, "seller = "+arg(query.Seller))
	}
	if query.CreatedBy != "" {
		where = append(where, "created_by = "+arg(query.CreatedBy))
	}
	if query.PaymentMethod != "" {
		where = append(where, "payment_methods @> jsonb_build_array("+arg(query.PaymentMethod)+"::text)")
	}
	if query.InvoicePrefix != "" {
		where = append(where, "invoice_number LIKE "+arg(query.InvoicePrefix)+" || '%'")
	}
	if query.Cursor != "" {
		cur, err := store.DecodeSaleCursor(query.Cursor)
		if err != nil {
			return nil, err
		}
		var sortVal any
		if sortCol == "total_value" {
			var total float64
			if _, err := fmt.Sscanf(strings.TrimSpace(cur.SortValue), "%f", &total); err != nil {
				return nil, fmt.Errorf("%w: malformed cursor", store.ErrValidation)
			}
			sortVal = total
		} else {
			at, err := time.Parse(time.RFC3339Nano, cur.SortValue)
			if err != nil {
				return nil, fmt.Errorf("%w: malformed cursor", store.ErrValidation)
			}
			sortVal = at
		}
		where = append(where, fmt.Sprintf("(%s, id) %s (%s, %s)", sortCol, cmp, arg(sortVal), arg(cur.ID)))
	}

	limit := query.Limit
	if limit < 1 {
		limit = 50
	}

	sqlQuery := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		sqlQuery += ` WHERE ` + strings.Join(where, " AND ")
	}
	sqlQuery += fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT %s", sortCol, direction, direction, arg(limit+1))

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &domain.SalePage{Sales: sales}
	if len(sales) > limit {
		page.Sales = sales[:limit]
		last := page.Sales[limit-1]
		sortValue := last.Date.UTC().Format(time.RFC3339Nano)
		if sortCol == "total_value" {
			sortValue = fmt.Sprintf("%020.2f", last.TotalValue)
		}
		page.NextCursor = store.EncodeSaleCursor(store.SaleCursor{SortValue: sortValue, ID: last.ID})
	}
	return page, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE date >= $1 AND date < $2
		ORDER BY date, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sale)
	}
	return out, rows.Err()
}

func (s *Store) ListStockLedger(ctx context.Context, productID string, variantID string, limit int) ([]domain.StockLedgerEntry, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if productID != "" {
		args = append(args, productID)
		where = append(where, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if variantID != "" {
		args = append(args, variantID)
		where = append(where, fmt.Sprintf("variant_id = $%d", len(args)))
	}
	query := `
		SELECT id, product_id, variant_id, variant_name, previous_stock, new_stock, delta, reason, sale_id, actor_id, created_at
		FROM stock_ledger
	`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.StockLedgerEntry, 0, 64)
	for rows.Next() {
		var e domain.StockLedgerEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.VariantID, &e.VariantName, &e.PreviousStock,
			&e.NewStock, &e.Delta, &e.Reason, &e.SaleID, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, date, amount, description, created_by, created_at, modified_by, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, expense.ID, expense.Date, expense.Amount, expense.Description, expense.CreatedBy,
		expense.CreatedAt, expense.ModifiedBy, nullTime(expense.ModifiedAt))
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	var e domain.Expense
	var modifiedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, amount, description, created_by, created_at, modified_by, modified_at
		FROM expenses
		WHERE id = $1
	`, id).Scan(&e.ID, &e.Date, &e.Amount, &e.Description, &e.CreatedBy, &e.CreatedAt, &e.ModifiedBy, &modifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if modifiedAt.Valid {
		at := modifiedAt.Time
		e.ModifiedAt = &at
	}
	return &e, nil
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET date = $2, amount = $3, description = $4, modified_by = $5, modified_at = $6
		WHERE id = $1
	`, expense.ID, expense.Date, expense.Amount, expense.Description, expense.ModifiedBy, nullTime(expense.ModifiedAt))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return &expense, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "expenses", id)
}

func (s *Store) ListExpensesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, amount, description, created_by, created_at, modified_by, modified_at
		FROM expenses
		WHERE date >= $1 AND date < $2
		ORDER BY date, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Expense, 0, 32)
	for rows.Next() {
		var e domain.Expense
		var modifiedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Date, &e.Amount, &e.Description, &e.CreatedBy, &e.CreatedAt, &e.ModifiedBy, &modifiedAt); err != nil {
			return nil, err
		}
		if modifiedAt.Valid {
			at := modifiedAt.Time
			e.ModifiedAt = &at
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateDeposit(ctx context.Context, deposit domain.Deposit) (*domain.Deposit, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposits (id, date, amount, note, created_by, created_at, modified_by, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, deposit.ID, deposit.Date, deposit.Amount, deposit.Note, deposit.CreatedBy,
		deposit.CreatedAt, deposit.ModifiedBy, nullTime(deposit.ModifiedAt))
	if err != nil {
		return nil, err
	}
	return &deposit, nil
}

func (s *Store) GetDeposit(ctx context.Context, id string) (*domain.Deposit, error) {
	var d domain.Deposit
	var modifiedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, amount, note, created_by, created_at, modified_by, modified_at
		FROM deposits
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Date, &d.Amount, &d.Note, &d.CreatedBy, &d.CreatedAt, &d.ModifiedBy, &modifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if modifiedAt.Valid {
		at := modifiedAt.Time
		d.ModifiedAt = &at
	}
	return &d, nil
}

func (s *Store) UpdateDeposit(ctx context.Context, deposit domain.Deposit) (*domain.Deposit, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deposits
		SET date = $2, amount = $3, note = $4, modified_by = $5, modified_at = $6
		WHERE id = $1
	`, deposit.ID, deposit.Date, deposit.Amount, deposit.Note, deposit.ModifiedBy, nullTime(deposit.ModifiedAt))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return &deposit, nil
}

func (s *Store) DeleteDeposit(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "deposits", id)
}

func (s *Store) ListDepositsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Deposit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, amount, note, created_by, created_at, modified_by, modified_at
		FROM deposits
		WHERE date >= $1 AND date < $2
		ORDER BY date, id
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Deposit, 0, 32)
	for rows.Next() {
		var d domain.Deposit
		var modifiedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.Date, &d.Amount, &d.Note, &d.CreatedBy, &d.CreatedAt, &d.ModifiedBy, &modifiedAt); err != nil {
			return nil, err
		}
		if modifiedAt.Valid {
			at := modifiedAt.Time
			d.ModifiedAt = &at
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) deleteByID(ctx context.Context, table string, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSeller(ctx context.Context, seller domain.Seller) (*domain.Seller, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sellers (id, name, created_at) VALUES ($1, $2, $3)
	`, seller.ID, seller.Name, seller.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: seller %q already exists", store.ErrValidation, seller.Name)
		}
		return nil, err
	}
	return &seller, nil
}

func (s *Store) ListSellers(ctx context.Context) ([]domain.Seller, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM sellers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Seller, 0, 16)
	for rows.Next() {
		var seller domain.Seller
		if err := rows.Scan(&seller.ID, &seller.Name, &seller.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, seller)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSeller(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "sellers", id)
}

func (s *Store) CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_methods (id, name, created_at) VALUES ($1, $2, $3)
	`, method.ID, method.Name, method.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: payment method %q already exists", store.ErrValidation, method.Name)
		}
		return nil, err
	}
	return &method, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM payment_methods ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PaymentMethod, 0, 8)
	for rows.Next() {
		var method domain.PaymentMethod
		if err := rows.Scan(&method.ID, &method.Name, &method.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, method)
	}
	return out, rows.Err()
}

func (s *Store) DeletePaymentMethod(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "payment_methods", id)
}

func (s *Store) CreatePhoneModel(ctx context.Context, model domain.PhoneModel) (*domain.PhoneModel, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phone_models (id, brand, model, created_at) VALUES ($1, $2, $3, $4)
	`, model.ID, model.Brand, model.Model, model.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: model %s %s already exists", store.ErrValidation, model.Brand, model.Model)
		}
		return nil, err
	}
	return &model, nil
}

func (s *Store) ListPhoneModels(ctx context.Context) ([]domain.PhoneModel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, brand, model, created_at FROM phone_models ORDER BY brand, model`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PhoneModel, 0, 16)
	for rows.Next() {
		var model domain.PhoneModel
		if err := rows.Scan(&model.ID, &model.Brand, &model.Model, &model.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, model)
	}
	return out, rows.Err()
}

func (s *Store) DeletePhoneModel(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "phone_models", id)
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var settings domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT company_name, tax_id, monthly_goal, logo_url FROM settings WHERE id = 1
	`).Scan(&settings.CompanyName, &settings.TaxID, &settings.MonthlyGoal, &settings.LogoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.Settings{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, company_name, tax_id, monthly_goal, logo_url)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			tax_id = EXCLUDED.tax_id,
			monthly_goal = EXCLUDED.monthly_goal,
			logo_url = EXCLUDED.logo_url
	`, settings.CompanyName, settings.TaxID, settings.MonthlyGoal, settings.LogoURL)
	return err
}

func (s *Store) CreateCashClosing(ctx context.Context, closing domain.CashClosing) (*domain.CashClosing, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cash_closings (id, date, inflows, expenses, deposits, expected, counted, difference, closed_by, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, closing.ID, closing.Date, closing.Inflows, closing.Expenses, closing.Deposits,
		closing.Expected, closing.Counted, closing.Difference, closing.ClosedBy, closing.ClosedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: register already closed for %s", store.ErrValidation, closing.Date)
		}
		return nil, err
	}
	return &closing, nil
}

func (s *Store) GetCashClosing(ctx context.Context, date string) (*domain.CashClosing, error) {
	var closing domain.CashClosing
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, inflows, expenses, deposits, expected, counted, difference, closed_by, closed_at
		FROM cash_closings
		WHERE date = $1
	`, date).Scan(&closing.ID, &closing.Date, &closing.Inflows, &closing.Expenses, &closing.Deposits,
		&closing.Expected, &closing.Counted, &closing.Difference, &closing.ClosedBy, &closing.ClosedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &closing, nil
}

func (s *Store) ListCashClosings(ctx context.Context, limit int) ([]domain.CashClosing, error) {
	if limit < 1 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, inflows, expenses, deposits, expected, counted, difference, closed_by, closed_at
		FROM cash_closings
		ORDER BY date DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.CashClosing, 0, limit)
	for rows.Next() {
		var closing domain.CashClosing
		if err := rows.Scan(&closing.ID, &closing.Date, &closing.Inflows, &closing.Expenses, &closing.Deposits,
			&closing.Expected, &closing.Counted, &closing.Difference, &closing.ClosedBy, &closing.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, closing)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, strings.ToLower(user.Email), user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s already exists", store.ErrValidation, user.Email)
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password, role, active, created_at FROM users WHERE email = $1
	`, strings.ToLower(email)).Scan(&user.ID, &user.Email, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, password, role, active, created_at FROM users ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Email, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, email string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE email = $1
	`, strings.ToLower(email), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

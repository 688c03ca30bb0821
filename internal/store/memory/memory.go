package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lojinha/backend/internal/domain"
	"lojinha/backend/internal/store"
	"lojinha/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	salesByID      map[string]*domain.Sale
	ledger         []domain.StockLedgerEntry
	expensesByID   map[string]domain.Expense
	depositsByID   map[string]domain.Deposit
	sellersByID    map[string]domain.Seller
	methodsByID    map[string]domain.PaymentMethod
	modelsByID     map[string]domain.PhoneModel
	settings       domain.Settings
	closingsByDate map[string]domain.CashClosing
	usersByEmail   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		email    string
		password string
		role     string
	}{
		{"admin@lojinha.local", adminPwd, domain.RoleAdmin},
		{"vendedor@lojinha.local", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users[u.email] = domain.UserAccount{
			ID:        xid.New("usr"),
			Email:     u.email,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:       make(map[string]domain.Product),
		salesByID:      make(map[string]*domain.Sale),
		ledger:         make([]domain.StockLedgerEntry, 0, 128),
		expensesByID:   make(map[string]domain.Expense),
		depositsByID:   make(map[string]domain.Deposit),
		sellersByID:    make(map[string]domain.Seller),
		methodsByID:    make(map[string]domain.PaymentMethod),
		modelsByID:     make(map[string]domain.PhoneModel),
		closingsByDate: make(map[string]domain.CashClosing),
		usersByEmail:   seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{
			ID: "prod-capinha-silicone", Name: "Capinha Silicone", WeeklyGoal: 20, Active: true, CreatedAt: now,
			Variants: []domain.Variant{
				{ID: "var-cap-preta", Name: "Preta", Stock: 35, Price: 39.9},
				{ID: "var-cap-azul", Name: "Azul", Stock: 22, Price: 39.9},
				{ID: "var-cap-rosa", Name: "Rosa", Stock: 18, Price: 44.9},
			},
		},
		{
			ID: "prod-pelicula-3d", Name: "Película 3D", WeeklyGoal: 30, Active: true, CreatedAt: now,
			Variants: []domain.Variant{
				{ID: "var-pel-comum", Name: "Comum", Stock: 60, Price: 19.9},
				{ID: "var-pel-privacidade", Name: "Privacidade", Stock: 25, Price: 29.9},
			},
		},
		{
			ID: "prod-fone-bt", Name: "Fone Bluetooth", WeeklyGoal: 10, Active: true, CreatedAt: now,
			Variants: []domain.Variant{
				{ID: "var-fone-branco", Name: "Branco", Stock: 12, Price: 89.9},
				{ID: "var-fone-preto", Name: "Preto", Stock: 9, Price: 89.9},
			},
		},
		{
			ID: "prod-carregador-turbo", Name: "Carregador Turbo", WeeklyGoal: 15, Active: true, CreatedAt: now,
			Variants: []domain.Variant{
				{ID: "var-car-20w", Name: "20W", Stock: 28, Price: 59.9},
				{ID: "var-car-45w", Name: "45W", Stock: 14, Price: 99.9},
			},
		},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	for _, seller := range []string{"Ana", "Bruno", "Carla"} {
		id := xid.New("sel")
		s.sellersByID[id] = domain.Seller{ID: id, Name: seller, CreatedAt: now}
	}
	for _, method := range []string{"Dinheiro", "Pix", "Cartão de Crédito", "Cartão de Débito"} {
		id := xid.New("pay")
		s.methodsByID[id] = domain.PaymentMethod{ID: id, Name: method, CreatedAt: now}
	}
	models := []struct{ brand, model string }{
		{"Apple", "iPhone 13"},
		{"Apple", "iPhone 15 Pro"},
		{"Samsung", "Galaxy S23"},
		{"Samsung", "Galaxy A54"},
		{"Motorola", "Moto G84"},
	}
	for _, m := range models {
		id := xid.New("mod")
		s.modelsByID[id] = domain.PhoneModel{ID: id, Brand: m.brand, Model: m.model, CreatedAt: now}
	}
	s.settings = domain.Settings{CompanyName: "Lojinha Acessórios", MonthlyGoal: 15000}
	return s
}

func cloneProduct(p domain.Product) domain.Product {
	out := p
	out.Variants = slices.Clone(p.Variants)
	return out
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	out := *sale
	out.Items = slices.Clone(sale.Items)
	out.Payments = slices.Clone(sale.Payments)
	out.PaymentMethodsUsed = slices.Clone(sale.PaymentMethodsUsed)
	if sale.ModifiedAt != nil {
		at := *sale.ModifiedAt
		out.ModifiedAt = &at
	}
	return &out
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !includeInactive && !p.Active {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	slices.SortFunc(out, func(a, b domain.Product) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	clone := cloneProduct(p)
	return &clone, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrValidation, product.ID)
	}
	s.products[product.ID] = cloneProduct(product)
	clone := cloneProduct(product)
	return &clone, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product, entries []domain.StockLedgerEntry) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return nil, store.ErrProductNotFound
	}
	s.products[product.ID] = cloneProduct(product)
	s.ledger = append(s.ledger, entries...)
	clone := cloneProduct(product)
	return &clone, nil
}

func (s *Store) DeactivateProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return store.ErrProductNotFound
	}
	p.Active = false
	s.products[id] = p
	return nil
}

// stageSale resolves the item inputs against a scratch copy of the touched
// products, decrements one unit of stock per item and builds the ledger
// entries. Nothing is written to s; the caller commits the scratch map only
// after every item resolved.
func (s *Store) stageSale(scratch map[string]domain.Product, sale *domain.Sale, items []domain.SaleItemInput, reason string, actorID string, now time.Time) ([]domain.StockLedgerEntry, error) {
	entries := make([]domain.StockLedgerEntry, 0, len(items))
	resolved := make([]domain.SaleItem, 0, len(items))
	total := 0.0

	for _, in := range items {
		p, ok := scratch[in.ProductID]
		if !ok {
			orig, exists := s.products[in.ProductID]
			if !exists {
				return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, in.ProductID)
			}
			p = cloneProduct(orig)
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
		scratch[in.ProductID] = p

		modelName := ""
		if in.ModelID != "" {
			model, exists := s.modelsByID[in.ModelID]
			if !exists {
				return nil, fmt.Errorf("%w: phone model %s", store.ErrValidation, in.ModelID)
			}
			modelName = model.Brand + " " + model.Model
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

// restoreSale increments one unit of stock per item of a previously applied
// sale. Items whose product or variant no longer exists are skipped; the
// caller still deletes or rewrites the sale itself.
func (s *Store) restoreSale(scratch map[string]domain.Product, sale *domain.Sale, reason string, actorID string, now time.Time) []domain.StockLedgerEntry {
	entries := make([]domain.StockLedgerEntry, 0, len(sale.Items))
	for _, item := range sale.Items {
		p, ok := scratch[item.ProductID]
		if !ok {
			orig, exists := s.products[item.ProductID]
			if !exists {
				continue
			}
			p = cloneProduct(orig)
		}
		vi := slices.IndexFunc(p.Variants, func(v domain.Variant) bool { return v.ID == item.VariantID })
		if vi < 0 {
			continue
		}
		prev := p.Variants[vi].Stock
		p.Variants[vi].Stock++
		scratch[item.ProductID] = p

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

func (s *Store) commitScratch(scratch map[string]domain.Product) {
	for id, p := range scratch {
		s.products[id] = p
	}
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, items []domain.SaleItemInput, actorID string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, fmt.Errorf("%w: sale %s already exists", store.ErrValidation, sale.ID)
	}

	now := time.Now().UTC()
	scratch := make(map[string]domain.Product, len(items))
	entries, err := s.stageSale(scratch, &sale, items, domain.StockReasonNewSale, actorID, now)
	if err != nil {
		return nil, err
	}

	s.commitScratch(scratch)
	s.ledger = append(s.ledger, entries...)
	s.salesByID[sale.ID] = cloneSale(&sale)
	return cloneSale(&sale), nil
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale, items []domain.SaleItemInput, actorID string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[sale.ID]
	if !ok {
		return nil, store.ErrNotFound
	}

	now := time.Now().UTC()
	scratch := make(map[string]domain.Product, len(items)+len(existing.Items))

	// Reversals are staged before any application so an item kept across the
	// edit never fails on its own previously sold unit.
	reversals := s.restoreSale(scratch, existing, domain.StockReasonEditReversal, actorID, now)
	applications, err := s.stageSale(scratch, &sale, items, domain.StockReasonEditApplication, actorID, now)
	if err != nil {
		return nil, err
	}

	s.commitScratch(scratch)
	s.ledger = append(s.ledger, reversals...)
	s.ledger = append(s.ledger, applications...)
	s.salesByID[sale.ID] = cloneSale(&sale)
	return cloneSale(&sale), nil
}

func (s *Store) DeleteSale(_ context.Context, id string, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.salesByID[id]
	if !ok {
		return store.ErrNotFound
	}

	now := time.Now().UTC()
	scratch := make(map[string]domain.Product, len(existing.Items))
	entries := s.restoreSale(scratch, existing, domain.StockReasonSaleDeletion, actorID, now)

	s.commitScratch(scratch)
	s.ledger = append(s.ledger, entries...)
	delete(s.salesByID, id)
	return nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func saleSortValue(sale domain.Sale, key string) string {
	switch key {
	case "total":
		return fmt.Sprintf("%020.2f", sale.TotalValue)
	default:
		return sale.Date.UTC().Format(time.RFC3339Nano)
	}
}

func (s *Store) ListSales(_ context.Context, query domain.SaleQuery) (*domain.SalePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if query.Seller != "" && sale.Seller != query.Seller {
			continue
		}
		if query.CreatedBy != "" && sale.CreatedBy != query.CreatedBy {
			continue
		}
		if query.PaymentMethod != "" && !slices.Contains(sale.PaymentMethodsUsed, query.PaymentMethod) {
			continue
		}
		if query.InvoicePrefix != "" && !strings.HasPrefix(sale.InvoiceNumber, query.InvoicePrefix) {
			continue
		}
		filtered = append(filtered, *cloneSale(sale))
	}

	descending := query.SortOrder != "asc"
	slices.SortFunc(filtered, func(a, b domain.Sale) int {
		c := strings.Compare(saleSortValue(a, query.SortKey), saleSortValue(b, query.SortKey))
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if descending {
			return -c
		}
		return c
	})

	start := 0
	if query.Cursor != "" {
		cur, err := store.DecodeSaleCursor(query.Cursor)
		if err != nil {
			return nil, err
		}
		for i, sale := range filtered {
			c := strings.Compare(saleSortValue(sale, query.SortKey), cur.SortValue)
			if c == 0 {
				c = strings.Compare(sale.ID, cur.ID)
			}
			if descending {
				c = -c
			}
			if c > 0 {
				start = i
				break
			}
			start = i + 1
		}
	}

	limit := query.Limit
	if limit < 1 {
		limit = 50
	}
	end := start + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	page := &domain.SalePage{Sales: filtered[start:end]}
	if end < len(filtered) && end > start {
		last := page.Sales[len(page.Sales)-1]
		page.NextCursor = store.EncodeSaleCursor(store.SaleCursor{
			SortValue: saleSortValue(last, query.SortKey),
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.Date.Before(from) || !sale.Date.Before(to) {
			continue
		}
		out = append(out, *cloneSale(sale))
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		if a.Date.Equal(b.Date) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.Date.Before(b.Date) {
			return -1
		}
		return 1
	})
	return out, nil
}

func (s *Store) ListStockLedger(_ context.Context, productID string, variantID string, limit int) ([]domain.StockLedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockLedgerEntry, 0, limit)
	for i := len(s.ledger) - 1; i >= 0; i-- {
		entry := s.ledger[i]
		if productID != "" && entry.ProductID != productID {
			continue
		}
		if variantID != "" && entry.VariantID != variantID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expensesByID[expense.ID] = expense
	return &expense, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, ok := s.expensesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &expense, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expensesByID[expense.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.expensesByID[expense.ID] = expense
	return &expense, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expensesByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expensesByID, id)
	return nil
}

func (s *Store) ListExpensesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Expense, 0, len(s.expensesByID))
	for _, e := range s.expensesByID {
		if e.Date.Before(from) || !e.Date.Before(to) {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b domain.Expense) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *Store) CreateDeposit(_ context.Context, deposit domain.Deposit) (*domain.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.depositsByID[deposit.ID] = deposit
	return &deposit, nil
}

func (s *Store) GetDeposit(_ context.Context, id string) (*domain.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deposit, ok := s.depositsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &deposit, nil
}

func (s *Store) UpdateDeposit(_ context.Context, deposit domain.Deposit) (*domain.Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.depositsByID[deposit.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.depositsByID[deposit.ID] = deposit
	return &deposit, nil
}

func (s *Store) DeleteDeposit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.depositsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.depositsByID, id)
	return nil
}

func (s *Store) ListDepositsBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Deposit, 0, len(s.depositsByID))
	for _, d := range s.depositsByID {
		if d.Date.Before(from) || !d.Date.Before(to) {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b domain.Deposit) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *Store) CreateSeller(_ context.Context, seller domain.Seller) (*domain.Seller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sellersByID {
		if strings.EqualFold(existing.Name, seller.Name) {
			return nil, fmt.Errorf("%w: seller %q already exists", store.ErrValidation, seller.Name)
		}
	}
	s.sellersByID[seller.ID] = seller
	return &seller, nil
}

func (s *Store) ListSellers(_ context.Context) ([]domain.Seller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Seller, 0, len(s.sellersByID))
	for _, seller := range s.sellersByID {
		out = append(out, seller)
	}
	slices.SortFunc(out, func(a, b domain.Seller) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) DeleteSeller(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sellersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sellersByID, id)
	return nil
}

func (s *Store) CreatePaymentMethod(_ context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.methodsByID {
		if strings.EqualFold(existing.Name, method.Name) {
			return nil, fmt.Errorf("%w: payment method %q already exists", store.ErrValidation, method.Name)
		}
	}
	s.methodsByID[method.ID] = method
	return &method, nil
}

func (s *Store) ListPaymentMethods(_ context.Context) ([]domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PaymentMethod, 0, len(s.methodsByID))
	for _, method := range s.methodsByID {
		out = append(out, method)
	}
	slices.SortFunc(out, func(a, b domain.PaymentMethod) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) DeletePaymentMethod(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.methodsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.methodsByID, id)
	return nil
}

func (s *Store) CreatePhoneModel(_ context.Context, model domain.PhoneModel) (*domain.PhoneModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.modelsByID {
		if strings.EqualFold(existing.Brand, model.Brand) && strings.EqualFold(existing.Model, model.Model) {
			return nil, fmt.Errorf("%w: model %s %s already exists", store.ErrValidation, model.Brand, model.Model)
		}
	}
	s.modelsByID[model.ID] = model
	return &model, nil
}

func (s *Store) ListPhoneModels(_ context.Context) ([]domain.PhoneModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PhoneModel, 0, len(s.modelsByID))
	for _, model := range s.modelsByID {
		out = append(out, model)
	}
	slices.SortFunc(out, func(a, b domain.PhoneModel) int {
		if c := strings.Compare(a.Brand, b.Brand); c != 0 {
			return c
		}
		return strings.Compare(a.Model, b.Model)
	})
	return out, nil
}

func (s *Store) DeletePhoneModel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.modelsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.modelsByID, id)
	return nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.settings
	return &settings, nil
}

func (s *Store) SaveSettings(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	return nil
}

func (s *Store) CreateCashClosing(_ context.Context, closing domain.CashClosing) (*domain.CashClosing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.closingsByDate[closing.Date]; exists {
		return nil, fmt.Errorf("%w: register already closed for %s", store.ErrValidation, closing.Date)
	}
	s.closingsByDate[closing.Date] = closing
	return &closing, nil
}

func (s *Store) GetCashClosing(_ context.Context, date string) (*domain.CashClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	closing, ok := s.closingsByDate[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &closing, nil
}

func (s *Store) ListCashClosings(_ context.Context, limit int) ([]domain.CashClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CashClosing, 0, len(s.closingsByDate))
	for _, closing := range s.closingsByDate {
		out = append(out, closing)
	}
	slices.SortFunc(out, func(a, b domain.CashClosing) int { return strings.Compare(b.Date, a.Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, exists := s.usersByEmail[key]; exists {
		return fmt.Errorf("%w: user %s already exists", store.ErrValidation, user.Email)
	}
	s.usersByEmail[key] = user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByEmail))
	for _, user := range s.usersByEmail {
		out = append(out, user)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return strings.Compare(a.Email, b.Email) })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, email string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	user, ok := s.usersByEmail[key]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByEmail[key] = user
	return nil
}

package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"lojinha/backend/internal/domain"
	"lojinha/backend/internal/feed"
	"lojinha/backend/internal/report"
	"lojinha/backend/internal/store"
	"lojinha/backend/internal/xid"
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
	repo       store.Repository
	reporter   *report.Engine
	broker     *feed.Broker
	validate   *validator.Validate
	cashMethod string
}

func New(repo store.Repository, reporter *report.Engine, broker *feed.Broker, cashMethod string) *Service {
	if cashMethod == "" {
		cashMethod = "Dinheiro"
	}

	return &Service{
		repo:       repo,
		reporter:   reporter,
		broker:     broker,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		cashMethod: cashMethod,
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", store.ErrPermission)
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("%w: admin role required", store.ErrPermission)
	}
	return actor, nil
}

func (s *Service) validateStruct(v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	return nil
}

func (s *Service) salesChanged(ctx context.Context, kind string, saleID string) {
	if s.reporter != nil {
		s.reporter.Invalidate(ctx)
	}
	if s.broker != nil {
		s.broker.Publish(feed.Event{Kind: kind, SaleID: saleID})
	}
}

func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin {
		includeInactive = false
	}
	return s.repo.ListProducts(ctx, includeInactive)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:         xid.New("prod"),
		Name:       req.Name,
		WeeklyGoal: req.WeeklyGoal,
		Active:     true,
		Variants:   make([]domain.Variant, 0, len(req.Variants)),
		CreatedAt:  time.Now().UTC(),
	}
	seen := make(map[string]struct{}, len(req.Variants))
	for _, in := range req.Variants {
		name := strings.TrimSpace(in.Name)
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return domain.Product{}, fmt.Errorf("%w: duplicate variant %q", store.ErrValidation, name)
		}
		seen[key] = struct{}{}
		product.Variants = append(product.Variants, domain.Variant{
			ID:    xid.New("var"),
			Name:  name,
			Stock: in.Stock,
			Price: in.Price,
		})
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name must not be empty", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.WeeklyGoal != nil {
		if *req.WeeklyGoal < 0 {
			return domain.Product{}, fmt.Errorf("%w: weekly goal must not be negative", store.ErrValidation)
		}
		updated.WeeklyGoal = *req.WeeklyGoal
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	entries := make([]domain.StockLedgerEntry, 0, 4)
	now := time.Now().UTC()
	if req.Variants != nil {
		merged, ledger, err := mergeVariants(updated, *req.Variants, actor.ID, now)
		if err != nil {
			return domain.Product{}, err
		}
		updated.Variants = merged
		entries = ledger
	}

	saved, err := s.repo.UpdateProduct(ctx, updated, entries)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

// mergeVariants reconciles the submitted variant list against the stored
// one. Variants are matched by id so renames and reordering never corrupt
// stock. Manual stock changes get ledger entries.
func mergeVariants(product domain.Product, inputs []domain.VariantInput, actorID string, now time.Time) ([]domain.Variant, []domain.StockLedgerEntry, error) {
	byID := make(map[string]domain.Variant, len(product.Variants))
	for _, v := range product.Variants {
		byID[v.ID] = v
	}

	entries := make([]domain.StockLedgerEntry, 0, 4)
	merged := make([]domain.Variant, 0, len(inputs))
	kept := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, nil, fmt.Errorf("%w: variant name must not be empty", store.ErrValidation)
		}
		if in.Stock < 0 || in.Price < 0 {
			return nil, nil, fmt.Errorf("%w: variant %q has negative stock or price", store.ErrValidation, name)
		}

		if in.ID == "" {
			variant := domain.Variant{ID: xid.New("var"), Name: name, Stock: in.Stock, Price: in.Price}
			merged = append(merged, variant)
			if in.Stock != 0 {
				entries = append(entries, manualEntry(product.ID, variant, 0, in.Stock, actorID, now))
			}
			continue
		}

		existing, ok := byID[in.ID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s in product %s", store.ErrVariantNotFound, in.ID, product.ID)
		}
		if _, dup := kept[in.ID]; dup {
			return nil, nil, fmt.Errorf("%w: variant %s submitted twice", store.ErrValidation, in.ID)
		}
		kept[in.ID] = struct{}{}

		variant := domain.Variant{ID: in.ID, Name: name, Stock: in.Stock, Price: in.Price}
		merged = append(merged, variant)
		if existing.Stock != in.Stock {
			entries = append(entries, manualEntry(product.ID, variant, existing.Stock, in.Stock, actorID, now))
		}
	}

	for _, v := range product.Variants {
		if _, ok := kept[v.ID]; ok {
			continue
		}
		if v.Stock != 0 {
			entries = append(entries, manualEntry(product.ID, v, v.Stock, 0, actorID, now))
		}
	}
	return merged, entries, nil
}

func manualEntry(productID string, variant domain.Variant, prev int, next int, actorID string, now time.Time) domain.StockLedgerEntry {
	return domain.StockLedgerEntry{
		ID:            xid.New("stk"),
		ProductID:     productID,
		VariantID:     variant.ID,
		VariantName:   variant.Name,
		PreviousStock: prev,
		NewStock:      next,
		Delta:         next - prev,
		Reason:        domain.StockReasonManualAdjust,
		ActorID:       actorID,
		CreatedAt:     now,
	}
}

func (s *Service) DeactivateProduct(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeactivateProduct(ctx, strings.TrimSpace(id))
}

// validateSaleInput normalizes the input and checks everything that does not
// need fresh product state. Stock and snapshot resolution happen inside the
// store transaction.
func (s *Service) validateSaleInput(input *domain.SaleInput) error {
	input.Seller = strings.TrimSpace(input.Seller)
	input.InvoiceNumber = strings.TrimSpace(input.InvoiceNumber)
	input.Note = strings.TrimSpace(input.Note)
	if input.Date.IsZero() {
		input.Date = time.Now().UTC()
	}
	if err := s.validateStruct(*input); err != nil {
		return err
	}

	if input.TestSale {
		if len(input.Payments) > 0 {
			return fmt.Errorf("%w: a test sale must not carry payments", store.ErrValidation)
		}
		return nil
	}

	total := 0.0
	for _, item := range input.Items {
		if item.SoldPrice < 0 {
			return fmt.Errorf("%w: sold price must not be negative", store.ErrValidation)
		}
		total += item.SoldPrice
	}

	if len(input.Payments) == 0 {
		return fmt.Errorf("%w: at least one payment is required", store.ErrValidation)
	}
	paid := 0.0
	for i := range input.Payments {
		input.Payments[i].Method = strings.TrimSpace(input.Payments[i].Method)
		if input.Payments[i].Method == "" {
			return fmt.Errorf("%w: payment method must not be empty", store.ErrValidation)
		}
		if input.Payments[i].Amount <= 0 {
			return fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
		}
		paid += input.Payments[i].Amount
	}
	if math.Abs(paid-total) > domain.PaymentEpsilon {
		return fmt.Errorf("%w: payments total %.2f does not match sale total %.2f", store.ErrValidation, paid, total)
	}
	return nil
}

func paymentMethodsUsed(payments []domain.PaymentSplit) []string {
	seen := make(map[string]struct{}, len(payments))
	out := make([]string, 0, len(payments))
	for _, split := range payments {
		if _, ok := seen[split.Method]; ok {
			continue
		}
		seen[split.Method] = struct{}{}
		out = append(out, split.Method)
	}
	return out
}

func (s *Service) CreateSale(ctx context.Context, input domain.SaleInput) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.validateSaleInput(&input); err != nil {
		return domain.Sale{}, err
	}

	sale := domain.Sale{
		ID:                 xid.New("sal"),
		Date:               input.Date,
		Seller:             input.Seller,
		InvoiceNumber:      input.InvoiceNumber,
		TestSale:           input.TestSale,
		Payments:           input.Payments,
		PaymentMethodsUsed: paymentMethodsUsed(input.Payments),
		Note:               input.Note,
		CreatedBy:          actor.ID,
		CreatedAt:          time.Now().UTC(),
	}

	created, err := s.repo.CreateSale(ctx, sale, input.Items, actor.ID)
	if err != nil {
		return domain.Sale{}, err
	}

	s.salesChanged(ctx, feed.EventSaleCreated, created.ID)
	log.Printf("[service] sale created id=%s seller=%s items=%d total=%.2f", created.ID, created.Seller, len(created.Items), created.TotalValue)
	return *created, nil
}

func (s *Service) UpdateSale(ctx context.Context, id string, input domain.SaleInput) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	existing, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	if actor.Role != domain.RoleAdmin && existing.CreatedBy != actor.ID {
		return domain.Sale{}, fmt.Errorf("%w: only the creator or an admin may edit a sale", store.ErrPermission)
	}

	if err := s.validateSaleInput(&input); err != nil {
		return domain.Sale{}, err
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		ID:                 existing.ID,
		Date:               input.Date,
		Seller:             input.Seller,
		InvoiceNumber:      input.InvoiceNumber,
		TestSale:           input.TestSale,
		Payments:           input.Payments,
		PaymentMethodsUsed: paymentMethodsUsed(input.Payments),
		Note:               input.Note,
		CreatedBy:          existing.CreatedBy,
		CreatedAt:          existing.CreatedAt,
		ModifiedBy:         actor.ID,
		ModifiedAt:         &now,
	}

	updated, err := s.repo.UpdateSale(ctx, sale, input.Items, actor.ID)
	if err != nil {
		return domain.Sale{}, err
	}

	s.salesChanged(ctx, feed.EventSaleUpdated, updated.ID)
	log.Printf("[service] sale updated id=%s by=%s total=%.2f", updated.ID, actor.ID, updated.TotalValue)
	return *updated, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	existing, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != domain.RoleAdmin && existing.CreatedBy != actor.ID {
		return fmt.Errorf("%w: only the creator or an admin may delete a sale", store.ErrPermission)
	}

	if err := s.repo.DeleteSale(ctx, id, actor.ID); err != nil {
		return err
	}

	s.salesChanged(ctx, feed.EventSaleDeleted, id)
	log.Printf("[service] sale deleted id=%s by=%s", id, actor.ID)
	return nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	if actor.Role != domain.RoleAdmin && sale.CreatedBy != actor.ID {
		return domain.Sale{}, fmt.Errorf("%w: not your sale", store.ErrPermission)
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, query domain.SaleQuery) (domain.SalePage, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SalePage{}, err
	}
	if actor.Role != domain.RoleAdmin {
		query.CreatedBy = actor.ID
	}
	if query.Limit < 1 || query.Limit > 200 {
		query.Limit = 50
	}

	page, err := s.repo.ListSales(ctx, query)
	if err != nil {
		return domain.SalePage{}, err
	}
	return *page, nil
}

func (s *Service) ListStockLedger(ctx context.Context, productID string, variantID string, limit int) ([]domain.StockLedgerEntry, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListStockLedger(ctx, strings.TrimSpace(productID), strings.TrimSpace(variantID), limit)
}

func (s *Service) CreateExpense(ctx context.Context, input domain.ExpenseInput) (domain.Expense, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Expense{}, err
	}
	input.Description = strings.TrimSpace(input.Description)
	if input.Date.IsZero() {
		input.Date = time.Now().UTC()
	}
	if err := s.validateStruct(input); err != nil {
		return domain.Expense{}, err
	}

	expense := domain.Expense{
		ID:          xid.New("exp"),
		Date:        input.Date,
		Amount:      input.Amount,
		Description: input.Description,
		CreatedBy:   actor.ID,
		CreatedAt:   time.Now().UTC(),
	}
	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}
	return *created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, id string, input domain.ExpenseInput) (domain.Expense, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Expense{}, err
	}
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validateStruct(input); err != nil {
		return domain.Expense{}, err
	}

	existing, err := s.repo.GetExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Expense{}, err
	}
	if actor.Role != domain.RoleAdmin && existing.CreatedBy != actor.ID {
		return domain.Expense{}, fmt.Errorf("%w: only the creator or an admin may edit an expense", store.ErrPermission)
	}

	now := time.Now().UTC()
	updated := *existing
	updated.Date = input.Date
	if updated.Date.IsZero() {
		updated.Date = existing.Date
	}
	updated.Amount = input.Amount
	updated.Description = input.Description
	updated.ModifiedBy = actor.ID
	updated.ModifiedAt = &now

	saved, err := s.repo.UpdateExpense(ctx, updated)
	if err != nil {
		return domain.Expense{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	existing, err := s.repo.GetExpense(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if actor.Role != domain.RoleAdmin && existing.CreatedBy != actor.ID {
		return fmt.Errorf("%w: only the creator or an admin may delete an expense", store.ErrPermission)
	}
	return s.repo.DeleteExpense(ctx, existing.ID)
}

func (s *Service) ListExpenses(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListExpensesBetween(ctx, from, to)
}

func (s *Service) CreateDeposit(ctx context.Context, input domain.DepositInput) (domain.Deposit, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Deposit{}, err
	}
	input.Note = strings.TrimSpace(input.Note)
	if input.Date.IsZero() {
		input.Date = time.Now().UTC()
	}
	if err := s.validateStruct(input); err != nil {
		return domain.Deposit{}, err
	}

	deposit := domain.Deposit{
		ID:        xid.New("dep"),
		Date:      input.Date,
		Amount:    input.Amount,
		Note:      input.Note,
		CreatedBy: actor.ID,
		CreatedAt: time.Now().UTC(),
	}
	created, err := s.repo.CreateDeposit(ctx, deposit)
	if err != nil {
		return domain.Deposit{}, err
	}
	return *created, nil
}

func (s *Service) UpdateDeposit(ctx context.Context, id string, input domain.DepositInput) (domain.Deposit, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Deposit{}, err
	}
	input.Note = strings.TrimSpace(input.Note)
	if err := s.validateStruct(input); err != nil {
		return domain.Deposit{}, err
	}

	existing, err := s.repo.GetDeposit(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Deposit{}, err
	}
	if actor.Role != domain.RoleAdmin && existing.CreatedBy != actor.ID {
		return domain.Deposit{}, fmt.Errorf("%w: only the creator or an admin may edit a deposit", store.ErrPermission)
	}

	now := time.Now().UTC()
	updated := *existing
	updated.Date = input.Date
	if updated.Date.IsZero() {
		updated.Date = existing.Date
	}
	updated.Amount = input.Amount
	updated.Note = input.Note
	updated.ModifiedBy = actor.ID
	updated.ModifiedAt = &now

	saved, err := s.repo.UpdateDeposit(ctx, updated)
	if err != nil {
		return domain.Deposit{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteDeposit(ctx context.Context, id string) error {
	actor, err := requireActor(ctx)
	if err != nil {
		return err
	}
	existing, err := s.repo.GetDeposit(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if actor.Role != domain.RoleAdmin && existing.CreatedBy != actor.ID {
		return fmt.Errorf("%w: only the creator or an admin may delete a deposit", store.ErrPermission)
	}
	return s.repo.DeleteDeposit(ctx, existing.ID)
}

func (s *Service) ListDeposits(ctx context.Context, from time.Time, to time.Time) ([]domain.Deposit, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListDepositsBetween(ctx, from, to)
}

func (s *Service) CreateSeller(ctx context.Context, name string) (domain.Seller, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Seller{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Seller{}, fmt.Errorf("%w: seller name must not be empty", store.ErrValidation)
	}
	created, err := s.repo.CreateSeller(ctx, domain.Seller{ID: xid.New("sel"), Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		return domain.Seller{}, err
	}
	return *created, nil
}

func (s *Service) ListSellers(ctx context.Context) ([]domain.Seller, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListSellers(ctx)
}

func (s *Service) DeleteSeller(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteSeller(ctx, strings.TrimSpace(id))
}

func (s *Service) CreatePaymentMethod(ctx context.Context, name string) (domain.PaymentMethod, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PaymentMethod{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.PaymentMethod{}, fmt.Errorf("%w: payment method name must not be empty", store.ErrValidation)
	}
	created, err := s.repo.CreatePaymentMethod(ctx, domain.PaymentMethod{ID: xid.New("pay"), Name: name, CreatedAt: time.Now().UTC()})
	if err != nil {
		return domain.PaymentMethod{}, err
	}
	return *created, nil
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListPaymentMethods(ctx)
}

func (s *Service) DeletePaymentMethod(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeletePaymentMethod(ctx, strings.TrimSpace(id))
}

func (s *Service) CreatePhoneModel(ctx context.Context, brand string, model string) (domain.PhoneModel, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.PhoneModel{}, err
	}
	brand = strings.TrimSpace(brand)
	model = strings.TrimSpace(model)
	if brand == "" || model == "" {
		return domain.PhoneModel{}, fmt.Errorf("%w: brand and model must not be empty", store.ErrValidation)
	}
	created, err := s.repo.CreatePhoneModel(ctx, domain.PhoneModel{ID: xid.New("mod"), Brand: brand, Model: model, CreatedAt: time.Now().UTC()})
	if err != nil {
		return domain.PhoneModel{}, err
	}
	return *created, nil
}

func (s *Service) ListPhoneModels(ctx context.Context) ([]domain.PhoneModel, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListPhoneModels(ctx)
}

func (s *Service) DeletePhoneModel(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeletePhoneModel(ctx, strings.TrimSpace(id))
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Settings{}, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}

func (s *Service) SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}
	settings.CompanyName = strings.TrimSpace(settings.CompanyName)
	settings.TaxID = strings.TrimSpace(settings.TaxID)
	if settings.MonthlyGoal < 0 {
		return domain.Settings{}, fmt.Errorf("%w: monthly goal must not be negative", store.ErrValidation)
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// CashSummary aggregates cash movements for a period: the cash portion of
// sales flows in, expenses and bank deposits flow out. Test sales never
// touch the register.
func (s *Service) CashSummary(ctx context.Context, from time.Time, to time.Time) (domain.CashSummary, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.CashSummary{}, err
	}

	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.CashSummary{}, err
	}
	expenses, err := s.repo.ListExpensesBetween(ctx, from, to)
	if err != nil {
		return domain.CashSummary{}, err
	}
	deposits, err := s.repo.ListDepositsBetween(ctx, from, to)
	if err != nil {
		return domain.CashSummary{}, err
	}

	summary := domain.CashSummary{From: from, To: to}
	for _, sale := range sales {
		if sale.TestSale {
			continue
		}
		for _, split := range sale.Payments {
			if split.Method != s.cashMethod {
				continue
			}
			summary.Inflows += split.Amount
			summary.Transactions = append(summary.Transactions, domain.CashTransaction{
				Date:        sale.Date,
				Kind:        "sale",
				Description: fmt.Sprintf("Venda %s (%s)", sale.InvoiceNumber, sale.Seller),
				Amount:      split.Amount,
			})
		}
	}
	for _, expense := range expenses {
		summary.Expenses += expense.Amount
		summary.Transactions = append(summary.Transactions, domain.CashTransaction{
			Date:        expense.Date,
			Kind:        "expense",
			Description: expense.Description,
			Amount:      -expense.Amount,
		})
	}
	for _, deposit := range deposits {
		summary.Deposits += deposit.Amount
		summary.Transactions = append(summary.Transactions, domain.CashTransaction{
			Date:        deposit.Date,
			Kind:        "deposit",
			Description: deposit.Note,
			Amount:      -deposit.Amount,
		})
	}
	// One merged feed across all movement kinds, newest first.
	slices.SortFunc(summary.Transactions, func(a, b domain.CashTransaction) int {
		return b.Date.Compare(a.Date)
	})
	summary.Balance = summary.Inflows - summary.Expenses - summary.Deposits
	return summary, nil
}

// CloseCashRegister records the end-of-day closing for a calendar date
// (YYYY-MM-DD, interpreted in UTC). A date can only be closed once.
func (s *Service) CloseCashRegister(ctx context.Context, date string, req domain.CashClosingRequest) (domain.CashClosing, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.CashClosing{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return domain.CashClosing{}, err
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return domain.CashClosing{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
	}

	summary, err := s.CashSummary(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return domain.CashClosing{}, err
	}

	closing := domain.CashClosing{
		ID:         xid.New("cls"),
		Date:       date,
		Inflows:    summary.Inflows,
		Expenses:   summary.Expenses,
		Deposits:   summary.Deposits,
		Expected:   summary.Balance,
		Counted:    req.Counted,
		Difference: req.Counted - summary.Balance,
		ClosedBy:   actor.ID,
		ClosedAt:   time.Now().UTC(),
	}
	created, err := s.repo.CreateCashClosing(ctx, closing)
	if err != nil {
		return domain.CashClosing{}, err
	}
	log.Printf("[service] cash register closed date=%s expected=%.2f counted=%.2f diff=%.2f", date, closing.Expected, closing.Counted, closing.Difference)
	return *created, nil
}

func (s *Service) GetCashClosing(ctx context.Context, date string) (domain.CashClosing, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.CashClosing{}, err
	}
	closing, err := s.repo.GetCashClosing(ctx, strings.TrimSpace(date))
	if err != nil {
		return domain.CashClosing{}, err
	}
	return *closing, nil
}

func (s *Service) ListCashClosings(ctx context.Context, limit int) ([]domain.CashClosing, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListCashClosings(ctx, limit)
}

func (s *Service) SalesReport(ctx context.Context, from time.Time, to time.Time) (domain.SalesReport, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.SalesReport{}, err
	}
	if s.reporter == nil {
		return domain.SalesReport{}, errors.New("report engine not configured")
	}
	return s.reporter.SalesReport(ctx, from, to)
}

// ExportSalesCSV streams the sales of a period as CSV, one row per sale item.
func (s *Service) ExportSalesCSV(ctx context.Context, from time.Time, to time.Time, w io.Writer) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}

	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sale_id", "date", "invoice", "seller", "item", "original_price", "sold_price", "payment_methods", "total_value"}); err != nil {
		return err
	}
	for _, sale := range sales {
		if sale.TestSale {
			continue
		}
		methods := strings.Join(sale.PaymentMethodsUsed, ";")
		for _, item := range sale.Items {
			row := []string{
				sale.ID,
				sale.Date.UTC().Format(time.RFC3339),
				sale.InvoiceNumber,
				sale.Seller,
				item.FullName,
				fmt.Sprintf("%.2f", item.OriginalPrice),
				fmt.Sprintf("%.2f", item.SoldPrice),
				methods,
				fmt.Sprintf("%.2f", sale.TotalValue),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

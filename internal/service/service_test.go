package service

import (
	"bytes"
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"lojinha/backend/internal/cache"
	"lojinha/backend/internal/domain"
	"lojinha/backend/internal/feed"
	"lojinha/backend/internal/report"
	"lojinha/backend/internal/store"
	"lojinha/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	reporter := report.NewEngine(repo, cache.NoopReportCache{}, time.Second)
	return New(repo, reporter, feed.NewBroker(), "Dinheiro")
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:    "usr-admin",
		Email: "admin@lojinha.local",
		Role:  domain.RoleAdmin,
	})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		ID:    "usr-seller",
		Email: "vendedor@lojinha.local",
		Role:  domain.RoleSeller,
	})
}

func capinhaPretaSale(payMethod string) domain.SaleInput {
	return domain.SaleInput{
		Seller: "Ana",
		Items: []domain.SaleItemInput{
			{ProductID: "prod-capinha-silicone", VariantID: "var-cap-preta", SoldPrice: 39.9},
		},
		Payments: []domain.PaymentSplit{
			{Method: payMethod, Amount: 39.9},
		},
	}
}

func variantStock(t *testing.T, svc *Service, productID string, variantID string) int {
	t.Helper()
	product, err := svc.GetProduct(adminCtx(), productID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	for _, v := range product.Variants {
		if v.ID == variantID {
			return v.Stock
		}
	}
	t.Fatalf("variant %s not found on %s", variantID, productID)
	return 0
}

func TestCreateSaleDecrementsStockAndWritesLedger(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, capinhaPretaSale("Pix"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if sale.TotalValue != 39.9 {
		t.Fatalf("expected total 39.9, got %v", sale.TotalValue)
	}
	if sale.CreatedBy != "usr-seller" {
		t.Fatalf("expected created_by usr-seller, got %s", sale.CreatedBy)
	}
	if got := variantStock(t, svc, "prod-capinha-silicone", "var-cap-preta"); got != 34 {
		t.Fatalf("expected stock 34 after sale, got %d", got)
	}

	entries, err := svc.ListStockLedger(adminCtx(), "prod-capinha-silicone", "var-cap-preta", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Reason != domain.StockReasonNewSale {
		t.Fatalf("expected reason %s, got %s", domain.StockReasonNewSale, entry.Reason)
	}
	if entry.PreviousStock != 35 || entry.NewStock != 34 || entry.Delta != -1 {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}
	if entry.SaleID != sale.ID {
		t.Fatalf("expected ledger entry linked to sale %s", sale.ID)
	}
}

func TestCreateSaleInsufficientStockAbortsAtomically(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	// var-fone-preto seeds with 9 units; 10 unit lines must fail on the last one.
	input := domain.SaleInput{Seller: "Bruno"}
	total := 39.9
	input.Items = append(input.Items, domain.SaleItemInput{
		ProductID: "prod-capinha-silicone", VariantID: "var-cap-preta", SoldPrice: 39.9,
	})
	for i := 0; i < 10; i++ {
		input.Items = append(input.Items, domain.SaleItemInput{
			ProductID: "prod-fone-bt", VariantID: "var-fone-preto", SoldPrice: 89.9,
		})
		total += 89.9
	}
	input.Payments = []domain.PaymentSplit{{Method: "Pix", Amount: total}}

	_, err := svc.CreateSale(ctx, input)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if got := variantStock(t, svc, "prod-capinha-silicone", "var-cap-preta"); got != 35 {
		t.Fatalf("expected preta stock untouched at 35, got %d", got)
	}
	if got := variantStock(t, svc, "prod-fone-bt", "var-fone-preto"); got != 9 {
		t.Fatalf("expected fone stock untouched at 9, got %d", got)
	}

	entries, err := svc.ListStockLedger(adminCtx(), "", "", 50)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no ledger entries after aborted sale, got %d", len(entries))
	}

	page, err := svc.ListSales(adminCtx(), domain.SaleQuery{})
	if err != nil {
		t.Fatalf("list sales failed: %v", err)
	}
	if len(page.Sales) != 0 {
		t.Fatalf("expected no sales persisted, got %d", len(page.Sales))
	}
}

func TestUpdateSaleSwapsVariantWithReversalAndApplication(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, capinhaPretaSale("Dinheiro"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	updated, err := svc.UpdateSale(ctx, sale.ID, domain.SaleInput{
		Seller: "Ana",
		Items: []domain.SaleItemInput{
			{ProductID: "prod-capinha-silicone", VariantID: "var-cap-azul", SoldPrice: 39.9},
		},
		Payments: []domain.PaymentSplit{{Method: "Pix", Amount: 39.9}},
	})
	if err != nil {
		t.Fatalf("update sale failed: %v", err)
	}
	if updated.ModifiedAt == nil || updated.ModifiedBy != "usr-seller" {
		t.Fatalf("expected modified metadata on updated sale")
	}
	if updated.CreatedBy != sale.CreatedBy || !updated.CreatedAt.Equal(sale.CreatedAt) {
		t.Fatalf("expected creation metadata preserved on update")
	}

	if got := variantStock(t, svc, "prod-capinha-silicone", "var-cap-preta"); got != 35 {
		t.Fatalf("expected preta stock restored to 35, got %d", got)
	}
	if got := variantStock(t, svc, "prod-capinha-silicone", "var-cap-azul"); got != 21 {
		t.Fatalf("expected azul stock 21, got %d", got)
	}

	entries, err := svc.ListStockLedger(adminCtx(), "prod-capinha-silicone", "", 50)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	var sawReversal, sawApplication bool
	for _, entry := range entries {
		switch entry.Reason {
		case domain.StockReasonEditReversal:
			sawReversal = true
			if entry.VariantID != "var-cap-preta" || entry.Delta != 1 {
				t.Fatalf("unexpected reversal entry: %+v", entry)
			}
		case domain.StockReasonEditApplication:
			sawApplication = true
			if entry.VariantID != "var-cap-azul" || entry.Delta != -1 {
				t.Fatalf("unexpected application entry: %+v", entry)
			}
		}
	}
	if !sawReversal || !sawApplication {
		t.Fatalf("expected both reversal and application ledger entries")
	}
}

func TestUpdateSaleReusingSameVariantNetsZero(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	sale, err := svc.CreateSale(ctx, capinhaPretaSale("Pix"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	// Reversals stage before applications, so re-selling the same variant
	// must succeed even when it was the last unit in stock.
	updated, err := svc.UpdateSale(ctx, sale.ID, domain.SaleInput{
		Seller: "Ana",
		Items: []domain.SaleItemInput{
			{ProductID: "prod-capinha-silicone", VariantID: "var-cap-preta", SoldPrice: 35},
		},
		Payments: []domain.PaymentSplit{{Method: "Pix", Amount: 35}},
	})
	if err != nil {
		t.Fatalf("update sale failed: %v", err)
	}
	if updated.TotalValue != 35 {
		t.Fatalf("expected new total 35, got %v", updated.TotalValue)
	}
	if got := variantStock(t, svc, "prod-capinha-silicone", "var-cap-preta"); got != 34 {
		t.Fatalf("expected net stock unchanged at 34, got %d", got)
	}

	entries, err := svc.ListStockLedger(adminCtx(), "prod-capinha-silicone", "var-cap-preta", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	// One new_sale entry plus the reversal/application pair from the edit.
	if len(entries) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(entries))
	}
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateSale(sellerCtx(), capinhaPretaSale("Pix"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	if err := svc.DeleteSale(adminCtx(), sale.ID); err != nil {
		t.Fatalf("delete sale failed: %v", err)
	}
	if got := variantStock(t, svc, "prod-capinha-silicone", "var-cap-preta"); got != 35 {
		t.Fatalf("expected stock restored to 35, got %d", got)
	}
	if _, err := svc.GetSale(adminCtx(), sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	entries, err := svc.ListStockLedger(adminCtx(), "prod-capinha-silicone", "var-cap-preta", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) == 0 || entries[0].Reason != domain.StockReasonSaleDeletion {
		t.Fatalf("expected newest ledger entry to be %s", domain.StockReasonSaleDeletion)
	}
}

func TestDeleteSaleAllowedForCreatorOrAdmin(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateSale(sellerCtx(), capinhaPretaSale("Pix"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	otherCtx := WithActor(context.Background(), domain.Actor{
		ID: "usr-other", Email: "outro@lojinha.local", Role: domain.RoleSeller,
	})
	if err := svc.DeleteSale(otherCtx, sale.ID); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected ErrPermission for non-creator delete, got %v", err)
	}

	// The seller who recorded the sale may delete it.
	if err := svc.DeleteSale(sellerCtx(), sale.ID); err != nil {
		t.Fatalf("creator delete failed: %v", err)
	}
	if got := variantStock(t, svc, "prod-capinha-silicone", "var-cap-preta"); got != 35 {
		t.Fatalf("expected stock restored to 35, got %d", got)
	}

	sale, err = svc.CreateSale(sellerCtx(), capinhaPretaSale("Pix"))
	if err != nil {
		t.Fatalf("create second sale failed: %v", err)
	}
	if err := svc.DeleteSale(adminCtx(), sale.ID); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}
}

func TestUpdateSaleRejectedForNonCreator(t *testing.T) {
	svc := newTestService()

	sale, err := svc.CreateSale(sellerCtx(), capinhaPretaSale("Pix"))
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	otherCtx := WithActor(context.Background(), domain.Actor{
		ID: "usr-other", Email: "outro@lojinha.local", Role: domain.RoleSeller,
	})
	_, err = svc.UpdateSale(otherCtx, sale.ID, capinhaPretaSale("Dinheiro"))
	if !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected ErrPermission for non-creator update, got %v", err)
	}

	// Admins may edit any sale.
	if _, err := svc.UpdateSale(adminCtx(), sale.ID, capinhaPretaSale("Dinheiro")); err != nil {
		t.Fatalf("admin update failed: %v", err)
	}
}

func TestSalePaymentMismatchRejected(t *testing.T) {
	svc := newTestService()

	input := capinhaPretaSale("Pix")
	input.Payments = []domain.PaymentSplit{{Method: "Pix", Amount: 45}}
	if _, err := svc.CreateSale(sellerCtx(), input); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for payment mismatch, got %v", err)
	}
}

func TestSalePaymentWithinEpsilonAccepted(t *testing.T) {
	svc := newTestService()

	input := capinhaPretaSale("Pix")
	input.Payments = []domain.PaymentSplit{{Method: "Pix", Amount: 39.91}}
	if _, err := svc.CreateSale(sellerCtx(), input); err != nil {
		t.Fatalf("expected payment within epsilon to pass, got %v", err)
	}
}

func TestSplitPaymentSale(t *testing.T) {
	svc := newTestService()

	input := capinhaPretaSale("Pix")
	input.Payments = []domain.PaymentSplit{
		{Method: "Dinheiro", Amount: 20},
		{Method: "Pix", Amount: 19.9},
	}
	sale, err := svc.CreateSale(sellerCtx(), input)
	if err != nil {
		t.Fatalf("split payment sale failed: %v", err)
	}
	if len(sale.PaymentMethodsUsed) != 2 {
		t.Fatalf("expected 2 payment methods used, got %v", sale.PaymentMethodsUsed)
	}
}

func TestTestSaleZeroesPricesAndSkipsPayments(t *testing.T) {
	svc := newTestService()

	input := capinhaPretaSale("Pix")
	input.TestSale = true
	input.Payments = nil
	sale, err := svc.CreateSale(sellerCtx(), input)
	if err != nil {
		t.Fatalf("test sale failed: %v", err)
	}
	if sale.TotalValue != 0 {
		t.Fatalf("expected test sale total 0, got %v", sale.TotalValue)
	}
	if sale.Items[0].SoldPrice != 0 {
		t.Fatalf("expected test sale item price 0, got %v", sale.Items[0].SoldPrice)
	}

	// Test sales still consume stock.
	if got := variantStock(t, svc, "prod-capinha-silicone", "var-cap-preta"); got != 34 {
		t.Fatalf("expected stock 34 after test sale, got %d", got)
	}

	input.Payments = []domain.PaymentSplit{{Method: "Pix", Amount: 10}}
	if _, err := svc.CreateSale(sellerCtx(), input); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for test sale with payments, got %v", err)
	}
}

func TestListSalesNonAdminSeesOnlyOwn(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateSale(sellerCtx(), capinhaPretaSale("Pix")); err != nil {
		t.Fatalf("seller sale failed: %v", err)
	}
	if _, err := svc.CreateSale(adminCtx(), capinhaPretaSale("Dinheiro")); err != nil {
		t.Fatalf("admin sale failed: %v", err)
	}

	page, err := svc.ListSales(sellerCtx(), domain.SaleQuery{})
	if err != nil {
		t.Fatalf("seller list failed: %v", err)
	}
	if len(page.Sales) != 1 || page.Sales[0].CreatedBy != "usr-seller" {
		t.Fatalf("expected seller to see only own sale, got %d", len(page.Sales))
	}

	adminPage, err := svc.ListSales(adminCtx(), domain.SaleQuery{})
	if err != nil {
		t.Fatalf("admin list failed: %v", err)
	}
	if len(adminPage.Sales) != 2 {
		t.Fatalf("expected admin to see both sales, got %d", len(adminPage.Sales))
	}
}

func TestListSalesCursorPagination(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	for i := 0; i < 5; i++ {
		if _, err := svc.CreateSale(ctx, capinhaPretaSale("Pix")); err != nil {
			t.Fatalf("create sale #%d failed: %v", i, err)
		}
	}

	seen := make(map[string]bool)
	cursor := ""
	pages := 0
	for {
		page, err := svc.ListSales(ctx, domain.SaleQuery{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("list page failed: %v", err)
		}
		for _, sale := range page.Sales {
			if seen[sale.ID] {
				t.Fatalf("sale %s returned twice", sale.ID)
			}
			seen[sale.ID] = true
		}
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		if pages > 10 {
			t.Fatalf("pagination did not terminate")
		}
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 unique sales across pages, got %d", len(seen))
	}
	if pages != 3 {
		t.Fatalf("expected 3 pages with limit 2, got %d", pages)
	}
}

func TestListSalesRejectsMalformedCursor(t *testing.T) {
	svc := newTestService()

	_, err := svc.ListSales(adminCtx(), domain.SaleQuery{Cursor: "not-base64!!"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation for malformed cursor, got %v", err)
	}
}

func TestUpdateProductStockAdjustmentWritesLedger(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	variants := []domain.VariantInput{
		{ID: "var-cap-preta", Name: "Preta", Stock: 40, Price: 39.9},
		{ID: "var-cap-azul", Name: "Azul", Stock: 22, Price: 39.9},
		{ID: "var-cap-rosa", Name: "Rosa", Stock: 18, Price: 44.9},
	}
	if _, err := svc.UpdateProduct(ctx, "prod-capinha-silicone", domain.ProductUpdateRequest{Variants: &variants}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	entries, err := svc.ListStockLedger(ctx, "prod-capinha-silicone", "var-cap-preta", 10)
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 manual adjustment entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Reason != domain.StockReasonManualAdjust || entry.PreviousStock != 35 || entry.NewStock != 40 {
		t.Fatalf("unexpected adjustment entry: %+v", entry)
	}
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(sellerCtx(), domain.ProductCreateRequest{
		Name:     "Cabo USB-C",
		Variants: []domain.VariantInput{{Name: "1m", Stock: 10, Price: 24.9}},
	})
	if !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected ErrPermission for seller create product, got %v", err)
	}
	if err := svc.DeactivateProduct(sellerCtx(), "prod-capinha-silicone"); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected ErrPermission for seller deactivate, got %v", err)
	}
}

func TestSaleRejectsInactiveProduct(t *testing.T) {
	svc := newTestService()

	if err := svc.DeactivateProduct(adminCtx(), "prod-capinha-silicone"); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	_, err := svc.CreateSale(sellerCtx(), capinhaPretaSale("Pix"))
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for inactive product, got %v", err)
	}
}

func TestExpensePermissions(t *testing.T) {
	svc := newTestService()

	expense, err := svc.CreateExpense(sellerCtx(), domain.ExpenseInput{
		Amount:      35.5,
		Description: "Embalagens",
	})
	if err != nil {
		t.Fatalf("create expense failed: %v", err)
	}

	otherCtx := WithActor(context.Background(), domain.Actor{
		ID: "usr-other", Email: "outro@lojinha.local", Role: domain.RoleSeller,
	})
	if err := svc.DeleteExpense(otherCtx, expense.ID); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected ErrPermission for non-creator expense delete, got %v", err)
	}
	if err := svc.DeleteExpense(sellerCtx(), expense.ID); err != nil {
		t.Fatalf("creator expense delete failed: %v", err)
	}
}

func TestUpdateExpenseDatedFarInFuture(t *testing.T) {
	svc := newTestService()
	ctx := sellerCtx()

	expense, err := svc.CreateExpense(ctx, domain.ExpenseInput{
		Date:        time.Now().UTC().AddDate(20, 0, 0),
		Amount:      120,
		Description: "Aluguel antecipado",
	})
	if err != nil {
		t.Fatalf("create expense failed: %v", err)
	}

	updated, err := svc.UpdateExpense(ctx, expense.ID, domain.ExpenseInput{
		Date:        expense.Date,
		Amount:      150,
		Description: "Aluguel antecipado",
	})
	if err != nil {
		t.Fatalf("update far-dated expense failed: %v", err)
	}
	if updated.Amount != 150 {
		t.Fatalf("expected amount 150, got %v", updated.Amount)
	}

	deposit, err := svc.CreateDeposit(ctx, domain.DepositInput{
		Date:   time.Now().UTC().AddDate(20, 0, 0),
		Amount: 500,
		Note:   "Reserva",
	})
	if err != nil {
		t.Fatalf("create deposit failed: %v", err)
	}
	if err := svc.DeleteDeposit(ctx, deposit.ID); err != nil {
		t.Fatalf("delete far-dated deposit failed: %v", err)
	}
}

func TestCashSummaryAndClosing(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	now := time.Now().UTC()

	input := capinhaPretaSale("Dinheiro")
	input.Date = now.Add(-30 * time.Minute)
	if _, err := svc.CreateSale(ctx, input); err != nil {
		t.Fatalf("cash sale failed: %v", err)
	}
	// Pix sales never hit the cash register.
	if _, err := svc.CreateSale(ctx, capinhaPretaSale("Pix")); err != nil {
		t.Fatalf("pix sale failed: %v", err)
	}
	if _, err := svc.CreateExpense(ctx, domain.ExpenseInput{Date: now.Add(-10 * time.Minute), Amount: 10, Description: "Café"}); err != nil {
		t.Fatalf("expense failed: %v", err)
	}
	if _, err := svc.CreateDeposit(ctx, domain.DepositInput{Date: now.Add(-20 * time.Minute), Amount: 5, Note: "Banco"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	summary, err := svc.CashSummary(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("cash summary failed: %v", err)
	}
	if math.Abs(summary.Inflows-39.9) > 0.001 {
		t.Fatalf("expected inflows 39.9, got %v", summary.Inflows)
	}
	if math.Abs(summary.Balance-24.9) > 0.001 {
		t.Fatalf("expected balance 24.9, got %v", summary.Balance)
	}

	var kinds []string
	for _, tx := range summary.Transactions {
		kinds = append(kinds, tx.Kind)
	}
	if want := []string{"expense", "deposit", "sale"}; !slices.Equal(kinds, want) {
		t.Fatalf("expected transactions newest first %v, got %v", want, kinds)
	}

	date := now.Format("2006-01-02")
	closing, err := svc.CloseCashRegister(ctx, date, domain.CashClosingRequest{Counted: 25})
	if err != nil {
		t.Fatalf("close register failed: %v", err)
	}
	if math.Abs(closing.Difference-0.1) > 0.001 {
		t.Fatalf("expected difference 0.1, got %v", closing.Difference)
	}

	if _, err := svc.CloseCashRegister(ctx, date, domain.CashClosingRequest{Counted: 25}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected second closing for same date to fail, got %v", err)
	}
	if _, err := svc.CloseCashRegister(sellerCtx(), now.AddDate(0, 0, -1).Format("2006-01-02"), domain.CashClosingRequest{Counted: 0}); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected ErrPermission for seller closing, got %v", err)
	}
}

func TestSalesReportExcludesTestSales(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	now := time.Now().UTC()

	if _, err := svc.CreateSale(ctx, capinhaPretaSale("Pix")); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if _, err := svc.CreateSale(ctx, capinhaPretaSale("Dinheiro")); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	testInput := capinhaPretaSale("Pix")
	testInput.TestSale = true
	testInput.Payments = nil
	if _, err := svc.CreateSale(ctx, testInput); err != nil {
		t.Fatalf("test sale failed: %v", err)
	}

	rep, err := svc.SalesReport(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if rep.SaleCount != 2 {
		t.Fatalf("expected 2 counted sales, got %d", rep.SaleCount)
	}
	if rep.TestSaleCount != 1 {
		t.Fatalf("expected 1 test sale counted separately, got %d", rep.TestSaleCount)
	}
	if math.Abs(rep.TotalValue-79.8) > 0.001 {
		t.Fatalf("expected total 79.8, got %v", rep.TotalValue)
	}
	if rep.MonthlyGoal != 15000 {
		t.Fatalf("expected seeded monthly goal, got %v", rep.MonthlyGoal)
	}
	if len(rep.BySeller) == 0 || rep.BySeller[0].Seller != "Ana" {
		t.Fatalf("expected seller breakdown led by Ana, got %+v", rep.BySeller)
	}
}

func TestExportSalesCSVSkipsTestSales(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()
	now := time.Now().UTC()

	if _, err := svc.CreateSale(ctx, capinhaPretaSale("Pix")); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	testInput := capinhaPretaSale("Pix")
	testInput.TestSale = true
	testInput.Payments = nil
	if _, err := svc.CreateSale(ctx, testInput); err != nil {
		t.Fatalf("test sale failed: %v", err)
	}

	var buf bytes.Buffer
	if err := svc.ExportSalesCSV(ctx, now.Add(-time.Hour), now.Add(time.Hour), &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "sale_id,date") {
		t.Fatalf("unexpected csv header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "Capinha Silicone Preta") {
		t.Fatalf("expected item full name in row, got %s", lines[1])
	}

	if err := svc.ExportSalesCSV(sellerCtx(), now.Add(-time.Hour), now.Add(time.Hour), &buf); !errors.Is(err, store.ErrPermission) {
		t.Fatalf("expected ErrPermission for seller export, got %v", err)
	}
}

func TestCatalogDuplicateRejected(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	if _, err := svc.CreateSeller(ctx, "ana"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected duplicate seller (case-insensitive) rejection, got %v", err)
	}
	if _, err := svc.CreatePaymentMethod(ctx, "PIX"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected duplicate payment method rejection, got %v", err)
	}
	if _, err := svc.CreatePhoneModel(ctx, "Apple", "iPhone 13"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected duplicate phone model rejection, got %v", err)
	}
}

func TestSaleWithPhoneModelSnapshot(t *testing.T) {
	svc := newTestService()
	ctx := adminCtx()

	models, err := svc.ListPhoneModels(ctx)
	if err != nil {
		t.Fatalf("list models failed: %v", err)
	}
	var modelID string
	for _, m := range models {
		if m.Model == "iPhone 13" {
			modelID = m.ID
		}
	}
	if modelID == "" {
		t.Fatalf("expected seeded iPhone 13 model")
	}

	input := capinhaPretaSale("Pix")
	input.Items[0].ModelID = modelID
	sale, err := svc.CreateSale(ctx, input)
	if err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	item := sale.Items[0]
	if item.ModelName != "Apple iPhone 13" {
		t.Fatalf("expected model name snapshot, got %q", item.ModelName)
	}
	if item.FullName != "Capinha Silicone Preta (Apple iPhone 13)" {
		t.Fatalf("unexpected full name: %q", item.FullName)
	}
	if item.OriginalPrice != 39.9 {
		t.Fatalf("expected original price snapshot 39.9, got %v", item.OriginalPrice)
	}
}

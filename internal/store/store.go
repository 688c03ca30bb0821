package store

import (
	"context"
	"errors"
	"time"

	"lojinha/backend/internal/domain"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPermission        = errors.New("permission denied")
	ErrTransactionFailed = errors.New("transaction failed")
)

// Repository is the persistence contract. Sale mutations are atomic: the
// sale document, the variant stock adjustments and the ledger entries all
// commit together or not at all.
type Repository interface {
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product, entries []domain.StockLedgerEntry) (*domain.Product, error)
	DeactivateProduct(ctx context.Context, id string) error

	CreateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItemInput, actorID string) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale, items []domain.SaleItemInput, actorID string) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string, actorID string) error
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, query domain.SaleQuery) (*domain.SalePage, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)

	ListStockLedger(ctx context.Context, productID string, variantID string, limit int) ([]domain.StockLedgerEntry, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error
	ListExpensesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Expense, error)

	CreateDeposit(ctx context.Context, deposit domain.Deposit) (*domain.Deposit, error)
	GetDeposit(ctx context.Context, id string) (*domain.Deposit, error)
	UpdateDeposit(ctx context.Context, deposit domain.Deposit) (*domain.Deposit, error)
	DeleteDeposit(ctx context.Context, id string) error
	ListDepositsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Deposit, error)

	CreateSeller(ctx context.Context, seller domain.Seller) (*domain.Seller, error)
	ListSellers(ctx context.Context) ([]domain.Seller, error)
	DeleteSeller(ctx context.Context, id string) error

	CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
	DeletePaymentMethod(ctx context.Context, id string) error

	CreatePhoneModel(ctx context.Context, model domain.PhoneModel) (*domain.PhoneModel, error)
	ListPhoneModels(ctx context.Context) ([]domain.PhoneModel, error)
	DeletePhoneModel(ctx context.Context, id string) error

	GetSettings(ctx context.Context) (*domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) error

	CreateCashClosing(ctx context.Context, closing domain.CashClosing) (*domain.CashClosing, error)
	GetCashClosing(ctx context.Context, date string) (*domain.CashClosing, error)
	ListCashClosings(ctx context.Context, limit int) ([]domain.CashClosing, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, email string, password string) error
}

package domain

import "time"

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// Stock ledger reasons. Sale mutations write the first four; manual stock
// edits through the product catalog write manual_adjustment.
const (
	StockReasonNewSale         = "new_sale"
	StockReasonEditReversal    = "sale_edit_reversal"
	StockReasonEditApplication = "sale_edit_application"
	StockReasonSaleDeletion    = "sale_deletion"
	StockReasonManualAdjust    = "manual_adjustment"
)

// PaymentEpsilon is the tolerance when comparing the payment sum against the
// sale total.
const PaymentEpsilon = 0.01

type Variant struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Stock int     `json:"stock"`
	Price float64 `json:"price"`
}

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	WeeklyGoal int       `json:"weekly_goal"`
	Active     bool      `json:"active"`
	Variants   []Variant `json:"variants"`
	CreatedAt  time.Time `json:"created_at"`
}

type VariantInput struct {
	ID    string  `json:"id,omitempty"`
	Name  string  `json:"name" validate:"required"`
	Stock int     `json:"stock" validate:"min=0"`
	Price float64 `json:"price" validate:"min=0"`
}

type ProductCreateRequest struct {
	Name       string         `json:"name" validate:"required"`
	WeeklyGoal int            `json:"weekly_goal" validate:"min=0"`
	Variants   []VariantInput `json:"variants" validate:"required,min=1,dive"`
}

type ProductUpdateRequest struct {
	Name       *string         `json:"name,omitempty"`
	WeeklyGoal *int            `json:"weekly_goal,omitempty"`
	Active     *bool           `json:"active,omitempty"`
	Variants   *[]VariantInput `json:"variants,omitempty"`
}

type SaleItem struct {
	ProductID     string  `json:"product_id"`
	VariantID     string  `json:"variant_id"`
	FullName      string  `json:"full_name"`
	ModelID       string  `json:"model_id,omitempty"`
	ModelName     string  `json:"model_name,omitempty"`
	OriginalPrice float64 `json:"original_price"`
	SoldPrice     float64 `json:"sold_price"`
}

type PaymentSplit struct {
	Method string  `json:"method" validate:"required"`
	Amount float64 `json:"amount" validate:"gt=0"`
}

type Sale struct {
	ID                 string         `json:"id"`
	Date               time.Time      `json:"date"`
	Seller             string         `json:"seller"`
	InvoiceNumber      string         `json:"invoice_number,omitempty"`
	TotalValue         float64        `json:"total_value"`
	TestSale           bool           `json:"test_sale,omitempty"`
	Items              []SaleItem     `json:"items"`
	Payments           []PaymentSplit `json:"payments"`
	PaymentMethodsUsed []string       `json:"payment_methods_used"`
	Note               string         `json:"note,omitempty"`
	CreatedBy          string         `json:"created_by"`
	CreatedAt          time.Time      `json:"created_at"`
	ModifiedBy         string         `json:"modified_by,omitempty"`
	ModifiedAt         *time.Time     `json:"modified_at,omitempty"`
}

// SaleItemInput references a variant by id; the snapshot fields (full name,
// model name, original price) are resolved from fresh product state inside
// the sale transaction, not trusted from the caller.
type SaleItemInput struct {
	ProductID string  `json:"product_id" validate:"required"`
	VariantID string  `json:"variant_id" validate:"required"`
	ModelID   string  `json:"model_id,omitempty"`
	SoldPrice float64 `json:"sold_price" validate:"min=0"`
}

type SaleInput struct {
	Date          time.Time       `json:"date"`
	Seller        string          `json:"seller" validate:"required"`
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	TestSale      bool            `json:"test_sale"`
	Items         []SaleItemInput `json:"items" validate:"required,min=1,dive"`
	Payments      []PaymentSplit  `json:"payments" validate:"dive"`
	Note          string          `json:"note,omitempty"`
}

type StockLedgerEntry struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	VariantID     string    `json:"variant_id"`
	VariantName   string    `json:"variant_name"`
	PreviousStock int       `json:"previous_stock"`
	NewStock      int       `json:"new_stock"`
	Delta         int       `json:"delta"`
	Reason        string    `json:"reason"`
	SaleID        string    `json:"sale_id,omitempty"`
	ActorID       string    `json:"actor_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// SaleQuery drives the cursor-paginated sales listing. Cursor is an opaque
// token produced by a previous page.
type SaleQuery struct {
	Seller        string
	CreatedBy     string
	PaymentMethod string
	InvoicePrefix string
	SortKey       string
	SortOrder     string
	Limit         int
	Cursor        string
}

type SalePage struct {
	Sales      []Sale `json:"sales"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type Expense struct {
	ID          string     `json:"id"`
	Date        time.Time  `json:"date"`
	Amount      float64    `json:"amount"`
	Description string     `json:"description"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	ModifiedBy  string     `json:"modified_by,omitempty"`
	ModifiedAt  *time.Time `json:"modified_at,omitempty"`
}

type ExpenseInput struct {
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount" validate:"gt=0"`
	Description string    `json:"description" validate:"required"`
}

type Deposit struct {
	ID         string     `json:"id"`
	Date       time.Time  `json:"date"`
	Amount     float64    `json:"amount"`
	Note       string     `json:"note,omitempty"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  time.Time  `json:"created_at"`
	ModifiedBy string     `json:"modified_by,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

type DepositInput struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount" validate:"gt=0"`
	Note   string    `json:"note,omitempty"`
}

type Seller struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentMethod struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type PhoneModel struct {
	ID        string    `json:"id"`
	Brand     string    `json:"brand"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

type Settings struct {
	CompanyName string  `json:"company_name"`
	TaxID       string  `json:"tax_id"`
	MonthlyGoal float64 `json:"monthly_goal"`
	LogoURL     string  `json:"logo_url"`
}

type CashTransaction struct {
	Date        time.Time `json:"date"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
}

type CashSummary struct {
	From         time.Time         `json:"from"`
	To           time.Time         `json:"to"`
	Inflows      float64           `json:"inflows"`
	Expenses     float64           `json:"expenses"`
	Deposits     float64           `json:"deposits"`
	Balance      float64           `json:"balance"`
	Transactions []CashTransaction `json:"transactions"`
}

type CashClosing struct {
	ID         string    `json:"id"`
	Date       string    `json:"date"`
	Inflows    float64   `json:"inflows"`
	Expenses   float64   `json:"expenses"`
	Deposits   float64   `json:"deposits"`
	Expected   float64   `json:"expected"`
	Counted    float64   `json:"counted"`
	Difference float64   `json:"difference"`
	ClosedBy   string    `json:"closed_by"`
	ClosedAt   time.Time `json:"closed_at"`
}

type CashClosingRequest struct {
	Counted float64 `json:"counted" validate:"min=0"`
}

type SellerTotal struct {
	Seller     string  `json:"seller"`
	SaleCount  int     `json:"sale_count"`
	TotalValue float64 `json:"total_value"`
}

type PaymentTotal struct {
	Method     string  `json:"method"`
	SaleCount  int     `json:"sale_count"`
	TotalValue float64 `json:"total_value"`
}

type SalesReport struct {
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	SaleCount     int            `json:"sale_count"`
	TestSaleCount int            `json:"test_sale_count"`
	TotalValue    float64        `json:"total_value"`
	AverageValue  float64        `json:"average_value"`
	BySeller      []SellerTotal  `json:"by_seller"`
	ByPayment     []PaymentTotal `json:"by_payment"`
	MonthlyGoal   float64        `json:"monthly_goal"`
	GoalProgress  float64        `json:"goal_progress"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	ID    string
	Email string
	Role  string
}

type UserCreateRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=admin seller"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Email     string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

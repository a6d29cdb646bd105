package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Code             string          `json:"code"`
	BuyPrice         decimal.Decimal `json:"buy_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	Category         string          `json:"category"`
	Tags             []string        `json:"tags"`
	Sizes            []string        `json:"sizes"`
	Stock            int             `json:"stock"`
	SupplierID       string          `json:"supplier_id,omitempty"`
	ImageRefs        []string        `json:"image_refs"`
	LastSoldAt       *time.Time      `json:"last_sold_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name       string          `json:"name"`
	Code       string          `json:"code"`
	BuyPrice   decimal.Decimal `json:"buy_price"`
	SellPrice  decimal.Decimal `json:"sell_price"`
	Category   string          `json:"category"`
	Tags       []string        `json:"tags"`
	Sizes      []string        `json:"sizes"`
	Stock      int             `json:"stock"`
	SupplierID string          `json:"supplier_id"`
	ImageRefs  []string        `json:"image_refs"`
}

type ProductUpdateRequest struct {
	Name       *string          `json:"name,omitempty"`
	Code       *string          `json:"code,omitempty"`
	BuyPrice   *decimal.Decimal `json:"buy_price,omitempty"`
	SellPrice  *decimal.Decimal `json:"sell_price,omitempty"`
	Category   *string          `json:"category,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	Sizes      []string         `json:"sizes,omitempty"`
	Stock      *int             `json:"stock,omitempty"`
	SupplierID *string          `json:"supplier_id,omitempty"`
	ImageRefs  []string         `json:"image_refs,omitempty"`
}

// ProductFilter narrows catalog listings. A nil MaxStock means no stock bound.
type ProductFilter struct {
	Category string
	Search   string
	MaxStock *int
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentDebit    PaymentMethod = "debit"
	PaymentCredit   PaymentMethod = "credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentDebit, PaymentCredit:
		return true
	default:
		return false
	}
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

const SaleStatusCompleted = "completed"

type SaleItem struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Code         string          `json:"code"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	LineSubtotal decimal.Decimal `json:"line_subtotal"`
}

type Sale struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Items          []SaleItem      `json:"items"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DiscountType   DiscountType    `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	CustomerName   string          `json:"customer_name,omitempty"`
	IsExchange     bool            `json:"is_exchange"`
	SellerID       string          `json:"seller_id"`
	SellerName     string          `json:"seller_name"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// StockDecrement is one product's share of a sale, applied against the catalog at commit time.
type StockDecrement struct {
	ProductID string
	Quantity  int
}

func (s Sale) StockDecrements() []StockDecrement {
	out := make([]StockDecrement, 0, len(s.Items))
	for _, item := range s.Items {
		out = append(out, StockDecrement{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

type CheckoutLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	IdempotencyKey       string          `json:"idempotency_key"`
	Items                []CheckoutLine  `json:"items"`
	PaymentMethod        PaymentMethod   `json:"payment_method"`
	CustomerName         string          `json:"customer_name"`
	DiscountValue        decimal.Decimal `json:"discount_value"`
	DiscountIsPercentage bool            `json:"discount_is_percentage"`
	IsExchange           bool            `json:"is_exchange"`
}

type CheckoutResponse struct {
	SaleID    string          `json:"sale_id"`
	Status    string          `json:"status"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount_amount"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	Duplicate bool            `json:"duplicate"`
	State     string          `json:"state"`
	Receipt   string          `json:"receipt,omitempty"`
	CreatedAt string          `json:"created_at"`
}

// CartFormUpdate patches the sale-form fields of a session cart. Nil fields are left as is.
type CartFormUpdate struct {
	CustomerName         *string          `json:"customer_name,omitempty"`
	DiscountValue        *decimal.Decimal `json:"discount_value,omitempty"`
	DiscountIsPercentage *bool            `json:"discount_is_percentage,omitempty"`
	IsExchange           *bool            `json:"is_exchange,omitempty"`
	PaymentMethod        *PaymentMethod   `json:"payment_method,omitempty"`
}

type CartItemRequest struct {
	ProductID string `json:"product_id"`
}

type CartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CartCheckoutRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

type ReceiptResponse struct {
	SaleID       string `json:"sale_id"`
	PreviewText  string `json:"preview_text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
}

type DailySales struct {
	Date       string          `json:"date"`
	SalesCount int             `json:"sales_count"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type TopProduct struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type PaymentBreakdown struct {
	Method  PaymentMethod   `json:"method"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

type Metrics struct {
	TotalSales       int                `json:"total_sales"`
	TotalRevenue     decimal.Decimal    `json:"total_revenue"`
	TotalProfit      decimal.Decimal    `json:"total_profit"`
	AverageTicket    decimal.Decimal    `json:"average_ticket"`
	TotalProducts    int                `json:"total_products"`
	LowStockProducts int                `json:"low_stock_products"`
	TotalAssets      decimal.Decimal    `json:"total_assets"`
	TotalInvested    decimal.Decimal    `json:"total_invested"`
	SalesByDay       []DailySales       `json:"sales_by_day"`
	TopProducts      []TopProduct       `json:"top_products"`
	PaymentMethods   []PaymentBreakdown `json:"payment_methods"`
}

type StatisticsReport struct {
	Period  string   `json:"period"`
	Start   string   `json:"start,omitempty"`
	End     string   `json:"end,omitempty"`
	Empty   bool     `json:"empty"`
	Metrics *Metrics `json:"metrics,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserCreateRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        Role   `json:"role"`
}

type UserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

// Principal is the authenticated caller, stamped onto sales as the seller.
type Principal struct {
	ID          string
	Username    string
	DisplayName string
	Role        Role
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
}

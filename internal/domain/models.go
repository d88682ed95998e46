package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	MainCategory  string          `json:"main_category"`
	SubCategory   string          `json:"sub_category"`
	Category      string          `json:"category"`
	TotalStock    int             `json:"total_stock"`
	OnHold        int             `json:"on_hold"`
	OnDisplay     int             `json:"on_display"`
	OnFault       int             `json:"on_fault"`
	MinStockLevel int             `json:"min_stock_level"`
	RetailPrice   decimal.Decimal `json:"retail_price"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	MainCategory  string          `json:"main_category"`
	SubCategory   string          `json:"sub_category"`
	Category      string          `json:"category"`
	TotalStock    int             `json:"total_stock"`
	MinStockLevel int             `json:"min_stock_level"`
	RetailPrice   decimal.Decimal `json:"retail_price"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	SKU           *string          `json:"sku,omitempty"`
	MainCategory  *string          `json:"main_category,omitempty"`
	SubCategory   *string          `json:"sub_category,omitempty"`
	Category      *string          `json:"category,omitempty"`
	TotalStock    *int             `json:"total_stock,omitempty"`
	MinStockLevel *int             `json:"min_stock_level,omitempty"`
	RetailPrice   *decimal.Decimal `json:"retail_price,omitempty"`
}

// Transaction is an immutable ledger record. ProductName and ProductSKU are
// denormalized snapshots taken at write time so history stays readable after
// the product is renamed or deleted.
type Transaction struct {
	ID             string           `json:"id"`
	ProductID      string           `json:"product_id"`
	ProductName    string           `json:"product_name"`
	ProductSKU     string           `json:"product_sku"`
	Type           string           `json:"type"`
	Quantity       int              `json:"quantity"`
	QuantityBefore *int             `json:"quantity_before,omitempty"`
	QuantityAfter  *int             `json:"quantity_after,omitempty"`
	Discount       float64          `json:"discount,omitempty"`
	OriginalPrice  *decimal.Decimal `json:"original_price,omitempty"`
	FinalPrice     *decimal.Decimal `json:"final_price,omitempty"`
	ReturnValue    *decimal.Decimal `json:"return_value,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

type FootfallRecord struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Hour      int       `json:"hour"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// SellBreakdown allocates a sell quantity across the sellable buckets.
// Fault stock is never sellable and has no slot here.
type SellBreakdown struct {
	FromFree    int `json:"from_free"`
	FromHold    int `json:"from_hold"`
	FromDisplay int `json:"from_display"`
}

func (b SellBreakdown) Total() int {
	return b.FromFree + b.FromHold + b.FromDisplay
}

type StockRequest struct {
	Quantity int        `json:"quantity"`
	Discount float64    `json:"discount,omitempty"`
	Notes    string     `json:"notes,omitempty"`
	At       *time.Time `json:"at,omitempty"`
}

type SellConfirmRequest struct {
	Quantity  int           `json:"quantity"`
	Discount  float64       `json:"discount,omitempty"`
	Notes     string        `json:"notes,omitempty"`
	At        *time.Time    `json:"at,omitempty"`
	Breakdown SellBreakdown `json:"breakdown"`
}

// SellProposal is returned when more than one bucket holds stock and the
// caller must confirm (or adjust) the breakdown before anything is persisted.
type SellProposal struct {
	ProductID string        `json:"product_id"`
	Quantity  int           `json:"quantity"`
	Discount  float64       `json:"discount"`
	Breakdown SellBreakdown `json:"breakdown"`
	State     string        `json:"state"`
}

type SellResult struct {
	Product     *Product      `json:"product,omitempty"`
	Transaction *Transaction  `json:"transaction,omitempty"`
	Proposal    *SellProposal `json:"proposal,omitempty"`
	State       string        `json:"state"`
}

type StockResult struct {
	Product     Product     `json:"product"`
	Transaction Transaction `json:"transaction"`
}

type AllocationRequest struct {
	NewHold    int    `json:"new_hold"`
	NewDisplay int    `json:"new_display"`
	NewFault   int    `json:"new_fault"`
	Resolution string `json:"resolution,omitempty"`
}

// AllocationCandidate is one of the resolutions offered when requested Hold and
// Display together exceed total stock. Nothing is applied until one is chosen.
type AllocationCandidate struct {
	Resolution string `json:"resolution"`
	Hold       int    `json:"hold"`
	Display    int    `json:"display"`
}

type AllocationConflict struct {
	Message    string                `json:"message"`
	Candidates []AllocationCandidate `json:"candidates"`
}

type AllocationResult struct {
	Product     *Product            `json:"product,omitempty"`
	Transaction *Transaction        `json:"transaction,omitempty"`
	Conflict    *AllocationConflict `json:"conflict,omitempty"`
}

type FootfallRequest struct {
	Count int `json:"count"`
}

type DashboardStats struct {
	TotalProducts   int             `json:"total_products"`
	TotalStockCount int             `json:"total_stock_count"`
	LowStock        int             `json:"low_stock"`
	OutOfStock      int             `json:"out_of_stock"`
	TotalValue      decimal.Decimal `json:"total_value"`
}

type DailyRevenue struct {
	Date     string          `json:"date"`
	Revenue  decimal.Decimal `json:"revenue"`
	Quantity int             `json:"quantity"`
}

type ProductSales struct {
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	ProductSKU    string          `json:"product_sku"`
	TotalQuantity int             `json:"total_quantity"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
}

type ConversionStats struct {
	TotalFootfall  int             `json:"total_footfall"`
	SaleCount      int             `json:"sale_count"`
	ConversionRate float64         `json:"conversion_rate"`
	NetRevenue     decimal.Decimal `json:"net_revenue"`
	AvgPerVisitor  decimal.Decimal `json:"avg_per_visitor"`
}

type ClearHistoryResponse struct {
	Deleted int `json:"deleted"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Email string
	Role  string
}

type StaffCreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type StaffUser struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Email     string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	TxTypeReceive  = "receive"
	TxTypeSell     = "sell"
	TxTypeReturn   = "return"
	TxTypeExchange = "exchange"
	TxTypeManage   = "manage"
)

const (
	SellStateAutoResolved     = "auto_resolved"
	SellStatePendingBreakdown = "pending_breakdown"
	SellStateCommitted        = "committed"
)

const (
	ResolutionKeepDisplay = "keep_display"
	ResolutionKeepHold    = "keep_hold"
)

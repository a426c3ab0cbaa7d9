package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a sellable item in the catalog. StockQuantity and
// SalesCount are mutated only through the reservation engine or an explicit
// compare-and-set restock; every other field may be edited freely.
type Product struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	SellerID         uuid.UUID       `json:"seller_id" db:"seller_id"`
	Name             string          `json:"name" db:"name"`
	Description      string          `json:"description" db:"description"`
	SKU              string          `json:"sku" db:"sku"`
	Price            decimal.Decimal `json:"price" db:"price"`
	Tags             []string        `json:"tags" db:"tags"`
	StockQuantity    int             `json:"stock_quantity" db:"stock_quantity"`
	SalesCount       int             `json:"sales_count" db:"sales_count"`
	IsActive         bool            `json:"is_active" db:"is_active"`
	LowStockNotified bool            `json:"low_stock_notified" db:"low_stock_notified"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

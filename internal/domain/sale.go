package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleRecord is the immutable fact of a completed sale. Rows are append-only:
// never updated or deleted once written. PriceAtSale snapshots the product
// price at the moment of the reservation, independent of later price edits.
type SaleRecord struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	ProductID   uuid.UUID       `json:"product_id" db:"product_id"`
	SellerID    uuid.UUID       `json:"seller_id" db:"seller_id"`
	BuyerID     *uuid.UUID      `json:"buyer_id,omitempty" db:"buyer_id"`
	Quantity    int             `json:"quantity" db:"quantity"`
	PriceAtSale decimal.Decimal `json:"price_at_sale" db:"price_at_sale"`
	SaleDate    time.Time       `json:"sale_date" db:"sale_date"`
}

// TotalAmount is quantity times the captured price, exact to two decimals.
func (s *SaleRecord) TotalAmount() decimal.Decimal {
	return s.PriceAtSale.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

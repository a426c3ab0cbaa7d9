package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnalyticsSnapshot is a derived summary of sale records over a window. It is
// recomputable at any time and never authoritative.
type AnalyticsSnapshot struct {
	SellerID       *uuid.UUID      `json:"seller_id,omitempty"`
	ProductID      *uuid.UUID      `json:"product_id,omitempty"`
	WindowStart    time.Time       `json:"window_start"`
	WindowEnd      time.Time       `json:"window_end"`
	UnitsSold      int64           `json:"units_sold"`
	Revenue        decimal.Decimal `json:"revenue"`
	SaleCount      int64           `json:"sale_count"`
	DistinctBuyers int64           `json:"distinct_buyers"`
	TopProducts    []ProductSales  `json:"top_products,omitempty"`
}

// ProductSales is one entry of a top-N products ranking.
type ProductSales struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitsSold int64           `json:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

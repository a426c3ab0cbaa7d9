package repository

import (
	"context"
	"fmt"
	"time"

	"storeledger/internal/database"
	"storeledger/internal/domain"

	"github.com/google/uuid"
)

// SaleRepository is the append-only store of completed sales. Insert runs
// inside the reservation transaction; the scan methods exist so aggregates
// can always be re-derived from the records.
type SaleRepository interface {
	Insert(ctx context.Context, q database.Queryer, sale *domain.SaleRecord) error
	ListBySeller(ctx context.Context, sellerID uuid.UUID, from, to time.Time, limit int) ([]*domain.SaleRecord, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, from, to time.Time, limit int) ([]*domain.SaleRecord, error)
}

type saleRepository struct {
	db *database.DB
}

// NewSaleRepository creates a new instance of SaleRepository
func NewSaleRepository(db *database.DB) SaleRepository {
	return &saleRepository{db: db}
}

// Insert appends a sale record using parameterized queries
func (r *saleRepository) Insert(ctx context.Context, q database.Queryer, sale *domain.SaleRecord) error {
	if q == nil {
		q = r.db
	}

	query := `
		INSERT INTO product_sales (id, product_id, seller_id, buyer_id, quantity, price_at_sale, sale_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := q.ExecContext(
		ctx,
		query,
		sale.ID,
		sale.ProductID,
		sale.SellerID,
		sale.BuyerID,
		sale.Quantity,
		sale.PriceAtSale,
		sale.SaleDate,
	)

	if err != nil {
		return fmt.Errorf("failed to insert sale record: %w", err)
	}

	return nil
}

// ListBySeller returns a seller's sales within [from, to), newest first
func (r *saleRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID, from, to time.Time, limit int) ([]*domain.SaleRecord, error) {
	query := `
		SELECT id, product_id, seller_id, buyer_id, quantity, price_at_sale, sale_date
		FROM product_sales
		WHERE seller_id = $1 AND sale_date >= $2 AND sale_date < $3
		ORDER BY sale_date DESC
		LIMIT $4
	`

	return r.list(ctx, query, sellerID, from, to, limit)
}

// ListByProduct returns a product's sales within [from, to), newest first
func (r *saleRepository) ListByProduct(ctx context.Context, productID uuid.UUID, from, to time.Time, limit int) ([]*domain.SaleRecord, error) {
	query := `
		SELECT id, product_id, seller_id, buyer_id, quantity, price_at_sale, sale_date
		FROM product_sales
		WHERE product_id = $1 AND sale_date >= $2 AND sale_date < $3
		ORDER BY sale_date DESC
		LIMIT $4
	`

	return r.list(ctx, query, productID, from, to, limit)
}

func (r *saleRepository) list(ctx context.Context, query string, id uuid.UUID, from, to time.Time, limit int) ([]*domain.SaleRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, id, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sale records: %w", err)
	}
	defer rows.Close()

	sales := []*domain.SaleRecord{}
	for rows.Next() {
		sale := &domain.SaleRecord{}
		err := rows.Scan(
			&sale.ID,
			&sale.ProductID,
			&sale.SellerID,
			&sale.BuyerID,
			&sale.Quantity,
			&sale.PriceAtSale,
			&sale.SaleDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale record: %w", err)
		}
		sales = append(sales, sale)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sale records: %w", err)
	}

	return sales, nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storeledger/internal/database"
	"storeledger/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrStockConflict   = errors.New("stock changed since read")
)

// ProductRepository defines the data access surface for products. Methods
// taking a database.Queryer participate in the caller's transaction; the
// reservation engine passes its *sql.Tx so the locked read, the stock
// decrement and the sale append commit or roll back together.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, q database.Queryer, id uuid.UUID) (*domain.Product, error)
	// FindByIDForUpdate reads the product under an exclusive row lock,
	// serializing concurrent reservations on the same product.
	FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Product, error)
	// ApplySale decrements stock and increments sales_count for a locked
	// row. markNotified raises the low-stock flag when the sale crossed
	// the threshold.
	ApplySale(ctx context.Context, tx *sql.Tx, id uuid.UUID, quantity int, markNotified bool) error
	// CompareAndSetStock updates stock only if it still equals expected,
	// returning ErrStockConflict otherwise. notified is the new value of
	// the low-stock flag (reset when a restock raises stock above the
	// threshold).
	CompareAndSetStock(ctx context.Context, id uuid.UUID, expected, newStock int, notified bool) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	ListLowStock(ctx context.Context, sellerID uuid.UUID, threshold int) ([]*domain.Product, error)
}

type productRepository struct {
	db *database.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *database.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, seller_id, name, description, sku, price, tags, stock_quantity, sales_count, is_active, low_stock_notified, created_at, updated_at`

// Create inserts a new product using parameterized queries
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, seller_id, name, description, sku, price, tags, stock_quantity, sales_count, is_active, low_stock_notified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	tags, err := json.Marshal(product.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	_, err = r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.SellerID,
		product.Name,
		product.Description,
		product.SKU,
		product.Price,
		tags,
		product.StockQuantity,
		product.SalesCount,
		product.IsActive,
		product.LowStockNotified,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// FindByID retrieves a product by ID
func (r *productRepository) FindByID(ctx context.Context, q database.Queryer, id uuid.UUID) (*domain.Product, error) {
	if q == nil {
		q = r.db
	}

	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1`, productColumns)

	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// FindByIDForUpdate retrieves a product under FOR UPDATE within tx
func (r *productRepository) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = $1 FOR UPDATE`, productColumns)

	product, err := scanProduct(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to lock product row: %w", err)
	}

	return product, nil
}

// ApplySale decrements stock and increments sales_count on an already locked row
func (r *productRepository) ApplySale(ctx context.Context, tx *sql.Tx, id uuid.UUID, quantity int, markNotified bool) error {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $2,
		    sales_count = sales_count + $2,
		    low_stock_notified = low_stock_notified OR $3
		WHERE id = $1 AND stock_quantity >= $2
	`

	result, err := tx.ExecContext(ctx, query, id, quantity, markNotified)
	if err != nil {
		return fmt.Errorf("failed to apply sale: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	// The caller validated stock under the row lock, so this only fires on
	// a programming error.
	if rowsAffected == 0 {
		return ErrStockConflict
	}

	return nil
}

// CompareAndSetStock applies an optimistic stock edit
func (r *productRepository) CompareAndSetStock(ctx context.Context, id uuid.UUID, expected, newStock int, notified bool) error {
	query := `
		UPDATE products
		SET stock_quantity = $3, low_stock_notified = $4
		WHERE id = $1 AND stock_quantity = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, expected, newStock, notified)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrStockConflict
	}

	return nil
}

// SetActive flips product visibility; takes effect for in-flight reservations
// because the engine re-reads is_active under the row lock.
func (r *productRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE products SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// ListLowStock returns a seller's active products at or below threshold
func (r *productRepository) ListLowStock(ctx context.Context, sellerID uuid.UUID, threshold int) ([]*domain.Product, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM products
		WHERE seller_id = $1 AND stock_quantity <= $2 AND is_active = TRUE
		ORDER BY stock_quantity ASC
	`, productColumns)

	rows, err := r.db.QueryContext(ctx, query, sellerID, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	var tags []byte

	err := row.Scan(
		&product.ID,
		&product.SellerID,
		&product.Name,
		&product.Description,
		&product.SKU,
		&product.Price,
		&tags,
		&product.StockQuantity,
		&product.SalesCount,
		&product.IsActive,
		&product.LowStockNotified,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &product.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}

	return product, nil
}

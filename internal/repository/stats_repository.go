package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storeledger/internal/database"
	"storeledger/internal/domain"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WindowTotals are the bucket-summable aggregates of a time window.
type WindowTotals struct {
	UnitsSold int64
	Revenue   decimal.Decimal
	SaleCount int64
}

// StatsRepository maintains the daily rollup tables that back incremental
// analytics. UpsertDaily runs inside the reservation transaction so the
// rollups advance atomically with each sale; RebuildFromSales is the full
// rescan reconciliation fallback.
type StatsRepository interface {
	UpsertDaily(ctx context.Context, q database.Queryer, sellerID, productID uuid.UUID, day time.Time, quantity int, revenue decimal.Decimal) error
	SellerWindow(ctx context.Context, sellerID uuid.UUID, from, to time.Time) (*WindowTotals, error)
	ProductWindow(ctx context.Context, productID uuid.UUID, from, to time.Time) (*WindowTotals, error)
	TopProducts(ctx context.Context, sellerID uuid.UUID, from, to time.Time, limit int) ([]domain.ProductSales, error)
	DistinctBuyersForSeller(ctx context.Context, sellerID uuid.UUID, from, to time.Time) (int64, error)
	DistinctBuyersForProduct(ctx context.Context, productID uuid.UUID, from, to time.Time) (int64, error)
	ActiveSellers(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
	RebuildFromSales(ctx context.Context) error
}

type statsRepository struct {
	db *database.DB
}

// NewStatsRepository creates a new instance of StatsRepository
func NewStatsRepository(db *database.DB) StatsRepository {
	return &statsRepository{db: db}
}

// UpsertDaily advances the seller and product rollup rows for one sale
func (r *statsRepository) UpsertDaily(ctx context.Context, q database.Queryer, sellerID, productID uuid.UUID, day time.Time, quantity int, revenue decimal.Decimal) error {
	if q == nil {
		q = r.db
	}

	date := day.UTC().Format(time.DateOnly)

	sellerQuery, sellerArgs, err := squirrel.StatementBuilder.
		Insert("seller_daily_stats").
		Columns("seller_id", "day", "units_sold", "revenue", "sale_count").
		Values(sellerID, date, quantity, revenue, 1).
		Suffix(`
			ON CONFLICT (seller_id, day) DO UPDATE SET
				units_sold = seller_daily_stats.units_sold + EXCLUDED.units_sold,
				revenue = seller_daily_stats.revenue + EXCLUDED.revenue,
				sale_count = seller_daily_stats.sale_count + EXCLUDED.sale_count
		`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build seller stats query: %w", err)
	}

	if _, err := q.ExecContext(ctx, sellerQuery, sellerArgs...); err != nil {
		return fmt.Errorf("failed to upsert seller stats: %w", err)
	}

	productQuery, productArgs, err := squirrel.StatementBuilder.
		Insert("product_daily_stats").
		Columns("product_id", "seller_id", "day", "units_sold", "revenue", "sale_count").
		Values(productID, sellerID, date, quantity, revenue, 1).
		Suffix(`
			ON CONFLICT (product_id, day) DO UPDATE SET
				units_sold = product_daily_stats.units_sold + EXCLUDED.units_sold,
				revenue = product_daily_stats.revenue + EXCLUDED.revenue,
				sale_count = product_daily_stats.sale_count + EXCLUDED.sale_count
		`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build product stats query: %w", err)
	}

	if _, err := q.ExecContext(ctx, productQuery, productArgs...); err != nil {
		return fmt.Errorf("failed to upsert product stats: %w", err)
	}

	return nil
}

// SellerWindow sums a seller's daily buckets over [from, to)
func (r *statsRepository) SellerWindow(ctx context.Context, sellerID uuid.UUID, from, to time.Time) (*WindowTotals, error) {
	return r.window(ctx, "seller_daily_stats", squirrel.Eq{"seller_id": sellerID}, from, to)
}

// ProductWindow sums a product's daily buckets over [from, to)
func (r *statsRepository) ProductWindow(ctx context.Context, productID uuid.UUID, from, to time.Time) (*WindowTotals, error) {
	return r.window(ctx, "product_daily_stats", squirrel.Eq{"product_id": productID}, from, to)
}

func (r *statsRepository) window(ctx context.Context, table string, filter squirrel.Eq, from, to time.Time) (*WindowTotals, error) {
	query, args, err := squirrel.
		Select(
			"COALESCE(SUM(units_sold), 0)",
			"COALESCE(SUM(revenue), 0)",
			"COALESCE(SUM(sale_count), 0)",
		).
		From(table).
		Where(filter).
		Where(squirrel.GtOrEq{"day": from.UTC().Format(time.DateOnly)}).
		Where(squirrel.Lt{"day": to.UTC().Format(time.DateOnly)}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build window query: %w", err)
	}

	totals := &WindowTotals{}
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&totals.UnitsSold, &totals.Revenue, &totals.SaleCount)
	if err != nil {
		return nil, fmt.Errorf("failed to sum window: %w", err)
	}

	return totals, nil
}

// TopProducts ranks a seller's products by units sold over [from, to)
func (r *statsRepository) TopProducts(ctx context.Context, sellerID uuid.UUID, from, to time.Time, limit int) ([]domain.ProductSales, error) {
	query, args, err := squirrel.
		Select(
			"s.product_id",
			"p.name",
			"SUM(s.units_sold) AS units_sold",
			"SUM(s.revenue) AS revenue",
		).
		From("product_daily_stats s").
		Join("products p ON p.id = s.product_id").
		Where(squirrel.Eq{"s.seller_id": sellerID}).
		Where(squirrel.GtOrEq{"s.day": from.UTC().Format(time.DateOnly)}).
		Where(squirrel.Lt{"s.day": to.UTC().Format(time.DateOnly)}).
		GroupBy("s.product_id", "p.name").
		OrderBy("units_sold DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build top products query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top products: %w", err)
	}
	defer rows.Close()

	top := []domain.ProductSales{}
	for rows.Next() {
		var entry domain.ProductSales
		if err := rows.Scan(&entry.ProductID, &entry.Name, &entry.UnitsSold, &entry.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan top product: %w", err)
		}
		top = append(top, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top products: %w", err)
	}

	return top, nil
}

// DistinctBuyersForSeller counts unique buyers over [from, to). This is the
// one metric the daily buckets cannot answer; it runs as an indexed scan of
// the sale records.
func (r *statsRepository) DistinctBuyersForSeller(ctx context.Context, sellerID uuid.UUID, from, to time.Time) (int64, error) {
	return r.distinctBuyers(ctx, squirrel.Eq{"seller_id": sellerID}, from, to)
}

// DistinctBuyersForProduct counts unique buyers of one product over [from, to)
func (r *statsRepository) DistinctBuyersForProduct(ctx context.Context, productID uuid.UUID, from, to time.Time) (int64, error) {
	return r.distinctBuyers(ctx, squirrel.Eq{"product_id": productID}, from, to)
}

func (r *statsRepository) distinctBuyers(ctx context.Context, filter squirrel.Eq, from, to time.Time) (int64, error) {
	query, args, err := squirrel.
		Select("COUNT(DISTINCT buyer_id)").
		From("product_sales").
		Where(filter).
		Where(squirrel.GtOrEq{"sale_date": from}).
		Where(squirrel.Lt{"sale_date": to}).
		Where(squirrel.NotEq{"buyer_id": nil}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build distinct buyers query: %w", err)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct buyers: %w", err)
	}

	return count, nil
}

// ActiveSellers returns sellers with at least one sale in [from, to)
func (r *statsRepository) ActiveSellers(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	query, args, err := squirrel.
		Select("DISTINCT seller_id").
		From("seller_daily_stats").
		Where(squirrel.GtOrEq{"day": from.UTC().Format(time.DateOnly)}).
		Where(squirrel.Lt{"day": to.UTC().Format(time.DateOnly)}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build active sellers query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sellers: %w", err)
	}
	defer rows.Close()

	sellers := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan seller id: %w", err)
		}
		sellers = append(sellers, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active sellers: %w", err)
	}

	return sellers, nil
}

// RebuildFromSales recomputes every rollup row and sales_count from the
// append-only sale records. The records are the source of truth; this is the
// correctness fallback when counters are suspected to have drifted.
func (r *statsRepository) RebuildFromSales(ctx context.Context) error {
	return r.db.RunInTransaction(ctx, func(tx *sql.Tx) error {
		statements := []string{
			`DELETE FROM seller_daily_stats`,
			`DELETE FROM product_daily_stats`,
			`INSERT INTO seller_daily_stats (seller_id, day, units_sold, revenue, sale_count)
			 SELECT seller_id, (sale_date AT TIME ZONE 'UTC')::date,
			        SUM(quantity), SUM(quantity * price_at_sale), COUNT(*)
			 FROM product_sales
			 GROUP BY seller_id, (sale_date AT TIME ZONE 'UTC')::date`,
			`INSERT INTO product_daily_stats (product_id, seller_id, day, units_sold, revenue, sale_count)
			 SELECT product_id, seller_id, (sale_date AT TIME ZONE 'UTC')::date,
			        SUM(quantity), SUM(quantity * price_at_sale), COUNT(*)
			 FROM product_sales
			 GROUP BY product_id, seller_id, (sale_date AT TIME ZONE 'UTC')::date`,
			// Touches every product row, so counters that drifted upward
			// on a product with no sale records reset to zero.
			`UPDATE products p
			 SET sales_count = COALESCE(
			     (SELECT SUM(quantity) FROM product_sales ps WHERE ps.product_id = p.id), 0)`,
		}

		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to rebuild stats: %w", err)
			}
		}

		return nil
	})
}

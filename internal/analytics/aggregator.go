package analytics

import (
	"context"
	"errors"
	"time"

	"storeledger/internal/domain"
	"storeledger/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidWindow = errors.New("window end must be after window start")

// DefaultTopN bounds the products ranking in a seller snapshot.
const DefaultTopN = 5

// Aggregator derives analytics snapshots from the daily rollups the
// reservation engine maintains. Revenue stays in fixed-point decimal end to
// end; nothing here accumulates floats.
type Aggregator struct {
	stats  repository.StatsRepository
	sales  repository.SaleRepository
	logger *zap.Logger
}

// NewAggregator creates a new analytics aggregator
func NewAggregator(stats repository.StatsRepository, sales repository.SaleRepository, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		stats:  stats,
		sales:  sales,
		logger: logger,
	}
}

// SellerSnapshot aggregates one seller's performance over [from, to).
func (a *Aggregator) SellerSnapshot(ctx context.Context, sellerID uuid.UUID, from, to time.Time) (*domain.AnalyticsSnapshot, error) {
	if !to.After(from) {
		return nil, ErrInvalidWindow
	}

	totals, err := a.stats.SellerWindow(ctx, sellerID, from, to)
	if err != nil {
		return nil, err
	}

	buyers, err := a.stats.DistinctBuyersForSeller(ctx, sellerID, from, to)
	if err != nil {
		return nil, err
	}

	top, err := a.stats.TopProducts(ctx, sellerID, from, to, DefaultTopN)
	if err != nil {
		return nil, err
	}

	return &domain.AnalyticsSnapshot{
		SellerID:       &sellerID,
		WindowStart:    from,
		WindowEnd:      to,
		UnitsSold:      totals.UnitsSold,
		Revenue:        totals.Revenue,
		SaleCount:      totals.SaleCount,
		DistinctBuyers: buyers,
		TopProducts:    top,
	}, nil
}

// ProductSnapshot aggregates one product's performance over [from, to).
func (a *Aggregator) ProductSnapshot(ctx context.Context, productID uuid.UUID, from, to time.Time) (*domain.AnalyticsSnapshot, error) {
	if !to.After(from) {
		return nil, ErrInvalidWindow
	}

	totals, err := a.stats.ProductWindow(ctx, productID, from, to)
	if err != nil {
		return nil, err
	}

	buyers, err := a.stats.DistinctBuyersForProduct(ctx, productID, from, to)
	if err != nil {
		return nil, err
	}

	return &domain.AnalyticsSnapshot{
		ProductID:      &productID,
		WindowStart:    from,
		WindowEnd:      to,
		UnitsSold:      totals.UnitsSold,
		Revenue:        totals.Revenue,
		SaleCount:      totals.SaleCount,
		DistinctBuyers: buyers,
	}, nil
}

// RecentSales returns a seller's latest sale records for dashboards.
func (a *Aggregator) RecentSales(ctx context.Context, sellerID uuid.UUID, limit int) ([]*domain.SaleRecord, error) {
	to := time.Now().UTC()
	from := to.AddDate(-1, 0, 0)
	return a.sales.ListBySeller(ctx, sellerID, from, to, limit)
}

// Reconcile rebuilds every rollup from the sale records. Snapshots are
// derived state; the records remain the source of truth.
func (a *Aggregator) Reconcile(ctx context.Context) error {
	start := time.Now()
	if err := a.stats.RebuildFromSales(ctx); err != nil {
		return err
	}

	a.logger.Info("Analytics rollups reconciled", zap.Duration("took", time.Since(start)))
	return nil
}

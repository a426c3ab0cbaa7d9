package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storeledger/internal/config"
	"storeledger/internal/domain"
	"storeledger/internal/notification"
	"storeledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Waker nudges the notification dispatcher after a commit that enqueued a
// job. Delivery always happens outside the reservation transaction.
type Waker interface {
	Wake()
}

// SaleOutcome is the result of a successful reservation.
type SaleOutcome struct {
	SaleID            uuid.UUID       `json:"sale_id"`
	ProductID         uuid.UUID       `json:"product_id"`
	Quantity          int             `json:"quantity"`
	PriceAtSale       decimal.Decimal `json:"price_at_sale"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	RemainingStock    int             `json:"remaining_stock"`
	LowStockTriggered bool            `json:"low_stock_triggered"`
}

// Engine is the stock reservation engine: it atomically validates a purchase
// against current stock, applies the decrement, appends the sale record,
// advances the analytics rollups and enqueues low-stock alerts, all in one
// transaction.
type Engine struct {
	db       TxRunner
	products repository.ProductRepository
	sales    repository.SaleRepository
	stats    repository.StatsRepository
	emails   repository.EmailLogRepository
	users    repository.UserRepository
	waker    Waker
	cfg      config.LedgerConfig
	logger   *zap.Logger
}

// NewEngine creates a new reservation engine
func NewEngine(
	db TxRunner,
	products repository.ProductRepository,
	sales repository.SaleRepository,
	stats repository.StatsRepository,
	emails repository.EmailLogRepository,
	users repository.UserRepository,
	waker Waker,
	cfg config.LedgerConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		db:       db,
		products: products,
		sales:    sales,
		stats:    stats,
		emails:   emails,
		users:    users,
		waker:    waker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Reserve validates and applies a purchase of quantity units of a product.
// Concurrent reservations on the same product serialize on the row lock
// taken by FindByIDForUpdate; reservations on different products never block
// each other. On any failure the transaction rolls back leaving stock, sale
// records and the email queue unchanged.
func (e *Engine) Reserve(ctx context.Context, productID uuid.UUID, buyerID *uuid.UUID, quantity int) (*SaleOutcome, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ReserveTimeout)
	defer cancel()

	var outcome *SaleOutcome

	err := e.db.RunInTransaction(ctx, func(tx *sql.Tx) error {
		product, err := e.products.FindByIDForUpdate(ctx, tx, productID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return ErrProductNotFound
			}
			return e.storageErr(err)
		}

		// Re-checked under the lock so a concurrent deactivation is
		// visible to in-flight reservations.
		if !product.IsActive {
			return ErrProductInactive
		}

		if product.StockQuantity < quantity {
			return insufficientStock(quantity, product.StockQuantity)
		}

		remaining := product.StockQuantity - quantity
		crossed := product.StockQuantity > e.cfg.LowStockThreshold &&
			remaining <= e.cfg.LowStockThreshold &&
			!product.LowStockNotified

		if err := e.products.ApplySale(ctx, tx, productID, quantity, crossed); err != nil {
			return e.storageErr(err)
		}

		sale := &domain.SaleRecord{
			ID:          uuid.New(),
			ProductID:   product.ID,
			SellerID:    product.SellerID,
			BuyerID:     buyerID,
			Quantity:    quantity,
			PriceAtSale: product.Price,
			SaleDate:    time.Now().UTC(),
		}

		if err := e.sales.Insert(ctx, tx, sale); err != nil {
			return e.storageErr(err)
		}

		if err := e.stats.UpsertDaily(ctx, tx, product.SellerID, product.ID, sale.SaleDate, quantity, sale.TotalAmount()); err != nil {
			return e.storageErr(err)
		}

		if crossed {
			if err := e.enqueueLowStockAlert(ctx, tx, product, remaining); err != nil {
				return e.storageErr(err)
			}
		}

		outcome = &SaleOutcome{
			SaleID:            sale.ID,
			ProductID:         product.ID,
			Quantity:          quantity,
			PriceAtSale:       sale.PriceAtSale,
			TotalAmount:       sale.TotalAmount(),
			RemainingStock:    remaining,
			LowStockTriggered: crossed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Reservation committed",
		zap.String("product_id", outcome.ProductID.String()),
		zap.String("sale_id", outcome.SaleID.String()),
		zap.Int("quantity", outcome.Quantity),
		zap.Int("remaining_stock", outcome.RemainingStock),
		zap.Bool("low_stock_triggered", outcome.LowStockTriggered),
	)

	if outcome.LowStockTriggered && e.waker != nil {
		e.waker.Wake()
	}

	return outcome, nil
}

// Restock applies a seller stock edit through an optimistic compare-and-set,
// never bypassing the engine. When the new stock rises above the low-stock
// threshold the already-notified flag resets, re-arming the alert for the
// next crossing. Each retry re-reads stock fresh.
func (e *Engine) Restock(ctx context.Context, productID uuid.UUID, delta int) (*domain.Product, error) {
	if delta == 0 {
		return nil, ErrInvalidQuantity
	}

	for attempt := 0; attempt < e.cfg.RestockMaxRetries; attempt++ {
		product, err := e.products.FindByID(ctx, nil, productID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				return nil, ErrProductNotFound
			}
			return nil, e.storageErr(err)
		}

		newStock := product.StockQuantity + delta
		if newStock < 0 {
			return nil, insufficientStock(-delta, product.StockQuantity)
		}

		notified := product.LowStockNotified
		if newStock > e.cfg.LowStockThreshold {
			notified = false
		}

		err = e.products.CompareAndSetStock(ctx, productID, product.StockQuantity, newStock, notified)
		if err == nil {
			product.StockQuantity = newStock
			product.LowStockNotified = notified
			e.logger.Info("Stock adjusted",
				zap.String("product_id", productID.String()),
				zap.Int("delta", delta),
				zap.Int("stock_quantity", newStock),
			)
			return product, nil
		}
		if !errors.Is(err, repository.ErrStockConflict) {
			return nil, e.storageErr(err)
		}

		e.logger.Debug("Restock lost the race, retrying",
			zap.String("product_id", productID.String()),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, ErrConcurrentModification
}

// SetActive flips product visibility. A deactivation is observed by any
// reservation that has not yet acquired the row lock.
func (e *Engine) SetActive(ctx context.Context, productID uuid.UUID, active bool) error {
	if err := e.products.SetActive(ctx, productID, active); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return ErrProductNotFound
		}
		return e.storageErr(err)
	}
	return nil
}

func (e *Engine) enqueueLowStockAlert(ctx context.Context, tx *sql.Tx, product *domain.Product, remaining int) error {
	seller, err := e.users.FindByID(ctx, tx, product.SellerID)
	if err != nil {
		return fmt.Errorf("failed to resolve seller for low stock alert: %w", err)
	}

	job := notification.ComposeLowStockAlert(seller, product, remaining, e.cfg.LowStockThreshold)
	return e.emails.Enqueue(ctx, tx, job)
}

// storageErr classifies infrastructure failures: deadline expiry becomes
// Timeout, anything else StorageUnavailable.
func (e *Engine) storageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

package transport

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storeledger/internal/analytics"
	"storeledger/internal/middleware"
	"storeledger/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultWindowDays = 30

// AnalyticsHandler exposes seller and product analytics snapshots.
type AnalyticsHandler struct {
	aggregator *analytics.Aggregator
	products   repository.ProductRepository
	threshold  int
	logger     *zap.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(aggregator *analytics.Aggregator, products repository.ProductRepository, lowStockThreshold int, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		aggregator: aggregator,
		products:   products,
		threshold:  lowStockThreshold,
		logger:     logger,
	}
}

// RegisterRoutes registers all analytics routes
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/analytics", func(r chi.Router) {
		r.Get("/sellers/{sellerID}", h.SellerDashboard)
		r.Get("/sellers/{sellerID}/recent-sales", h.RecentSales)
		r.Get("/sellers/{sellerID}/low-stock", h.LowStock)
		r.Get("/products/{productID}", h.ProductSnapshot)
		r.Post("/reconcile", h.Reconcile)
	})
}

// SellerDashboard returns a seller's snapshot for the requested window
func (h *AnalyticsHandler) SellerDashboard(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(chi.URLParam(r, "sellerID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid seller ID")
		return
	}

	from, to, err := parseWindow(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.aggregator.SellerSnapshot(r.Context(), sellerID, from, to)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidWindow) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to build seller snapshot", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to build snapshot")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, snapshot)
}

// ProductSnapshot returns a product's snapshot for the requested window
func (h *AnalyticsHandler) ProductSnapshot(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	from, to, err := parseWindow(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshot, err := h.aggregator.ProductSnapshot(r.Context(), productID, from, to)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidWindow) {
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to build product snapshot", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to build snapshot")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, snapshot)
}

// RecentSales returns a seller's latest sale records
func (h *AnalyticsHandler) RecentSales(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(chi.URLParam(r, "sellerID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid seller ID")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			middleware.RespondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	sales, err := h.aggregator.RecentSales(r.Context(), sellerID, limit)
	if err != nil {
		h.logger.Error("Failed to list recent sales", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list recent sales")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, sales)
}

// LowStock lists a seller's products at or below the low-stock threshold
func (h *AnalyticsHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(chi.URLParam(r, "sellerID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid seller ID")
		return
	}

	products, err := h.products.ListLowStock(r.Context(), sellerID, h.threshold)
	if err != nil {
		h.logger.Error("Failed to list low stock products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list low stock products")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, products)
}

// Reconcile triggers a full rebuild of the analytics rollups
func (h *AnalyticsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if err := h.aggregator.Reconcile(r.Context()); err != nil {
		h.logger.Error("Reconciliation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}

// parseWindow reads from/to query parameters (RFC 3339 or date-only),
// defaulting to the last 30 days.
func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -defaultWindowDays)
	to := now

	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err = parseTimestamp(raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid 'from' timestamp")
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err = parseTimestamp(raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid 'to' timestamp")
		}
	}

	return from, to, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

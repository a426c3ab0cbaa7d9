package transport

import (
	"errors"
	"net/http"

	"storeledger/internal/ledger"
	"storeledger/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PurchaseRequest represents the purchase request payload
type PurchaseRequest struct {
	Quantity int     `json:"quantity" validate:"required,gt=0"`
	BuyerID  *string `json:"buyer_id,omitempty" validate:"omitempty,uuid4"`
}

// RestockRequest represents the stock adjustment payload
type RestockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

// PurchaseHandler handles HTTP requests for reservations and stock edits
type PurchaseHandler struct {
	engine *ledger.Engine
	logger *zap.Logger
}

// NewPurchaseHandler creates a new PurchaseHandler
func NewPurchaseHandler(engine *ledger.Engine, logger *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		engine: engine,
		logger: logger,
	}
}

// RegisterRoutes registers all purchase routes
func (h *PurchaseHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/products/{productID}", func(r chi.Router) {
		r.Post("/purchase", h.Purchase)
		r.Post("/restock", h.Restock)
		r.Post("/activate", h.Activate)
		r.Post("/deactivate", h.Deactivate)
	})
}

// Purchase handles a purchase request
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req PurchaseRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Purchase validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var buyerID *uuid.UUID
	if req.BuyerID != nil {
		parsed, err := uuid.Parse(*req.BuyerID)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid buyer ID")
			return
		}
		buyerID = &parsed
	}

	outcome, err := h.engine.Reserve(r.Context(), productID, buyerID, req.Quantity)
	if err != nil {
		h.respondReservationError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, outcome)
}

// Restock handles a seller stock adjustment
func (h *PurchaseHandler) Restock(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	var req RestockRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Restock validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	product, err := h.engine.Restock(r.Context(), productID, req.Delta)
	if err != nil {
		h.respondReservationError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Activate makes a product purchasable
func (h *PurchaseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate hides a product from purchasing
func (h *PurchaseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *PurchaseHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	if err := h.engine.SetActive(r.Context(), productID, active); err != nil {
		h.respondReservationError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

// respondReservationError maps the ledger error taxonomy to HTTP statuses.
// The error message carries the specific reason, e.g.
// "insufficient stock: requested 5, available 2".
func (h *PurchaseHandler) respondReservationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrProductInactive):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ledger.ErrConcurrentModification):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInvalidQuantity):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrTimeout):
		middleware.RespondWithError(w, http.StatusGatewayTimeout, err.Error())
	default:
		h.logger.Error("Reservation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "storage unavailable")
	}
}

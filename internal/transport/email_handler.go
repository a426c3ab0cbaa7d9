package transport

import (
	"errors"
	"net/http"
	"strconv"

	"storeledger/internal/domain"
	"storeledger/internal/middleware"
	"storeledger/internal/notification"
	"storeledger/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EnqueueEmailRequest is the payload posted by the registration
// collaborator when a new account needs its welcome email.
type EnqueueEmailRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
	Type   string `json:"type" validate:"required,oneof=WELCOME"`
}

// EmailHandler exposes the email log to operators and accepts externally
// originated jobs.
type EmailHandler struct {
	emails     repository.EmailLogRepository
	users      repository.UserRepository
	dispatcher *notification.Dispatcher
	logger     *zap.Logger
}

// NewEmailHandler creates a new EmailHandler
func NewEmailHandler(emails repository.EmailLogRepository, users repository.UserRepository, dispatcher *notification.Dispatcher, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{
		emails:     emails,
		users:      users,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterRoutes registers all email log routes
func (h *EmailHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/emails", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Enqueue)
		r.Post("/{jobID}/requeue", h.Requeue)
	})
}

// Enqueue accepts a WELCOME job for a provisioned account. Registration
// happens outside this service; it posts here so welcome emails ride the
// same delivery pipeline as everything else. Internally originated types
// (LOW_STOCK, ANALYTICS_REPORT) are rejected.
func (h *EmailHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueEmailRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Email enqueue validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	user, err := h.users.FindByID(r.Context(), nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error("Failed to look up email recipient", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to enqueue email")
		return
	}

	job := notification.ComposeWelcome(user)
	if err := h.emails.Enqueue(r.Context(), nil, job); err != nil {
		h.logger.Error("Failed to enqueue email job", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to enqueue email")
		return
	}

	h.dispatcher.Wake()
	middleware.RespondWithJSON(w, http.StatusCreated, job)
}

// List returns email jobs filtered by status
func (h *EmailHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.EmailStatus(r.URL.Query().Get("status"))
	switch status {
	case domain.EmailStatusPending, domain.EmailStatusSent, domain.EmailStatusFailed:
	case "":
		status = domain.EmailStatusFailed
	default:
		middleware.RespondWithError(w, http.StatusBadRequest, "status must be PENDING, SENT or FAILED")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			middleware.RespondWithError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	jobs, err := h.emails.ListByStatus(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("Failed to list email jobs", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list email jobs")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, jobs)
}

// Requeue creates a new PENDING job from a FAILED one
func (h *EmailHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	job, err := h.dispatcher.Requeue(r.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailJobNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "email job not found")
		case errors.Is(err, notification.ErrNotRequeueable):
			middleware.RespondWithError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("Failed to requeue email job", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to requeue email job")
		}
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, job)
}

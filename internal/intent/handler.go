package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
)

type ServiceAPI interface {
	CreateIntent(ctx context.Context, dto CreateIntentDTO) (*PaymentIntent, error)
	GetIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
}

type Handler struct {
	*transport.BaseHandler
	Service   ServiceAPI
	intentTTL time.Duration
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, intentTTL time.Duration) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		intentTTL:   intentTTL,
	}
}

func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var dto CreateIntentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateIntent: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.Service.CreateIntent(r.Context(), dto)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok {
			status, body := appErr.ToHTTPResponse()
			h.WriteJSON(w, status, body)
			return
		}
		h.Logger.Error("CreateIntent: service failure", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to create payment intent")
		return
	}

	h.WriteJSON(w, http.StatusCreated, created.ToResponse(h.intentTTL))
}

func (h *Handler) GetIntent(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	if intentID == "" {
		h.WriteError(w, http.StatusBadRequest, "intent id is required")
		return
	}

	found, err := h.Service.GetIntent(r.Context(), intentID)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok {
			status, body := appErr.ToHTTPResponse()
			h.WriteJSON(w, status, body)
			return
		}
		h.Logger.Error("GetIntent: service failure", "error", err, "intent_id", intentID)
		h.WriteError(w, http.StatusInternalServerError, "failed to load payment intent")
		return
	}

	h.WriteJSON(w, http.StatusOK, found.ToResponse(h.intentTTL))
}

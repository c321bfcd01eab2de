package reconciliation

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
)

type OrchestratorAPI interface {
	Process(ctx context.Context, n *Notification) (Outcome, error)
}

type WebhookHandler struct {
	*transport.BaseHandler
	orchestrator OrchestratorAPI
	logger       *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, orchestrator OrchestratorAPI, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:  baseHandler,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// HandleProviderWebhook receives supporter payment webhooks. The provider
// retries anything that is not a 2xx, so every recorded notification gets a
// 200 regardless of match outcome; only malformed payloads (400) and
// infrastructure failures (500) deviate.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	payload, err := DecodePayload(raw)
	if err != nil {
		h.logger.Error("invalid webhook payload", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	notification, appErr := payload.ToNotification(raw, time.Now().UTC())
	if appErr != nil {
		h.logger.Error("webhook payload rejected",
			"error", appErr,
			"supporter_name", payload.SupporterName)
		status, body := appErr.ToHTTPResponse()
		h.WriteJSON(w, status, body)
		return
	}

	h.logger.Info("received provider notification",
		"notification_ref", notification.NotificationRef,
		"amount_cents", notification.AmountCents,
		"currency", notification.Currency,
		"supporter_name", notification.SupporterName)

	outcome, err := h.orchestrator.Process(r.Context(), notification)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok && appErr.Type != apperrors.ErrorTypeInternal {
			status, body := appErr.ToHTTPResponse()
			h.WriteJSON(w, status, body)
			return
		}
		h.logger.Error("failed to process notification",
			"error", err,
			"notification_ref", notification.NotificationRef)
		h.WriteError(w, http.StatusInternalServerError, "failed to process notification")
		return
	}

	h.logger.Info("notification processed",
		"notification_ref", notification.NotificationRef,
		"outcome", outcome)

	h.WriteJSON(w, http.StatusOK, WebhookResponse{
		Status:  "success",
		Message: "notification " + string(outcome),
	})
}

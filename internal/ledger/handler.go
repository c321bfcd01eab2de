package ledger

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/transport"
)

type ServiceAPI interface {
	Credit(ctx context.Context, userRef string, amountCents int64, idempotencyKey string) (credits, newBalance int64, err error)
	GetBalance(ctx context.Context, userRef string) (int64, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

type BalanceResponse struct {
	UserRef        string `json:"user_ref"`
	BalanceCredits int64  `json:"balance_credits"`
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userRef := chi.URLParam(r, "userRef")
	if userRef == "" {
		h.WriteError(w, http.StatusBadRequest, "user ref is required")
		return
	}

	balance, err := h.Service.GetBalance(r.Context(), userRef)
	if err != nil {
		if appErr, ok := apperrors.IsAppError(err); ok {
			status, body := appErr.ToHTTPResponse()
			h.WriteJSON(w, status, body)
			return
		}
		h.Logger.Error("GetBalance: service failure", "error", err, "user_ref", userRef)
		h.WriteError(w, http.StatusInternalServerError, "failed to load balance")
		return
	}

	h.WriteJSON(w, http.StatusOK, BalanceResponse{
		UserRef:        userRef,
		BalanceCredits: balance,
	})
}

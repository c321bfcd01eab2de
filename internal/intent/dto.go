package intent

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	"github.com/frahmantamala/payment-reconciliation/internal/core/common/validation"
)

type CreateIntentDTO struct {
	UserRef  string  `json:"user_ref"`
	Amount   string  `json:"amount"`
	Currency string  `json:"currency"`
	Note     *string `json:"note,omitempty"`
}

func (d *CreateIntentDTO) Validate() *apperrors.AppError {
	validator := validation.NewValidator()
	validator.Field("user_ref", d.UserRef).
		Required().
		MaxLength(128)
	validator.Field("amount", d.Amount).
		Required()
	validator.Field("currency", d.Currency).
		Required()
	if err := validator.Validate(); err != nil {
		return err
	}
	return validation.ValidateCurrency(d.Currency)
}

// AmountInCents parses the decimal amount string into minor units. Amounts
// with more than two fraction digits are rejected rather than rounded, so a
// user can never register an intent the provider cannot report back exactly.
func (d *CreateIntentDTO) AmountInCents() (int64, *apperrors.AppError) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return 0, apperrors.NewValidationFieldError("amount", "amount must be a decimal number", apperrors.ErrCodeInvalidAmount)
	}
	if amount.Exponent() < -2 {
		return 0, apperrors.NewValidationFieldError("amount", "amount must have at most two decimal places", apperrors.ErrCodeInvalidAmount)
	}
	cents := amount.Shift(2)
	if !cents.IsInteger() {
		return 0, apperrors.NewValidationFieldError("amount", "amount must have at most two decimal places", apperrors.ErrCodeInvalidAmount)
	}
	amountCents := cents.IntPart()
	if appErr := validation.ValidateAmountCents(amountCents); appErr != nil {
		return 0, appErr
	}
	return amountCents, nil
}

type IntentResponse struct {
	IntentID    string     `json:"intent_id"`
	UserRef     string     `json:"user_ref"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

func (p *PaymentIntent) ToResponse(ttl time.Duration) IntentResponse {
	return IntentResponse{
		IntentID:    p.IntentID,
		UserRef:     p.UserRef,
		Amount:      decimal.NewFromInt(p.AmountCents).Shift(-2).StringFixed(2),
		Currency:    p.Currency,
		Status:      p.Status,
		CompletedAt: p.CompletedAt,
		CreatedAt:   p.CreatedAt,
		ExpiresAt:   p.CreatedAt.Add(ttl),
	}
}

package reconciliation

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
)

// ProviderWebhookPayload mirrors the provider's supporter webhook. Amounts
// arrive as JSON numbers or strings depending on the provider's event
// version, so everything money-shaped is json.Number.
type ProviderWebhookPayload struct {
	TransactionID    string      `json:"transaction_id,omitempty"`
	SupporterName    string      `json:"supporter_name"`
	SupporterEmail   string      `json:"supporter_email"`
	SupportNote      string      `json:"support_note"`
	NumberOfCoffees  json.Number `json:"number_of_coffees,omitempty"`
	SupportCoffees   json.Number `json:"support_coffees,omitempty"`
	SupportUnitPrice json.Number `json:"support_coffee_price,omitempty"`
	TotalAmount      json.Number `json:"total_amount,omitempty"`
	Currency         string      `json:"currency,omitempty"`
	SupportCreatedOn string      `json:"support_created_on,omitempty"`
}

// webhookEnvelope covers the provider's event wrapper: some event versions
// put the supporter data under a "response" object, others send it flat.
type webhookEnvelope struct {
	Response json.RawMessage `json:"response,omitempty"`
}

// DecodePayload parses a webhook body, unwrapping the response envelope when
// present.
func DecodePayload(raw []byte) (*ProviderWebhookPayload, error) {
	body := raw
	var envelope webhookEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Response) > 0 && string(envelope.Response) != "null" {
		body = envelope.Response
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var payload ProviderWebhookPayload
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Notification is the provider payload reduced to what reconciliation needs.
type Notification struct {
	NotificationRef string
	AmountCents     int64
	Currency        string
	SupporterName   string
	SupporterEmail  string
	SupporterNote   string
	ReceivedAt      time.Time
	RawPayload      json.RawMessage
}

// ToNotification normalizes the payload: the amount comes from total_amount
// when the provider sends it, otherwise coffees x unit price; the dedup ref
// is the provider transaction id when present, otherwise a fingerprint of the
// payload fields that survive redelivery unchanged.
func (p *ProviderWebhookPayload) ToNotification(raw json.RawMessage, receivedAt time.Time) (*Notification, *apperrors.AppError) {
	amountCents, appErr := p.amountInCents()
	if appErr != nil {
		return nil, appErr
	}

	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" {
		currency = "USD"
	}

	return &Notification{
		NotificationRef: p.notificationRef(amountCents),
		AmountCents:     amountCents,
		Currency:        currency,
		SupporterName:   p.SupporterName,
		SupporterEmail:  p.SupporterEmail,
		SupporterNote:   p.SupportNote,
		ReceivedAt:      receivedAt,
		RawPayload:      raw,
	}, nil
}

func (p *ProviderWebhookPayload) amountInCents() (int64, *apperrors.AppError) {
	total, err := parseMoney(p.TotalAmount)
	if err != nil {
		return 0, apperrors.NewValidationFieldError("total_amount", "total_amount must be a decimal number", apperrors.ErrCodeInvalidPayload)
	}

	if total.IsZero() {
		coffeeCount := p.NumberOfCoffees
		if coffeeCount == "" {
			coffeeCount = p.SupportCoffees
		}
		coffees, err := parseMoney(coffeeCount)
		if err != nil {
			return 0, apperrors.NewValidationFieldError("number_of_coffees", "number_of_coffees must be a number", apperrors.ErrCodeInvalidPayload)
		}
		unitPrice, err := parseMoney(p.SupportUnitPrice)
		if err != nil {
			return 0, apperrors.NewValidationFieldError("support_coffee_price", "support_coffee_price must be a decimal number", apperrors.ErrCodeInvalidPayload)
		}
		total = coffees.Mul(unitPrice)
	}

	if total.Sign() <= 0 {
		return 0, apperrors.NewValidationFieldError("total_amount", "payment amount must be positive", apperrors.ErrCodeInvalidAmount)
	}

	cents := total.Shift(2)
	if !cents.IsInteger() {
		return 0, apperrors.NewValidationFieldError("total_amount", "payment amount has sub-cent precision", apperrors.ErrCodeInvalidAmount)
	}

	return cents.IntPart(), nil
}

// notificationRef prefers the provider's delivery id; with none available it
// fingerprints amount, supporter email and the provider-side timestamp, the
// fields a redelivered webhook repeats verbatim.
func (p *ProviderWebhookPayload) notificationRef(amountCents int64) string {
	if p.TransactionID != "" {
		return p.TransactionID
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s", amountCents, p.SupporterEmail, p.SupportCreatedOn)))
	return hex.EncodeToString(sum[:])
}

func parseMoney(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

type WebhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

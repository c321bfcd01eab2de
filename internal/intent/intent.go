package intent

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	intentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/intent"
)

const (
	StatusPending   = intentDatamodel.StatusPending
	StatusCompleted = intentDatamodel.StatusCompleted
	StatusExpired   = intentDatamodel.StatusExpired
)

type PaymentIntent struct {
	ID                     int64      `json:"-"`
	IntentID               string     `json:"intent_id"`
	UserRef                string     `json:"user_ref"`
	AmountCents            int64      `json:"amount_cents"`
	Currency               string     `json:"currency"`
	Status                 string     `json:"status"`
	MatchedNotificationRef *string    `json:"matched_notification_ref,omitempty"`
	Note                   *string    `json:"note,omitempty"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (p *PaymentIntent) IsPending() bool {
	return p.Status == StatusPending
}

func (p *PaymentIntent) IsCompleted() bool {
	return p.Status == StatusCompleted
}

// NewIntentID generates the token the user pastes into the payment note,
// e.g. PAY-1735689600123-9f3ac81d.
func NewIntentID(now time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back to time-only
		return fmt.Sprintf("PAY-%d-%08x", now.UnixMilli(), now.UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("PAY-%d-%s", now.UnixMilli(), hex.EncodeToString(buf))
}

func NewPaymentIntent(userRef string, amountCents int64, currency string, note *string) *PaymentIntent {
	now := time.Now().UTC()
	return &PaymentIntent{
		IntentID:    NewIntentID(now),
		UserRef:     userRef,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      StatusPending,
		Note:        note,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func ToDataModel(p *PaymentIntent) *intentDatamodel.PaymentIntent {
	return &intentDatamodel.PaymentIntent{
		ID:                     p.ID,
		IntentID:               p.IntentID,
		UserRef:                p.UserRef,
		AmountCents:            p.AmountCents,
		Currency:               p.Currency,
		Status:                 p.Status,
		MatchedNotificationRef: p.MatchedNotificationRef,
		Note:                   p.Note,
		CompletedAt:            p.CompletedAt,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

func FromDataModel(p *intentDatamodel.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:                     p.ID,
		IntentID:               p.IntentID,
		UserRef:                p.UserRef,
		AmountCents:            p.AmountCents,
		Currency:               p.Currency,
		Status:                 p.Status,
		MatchedNotificationRef: p.MatchedNotificationRef,
		Note:                   p.Note,
		CompletedAt:            p.CompletedAt,
		CreatedAt:              p.CreatedAt,
		UpdatedAt:              p.UpdatedAt,
	}
}

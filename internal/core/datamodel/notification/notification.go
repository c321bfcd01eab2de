package notification

import (
	"encoding/json"
	"time"
)

const (
	OutcomeCompleted  = "completed"
	OutcomeDuplicate  = "duplicate"
	OutcomeUnresolved = "unresolved"
)

// ProviderNotification is the dedup record for an inbound provider webhook
// delivery. The unique notification_ref makes the first insert win; redelivery
// hits the unique index and short-circuits processing.
type ProviderNotification struct {
	ID              int64           `gorm:"primaryKey"`
	NotificationRef string          `gorm:"column:notification_ref;not null;uniqueIndex"`
	AmountCents     int64           `gorm:"column:amount_cents;not null"`
	Currency        string          `gorm:"column:currency;not null"`
	SupporterName   string          `gorm:"column:supporter_name"`
	SupporterNote   string          `gorm:"column:supporter_note"`
	RawPayload      json.RawMessage `gorm:"column:raw_payload;type:jsonb"`
	Outcome         string          `gorm:"column:outcome"`
	MatchedIntentID *string         `gorm:"column:matched_intent_id"`
	ReceivedAt      time.Time       `gorm:"column:received_at"`
}

func (ProviderNotification) TableName() string {
	return "provider_notifications"
}

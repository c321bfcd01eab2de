package intent

import (
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

type PaymentIntent struct {
	ID                     int64      `gorm:"primaryKey"`
	IntentID               string     `gorm:"column:intent_id;not null;uniqueIndex"`
	UserRef                string     `gorm:"column:user_ref;not null;index"`
	AmountCents            int64      `gorm:"column:amount_cents;not null"`
	Currency               string     `gorm:"column:currency;not null"`
	Status                 string     `gorm:"column:status;default:pending;index:idx_intents_match,priority:1"`
	MatchedNotificationRef *string    `gorm:"column:matched_notification_ref"`
	Note                   *string    `gorm:"column:note"`
	CompletedAt            *time.Time `gorm:"column:completed_at"`
	CreatedAt              time.Time  `gorm:"column:created_at;index:idx_intents_match,priority:2"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}

func (p *PaymentIntent) IsPending() bool {
	return p.Status == StatusPending
}

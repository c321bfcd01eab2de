package ledger

import (
	"time"
)

type Account struct {
	ID             int64     `gorm:"primaryKey"`
	UserRef        string    `gorm:"column:user_ref;not null;uniqueIndex"`
	BalanceCredits int64     `gorm:"column:balance_credits;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// CreditEntry records one applied credit. The unique idempotency key pins a
// credit to its intent: replaying the same key can never mutate the balance a
// second time.
type CreditEntry struct {
	ID             int64     `gorm:"primaryKey"`
	IdempotencyKey string    `gorm:"column:idempotency_key;not null;uniqueIndex"`
	UserRef        string    `gorm:"column:user_ref;not null;index"`
	AmountCents    int64     `gorm:"column:amount_cents;not null"`
	Credits        int64     `gorm:"column:credits;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

func (CreditEntry) TableName() string {
	return "credit_entries"
}

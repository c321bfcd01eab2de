package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeIntentCreated     = "intent.created"
	EventTypeIntentExpired     = "intent.expired"
	EventTypePaymentCredited   = "reconciliation.payment_credited"
	EventTypePaymentUnresolved = "reconciliation.payment_unresolved"
)

type IntentCreatedEvent struct {
	BaseEvent
	IntentID    string `json:"intent_id"`
	UserRef     string `json:"user_ref"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

func NewIntentCreatedEvent(intentID, userRef string, amountCents int64, currency string) *IntentCreatedEvent {
	return &IntentCreatedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeIntentCreated,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id":    intentID,
				"user_ref":     userRef,
				"amount_cents": amountCents,
				"currency":     currency,
			},
		},
		IntentID:    intentID,
		UserRef:     userRef,
		AmountCents: amountCents,
		Currency:    currency,
	}
}

type IntentExpiredEvent struct {
	BaseEvent
	IntentID    string `json:"intent_id"`
	UserRef     string `json:"user_ref"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

func NewIntentExpiredEvent(intentID, userRef string, amountCents int64, currency string) *IntentExpiredEvent {
	return &IntentExpiredEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeIntentExpired,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id":    intentID,
				"user_ref":     userRef,
				"amount_cents": amountCents,
				"currency":     currency,
			},
		},
		IntentID:    intentID,
		UserRef:     userRef,
		AmountCents: amountCents,
		Currency:    currency,
	}
}

type PaymentCreditedEvent struct {
	BaseEvent
	IntentID        string `json:"intent_id"`
	UserRef         string `json:"user_ref"`
	NotificationRef string `json:"notification_ref"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	Credits         int64  `json:"credits"`
	Balance         int64  `json:"balance"`
}

func NewPaymentCreditedEvent(intentID, userRef, notificationRef string, amountCents int64, currency string, credits, balance int64) *PaymentCreditedEvent {
	return &PaymentCreditedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCredited,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id":        intentID,
				"user_ref":         userRef,
				"notification_ref": notificationRef,
				"amount_cents":     amountCents,
				"currency":         currency,
				"credits":          credits,
				"balance":          balance,
			},
		},
		IntentID:        intentID,
		UserRef:         userRef,
		NotificationRef: notificationRef,
		AmountCents:     amountCents,
		Currency:        currency,
		Credits:         credits,
		Balance:         balance,
	}
}

type PaymentUnresolvedEvent struct {
	BaseEvent
	NotificationRef string `json:"notification_ref"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	SupporterName   string `json:"supporter_name"`
}

func NewPaymentUnresolvedEvent(notificationRef string, amountCents int64, currency, supporterName string) *PaymentUnresolvedEvent {
	return &PaymentUnresolvedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentUnresolved,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"notification_ref": notificationRef,
				"amount_cents":     amountCents,
				"currency":         currency,
				"supporter_name":   supporterName,
			},
		},
		NotificationRef: notificationRef,
		AmountCents:     amountCents,
		Currency:        currency,
		SupporterName:   supporterName,
	}
}

package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
)

// EventHandler bridges reconciliation events to the bot frontend. It runs on
// the event bus, off the webhook path, so a slow or failing frontend never
// rolls back a credit.
type EventHandler struct {
	client *Client
	logger *slog.Logger
}

func NewEventHandler(client *Client, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		client: client,
		logger: logger,
	}
}

func (h *EventHandler) HandlePaymentCredited(ctx context.Context, event events.Event) error {
	credited, ok := event.(*events.PaymentCreditedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment credited handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCreditedEvent, got %T", event)
	}

	h.logger.Info("notifying user of credited payment",
		"user_ref", credited.UserRef,
		"intent_id", credited.IntentID,
		"credits", credited.Credits,
		"event_id", credited.EventID())

	h.client.Notify(OutcomeMessage{
		UserRef:  credited.UserRef,
		Outcome:  OutcomeCredited,
		IntentID: credited.IntentID,
		Amount:   FormatAmount(credited.AmountCents),
		Currency: credited.Currency,
		Credits:  credited.Credits,
		Balance:  credited.Balance,
	})

	return nil
}

func (h *EventHandler) HandlePaymentUnresolved(ctx context.Context, event events.Event) error {
	unresolved, ok := event.(*events.PaymentUnresolvedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment unresolved handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentUnresolvedEvent, got %T", event)
	}

	h.logger.Info("notifying operators of unresolved payment",
		"notification_ref", unresolved.NotificationRef,
		"amount_cents", unresolved.AmountCents,
		"event_id", unresolved.EventID())

	h.client.Notify(OutcomeMessage{
		Outcome:  OutcomeUnresolved,
		Amount:   FormatAmount(unresolved.AmountCents),
		Currency: unresolved.Currency,
	})

	return nil
}

func (h *EventHandler) HandleIntentExpired(ctx context.Context, event events.Event) error {
	expired, ok := event.(*events.IntentExpiredEvent)
	if !ok {
		h.logger.Error("invalid event type for intent expired handler", "event_type", event.EventType())
		return fmt.Errorf("expected IntentExpiredEvent, got %T", event)
	}

	h.client.Notify(OutcomeMessage{
		UserRef:  expired.UserRef,
		Outcome:  OutcomeExpired,
		IntentID: expired.IntentID,
		Amount:   FormatAmount(expired.AmountCents),
		Currency: expired.Currency,
	})

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCredited, h.HandlePaymentCredited)
	eventBus.Subscribe(events.EventTypePaymentUnresolved, h.HandlePaymentUnresolved)
	eventBus.Subscribe(events.EventTypeIntentExpired, h.HandleIntentExpired)

	h.logger.Info("notifier event handlers registered",
		"handlers", []string{
			events.EventTypePaymentCredited,
			events.EventTypePaymentUnresolved,
			events.EventTypeIntentExpired,
		})
}

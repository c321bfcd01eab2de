package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	notificationDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/notification"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
	"github.com/frahmantamala/payment-reconciliation/internal/intent"
)

type Outcome string

const (
	OutcomeCompleted  Outcome = notificationDatamodel.OutcomeCompleted
	OutcomeDuplicate  Outcome = notificationDatamodel.OutcomeDuplicate
	OutcomeUnresolved Outcome = notificationDatamodel.OutcomeUnresolved
)

// NotificationRepositoryAPI is the dedup store for provider deliveries.
// RecordReceived fails with ErrDuplicateNotification when the ref was seen
// before; that failure is the idempotency check for the whole flow. GetByRef
// loads the record back so a redelivery can tell a finished reconciliation
// from one that died mid-flight.
type NotificationRepositoryAPI interface {
	RecordReceived(ctx context.Context, n *notificationDatamodel.ProviderNotification) error
	GetByRef(ctx context.Context, notificationRef string) (*notificationDatamodel.ProviderNotification, error)
	SetOutcome(ctx context.Context, notificationRef, outcome string, matchedIntentID *string) error
}

type LedgerAPI interface {
	Credit(ctx context.Context, userRef string, amountCents int64, idempotencyKey string) (credits, newBalance int64, err error)
}

type OrchestratorConfig struct {
	CreditAttempts  int
	MatcherAttempts int
	RetryBase       time.Duration
}

// Orchestrator drives one notification through dedup, match, the intent
// compare-and-set and the ledger credit. It is safe for concurrent use,
// including the same notification racing itself: the dedup insert and the
// intent CAS are the two points where exactly one caller wins.
type Orchestrator struct {
	intents       intent.RepositoryAPI
	notifications NotificationRepositoryAPI
	matcher       *Matcher
	ledger        LedgerAPI
	eventBus      *events.EventBus
	logger        *slog.Logger
	config        OrchestratorConfig
}

func NewOrchestrator(
	intents intent.RepositoryAPI,
	notifications NotificationRepositoryAPI,
	matcher *Matcher,
	ledger LedgerAPI,
	eventBus *events.EventBus,
	logger *slog.Logger,
	config OrchestratorConfig,
) *Orchestrator {
	if config.CreditAttempts <= 0 {
		config.CreditAttempts = 5
	}
	if config.MatcherAttempts <= 0 {
		config.MatcherAttempts = 3
	}
	if config.RetryBase <= 0 {
		config.RetryBase = 100 * time.Millisecond
	}
	return &Orchestrator{
		intents:       intents,
		notifications: notifications,
		matcher:       matcher,
		ledger:        ledger,
		eventBus:      eventBus,
		logger:        logger,
		config:        config,
	}
}

// Process reconciles one provider notification and returns its terminal
// outcome. Duplicate and Unresolved are business outcomes, not errors; an
// error return means infrastructure failed and the provider may redeliver.
func (o *Orchestrator) Process(ctx context.Context, n *Notification) (Outcome, error) {
	record := &notificationDatamodel.ProviderNotification{
		NotificationRef: n.NotificationRef,
		AmountCents:     n.AmountCents,
		Currency:        n.Currency,
		SupporterName:   n.SupporterName,
		SupporterNote:   n.SupporterNote,
		RawPayload:      n.RawPayload,
		ReceivedAt:      n.ReceivedAt,
	}

	if err := o.notifications.RecordReceived(ctx, record); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateNotification) {
			return o.resumeDelivery(ctx, n)
		}
		return "", fmt.Errorf("failed to record notification: %w", err)
	}

	return o.reconcile(ctx, n)
}

func (o *Orchestrator) reconcile(ctx context.Context, n *Notification) (Outcome, error) {
	result, err := o.matchWithRetry(ctx, n)
	if err != nil {
		return "", fmt.Errorf("matcher failed for notification %s: %w", n.NotificationRef, err)
	}

	if result.Decision == DecisionNoMatch {
		return o.finishUnresolved(ctx, n)
	}

	return o.completeMatch(ctx, n, result.Intent)
}

// resumeDelivery handles a notification_ref that was recorded before. A
// stored outcome means the earlier delivery finished and this one is a plain
// duplicate. No outcome means the earlier attempt died mid-flight, and the
// work still owed depends on whether its intent compare-and-set landed: if an
// intent already carries this ref, only the credit and outcome remain;
// otherwise the full flow runs again on this delivery.
func (o *Orchestrator) resumeDelivery(ctx context.Context, n *Notification) (Outcome, error) {
	existing, err := o.notifications.GetByRef(ctx, n.NotificationRef)
	if err != nil {
		return "", fmt.Errorf("failed to load notification %s: %w", n.NotificationRef, err)
	}

	if existing.Outcome != "" {
		o.logger.Info("duplicate notification short-circuited",
			"notification_ref", n.NotificationRef,
			"outcome", existing.Outcome)
		return OutcomeDuplicate, nil
	}

	matched, err := o.intents.GetByMatchedRef(ctx, n.NotificationRef)
	if err != nil {
		if errors.Is(err, apperrors.ErrIntentNotFound) {
			return o.reconcile(ctx, n)
		}
		return "", fmt.Errorf("failed to look up completed intent for %s: %w", n.NotificationRef, err)
	}

	o.logger.Warn("resuming interrupted reconciliation",
		"intent_id", matched.IntentID,
		"notification_ref", n.NotificationRef)

	return o.settle(ctx, n, intent.FromDataModel(matched))
}

// matchWithRetry retries read-path failures with backoff; it never mutates
// anything, so retrying is always safe.
func (o *Orchestrator) matchWithRetry(ctx context.Context, n *Notification) (MatchResult, error) {
	var result MatchResult
	backoff := retry.WithMaxRetries(uint64(o.config.MatcherAttempts-1), retry.NewFibonacci(o.config.RetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var matchErr error
		result, matchErr = o.matcher.Match(ctx, n.AmountCents, n.Currency, n.SupporterNote, n.ReceivedAt)
		if matchErr != nil {
			o.logger.Warn("matcher read failed, retrying",
				"error", matchErr,
				"notification_ref", n.NotificationRef)
			return retry.RetryableError(matchErr)
		}
		return nil
	})
	return result, err
}

func (o *Orchestrator) finishUnresolved(ctx context.Context, n *Notification) (Outcome, error) {
	if err := o.notifications.SetOutcome(ctx, n.NotificationRef, notificationDatamodel.OutcomeUnresolved, nil); err != nil {
		return "", fmt.Errorf("failed to record unresolved outcome: %w", err)
	}

	o.logger.Warn("notification left for manual reconciliation",
		"notification_ref", n.NotificationRef,
		"amount_cents", n.AmountCents,
		"currency", n.Currency,
		"supporter_name", n.SupporterName)

	if o.eventBus != nil {
		event := events.NewPaymentUnresolvedEvent(n.NotificationRef, n.AmountCents, n.Currency, n.SupporterName)
		o.eventBus.Publish(ctx, event)
	}

	return OutcomeUnresolved, nil
}

func (o *Orchestrator) completeMatch(ctx context.Context, n *Notification, matched *intent.PaymentIntent) (Outcome, error) {
	completedAt := time.Now().UTC()

	err := o.intents.MarkCompleted(ctx, matched.IntentID, n.NotificationRef, completedAt)
	if err != nil {
		if errors.Is(err, apperrors.ErrIntentAlreadyCompleted) {
			// another delivery won the race; resolved locally, no second credit
			o.logger.Info("lost completion race, treating as duplicate",
				"intent_id", matched.IntentID,
				"notification_ref", n.NotificationRef)
			if outcomeErr := o.notifications.SetOutcome(ctx, n.NotificationRef, notificationDatamodel.OutcomeDuplicate, nil); outcomeErr != nil {
				o.logger.Error("failed to record duplicate outcome", "error", outcomeErr, "notification_ref", n.NotificationRef)
			}
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("failed to complete intent %s: %w", matched.IntentID, err)
	}

	return o.settle(ctx, n, matched)
}

// settle is the post-CAS half of the flow: the intent is already completed,
// only the credit and the outcome record remain. The ledger idempotency key
// makes re-entry here safe however many deliveries reach it.
func (o *Orchestrator) settle(ctx context.Context, n *Notification, matched *intent.PaymentIntent) (Outcome, error) {
	credits, balance, err := o.creditWithRetry(ctx, matched, n)
	if err != nil {
		o.logger.Error("credit failed after retries, operator attention required",
			"error", err,
			"intent_id", matched.IntentID,
			"notification_ref", n.NotificationRef)
		return "", fmt.Errorf("credit failed for intent %s: %w", matched.IntentID, err)
	}

	matchedIntentID := matched.IntentID
	if err := o.notifications.SetOutcome(ctx, n.NotificationRef, notificationDatamodel.OutcomeCompleted, &matchedIntentID); err != nil {
		// the credit already stands; log and carry on
		o.logger.Error("failed to record completed outcome", "error", err, "notification_ref", n.NotificationRef)
	}

	o.logger.Info("notification reconciled",
		"intent_id", matched.IntentID,
		"notification_ref", n.NotificationRef,
		"user_ref", matched.UserRef,
		"amount_cents", n.AmountCents,
		"credits", credits,
		"balance", balance)

	if o.eventBus != nil {
		event := events.NewPaymentCreditedEvent(
			matched.IntentID,
			matched.UserRef,
			n.NotificationRef,
			n.AmountCents,
			n.Currency,
			credits,
			balance,
		)
		o.eventBus.Publish(ctx, event)
	}

	return OutcomeCompleted, nil
}

func (o *Orchestrator) creditWithRetry(ctx context.Context, matched *intent.PaymentIntent, n *Notification) (credits, balance int64, err error) {
	backoff := retry.WithMaxRetries(uint64(o.config.CreditAttempts-1), retry.NewFibonacci(o.config.RetryBase))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var creditErr error
		credits, balance, creditErr = o.ledger.Credit(ctx, matched.UserRef, n.AmountCents, matched.IntentID)
		if creditErr != nil {
			o.logger.Warn("credit attempt failed, retrying",
				"error", creditErr,
				"intent_id", matched.IntentID)
			return retry.RetryableError(creditErr)
		}
		return nil
	})
	return credits, balance, err
}

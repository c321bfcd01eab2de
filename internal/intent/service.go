package intent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	intentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/intent"
	"github.com/frahmantamala/payment-reconciliation/internal/core/events"
)

// RepositoryAPI is the Intent Store contract. MarkCompleted and MarkExpired are
// conditional updates from pending only; MarkCompleted losing the race returns
// ErrIntentAlreadyCompleted and is the serialization point the whole
// reconciliation flow relies on.
type RepositoryAPI interface {
	Create(ctx context.Context, p *intentDatamodel.PaymentIntent) error
	GetByIntentID(ctx context.Context, intentID string) (*intentDatamodel.PaymentIntent, error)
	GetByMatchedRef(ctx context.Context, notificationRef string) (*intentDatamodel.PaymentIntent, error)
	FindCandidates(ctx context.Context, amountCents int64, currency string, windowStart, windowEnd time.Time) ([]*intentDatamodel.PaymentIntent, error)
	MarkCompleted(ctx context.Context, intentID, notificationRef string, completedAt time.Time) error
	MarkExpired(ctx context.Context, intentID string) error
	ExpireOlderThan(ctx context.Context, cutoff time.Time) ([]*intentDatamodel.PaymentIntent, error)
}

type Service struct {
	repo     RepositoryAPI
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// CreateIntent registers a fresh pending intent and returns it with a
// generated intent id.
func (s *Service) CreateIntent(ctx context.Context, dto CreateIntentDTO) (*PaymentIntent, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("intent validation failed", "error", err, "user_ref", dto.UserRef)
		return nil, err
	}

	amountCents, err := dto.AmountInCents()
	if err != nil {
		s.logger.Error("intent amount parsing failed", "error", err, "amount", dto.Amount)
		return nil, err
	}

	domainIntent := NewPaymentIntent(dto.UserRef, amountCents, dto.Currency, dto.Note)

	if err := s.repo.Create(ctx, ToDataModel(domainIntent)); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateIntent) {
			s.logger.Warn("intent id collision on create", "intent_id", domainIntent.IntentID)
			return nil, apperrors.ErrDuplicateIntent
		}
		s.logger.Error("failed to create intent", "error", err, "user_ref", dto.UserRef)
		return nil, apperrors.NewInternalError("failed to create payment intent", err)
	}

	s.logger.Info("payment intent created",
		"intent_id", domainIntent.IntentID,
		"user_ref", domainIntent.UserRef,
		"amount_cents", domainIntent.AmountCents,
		"currency", domainIntent.Currency)

	if s.eventBus != nil {
		event := events.NewIntentCreatedEvent(domainIntent.IntentID, domainIntent.UserRef, domainIntent.AmountCents, domainIntent.Currency)
		s.eventBus.Publish(ctx, event)
	}

	return domainIntent, nil
}

func (s *Service) GetIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	record, err := s.repo.GetByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrIntentNotFound) {
			return nil, apperrors.ErrIntentNotFound
		}
		s.logger.Error("failed to load intent", "error", err, "intent_id", intentID)
		return nil, apperrors.NewInternalError("failed to load payment intent", err)
	}
	return FromDataModel(record), nil
}

package ledger

import (
	"context"
	"errors"
	"log/slog"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	ledgerDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/ledger"
)

// RepositoryAPI persists balances and credit entries. ApplyCredit must insert
// the entry and mutate the balance in one atomic unit, failing with
// ErrCreditAlreadyApplied when the idempotency key already exists.
type RepositoryAPI interface {
	ApplyCredit(ctx context.Context, entry *ledgerDatamodel.CreditEntry) (newBalance int64, err error)
	GetBalance(ctx context.Context, userRef string) (int64, error)
	GetEntryByKey(ctx context.Context, idempotencyKey string) (*ledgerDatamodel.CreditEntry, error)
}

type Service struct {
	repo    RepositoryAPI
	convert ConversionFunc
	logger  *slog.Logger
}

func NewService(repo RepositoryAPI, convert ConversionFunc, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		convert: convert,
		logger:  logger,
	}
}

// Credit applies the credit for one matched payment and returns the credited
// units plus the resulting balance. Calling it twice with the same
// idempotency key changes the balance once; the replay reports the credits
// from the original entry and the current balance with no error, so retries
// after partial failures are safe.
func (s *Service) Credit(ctx context.Context, userRef string, amountCents int64, idempotencyKey string) (credits, newBalance int64, err error) {
	credits = s.convert(amountCents)

	entry := &ledgerDatamodel.CreditEntry{
		IdempotencyKey: idempotencyKey,
		UserRef:        userRef,
		AmountCents:    amountCents,
		Credits:        credits,
	}

	newBalance, err = s.repo.ApplyCredit(ctx, entry)
	if err != nil {
		if errors.Is(err, apperrors.ErrCreditAlreadyApplied) {
			s.logger.Warn("credit replay ignored",
				"user_ref", userRef,
				"idempotency_key", idempotencyKey)
			applied, lookupErr := s.repo.GetEntryByKey(ctx, idempotencyKey)
			if lookupErr != nil {
				return 0, 0, lookupErr
			}
			balance, balanceErr := s.repo.GetBalance(ctx, userRef)
			if balanceErr != nil {
				return 0, 0, balanceErr
			}
			return applied.Credits, balance, nil
		}
		s.logger.Error("failed to apply credit",
			"error", err,
			"user_ref", userRef,
			"idempotency_key", idempotencyKey)
		return 0, 0, err
	}

	s.logger.Info("credit applied",
		"user_ref", userRef,
		"amount_cents", amountCents,
		"credits", credits,
		"balance", newBalance,
		"idempotency_key", idempotencyKey)

	return credits, newBalance, nil
}

func (s *Service) GetBalance(ctx context.Context, userRef string) (int64, error) {
	balance, err := s.repo.GetBalance(ctx, userRef)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			return 0, apperrors.ErrAccountNotFound
		}
		s.logger.Error("failed to load balance", "error", err, "user_ref", userRef)
		return 0, err
	}
	return balance, nil
}

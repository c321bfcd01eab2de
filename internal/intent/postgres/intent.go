package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	intentDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/intent"
	intentpkg "github.com/frahmantamala/payment-reconciliation/internal/intent"
)

type IntentRepository struct {
	db *gorm.DB
}

func NewIntentRepository(db *gorm.DB) intentpkg.RepositoryAPI {
	return &IntentRepository{
		db: db,
	}
}

func (r *IntentRepository) Create(ctx context.Context, p *intentDatamodel.PaymentIntent) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.ErrDuplicateIntent
		}
		return err
	}
	return nil
}

func (r *IntentRepository) GetByIntentID(ctx context.Context, intentID string) (*intentDatamodel.PaymentIntent, error) {
	var p intentDatamodel.PaymentIntent
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrIntentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByMatchedRef finds the completed intent a notification already settled.
// Redeliveries use it to resume a reconciliation that died between the
// completion update and the ledger credit.
func (r *IntentRepository) GetByMatchedRef(ctx context.Context, notificationRef string) (*intentDatamodel.PaymentIntent, error) {
	var p intentDatamodel.PaymentIntent
	err := r.db.WithContext(ctx).Where("matched_notification_ref = ?", notificationRef).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrIntentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindCandidates returns every pending intent with the given amount and
// currency created inside [windowStart, windowEnd], oldest first. Ordering is
// part of the contract: the matcher's FIFO tie-break depends on it.
func (r *IntentRepository) FindCandidates(ctx context.Context, amountCents int64, currency string, windowStart, windowEnd time.Time) ([]*intentDatamodel.PaymentIntent, error) {
	var candidates []*intentDatamodel.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ?", intentDatamodel.StatusPending).
		Where("amount_cents = ? AND currency = ?", amountCents, currency).
		Where("created_at >= ? AND created_at <= ?", windowStart, windowEnd).
		Order("created_at ASC").
		Find(&candidates).Error
	return candidates, err
}

// MarkCompleted is the compare-and-set that serializes concurrent matches:
// only the caller whose UPDATE moves the row out of pending succeeds, every
// other caller gets ErrIntentAlreadyCompleted.
func (r *IntentRepository) MarkCompleted(ctx context.Context, intentID, notificationRef string, completedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&intentDatamodel.PaymentIntent{}).
		Where("intent_id = ? AND status = ?", intentID, intentDatamodel.StatusPending).
		Updates(map[string]interface{}{
			"status":                   intentDatamodel.StatusCompleted,
			"matched_notification_ref": notificationRef,
			"completed_at":             completedAt,
			"updated_at":               time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.explainFailedTransition(ctx, intentID)
	}
	return nil
}

func (r *IntentRepository) MarkExpired(ctx context.Context, intentID string) error {
	result := r.db.WithContext(ctx).Model(&intentDatamodel.PaymentIntent{}).
		Where("intent_id = ? AND status = ?", intentID, intentDatamodel.StatusPending).
		Updates(map[string]interface{}{
			"status":     intentDatamodel.StatusExpired,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.explainFailedTransition(ctx, intentID)
	}
	return nil
}

// ExpireOlderThan flips every pending intent created before cutoff to expired
// and returns the affected rows so the caller can fan out notifications.
func (r *IntentRepository) ExpireOlderThan(ctx context.Context, cutoff time.Time) ([]*intentDatamodel.PaymentIntent, error) {
	var stale []*intentDatamodel.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", intentDatamodel.StatusPending, cutoff).
		Find(&stale).Error
	if err != nil {
		return nil, err
	}

	var expired []*intentDatamodel.PaymentIntent
	for _, record := range stale {
		result := r.db.WithContext(ctx).Model(&intentDatamodel.PaymentIntent{}).
			Where("intent_id = ? AND status = ?", record.IntentID, intentDatamodel.StatusPending).
			Updates(map[string]interface{}{
				"status":     intentDatamodel.StatusExpired,
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return expired, result.Error
		}
		// a concurrent match can win between the read and the update; skip those
		if result.RowsAffected > 0 {
			expired = append(expired, record)
		}
	}
	return expired, nil
}

// explainFailedTransition distinguishes an unknown intent from a lost
// compare-and-set race after a zero-row conditional update.
func (r *IntentRepository) explainFailedTransition(ctx context.Context, intentID string) error {
	var p intentDatamodel.PaymentIntent
	err := r.db.WithContext(ctx).Where("intent_id = ?", intentID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrIntentNotFound
		}
		return err
	}
	return apperrors.ErrIntentAlreadyCompleted
}

package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	notificationDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/notification"
	"github.com/frahmantamala/payment-reconciliation/internal/reconciliation"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) reconciliation.NotificationRepositoryAPI {
	return &NotificationRepository{
		db: db,
	}
}

// RecordReceived inserts the dedup record; the unique index on
// notification_ref makes the first delivery win and every redelivery fail
// with ErrDuplicateNotification.
func (r *NotificationRepository) RecordReceived(ctx context.Context, n *notificationDatamodel.ProviderNotification) error {
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Create(n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.ErrDuplicateNotification
		}
		return err
	}
	return nil
}

func (r *NotificationRepository) GetByRef(ctx context.Context, notificationRef string) (*notificationDatamodel.ProviderNotification, error) {
	var n notificationDatamodel.ProviderNotification
	err := r.db.WithContext(ctx).Where("notification_ref = ?", notificationRef).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) SetOutcome(ctx context.Context, notificationRef, outcome string, matchedIntentID *string) error {
	updates := map[string]interface{}{
		"outcome": outcome,
	}
	if matchedIntentID != nil {
		updates["matched_intent_id"] = *matchedIntentID
	}
	return r.db.WithContext(ctx).Model(&notificationDatamodel.ProviderNotification{}).
		Where("notification_ref = ?", notificationRef).
		Updates(updates).Error
}

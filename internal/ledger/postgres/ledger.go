package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/frahmantamala/payment-reconciliation/internal"
	ledgerDatamodel "github.com/frahmantamala/payment-reconciliation/internal/core/datamodel/ledger"
	ledgerpkg "github.com/frahmantamala/payment-reconciliation/internal/ledger"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) ledgerpkg.RepositoryAPI {
	return &LedgerRepository{
		db: db,
	}
}

// ApplyCredit inserts the credit entry and bumps the account balance inside
// one transaction. The unique index on idempotency_key rejects replays before
// any balance row is touched.
func (r *LedgerRepository) ApplyCredit(ctx context.Context, entry *ledgerDatamodel.CreditEntry) (int64, error) {
	var newBalance int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry.CreatedAt = time.Now().UTC()
		if err := tx.Create(entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.ErrCreditAlreadyApplied
			}
			return err
		}

		account := &ledgerDatamodel.Account{
			UserRef:        entry.UserRef,
			BalanceCredits: 0,
			CreatedAt:      time.Now().UTC(),
			UpdatedAt:      time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_ref"}},
			DoNothing: true,
		}).Create(account).Error; err != nil {
			return err
		}

		result := tx.Model(&ledgerDatamodel.Account{}).
			Where("user_ref = ?", entry.UserRef).
			Updates(map[string]interface{}{
				"balance_credits": gorm.Expr("balance_credits + ?", entry.Credits),
				"updated_at":      time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}

		var updated ledgerDatamodel.Account
		if err := tx.Where("user_ref = ?", entry.UserRef).First(&updated).Error; err != nil {
			return err
		}
		newBalance = updated.BalanceCredits
		return nil
	})
	if err != nil {
		return 0, err
	}

	return newBalance, nil
}

func (r *LedgerRepository) GetBalance(ctx context.Context, userRef string) (int64, error) {
	var account ledgerDatamodel.Account
	err := r.db.WithContext(ctx).Where("user_ref = ?", userRef).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.ErrAccountNotFound
		}
		return 0, err
	}
	return account.BalanceCredits, nil
}

func (r *LedgerRepository) GetEntryByKey(ctx context.Context, idempotencyKey string) (*ledgerDatamodel.CreditEntry, error) {
	var entry ledgerDatamodel.CreditEntry
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", idempotencyKey).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

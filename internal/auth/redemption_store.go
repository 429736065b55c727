package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FormTokenRedemption records a consumed form token id.
type FormTokenRedemption struct {
	TokenID           string `gorm:"column:token_id;primaryKey;size:64;not null"`
	Subject           string `gorm:"column:subject;size:190;not null"`
	RedeemedAtSeconds int64  `gorm:"column:redeemed_at_s;not null"`
	ExpiresAtSeconds  int64  `gorm:"column:expires_at_s;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (FormTokenRedemption) TableName() string {
	return "form_token_redemptions"
}

// GormRedemptionStore keeps redeemed token ids in the survey database.
type GormRedemptionStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewGormRedemptionStore wraps a database handle.
func NewGormRedemptionStore(db *gorm.DB, clock func() time.Time) (*GormRedemptionStore, error) {
	if db == nil {
		return nil, errors.New("form tokens: database connection required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &GormRedemptionStore{db: db, clock: clock}, nil
}

// Redeem inserts the token id, reporting false when it is already present.
// Records whose tokens have expired are pruned on the way.
func (s *GormRedemptionStore) Redeem(ctx context.Context, tokenID string, subject string, expiresAt time.Time) (bool, error) {
	now := s.clock().UTC().Unix()
	fresh := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expires_at_s < ?", now).Delete(&FormTokenRedemption{}).Error; err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&FormTokenRedemption{
			TokenID:           tokenID,
			Subject:           subject,
			RedeemedAtSeconds: now,
			ExpiresAtSeconds:  expiresAt.UTC().Unix(),
		})
		if result.Error != nil {
			return result.Error
		}
		fresh = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}

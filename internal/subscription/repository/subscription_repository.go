package repository

import (
	"context"
	"errors"
	"time"

	subdomain "fileflow-backend/internal/subscription/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository interface {
	// FindByUserID returns nil when the user has no record yet.
	FindByUserID(ctx context.Context, userID string) (*subdomain.Subscription, error)
	Save(ctx context.Context, sub *subdomain.Subscription) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) FindByUserID(ctx context.Context, userID string) (*subdomain.Subscription, error) {
	var sub subdomain.Subscription
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Save(ctx context.Context, sub *subdomain.Subscription) error {
	now := time.Now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tier", "trial_expires_at", "trial_used", "purchased_at", "purchase_ref", "updated_at"}),
	}).Create(sub).Error
}

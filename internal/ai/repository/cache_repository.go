package repository

import (
	"context"
	"errors"
	"time"

	aidomain "fileflow-backend/internal/ai/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheRepository stores AI results for aidomain.CacheRetention.
type CacheRepository interface {
	// Get returns nil on a miss or an expired entry.
	Get(ctx context.Context, userID, resourceID string, resultType aidomain.ResultType, params string) (*aidomain.CacheEntry, error)
	// Put inserts or replaces the entry, resetting its creation time.
	Put(ctx context.Context, entry *aidomain.CacheEntry) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type cacheRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCacheRepository(db *gorm.DB, now func() time.Time) CacheRepository {
	if now == nil {
		now = time.Now
	}
	return &cacheRepository{db: db, now: now}
}

func (r *cacheRepository) cutoff() time.Time {
	return r.now().Add(-aidomain.CacheRetention)
}

func (r *cacheRepository) Get(ctx context.Context, userID, resourceID string, resultType aidomain.ResultType, params string) (*aidomain.CacheEntry, error) {
	var entry aidomain.CacheEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND resource_id = ? AND type = ? AND params = ? AND created_at > ?", userID, resourceID, resultType, params, r.cutoff()).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *cacheRepository) Put(ctx context.Context, entry *aidomain.CacheEntry) error {
	entry.CreatedAt = r.now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "resource_id"}, {Name: "type"}, {Name: "params"}},
		DoUpdates: clause.AssignmentColumns([]string{"provider", "payload", "created_at"}),
	}).Create(entry).Error
}

func (r *cacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at <= ?", r.cutoff()).Delete(&aidomain.CacheEntry{})
	return res.RowsAffected, res.Error
}

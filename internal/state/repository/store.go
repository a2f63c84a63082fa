package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	statedomain "fileflow-backend/internal/state/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is a per-user key/value store holding JSON-encoded records.
type Store interface {
	Get(ctx context.Context, userID string, key statedomain.Key) (string, bool, error)
	Put(ctx context.Context, userID string, key statedomain.Key, value string) error
	Delete(ctx context.Context, userID string, key statedomain.Key) error
	Clear(ctx context.Context, userID string) error
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Get(ctx context.Context, userID string, key statedomain.Key) (string, bool, error) {
	var rec statedomain.Record
	err := s.db.WithContext(ctx).Where("user_id = ? AND key = ?", userID, string(key)).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return rec.Value, true, nil
}

func (s *gormStore) Put(ctx context.Context, userID string, key statedomain.Key, value string) error {
	rec := &statedomain.Record{UserID: userID, Key: string(key), Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(rec).Error
}

func (s *gormStore) Delete(ctx context.Context, userID string, key statedomain.Key) error {
	return s.db.WithContext(ctx).Where("user_id = ? AND key = ?", userID, string(key)).Delete(&statedomain.Record{}).Error
}

func (s *gormStore) Clear(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&statedomain.Record{}).Error
}

type memoryStore struct {
	mu   sync.RWMutex
	data map[string]map[statedomain.Key]string
}

// NewMemoryStore returns a process-local Store.
func NewMemoryStore() Store {
	return &memoryStore{data: make(map[string]map[statedomain.Key]string)}
}

func (s *memoryStore) Get(_ context.Context, userID string, key statedomain.Key) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[userID][key]
	return v, ok, nil
}

func (s *memoryStore) Put(_ context.Context, userID string, key statedomain.Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[userID] == nil {
		s.data[userID] = make(map[statedomain.Key]string)
	}
	s.data[userID][key] = value
	return nil
}

func (s *memoryStore) Delete(_ context.Context, userID string, key statedomain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[userID], key)
	return nil
}

func (s *memoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userID)
	return nil
}

package repository

import (
	"context"
	"time"

	filesdomain "fileflow-backend/internal/files/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FileRepository persists ProcessedFile records.
type FileRepository interface {
	// Save inserts the file or, when (user, message, filename) already exists, updates it
	// in place. file.ID is set to the stored row's id.
	Save(ctx context.Context, file *filesdomain.ProcessedFile) error
	ListByUser(ctx context.Context, userID string, category string) ([]*filesdomain.ProcessedFile, error)
	DeleteByIDs(ctx context.Context, userID string, ids []string) error
	DeleteByUser(ctx context.Context, userID string) error
}

type fileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Save(ctx context.Context, file *filesdomain.ProcessedFile) error {
	now := time.Now()
	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = now
	}
	file.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "message_id"}, {Name: "filename"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"from", "subject", "category", "status", "size", "mime_type",
			"uploaded_at", "drive_file_id", "view_url", "error", "updated_at",
		}),
	}).Create(file).Error
	if err != nil {
		return err
	}

	var stored filesdomain.ProcessedFile
	err = r.db.WithContext(ctx).
		Select("id", "created_at").
		Where("user_id = ? AND message_id = ? AND filename = ?", file.UserID, file.MessageID, file.Filename).
		First(&stored).Error
	if err != nil {
		return err
	}
	file.ID = stored.ID
	file.CreatedAt = stored.CreatedAt
	return nil
}

func (r *fileRepository) ListByUser(ctx context.Context, userID string, category string) ([]*filesdomain.ProcessedFile, error) {
	var files []*filesdomain.ProcessedFile
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Order("uploaded_at DESC").Order("created_at DESC").Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepository) DeleteByIDs(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Delete(&filesdomain.ProcessedFile{}).Error
}

func (r *fileRepository) DeleteByUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&filesdomain.ProcessedFile{}).Error
}

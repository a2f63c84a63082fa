package repository

import (
	"context"
	"errors"
	"time"

	tododomain "fileflow-backend/internal/todo/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TodoRepository is the remote mirror of each user's todo list.
type TodoRepository interface {
	// Upsert updates the row with todo.ID, or inserts it. An existing row with the same
	// (user, source, normalised text) is merged into and takes todo.ID, so deletes by the
	// local id reach it.
	Upsert(ctx context.Context, todo *tododomain.Todo) error
	FindByUserID(ctx context.Context, userID string) ([]*tododomain.Todo, error)
	Delete(ctx context.Context, userID, id string) error
}

type todoRepository struct {
	db *gorm.DB
}

func NewTodoRepository(db *gorm.DB) TodoRepository {
	return &todoRepository{db: db}
}

func (r *todoRepository) Upsert(ctx context.Context, todo *tododomain.Todo) error {
	row := *todo
	row.NormText = tododomain.NormalizeText(row.Text)
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = row.UpdatedAt
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing tododomain.Todo
		err := tx.Where("id = ? AND user_id = ?", row.ID, row.UserID).First(&existing).Error
		if err == nil {
			return tx.Model(&existing).Updates(map[string]interface{}{
				"text":         row.Text,
				"norm_text":    row.NormText,
				"source_title": row.SourceTitle,
				"completed":    row.Completed,
				"updated_at":   row.UpdatedAt,
			}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "source_id"}, {Name: "norm_text"}},
			DoUpdates: clause.AssignmentColumns([]string{"id", "text", "source_title", "completed", "updated_at"}),
		}).Create(&row).Error
	})
}

func (r *todoRepository) FindByUserID(ctx context.Context, userID string) ([]*tododomain.Todo, error) {
	var todos []*tododomain.Todo
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&todos).Error; err != nil {
		return nil, err
	}
	return todos, nil
}

func (r *todoRepository) Delete(ctx context.Context, userID, id string) error {
	return r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&tododomain.Todo{}).Error
}

package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("todo not found")
	ErrEmptyText = errors.New("todo text is required")
	// ErrDuplicate means another todo from the same source already has this text.
	ErrDuplicate = errors.New("todo with the same text already exists")
)

// Todo is one action item. It is unique per user, source and normalised text.
type Todo struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"not null;uniqueIndex:idx_todo_source_text"`
	SourceID    string    `json:"source_id" gorm:"not null;default:'';uniqueIndex:idx_todo_source_text"`
	NormText    string    `json:"-" gorm:"not null;uniqueIndex:idx_todo_source_text"`
	Text        string    `json:"text" gorm:"not null"`
	SourceTitle string    `json:"source_title,omitempty"`
	Completed   bool      `json:"completed" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Todo) TableName() string {
	return "todos"
}

// Key is the identity used for de-duplication.
func (t *Todo) Key() string {
	return DedupKey(t.SourceID, t.Text)
}

// NewTodo is an item to be added, typically straight from AI extraction.
type NewTodo struct {
	Text        string `json:"text"`
	SourceID    string `json:"source_id"`
	SourceTitle string `json:"source_title"`
}

// TodoUpdate carries the fields a client may change.
type TodoUpdate struct {
	Completed *bool   `json:"completed"`
	Text      *string `json:"text"`
}

// TodoSink accepts new todos and returns the ones that were not already present.
type TodoSink interface {
	AddTodos(ctx context.Context, userID string, todos []NewTodo) ([]*Todo, error)
}

// NormalizeText lower-cases, trims and collapses inner whitespace.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func DedupKey(sourceID, text string) string {
	return sourceID + "\x00" + NormalizeText(text)
}

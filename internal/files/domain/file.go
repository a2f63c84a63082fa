package domain

import (
	"context"
	"strings"
	"time"
)

type Category string

const (
	CategoryFinance  Category = "Finance"
	CategoryLegal    Category = "Legal"
	CategoryWork     Category = "Work"
	CategoryPersonal Category = "Personal"
)

// Categories in tie-break order.
var Categories = []Category{CategoryFinance, CategoryLegal, CategoryWork, CategoryPersonal}

// ParseCategory matches a category name case-insensitively.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, true
		}
	}
	return "", false
}

type Status string

const (
	StatusSuccess Status = "Success"
	StatusPending Status = "Pending"
	StatusError   Status = "Error"
)

// ProcessedFile is one organised (or failed) attachment. Unique per user, message and filename.
type ProcessedFile struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	UserID      string    `json:"user_id" gorm:"not null;uniqueIndex:idx_user_message_file"`
	MessageID   string    `json:"message_id" gorm:"not null;uniqueIndex:idx_user_message_file"`
	Filename    string    `json:"filename" gorm:"not null;uniqueIndex:idx_user_message_file"`
	From        string    `json:"from"`
	Subject     string    `json:"subject"`
	Category    Category  `json:"category"`
	Status      Status    `json:"status"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mime_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
	DriveFileID *string   `json:"drive_file_id,omitempty"`
	ViewURL     *string   `json:"view_url,omitempty"`
	Error       *string   `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ProcessedFile) TableName() string {
	return "processed_files"
}

// Key is the identity used for de-duplication.
func (f *ProcessedFile) Key() string {
	return FileKey(f.MessageID, f.Filename)
}

func FileKey(messageID, filename string) string {
	return messageID + "\x00" + filename
}

// UploadResult is what the cloud storage gateway returns for an uploaded file.
type UploadResult struct {
	FileID  string `json:"file_id"`
	ViewURL string `json:"view_url"`
}

// DriveGateway is the cloud storage capability used by the uploader.
type DriveGateway interface {
	FindFolder(ctx context.Context, name, parentID string) (string, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	Upload(ctx context.Context, name, mimeType, parentID string, data []byte) (*UploadResult, error)
}

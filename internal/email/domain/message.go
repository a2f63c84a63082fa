package domain

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrCursorExpired is returned when the mailbox no longer recognises a history cursor.
	ErrCursorExpired = errors.New("history cursor expired")
	ErrUnauthorized  = errors.New("mail provider authorization expired")
	ErrNotFound      = errors.New("message not found")
)

// TokenUpdateFunc is called whenever the OAuth token source hands out a refreshed token.
type TokenUpdateFunc func(token *oauth2.Token) error

type AttachmentRef struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
}

type Message struct {
	ID          string          `json:"id"`
	ThreadID    string          `json:"thread_id"`
	Subject     string          `json:"subject"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Snippet     string          `json:"snippet"`
	Body        string          `json:"body,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
	LabelIDs    []string        `json:"label_ids,omitempty"`
	Unread      bool            `json:"unread"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

type Draft struct {
	From      string
	To        []string
	Cc        []string
	Subject   string
	Body      string
	ThreadID  string
	InReplyTo string
}

// HistoryPage is the result of walking the mailbox change stream from a cursor.
type HistoryPage struct {
	MessageIDs []string
	Cursor     string
}

// MailGateway is the subset of the mail provider API the sync pipeline depends on.
type MailGateway interface {
	ListMessages(ctx context.Context, query string, max int) ([]string, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	History(ctx context.Context, cursor string) (*HistoryPage, error)
	CurrentCursor(ctx context.Context) (string, error)
	MessageExists(ctx context.Context, id string) (bool, error)
	ModifyLabels(ctx context.Context, id string, add, remove []string) error
	CreateDraft(ctx context.Context, draft *Draft) (string, error)
	Send(ctx context.Context, draft *Draft) (string, error)
	Watch(ctx context.Context, topic string) (string, error)
}

package domain

import (
	"context"
	"time"
)

// ResultType names what a cache entry holds.
type ResultType string

const (
	TypeSummary     ResultType = "summary"
	TypeReplies     ResultType = "replies"
	TypeActionItems ResultType = "action_items"
	TypeIntent      ResultType = "intent"
	TypeAnalysis    ResultType = "analysis"
)

// CacheRetention is how long a cached result is served.
const CacheRetention = 7 * 24 * time.Hour

// CacheEntry memoizes one provider result per (user, resource, type, params).
type CacheEntry struct {
	UserID     string     `gorm:"primaryKey"`
	ResourceID string     `gorm:"primaryKey"`
	Type       ResultType `gorm:"primaryKey"`
	Params     string     `gorm:"primaryKey"`
	Provider   string
	Payload    string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

func (CacheEntry) TableName() string {
	return "ai_cache"
}

const (
	DefaultSummary     = "This email contains information that may require your attention."
	DefaultActionItems = "No specific action items detected"
	DefaultChat        = "I couldn't answer that right now. Please try again in a moment."
	DefaultRecap       = "No highlights available right now."
	DefaultReplyCount  = 3
)

// DefaultReplies returns the static reply suggestions.
func DefaultReplies() []string {
	return []string{
		"Thanks for your email. I'll get back to you soon.",
		"Got it, thank you!",
		"Could you share more details?",
	}
}

// EmailContent is the input shared by the per-email operations.
type EmailContent struct {
	ResourceID string `json:"resource_id"`
	Subject    string `json:"subject"`
	From       string `json:"from"`
	Body       string `json:"body" binding:"required"`
}

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

type ActionItem struct {
	Task     string   `json:"task"`
	Priority Priority `json:"priority"`
	DueDate  *string  `json:"due_date,omitempty"`
}

type IntentType string

const (
	IntentInvoice  IntentType = "INVOICE"
	IntentMeeting  IntentType = "MEETING"
	IntentContract IntentType = "CONTRACT"
	IntentInfo     IntentType = "INFO"
)

// MinRenderConfidence is the confidence below which clients hide an intent.
const MinRenderConfidence = 0.4

type Intent struct {
	Type       IntentType `json:"type"`
	Confidence float64    `json:"confidence"`
	Details    string     `json:"details"`
}

func DefaultIntent() Intent {
	return Intent{Type: IntentInfo}
}

// Meta describes where a result came from.
type Meta struct {
	Provider string `json:"provider,omitempty"`
	Cached   bool   `json:"cached"`
	// Fallback is set when the static default was returned.
	Fallback bool `json:"fallback,omitempty"`
}

type SummaryResult struct {
	Summary string `json:"summary"`
	Meta
}

type RepliesResult struct {
	Replies []string `json:"replies"`
	Meta
}

type ActionItemsResult struct {
	Items     []ActionItem `json:"items"`
	Checklist string       `json:"checklist"`
	Meta
}

type IntentResult struct {
	Intent
	Meta
}

type Analysis struct {
	Summary     string       `json:"summary"`
	Replies     []string     `json:"replies"`
	ActionItems []ActionItem `json:"action_items"`
	Checklist   string       `json:"checklist"`
	Intent      Intent       `json:"intent"`
}

type AnalysisResult struct {
	Analysis
	Meta
}

type RecapEmail struct {
	Subject string `json:"subject"`
	From    string `json:"from"`
	Snippet string `json:"snippet"`
}

type RecapResult struct {
	Recap string `json:"recap"`
	Meta
}

type ChatRequest struct {
	Query    string `json:"query"`
	Context  string `json:"context"`
	FileName string `json:"file_name,omitempty"`
}

type ChatResult struct {
	Answer string `json:"answer"`
	Meta
}

// SearchHit is one processed file matching a search.
type SearchHit struct {
	FileID   string  `json:"file_id"`
	Filename string  `json:"filename"`
	Category string  `json:"category"`
	Subject  string  `json:"subject"`
	From     string  `json:"from"`
	ViewURL  *string `json:"view_url,omitempty"`
	Score    float64 `json:"score"`
}

type SearchResult struct {
	Hits []SearchHit `json:"hits"`
	// Mode is "semantic" or "keyword".
	Mode string `json:"mode"`
}

// FileIndex is a semantic index over processed files.
type FileIndex interface {
	SearchFiles(ctx context.Context, userID, query string, limit int) ([]string, error)
}

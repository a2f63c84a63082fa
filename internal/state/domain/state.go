package domain

import "time"

// Key names one logical record in a user's state.
type Key string

const (
	KeyUserInfo        Key = "user_info"
	KeyLastSync        Key = "last_sync"
	KeyLastCleanup     Key = "last_cleanup"
	KeySyncPeriod      Key = "sync_period"
	KeyHistoryCursor   Key = "history_cursor"
	KeyTheme           Key = "theme"
	KeySubscription    Key = "subscription"
	KeyUsageQuota      Key = "usage_quota"
	KeyUnreadSnapshot  Key = "unread_emails"
	KeyTodos           Key = "todos"
	KeyExtractedEmails Key = "extracted_email_ids"
	KeyRetryMessages   Key = "retry_message_ids"
)

// MaxExtractedIDs bounds the mined-message set to the most recent entries.
const MaxExtractedIDs = 1000

// Record is one stored value, JSON encoded.
type Record struct {
	UserID    string    `gorm:"primaryKey"`
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time
}

func (Record) TableName() string {
	return "user_state"
}

type SyncPeriod string

const (
	SyncPeriod7d  SyncPeriod = "7d"
	SyncPeriod30d SyncPeriod = "30d"
	SyncPeriod90d SyncPeriod = "90d"
	SyncPeriodAll SyncPeriod = "all"
)

const DefaultSyncPeriod = SyncPeriod30d

// Days returns the look-back window in days; zero means unbounded.
func (p SyncPeriod) Days() int {
	switch p {
	case SyncPeriod7d:
		return 7
	case SyncPeriod30d:
		return 30
	case SyncPeriod90d:
		return 90
	default:
		return 0
	}
}

func (p SyncPeriod) Valid() bool {
	switch p {
	case SyncPeriod7d, SyncPeriod30d, SyncPeriod90d, SyncPeriodAll:
		return true
	}
	return false
}

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

type UserInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// UnreadEmail is a lightweight snapshot of an unread message.
type UnreadEmail struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	From       string    `json:"from"`
	Snippet    string    `json:"snippet"`
	ReceivedAt time.Time `json:"received_at"`
}

// Settings are the user-editable preferences.
type Settings struct {
	SyncPeriod SyncPeriod `json:"sync_period"`
	Theme      Theme      `json:"theme"`
}

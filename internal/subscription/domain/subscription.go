package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Tier string

const (
	TierFree  Tier = "Free"
	TierTrial Tier = "Trial"
	TierPro   Tier = "Pro"
)

// Feature is a metered AI capability.
type Feature string

const (
	FeatureSummaries Feature = "summaries"
	FeatureReplies   Feature = "replies"
	FeatureSearches  Feature = "searches"
)

// Unlimited is reported as limit and remaining for Pro and active Trial users.
const Unlimited = -1

var ErrQuotaExceeded = errors.New("daily limit reached")

// Subscription is the backend record, the source of truth for a user's tier.
type Subscription struct {
	UserID         string     `json:"user_id" gorm:"primaryKey"`
	Tier           Tier       `json:"tier" gorm:"not null;default:Free"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
	TrialUsed      bool       `json:"trial_used" gorm:"default:false"`
	PurchasedAt    *time.Time `json:"purchased_at,omitempty"`
	PurchaseRef    *string    `json:"purchase_ref,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// EffectiveTier downgrades an expired trial to Free.
func (s *Subscription) EffectiveTier(now time.Time) Tier {
	if s.Tier == TierTrial && (s.TrialExpiresAt == nil || !now.Before(*s.TrialExpiresAt)) {
		return TierFree
	}
	return s.Tier
}

// UsageQuota holds one day's counters.
type UsageQuota struct {
	Summaries int       `json:"summaries"`
	Replies   int       `json:"replies"`
	Searches  int       `json:"searches"`
	LastReset time.Time `json:"last_reset"`
}

func (q *UsageQuota) Count(f Feature) int {
	switch f {
	case FeatureSummaries:
		return q.Summaries
	case FeatureReplies:
		return q.Replies
	case FeatureSearches:
		return q.Searches
	}
	return 0
}

func (q *UsageQuota) Increment(f Feature) {
	switch f {
	case FeatureSummaries:
		q.Summaries++
	case FeatureReplies:
		q.Replies++
	case FeatureSearches:
		q.Searches++
	}
}

// Decision is the answer to a CanUse check.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
}

// QuotaExceededError carries the denied decision.
type QuotaExceededError struct {
	Feature  Feature
	Decision Decision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %s", ErrQuotaExceeded, e.Feature)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// Status is what the client shows for the current user.
type Status struct {
	Tier           Tier            `json:"tier"`
	TrialExpiresAt *time.Time      `json:"trial_expires_at,omitempty"`
	TrialUsed      bool            `json:"trial_used"`
	PurchasedAt    *time.Time      `json:"purchased_at,omitempty"`
	Usage          UsageQuota      `json:"usage"`
	Limits         map[Feature]int `json:"limits"`
}

// Gate meters AI features per user.
type Gate interface {
	CanUse(ctx context.Context, userID string, feature Feature) (*Decision, error)
	IncrementUsage(ctx context.Context, userID string, feature Feature) error
}

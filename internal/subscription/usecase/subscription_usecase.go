package usecase

import (
	"context"
	"fmt"
	"time"

	"fileflow-backend/internal/state"
	statedomain "fileflow-backend/internal/state/domain"
	subdomain "fileflow-backend/internal/subscription/domain"
	"fileflow-backend/internal/subscription/repository"

	"github.com/rs/zerolog/log"
)

// SubscriptionUsecase tracks tiers and daily AI usage.
type SubscriptionUsecase interface {
	subdomain.Gate
	Status(ctx context.Context, userID string) (*subdomain.Status, error)
	// Sync pulls the backend record into the local mirror, optionally starting the
	// one-time trial.
	Sync(ctx context.Context, userID string, startTrial bool) (*subdomain.Status, error)
	Upgrade(ctx context.Context, userID, purchaseRef string) error
	IsPro(ctx context.Context, userID string) (bool, error)
}

type Config struct {
	Limits        map[subdomain.Feature]int
	TrialDuration time.Duration
	Location      *time.Location
	Now           func() time.Time
}

type subscriptionUsecase struct {
	repo   repository.SubscriptionRepository
	state  *state.LocalState
	limits map[subdomain.Feature]int
	trial  time.Duration
	loc    *time.Location
	now    func() time.Time
}

func NewSubscriptionUsecase(repo repository.SubscriptionRepository, localState *state.LocalState, cfg Config) SubscriptionUsecase {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TrialDuration <= 0 {
		cfg.TrialDuration = 7 * 24 * time.Hour
	}
	return &subscriptionUsecase{
		repo:   repo,
		state:  localState,
		limits: cfg.Limits,
		trial:  cfg.TrialDuration,
		loc:    cfg.Location,
		now:    cfg.Now,
	}
}

// subscription reads the local mirror, falling back to the backend record.
func (u *subscriptionUsecase) subscription(ctx context.Context, userID string) (*subdomain.Subscription, error) {
	var sub subdomain.Subscription
	ok, err := u.state.GetJSON(ctx, userID, statedomain.KeySubscription, &sub)
	if err != nil {
		return nil, err
	}
	if ok {
		return &sub, nil
	}
	return u.pull(ctx, userID)
}

func (u *subscriptionUsecase) pull(ctx context.Context, userID string) (*subdomain.Subscription, error) {
	sub, err := u.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		sub = &subdomain.Subscription{UserID: userID, Tier: subdomain.TierFree}
	}
	if err := u.state.PutJSON(ctx, userID, statedomain.KeySubscription, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// tier applies the lazy trial downgrade and persists it to the mirror.
func (u *subscriptionUsecase) tier(ctx context.Context, userID string) (subdomain.Tier, *subdomain.Subscription, error) {
	sub, err := u.subscription(ctx, userID)
	if err != nil {
		return "", nil, err
	}
	effective := sub.EffectiveTier(u.now())
	if effective != sub.Tier {
		log.Info().Str("user_id", userID).Msg("[Subscription] Trial expired, downgrading to Free")
		sub.Tier = effective
		if err := u.state.PutJSON(ctx, userID, statedomain.KeySubscription, sub); err != nil {
			return "", nil, err
		}
	}
	return effective, sub, nil
}

func (u *subscriptionUsecase) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(u.loc).Date()
	by, bm, bd := b.In(u.loc).Date()
	return ay == by && am == bm && ad == bd
}

// touchQuota resets counters the first time they are used on a new day.
func (u *subscriptionUsecase) touchQuota(q *subdomain.UsageQuota) {
	now := u.now()
	if q.LastReset.IsZero() || !u.sameDay(q.LastReset, now) {
		*q = subdomain.UsageQuota{LastReset: now}
	}
}

func (u *subscriptionUsecase) CanUse(ctx context.Context, userID string, feature subdomain.Feature) (*subdomain.Decision, error) {
	tier, _, err := u.tier(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tier != subdomain.TierFree {
		return &subdomain.Decision{Allowed: true, Remaining: subdomain.Unlimited, Limit: subdomain.Unlimited}, nil
	}

	limit := u.limits[feature]
	var decision subdomain.Decision
	err = state.Update(ctx, u.state, userID, statedomain.KeyUsageQuota, func(q *subdomain.UsageQuota) error {
		u.touchQuota(q)
		remaining := limit - q.Count(feature)
		if remaining < 0 {
			remaining = 0
		}
		decision = subdomain.Decision{Allowed: remaining > 0, Remaining: remaining, Limit: limit}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

func (u *subscriptionUsecase) IncrementUsage(ctx context.Context, userID string, feature subdomain.Feature) error {
	tier, _, err := u.tier(ctx, userID)
	if err != nil {
		return err
	}
	if tier != subdomain.TierFree {
		return nil
	}
	return state.Update(ctx, u.state, userID, statedomain.KeyUsageQuota, func(q *subdomain.UsageQuota) error {
		u.touchQuota(q)
		q.Increment(feature)
		return nil
	})
}

func (u *subscriptionUsecase) status(ctx context.Context, userID string, sub *subdomain.Subscription, tier subdomain.Tier) (*subdomain.Status, error) {
	var quota subdomain.UsageQuota
	err := state.Update(ctx, u.state, userID, statedomain.KeyUsageQuota, func(q *subdomain.UsageQuota) error {
		u.touchQuota(q)
		quota = *q
		return nil
	})
	if err != nil {
		return nil, err
	}

	limits := make(map[subdomain.Feature]int, len(u.limits))
	for f, l := range u.limits {
		if tier == subdomain.TierFree {
			limits[f] = l
		} else {
			limits[f] = subdomain.Unlimited
		}
	}
	status := &subdomain.Status{
		Tier:        tier,
		TrialUsed:   sub.TrialUsed,
		PurchasedAt: sub.PurchasedAt,
		Usage:       quota,
		Limits:      limits,
	}
	if tier == subdomain.TierTrial {
		status.TrialExpiresAt = sub.TrialExpiresAt
	}
	return status, nil
}

func (u *subscriptionUsecase) Status(ctx context.Context, userID string) (*subdomain.Status, error) {
	tier, sub, err := u.tier(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.status(ctx, userID, sub, tier)
}

func (u *subscriptionUsecase) Sync(ctx context.Context, userID string, startTrial bool) (*subdomain.Status, error) {
	sub, err := u.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		sub = &subdomain.Subscription{UserID: userID, Tier: subdomain.TierFree}
	}

	now := u.now()
	if sub.Tier == subdomain.TierTrial && sub.EffectiveTier(now) == subdomain.TierFree {
		sub.Tier = subdomain.TierFree
	}
	if startTrial && sub.Tier == subdomain.TierFree && !sub.TrialUsed {
		expires := now.Add(u.trial)
		sub.Tier = subdomain.TierTrial
		sub.TrialExpiresAt = &expires
		sub.TrialUsed = true
		log.Info().Str("user_id", userID).Time("expires_at", expires).Msg("[Subscription] Trial started")
	}
	if err := u.repo.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}
	if err := u.state.PutJSON(ctx, userID, statedomain.KeySubscription, sub); err != nil {
		return nil, err
	}
	return u.status(ctx, userID, sub, sub.EffectiveTier(now))
}

func (u *subscriptionUsecase) Upgrade(ctx context.Context, userID, purchaseRef string) error {
	sub, err := u.repo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub == nil {
		sub = &subdomain.Subscription{UserID: userID}
	}
	now := u.now()
	sub.Tier = subdomain.TierPro
	sub.PurchasedAt = &now
	sub.PurchaseRef = &purchaseRef
	if err := u.repo.Save(ctx, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	log.Info().Str("user_id", userID).Str("purchase_ref", purchaseRef).Msg("[Subscription] Upgraded to Pro")
	return u.state.PutJSON(ctx, userID, statedomain.KeySubscription, sub)
}

func (u *subscriptionUsecase) IsPro(ctx context.Context, userID string) (bool, error) {
	tier, _, err := u.tier(ctx, userID)
	if err != nil {
		return false, err
	}
	return tier == subdomain.TierPro, nil
}

package usecase

import (
	"context"
	"testing"
	"time"

	"fileflow-backend/internal/state"
	statedomain "fileflow-backend/internal/state/domain"
	staterepo "fileflow-backend/internal/state/repository"
	subdomain "fileflow-backend/internal/subscription/domain"
	"fileflow-backend/internal/subscription/repository"
	"fileflow-backend/pkg/database"

	"github.com/stretchr/testify/suite"
)

type SubscriptionSuite struct {
	suite.Suite
	ctx   context.Context
	now   time.Time
	repo  repository.SubscriptionRepository
	state *state.LocalState
	uc    SubscriptionUsecase
}

func TestSubscriptionSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionSuite))
}

func (s *SubscriptionSuite) SetupTest() {
	db, err := database.NewSQLiteConnection(":memory:")
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(&subdomain.Subscription{}))

	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC)
	s.repo = repository.NewSubscriptionRepository(db)
	s.state = state.NewLocalState(staterepo.NewMemoryStore())
	s.uc = s.newUsecase(time.UTC)
}

func (s *SubscriptionSuite) newUsecase(loc *time.Location) SubscriptionUsecase {
	return NewSubscriptionUsecase(s.repo, s.state, Config{
		Limits: map[subdomain.Feature]int{
			subdomain.FeatureSummaries: 5,
			subdomain.FeatureReplies:   5,
			subdomain.FeatureSearches:  10,
		},
		TrialDuration: 7 * 24 * time.Hour,
		Location:      loc,
		Now:           func() time.Time { return s.now },
	})
}

func (s *SubscriptionSuite) TestFreeUserConsumesDailyLimit() {
	for i := 0; i < 5; i++ {
		d, err := s.uc.CanUse(s.ctx, "u1", subdomain.FeatureSummaries)
		s.Require().NoError(err)
		s.True(d.Allowed)
		s.Equal(5-i, d.Remaining)
		s.Require().NoError(s.uc.IncrementUsage(s.ctx, "u1", subdomain.FeatureSummaries))
	}

	d, err := s.uc.CanUse(s.ctx, "u1", subdomain.FeatureSummaries)
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(0, d.Remaining)
	s.Equal(5, d.Limit)

	other, err := s.uc.CanUse(s.ctx, "u1", subdomain.FeatureReplies)
	s.Require().NoError(err)
	s.True(other.Allowed)
}

func (s *SubscriptionSuite) TestQuotaResetsOnNewDay() {
	yesterday := s.now.Add(-24 * time.Hour)
	s.Require().NoError(s.state.PutJSON(s.ctx, "u1", statedomain.KeyUsageQuota, subdomain.UsageQuota{
		Summaries: 5, Replies: 5, Searches: 10, LastReset: yesterday,
	}))

	d, err := s.uc.CanUse(s.ctx, "u1", subdomain.FeatureSummaries)
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal(5, d.Remaining)

	status, err := s.uc.Status(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(0, status.Usage.Searches)
}

func (s *SubscriptionSuite) TestDayBoundaryFollowsConfiguredZone() {
	uc := s.newUsecase(time.FixedZone("EAT", 3*3600))
	// 01:00 local on the same local day as s.now (13:00 local).
	lastReset := time.Date(2026, 5, 4, 22, 0, 0, 0, time.UTC)
	s.Require().NoError(s.state.PutJSON(s.ctx, "u1", statedomain.KeyUsageQuota, subdomain.UsageQuota{
		Summaries: 5, LastReset: lastReset,
	}))

	d, err := uc.CanUse(s.ctx, "u1", subdomain.FeatureSummaries)
	s.Require().NoError(err)
	s.False(d.Allowed)
}

func (s *SubscriptionSuite) TestProIsUnlimitedAndIncrementIsNoop() {
	s.Require().NoError(s.uc.Upgrade(s.ctx, "u1", "RCP123"))

	pro, err := s.uc.IsPro(s.ctx, "u1")
	s.Require().NoError(err)
	s.True(pro)

	s.Require().NoError(s.uc.IncrementUsage(s.ctx, "u1", subdomain.FeatureSearches))
	d, err := s.uc.CanUse(s.ctx, "u1", subdomain.FeatureSearches)
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal(subdomain.Unlimited, d.Limit)

	stored, err := s.repo.FindByUserID(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(subdomain.TierPro, stored.Tier)
	s.Equal("RCP123", *stored.PurchaseRef)
}

func (s *SubscriptionSuite) TestTrialStartsOnceAndExpiresLazily() {
	status, err := s.uc.Sync(s.ctx, "u1", true)
	s.Require().NoError(err)
	s.Equal(subdomain.TierTrial, status.Tier)
	s.Require().NotNil(status.TrialExpiresAt)

	d, err := s.uc.CanUse(s.ctx, "u1", subdomain.FeatureSummaries)
	s.Require().NoError(err)
	s.Equal(subdomain.Unlimited, d.Limit)

	s.now = s.now.Add(8 * 24 * time.Hour)
	status, err = s.uc.Status(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(subdomain.TierFree, status.Tier)

	d, err = s.uc.CanUse(s.ctx, "u1", subdomain.FeatureSummaries)
	s.Require().NoError(err)
	s.Equal(5, d.Limit)

	status, err = s.uc.Sync(s.ctx, "u1", true)
	s.Require().NoError(err)
	s.Equal(subdomain.TierFree, status.Tier)
	s.True(status.TrialUsed)
}

func (s *SubscriptionSuite) TestStatusPullsBackendRecord() {
	s.Require().NoError(s.repo.Save(s.ctx, &subdomain.Subscription{UserID: "u2", Tier: subdomain.TierPro}))

	status, err := s.uc.Status(s.ctx, "u2")
	s.Require().NoError(err)
	s.Equal(subdomain.TierPro, status.Tier)
	s.Equal(subdomain.Unlimited, status.Limits[subdomain.FeatureReplies])
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	aidomain "fileflow-backend/internal/ai/domain"
	"fileflow-backend/internal/ai/repository"
	"fileflow-backend/internal/files/classifier"
	filesdomain "fileflow-backend/internal/files/domain"
	filesrepo "fileflow-backend/internal/files/repository"
	subdomain "fileflow-backend/internal/subscription/domain"
	"fileflow-backend/pkg/ai"
	"fileflow-backend/pkg/database"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// scriptedProvider answers from a fixed reply or error and counts calls.
type scriptedProvider struct {
	name   string
	reply  string
	err    error
	chunks []string

	mu    sync.Mutex
	calls int
}

func (p *scriptedProvider) hit() {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(ctx context.Context, prompt string, opts ai.Options) (string, error) {
	p.hit()
	return p.reply, p.err
}

func (p *scriptedProvider) Stream(ctx context.Context, prompt string, opts ai.Options, onChunk func(string) error) error {
	p.hit()
	if p.err != nil {
		return p.err
	}
	for _, c := range p.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return nil
}

type mockGate struct {
	mock.Mock
}

func (m *mockGate) CanUse(ctx context.Context, userID string, f subdomain.Feature) (*subdomain.Decision, error) {
	args := m.Called(ctx, userID, f)
	d, _ := args.Get(0).(*subdomain.Decision)
	return d, args.Error(1)
}

func (m *mockGate) IncrementUsage(ctx context.Context, userID string, f subdomain.Feature) error {
	return m.Called(ctx, userID, f).Error(0)
}

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) SearchFiles(ctx context.Context, userID, query string, limit int) ([]string, error) {
	args := m.Called(ctx, userID, query, limit)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type AIUsecaseSuite struct {
	suite.Suite
	ctx       context.Context
	cache     repository.CacheRepository
	files     filesrepo.FileRepository
	primary   *scriptedProvider
	secondary *scriptedProvider
}

func TestAIUsecaseSuite(t *testing.T) {
	suite.Run(t, new(AIUsecaseSuite))
}

func (s *AIUsecaseSuite) SetupTest() {
	db, err := database.NewSQLiteConnection(":memory:")
	s.Require().NoError(err)
	s.Require().NoError(db.AutoMigrate(&aidomain.CacheEntry{}, &filesdomain.ProcessedFile{}))

	s.ctx = context.Background()
	s.cache = repository.NewCacheRepository(db, nil)
	s.files = filesrepo.NewFileRepository(db)
	s.primary = &scriptedProvider{name: "gemini/x"}
	s.secondary = &scriptedProvider{name: "huggingface/y"}
}

func (s *AIUsecaseSuite) usecase(gate subdomain.Gate, index aidomain.FileIndex) AIUsecase {
	cascade := ai.NewCascade(time.Second, s.primary, s.secondary)
	return NewAIUsecase(cascade, s.cache, gate, s.files, index)
}

func email(id string) aidomain.EmailContent {
	return aidomain.EmailContent{ResourceID: id, Subject: "Invoice", From: "billing@acme.com", Body: "Please pay by Friday."}
}

func (s *AIUsecaseSuite) TestSecondaryResultReturnedVerbatim() {
	s.primary.err = errors.New("429 RESOURCE_EXHAUSTED")
	s.secondary.reply = "Acme asks for payment by Friday."

	res, err := s.usecase(nil, nil).Summarize(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.Equal("Acme asks for payment by Friday.", res.Summary)
	s.Equal("huggingface/y", res.Provider)
	s.False(res.Fallback)
}

func (s *AIUsecaseSuite) TestUnparseableAnswerFallsThroughToSecondary() {
	s.primary.reply = "Sure! Here are some replies..."
	s.secondary.reply = `{"replies":["A","B","C"]}`

	res, err := s.usecase(nil, nil).GenerateReplies(s.ctx, "", email("m1"), 3)
	s.Require().NoError(err)
	s.Equal([]string{"A", "B", "C"}, res.Replies)
	s.Equal("huggingface/y", res.Provider)
	s.False(res.Fallback)
	s.Equal(1, s.primary.calls)
	s.Equal(1, s.secondary.calls)
}

func (s *AIUsecaseSuite) TestUnparseableIntentAndItemsFallThrough() {
	s.primary.reply = "I think this is about a meeting."
	s.secondary.reply = `{"type": "MEETING", "confidence": 0.8, "details": "", "items": [{"task": "Confirm slot", "priority": "low"}]}`
	uc := s.usecase(nil, nil)

	intent, err := uc.DetectIntent(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.Equal(aidomain.IntentMeeting, intent.Type)
	s.False(intent.Fallback)

	actions, err := uc.ExtractActionItems(s.ctx, "", email("m2"))
	s.Require().NoError(err)
	s.Require().Len(actions.Items, 1)
	s.Equal("Confirm slot", actions.Items[0].Task)
}

func (s *AIUsecaseSuite) TestCacheIsScopedPerUser() {
	s.primary.reply = "Alice's summary."
	uc := s.usecase(nil, nil)

	first, err := uc.Summarize(s.ctx, "alice", email("m1"))
	s.Require().NoError(err)
	s.False(first.Cached)

	s.primary.reply = "Mallory's summary."
	other, err := uc.Summarize(s.ctx, "mallory", email("m1"))
	s.Require().NoError(err)
	s.False(other.Cached)
	s.Equal("Mallory's summary.", other.Summary)

	again, err := uc.Summarize(s.ctx, "alice", email("m1"))
	s.Require().NoError(err)
	s.True(again.Cached)
	s.Equal("Alice's summary.", again.Summary)
	s.Equal(2, s.primary.calls)
}

func (s *AIUsecaseSuite) TestDefaultsWhenEveryProviderFails() {
	s.primary.err = errors.New("down")
	s.secondary.err = errors.New("down")
	uc := s.usecase(nil, nil)

	summary, err := uc.Summarize(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.Equal("This email contains information that may require your attention.", summary.Summary)
	s.True(summary.Fallback)

	replies, err := uc.GenerateReplies(s.ctx, "", email("m1"), 0)
	s.Require().NoError(err)
	s.Equal([]string{
		"Thanks for your email. I'll get back to you soon.",
		"Got it, thank you!",
		"Could you share more details?",
	}, replies.Replies)

	actions, err := uc.ExtractActionItems(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.Equal("No specific action items detected", actions.Checklist)
	s.Empty(actions.Items)

	intent, err := uc.DetectIntent(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.Equal(aidomain.DefaultIntent(), intent.Intent)
}

func (s *AIUsecaseSuite) TestDefaultsAreNotCached() {
	s.primary.err = errors.New("down")
	s.secondary.err = errors.New("down")
	uc := s.usecase(nil, nil)

	_, _ = uc.Summarize(s.ctx, "", email("m1"))
	s.primary.err = nil
	s.primary.reply = "Real summary."

	res, err := uc.Summarize(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.Equal("Real summary.", res.Summary)
	s.False(res.Cached)
}

func (s *AIUsecaseSuite) TestCacheShortCircuitsProviders() {
	s.primary.reply = "Cached summary."
	uc := s.usecase(nil, nil)

	first, err := uc.Summarize(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.False(first.Cached)

	second, err := uc.Summarize(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.True(second.Cached)
	s.Equal("Cached summary.", second.Summary)
	s.Equal(1, s.primary.calls)
	s.Equal(0, s.secondary.calls)
}

func (s *AIUsecaseSuite) TestRepliesCacheKeyIncludesCount() {
	s.primary.reply = `{"replies": [" Sure ", "", "Will do", "Thanks", "Noted", "Ok"]}`
	uc := s.usecase(nil, nil)

	three, err := uc.GenerateReplies(s.ctx, "", email("m1"), 3)
	s.Require().NoError(err)
	s.Equal([]string{"Sure", "Will do", "Thanks"}, three.Replies)

	five, err := uc.GenerateReplies(s.ctx, "", email("m1"), 5)
	s.Require().NoError(err)
	s.Len(five.Replies, 5)
	s.False(five.Cached)
	s.Equal(2, s.primary.calls)

	again, err := uc.GenerateReplies(s.ctx, "", email("m1"), 3)
	s.Require().NoError(err)
	s.True(again.Cached)
}

func (s *AIUsecaseSuite) TestRepliesPaddedToCount() {
	s.primary.reply = "```json\n{\"replies\": [\"Sounds good\"]}\n```"

	res, err := s.usecase(nil, nil).GenerateReplies(s.ctx, "", email("m2"), 3)
	s.Require().NoError(err)
	s.Equal([]string{"Sounds good", "Thanks for your email. I'll get back to you soon.", "Got it, thank you!"}, res.Replies)
}

func (s *AIUsecaseSuite) TestActionItemsParsed() {
	s.primary.reply = `{"items": [{"task": "Pay invoice", "priority": "high", "due_date": "2026-05-08"}, {"task": " ", "priority": "low"}, {"task": "Reply to Bob", "priority": "whatever", "due_date": null}]}`

	res, err := s.usecase(nil, nil).ExtractActionItems(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.Require().Len(res.Items, 2)
	s.Equal(aidomain.PriorityHigh, res.Items[0].Priority)
	s.Equal("2026-05-08", *res.Items[0].DueDate)
	s.Equal(aidomain.PriorityMedium, res.Items[1].Priority)
	s.Nil(res.Items[1].DueDate)
	s.Equal("- [ ] Pay invoice (High) due 2026-05-08\n- [ ] Reply to Bob (Medium)", res.Checklist)
}

func (s *AIUsecaseSuite) TestIntentNormalised() {
	s.primary.reply = `{"type": "meeting", "confidence": 1.7, "details": " Thursday 2pm "}`

	res, err := s.usecase(nil, nil).DetectIntent(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.Equal(aidomain.IntentMeeting, res.Type)
	s.Equal(1.0, res.Confidence)
	s.Equal("Thursday 2pm", res.Details)
}

func (s *AIUsecaseSuite) TestQuotaDeniedSkipsProviders() {
	gate := new(mockGate)
	gate.On("CanUse", mock.Anything, "u1", subdomain.FeatureSummaries).
		Return(&subdomain.Decision{Allowed: false, Remaining: 0, Limit: 5}, nil)

	_, err := s.usecase(gate, nil).Summarize(s.ctx, "u1", email("m1"))
	var quotaErr *subdomain.QuotaExceededError
	s.Require().ErrorAs(err, &quotaErr)
	s.ErrorIs(err, subdomain.ErrQuotaExceeded)
	s.Equal(5, quotaErr.Decision.Limit)
	s.Equal(0, s.primary.calls)
}

func (s *AIUsecaseSuite) TestQuotaIncrementedOnlyForRealResults() {
	gate := new(mockGate)
	gate.On("CanUse", mock.Anything, "u1", mock.Anything).Return(&subdomain.Decision{Allowed: true, Remaining: 5, Limit: 5}, nil)
	gate.On("IncrementUsage", mock.Anything, "u1", subdomain.FeatureReplies).Return(nil).Once()
	uc := s.usecase(gate, nil)

	s.primary.reply = `{"replies": ["a", "b", "c"]}`
	_, err := uc.GenerateReplies(s.ctx, "u1", email("m1"), 3)
	s.Require().NoError(err)

	s.primary.err = errors.New("down")
	s.secondary.err = errors.New("down")
	_, err = uc.GenerateReplies(s.ctx, "u1", email("m9"), 3)
	s.Require().NoError(err)

	gate.AssertExpectations(s.T())
	gate.AssertNumberOfCalls(s.T(), "IncrementUsage", 1)
}

func (s *AIUsecaseSuite) TestStreamSummaryFallsBackToDefaultChunk() {
	s.primary.err = errors.New("down")
	s.secondary.err = errors.New("down")

	var chunks []string
	err := s.usecase(nil, nil).StreamSummary(s.ctx, "", email("m1"), func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	s.Require().NoError(err)
	s.Equal([]string{aidomain.DefaultSummary}, chunks)
}

func (s *AIUsecaseSuite) TestStreamSummaryCachesCompletedStream() {
	s.primary.chunks = []string{"Pay ", "by Friday."}
	uc := s.usecase(nil, nil)

	var sb strings.Builder
	s.Require().NoError(uc.StreamSummary(s.ctx, "", email("m1"), func(c string) error {
		sb.WriteString(c)
		return nil
	}))
	s.Equal("Pay by Friday.", sb.String())

	res, err := uc.Summarize(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.True(res.Cached)
	s.Equal("Pay by Friday.", res.Summary)
}

func (s *AIUsecaseSuite) TestClassifyAttachment() {
	s.primary.reply = `{"category": "Legal", "confidence": 0.92}`

	cat, conf, err := s.usecase(nil, nil).ClassifyAttachment(s.ctx, classifier.Input{Filename: "nda.pdf"})
	s.Require().NoError(err)
	s.Equal(filesdomain.CategoryLegal, cat)
	s.InDelta(0.92, conf, 1e-9)
}

func (s *AIUsecaseSuite) TestClassifyWithoutProvidersErrors() {
	uc := NewAIUsecase(ai.NewCascade(time.Second), s.cache, nil, s.files, nil)
	_, _, err := uc.ClassifyAttachment(s.ctx, classifier.Input{Filename: "nda.pdf"})
	s.ErrorIs(err, ai.ErrNoProvider)
}

func (s *AIUsecaseSuite) seedFiles() (*filesdomain.ProcessedFile, *filesdomain.ProcessedFile) {
	a := &filesdomain.ProcessedFile{UserID: "u1", MessageID: "m1", Filename: "Invoice_March.pdf", Subject: "Payment due", Category: filesdomain.CategoryFinance, UploadedAt: time.Now()}
	b := &filesdomain.ProcessedFile{UserID: "u1", MessageID: "m2", Filename: "NDA_signed.pdf", Subject: "Contract", Category: filesdomain.CategoryLegal, UploadedAt: time.Now()}
	s.Require().NoError(s.files.Save(s.ctx, a))
	s.Require().NoError(s.files.Save(s.ctx, b))
	return a, b
}

func (s *AIUsecaseSuite) TestSearchSemantic() {
	_, b := s.seedFiles()
	index := new(mockIndex)
	index.On("SearchFiles", mock.Anything, "u1", "confidentiality", 20).Return([]string{b.ID, "unknown"}, nil)

	res, err := s.usecase(nil, index).Search(s.ctx, "u1", "confidentiality", 0)
	s.Require().NoError(err)
	s.Equal("semantic", res.Mode)
	s.Require().Len(res.Hits, 1)
	s.Equal("NDA_signed.pdf", res.Hits[0].Filename)
}

func (s *AIUsecaseSuite) TestSearchFallsBackToKeyword() {
	a, _ := s.seedFiles()
	index := new(mockIndex)
	index.On("SearchFiles", mock.Anything, "u1", "invoce", 20).Return(nil, errors.New("chroma down"))

	res, err := s.usecase(nil, index).Search(s.ctx, "u1", "invoce", 0)
	s.Require().NoError(err)
	s.Equal("keyword", res.Mode)
	s.Require().Len(res.Hits, 1)
	s.Equal(a.ID, res.Hits[0].FileID)
}

func (s *AIUsecaseSuite) TestAnalyzeProgressiveOrderAndCache() {
	s.primary.reply = `{"replies": ["a", "b", "c"], "items": [], "type": "INFO", "confidence": 0.5, "details": ""}`
	uc := s.usecase(nil, nil)

	var events []string
	emit := func(event string, data interface{}) error {
		events = append(events, event)
		return nil
	}
	s.Require().NoError(uc.AnalyzeProgressive(s.ctx, "", email("m1"), emit))
	s.Equal([]string{"progress", "summary", "replies", "actionItems", "intent", "complete"}, events)
	calls := s.primary.calls

	events = nil
	var complete interface{}
	s.Require().NoError(uc.AnalyzeProgressive(s.ctx, "", email("m1"), func(event string, data interface{}) error {
		events = append(events, event)
		if event == "complete" {
			complete = data
		}
		return nil
	}))
	s.Equal([]string{"summary", "replies", "actionItems", "intent", "complete"}, events)
	s.Equal(map[string]interface{}{"cached": true}, complete)
	s.Equal(calls, s.primary.calls)
}

func (s *AIUsecaseSuite) TestAnalyzeCachesOnlyCompleteResults() {
	s.primary.reply = `{"replies": ["a", "b", "c"], "items": [{"task": "Pay", "priority": "High"}], "type": "INVOICE", "confidence": 0.9, "details": "$40"}`
	uc := s.usecase(nil, nil)

	res, err := uc.Analyze(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.False(res.Cached)
	s.Equal([]string{"a", "b", "c"}, res.Replies)
	s.Equal(aidomain.IntentInvoice, res.Intent.Type)
	s.Len(res.ActionItems, 1)

	again, err := uc.Analyze(s.ctx, "", email("m1"))
	s.Require().NoError(err)
	s.True(again.Cached)
}

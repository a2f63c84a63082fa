package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	aidomain "fileflow-backend/internal/ai/domain"
	"fileflow-backend/internal/ai/repository"
	"fileflow-backend/internal/files/classifier"
	filesdomain "fileflow-backend/internal/files/domain"
	filesrepo "fileflow-backend/internal/files/repository"
	subdomain "fileflow-backend/internal/subscription/domain"
	"fileflow-backend/pkg/ai"
	"fileflow-backend/pkg/fuzzy"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Completer is the provider cascade.
type Completer interface {
	Enabled() bool
	Complete(ctx context.Context, prompt string, opts ai.Options) (string, string, error)
	Stream(ctx context.Context, prompt string, opts ai.Options, onChunk func(string) error) (string, error)
}

// EmitFunc sends one server-sent event.
type EmitFunc func(event string, data interface{}) error

type AIUsecase interface {
	Summarize(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.SummaryResult, error)
	StreamSummary(ctx context.Context, userID string, in aidomain.EmailContent, onChunk func(string) error) error
	GenerateReplies(ctx context.Context, userID string, in aidomain.EmailContent, count int) (*aidomain.RepliesResult, error)
	ExtractActionItems(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.ActionItemsResult, error)
	StreamActionItems(ctx context.Context, userID string, in aidomain.EmailContent, onChunk func(string) error) error
	DetectIntent(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.IntentResult, error)
	ClassifyAttachment(ctx context.Context, in classifier.Input) (filesdomain.Category, float64, error)
	Recap(ctx context.Context, userID string, emails []aidomain.RecapEmail) (*aidomain.RecapResult, error)
	Chat(ctx context.Context, userID string, req aidomain.ChatRequest) (*aidomain.ChatResult, error)
	Search(ctx context.Context, userID, query string, limit int) (*aidomain.SearchResult, error)
	Analyze(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.AnalysisResult, error)
	AnalyzeProgressive(ctx context.Context, userID string, in aidomain.EmailContent, emit EmitFunc) error
}

type aiUsecase struct {
	cascade Completer
	cache   repository.CacheRepository
	quota   subdomain.Gate
	files   filesrepo.FileRepository
	index   aidomain.FileIndex
}

// NewAIUsecase wires the orchestration layer. quota and index may be nil.
func NewAIUsecase(cascade Completer, cache repository.CacheRepository, quota subdomain.Gate, files filesrepo.FileRepository, index aidomain.FileIndex) AIUsecase {
	return &aiUsecase{cascade: cascade, cache: cache, quota: quota, files: files, index: index}
}

func (u *aiUsecase) checkQuota(ctx context.Context, userID string, feature subdomain.Feature) error {
	if u.quota == nil || userID == "" {
		return nil
	}
	d, err := u.quota.CanUse(ctx, userID, feature)
	if err != nil {
		return fmt.Errorf("failed to check quota: %w", err)
	}
	if !d.Allowed {
		return &subdomain.QuotaExceededError{Feature: feature, Decision: *d}
	}
	return nil
}

func (u *aiUsecase) consume(ctx context.Context, userID string, feature subdomain.Feature) {
	if u.quota == nil || userID == "" {
		return
	}
	if err := u.quota.IncrementUsage(ctx, userID, feature); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("feature", string(feature)).Msg("[AI] Failed to record usage")
	}
}

var (
	errNoReplies  = errors.New("no replies in answer")
	errNoCategory = errors.New("no category in answer")
	errBlank      = errors.New("blank answer")
)

func nonEmpty(text string) error {
	if strings.TrimSpace(text) == "" {
		return errBlank
	}
	return nil
}

func paramsKey(params map[string]interface{}) string {
	if len(params) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(params)
	return string(b)
}

func (u *aiUsecase) lookup(ctx context.Context, userID, resourceID string, t aidomain.ResultType, params string, dest interface{}) (string, bool) {
	if u.cache == nil || resourceID == "" {
		return "", false
	}
	entry, err := u.cache.Get(ctx, userID, resourceID, t, params)
	if err != nil {
		log.Warn().Err(err).Str("resource_id", resourceID).Str("type", string(t)).Msg("[AI] Cache read failed")
		return "", false
	}
	if entry == nil {
		return "", false
	}
	if err := json.Unmarshal([]byte(entry.Payload), dest); err != nil {
		log.Warn().Err(err).Str("resource_id", resourceID).Msg("[AI] Corrupt cache entry ignored")
		return "", false
	}
	return entry.Provider, true
}

func (u *aiUsecase) store(ctx context.Context, userID, resourceID string, t aidomain.ResultType, params, provider string, value interface{}) {
	if u.cache == nil || resourceID == "" {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	entry := &aidomain.CacheEntry{UserID: userID, ResourceID: resourceID, Type: t, Params: params, Provider: provider, Payload: string(b)}
	if err := u.cache.Put(ctx, entry); err != nil {
		log.Warn().Err(err).Str("resource_id", resourceID).Str("type", string(t)).Msg("[AI] Cache write failed")
	}
}

func (u *aiUsecase) complete(ctx context.Context, op, prompt string, opts ai.Options) (string, string, error) {
	if u.cascade == nil || !u.cascade.Enabled() {
		return "", "", ai.ErrNoProvider
	}
	text, provider, err := u.cascade.Complete(ctx, prompt, opts)
	if err != nil {
		log.Warn().Err(err).Str("op", op).Msg("[AI] Cascade failed, returning default")
		return "", "", err
	}
	return text, provider, nil
}

// stream forwards chunks and, when the cascade cannot finish, ends with a single
// fallback chunk. It returns the full text and provider only on a clean finish.
func (u *aiUsecase) stream(ctx context.Context, op, prompt, fallback string, onChunk func(string) error) (string, string, error) {
	if u.cascade == nil || !u.cascade.Enabled() {
		return "", "", onChunk(fallback)
	}
	var sb strings.Builder
	provider, err := u.cascade.Stream(ctx, prompt, ai.Options{}, func(chunk string) error {
		sb.WriteString(chunk)
		return onChunk(chunk)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		log.Warn().Err(err).Str("op", op).Msg("[AI] Stream failed, sending default")
		if errors.Is(err, ai.ErrPartialStream) {
			fallback = "\n\n" + fallback
		}
		return "", "", onChunk(fallback)
	}
	return sb.String(), provider, nil
}

func (u *aiUsecase) generateSummary(ctx context.Context, userID string, in aidomain.EmailContent) *aidomain.SummaryResult {
	text, provider, err := u.complete(ctx, "summary", summaryPrompt(in), ai.Options{MaxTokens: 256, Validate: nonEmpty})
	if err != nil {
		return &aidomain.SummaryResult{Summary: aidomain.DefaultSummary, Meta: aidomain.Meta{Fallback: true}}
	}
	summary := strings.TrimSpace(text)
	u.store(ctx, userID, in.ResourceID, aidomain.TypeSummary, "{}", provider, summary)
	return &aidomain.SummaryResult{Summary: summary, Meta: aidomain.Meta{Provider: provider}}
}

func (u *aiUsecase) Summarize(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.SummaryResult, error) {
	var cached string
	if provider, ok := u.lookup(ctx, userID, in.ResourceID, aidomain.TypeSummary, "{}", &cached); ok {
		return &aidomain.SummaryResult{Summary: cached, Meta: aidomain.Meta{Provider: provider, Cached: true}}, nil
	}
	if err := u.checkQuota(ctx, userID, subdomain.FeatureSummaries); err != nil {
		return nil, err
	}
	res := u.generateSummary(ctx, userID, in)
	if !res.Fallback {
		u.consume(ctx, userID, subdomain.FeatureSummaries)
	}
	return res, nil
}

func (u *aiUsecase) StreamSummary(ctx context.Context, userID string, in aidomain.EmailContent, onChunk func(string) error) error {
	var cached string
	if _, ok := u.lookup(ctx, userID, in.ResourceID, aidomain.TypeSummary, "{}", &cached); ok {
		return onChunk(cached)
	}
	if err := u.checkQuota(ctx, userID, subdomain.FeatureSummaries); err != nil {
		return err
	}
	full, provider, err := u.stream(ctx, "summary", summaryPrompt(in), aidomain.DefaultSummary, onChunk)
	if err != nil || full == "" {
		return err
	}
	u.store(ctx, userID, in.ResourceID, aidomain.TypeSummary, "{}", provider, strings.TrimSpace(full))
	u.consume(ctx, userID, subdomain.FeatureSummaries)
	return nil
}

// normalizeReplies keeps count trimmed non-empty replies, padding from the
// defaults when the provider returned fewer.
func normalizeReplies(replies []string, count int) []string {
	out := make([]string, 0, count)
	seen := make(map[string]bool)
	for _, r := range replies {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
		if len(out) == count {
			return out
		}
	}
	for _, r := range aidomain.DefaultReplies() {
		if len(out) == count {
			break
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func hasText(list []string) bool {
	for _, s := range list {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

func defaultReplies(count int) []string {
	d := aidomain.DefaultReplies()
	if count < len(d) {
		return d[:count]
	}
	return d
}

func (u *aiUsecase) generateReplies(ctx context.Context, userID string, in aidomain.EmailContent, count int) *aidomain.RepliesResult {
	var parsed struct {
		Replies []string `json:"replies"`
	}
	validate := func(text string) error {
		parsed.Replies = nil
		if err := ai.DecodeJSON(text, &parsed); err != nil {
			return err
		}
		if !hasText(parsed.Replies) {
			return errNoReplies
		}
		return nil
	}
	_, provider, err := u.complete(ctx, "replies", repliesPrompt(in, count), ai.Options{JSON: true, MaxTokens: 512, Validate: validate})
	if err == nil {
		replies := normalizeReplies(parsed.Replies, count)
		u.store(ctx, userID, in.ResourceID, aidomain.TypeReplies, repliesParams(count), provider, replies)
		return &aidomain.RepliesResult{Replies: replies, Meta: aidomain.Meta{Provider: provider}}
	}
	return &aidomain.RepliesResult{Replies: defaultReplies(count), Meta: aidomain.Meta{Fallback: true}}
}

func repliesParams(count int) string {
	if count == aidomain.DefaultReplyCount {
		return "{}"
	}
	return paramsKey(map[string]interface{}{"count": count})
}

func (u *aiUsecase) GenerateReplies(ctx context.Context, userID string, in aidomain.EmailContent, count int) (*aidomain.RepliesResult, error) {
	if count <= 0 {
		count = aidomain.DefaultReplyCount
	}
	var cached []string
	if provider, ok := u.lookup(ctx, userID, in.ResourceID, aidomain.TypeReplies, repliesParams(count), &cached); ok {
		return &aidomain.RepliesResult{Replies: cached, Meta: aidomain.Meta{Provider: provider, Cached: true}}, nil
	}
	if err := u.checkQuota(ctx, userID, subdomain.FeatureReplies); err != nil {
		return nil, err
	}
	res := u.generateReplies(ctx, userID, in, count)
	if !res.Fallback {
		u.consume(ctx, userID, subdomain.FeatureReplies)
	}
	return res, nil
}

func parsePriority(s string) aidomain.Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return aidomain.PriorityHigh
	case "low":
		return aidomain.PriorityLow
	default:
		return aidomain.PriorityMedium
	}
}

// Checklist renders items as Markdown checkboxes.
func Checklist(items []aidomain.ActionItem) string {
	if len(items) == 0 {
		return aidomain.DefaultActionItems
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		line := fmt.Sprintf("- [ ] %s (%s)", it.Task, it.Priority)
		if it.DueDate != nil {
			line += " due " + *it.DueDate
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (u *aiUsecase) generateActionItems(ctx context.Context, userID string, in aidomain.EmailContent) *aidomain.ActionItemsResult {
	var parsed struct {
		Items []struct {
			Task     string  `json:"task"`
			Priority string  `json:"priority"`
			DueDate  *string `json:"due_date"`
		} `json:"items"`
	}
	validate := func(text string) error {
		parsed.Items = nil
		return ai.DecodeJSON(text, &parsed)
	}
	_, provider, err := u.complete(ctx, "action_items", actionItemsPrompt(in), ai.Options{JSON: true, MaxTokens: 512, Validate: validate})
	if err != nil {
		return &aidomain.ActionItemsResult{Items: []aidomain.ActionItem{}, Checklist: aidomain.DefaultActionItems, Meta: aidomain.Meta{Fallback: true}}
	}

	items := make([]aidomain.ActionItem, 0, len(parsed.Items))
	for _, raw := range parsed.Items {
		task := strings.TrimSpace(raw.Task)
		if task == "" {
			continue
		}
		item := aidomain.ActionItem{Task: task, Priority: parsePriority(raw.Priority)}
		if raw.DueDate != nil && strings.TrimSpace(*raw.DueDate) != "" && !strings.EqualFold(*raw.DueDate, "null") {
			due := strings.TrimSpace(*raw.DueDate)
			item.DueDate = &due
		}
		items = append(items, item)
	}
	res := &aidomain.ActionItemsResult{Items: items, Checklist: Checklist(items), Meta: aidomain.Meta{Provider: provider}}
	u.store(ctx, userID, in.ResourceID, aidomain.TypeActionItems, "{}", provider, res.Items)
	return res
}

func (u *aiUsecase) ExtractActionItems(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.ActionItemsResult, error) {
	var cached []aidomain.ActionItem
	if provider, ok := u.lookup(ctx, userID, in.ResourceID, aidomain.TypeActionItems, "{}", &cached); ok {
		return &aidomain.ActionItemsResult{Items: cached, Checklist: Checklist(cached), Meta: aidomain.Meta{Provider: provider, Cached: true}}, nil
	}
	return u.generateActionItems(ctx, userID, in), nil
}

func (u *aiUsecase) StreamActionItems(ctx context.Context, userID string, in aidomain.EmailContent, onChunk func(string) error) error {
	var cached []aidomain.ActionItem
	if _, ok := u.lookup(ctx, userID, in.ResourceID, aidomain.TypeActionItems, "{}", &cached); ok {
		return onChunk(Checklist(cached))
	}
	_, _, err := u.stream(ctx, "action_items", actionChecklistPrompt(in), aidomain.DefaultActionItems, onChunk)
	return err
}

func normalizeIntent(raw aidomain.Intent) aidomain.Intent {
	t := aidomain.IntentType(strings.ToUpper(strings.TrimSpace(string(raw.Type))))
	switch t {
	case aidomain.IntentInvoice, aidomain.IntentMeeting, aidomain.IntentContract, aidomain.IntentInfo:
	default:
		t = aidomain.IntentInfo
	}
	conf := raw.Confidence
	if math.IsNaN(conf) || conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return aidomain.Intent{Type: t, Confidence: conf, Details: strings.TrimSpace(raw.Details)}
}

func (u *aiUsecase) generateIntent(ctx context.Context, userID string, in aidomain.EmailContent) *aidomain.IntentResult {
	var raw aidomain.Intent
	validate := func(text string) error {
		raw = aidomain.Intent{}
		return ai.DecodeJSON(text, &raw)
	}
	_, provider, err := u.complete(ctx, "intent", intentPrompt(in), ai.Options{JSON: true, MaxTokens: 256, Validate: validate})
	if err == nil {
		intent := normalizeIntent(raw)
		u.store(ctx, userID, in.ResourceID, aidomain.TypeIntent, "{}", provider, intent)
		return &aidomain.IntentResult{Intent: intent, Meta: aidomain.Meta{Provider: provider}}
	}
	return &aidomain.IntentResult{Intent: aidomain.DefaultIntent(), Meta: aidomain.Meta{Fallback: true}}
}

func (u *aiUsecase) DetectIntent(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.IntentResult, error) {
	var cached aidomain.Intent
	if provider, ok := u.lookup(ctx, userID, in.ResourceID, aidomain.TypeIntent, "{}", &cached); ok {
		return &aidomain.IntentResult{Intent: cached, Meta: aidomain.Meta{Provider: provider, Cached: true}}, nil
	}
	return u.generateIntent(ctx, userID, in), nil
}

func (u *aiUsecase) ClassifyAttachment(ctx context.Context, in classifier.Input) (filesdomain.Category, float64, error) {
	if u.cascade == nil || !u.cascade.Enabled() {
		return "", 0, ai.ErrNoProvider
	}
	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	validate := func(text string) error {
		parsed.Category, parsed.Confidence = "", 0
		if err := ai.DecodeJSON(text, &parsed); err != nil {
			return err
		}
		if strings.TrimSpace(parsed.Category) == "" {
			return errNoCategory
		}
		return nil
	}
	if _, _, err := u.cascade.Complete(ctx, classifyPrompt(in), ai.Options{JSON: true, MaxTokens: 64, Validate: validate}); err != nil {
		return "", 0, err
	}
	return filesdomain.Category(parsed.Category), parsed.Confidence, nil
}

func (u *aiUsecase) Recap(ctx context.Context, userID string, emails []aidomain.RecapEmail) (*aidomain.RecapResult, error) {
	if len(emails) == 0 {
		return &aidomain.RecapResult{Recap: "You're all caught up.", Meta: aidomain.Meta{}}, nil
	}
	text, provider, err := u.complete(ctx, "recap", recapPrompt(emails), ai.Options{MaxTokens: 256})
	if err != nil {
		return &aidomain.RecapResult{Recap: aidomain.DefaultRecap, Meta: aidomain.Meta{Fallback: true}}, nil
	}
	return &aidomain.RecapResult{Recap: strings.TrimSpace(text), Meta: aidomain.Meta{Provider: provider}}, nil
}

func (u *aiUsecase) Chat(ctx context.Context, userID string, req aidomain.ChatRequest) (*aidomain.ChatResult, error) {
	text, provider, err := u.complete(ctx, "chat", chatPrompt(req), ai.Options{MaxTokens: 1024})
	if err != nil {
		return &aidomain.ChatResult{Answer: aidomain.DefaultChat, Meta: aidomain.Meta{Fallback: true}}, nil
	}
	return &aidomain.ChatResult{Answer: strings.TrimSpace(text), Meta: aidomain.Meta{Provider: provider}}, nil
}

func hit(f *filesdomain.ProcessedFile, score float64) aidomain.SearchHit {
	return aidomain.SearchHit{
		FileID: f.ID, Filename: f.Filename, Category: string(f.Category),
		Subject: f.Subject, From: f.From, ViewURL: f.ViewURL, Score: score,
	}
}

func (u *aiUsecase) Search(ctx context.Context, userID, query string, limit int) (*aidomain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if limit <= 0 {
		limit = 20
	}
	if err := u.checkQuota(ctx, userID, subdomain.FeatureSearches); err != nil {
		return nil, err
	}

	files, err := u.files.ListByUser(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	byID := make(map[string]*filesdomain.ProcessedFile, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}

	result := &aidomain.SearchResult{Hits: []aidomain.SearchHit{}}
	if u.index != nil {
		ids, err := u.index.SearchFiles(ctx, userID, query, limit)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("[AI] Semantic search failed, using keyword search")
		}
		for rank, id := range ids {
			if f, ok := byID[id]; ok {
				result.Hits = append(result.Hits, hit(f, float64(len(ids)-rank)))
			}
		}
		if len(result.Hits) > 0 {
			result.Mode = "semantic"
			u.consume(ctx, userID, subdomain.FeatureSearches)
			return result, nil
		}
	}

	result.Mode = "keyword"
	for _, f := range files {
		score := fuzzy.Score(query,
			fuzzy.Field{Text: f.Filename, Weight: 100},
			fuzzy.Field{Text: f.Subject, Weight: 80},
			fuzzy.Field{Text: f.From, Weight: 60},
			fuzzy.Field{Text: string(f.Category), Weight: 40},
		)
		if score > 0 {
			result.Hits = append(result.Hits, hit(f, score))
		}
	}
	sort.SliceStable(result.Hits, func(i, j int) bool { return result.Hits[i].Score > result.Hits[j].Score })
	if len(result.Hits) > limit {
		result.Hits = result.Hits[:limit]
	}
	u.consume(ctx, userID, subdomain.FeatureSearches)
	return result, nil
}

func (u *aiUsecase) cachedAnalysis(ctx context.Context, userID, resourceID string) (*aidomain.AnalysisResult, bool) {
	var cached aidomain.Analysis
	provider, ok := u.lookup(ctx, userID, resourceID, aidomain.TypeAnalysis, "{}", &cached)
	if !ok {
		return nil, false
	}
	return &aidomain.AnalysisResult{Analysis: cached, Meta: aidomain.Meta{Provider: provider, Cached: true}}, true
}

func (u *aiUsecase) Analyze(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.AnalysisResult, error) {
	if res, ok := u.cachedAnalysis(ctx, userID, in.ResourceID); ok {
		return res, nil
	}
	if err := u.checkQuota(ctx, userID, subdomain.FeatureSummaries); err != nil {
		return nil, err
	}

	var (
		summary *aidomain.SummaryResult
		replies *aidomain.RepliesResult
		actions *aidomain.ActionItemsResult
		intent  *aidomain.IntentResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { summary = u.generateSummary(gctx, userID, in); return nil })
	g.Go(func() error { replies = u.generateReplies(gctx, userID, in, aidomain.DefaultReplyCount); return nil })
	g.Go(func() error { actions = u.generateActionItems(gctx, userID, in); return nil })
	g.Go(func() error { intent = u.generateIntent(gctx, userID, in); return nil })
	_ = g.Wait()

	return u.finishAnalysis(ctx, userID, in, summary, replies, actions, intent), nil
}

func (u *aiUsecase) finishAnalysis(ctx context.Context, userID string, in aidomain.EmailContent,
	summary *aidomain.SummaryResult, replies *aidomain.RepliesResult, actions *aidomain.ActionItemsResult, intent *aidomain.IntentResult,
) *aidomain.AnalysisResult {
	analysis := aidomain.Analysis{
		Summary:     summary.Summary,
		Replies:     replies.Replies,
		ActionItems: actions.Items,
		Checklist:   actions.Checklist,
		Intent:      intent.Intent,
	}
	fallback := summary.Fallback || replies.Fallback || actions.Fallback || intent.Fallback
	if !fallback {
		u.store(ctx, userID, in.ResourceID, aidomain.TypeAnalysis, "{}", summary.Provider, analysis)
	}
	if !summary.Fallback {
		u.consume(ctx, userID, subdomain.FeatureSummaries)
	}
	return &aidomain.AnalysisResult{Analysis: analysis, Meta: aidomain.Meta{Provider: summary.Provider, Fallback: fallback}}
}

// AnalyzeProgressive emits progress, summary, replies, actionItems, intent and
// complete in that order. A cached analysis is emitted at once.
func (u *aiUsecase) AnalyzeProgressive(ctx context.Context, userID string, in aidomain.EmailContent, emit EmitFunc) error {
	if res, ok := u.cachedAnalysis(ctx, userID, in.ResourceID); ok {
		return emitAll(emit,
			event{"summary", payload{"summary": res.Summary}},
			event{"replies", payload{"replies": res.Replies}},
			event{"actionItems", payload{"items": res.ActionItems, "checklist": res.Checklist}},
			event{"intent", res.Intent},
			event{"complete", payload{"cached": true}},
		)
	}
	if err := u.checkQuota(ctx, userID, subdomain.FeatureSummaries); err != nil {
		return err
	}

	if err := emit("progress", payload{"status": "started", "steps": 4}); err != nil {
		return err
	}
	summary := u.generateSummary(ctx, userID, in)
	if err := emit("summary", payload{"summary": summary.Summary}); err != nil {
		return err
	}
	replies := u.generateReplies(ctx, userID, in, aidomain.DefaultReplyCount)
	if err := emit("replies", payload{"replies": replies.Replies}); err != nil {
		return err
	}
	actions := u.generateActionItems(ctx, userID, in)
	if err := emit("actionItems", payload{"items": actions.Items, "checklist": actions.Checklist}); err != nil {
		return err
	}
	intent := u.generateIntent(ctx, userID, in)
	if err := emit("intent", intent.Intent); err != nil {
		return err
	}

	res := u.finishAnalysis(ctx, userID, in, summary, replies, actions, intent)
	return emit("complete", payload{"cached": false, "fallback": res.Fallback})
}

type payload = map[string]interface{}

type event struct {
	name string
	data interface{}
}

func emitAll(emit EmitFunc, events ...event) error {
	for _, e := range events {
		if err := emit(e.name, e.data); err != nil {
			return err
		}
	}
	return nil
}

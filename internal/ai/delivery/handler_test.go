package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	aidomain "fileflow-backend/internal/ai/domain"
	"fileflow-backend/internal/ai/usecase"
	"fileflow-backend/internal/files/classifier"
	filesdomain "fileflow-backend/internal/files/domain"
	subdomain "fileflow-backend/internal/subscription/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAIUsecase struct {
	mock.Mock
}

func (m *mockAIUsecase) Summarize(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.SummaryResult, error) {
	args := m.Called(ctx, userID, in)
	res, _ := args.Get(0).(*aidomain.SummaryResult)
	return res, args.Error(1)
}

func (m *mockAIUsecase) StreamSummary(ctx context.Context, userID string, in aidomain.EmailContent, onChunk func(string) error) error {
	return m.Called(ctx, userID, in, onChunk).Error(0)
}

func (m *mockAIUsecase) GenerateReplies(ctx context.Context, userID string, in aidomain.EmailContent, count int) (*aidomain.RepliesResult, error) {
	args := m.Called(ctx, userID, in, count)
	res, _ := args.Get(0).(*aidomain.RepliesResult)
	return res, args.Error(1)
}

func (m *mockAIUsecase) ExtractActionItems(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.ActionItemsResult, error) {
	args := m.Called(ctx, userID, in)
	res, _ := args.Get(0).(*aidomain.ActionItemsResult)
	return res, args.Error(1)
}

func (m *mockAIUsecase) StreamActionItems(ctx context.Context, userID string, in aidomain.EmailContent, onChunk func(string) error) error {
	return m.Called(ctx, userID, in, onChunk).Error(0)
}

func (m *mockAIUsecase) DetectIntent(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.IntentResult, error) {
	args := m.Called(ctx, userID, in)
	res, _ := args.Get(0).(*aidomain.IntentResult)
	return res, args.Error(1)
}

func (m *mockAIUsecase) ClassifyAttachment(ctx context.Context, in classifier.Input) (filesdomain.Category, float64, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(filesdomain.Category), args.Get(1).(float64), args.Error(2)
}

func (m *mockAIUsecase) Recap(ctx context.Context, userID string, emails []aidomain.RecapEmail) (*aidomain.RecapResult, error) {
	args := m.Called(ctx, userID, emails)
	res, _ := args.Get(0).(*aidomain.RecapResult)
	return res, args.Error(1)
}

func (m *mockAIUsecase) Chat(ctx context.Context, userID string, req aidomain.ChatRequest) (*aidomain.ChatResult, error) {
	args := m.Called(ctx, userID, req)
	res, _ := args.Get(0).(*aidomain.ChatResult)
	return res, args.Error(1)
}

func (m *mockAIUsecase) Search(ctx context.Context, userID, query string, limit int) (*aidomain.SearchResult, error) {
	args := m.Called(ctx, userID, query, limit)
	res, _ := args.Get(0).(*aidomain.SearchResult)
	return res, args.Error(1)
}

func (m *mockAIUsecase) Analyze(ctx context.Context, userID string, in aidomain.EmailContent) (*aidomain.AnalysisResult, error) {
	args := m.Called(ctx, userID, in)
	res, _ := args.Get(0).(*aidomain.AnalysisResult)
	return res, args.Error(1)
}

func (m *mockAIUsecase) AnalyzeProgressive(ctx context.Context, userID string, in aidomain.EmailContent, emit usecase.EmitFunc) error {
	return m.Called(ctx, userID, in, emit).Error(0)
}

func setupRouter(uc usecase.AIUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAIHandler(uc, classifier.New(nil))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "u1")
		c.Next()
	})
	r.POST("/api/classify", h.Classify)
	r.POST("/api/summary", h.Summary)
	r.POST("/api/replies", h.Replies)
	r.POST("/api/todo", h.Todo)
	r.POST("/api/chat", h.Chat)
	r.POST("/api/analyze/progressive", h.AnalyzeProgressive)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var invoice = aidomain.EmailContent{ResourceID: "m1", Subject: "Invoice", Body: "Pay by Friday."}

func TestClassifyUsesRulesWithoutProvider(t *testing.T) {
	r := setupRouter(new(mockAIUsecase))

	w := postJSON(r, "/api/classify", `{"filename": "Invoice_March.pdf", "subject": "Payment due"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"category": "Finance"}`, w.Body.String())
}

func TestSummaryRequiresBody(t *testing.T) {
	r := setupRouter(new(mockAIUsecase))

	w := postJSON(r, "/api/summary", `{"resource_id": "m1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestSummaryJSON(t *testing.T) {
	uc := new(mockAIUsecase)
	uc.On("Summarize", mock.Anything, "u1", invoice).
		Return(&aidomain.SummaryResult{Summary: "Pay by Friday.", Meta: aidomain.Meta{Provider: "gemini/x"}}, nil)
	r := setupRouter(uc)

	w := postJSON(r, "/api/summary", `{"resource_id": "m1", "subject": "Invoice", "body": "Pay by Friday."}`)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Pay by Friday.", body["summary"])
	assert.Equal(t, false, body["cached"])
	uc.AssertExpectations(t)
}

func TestSummaryStreamsText(t *testing.T) {
	uc := new(mockAIUsecase)
	uc.On("StreamSummary", mock.Anything, "u1", invoice, mock.Anything).
		Run(func(args mock.Arguments) {
			onChunk := args.Get(3).(func(string) error)
			_ = onChunk("Pay ")
			_ = onChunk("by Friday.")
		}).Return(nil)
	r := setupRouter(uc)

	w := postJSON(r, "/api/summary", `{"resource_id": "m1", "subject": "Invoice", "body": "Pay by Friday.", "stream": true}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "Pay by Friday.", w.Body.String())
}

func TestQuotaExceededIsForbidden(t *testing.T) {
	uc := new(mockAIUsecase)
	quotaErr := &subdomain.QuotaExceededError{
		Feature:  subdomain.FeatureReplies,
		Decision: subdomain.Decision{Allowed: false, Remaining: 0, Limit: 5},
	}
	uc.On("GenerateReplies", mock.Anything, "u1", invoice, 2).Return(nil, quotaErr)
	r := setupRouter(uc)

	w := postJSON(r, "/api/replies", `{"resource_id": "m1", "subject": "Invoice", "body": "Pay by Friday.", "count": 2}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, float64(0), body["remaining"])
	assert.Equal(t, float64(5), body["limit"])
}

func TestStreamQuotaErrorBeforeOutputIsJSON(t *testing.T) {
	uc := new(mockAIUsecase)
	uc.On("StreamActionItems", mock.Anything, "u1", invoice, mock.Anything).
		Return(&subdomain.QuotaExceededError{Feature: subdomain.FeatureSummaries, Decision: subdomain.Decision{Limit: 5}})
	r := setupRouter(uc)

	w := postJSON(r, "/api/todo", `{"resource_id": "m1", "subject": "Invoice", "body": "Pay by Friday.", "stream": true}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestChatInlinesMultipartTextFile(t *testing.T) {
	uc := new(mockAIUsecase)
	uc.On("Chat", mock.Anything, "u1", aidomain.ChatRequest{
		Query:    "When is rent due?",
		Context:  "Rent is due on the 5th.",
		FileName: "lease.txt",
	}).Return(&aidomain.ChatResult{Answer: "On the 5th."}, nil)
	r := setupRouter(uc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("query", "When is rent due?"))
	part, err := mw.CreateFormFile("file", "lease.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("Rent is due on the 5th."))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "On the 5th.")
	uc.AssertExpectations(t)
}

func TestChatRequiresQuery(t *testing.T) {
	r := setupRouter(new(mockAIUsecase))

	w := postJSON(r, "/api/chat", `{"context": "something"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeProgressiveWritesEventsInOrder(t *testing.T) {
	uc := new(mockAIUsecase)
	uc.On("AnalyzeProgressive", mock.Anything, "u1", invoice, mock.Anything).
		Run(func(args mock.Arguments) {
			emit := args.Get(3).(usecase.EmitFunc)
			for _, name := range []string{"progress", "summary", "replies", "actionItems", "intent", "complete"} {
				_ = emit(name, gin.H{"step": name})
			}
		}).Return(nil)
	r := setupRouter(uc)

	w := postJSON(r, "/api/analyze/progressive", `{"resource_id": "m1", "subject": "Invoice", "body": "Pay by Friday."}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	last := -1
	for _, name := range []string{"progress", "summary", "replies", "actionItems", "intent", "complete"} {
		idx := strings.Index(body, "event:"+name+"\n")
		require.GreaterOrEqual(t, idx, 0, name)
		assert.Greater(t, idx, last, name)
		last = idx
	}
}

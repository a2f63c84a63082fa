package delivery

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	aidomain "fileflow-backend/internal/ai/domain"
	"fileflow-backend/internal/ai/usecase"
	"fileflow-backend/internal/files/classifier"
	subdomain "fileflow-backend/internal/subscription/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// maxInlineFile bounds how much of an uploaded text file is used as chat context.
const maxInlineFile = 1 << 20

type AIHandler struct {
	aiUsecase  usecase.AIUsecase
	classifier *classifier.Classifier
}

func NewAIHandler(aiUsecase usecase.AIUsecase, classifier *classifier.Classifier) *AIHandler {
	return &AIHandler{aiUsecase: aiUsecase, classifier: classifier}
}

type EmailRequest struct {
	aidomain.EmailContent
	Stream bool `json:"stream"`
}

type RepliesRequest struct {
	aidomain.EmailContent
	Count int `json:"count"`
}

type ClassifyRequest struct {
	Filename string `json:"filename" binding:"required"`
	Subject  string `json:"subject"`
	Snippet  string `json:"snippet"`
	From     string `json:"from"`
}

type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

type RecapRequest struct {
	Emails []aidomain.RecapEmail `json:"emails"`
}

// respondError maps usecase errors to status codes.
func respondError(c *gin.Context, err error) {
	var quotaErr *subdomain.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     quotaErr.Error(),
			"feature":   quotaErr.Feature,
			"allowed":   quotaErr.Decision.Allowed,
			"remaining": quotaErr.Decision.Remaining,
			"limit":     quotaErr.Decision.Limit,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// chunkWriter writes text/plain chunks, committing headers on the first one so an
// error before any output can still be answered as JSON.
type chunkWriter struct {
	c       *gin.Context
	started bool
}

func (w *chunkWriter) write(chunk string) error {
	if !w.started {
		w.started = true
		w.c.Header("Content-Type", "text/plain; charset=utf-8")
		w.c.Header("Cache-Control", "no-cache")
		w.c.Header("X-Accel-Buffering", "no")
		w.c.Status(http.StatusOK)
	}
	if _, err := w.c.Writer.WriteString(chunk); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

func (h *AIHandler) streamText(c *gin.Context, run func(onChunk func(string) error) error) {
	w := &chunkWriter{c: c}
	if err := run(w.write); err != nil {
		if !w.started {
			respondError(c, err)
			return
		}
		log.Warn().Err(err).Str("path", c.FullPath()).Msg("[AI] Stream aborted")
	}
}

// Classify maps an attachment to a category
// POST /api/classify
func (h *AIHandler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	category := h.classifier.Classify(c.Request.Context(), classifier.Input{
		Filename: req.Filename,
		Subject:  req.Subject,
		Snippet:  req.Snippet,
		From:     req.From,
	})
	c.JSON(http.StatusOK, gin.H{"category": category})
}

// Summary returns a summary, or streams it as text when "stream" is set
// POST /api/summary
func (h *AIHandler) Summary(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	userID := c.GetString("userID")

	if req.Stream {
		h.streamText(c, func(onChunk func(string) error) error {
			return h.aiUsecase.StreamSummary(ctx, userID, req.EmailContent, onChunk)
		})
		return
	}

	res, err := h.aiUsecase.Summarize(ctx, userID, req.EmailContent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/replies
func (h *AIHandler) Replies(c *gin.Context) {
	var req RepliesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.aiUsecase.GenerateReplies(c.Request.Context(), c.GetString("userID"), req.EmailContent, req.Count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Todo extracts action items, or streams a checklist when "stream" is set
// POST /api/todo
func (h *AIHandler) Todo(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	userID := c.GetString("userID")

	if req.Stream {
		h.streamText(c, func(onChunk func(string) error) error {
			return h.aiUsecase.StreamActionItems(ctx, userID, req.EmailContent, onChunk)
		})
		return
	}

	res, err := h.aiUsecase.ExtractActionItems(ctx, userID, req.EmailContent)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/intent
func (h *AIHandler) Intent(c *gin.Context) {
	var req aidomain.EmailContent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.aiUsecase.DetectIntent(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Search looks up processed files by meaning, falling back to fuzzy keywords
// POST /api/search
func (h *AIHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.aiUsecase.Search(c.Request.Context(), c.GetString("userID"), req.Query, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/recap
func (h *AIHandler) Recap(c *gin.Context) {
	var req RecapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.aiUsecase.Recap(c.Request.Context(), c.GetString("userID"), req.Emails)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Chat answers a question about a document, sent as JSON context or a multipart file
// POST /api/chat
func (h *AIHandler) Chat(c *gin.Context) {
	var req aidomain.ChatRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		parsed, err := chatFromForm(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req = *parsed
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	if strings.TrimSpace(req.Context) == "" && req.FileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "context or file is required"})
		return
	}

	res, err := h.aiUsecase.Chat(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func chatFromForm(c *gin.Context) (*aidomain.ChatRequest, error) {
	req := &aidomain.ChatRequest{
		Query:   c.PostForm("query"),
		Context: c.PostForm("context"),
	}
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return nil, err
	}

	req.FileName = fh.Filename
	mimeType := fh.Header.Get("Content-Type")
	if !isTextFile(fh.Filename, mimeType) {
		// Binary documents are described, not inlined.
		if req.Context == "" {
			req.Context = "Attached file: " + fh.Filename + " (" + mimeType + ")"
		}
		return req, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxInlineFile))
	if err != nil {
		return nil, err
	}
	if req.Context != "" {
		req.Context += "\n\n"
	}
	req.Context += string(data)
	return req, nil
}

func isTextFile(name, mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") || mimeType == "application/json" {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".csv", ".json", ".log":
		return true
	}
	return false
}

// POST /api/analyze
func (h *AIHandler) Analyze(c *gin.Context) {
	var req aidomain.EmailContent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.aiUsecase.Analyze(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AnalyzeProgressive streams each analysis part as a server-sent event
// POST /api/analyze/progressive
func (h *AIHandler) AnalyzeProgressive(c *gin.Context) {
	var req aidomain.EmailContent
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	started := false
	emit := func(event string, data interface{}) error {
		if !started {
			started = true
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
		}
		c.SSEvent(event, data)
		c.Writer.Flush()
		return c.Request.Context().Err()
	}

	err := h.aiUsecase.AnalyzeProgressive(c.Request.Context(), c.GetString("userID"), req, emit)
	if err == nil {
		return
	}
	if !started {
		respondError(c, err)
		return
	}
	log.Warn().Err(err).Msg("[AI] Progressive analysis aborted")
	c.SSEvent("error", gin.H{"error": err.Error()})
	c.Writer.Flush()
}

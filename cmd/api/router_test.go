package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	aiDelivery "fileflow-backend/internal/ai/delivery"
	authDelivery "fileflow-backend/internal/auth/delivery"
	filesDelivery "fileflow-backend/internal/files/delivery"
	paymentDelivery "fileflow-backend/internal/payment/delivery"
	"fileflow-backend/internal/state"
	staterepo "fileflow-backend/internal/state/repository"
	subscriptionDelivery "fileflow-backend/internal/subscription/delivery"
	syncDelivery "fileflow-backend/internal/sync/delivery"
	todoDelivery "fileflow-backend/internal/todo/delivery"
	"fileflow-backend/pkg/config"
	"fileflow-backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func testHandlers(localState *state.LocalState) Handlers {
	return Handlers{
		Auth:         authDelivery.NewAuthHandler(nil),
		AI:           aiDelivery.NewAIHandler(nil, nil),
		Files:        filesDelivery.NewFileHandler(nil),
		Sync:         syncDelivery.NewSyncHandler(nil),
		Todo:         todoDelivery.NewTodoHandler(nil),
		Subscription: subscriptionDelivery.NewSubscriptionHandler(nil),
		Payment:      paymentDelivery.NewPaymentHandler(nil),
		Settings:     NewSettingsHandler(localState),
	}
}

func testEngine(limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{RateLimitRequests: limit, RateLimitWindow: 15 * time.Minute}
	localState := state.NewLocalState(staterepo.NewMemoryStore())
	return NewHandler(nil, testHandlers(localState), ratelimit.NewMemoryStore(nil), cfg).Engine()
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "192.0.2.1:5000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(testEngine(100), http.MethodGet, "/api/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitAppliesToAllAPIRoutes(t *testing.T) {
	r := testEngine(2)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/health").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/todos").Code)

	w := do(r, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), ratelimit.Message)
}

func TestProtectedRoutesNeedBearerToken(t *testing.T) {
	r := testEngine(100)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/api/summary"},
		{http.MethodPost, "/api/sync"},
		{http.MethodGet, "/api/files"},
		{http.MethodGet, "/api/user/status"},
		{http.MethodGet, "/api/settings"},
		{http.MethodPost, "/api/payments/stk-push"},
	} {
		w := do(r, route.method, route.path)
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}

func TestPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/summary", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	testEngine(100).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PATCH"))
}

package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authdomain "fileflow-backend/internal/auth/domain"
	authdto "fileflow-backend/internal/auth/dto"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockAuthUsecase struct {
	mock.Mock
}

func (m *mockAuthUsecase) GoogleSignIn(ctx context.Context, req *authdto.GoogleSignInRequest) (*authdto.TokenResponse, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*authdto.TokenResponse)
	return res, args.Error(1)
}

func (m *mockAuthUsecase) RefreshToken(ctx context.Context, refreshToken string) (*authdto.TokenResponse, error) {
	args := m.Called(ctx, refreshToken)
	res, _ := args.Get(0).(*authdto.TokenResponse)
	return res, args.Error(1)
}

func (m *mockAuthUsecase) Logout(ctx context.Context, userID, refreshToken string) error {
	return m.Called(ctx, userID, refreshToken).Error(0)
}

func (m *mockAuthUsecase) ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error) {
	args := m.Called(ctx, tokenString)
	res, _ := args.Get(0).(*authdomain.User)
	return res, args.Error(1)
}

func (m *mockAuthUsecase) Me(ctx context.Context, userID string) (*authdomain.User, error) {
	args := m.Called(ctx, userID)
	res, _ := args.Get(0).(*authdomain.User)
	return res, args.Error(1)
}

func (m *mockAuthUsecase) RegisterFCMToken(ctx context.Context, userID, token, deviceInfo string) error {
	return m.Called(ctx, userID, token, deviceInfo).Error(0)
}

func (m *mockAuthUsecase) DeleteFCMToken(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}

func setupRouter(uc *mockAuthUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAuthHandler(uc)
	r := gin.New()
	r.POST("/api/auth/google", h.GoogleSignIn)
	r.POST("/api/auth/refresh", h.RefreshToken)
	protected := r.Group("/api")
	protected.Use(AuthMiddleware(uc))
	protected.GET("/auth/me", h.Me)
	protected.POST("/auth/logout", h.Logout)
	protected.DELETE("/fcm/:token", h.UnregisterFCMToken)
	return r
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	r := setupRouter(new(mockAuthUsecase))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareSetsUserID(t *testing.T) {
	uc := new(mockAuthUsecase)
	user := &authdomain.User{ID: "u1", Email: "a@example.com"}
	uc.On("ValidateToken", mock.Anything, "good").Return(user, nil)
	uc.On("Me", mock.Anything, "u1").Return(user, nil)
	r := setupRouter(uc)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a@example.com")
	uc.AssertExpectations(t)
}

func TestGoogleSignInRequiresIDToken(t *testing.T) {
	r := setupRouter(new(mockAuthUsecase))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/google", strings.NewReader(`{"access_token": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshExpiredIsUnauthorized(t *testing.T) {
	uc := new(mockAuthUsecase)
	uc.On("RefreshToken", mock.Anything, "old").Return(nil, authdomain.ErrTokenExpired)
	r := setupRouter(uc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", strings.NewReader(`{"refresh_token": "old"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error": "refresh token expired"}`, w.Body.String())
}

func TestLogoutPassesUserAndToken(t *testing.T) {
	uc := new(mockAuthUsecase)
	uc.On("ValidateToken", mock.Anything, "good").Return(&authdomain.User{ID: "u1"}, nil)
	uc.On("Logout", mock.Anything, "u1", "r1").Return(nil)
	r := setupRouter(uc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", strings.NewReader(`{"refresh_token": "r1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	uc.AssertExpectations(t)
}

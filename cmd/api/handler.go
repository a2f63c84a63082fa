package api

import (
	"net/http"
	"time"

	aiDelivery "fileflow-backend/internal/ai/delivery"
	authDelivery "fileflow-backend/internal/auth/delivery"
	authUsecase "fileflow-backend/internal/auth/usecase"
	filesDelivery "fileflow-backend/internal/files/delivery"
	paymentDelivery "fileflow-backend/internal/payment/delivery"
	subscriptionDelivery "fileflow-backend/internal/subscription/delivery"
	syncDelivery "fileflow-backend/internal/sync/delivery"
	todoDelivery "fileflow-backend/internal/todo/delivery"
	"fileflow-backend/pkg/config"
	"fileflow-backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// Handlers groups the delivery handlers mounted under /api.
type Handlers struct {
	Auth         *authDelivery.AuthHandler
	AI           *aiDelivery.AIHandler
	Files        *filesDelivery.FileHandler
	Sync         *syncDelivery.SyncHandler
	Todo         *todoDelivery.TodoHandler
	Subscription *subscriptionDelivery.SubscriptionHandler
	Payment      *paymentDelivery.PaymentHandler
	Settings     *SettingsHandler
}

type Handler struct {
	authUsecase authUsecase.AuthUsecase
	handlers    Handlers
	limiter     ratelimit.Store
	config      *config.Config
}

func NewHandler(authUc authUsecase.AuthUsecase, handlers Handlers, limiter ratelimit.Store, cfg *config.Config) *Handler {
	return &Handler{
		authUsecase: authUc,
		handlers:    handlers,
		limiter:     limiter,
		config:      cfg,
	}
}

// Engine builds the gin engine with CORS and every route.
func (h *Handler) Engine() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.handlers, h.limiter, h.config)
	return r
}

// Server returns an http.Server for addr. Streaming routes keep WriteTimeout unset.
func (h *Handler) Server(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

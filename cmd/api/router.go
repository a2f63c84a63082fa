package api

import (
	"net/http"

	"fileflow-backend/internal/auth/delivery"
	authUsecase "fileflow-backend/internal/auth/usecase"
	"fileflow-backend/pkg/config"
	"fileflow-backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, h Handlers, limiter ratelimit.Store, cfg *config.Config) {
	api := r.Group("/api")
	if limiter != nil {
		api.Use(ratelimit.Middleware(limiter, cfg.RateLimitRequests, cfg.RateLimitWindow))
	}
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/google", h.Auth.GoogleSignIn)
			auth.POST("/refresh", h.Auth.RefreshToken)
			auth.GET("/me", delivery.AuthMiddleware(authUsecase), h.Auth.Me)
			auth.POST("/logout", delivery.AuthMiddleware(authUsecase), h.Auth.Logout)
		}

		// Payment webhook (public, called by the gateway)
		api.POST("/payments/callback", h.Payment.Callback)

		protected := api.Group("")
		protected.Use(delivery.AuthMiddleware(authUsecase))
		{
			protected.POST("/fcm/register", h.Auth.RegisterFCMToken)
			protected.DELETE("/fcm/:token", h.Auth.UnregisterFCMToken)

			protected.POST("/classify", h.AI.Classify)
			protected.POST("/summary", h.AI.Summary)
			protected.POST("/replies", h.AI.Replies)
			protected.POST("/todo", h.AI.Todo)
			protected.POST("/search", h.AI.Search)
			protected.POST("/intent", h.AI.Intent)
			protected.POST("/recap", h.AI.Recap)
			protected.POST("/chat", h.AI.Chat)
			protected.POST("/analyze", h.AI.Analyze)
			protected.POST("/analyze/progressive", h.AI.AnalyzeProgressive)

			protected.POST("/sync", h.Sync.Sync)
			protected.GET("/files", h.Files.List)

			protected.POST("/payments/stk-push", h.Payment.STKPush)
			protected.GET("/payments/status/:id", h.Payment.Status)

			protected.GET("/todos", h.Todo.List)
			protected.POST("/todos/sync", h.Todo.Sync)
			protected.PATCH("/todos/:id", h.Todo.Update)
			protected.DELETE("/todos/:id", h.Todo.Delete)

			protected.GET("/user/status", h.Subscription.GetStatus)
			protected.POST("/user/sync", h.Subscription.Sync)

			protected.GET("/settings", h.Settings.Get)
			protected.PUT("/settings", h.Settings.Update)
		}
	}
}

package delivery

import (
	"net/http"

	"fileflow-backend/internal/subscription/usecase"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subscriptionUsecase usecase.SubscriptionUsecase
}

func NewSubscriptionHandler(subscriptionUsecase usecase.SubscriptionUsecase) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionUsecase: subscriptionUsecase}
}

type SyncRequest struct {
	StartTrial bool `json:"start_trial"`
}

// GetStatus returns the tier and today's usage
// GET /api/user/status
func (h *SubscriptionHandler) GetStatus(c *gin.Context) {
	status, err := h.subscriptionUsecase.Status(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Sync refreshes the tier from the backend record
// POST /api/user/sync
func (h *SubscriptionHandler) Sync(c *gin.Context) {
	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	status, err := h.subscriptionUsecase.Sync(c.Request.Context(), c.GetString("userID"), req.StartTrial)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

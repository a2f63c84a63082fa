package delivery

import (
	"errors"
	"net/http"

	authdomain "fileflow-backend/internal/auth/domain"
	emaildomain "fileflow-backend/internal/email/domain"
	syncdomain "fileflow-backend/internal/sync/domain"
	"fileflow-backend/internal/sync/usecase"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type SyncHandler struct {
	syncUsecase usecase.SyncUsecase
}

func NewSyncHandler(syncUsecase usecase.SyncUsecase) *SyncHandler {
	return &SyncHandler{syncUsecase: syncUsecase}
}

// Sync processes new attachments for the current user and returns the file list
// POST /api/sync
func (h *SyncHandler) Sync(c *gin.Context) {
	userID := c.GetString("userID")
	res, err := h.syncUsecase.ProcessEmails(c.Request.Context(), userID, syncdomain.Options{Foreground: true})
	if err != nil {
		if errors.Is(err, emaildomain.ErrUnauthorized) || errors.Is(err, authdomain.ErrNoCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "reauth": true})
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("[Sync] Foreground sync failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

package api

import (
	"net/http"

	"fileflow-backend/internal/state"
	statedomain "fileflow-backend/internal/state/domain"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	localState *state.LocalState
}

func NewSettingsHandler(localState *state.LocalState) *SettingsHandler {
	return &SettingsHandler{localState: localState}
}

// UpdateSettingsRequest changes only the fields that are sent
type UpdateSettingsRequest struct {
	SyncPeriod *statedomain.SyncPeriod `json:"sync_period"`
	Theme      *statedomain.Theme      `json:"theme"`
}

func (h *SettingsHandler) current(c *gin.Context) (*statedomain.Settings, error) {
	ctx := c.Request.Context()
	userID := c.GetString("userID")
	period, err := h.localState.SyncPeriod(ctx, userID)
	if err != nil {
		return nil, err
	}
	theme, err := h.localState.Theme(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &statedomain.Settings{SyncPeriod: period, Theme: theme}, nil
}

// GET /api/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.current(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

// PUT /api/settings
func (h *SettingsHandler) Update(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SyncPeriod != nil && !req.SyncPeriod.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sync_period must be one of 7d, 30d, 90d, all"})
		return
	}
	if req.Theme != nil && !req.Theme.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "theme must be one of light, dark, system"})
		return
	}

	ctx := c.Request.Context()
	userID := c.GetString("userID")
	if req.SyncPeriod != nil {
		if err := h.localState.SetSyncPeriod(ctx, userID, *req.SyncPeriod); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Theme != nil {
		if err := h.localState.SetTheme(ctx, userID, *req.Theme); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	h.Get(c)
}

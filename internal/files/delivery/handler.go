package delivery

import (
	"net/http"

	filesdomain "fileflow-backend/internal/files/domain"
	"fileflow-backend/internal/files/repository"

	"github.com/gin-gonic/gin"
)

type FileHandler struct {
	fileRepo repository.FileRepository
}

func NewFileHandler(fileRepo repository.FileRepository) *FileHandler {
	return &FileHandler{fileRepo: fileRepo}
}

// List returns the user's processed files, newest first
// GET /api/files?category=Finance
func (h *FileHandler) List(c *gin.Context) {
	category := ""
	if raw := c.Query("category"); raw != "" {
		parsed, ok := filesdomain.ParseCategory(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category " + raw})
			return
		}
		category = string(parsed)
	}

	files, err := h.fileRepo.ListByUser(c.Request.Context(), c.GetString("userID"), category)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if files == nil {
		files = []*filesdomain.ProcessedFile{}
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

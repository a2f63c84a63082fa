package delivery

import (
	"errors"
	"net/http"

	tododomain "fileflow-backend/internal/todo/domain"
	"fileflow-backend/internal/todo/usecase"

	"github.com/gin-gonic/gin"
)

type TodoHandler struct {
	todoUsecase usecase.TodoUsecase
}

func NewTodoHandler(todoUsecase usecase.TodoUsecase) *TodoHandler {
	return &TodoHandler{todoUsecase: todoUsecase}
}

type SyncTodosRequest struct {
	Todos []*tododomain.Todo `json:"todos"`
}

// GET /api/todos
func (h *TodoHandler) List(c *gin.Context) {
	todos, err := h.todoUsecase.List(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"todos": todos})
}

// Sync upserts the client's list and returns the merged one
// POST /api/todos/sync
func (h *TodoHandler) Sync(c *gin.Context) {
	var req SyncTodosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	todos, err := h.todoUsecase.Sync(c.Request.Context(), c.GetString("userID"), req.Todos)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"todos": todos})
}

// PATCH /api/todos/:id
func (h *TodoHandler) Update(c *gin.Context) {
	var req tododomain.TodoUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Completed == nil && req.Text == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "completed or text is required"})
		return
	}

	todo, err := h.todoUsecase.Update(c.Request.Context(), c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		switch {
		case errors.Is(err, tododomain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, tododomain.ErrEmptyText):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, tododomain.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, todo)
}

// DELETE /api/todos/:id
func (h *TodoHandler) Delete(c *gin.Context) {
	err := h.todoUsecase.Delete(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		if errors.Is(err, tododomain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "todo deleted"})
}

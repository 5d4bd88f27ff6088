package actionlogs

import (
	"strconv"

	"vpnpanel/internal/actions"
	"vpnpanel/internal/httpx"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles action log API
type Handler struct {
	queue *actions.Service
}

// NewHandler creates a new action logs handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{queue: actions.NewService(db)}
}

// List handles GET /api/v1/action-logs
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	logs, err := h.queue.Recent(limit)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query action logs", err))
		return
	}
	httpx.OK(c, logs)
}

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"template-task-service/internal/template-api/db"
)

// GetTaskStatus returns the backend's status payload as is.
func (h *Handler) GetTaskStatus(ctx context.Context, c *app.RequestContext) {
	status, err := h.Service.GetTaskStatus(ctx, c.Query("client_name"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if status.Raw == nil {
		c.JSON(http.StatusOK, utils.H{"id": status.TaskID, "status": status.Status})
		return
	}
	c.JSON(http.StatusOK, status.Raw)
}

func (h *Handler) GetTaskLogs(ctx context.Context, c *app.RequestContext) {
	taskID := c.Param("id")
	logs, err := h.Service.GetTaskLogs(ctx, c.Query("client_name"), taskID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"task_id": taskID, "logs": logs})
}

// ListTasks returns execution history, newest first.
func (h *Handler) ListTasks(ctx context.Context, c *app.RequestContext) {
	filter := db.ListFilter{
		Status:       c.Query("status"),
		TemplateName: c.Query("template"),
		Backend:      c.Query("client_name"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(c, "invalid limit: %q", raw)
			return
		}
		filter.Limit = limit
	}

	records, err := h.Service.ListTasks(ctx, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"items": records, "total_count": len(records)})
}

package api

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"

	"template-task-service/internal/template-api/apperr"
	"template-task-service/internal/template-api/db"
	"template-task-service/internal/template-api/models"
	"template-task-service/internal/template-api/services"
)

// TemplateService is implemented by *services.Orchestrator.
type TemplateService interface {
	ListTemplates(ctx context.Context, client string, filters models.ListFilters) (*models.TemplateList, error)
	GetTemplate(ctx context.Context, client, name string) (*models.Template, error)
	GetParameters(ctx context.Context, client, name string) (*models.ParameterSchema, error)
	Execute(ctx context.Context, req services.ExecuteRequest) (*models.TaskResult, error)
	GetTaskStatus(ctx context.Context, client, taskID string) (*models.TaskStatus, error)
	GetTaskLogs(ctx context.Context, client, taskID string) ([]models.TaskLogEntry, error)
	ListTasks(ctx context.Context, filter db.ListFilter) ([]db.TaskRecord, error)
	ArtifactURL(ctx context.Context, client, bucket, key string, ttl time.Duration) (string, error)
	Info() map[string]interface{}
}

type Handler struct {
	Service TemplateService
}

func NewHandler(svc TemplateService) *Handler {
	return &Handler{Service: svc}
}

// respondError writes {"error": kind, "message": detail, "status_code": code}.
func respondError(c *app.RequestContext, err error) {
	code := apperr.HTTPStatus(err)
	c.JSON(code, utils.H{
		"error":       string(apperr.KindOf(err)),
		"message":     apperr.Message(err),
		"status_code": code,
	})
}

func badRequest(c *app.RequestContext, format string, args ...interface{}) {
	respondError(c, apperr.New(apperr.KindValidation, format, args...))
}

// Package clients defines the contract every template backend implements.
package clients

import (
	"context"
	"strings"

	"template-task-service/internal/template-api/models"
)

// Backend lists, describes and executes templates, and reports task state.
type Backend interface {
	ListTemplates(ctx context.Context, filters models.ListFilters) (*models.TemplateList, error)
	GetTemplate(ctx context.Context, name string) (*models.Template, error)
	GetParameters(ctx context.Context, name string) (*models.ParameterSchema, error)
	ExecuteTemplate(ctx context.Context, task models.TemplateTask) (*models.TaskHandle, error)
	GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error)
}

// LogReader is implemented by backends that can return task progress lines.
type LogReader interface {
	GetTaskLogs(ctx context.Context, taskID string) ([]models.TaskLogEntry, error)
}

// FilterTemplates applies filters to templates and returns the matching subset in order.
func FilterTemplates(templates []models.Template, filters models.ListFilters) *models.TemplateList {
	items := make([]models.Template, 0, len(templates))
	for _, t := range templates {
		if Matches(t, filters) {
			items = append(items, t)
		}
	}
	return &models.TemplateList{Items: items, TotalCount: len(items)}
}

// Matches reports whether t passes every non-empty filter. Tags use AND semantics.
func Matches(t models.Template, filters models.ListFilters) bool {
	if filters.CloudProvider != "" && !strings.EqualFold(t.Metadata.CloudProvider, filters.CloudProvider) {
		return false
	}
	if filters.TemplateType != "" && !strings.EqualFold(t.Spec.Type, filters.TemplateType) {
		return false
	}
	if filters.Owner != "" && t.Spec.Owner != filters.Owner {
		return false
	}
	for _, tag := range filters.Tags {
		if tag != "" && !t.HasTag(tag) {
			return false
		}
	}
	if filters.Search != "" {
		needle := strings.ToLower(filters.Search)
		if !strings.Contains(strings.ToLower(t.Metadata.Name), needle) &&
			!strings.Contains(strings.ToLower(t.Metadata.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Metadata.Description), needle) {
			return false
		}
	}
	return true
}

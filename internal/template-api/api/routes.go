package api

import (
	"github.com/cloudwego/hertz/pkg/route"
)

// RegisterRoutes mounts every endpoint on r.
func RegisterRoutes(r route.IRoutes, h *Handler) {
	r.GET("/ping", h.Ping)
	r.GET("/", h.Health)
	r.GET("/api-source", h.APISource)

	r.GET("/templates", h.ListTemplates)
	r.GET("/templates/:name", h.GetTemplate)
	r.GET("/templates/:name/parameters", h.GetParameters)
	r.POST("/templates/:name/execute", h.ExecuteTemplate)

	r.GET("/tasks", h.ListTasks)
	r.GET("/tasks/:id", h.GetTaskStatus)
	r.GET("/tasks/:id/logs", h.GetTaskLogs)

	r.GET("/artifacts/url", h.ArtifactURL)
}

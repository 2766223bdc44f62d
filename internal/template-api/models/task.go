package models

import (
	"strings"
	"time"
)

// Task phases as reported to callers.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// TemplateTask is one execution request.
type TemplateTask struct {
	TemplateName string                 `json:"template_name"`
	Parameters   map[string]interface{} `json:"parameters"`
	DryRun       bool                   `json:"dry_run"`
}

// TaskHandle is what a backend returns after accepting a task.
type TaskHandle struct {
	TaskID        string    `json:"task_id"`
	TemplateName  string    `json:"template_name"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	LogURL        string    `json:"log_url,omitempty"`
	CompletionURL string    `json:"completion_url,omitempty"`
}

// TaskStatus is a polled task state. Raw is the backend payload, passed
// through untouched for key determination and API responses.
type TaskStatus struct {
	TaskID string
	Status string
	Raw    map[string]interface{}
}

// State returns the lower-cased backend status string.
func (s TaskStatus) State() string {
	return strings.ToLower(strings.TrimSpace(s.Status))
}

// Phase folds backend-specific states into pending, running, completed or failed.
func (s TaskStatus) Phase() string {
	switch s.State() {
	case "completed", "succeeded", "success":
		return StatusCompleted
	case "failed", "cancelled", "canceled", "skipped", "error":
		return StatusFailed
	case "processing", "running", "in_progress":
		return StatusRunning
	default:
		return StatusPending
	}
}

// TaskLogEntry is one line of task progress.
type TaskLogEntry struct {
	Timestamp string `json:"timestamp,omitempty"`
	Type      string `json:"type,omitempty"`
	Message   string `json:"message"`
	Step      string `json:"step,omitempty"`
	Status    string `json:"status,omitempty"`
}

// TaskResult is the normalized response for an executed task.
type TaskResult struct {
	TaskID        string `json:"task_id"`
	TemplateName  string `json:"template_name"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	LogURL        string `json:"log_url,omitempty"`
	CompletionURL string `json:"completion_url,omitempty"`
	OutputPath    string `json:"output_path,omitempty"`
	Error         string `json:"error,omitempty"`
}

// NewTaskResult builds the response skeleton from a handle.
func NewTaskResult(h TaskHandle) *TaskResult {
	status := h.Status
	if status == "" {
		status = StatusPending
	}
	return &TaskResult{
		TaskID:        h.TaskID,
		TemplateName:  h.TemplateName,
		Status:        status,
		CreatedAt:     h.CreatedAt.Format(time.RFC3339),
		LogURL:        h.LogURL,
		CompletionURL: h.CompletionURL,
	}
}

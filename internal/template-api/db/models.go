package db

import (
	"gorm.io/gorm"
)

// TaskRecord is one executed template task as seen by this service.
type TaskRecord struct {
	gorm.Model
	TaskID        string `json:"task_id" gorm:"uniqueIndex;size:191"`
	Backend       string `json:"backend" gorm:"index;size:64"`
	TemplateName  string `json:"template_name" gorm:"index;size:191"`
	Status        string `json:"status" gorm:"index;size:32"`
	DryRun        bool   `json:"dry_run"`
	Parameters    string `json:"parameters" gorm:"type:json"` // JSON-encoded parameter mapping
	LogURL        string `json:"log_url"`
	CompletionURL string `json:"completion_url"`
	OutputPath    string `json:"output_path"`
	Error         string `json:"error"`
}

package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrRecordNotFound is returned by FindByTaskID for unknown task ids.
var ErrRecordNotFound = errors.New("task record not found")

const defaultListLimit = 50

// ListFilter narrows List; zero values are ignored.
type ListFilter struct {
	Status       string
	TemplateName string
	Backend      string
	Limit        int
}

type TaskStore struct {
	DB *gorm.DB
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{DB: db}
}

// Save inserts rec or overwrites the record with the same TaskID.
func (s *TaskStore) Save(ctx context.Context, rec *TaskRecord) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing TaskRecord
		err := tx.Where("task_id = ?", rec.TaskID).First(&existing).Error
		switch {
		case err == nil:
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to look up task %s: %w", rec.TaskID, err)
		}
		if err := tx.Save(rec).Error; err != nil {
			return fmt.Errorf("failed to save task %s: %w", rec.TaskID, err)
		}
		return nil
	})
}

func (s *TaskStore) FindByTaskID(ctx context.Context, taskID string) (*TaskRecord, error) {
	var rec TaskRecord
	err := s.DB.WithContext(ctx).Where("task_id = ?", taskID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}
	return &rec, nil
}

// List returns matching records, newest first.
func (s *TaskStore) List(ctx context.Context, filter ListFilter) ([]TaskRecord, error) {
	query := s.DB.WithContext(ctx).Model(&TaskRecord{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TemplateName != "" {
		query = query.Where("template_name = ?", filter.TemplateName)
	}
	if filter.Backend != "" {
		query = query.Where("backend = ?", filter.Backend)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var records []TaskRecord
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return records, nil
}

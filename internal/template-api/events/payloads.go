package events

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	TypeTaskSubmitted = "task.submitted"
	TypeTaskFinished  = "task.finished"
)

// TaskEvent is published when a task is submitted and when its pipeline finishes.
type TaskEvent struct {
	Type         string
	TaskID       string
	Backend      string
	TemplateName string
	Status       string
	OutputPath   string
	Error        string
	OccurredAt   time.Time
}

// Marshal encodes the event as a protobuf Struct.
func (e TaskEvent) Marshal() ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"type":          e.Type,
		"task_id":       e.TaskID,
		"backend":       e.Backend,
		"template_name": e.TemplateName,
		"status":        e.Status,
		"output_path":   e.OutputPath,
		"error":         e.Error,
		"occurred_at":   e.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build event struct: %w", err)
	}
	return proto.Marshal(s)
}

// Unmarshal decodes an event written by Marshal.
func Unmarshal(data []byte) (TaskEvent, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return TaskEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}
	fields := s.GetFields()
	str := func(key string) string { return fields[key].GetStringValue() }

	ev := TaskEvent{
		Type:         str("type"),
		TaskID:       str("task_id"),
		Backend:      str("backend"),
		TemplateName: str("template_name"),
		Status:       str("status"),
		OutputPath:   str("output_path"),
		Error:        str("error"),
	}
	if ts := str("occurred_at"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return TaskEvent{}, fmt.Errorf("invalid occurred_at %q: %w", ts, err)
		}
		ev.OccurredAt = t
	}
	return ev, nil
}

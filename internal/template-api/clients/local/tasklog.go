package local

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"template-task-service/internal/template-api/models"
)

const (
	levelInfo  = "INFO"
	levelError = "ERROR"
)

// taskLog appends "timestamp LEVEL message" lines to a task's logs.txt.
type taskLog struct {
	path string
	now  func() time.Time
}

func newTaskLog(path string, now func() time.Time) *taskLog {
	return &taskLog{path: path, now: now}
}

func (l *taskLog) write(level, format string, args ...interface{}) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		hlog.Errorf("Cannot open task log %s: %v", l.path, err)
		return
	}
	defer f.Close()
	line := fmt.Sprintf("%s %s %s\n", l.now().UTC().Format(time.RFC3339), level, fmt.Sprintf(format, args...))
	if _, err := f.WriteString(line); err != nil {
		hlog.Errorf("Cannot write task log %s: %v", l.path, err)
	}
}

func parseLogLine(line string) models.TaskLogEntry {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) == 3 {
		if _, err := time.Parse(time.RFC3339, parts[0]); err == nil {
			return models.TaskLogEntry{Timestamp: parts[0], Type: parts[1], Message: parts[2]}
		}
	}
	return models.TaskLogEntry{Message: line}
}

// logHasError reports whether any line was written at ERROR level. Messages
// themselves may contain the word.
func logHasError(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if parseLogLine(strings.TrimSpace(line)).Type == levelError {
			return true
		}
	}
	return false
}

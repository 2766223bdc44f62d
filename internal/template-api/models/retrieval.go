package models

import (
	"strings"
	"time"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 300 * time.Second
)

// RetrievalRequest describes where a task's artifact lives and where it goes.
// Bucket and LocalPath are both required for retrieval to happen at all.
type RetrievalRequest struct {
	Bucket       string
	Key          string
	LocalPath    string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Enabled reports whether retrieval should run.
func (r RetrievalRequest) Enabled() bool {
	return r.Bucket != "" && r.LocalPath != ""
}

// WithDefaults fills a zero interval or timeout.
func (r RetrievalRequest) WithDefaults() RetrievalRequest {
	if r.PollInterval <= 0 {
		r.PollInterval = DefaultPollInterval
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultPollTimeout
	}
	return r
}

// ExpandLocalPath substitutes {template_name} and {task_id} in a path template.
func ExpandLocalPath(pathTemplate, templateName, taskID string) string {
	return strings.NewReplacer(
		"{template_name}", templateName,
		"{task_id}", taskID,
	).Replace(pathTemplate)
}

// RetrievalState is the last state the retriever reached.
type RetrievalState string

const (
	RetrievalWaiting     RetrievalState = "waiting"
	RetrievalFoundKey    RetrievalState = "found-key"
	RetrievalDownloading RetrievalState = "downloading"
	RetrievalUnpacking   RetrievalState = "unpacking"
	RetrievalDone        RetrievalState = "done"
	RetrievalFailed      RetrievalState = "failed"
	RetrievalTimedOut    RetrievalState = "timed-out"
)

// RetrievalResult is the terminal outcome of one retrieval. State is done,
// failed or timed-out; Stage is the step that was running when it stopped.
type RetrievalResult struct {
	Success    bool           `json:"success"`
	OutputPath string         `json:"output_path,omitempty"`
	Key        string         `json:"key,omitempty"`
	State      RetrievalState `json:"state"`
	Stage      RetrievalState `json:"stage,omitempty"`
	Error      string         `json:"error,omitempty"`
}

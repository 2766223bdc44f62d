// Package retrieval waits for a submitted task to finish and fetches the
// artifact it left in object storage.
package retrieval

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/jonboulle/clockwork"

	"template-task-service/internal/template-api/models"
)

// Store is the object storage side of retrieval.
type Store interface {
	Download(ctx context.Context, bucket, key, dest string) error
	UnpackAndDiscard(archive, dir string) error
}

// StatusFunc polls the backend that owns the task.
type StatusFunc func(ctx context.Context, taskID string) (*models.TaskStatus, error)

type Retriever struct {
	store  Store
	status StatusFunc
	clock  clockwork.Clock
	rules  []KeyRule
}

type Option func(*Retriever)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(r *Retriever) { r.clock = c }
}

// WithKeyRules replaces DefaultKeyRules.
func WithKeyRules(rules ...KeyRule) Option {
	return func(r *Retriever) { r.rules = rules }
}

func NewRetriever(store Store, status StatusFunc, opts ...Option) *Retriever {
	r := &Retriever{
		store:  store,
		status: status,
		clock:  clockwork.NewRealClock(),
		rules:  DefaultKeyRules,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve polls the task until it is terminal, the timeout elapses or ctx
// ends, then downloads {LocalPath}.zip and unpacks it into LocalPath.
// Every failure is reported in the result; Retrieve never returns an error.
func (r *Retriever) Retrieve(ctx context.Context, task models.TemplateTask, taskID string, req models.RetrievalRequest) models.RetrievalResult {
	req = req.WithDefaults()
	start := r.clock.Now()
	hlog.CtxInfof(ctx, "Waiting for task %s to complete for artifact retrieval", taskID)

	for r.clock.Since(start) < req.Timeout {
		status, err := r.status(ctx, taskID)
		if err != nil {
			return failed(models.RetrievalWaiting, "", "error polling task status: %v", err)
		}

		state := status.State()
		hlog.CtxDebugf(ctx, "Task %s current status: %s", taskID, state)
		switch state {
		case "completed":
			kc := KeyContext{
				ExplicitKey:  req.Key,
				Task:         task,
				TaskID:       taskID,
				StatusOutput: statusOutput(status.Raw),
			}
			return r.fetch(ctx, req, DetermineKey(kc, r.rules))
		case "failed", "cancelled", "skipped":
			hlog.CtxErrorf(ctx, "Task %s failed with status: %s", taskID, state)
			return failed(models.RetrievalFailed, "", "task failed with status: %s", state)
		}

		select {
		case <-ctx.Done():
			return failed(models.RetrievalWaiting, "", "retrieval cancelled while waiting for task: %v", ctx.Err())
		case <-r.clock.After(req.PollInterval):
		}
	}

	hlog.CtxWarnf(ctx, "Timeout waiting for task %s to complete", taskID)
	return models.RetrievalResult{
		State: models.RetrievalTimedOut,
		Stage: models.RetrievalWaiting,
		Error: fmt.Sprintf("timeout waiting for task to complete after %s", req.Timeout),
	}
}

func (r *Retriever) fetch(ctx context.Context, req models.RetrievalRequest, key string) models.RetrievalResult {
	if key == "" {
		return failed(models.RetrievalFoundKey, "", "no artifact key available")
	}

	archive := req.LocalPath + ".zip"
	hlog.CtxInfof(ctx, "Downloading s3://%s/%s to %s", req.Bucket, key, archive)
	if err := r.store.Download(ctx, req.Bucket, key, archive); err != nil {
		return failed(models.RetrievalDownloading, key, "%s", err.Error())
	}
	if err := r.store.UnpackAndDiscard(archive, req.LocalPath); err != nil {
		return failed(models.RetrievalUnpacking, key, "%s", err.Error())
	}

	hlog.CtxInfof(ctx, "Unpacked artifact %s into %s", key, req.LocalPath)
	return models.RetrievalResult{
		Success:    true,
		OutputPath: req.LocalPath,
		Key:        key,
		State:      models.RetrievalDone,
		Stage:      models.RetrievalDone,
	}
}

func failed(at models.RetrievalState, key, format string, args ...interface{}) models.RetrievalResult {
	return models.RetrievalResult{
		Key:   key,
		State: models.RetrievalFailed,
		Stage: at,
		Error: fmt.Sprintf(format, args...),
	}
}

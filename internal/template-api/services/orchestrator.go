package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/jonboulle/clockwork"

	"template-task-service/internal/template-api/apperr"
	"template-task-service/internal/template-api/clients"
	"template-task-service/internal/template-api/config"
	"template-task-service/internal/template-api/db"
	"template-task-service/internal/template-api/events"
	"template-task-service/internal/template-api/models"
	"template-task-service/internal/template-api/retrieval"
	"template-task-service/pkg/objectstore"
)

// ArtifactStore is what the orchestrator needs from object storage.
type ArtifactStore interface {
	retrieval.Store
	PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// StoreFactory opens object storage for one request.
type StoreFactory func(ctx context.Context, cfg objectstore.Config) (ArtifactStore, error)

// DefaultStoreFactory opens an S3 gateway.
func DefaultStoreFactory(ctx context.Context, cfg objectstore.Config) (ArtifactStore, error) {
	g, err := objectstore.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// TaskHistory stores executed tasks.
type TaskHistory interface {
	Save(ctx context.Context, rec *db.TaskRecord) error
	List(ctx context.Context, filter db.ListFilter) ([]db.TaskRecord, error)
	FindByTaskID(ctx context.Context, taskID string) (*db.TaskRecord, error)
}

// EventPublisher emits task lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.TaskEvent) error
}

// BackendEntry is one initialized backend and its artifact defaults.
type BackendEntry struct {
	Name      string
	Client    clients.Backend
	Artifacts config.ArtifactConfig
	// Settings is reported by Info.
	Settings map[string]interface{}
}

// OrchestratorConfig is everything the orchestrator is built from. Only
// Backends is required.
type OrchestratorConfig struct {
	Backends      []BackendEntry
	DefaultClient string
	StoreFactory  StoreFactory
	History       TaskHistory
	Publisher     EventPublisher
	Clock         clockwork.Clock
}

type Orchestrator struct {
	backends      map[string]BackendEntry
	order         []string
	defaultClient string
	storeFactory  StoreFactory
	history       TaskHistory
	publisher     EventPublisher
	clock         clockwork.Clock
}

// NewOrchestrator fails with ClientInitializationError when no backend is available.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	o := &Orchestrator{
		backends:     map[string]BackendEntry{},
		storeFactory: cfg.StoreFactory,
		history:      cfg.History,
		publisher:    cfg.Publisher,
		clock:        cfg.Clock,
	}
	if o.storeFactory == nil {
		o.storeFactory = DefaultStoreFactory
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	for _, b := range cfg.Backends {
		if b.Client == nil {
			continue
		}
		if _, dup := o.backends[b.Name]; !dup {
			o.order = append(o.order, b.Name)
		}
		o.backends[b.Name] = b
	}
	if len(o.order) == 0 {
		return nil, apperr.New(apperr.KindClientInit, "no template backends could be initialized")
	}

	if _, ok := o.backends[cfg.DefaultClient]; ok {
		o.defaultClient = cfg.DefaultClient
	} else {
		o.defaultClient = o.order[0]
		hlog.Warnf("Default client %q is not available, using %q", cfg.DefaultClient, o.defaultClient)
	}
	hlog.Infof("Template backends available: %s (default %s)", strings.Join(o.order, ", "), o.defaultClient)
	return o, nil
}

// DefaultClient is the backend used when a request names none.
func (o *Orchestrator) DefaultClient() string { return o.defaultClient }

// AvailableClients lists initialized backends in configuration order.
func (o *Orchestrator) AvailableClients() []string {
	return append([]string(nil), o.order...)
}

func (o *Orchestrator) resolve(name string) (BackendEntry, error) {
	if name == "" {
		name = o.defaultClient
	}
	entry, ok := o.backends[name]
	if !ok {
		available := o.AvailableClients()
		sort.Strings(available)
		return BackendEntry{}, apperr.New(apperr.KindClientInit,
			"client %q is not available; available clients: %s", name, strings.Join(available, ", "))
	}
	return entry, nil
}

// ResolveClient returns the named backend, or the default one for "".
func (o *Orchestrator) ResolveClient(name string) (clients.Backend, error) {
	entry, err := o.resolve(name)
	if err != nil {
		return nil, err
	}
	return entry.Client, nil
}

func (o *Orchestrator) ListTemplates(ctx context.Context, client string, filters models.ListFilters) (*models.TemplateList, error) {
	c, err := o.ResolveClient(client)
	if err != nil {
		return nil, err
	}
	return c.ListTemplates(ctx, filters)
}

func (o *Orchestrator) GetTemplate(ctx context.Context, client, name string) (*models.Template, error) {
	c, err := o.ResolveClient(client)
	if err != nil {
		return nil, err
	}
	return c.GetTemplate(ctx, name)
}

func (o *Orchestrator) GetParameters(ctx context.Context, client, name string) (*models.ParameterSchema, error) {
	c, err := o.ResolveClient(client)
	if err != nil {
		return nil, err
	}
	return c.GetParameters(ctx, name)
}

// GetTaskStatus asks the named backend, or the backend that recorded taskID
// when no name is given.
func (o *Orchestrator) GetTaskStatus(ctx context.Context, client, taskID string) (*models.TaskStatus, error) {
	entry, err := o.resolveForTask(ctx, client, taskID)
	if err != nil {
		return nil, err
	}
	return entry.Client.GetTaskStatus(ctx, taskID)
}

func (o *Orchestrator) GetTaskLogs(ctx context.Context, client, taskID string) ([]models.TaskLogEntry, error) {
	entry, err := o.resolveForTask(ctx, client, taskID)
	if err != nil {
		return nil, err
	}
	reader, ok := entry.Client.(clients.LogReader)
	if !ok {
		return nil, apperr.New(apperr.KindBackend, "client %q does not provide task logs", entry.Name)
	}
	return reader.GetTaskLogs(ctx, taskID)
}

func (o *Orchestrator) resolveForTask(ctx context.Context, client, taskID string) (BackendEntry, error) {
	if client != "" || o.history == nil {
		return o.resolve(client)
	}
	rec, err := o.history.FindByTaskID(ctx, taskID)
	switch {
	case errors.Is(err, db.ErrRecordNotFound):
	case err != nil:
		hlog.CtxWarnf(ctx, "Task history lookup for %s failed, using default client: %v", taskID, err)
	default:
		if _, ok := o.backends[rec.Backend]; ok {
			return o.resolve(rec.Backend)
		}
	}
	return o.resolve("")
}

// ListTasks returns recorded executions; empty when history is disabled.
func (o *Orchestrator) ListTasks(ctx context.Context, filter db.ListFilter) ([]db.TaskRecord, error) {
	if o.history == nil {
		return []db.TaskRecord{}, nil
	}
	records, err := o.history.List(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, err, "failed to list task history")
	}
	return records, nil
}

// ArtifactURL presigns a GET URL for an artifact. An empty bucket or ttl uses the backend defaults.
func (o *Orchestrator) ArtifactURL(ctx context.Context, client, bucket, key string, ttl time.Duration) (string, error) {
	entry, err := o.resolve(client)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", apperr.New(apperr.KindValidation, "artifact key is required")
	}
	if bucket == "" {
		bucket = entry.Artifacts.Bucket
	}
	if bucket == "" {
		return "", apperr.New(apperr.KindValidation, "artifact bucket is required")
	}
	if ttl <= 0 {
		ttl = entry.Artifacts.PresignTTL
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	store, err := o.storeFactory(ctx, storeConfig(entry.Artifacts, ExecuteRequest{}))
	if err != nil {
		return "", apperr.Wrap(apperr.KindConnection, err, "failed to open object storage")
	}
	url, err := store.PresignedURL(ctx, bucket, key, ttl)
	if err != nil {
		return "", apperr.Wrap(apperr.KindBackend, err, "failed to generate artifact URL")
	}
	return url, nil
}

// Info describes the configured backends.
func (o *Orchestrator) Info() map[string]interface{} {
	settings := map[string]interface{}{}
	for _, name := range o.order {
		settings[name] = o.backends[name].Settings
	}
	return map[string]interface{}{
		"default_client":    o.defaultClient,
		"available_clients": o.AvailableClients(),
		"settings":          settings,
	}
}

// ExecuteRequest is one execution call. Storage fields left empty fall back to
// the backend's artifact defaults.
type ExecuteRequest struct {
	Client       string
	TemplateName string
	Parameters   map[string]interface{}
	DryRun       bool

	Bucket       string
	Key          string
	LocalPath    string
	AccessKey    string
	SecretKey    string
	Region       string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Execute submits the task and, when a bucket and local path resolve, waits
// for its artifact. Retrieval problems are reported in TaskResult.Error.
func (o *Orchestrator) Execute(ctx context.Context, req ExecuteRequest) (*models.TaskResult, error) {
	entry, err := o.resolve(req.Client)
	if err != nil {
		return nil, err
	}

	task := models.TemplateTask{
		TemplateName: req.TemplateName,
		Parameters:   req.Parameters,
		DryRun:       req.DryRun,
	}
	if task.Parameters == nil {
		task.Parameters = map[string]interface{}{}
	}

	handle, err := entry.Client.ExecuteTemplate(ctx, task)
	if err != nil {
		hlog.CtxErrorf(ctx, "Executing %s on %s failed: %v", req.TemplateName, entry.Name, err)
		return nil, err
	}
	result := models.NewTaskResult(*handle)
	o.publish(ctx, events.TypeTaskSubmitted, entry.Name, result)

	rreq := retrievalRequest(entry.Artifacts, req, handle)
	if rreq.Enabled() {
		o.retrieve(ctx, entry, task, handle.TaskID, rreq, req, result)
	} else {
		hlog.CtxDebugf(ctx, "No bucket or local path for task %s, skipping artifact retrieval", handle.TaskID)
	}

	o.record(ctx, entry.Name, task, result)
	o.publish(ctx, events.TypeTaskFinished, entry.Name, result)
	return result, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, entry BackendEntry, task models.TemplateTask, taskID string,
	rreq models.RetrievalRequest, req ExecuteRequest, result *models.TaskResult) {
	store, err := o.storeFactory(ctx, storeConfig(entry.Artifacts, req))
	if err != nil {
		hlog.CtxErrorf(ctx, "Object storage unavailable for task %s: %v", taskID, err)
		if result.Error == "" {
			result.Error = err.Error()
		}
		return
	}

	retriever := retrieval.NewRetriever(store, entry.Client.GetTaskStatus, retrieval.WithClock(o.clock))
	res := retriever.Retrieve(ctx, task, taskID, rreq)
	if res.Success {
		result.OutputPath = res.OutputPath
		result.Status = models.StatusCompleted
		return
	}
	if result.Error == "" {
		result.Error = res.Error
	}
}

func retrievalRequest(defaults config.ArtifactConfig, req ExecuteRequest, handle *models.TaskHandle) models.RetrievalRequest {
	r := models.RetrievalRequest{
		Bucket:       firstNonEmpty(req.Bucket, defaults.Bucket),
		Key:          req.Key,
		LocalPath:    firstNonEmpty(req.LocalPath, defaults.LocalPathTemplate),
		PollInterval: req.PollInterval,
		Timeout:      req.Timeout,
	}
	if r.PollInterval <= 0 {
		r.PollInterval = defaults.PollInterval
	}
	if r.Timeout <= 0 {
		r.Timeout = defaults.Timeout
	}
	r.LocalPath = models.ExpandLocalPath(r.LocalPath, handle.TemplateName, handle.TaskID)
	return r.WithDefaults()
}

func storeConfig(defaults config.ArtifactConfig, req ExecuteRequest) objectstore.Config {
	return objectstore.Config{
		Region:    firstNonEmpty(req.Region, defaults.Region),
		AccessKey: firstNonEmpty(req.AccessKey, defaults.AccessKey),
		SecretKey: firstNonEmpty(req.SecretKey, defaults.SecretKey),
		Endpoint:  defaults.Endpoint,
	}
}

func (o *Orchestrator) record(ctx context.Context, backend string, task models.TemplateTask, result *models.TaskResult) {
	if o.history == nil {
		return
	}
	params, err := json.Marshal(task.Parameters)
	if err != nil {
		params = []byte("{}")
	}
	rec := &db.TaskRecord{
		TaskID:        result.TaskID,
		Backend:       backend,
		TemplateName:  result.TemplateName,
		Status:        result.Status,
		DryRun:        task.DryRun,
		Parameters:    string(params),
		LogURL:        result.LogURL,
		CompletionURL: result.CompletionURL,
		OutputPath:    result.OutputPath,
		Error:         result.Error,
	}
	if err := o.history.Save(ctx, rec); err != nil {
		hlog.CtxErrorf(ctx, "Recording task %s failed: %v", result.TaskID, err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType, backend string, result *models.TaskResult) {
	if o.publisher == nil {
		return
	}
	ev := events.TaskEvent{
		Type:         eventType,
		TaskID:       result.TaskID,
		Backend:      backend,
		TemplateName: result.TemplateName,
		Status:       result.Status,
		OutputPath:   result.OutputPath,
		Error:        result.Error,
		OccurredAt:   o.clock.Now(),
	}
	if err := o.publisher.Publish(ctx, ev); err != nil {
		hlog.CtxErrorf(ctx, "Publishing %s for task %s failed: %v", eventType, result.TaskID, err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"template-task-service/internal/template-api/apperr"
	"template-task-service/internal/template-api/config"
	"template-task-service/internal/template-api/db"
	"template-task-service/internal/template-api/events"
	"template-task-service/internal/template-api/models"
	"template-task-service/pkg/objectstore"
)

type fakeBackend struct {
	status     map[string]interface{}
	executeErr error
	executed   []models.TemplateTask
}

func (f *fakeBackend) ListTemplates(context.Context, models.ListFilters) (*models.TemplateList, error) {
	return &models.TemplateList{Items: []models.Template{{Metadata: models.TemplateMetadata{Name: "rds"}}}, TotalCount: 1}, nil
}

func (f *fakeBackend) GetTemplate(_ context.Context, name string) (*models.Template, error) {
	if name != "rds" {
		return nil, apperr.New(apperr.KindNotFound, "template not found: %s", name)
	}
	return &models.Template{Metadata: models.TemplateMetadata{Name: "rds"}}, nil
}

func (f *fakeBackend) GetParameters(context.Context, string) (*models.ParameterSchema, error) {
	return &models.ParameterSchema{Parameters: []map[string]interface{}{{"required": []interface{}{"name"}}}}, nil
}

func (f *fakeBackend) ExecuteTemplate(_ context.Context, task models.TemplateTask) (*models.TaskHandle, error) {
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	f.executed = append(f.executed, task)
	return &models.TaskHandle{
		TaskID:       "task-1",
		TemplateName: task.TemplateName,
		Status:       models.StatusPending,
		CreatedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeBackend) GetTaskStatus(_ context.Context, id string) (*models.TaskStatus, error) {
	status, _ := f.status["status"].(string)
	return &models.TaskStatus{TaskID: id, Status: status, Raw: f.status}, nil
}

type loggingBackend struct {
	fakeBackend
}

func (l *loggingBackend) GetTaskLogs(context.Context, string) ([]models.TaskLogEntry, error) {
	return []models.TaskLogEntry{{Message: "hello"}}, nil
}

type fakeStore struct {
	downloads []string
	presigned string
	storeCfg  objectstore.Config
}

func (f *fakeStore) Download(_ context.Context, bucket, key, dest string) error {
	f.downloads = append(f.downloads, bucket+"/"+key+"->"+dest)
	return nil
}

func (f *fakeStore) UnpackAndDiscard(string, string) error { return nil }

func (f *fakeStore) PresignedURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	f.presigned = bucket + "/" + key + "@" + ttl.String()
	return "https://signed/" + bucket + "/" + key, nil
}

type fakeHistory struct {
	saved []*db.TaskRecord
	err   error
}

func (f *fakeHistory) Save(_ context.Context, rec *db.TaskRecord) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeHistory) List(context.Context, db.ListFilter) ([]db.TaskRecord, error) {
	out := make([]db.TaskRecord, 0, len(f.saved))
	for _, r := range f.saved {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeHistory) FindByTaskID(_ context.Context, taskID string) (*db.TaskRecord, error) {
	for _, r := range f.saved {
		if r.TaskID == taskID {
			return r, nil
		}
	}
	return nil, db.ErrRecordNotFound
}

type fakePublisher struct {
	events []events.TaskEvent
}

func (f *fakePublisher) Publish(_ context.Context, ev events.TaskEvent) error {
	f.events = append(f.events, ev)
	return nil
}

type fixture struct {
	orch      *Orchestrator
	backend   *fakeBackend
	store     *fakeStore
	history   *fakeHistory
	publisher *fakePublisher
	factory   int
}

func newFixture(t *testing.T, artifacts config.ArtifactConfig) *fixture {
	f := &fixture{
		backend:   &fakeBackend{status: map[string]interface{}{"status": "completed"}},
		store:     &fakeStore{},
		history:   &fakeHistory{},
		publisher: &fakePublisher{},
	}
	orch, err := NewOrchestrator(OrchestratorConfig{
		Backends:      []BackendEntry{{Name: "backstage", Client: f.backend, Artifacts: artifacts}},
		DefaultClient: "backstage",
		StoreFactory: func(_ context.Context, cfg objectstore.Config) (ArtifactStore, error) {
			f.factory++
			f.store.storeCfg = cfg
			return f.store, nil
		},
		History:   f.history,
		Publisher: f.publisher,
		Clock:     clockwork.NewFakeClock(),
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestNewOrchestrator_NoBackends(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorConfig{Backends: []BackendEntry{{Name: "broken"}}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindClientInit, apperr.KindOf(err))
}

func TestNewOrchestrator_DefaultFallsBackToFirst(t *testing.T) {
	orch, err := NewOrchestrator(OrchestratorConfig{
		Backends: []BackendEntry{
			{Name: "local", Client: &fakeBackend{}},
			{Name: "other", Client: &fakeBackend{}},
		},
		DefaultClient: "backstage",
	})
	require.NoError(t, err)
	assert.Equal(t, "local", orch.DefaultClient())
	assert.Equal(t, []string{"local", "other"}, orch.AvailableClients())
}

func TestResolveClient(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{})

	c, err := f.orch.ResolveClient("")
	require.NoError(t, err)
	assert.Same(t, f.backend, c)

	_, err = f.orch.ResolveClient("nope")
	require.Error(t, err)
	assert.Equal(t, apperr.KindClientInit, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "available clients: backstage")
}

func TestPassThroughs(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{})
	ctx := context.Background()

	list, err := f.orch.ListTemplates(ctx, "", models.ListFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalCount)

	_, err = f.orch.GetTemplate(ctx, "backstage", "missing")
	assert.True(t, apperr.IsNotFound(err))

	params, err := f.orch.GetParameters(ctx, "", "rds")
	require.NoError(t, err)
	assert.Len(t, params.Parameters, 1)

	status, err := f.orch.GetTaskStatus(ctx, "", "task-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
}

func TestExecute_WithoutStorageSkipsRetrieval(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{})

	res, err := f.orch.Execute(context.Background(), ExecuteRequest{TemplateName: "rds", Parameters: map[string]interface{}{"name": "orders"}})
	require.NoError(t, err)

	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.Empty(t, res.OutputPath)
	assert.Empty(t, res.Error)
	assert.Equal(t, "2024-05-01T10:00:00Z", res.CreatedAt)
	assert.Zero(t, f.factory)

	require.Len(t, f.history.saved, 1)
	assert.Equal(t, `{"name":"orders"}`, f.history.saved[0].Parameters)
	assert.Equal(t, "backstage", f.history.saved[0].Backend)

	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, events.TypeTaskSubmitted, f.publisher.events[0].Type)
	assert.Equal(t, events.TypeTaskFinished, f.publisher.events[1].Type)
}

func TestExecute_RetrievesWithBackendDefaults(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{
		Bucket:            "default-bucket",
		LocalPathTemplate: "/tmp/out/{template_name}_{task_id}",
		Region:            "eu-west-1",
	})
	f.backend.status = map[string]interface{}{
		"status": "completed",
		"output": map[string]interface{}{"entityRef": "template:default/foo"},
	}

	res, err := f.orch.Execute(context.Background(), ExecuteRequest{TemplateName: "rds", AccessKey: "AK", SecretKey: "SK"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, res.Status)
	assert.Equal(t, "/tmp/out/rds_task-1", res.OutputPath)
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"default-bucket/outputs/template_default_foo.zip->/tmp/out/rds_task-1.zip"}, f.store.downloads)
	assert.Equal(t, objectstore.Config{Region: "eu-west-1", AccessKey: "AK", SecretKey: "SK"}, f.store.storeCfg)
	assert.Equal(t, models.StatusCompleted, f.history.saved[0].Status)
}

func TestExecute_RequestOverridesDefaults(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{Bucket: "default-bucket", LocalPathTemplate: "/tmp/default"})

	_, err := f.orch.Execute(context.Background(), ExecuteRequest{
		TemplateName: "rds",
		Bucket:       "req-bucket",
		Key:          "explicit.zip",
		LocalPath:    "/tmp/req",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"req-bucket/explicit.zip->/tmp/req.zip"}, f.store.downloads)
}

func TestExecute_RetrievalFailureLandsInError(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{Bucket: "b", LocalPathTemplate: "/tmp/x"})
	f.backend.status = map[string]interface{}{"status": "failed"}

	res, err := f.orch.Execute(context.Background(), ExecuteRequest{TemplateName: "rds"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, res.Status)
	assert.Equal(t, "task failed with status: failed", res.Error)
	assert.Empty(t, f.store.downloads)
	assert.Equal(t, "task failed with status: failed", f.publisher.events[1].Error)
}

func TestExecute_BackendErrorIsReturned(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{})
	f.backend.executeErr = apperr.New(apperr.KindValidation, "missing required parameters: name")

	_, err := f.orch.Execute(context.Background(), ExecuteRequest{TemplateName: "rds"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Empty(t, f.history.saved)
}

func TestExecute_HistoryFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{})
	f.history.err = errors.New("database is locked")

	res, err := f.orch.Execute(context.Background(), ExecuteRequest{TemplateName: "rds"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", res.TaskID)
}

func TestGetTaskLogs(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{})
	_, err := f.orch.GetTaskLogs(context.Background(), "", "task-1")
	assert.Equal(t, apperr.KindBackend, apperr.KindOf(err))

	orch, err := NewOrchestrator(OrchestratorConfig{Backends: []BackendEntry{{Name: "local", Client: &loggingBackend{}}}})
	require.NoError(t, err)
	logs, err := orch.GetTaskLogs(context.Background(), "local", "task-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", logs[0].Message)
}

func TestArtifactURL(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{Bucket: "default-bucket", PresignTTL: 10 * time.Minute})
	ctx := context.Background()

	_, err := f.orch.ArtifactURL(ctx, "", "", "", 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	url, err := f.orch.ArtifactURL(ctx, "", "", "outputs/a.zip", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://signed/default-bucket/outputs/a.zip", url)
	assert.Equal(t, "default-bucket/outputs/a.zip@10m0s", f.store.presigned)

	_, err = f.orch.ArtifactURL(ctx, "", "other", "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "other/k@1m0s", f.store.presigned)
}

func TestListTasksAndInfo(t *testing.T) {
	f := newFixture(t, config.ArtifactConfig{})
	_, err := f.orch.Execute(context.Background(), ExecuteRequest{TemplateName: "rds"})
	require.NoError(t, err)

	records, err := f.orch.ListTasks(context.Background(), db.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	info := f.orch.Info()
	assert.Equal(t, "backstage", info["default_client"])
	assert.Equal(t, []string{"backstage"}, info["available_clients"])

	noHistory, err := NewOrchestrator(OrchestratorConfig{Backends: []BackendEntry{{Name: "x", Client: &fakeBackend{}}}})
	require.NoError(t, err)
	records, err = noHistory.ListTasks(context.Background(), db.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGetTaskStatus_UsesRecordedBackend(t *testing.T) {
	history := &fakeHistory{saved: []*db.TaskRecord{{TaskID: "t-local", Backend: "local"}}}
	remoteBackend := &fakeBackend{status: map[string]interface{}{"status": "processing"}}
	localBackend := &loggingBackend{fakeBackend{status: map[string]interface{}{"status": "completed"}}}
	orch, err := NewOrchestrator(OrchestratorConfig{
		Backends: []BackendEntry{
			{Name: "backstage", Client: remoteBackend},
			{Name: "local", Client: localBackend},
		},
		DefaultClient: "backstage",
		History:       history,
	})
	require.NoError(t, err)
	ctx := context.Background()

	status, err := orch.GetTaskStatus(ctx, "", "t-local")
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)

	logs, err := orch.GetTaskLogs(ctx, "", "t-local")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	status, err = orch.GetTaskStatus(ctx, "", "unrecorded")
	require.NoError(t, err)
	assert.Equal(t, "processing", status.Status)

	status, err = orch.GetTaskStatus(ctx, "backstage", "t-local")
	require.NoError(t, err)
	assert.Equal(t, "processing", status.Status)
}

// Package remote talks to a Backstage-style catalog and scaffolder API.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/google/uuid"

	"template-task-service/internal/template-api/apperr"
	"template-task-service/internal/template-api/clients"
	"template-task-service/internal/template-api/models"
)

const defaultTimeout = 30 * time.Second

type Config struct {
	// BaseURL is the API root, e.g. http://backstage:7007/api.
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

type Client struct {
	http      *client.Client
	baseURL   string
	uiBaseURL string
	authToken string
	timeout   time.Duration
	now       func() time.Time
}

var (
	_ clients.Backend   = (*Client)(nil)
	_ clients.LogReader = (*Client)(nil)
)

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperr.New(apperr.KindClientInit, "remote backend requires a base URL")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc, err := client.NewClient(client.WithDialTimeout(timeout))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindClientInit, err, "failed to create HTTP client")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		http:      hc,
		baseURL:   base,
		uiBaseURL: strings.TrimSuffix(base, "/api"),
		authToken: cfg.AuthToken,
		timeout:   timeout,
		now:       time.Now,
	}, nil
}

// do sends one request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindExecution, err, "failed to encode request for %s", path)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(raw)
	}

	hlog.CtxDebugf(ctx, "Making %s request to %s", method, path)
	if err := c.http.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		hlog.CtxErrorf(ctx, "Request %s %s failed: %v", method, path, err)
		return apperr.Wrap(apperr.KindConnection, err, "failed to reach backend at %s", c.baseURL)
	}

	status := resp.StatusCode()
	if status == http.StatusNotFound {
		return apperr.New(apperr.KindNotFound, "resource not found: %s", path)
	}
	if status < 200 || status >= 300 {
		hlog.CtxErrorf(ctx, "Backend returned %d for %s %s: %s", status, method, path, resp.Body())
		return apperr.New(apperr.KindBackend, "backend API error: %d - %s", status, strings.TrimSpace(string(resp.Body())))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return apperr.Wrap(apperr.KindBackend, err, "malformed response from %s", path)
	}
	return nil
}

func (c *Client) ListTemplates(ctx context.Context, filters models.ListFilters) (*models.TemplateList, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/catalog/entities?filter=kind=Template", nil, &raw); err != nil {
		return nil, err
	}
	entities, err := decodeEntities(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, err, "malformed catalog response")
	}

	templates := make([]models.Template, 0, len(entities))
	for _, e := range entities {
		templates = append(templates, e.toTemplate())
	}
	return clients.FilterTemplates(templates, filters), nil
}

func (c *Client) GetTemplate(ctx context.Context, name string) (*models.Template, error) {
	ref := models.ParseTemplateRef(name)
	var e entity
	path := fmt.Sprintf("/catalog/entities/by-name/%s/%s/%s",
		url.PathEscape(ref.Kind), url.PathEscape(ref.Namespace), url.PathEscape(ref.Name))
	if err := c.do(ctx, http.MethodGet, path, nil, &e); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.New(apperr.KindNotFound, "template not found: %s", name)
		}
		return nil, err
	}
	tpl := e.toTemplate()
	return &tpl, nil
}

// GetParameters uses the parameters embedded in the catalog entity and only
// asks the scaffolder for a parameter schema when there are none.
func (c *Client) GetParameters(ctx context.Context, name string) (*models.ParameterSchema, error) {
	tpl, err := c.GetTemplate(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(tpl.Spec.Parameters) > 0 {
		return &models.ParameterSchema{Parameters: tpl.Spec.Parameters}, nil
	}

	ref := models.ParseTemplateRef(name)
	path := fmt.Sprintf("/scaffolder/v2/templates/%s/%s/%s",
		url.PathEscape(ref.Namespace), url.PathEscape(ref.Kind), url.PathEscape(ref.Name))
	var schema struct {
		Parameters parameterBlocks `json:"parameters"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &schema); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.New(apperr.KindNotFound, "template parameters not found: %s", name)
		}
		return nil, err
	}
	return &models.ParameterSchema{Parameters: schema.Parameters}, nil
}

type taskRequest struct {
	TemplateRef string                 `json:"templateRef"`
	Values      map[string]interface{} `json:"values"`
	Secrets     map[string]interface{} `json:"secrets"`
	IsDryRun    bool                   `json:"isDryRun"`
}

// ExecuteTemplate submits the task and returns immediately; the scaffolder runs it asynchronously.
func (c *Client) ExecuteTemplate(ctx context.Context, task models.TemplateTask) (*models.TaskHandle, error) {
	hlog.CtxInfof(ctx, "Submitting template %s (dry run: %t)", task.TemplateName, task.DryRun)

	values := task.Parameters
	if values == nil {
		values = map[string]interface{}{}
	}
	payload := taskRequest{
		TemplateRef: models.ParseTemplateRef(task.TemplateName).String(),
		Values:      values,
		Secrets:     map[string]interface{}{},
		IsDryRun:    task.DryRun,
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/scaffolder/v2/tasks", payload, &created); err != nil {
		return nil, err
	}

	taskID := created.ID
	if taskID == "" {
		taskID = uuid.NewString()
		hlog.CtxWarnf(ctx, "Backend returned no task id for %s, using %s", task.TemplateName, taskID)
	}
	return &models.TaskHandle{
		TaskID:        taskID,
		TemplateName:  task.TemplateName,
		Status:        models.StatusPending,
		CreatedAt:     c.now(),
		LogURL:        fmt.Sprintf("%s/create/tasks/%s/logs", c.uiBaseURL, taskID),
		CompletionURL: fmt.Sprintf("%s/create/tasks/%s/completion", c.uiBaseURL, taskID),
	}, nil
}

func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	var raw map[string]interface{}
	if err := c.do(ctx, http.MethodGet, "/scaffolder/v2/tasks/"+url.PathEscape(taskID), nil, &raw); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.New(apperr.KindNotFound, "task not found: %s", taskID)
		}
		return nil, err
	}
	status, _ := raw["status"].(string)
	return &models.TaskStatus{TaskID: taskID, Status: status, Raw: raw}, nil
}

func (c *Client) GetTaskLogs(ctx context.Context, taskID string) ([]models.TaskLogEntry, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/scaffolder/v2/tasks/"+url.PathEscape(taskID)+"/events", nil, &raw); err != nil {
		if apperr.IsNotFound(err) {
			return nil, apperr.New(apperr.KindNotFound, "task not found: %s", taskID)
		}
		return nil, err
	}
	events, err := decodeEvents(raw)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, err, "malformed task events response")
	}

	entries := make([]models.TaskLogEntry, 0, len(events))
	for _, ev := range events {
		entries = append(entries, ev.toLogEntry())
	}
	return entries, nil
}

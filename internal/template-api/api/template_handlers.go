package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"

	"template-task-service/internal/template-api/models"
	"template-task-service/internal/template-api/services"
)

func (h *Handler) ListTemplates(ctx context.Context, c *app.RequestContext) {
	filters := models.ListFilters{
		CloudProvider: c.Query("cloud_provider"),
		TemplateType:  c.Query("template_type"),
		Owner:         c.Query("owner"),
		Search:        c.Query("search"),
	}
	for _, tag := range c.QueryArgs().PeekAll("tag") {
		filters.Tags = append(filters.Tags, string(tag))
	}

	list, err := h.Service.ListTemplates(ctx, c.Query("client_name"), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetTemplate(ctx context.Context, c *app.RequestContext) {
	tpl, err := h.Service.GetTemplate(ctx, c.Query("client_name"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *Handler) GetParameters(ctx context.Context, c *app.RequestContext) {
	params, err := h.Service.GetParameters(ctx, c.Query("client_name"), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, params)
}

type ExecuteTemplateRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
	DryRun     bool                   `json:"dry_run"`
}

// ExecuteTemplate runs a template. Storage options come from the query string:
// s3_bucket, s3_key, local_path, aws_access_key, aws_secret_key, aws_region,
// poll_interval and timeout (seconds).
func (h *Handler) ExecuteTemplate(ctx context.Context, c *app.RequestContext) {
	var body ExecuteTemplateRequest
	if len(c.Request.Body()) > 0 {
		if err := c.BindJSON(&body); err != nil {
			badRequest(c, "invalid request payload: %v", err)
			return
		}
	}

	pollInterval, err := querySeconds(c, "poll_interval")
	if err != nil {
		badRequest(c, "%v", err)
		return
	}
	timeout, err := querySeconds(c, "timeout")
	if err != nil {
		badRequest(c, "%v", err)
		return
	}

	req := services.ExecuteRequest{
		Client:       c.Query("client_name"),
		TemplateName: c.Param("name"),
		Parameters:   body.Parameters,
		DryRun:       body.DryRun,
		Bucket:       c.Query("s3_bucket"),
		Key:          c.Query("s3_key"),
		LocalPath:    c.Query("local_path"),
		AccessKey:    c.Query("aws_access_key"),
		SecretKey:    c.Query("aws_secret_key"),
		Region:       c.Query("aws_region"),
		PollInterval: pollInterval,
		Timeout:      timeout,
	}
	hlog.CtxInfof(ctx, "Executing template %s (client %q, dry run %t)", req.TemplateName, req.Client, req.DryRun)

	result, err := h.Service.Execute(ctx, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// maxQuerySeconds bounds poll_interval, timeout and ttl to seven days.
const maxQuerySeconds = 7 * 24 * 60 * 60

func querySeconds(c *app.RequestContext, key string) (time.Duration, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxQuerySeconds {
		return 0, &queryError{key: key, value: raw}
	}
	return time.Duration(n) * time.Second, nil
}

type queryError struct {
	key, value string
}

func (e *queryError) Error() string {
	return "invalid " + e.key + ": " + strconv.Quote(e.value) + " is not a number of seconds between 0 and " + strconv.Itoa(maxQuerySeconds)
}

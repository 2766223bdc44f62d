package api

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
)

func (h *Handler) ArtifactURL(ctx context.Context, c *app.RequestContext) {
	ttl, err := querySeconds(c, "ttl")
	if err != nil {
		badRequest(c, "%v", err)
		return
	}
	url, err := h.Service.ArtifactURL(ctx, c.Query("client_name"), c.Query("bucket"), c.Query("key"), ttl)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.H{"url": url, "key": c.Query("key")})
}

func (h *Handler) Health(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{"status": "ok", "message": "Template API is running"})
}

func (h *Handler) Ping(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, utils.H{"message": "pong"})
}

func (h *Handler) APISource(ctx context.Context, c *app.RequestContext) {
	c.JSON(http.StatusOK, h.Service.Info())
}

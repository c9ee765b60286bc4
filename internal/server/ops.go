package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/minutes/internal/queue/streams"
	"github.com/mohammad-safakhou/minutes/internal/telemetry"
)

// OpsHandler exposes operational endpoints (pipeline metrics, queue lag).
type OpsHandler struct {
	Telemetry *telemetry.Telemetry
	Rdb       *redis.Client
	Stream    string
	Group     string
}

// Register mounts ops endpoints under the provided group. It expects
// authentication to be applied by the caller.
func (h *OpsHandler) Register(g *echo.Group) {
	g.GET("/metrics", h.metrics)
	g.GET("/dashboard", h.dashboard)
}

// Metrics
//
//	@Summary	Pipeline metrics, per-model costs and queue lag
//	@Tags		ops
//	@Produce	json
//	@Success	200	{object}	map[string]interface{}
//	@Router		/api/ops/metrics [get]
func (h *OpsHandler) metrics(c echo.Context) error {
	data := map[string]interface{}{}
	if h.Telemetry != nil {
		data["pipeline"] = h.Telemetry.Snapshot()
		data["costs"] = h.Telemetry.Costs()
	}
	if h.Rdb != nil {
		lag, err := streams.InspectGroup(c.Request().Context(), h.Rdb, h.Stream, h.Group)
		if err != nil {
			data["queue_error"] = err.Error()
		} else {
			data["queue"] = lag
		}
	}
	return c.JSON(http.StatusOK, data)
}

// dashboard renders the same numbers as a minimal HTML page without JS.
func (h *OpsHandler) dashboard(c echo.Context) error {
	data := map[string]interface{}{}
	if h.Telemetry != nil {
		data["pipeline"] = h.Telemetry.Snapshot()
		data["costs"] = h.Telemetry.Costs()
	}
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset=\"utf-8\"><title>Minutes Ops</title></head><body style=\"font-family:system-ui,sans-serif;color:#e5e7eb;background:#0f172a\">")
	b.WriteString("<div style=\"max-width:960px;margin:24px auto;padding:0 16px\">")
	b.WriteString("<h1 style=\"font-size:18px;font-weight:600;margin-bottom:8px\">Pipeline Dashboard</h1>")
	b.WriteString("<pre style=\"background:#0b1220;border:1px solid #1f2937;border-radius:8px;padding:12px;overflow:auto\"><code>")
	if blob, err := json.MarshalIndent(data, "", "  "); err == nil {
		b.Write(blob)
	}
	b.WriteString("</code></pre></div></body></html>")
	return c.HTML(http.StatusOK, b.String())
}

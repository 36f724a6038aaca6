package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"permit-gateway/internal/config"
	"permit-gateway/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// healthTimeFormat matches the millisecond ISO-8601 timestamps the front end expects.
const healthTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// HealthHandler serves health and status endpoints. Neither probes the backends.
type HealthHandler struct {
	cfg     *config.Config
	routes  *route.Table
	version Version
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, routes *route.Table, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, routes: routes, version: v, now: time.Now}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Backends  map[string]string `json:"backends"`
}

type routeInfo struct {
	Prefix      string `json:"prefix"`
	Backend     string `json:"backend"`
	StripPrefix bool   `json:"strip_prefix"`
}

type statusResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Backends map[string]string `json:"backends"`
	Routes   []routeInfo       `json:"routes"`
}

// Health reports the gateway as alive along with the configured backend addresses.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(healthTimeFormat),
		Backends:  h.backendURLs(),
	})
}

// Status returns gateway build and routing information.
func (h *HealthHandler) Status(c echo.Context) error {
	routes := h.routes.Routes()
	infos := make([]routeInfo, len(routes))
	for i, r := range routes {
		infos[i] = routeInfo{Prefix: r.Prefix, Backend: r.Backend, StripPrefix: r.StripPrefix}
	}
	return c.JSON(http.StatusOK, statusResponse{
		Status:   "ok",
		Version:  string(h.version),
		Backends: h.backendURLs(),
		Routes:   infos,
	})
}

func (h *HealthHandler) backendURLs() map[string]string {
	out := make(map[string]string)
	for name, b := range h.cfg.BackendMap() {
		out[name] = redactURL(b.BaseURL)
	}
	return out
}

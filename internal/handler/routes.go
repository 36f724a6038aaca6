package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"permit-gateway/internal/config"
	"permit-gateway/internal/metrics"
	"permit-gateway/internal/middleware"
	"permit-gateway/internal/route"
)

// HealthPath and StatusPath are answered locally, never proxied.
const (
	HealthPath = "/health"
	StatusPath = "/gateway/status"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// m may be nil when metrics are disabled.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, routes *route.Table, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET(HealthPath, health.Health)
	e.GET(StatusPath, health.Status)

	if m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	for _, prefix := range routes.Prefixes() {
		e.Any(prefix, proxy.Handle)
		e.Any(prefix+"/*", proxy.Handle)
	}

	// Non-API GET/HEAD requests check the asset root first; unknown paths
	// fall through to the routes above and finally to the SPA index.
	e.Use(middleware.SPA(cfg.Static.Dir, cfg.Static.Index))
}

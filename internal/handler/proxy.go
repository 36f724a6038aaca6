package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"

	"github.com/labstack/echo/v4"

	"permit-gateway/internal/model"
	"permit-gateway/internal/route"
	"permit-gateway/internal/service"
)

// credentialsPattern matches userinfo in URLs embedded in error messages.
var credentialsPattern = regexp.MustCompile(`(://)[^/@\s"]+@`)

// ProxyHandler forwards API requests to the upstream backends.
type ProxyHandler struct {
	service *service.ProxyService
	routes  *route.Table
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, routes *route.Table, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		routes:  routes,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the backend of the first matching route and
// streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	rt, ok := h.routes.Match(req.URL.Path)
	if !ok {
		return echo.ErrNotFound
	}

	pr := &model.ProxyRequest{
		Ctx:           req.Context(),
		Method:        req.Method,
		Path:          req.URL.EscapedPath(),
		RawQuery:      req.URL.RawQuery,
		Header:        req.Header,
		Body:          req.Body,
		ContentLength: req.ContentLength,
	}

	resp, err := h.service.Forward(rt, pr)
	if err != nil {
		return h.mapError(c, rt, err)
	}
	defer func() { _ = resp.Body.Close() }()

	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}
	c.Response().WriteHeader(resp.StatusCode)

	var w io.Writer = c.Response()
	if isEventStream(resp.Header.Get(echo.HeaderContentType)) {
		w = flushWriter{c.Response()}
	}

	// The status line is already sent, so a mid-stream failure (client
	// disconnect, upstream reset) can only truncate the body.
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", sanitizeError(err),
			"backend", rt.Backend,
			"path", req.URL.Path,
		)
	}
	return nil
}

// mapError converts forwarding failures into 502 responses. Anything that is
// not an upstream failure is returned to the central error handler.
func (h *ProxyHandler) mapError(c echo.Context, rt route.Route, err error) error {
	var ue *service.UpstreamError
	if !errors.As(err, &ue) {
		return err
	}

	h.logger.Error("proxy error",
		"err", sanitizeError(err),
		"backend", ue.Backend,
		"path", c.Request().URL.Path,
		"route", rt.Prefix,
	)

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error":   ue.Label + " unavailable",
		"details": failureReason(ue.Err),
	})
}

// failureReason produces the short cause reported to callers.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "upstream request timed out"
	case errors.Is(err, context.Canceled):
		return "client disconnected"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "upstream request timed out"
		}
		err = urlErr.Err
	}
	return sanitizeError(err)
}

// sanitizeError redacts URL credentials from error messages.
func sanitizeError(err error) string {
	return credentialsPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]@")
}

func isEventStream(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/event-stream"
}

// flushWriter pushes every chunk to the client immediately.
type flushWriter struct {
	r *echo.Response
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.r.Write(p)
	if err == nil {
		f.r.Flush()
	}
	return n, err
}

// redactURL hides userinfo credentials in a configured backend URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

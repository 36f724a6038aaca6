// Package service implements the core proxy forwarding logic.
package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"permit-gateway/internal/client"
	"permit-gateway/internal/config"
	"permit-gateway/internal/model"
	"permit-gateway/internal/route"
)

// ErrUnknownBackend is returned when a route names a backend that is not configured.
var ErrUnknownBackend = errors.New("unknown backend")

// UpstreamError reports a forwarding attempt that produced no upstream response.
type UpstreamError struct {
	Backend string
	Label   string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("forward to %s: %v", e.Backend, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type backend struct {
	name  string
	label string
	base  *url.URL
}

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client   *client.UpstreamClient
	logger   *slog.Logger
	backends map[string]backend
}

// NewProxyService creates a ProxyService for the configured backends.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	backends := make(map[string]backend)
	for name, bc := range cfg.BackendMap() {
		u, err := url.Parse(bc.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse %s base_url: %w", name, err)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("%s base_url %q has no host", name, bc.BaseURL)
		}
		label := bc.Label
		if label == "" {
			label = name
		}
		backends[name] = backend{name: name, label: label, base: u}
	}

	return &ProxyService{
		client:   c,
		logger:   logger.With("component", "proxy_service"),
		backends: backends,
	}, nil
}

// Label returns the human-readable name of a backend.
func (s *ProxyService) Label(name string) string {
	if b, ok := s.backends[name]; ok {
		return b.label
	}
	return name
}

// Forward sends a ProxyRequest to the backend selected by rt and returns the response.
// The caller is responsible for closing the response body.
//
// Exactly one attempt is made. Any failure before a response arrives is
// returned as *UpstreamError.
func (s *ProxyService) Forward(rt route.Route, pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	b, ok := s.backends[rt.Backend]
	if !ok {
		return nil, fmt.Errorf("%w %q for route %s", ErrUnknownBackend, rt.Backend, rt.Prefix)
	}

	target := buildUpstreamURL(b.base, rt.Rewrite(pr.Path), pr.RawQuery)

	var body io.Reader
	if pr.Body != nil && pr.ContentLength != 0 {
		body = pr.Body
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, target, body)
	if err != nil {
		return nil, &UpstreamError{Backend: b.name, Label: b.label, Err: fmt.Errorf("build upstream request: %w", err)}
	}
	req.Header = filterRequestHeaders(pr.Header)
	if body != nil {
		req.ContentLength = pr.ContentLength
	}
	// Present the upstream's own host rather than the caller's.
	req.Host = b.base.Host

	s.logger.Debug("forwarding request",
		"backend", b.name,
		"method", pr.Method,
		"path", pr.Path,
		"target", redactURL(target),
	)

	resp, err := s.client.Do(b.name, req)
	if err != nil {
		return nil, &UpstreamError{Backend: b.name, Label: b.label, Err: err}
	}

	resp.Header = filterResponseHeaders(resp.Header)
	return resp, nil
}

// buildUpstreamURL joins the backend base with an escaped path and raw query
// without re-encoding either.
func buildUpstreamURL(base *url.URL, path, rawQuery string) string {
	u := url.URL{
		Scheme: base.Scheme,
		User:   base.User,
		Host:   base.Host,
	}
	s := u.String() + strings.TrimSuffix(base.EscapedPath(), "/") + path
	if rawQuery != "" {
		s += "?" + rawQuery
	}
	return s
}

// filterRequestHeaders copies every end-to-end header. Host is carried on the
// request itself.
func filterRequestHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	removeHopByHop(dst)
	dst.Del("Host")
	// An empty User-Agent keeps Go's default from being injected.
	if _, ok := dst["User-Agent"]; !ok {
		dst["User-Agent"] = []string{""}
	}
	return dst
}

// filterResponseHeaders drops hop-by-hop headers; everything else is relayed verbatim.
func filterResponseHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	removeHopByHop(dst)
	return dst
}

func removeHopByHop(h http.Header) {
	// Headers named in Connection are hop-by-hop as well (RFC 9110 §7.6.1).
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range model.HopByHopHeaders {
		h.Del(name)
	}
}

// redactURL hides userinfo credentials embedded in a backend URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

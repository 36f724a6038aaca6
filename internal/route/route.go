// Package route holds the static table that maps API path prefixes to upstream backends.
package route

import (
	"errors"
	"fmt"
	"strings"
)

// Backend names used by the default table.
const (
	BackendDocuments = "documents"
	BackendAI        = "ai"
)

// APIPrefix is the reserved path namespace for proxied API calls.
const APIPrefix = "/api"

// Route maps a path prefix to a named upstream backend.
type Route struct {
	Prefix      string
	Backend     string
	StripPrefix bool
}

// Matches reports whether path falls under the route's mount point.
// "/api/apps" matches "/api/apps" and "/api/apps/x" but not "/api/appsx".
func (r Route) Matches(path string) bool {
	if !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	return len(path) == len(r.Prefix) || path[len(r.Prefix)] == '/'
}

// Rewrite returns the upstream path for an (escaped) inbound path.
func (r Route) Rewrite(path string) string {
	if !r.StripPrefix {
		return path
	}
	rest := strings.TrimPrefix(path, r.Prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// Table is an immutable, ordered list of routes.
type Table struct {
	routes []Route
}

// NewTable validates routes and returns a Table that preserves their order.
func NewTable(routes []Route) (*Table, error) {
	if len(routes) == 0 {
		return nil, errors.New("route table is empty")
	}
	seen := make(map[string]bool, len(routes))
	for _, r := range routes {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if seen[r.Prefix] {
			return nil, fmt.Errorf("duplicate route prefix %q", r.Prefix)
		}
		seen[r.Prefix] = true
	}
	return &Table{routes: append([]Route(nil), routes...)}, nil
}

func (r Route) validate() error {
	if !IsAPIPath(r.Prefix) || r.Prefix == APIPrefix {
		return fmt.Errorf("route prefix %q must be below %s/", r.Prefix, APIPrefix)
	}
	if strings.HasSuffix(r.Prefix, "/") {
		return fmt.Errorf("route prefix %q must not end with '/'", r.Prefix)
	}
	if strings.ContainsAny(r.Prefix, "*:?") {
		return fmt.Errorf("route prefix %q must be a literal path", r.Prefix)
	}
	if r.Backend == "" {
		return fmt.Errorf("route %q has no backend", r.Prefix)
	}
	return nil
}

// Match returns the first route, in registration order, whose prefix matches path.
func (t *Table) Match(path string) (Route, bool) {
	for _, r := range t.routes {
		if r.Matches(path) {
			return r, true
		}
	}
	return Route{}, false
}

// Routes returns a copy of the table entries.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}

// Prefixes returns the route prefixes in registration order.
func (t *Table) Prefixes() []string {
	out := make([]string, len(t.routes))
	for i, r := range t.routes {
		out[i] = r.Prefix
	}
	return out
}

// IsAPIPath reports whether path lies in the reserved /api namespace.
func IsAPIPath(path string) bool {
	return path == APIPrefix || strings.HasPrefix(path, APIPrefix+"/")
}

// Default returns the canonical route table.
func Default() []Route {
	return []Route{
		{Prefix: "/api/python", Backend: BackendDocuments, StripPrefix: true},
		{Prefix: "/api/node", Backend: BackendAI, StripPrefix: true},

		{Prefix: "/api/ai-chat", Backend: BackendAI, StripPrefix: true},
		{Prefix: "/api/ai-analyze-pdf", Backend: BackendAI, StripPrefix: true},
		{Prefix: "/api/form-fields", Backend: BackendAI, StripPrefix: true},
		{Prefix: "/api/fill-pdf", Backend: BackendAI, StripPrefix: true},

		{Prefix: "/api/apps", Backend: BackendDocuments, StripPrefix: true},
		{Prefix: "/api/process-county", Backend: BackendDocuments, StripPrefix: true},
	}
}

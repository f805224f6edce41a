package proxy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jamesprial/biteme-gateway/config"
)

// Rewrite replaces the From prefix of a path with To. An empty From leaves
// paths untouched; an empty To strips the prefix.
type Rewrite struct {
	From string
	To   string
}

// Apply returns the upstream path for path.
func (rw Rewrite) Apply(path string) string {
	if rw.From == "" || !hasSegmentPrefix(path, rw.From) {
		return path
	}
	out := rw.To + strings.TrimPrefix(path, rw.From)
	if !strings.HasPrefix(out, "/") {
		out = "/" + out
	}
	return out
}

// Route is one immutable entry of the routing table.
type Route struct {
	Prefix      string
	Service     string
	Rewrite     Rewrite
	Timeout     time.Duration
	RateClass   string
	RequireAuth bool
	PublicPaths []string
}

// IsPublic reports whether path may skip authentication. Public paths match
// on segment boundaries, so /api/auth/google covers its callbacks.
func (r *Route) IsPublic(path string) bool {
	if !r.RequireAuth {
		return true
	}
	for _, p := range r.PublicPaths {
		if hasSegmentPrefix(path, p) {
			return true
		}
	}
	return false
}

// Table matches request paths to routes, most specific prefix first.
type Table struct {
	routes []*Route
}

// NewTable builds a table from configuration. Routes without a timeout get
// defaultTimeout.
func NewTable(cfgs []config.RouteConfig, defaultTimeout time.Duration) (*Table, error) {
	routes := make([]*Route, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))

	for _, c := range cfgs {
		prefix := strings.TrimRight(c.PathPrefix, "/")
		if prefix == "" {
			prefix = "/"
		}
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("route prefix %q must start with /", c.PathPrefix)
		}
		if c.Service == "" {
			return nil, fmt.Errorf("route %q has no service", prefix)
		}
		if seen[prefix] {
			return nil, fmt.Errorf("duplicate route prefix %q", prefix)
		}
		seen[prefix] = true

		timeout := c.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}

		routes = append(routes, &Route{
			Prefix:      prefix,
			Service:     c.Service,
			Rewrite:     Rewrite{From: c.Rewrite.From, To: c.Rewrite.To},
			Timeout:     timeout,
			RateClass:   c.RateClass,
			RequireAuth: c.RequireAuth,
			PublicPaths: append([]string(nil), c.PublicPaths...),
		})
	}

	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})

	return &Table{routes: routes}, nil
}

// Match returns the route with the longest prefix covering path.
func (t *Table) Match(path string) (*Route, bool) {
	for _, r := range t.routes {
		if hasSegmentPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return nil, false
}

func hasSegmentPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

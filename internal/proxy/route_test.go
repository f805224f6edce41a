package proxy

import (
	"testing"
	"time"

	"github.com/jamesprial/biteme-gateway/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(config.Default().Routes, 30*time.Second)
	require.NoError(t, err)
	return table
}

func TestTable_Match(t *testing.T) {
	table := defaultTable(t)

	tests := []struct {
		path    string
		prefix  string
		service string
		found   bool
	}{
		{"/api/auth/login", "/api/auth", "auth", true},
		{"/api/auth", "/api/auth", "auth", true},
		{"/api/meals", "/api/meals", "meals", true},
		{"/api/meals/123", "/api/meals", "meals", true},
		{"/api/meals/nutrition/daily", "/api/meals/nutrition", "meals", true},
		{"/api/meals/nutrition", "/api/meals/nutrition", "meals", true},
		{"/api/mealsx", "", "", false},
		{"/api/ai/analyze", "/api/ai", "ai", true},
		{"/api/unknown", "", "", false},
		{"/", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route, ok := table.Match(tt.path)
			assert.Equal(t, tt.found, ok)
			if !tt.found {
				return
			}
			assert.Equal(t, tt.prefix, route.Prefix)
			assert.Equal(t, tt.service, route.Service)
		})
	}
}

func TestTable_LongestPrefixWinsRegardlessOfOrder(t *testing.T) {
	routes := []config.RouteConfig{
		{PathPrefix: "/api/meals", Service: "meals"},
		{PathPrefix: "/api/meals/nutrition", Service: "nutrition"},
	}
	table, err := NewTable(routes, time.Second)
	require.NoError(t, err)

	route, ok := table.Match("/api/meals/nutrition/weekly")
	require.True(t, ok)
	assert.Equal(t, "nutrition", route.Service)
}

func TestNewTable_Errors(t *testing.T) {
	tests := []struct {
		name   string
		routes []config.RouteConfig
	}{
		{"relative prefix", []config.RouteConfig{{PathPrefix: "api", Service: "x"}}},
		{"no service", []config.RouteConfig{{PathPrefix: "/api"}}},
		{"duplicate", []config.RouteConfig{{PathPrefix: "/api", Service: "x"}, {PathPrefix: "/api/", Service: "y"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.routes, time.Second)
			assert.Error(t, err)
		})
	}
}

func TestNewTable_Timeouts(t *testing.T) {
	table := defaultTable(t)

	ai, _ := table.Match("/api/ai/analyze")
	assert.Equal(t, 60*time.Second, ai.Timeout)

	meals, _ := table.Match("/api/meals")
	assert.Equal(t, 30*time.Second, meals.Timeout)
}

func TestRewrite_Apply(t *testing.T) {
	tests := []struct {
		name    string
		rewrite Rewrite
		path    string
		want    string
	}{
		{"nutrition", Rewrite{From: "/api/meals/nutrition", To: "/api/nutrition"}, "/api/meals/nutrition/daily", "/api/nutrition/daily"},
		{"nutrition root", Rewrite{From: "/api/meals/nutrition", To: "/api/nutrition"}, "/api/meals/nutrition", "/api/nutrition"},
		{"preserve", Rewrite{From: "/api/auth", To: "/api/auth"}, "/api/auth/login", "/api/auth/login"},
		{"strip", Rewrite{From: "/api/auth", To: ""}, "/api/auth/login", "/login"},
		{"strip to root", Rewrite{From: "/api/auth", To: ""}, "/api/auth", "/"},
		{"no rule", Rewrite{}, "/api/meals/1", "/api/meals/1"},
		{"not on boundary", Rewrite{From: "/api/meals", To: "/meals"}, "/api/mealsx", "/api/mealsx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rewrite.Apply(tt.path))
		})
	}
}

func TestRoute_IsPublic(t *testing.T) {
	table := defaultTable(t)
	authRoute, _ := table.Match("/api/auth/login")
	mealsRoute, _ := table.Match("/api/meals")

	tests := []struct {
		route  *Route
		path   string
		public bool
	}{
		{authRoute, "/api/auth/login", true},
		{authRoute, "/api/auth/register", true},
		{authRoute, "/api/auth/google", true},
		{authRoute, "/api/auth/google/callback", true},
		{authRoute, "/api/auth/profile", false},
		{authRoute, "/api/auth/loginx", false},
		{mealsRoute, "/api/meals", false},
		{&Route{RequireAuth: false}, "/anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.public, tt.route.IsPublic(tt.path))
		})
	}
}

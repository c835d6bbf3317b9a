package rest

import (
	"testing"
	"time"

	"github.com/txn2/tabular/pkg/adapter"
	"github.com/txn2/tabular/pkg/apiclient"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/schema"
)

func validConfig() map[string]any {
	return map[string]any{
		"base_url":    "https://api.example.test/v2",
		"health_path": "/status",
		"timeout":     "10s",
		"max_retries": 2,
		"auth": map[string]any{
			"type":  "bearer",
			"token": "opaque-token",
		},
		"headers": map[string]any{
			"X-Tenant": "acme",
		},
		"resources": []any{
			map[string]any{
				"name":          "articles",
				"list_path":     "/articles",
				"records_field": "items",
				"count_field":   "affected",
				"writable":      true,
				"columns": []any{
					map[string]any{"name": "id", "type": "int"},
					map[string]any{"name": "author", "type": "string"},
					map[string]any{"name": "published", "type": "timestamp", "nullable": true},
				},
				"filters": map[string]any{
					"author": []any{"equals", "in"},
				},
				"pagination": map[string]any{
					"style":        "cursor",
					"cursor_param": "cursor",
					"cursor_field": "next_cursor",
					"limit_param":  "limit",
					"page_size":    float64(50),
				},
			},
		},
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(validConfig())
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}

	if cfg.BaseURL != "https://api.example.test/v2" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.HealthPath != "/status" {
		t.Errorf("HealthPath = %q", cfg.HealthPath)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
	if cfg.Auth.Type != apiclient.AuthBearer || cfg.Auth.Token != "opaque-token" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Headers["X-Tenant"] != "acme" {
		t.Errorf("Headers = %v", cfg.Headers)
	}

	if len(cfg.Resources) != 1 {
		t.Fatalf("resources = %d, want 1", len(cfg.Resources))
	}
	res := cfg.Resources[0]
	if res.Name != "articles" || res.ListPath != "/articles" {
		t.Errorf("resource = %+v", res)
	}
	if !res.Writable {
		t.Error("writable not parsed")
	}
	if len(res.Columns) != 3 {
		t.Fatalf("columns = %d, want 3", len(res.Columns))
	}
	if res.Columns[2].Type != schema.TypeTimestamp || !res.Columns[2].Nullable {
		t.Errorf("column 2 = %+v", res.Columns[2])
	}
	if ops := res.Filters["author"]; len(ops) != 2 || ops[0] != query.OpEquals || ops[1] != query.OpIn {
		t.Errorf("filters = %v", res.Filters)
	}
	if res.Pagination.Style != adapter.PageCursor || res.Pagination.PageSize != 50 {
		t.Errorf("pagination = %+v", res.Pagination)
	}
	if res.CountField != "affected" {
		t.Errorf("CountField = %q", res.CountField)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"base_url": "http://x.test",
		"resources": []any{
			map[string]any{
				"name":      "things",
				"list_path": "/things",
				"columns": []any{
					map[string]any{"name": "id", "type": "int"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("ParseConfig() error: %v", err)
	}
	if cfg.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want default", cfg.Timeout)
	}
	if cfg.MaxRetries != defaultMaxRetries {
		t.Errorf("MaxRetries = %d, want default", cfg.MaxRetries)
	}
	if cfg.Auth.Type != apiclient.AuthNone {
		t.Errorf("Auth.Type = %q, want none", cfg.Auth.Type)
	}
	if cfg.Resources[0].Pagination.Style != adapter.PageNone {
		t.Errorf("pagination style = %q, want none", cfg.Resources[0].Pagination.Style)
	}
}

func TestParseConfigErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing base_url", func(c map[string]any) { delete(c, "base_url") }},
		{"no resources", func(c map[string]any) { delete(c, "resources") }},
		{"bad timeout", func(c map[string]any) { c["timeout"] = "soon" }},
		{"bearer without token", func(c map[string]any) {
			c["auth"] = map[string]any{"type": "bearer"}
		}},
		{"resource without name", func(c map[string]any) {
			c["resources"] = []any{map[string]any{
				"list_path": "/x",
				"columns":   []any{map[string]any{"name": "id", "type": "int"}},
			}}
		}},
		{"resource without list_path", func(c map[string]any) {
			c["resources"] = []any{map[string]any{
				"name":    "x",
				"columns": []any{map[string]any{"name": "id", "type": "int"}},
			}}
		}},
		{"resource without columns", func(c map[string]any) {
			c["resources"] = []any{map[string]any{"name": "x", "list_path": "/x"}}
		}},
		{"unknown column type", func(c map[string]any) {
			c["resources"] = []any{map[string]any{
				"name":      "x",
				"list_path": "/x",
				"columns":   []any{map[string]any{"name": "id", "type": "uuid"}},
			}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if _, err := ParseConfig(cfg); err == nil {
				t.Error("ParseConfig() should fail")
			}
		})
	}
}

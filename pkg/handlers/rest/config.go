package rest

import (
	"fmt"
	"time"

	"github.com/txn2/tabular/pkg/adapter"
	"github.com/txn2/tabular/pkg/apiclient"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/schema"
)

// ParseConfig parses a REST handler configuration from a map.
func ParseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
	}

	// Required fields
	v, ok := cfg["base_url"].(string)
	if !ok || v == "" {
		return c, fmt.Errorf("base_url is required")
	}
	c.BaseURL = v

	// Optional string fields
	c.HealthPath = getString(cfg, "health_path")
	c.ConnectionName = getString(cfg, "connection_name")

	// Optional int fields
	c.MaxRetries = getInt(cfg, "max_retries", c.MaxRetries)

	// Timeout with duration parsing
	if timeout, err := getDuration(cfg, "timeout"); err != nil {
		return c, fmt.Errorf("invalid timeout: %w", err)
	} else if timeout > 0 {
		c.Timeout = timeout
	}

	c.Headers = getStringMap(cfg, "headers")

	auth, err := parseAuth(cfg)
	if err != nil {
		return c, err
	}
	c.Auth = auth

	resources, err := parseResources(cfg)
	if err != nil {
		return c, err
	}
	if len(resources) == 0 {
		return c, fmt.Errorf("at least one resource is required")
	}
	c.Resources = resources

	return c, nil
}

// parseAuth extracts authentication configuration from a config map.
func parseAuth(cfg map[string]any) (apiclient.Auth, error) {
	raw, ok := cfg["auth"].(map[string]any)
	if !ok {
		return apiclient.Auth{Type: apiclient.AuthNone}, nil
	}

	auth := apiclient.Auth{
		Type:     apiclient.AuthType(getString(raw, "type")),
		Username: getString(raw, "username"),
		Password: getString(raw, "password"),
		Token:    getString(raw, "token"),
		Header:   getString(raw, "header"),
	}
	if auth.Type == "" {
		auth.Type = apiclient.AuthNone
	}
	if err := auth.Validate(); err != nil {
		return auth, fmt.Errorf("invalid auth: %w", err)
	}
	return auth, nil
}

// parseResources extracts the declared resource list from a config map.
func parseResources(cfg map[string]any) ([]Resource, error) {
	raw, ok := cfg["resources"].([]any)
	if !ok {
		return nil, nil
	}

	resources := make([]Resource, 0, len(raw))
	for i, item := range raw {
		rcfg, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("resource %d is %T, expected map", i, item)
		}
		res, err := parseResource(rcfg)
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
		resources = append(resources, res)
	}
	return resources, nil
}

func parseResource(cfg map[string]any) (Resource, error) {
	res := Resource{
		Name:         getString(cfg, "name"),
		ListPath:     getString(cfg, "list_path"),
		CreatePath:   getString(cfg, "create_path"),
		UpdatePath:   getString(cfg, "update_path"),
		DeletePath:   getString(cfg, "delete_path"),
		RecordsField: getString(cfg, "records_field"),
		FieldsParam:  getString(cfg, "fields_param"),
		CountField:   getString(cfg, "count_field"),
		Writable:     getBool(cfg, "writable"),
	}
	if res.Name == "" {
		return res, fmt.Errorf("name is required")
	}
	if res.ListPath == "" {
		return res, fmt.Errorf("list_path is required")
	}

	columns, err := parseColumns(cfg)
	if err != nil {
		return res, err
	}
	if len(columns) == 0 {
		return res, fmt.Errorf("at least one column is required")
	}
	res.Columns = columns

	res.Filters = parseFilters(cfg)
	res.Pagination = parsePagination(cfg)
	return res, nil
}

func parseColumns(cfg map[string]any) ([]schema.Column, error) {
	raw, ok := cfg["columns"].([]any)
	if !ok {
		return nil, nil
	}

	columns := make([]schema.Column, 0, len(raw))
	for i, item := range raw {
		ccfg, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("column %d is %T, expected map", i, item)
		}
		col := schema.Column{
			Name:     getString(ccfg, "name"),
			Type:     schema.ColumnType(getString(ccfg, "type")),
			Nullable: getBool(ccfg, "nullable"),
		}
		if col.Name == "" {
			return nil, fmt.Errorf("column %d: name is required", i)
		}
		switch col.Type {
		case schema.TypeString, schema.TypeInt, schema.TypeFloat,
			schema.TypeBool, schema.TypeTimestamp:
		default:
			return nil, fmt.Errorf("column %q: unknown type %q", col.Name, col.Type)
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func parseFilters(cfg map[string]any) map[string][]query.Op {
	raw, ok := cfg["filters"].(map[string]any)
	if !ok {
		return nil
	}
	filters := make(map[string][]query.Op, len(raw))
	for col, v := range raw {
		ops, ok := v.([]any)
		if !ok {
			continue
		}
		for _, op := range ops {
			if s, ok := op.(string); ok {
				filters[col] = append(filters[col], query.Op(s))
			}
		}
	}
	return filters
}

func parsePagination(cfg map[string]any) adapter.Pagination {
	raw, ok := cfg["pagination"].(map[string]any)
	if !ok {
		return adapter.Pagination{Style: adapter.PageNone}
	}
	return adapter.Pagination{
		Style:         adapter.PaginationStyle(getString(raw, "style")),
		CursorParam:   getString(raw, "cursor_param"),
		CursorField:   getString(raw, "cursor_field"),
		NextLinkField: getString(raw, "next_link_field"),
		OffsetParam:   getString(raw, "offset_param"),
		LimitParam:    getString(raw, "limit_param"),
		PageSize:      getInt(raw, "page_size", 0),
		MaxPages:      getInt(raw, "max_pages", 0),
	}
}

// getString extracts a string value from a config map.
func getString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// getInt extracts an int value from a config map with a default.
func getInt(cfg map[string]any, key string, defaultVal int) int {
	if v, ok := cfg[key].(int); ok {
		return v
	}
	if v, ok := cfg[key].(float64); ok {
		return int(v)
	}
	return defaultVal
}

// getBool extracts a bool value from a config map.
func getBool(cfg map[string]any, key string) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return false
}

// getStringMap extracts a map[string]string value from a config map.
func getStringMap(cfg map[string]any, key string) map[string]string {
	raw, ok := cfg[key].(map[string]any)
	if !ok {
		return nil
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}

// getDuration extracts a duration value from a config map.
func getDuration(cfg map[string]any, key string) (time.Duration, error) {
	if v, ok := cfg[key].(string); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parsing duration %q: %w", v, err)
		}
		return d, nil
	}
	if v, ok := cfg[key].(int); ok {
		return time.Duration(v) * time.Second, nil
	}
	if v, ok := cfg[key].(float64); ok {
		return time.Duration(v) * time.Second, nil
	}
	return 0, nil
}

package modelsrv

import (
	"fmt"
	"time"

	"github.com/txn2/tabular/pkg/apiclient"
	"github.com/txn2/tabular/pkg/schema"
)

// ParseConfig parses a model-serving handler configuration from a map.
func ParseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
	}

	v, ok := cfg["base_url"].(string)
	if !ok || v == "" {
		return c, fmt.Errorf("base_url is required")
	}
	c.BaseURL = v

	c.HealthPath = getString(cfg, "health_path")
	c.ConnectionName = getString(cfg, "connection_name")
	c.MaxRetries = getInt(cfg, "max_retries", c.MaxRetries)

	if timeout, err := getDuration(cfg, "timeout"); err != nil {
		return c, fmt.Errorf("invalid timeout: %w", err)
	} else if timeout > 0 {
		c.Timeout = timeout
	}

	auth, err := parseAuth(cfg)
	if err != nil {
		return c, err
	}
	c.Auth = auth

	models, err := parseModels(cfg)
	if err != nil {
		return c, err
	}
	if len(models) == 0 {
		return c, fmt.Errorf("at least one model is required")
	}
	c.Models = models

	return c, nil
}

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

func parseModels(cfg map[string]any) ([]Model, error) {
	raw, ok := cfg["models"].([]any)
	if !ok {
		return nil, nil
	}

	models := make([]Model, 0, len(raw))
	for i, item := range raw {
		mcfg, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("model %d is %T, expected map", i, item)
		}
		m, err := parseModel(mcfg)
		if err != nil {
			return nil, fmt.Errorf("model %d: %w", i, err)
		}
		models = append(models, m)
	}
	return models, nil
}

func parseModel(cfg map[string]any) (Model, error) {
	m := Model{
		Name:        getString(cfg, "name"),
		PredictPath: getString(cfg, "predict_path"),
		Batch:       getBool(cfg, "batch"),
		Workers:     getInt(cfg, "workers", 0),
	}
	if m.Name == "" {
		return m, fmt.Errorf("name is required")
	}
	if m.PredictPath == "" {
		return m, fmt.Errorf("predict_path is required")
	}

	raw, ok := cfg["input_columns"].([]any)
	if !ok || len(raw) == 0 {
		return m, fmt.Errorf("input_columns is required")
	}
	for i, item := range raw {
		ccfg, ok := item.(map[string]any)
		if !ok {
			return m, fmt.Errorf("input column %d is %T, expected map", i, item)
		}
		col := schema.Column{
			Name: getString(ccfg, "name"),
			Type: schema.ColumnType(getString(ccfg, "type")),
		}
		if col.Name == "" {
			return m, fmt.Errorf("input column %d: name is required", i)
		}
		if col.Type == "" {
			col.Type = schema.TypeString
		}
		m.InputColumns = append(m.InputColumns, col)
	}
	return m, nil
}

func getString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

func getInt(cfg map[string]any, key string, defaultVal int) int {
	if v, ok := cfg[key].(int); ok {
		return v
	}
	if v, ok := cfg[key].(float64); ok {
		return int(v)
	}
	return defaultVal
}

func getBool(cfg map[string]any, key string) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return false
}

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

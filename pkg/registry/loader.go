package registry

import (
	"fmt"
)

// LoaderConfig holds configuration for loading handlers.
type LoaderConfig struct {
	Handlers map[string]HandlerKindConfig `yaml:"handlers"`
}

// HandlerKindConfig holds configuration for a handler kind.
type HandlerKindConfig struct {
	Enabled   bool                      `yaml:"enabled"`
	Instances map[string]map[string]any `yaml:"instances"`
	Default   string                    `yaml:"default"`
	Config    map[string]any            `yaml:"config"`
}

// Loader loads handlers from configuration.
type Loader struct {
	registry *Registry
}

// NewLoader creates a new handler loader.
func NewLoader(registry *Registry) *Loader {
	return &Loader{registry: registry}
}

// Load loads handlers from configuration.
func (l *Loader) Load(cfg LoaderConfig) error {
	for kind, kindCfg := range cfg.Handlers {
		if !kindCfg.Enabled {
			continue
		}

		for name, instanceCfg := range kindCfg.Instances {
			// Merge kind-level config with instance config
			mergedCfg := make(map[string]any)
			for k, v := range kindCfg.Config {
				mergedCfg[k] = v
			}
			for k, v := range instanceCfg {
				mergedCfg[k] = v
			}

			handlerCfg := HandlerConfig{
				Kind:    kind,
				Name:    name,
				Enabled: true,
				Config:  mergedCfg,
				Default: name == kindCfg.Default,
			}

			if err := l.registry.CreateAndRegister(handlerCfg); err != nil {
				return fmt.Errorf("loading handler %s/%s: %w", kind, name, err)
			}
		}
	}
	return nil
}

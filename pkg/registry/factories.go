package registry

import (
	modelsrvh "github.com/txn2/tabular/pkg/handlers/modelsrv"
	resth "github.com/txn2/tabular/pkg/handlers/rest"
)

// RegisterBuiltinFactories registers all built-in handler factories.
func RegisterBuiltinFactories(r *Registry) {
	r.RegisterFactory(resth.HandlerKind, resth.Descriptor(), RESTFactory)
	r.RegisterFactory(modelsrvh.HandlerKind, modelsrvh.Descriptor(), ModelServerFactory)
}

// RESTFactory creates a generic REST handler from configuration.
func RESTFactory(name string, cfg map[string]any) (Handler, error) {
	config, err := resth.ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	return resth.New(name, config)
}

// ModelServerFactory creates a model-serving handler from configuration.
func ModelServerFactory(name string, cfg map[string]any) (Handler, error) {
	config, err := modelsrvh.ParseConfig(cfg)
	if err != nil {
		return nil, err
	}
	return modelsrvh.New(name, config)
}

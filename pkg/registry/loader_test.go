package registry

import (
	"testing"

	"github.com/txn2/tabular/pkg/handler"
)

func TestLoaderLoad(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("rest", handler.Descriptor{}, mockFactory("rest"))

	cfg := LoaderConfig{
		Handlers: map[string]HandlerKindConfig{
			"rest": {
				Enabled: true,
				Config:  map[string]any{"timeout": "30s", "base_url": "http://kind.test"},
				Instances: map[string]map[string]any{
					"blog": {"base_url": "http://blog.test"},
					"crm":  {},
				},
				Default: "blog",
			},
		},
	}

	if err := NewLoader(r).Load(cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	blog, ok := r.Get("rest", "blog")
	if !ok {
		t.Fatal("blog instance not loaded")
	}
	// Instance config overrides kind-level config; untouched kind-level
	// keys carry through.
	got := blog.(*mockHandler).config
	if got["base_url"] != "http://blog.test" {
		t.Errorf("base_url = %v, want instance override", got["base_url"])
	}
	if got["timeout"] != "30s" {
		t.Errorf("timeout = %v, want kind-level value", got["timeout"])
	}

	crm, ok := r.Get("rest", "crm")
	if !ok {
		t.Fatal("crm instance not loaded")
	}
	if crm.(*mockHandler).config["base_url"] != "http://kind.test" {
		t.Error("crm should inherit the kind-level base_url")
	}
}

func TestLoaderSkipsDisabledKind(t *testing.T) {
	r := NewRegistry()
	r.RegisterFactory("rest", handler.Descriptor{}, mockFactory("rest"))

	cfg := LoaderConfig{
		Handlers: map[string]HandlerKindConfig{
			"rest": {
				Enabled:   false,
				Instances: map[string]map[string]any{"blog": {}},
			},
		},
	}

	if err := NewLoader(r).Load(cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(r.All()) != 0 {
		t.Errorf("disabled kind loaded %d handlers", len(r.All()))
	}
}

func TestLoaderUnknownKind(t *testing.T) {
	r := NewRegistry()
	cfg := LoaderConfig{
		Handlers: map[string]HandlerKindConfig{
			"ghost": {
				Enabled:   true,
				Instances: map[string]map[string]any{"x": {}},
			},
		},
	}
	if err := NewLoader(r).Load(cfg); err == nil {
		t.Error("Load() with unknown kind should fail")
	}
}

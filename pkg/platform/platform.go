package platform

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/txn2/tabular/pkg/registry"
)

// Platform wires configured handlers into a running instance: it loads
// handler factories, creates configured instances, and drives their
// connection lifecycle on start and stop.
type Platform struct {
	config *Config

	lifecycle *Lifecycle
	handlers  *registry.Registry
	logger    *slog.Logger
}

// New creates a new platform instance from configuration.
func New(cfg *Config) (*Platform, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	p := &Platform{
		config:    cfg,
		lifecycle: NewLifecycle(),
		handlers:  registry.NewRegistry(),
		logger:    NewLogger(cfg.Logging),
	}

	registry.RegisterBuiltinFactories(p.handlers)

	loader := registry.NewLoader(p.handlers)
	if err := loader.Load(registry.LoaderConfig{Handlers: cfg.Handlers}); err != nil {
		return nil, fmt.Errorf("loading handlers: %w", err)
	}

	p.lifecycle.OnStart(p.connectHandlers)
	p.lifecycle.OnStop(func(context.Context) error {
		return p.handlers.Close()
	})

	return p, nil
}

// NewFromFile creates a platform from a YAML configuration file.
func NewFromFile(path string) (*Platform, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// connectHandlers connects every configured handler. A handler that
// fails to connect stays registered in the Failed state and is reported
// by the status endpoint; it does not abort platform startup.
func (p *Platform) connectHandlers(ctx context.Context) error {
	for _, h := range p.handlers.All() {
		st := h.Connect(ctx)
		if !st.Success {
			p.logger.Warn("handler failed to connect",
				"kind", h.Kind(), "name", h.Name(), "error", st.ErrorMessage)
			continue
		}
		p.logger.Info("handler connected",
			"kind", h.Kind(), "name", h.Name(), "tables", len(h.Tables()))
	}
	return nil
}

// Start runs the platform lifecycle startup.
func (p *Platform) Start(ctx context.Context) error {
	return p.lifecycle.Start(ctx)
}

// Stop runs the platform lifecycle shutdown.
func (p *Platform) Stop(ctx context.Context) error {
	return p.lifecycle.Stop(ctx)
}

// Address returns the configured health/status server address.
func (p *Platform) Address() string {
	return p.config.Server.Address
}

// Handlers returns the handler registry.
func (p *Platform) Handlers() *registry.Registry {
	return p.handlers
}

// Logger returns the platform logger.
func (p *Platform) Logger() *slog.Logger {
	return p.logger
}

// NewLogger builds a slog.Logger from logging configuration and installs
// it as the process default.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

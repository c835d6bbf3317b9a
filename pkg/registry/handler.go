// Package registry provides handler registration and management.
package registry

import (
	"context"

	"github.com/txn2/tabular/pkg/handler"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/translate"
)

// Handler is the capability contract every connector implements. One
// Handler instance bridges the relational query surface to one external
// system and owns exactly one connection lifecycle.
type Handler interface {
	// Kind returns the handler type (e.g., "rest", "modelsrv").
	Kind() string

	// Name returns the instance name from config.
	Name() string

	// Describe returns the immutable registration descriptor.
	Describe() handler.Descriptor

	// Connect establishes the upstream session.
	Connect(ctx context.Context) handler.Status

	// CheckConnection probes the session health without mutating it.
	CheckConnection(ctx context.Context) handler.Status

	// Disconnect releases the session from any state.
	Disconnect() error

	// Tables lists the resources this instance exposes.
	Tables() []string

	// Query executes one structured query against this instance.
	Query(ctx context.Context, stmt query.Statement) (*translate.Result, error)
}

// NativeQuerier is an optional capability for handlers that accept a
// raw query string in the upstream's own dialect and forward it
// untranslated.
type NativeQuerier interface {
	NativeQuery(ctx context.Context, q string) (*translate.Result, error)
}

// HandlerFactory creates a handler from configuration.
type HandlerFactory func(name string, config map[string]any) (Handler, error)

// HandlerConfig holds configuration for a handler instance.
type HandlerConfig struct {
	Kind    string
	Name    string
	Enabled bool
	Config  map[string]any
	Default bool
}

// Package rest provides a generic REST API handler: it exposes the
// resources of one external HTTP API as relational tables described
// entirely by configuration.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/txn2/tabular/pkg/adapter"
	"github.com/txn2/tabular/pkg/apiclient"
	"github.com/txn2/tabular/pkg/conn"
	"github.com/txn2/tabular/pkg/handler"
	"github.com/txn2/tabular/pkg/materialize"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/schema"
	"github.com/txn2/tabular/pkg/translate"
)

const (
	// HandlerKind identifies this handler type in configuration.
	HandlerKind = "rest"

	// Version is the handler's semantic version.
	Version = "1.2.0"

	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
)

// Config holds REST handler configuration.
type Config struct {
	BaseURL        string
	HealthPath     string
	Auth           apiclient.Auth
	Timeout        time.Duration
	MaxRetries     int
	Headers        map[string]string
	ConnectionName string
	Resources      []Resource
}

// Resource declares one exposed table and its API mapping.
type Resource struct {
	Name         string
	ListPath     string
	CreatePath   string
	UpdatePath   string
	DeletePath   string
	RecordsField string
	FieldsParam  string
	CountField   string
	Writable     bool
	Columns      []schema.Column
	Filters      map[string][]query.Op
	Pagination   adapter.Pagination
}

// Handler bridges one external HTTP API to the relational query surface.
type Handler struct {
	name       string
	config     Config
	client     *apiclient.Client
	conn       *conn.Manager
	schemas    *schema.Registry
	translator *translate.Translator
	logger     *slog.Logger

	// One in-flight structured-query execution per instance; the
	// underlying session is not designed for concurrent mutation.
	queryMu sync.Mutex
}

// New creates a REST handler from parsed configuration.
func New(name string, cfg Config) (*Handler, error) {
	if cfg.ConnectionName == "" {
		cfg.ConnectionName = name
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL:    cfg.BaseURL,
		HealthPath: cfg.HealthPath,
		Auth:       cfg.Auth,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Headers:    cfg.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	logger := slog.Default().With("handler", HandlerKind, "instance", name)
	cm := conn.NewManager(client, conn.WithLogger(logger))

	h := &Handler{
		name:    name,
		config:  cfg,
		client:  client,
		conn:    cm,
		schemas: schema.NewRegistry(),
		logger:  logger,
	}
	h.translator = translate.New(h.schemas, logger)

	for _, res := range cfg.Resources {
		if err := h.register(res); err != nil {
			return nil, fmt.Errorf("registering resource %q: %w", res.Name, err)
		}
	}
	return h, nil
}

func (h *Handler) register(res Resource) error {
	tbl := &schema.Table{
		Name:           res.Name,
		Columns:        res.Columns,
		Filters:        res.Filters,
		Writable:       res.Writable,
		FieldSelection: res.FieldsParam != "",
	}
	if err := h.schemas.Register(tbl); err != nil {
		return err
	}

	a := adapter.New(tbl, h.client, h.conn, adapter.Endpoints{
		ListPath:     res.ListPath,
		CreatePath:   res.CreatePath,
		UpdatePath:   res.UpdatePath,
		DeletePath:   res.DeletePath,
		RecordsField: res.RecordsField,
		FieldsParam:  res.FieldsParam,
		CountField:   res.CountField,
	}, res.Pagination, h.logger)

	return h.translator.Bind(res.Name, translate.AdapterSource{Adapter: a})
}

// Kind returns the handler kind.
func (*Handler) Kind() string {
	return HandlerKind
}

// Name returns the handler instance name.
func (h *Handler) Name() string {
	return h.name
}

// Connection returns the connection name for audit logging.
func (h *Handler) Connection() string {
	return h.config.ConnectionName
}

// Describe returns the registration descriptor.
func (*Handler) Describe() handler.Descriptor {
	return Descriptor()
}

// Connect establishes the upstream session.
func (h *Handler) Connect(ctx context.Context) handler.Status {
	return h.conn.Connect(ctx)
}

// CheckConnection probes the session without mutating it.
func (h *Handler) CheckConnection(ctx context.Context) handler.Status {
	return h.conn.Check(ctx)
}

// Disconnect releases the session.
func (h *Handler) Disconnect() error {
	return h.conn.Disconnect()
}

// Tables lists the exposed resources.
func (h *Handler) Tables() []string {
	return h.schemas.Tables()
}

// Query executes one structured query. Executions are serialized per
// instance; concurrent callers queue.
func (h *Handler) Query(ctx context.Context, stmt query.Statement) (*translate.Result, error) {
	h.queryMu.Lock()
	defer h.queryMu.Unlock()
	return h.translator.Execute(ctx, stmt)
}

// NativeQuery issues a raw relative-path GET against the API and
// returns each top-level record as one JSON document row. It bypasses
// schema translation and exists for exploration, not production reads.
func (h *Handler) NativeQuery(ctx context.Context, q string) (*translate.Result, error) {
	h.queryMu.Lock()
	defer h.queryMu.Unlock()

	if err := h.conn.Require(); err != nil {
		return nil, err
	}

	path := strings.TrimSpace(q)
	resp, err := h.client.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return nil, err
	}

	result := &translate.Result{Columns: []string{"document"}, Rows: []materialize.Row{}}
	items, ok := resp.Body.([]any)
	if !ok {
		items = []any{resp.Body}
	}
	for _, item := range items {
		doc, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encoding native query row: %w", err)
		}
		result.Rows = append(result.Rows, materialize.Row{"document": string(doc)})
	}
	return result, nil
}

// Descriptor returns the immutable registration bundle for this handler
// kind.
func Descriptor() handler.Descriptor {
	return handler.Descriptor{
		Name:        HandlerKind,
		Version:     Version,
		Kind:        handler.KindData,
		Title:       "Generic REST API",
		Description: "Exposes resources of an external HTTP API as relational tables with filter and projection pushdown.",
		ConnectionArgs: []handler.ConnectionArg{
			{Name: "base_url", Description: "API base URL", Example: "https://api.example.com/v2", Required: true},
			{Name: "health_path", Description: "Read-only probe path for connection checks", Example: "/status"},
			{Name: "auth.type", Description: "Authentication mode: none, basic, bearer, api_key", Example: "bearer"},
			{Name: "auth.token", Description: "Bearer or API-key token", Example: "eyJhbGciOi...", Secret: true},
			{Name: "timeout", Description: "Per-request timeout", Example: "30s"},
			{Name: "max_retries", Description: "Retry attempts for transient upstream failures", Example: "3"},
			{Name: "resources", Description: "Declared tables with columns, filters, and pagination", Example: "see documentation", Required: true},
		},
	}
}

// Verify interface compliance.
var _ interface {
	Kind() string
	Name() string
	Connection() string
	Describe() handler.Descriptor
	Connect(ctx context.Context) handler.Status
	CheckConnection(ctx context.Context) handler.Status
	Disconnect() error
	Tables() []string
	Query(ctx context.Context, stmt query.Statement) (*translate.Result, error)
	NativeQuery(ctx context.Context, q string) (*translate.Result, error)
} = (*Handler)(nil)

// Package modelsrv provides a predictive-model handler: each configured
// model served by a remote prediction endpoint is exposed as a queryable
// table whose rows are predictions.
package modelsrv

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/txn2/tabular/pkg/apiclient"
	"github.com/txn2/tabular/pkg/conn"
	"github.com/txn2/tabular/pkg/handler"
	"github.com/txn2/tabular/pkg/modelproxy"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/schema"
	"github.com/txn2/tabular/pkg/taberr"
	"github.com/txn2/tabular/pkg/translate"
)

const (
	// HandlerKind identifies this handler type in configuration.
	HandlerKind = "modelsrv"

	// Version is the handler's semantic version.
	Version = "0.9.0"

	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 2
)

// Config holds model-serving handler configuration.
type Config struct {
	BaseURL        string
	HealthPath     string
	Auth           apiclient.Auth
	Timeout        time.Duration
	MaxRetries     int
	ConnectionName string
	Models         []Model
}

// Model declares one served model exposed as a table.
type Model struct {
	Name         string
	PredictPath  string
	InputColumns []schema.Column
	Batch        bool
	Workers      int
}

// Handler exposes remotely served models as tables.
type Handler struct {
	name       string
	config     Config
	client     *apiclient.Client
	conn       *conn.Manager
	schemas    *schema.Registry
	translator *translate.Translator
	models     map[string]*modelproxy.ModelTable
	logger     *slog.Logger

	queryMu sync.Mutex
}

// New creates a model-serving handler from parsed configuration.
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
		models:  make(map[string]*modelproxy.ModelTable),
		logger:  logger,
	}
	h.translator = translate.New(h.schemas, logger)

	for _, m := range cfg.Models {
		if err := h.register(m); err != nil {
			return nil, fmt.Errorf("registering model %q: %w", m.Name, err)
		}
	}
	return h, nil
}

func (h *Handler) register(m Model) error {
	columns := make([]schema.Column, 0, len(m.InputColumns)+1)
	filters := make(map[string][]query.Op, len(m.InputColumns))
	inputNames := make([]string, len(m.InputColumns))
	for i, col := range m.InputColumns {
		columns = append(columns, col)
		filters[col.Name] = []query.Op{query.OpEquals}
		inputNames[i] = col.Name
	}
	columns = append(columns, schema.Column{
		Name:     modelproxy.PredictionColumn,
		Type:     schema.TypeString,
		Nullable: true,
	})

	tbl := &schema.Table{
		Name:    m.Name,
		Columns: columns,
		Filters: filters,
	}
	if err := h.schemas.Register(tbl); err != nil {
		return err
	}

	mt := modelproxy.New(tbl, modelproxy.Endpoint{
		PredictPath:  m.PredictPath,
		InputColumns: inputNames,
		Batch:        m.Batch,
		Workers:      m.Workers,
	}, h.client, h.conn, h.logger)

	h.models[m.Name] = mt
	return h.translator.Bind(m.Name, modelproxy.Source{Model: mt})
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

// Connect establishes the session with the model server.
func (h *Handler) Connect(ctx context.Context) handler.Status {
	return h.conn.Connect(ctx)
}

// CheckConnection probes the model server without mutating state.
func (h *Handler) CheckConnection(ctx context.Context) handler.Status {
	return h.conn.Check(ctx)
}

// Disconnect releases the session.
func (h *Handler) Disconnect() error {
	return h.conn.Disconnect()
}

// Tables lists the exposed model tables.
func (h *Handler) Tables() []string {
	return h.schemas.Tables()
}

// Query executes one structured query against a model table.
func (h *Handler) Query(ctx context.Context, stmt query.Statement) (*translate.Result, error) {
	h.queryMu.Lock()
	defer h.queryMu.Unlock()
	return h.translator.Execute(ctx, stmt)
}

// PredictBatch scores externally supplied rows (the executor's side of
// a join) against one model table. Results align positionally with the
// inputs; per-row failures do not abort siblings.
func (h *Handler) PredictBatch(ctx context.Context, model string,
	inputs []map[string]any) ([]modelproxy.Prediction, error) {

	h.queryMu.Lock()
	defer h.queryMu.Unlock()

	mt, ok := h.models[model]
	if !ok {
		return nil, taberr.New(taberr.KindUnsupportedQuery, "unknown model table %q", model)
	}
	return mt.PredictBatch(ctx, inputs)
}

// Descriptor returns the immutable registration bundle for this handler
// kind.
func Descriptor() handler.Descriptor {
	return handler.Descriptor{
		Name:        HandlerKind,
		Version:     Version,
		Kind:        handler.KindPredictive,
		Title:       "Remote Model Server",
		Description: "Exposes remotely served predictive models as queryable tables over a predict endpoint.",
		ConnectionArgs: []handler.ConnectionArg{
			{Name: "base_url", Description: "Model server base URL", Example: "http://scoring.internal:8090", Required: true},
			{Name: "health_path", Description: "Read-only probe path", Example: "/healthz"},
			{Name: "auth.type", Description: "Authentication mode: none, basic, bearer, api_key", Example: "api_key"},
			{Name: "auth.token", Description: "Bearer or API-key token", Example: "sk-...", Secret: true},
			{Name: "models", Description: "Declared models with predict paths and ordered input columns", Example: "see documentation", Required: true},
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
} = (*Handler)(nil)

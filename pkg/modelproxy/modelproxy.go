// Package modelproxy exposes a remotely served predictive model as a
// queryable table. Single-row queries become one predict call; batch
// input from a joined source becomes either one batched call or bounded
// concurrent per-row calls, depending on the endpoint's declared
// capability.
package modelproxy

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/txn2/tabular/pkg/adapter"
	"github.com/txn2/tabular/pkg/apiclient"
	"github.com/txn2/tabular/pkg/conn"
	"github.com/txn2/tabular/pkg/materialize"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/schema"
	"github.com/txn2/tabular/pkg/taberr"
)

// PredictionColumn is the output column appended to the model's input
// columns in the table schema.
const PredictionColumn = "prediction"

const defaultWorkers = 4

// Endpoint describes a remote prediction endpoint. Immutable after
// handler construction.
type Endpoint struct {
	// PredictPath is the predict route relative to the client base URL.
	PredictPath string

	// InputColumns is the model's expected input order. Requests carry
	// each row as an ordered scalar list in exactly this order.
	InputColumns []string

	// Batch declares whether the endpoint accepts multi-row requests.
	Batch bool

	// Workers bounds in-flight per-row calls when Batch is false.
	Workers int
}

// Prediction is one per-row outcome of a batch. Row and Err are
// mutually exclusive.
type Prediction struct {
	Row materialize.Row
	Err error
}

// ModelTable maps queries onto predict calls. It implements the same
// table source contract as the CRUD adapters, so the translator
// dispatches to it transparently.
type ModelTable struct {
	table    *schema.Table
	endpoint Endpoint
	client   apiclient.Doer
	conn     *conn.Manager
	logger   *slog.Logger
}

// New creates a ModelTable. The table schema is derived from the
// endpoint: the declared input columns (nullable strings by default are
// not assumed; callers declare types) plus the prediction column.
func New(t *schema.Table, ep Endpoint, client apiclient.Doer, cm *conn.Manager,
	logger *slog.Logger) *ModelTable {

	if ep.Workers <= 0 {
		ep.Workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelTable{
		table:    t,
		endpoint: ep,
		client:   client,
		conn:     cm,
		logger:   logger,
	}
}

// Table returns the model table schema.
func (m *ModelTable) Table() *schema.Table {
	return m.table
}

// Select handles the single-row query shape: an equality predicate
// supplies the model inputs, and the sole returned row carries the
// prediction. The translator has already verified the pushed conditions
// against the declared schema.
func (m *ModelTable) Select(ctx context.Context, pushed []query.Condition,
	projection []string, limit int) (*Rows, error) {

	if err := m.conn.Require(); err != nil {
		return nil, err
	}

	input := make(map[string]any, len(pushed))
	for _, c := range pushed {
		if c.Op != query.OpEquals {
			return nil, taberr.New(taberr.KindUnsupportedQuery,
				"model table %q supports only equality predicates, got %q on %q",
				m.table.Name, c.Op, c.Column)
		}
		input[c.Column] = c.Value
	}
	for _, col := range m.endpoint.InputColumns {
		if _, ok := input[col]; !ok {
			return nil, taberr.New(taberr.KindUnsupportedQuery,
				"model table %q requires input column %q in the predicate",
				m.table.Name, col)
		}
	}

	preds, err := m.predict(ctx, [][]any{m.orderedInput(input)})
	if err != nil {
		return nil, err
	}
	if len(preds) != 1 {
		return nil, taberr.New(taberr.KindPrediction,
			"model returned %d predictions for 1 input row", len(preds))
	}

	row := make(materialize.Row, len(m.endpoint.InputColumns)+1)
	for col, v := range input {
		row[col] = v
	}
	row[PredictionColumn] = preds[0]

	if limit == 0 || limit >= 1 {
		return &Rows{rows: []materialize.Row{row}}, nil
	}
	return &Rows{}, nil
}

// PredictBatch scores rows supplied by an external row-producing source,
// typically the executor's side of a join. Results align positionally
// with inputs. A row missing a required input column is excluded from
// the upstream call and reported as a per-row prediction error without
// failing its siblings.
func (m *ModelTable) PredictBatch(ctx context.Context, inputs []map[string]any) ([]Prediction, error) {
	if err := m.conn.Require(); err != nil {
		return nil, err
	}

	out := make([]Prediction, len(inputs))
	var valid []int
	for i, in := range inputs {
		if missing := m.missingInput(in); missing != "" {
			out[i] = Prediction{Err: taberr.New(taberr.KindPrediction,
				"row %d missing input column %q", i, missing)}
			continue
		}
		valid = append(valid, i)
	}

	if len(valid) == 0 {
		return out, nil
	}

	if m.endpoint.Batch {
		m.batchPredict(ctx, inputs, valid, out)
	} else {
		m.fanOutPredict(ctx, inputs, valid, out)
	}
	return out, nil
}

// batchPredict issues one call carrying every valid row.
func (m *ModelTable) batchPredict(ctx context.Context, inputs []map[string]any,
	valid []int, out []Prediction) {

	rows := make([][]any, len(valid))
	for vi, i := range valid {
		rows[vi] = m.orderedInput(inputs[i])
	}

	preds, err := m.predict(ctx, rows)
	if err != nil {
		for _, i := range valid {
			out[i] = Prediction{Err: err}
		}
		return
	}
	if len(preds) != len(valid) {
		err := taberr.New(taberr.KindPrediction,
			"model returned %d predictions for %d input rows", len(preds), len(valid))
		for _, i := range valid {
			out[i] = Prediction{Err: err}
		}
		return
	}
	for vi, i := range valid {
		out[i] = Prediction{Row: m.resultRow(inputs[i], preds[vi])}
	}
}

// fanOutPredict issues one call per row under a bounded worker pool.
// Positional assignment into out reassembles request order regardless of
// completion order.
func (m *ModelTable) fanOutPredict(ctx context.Context, inputs []map[string]any,
	valid []int, out []Prediction) {

	sem := make(chan struct{}, m.endpoint.Workers)
	var wg sync.WaitGroup

	for _, i := range valid {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			preds, err := m.predict(ctx, [][]any{m.orderedInput(inputs[i])})
			switch {
			case err != nil:
				out[i] = Prediction{Err: taberr.Wrap(taberr.KindPrediction, err,
					"row %d predict call failed", i)}
			case len(preds) != 1:
				out[i] = Prediction{Err: taberr.New(taberr.KindPrediction,
					"row %d: model returned %d predictions", i, len(preds))}
			default:
				out[i] = Prediction{Row: m.resultRow(inputs[i], preds[0])}
			}
		}(i)
	}
	wg.Wait()
}

// predict issues one call per the model wire contract: an ordered list
// of input rows out, a positionally aligned list of predictions back.
func (m *ModelTable) predict(ctx context.Context, rows [][]any) ([]any, error) {
	resp, err := m.client.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   m.endpoint.PredictPath,
		Body:   rows,
	})
	if err != nil {
		return nil, err
	}
	preds, ok := resp.Body.([]any)
	if !ok {
		return nil, taberr.New(taberr.KindPrediction,
			"model response is %T, expected prediction list", resp.Body)
	}
	return preds, nil
}

func (m *ModelTable) orderedInput(in map[string]any) []any {
	row := make([]any, len(m.endpoint.InputColumns))
	for i, col := range m.endpoint.InputColumns {
		row[i] = in[col]
	}
	return row
}

func (m *ModelTable) missingInput(in map[string]any) string {
	for _, col := range m.endpoint.InputColumns {
		if v, ok := in[col]; !ok || v == nil {
			return col
		}
	}
	return ""
}

func (m *ModelTable) resultRow(in map[string]any, pred any) materialize.Row {
	row := make(materialize.Row, len(m.endpoint.InputColumns)+1)
	for _, col := range m.endpoint.InputColumns {
		row[col] = in[col]
	}
	row[PredictionColumn] = pred
	return row
}

// Insert is not supported on model tables.
func (m *ModelTable) Insert(_ context.Context, _ []map[string]any) (adapter.Ack, error) {
	return adapter.Ack{}, m.unsupported("insert")
}

// Update is not supported on model tables.
func (m *ModelTable) Update(_ context.Context, _ query.Predicate, _ map[string]any) (adapter.Ack, error) {
	return adapter.Ack{}, m.unsupported("update")
}

// Delete is not supported on model tables.
func (m *ModelTable) Delete(_ context.Context, _ query.Predicate) (adapter.Ack, error) {
	return adapter.Ack{}, m.unsupported("delete")
}

func (m *ModelTable) unsupported(op string) error {
	return taberr.New(taberr.KindUnsupportedQuery,
		"%s is not supported on model table %q", op, m.table.Name)
}

// Rows is the single-shot row sequence a model select produces.
type Rows struct {
	rows []materialize.Row
	pos  int
}

// Next yields the next row.
func (r *Rows) Next() (materialize.Row, bool) {
	if r.pos >= len(r.rows) {
		return nil, false
	}
	row := r.rows[r.pos]
	r.pos++
	return row, true
}

// Err always returns nil; model selects fail before producing a
// sequence.
func (r *Rows) Err() error { return nil }

// Incomplete always returns false.
func (r *Rows) Incomplete() bool { return false }

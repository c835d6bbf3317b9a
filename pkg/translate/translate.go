// Package translate maps structured queries onto table source
// operations: exhaustive dispatch over the statement variants, predicate
// pushdown decomposition, and local evaluation of whatever the upstream
// API cannot filter itself.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/txn2/tabular/pkg/adapter"
	"github.com/txn2/tabular/pkg/materialize"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/schema"
	"github.com/txn2/tabular/pkg/taberr"
)

// RowIter is the lazy row sequence a table source produces for reads.
// adapter.Rows satisfies it; the model proxy table provides its own.
type RowIter interface {
	Next() (materialize.Row, bool)
	Err() error
	Incomplete() bool
}

// TableSource executes translated operations against one table. The API
// table adapter implements it for CRUD resources; the model proxy table
// implements it for prediction endpoints.
type TableSource interface {
	Select(ctx context.Context, pushed []query.Condition, projection []string, limit int) (RowIter, error)
	Insert(ctx context.Context, rows []map[string]any) (adapter.Ack, error)
	Update(ctx context.Context, pred query.Predicate, values map[string]any) (adapter.Ack, error)
	Delete(ctx context.Context, pred query.Predicate) (adapter.Ack, error)
}

// Result is the translated query outcome: materialized rows for reads,
// an acknowledgement for mutations, never both.
type Result struct {
	Columns    []string
	Rows       []materialize.Row
	Ack        *adapter.Ack
	Incomplete bool
}

// Translator resolves structured queries against registered tables.
type Translator struct {
	mu       sync.RWMutex
	registry *schema.Registry
	sources  map[string]TableSource
	logger   *slog.Logger
}

// New creates a Translator over the given schema registry.
func New(reg *schema.Registry, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		registry: reg,
		sources:  make(map[string]TableSource),
		logger:   logger,
	}
}

// Bind attaches the source executing operations for one registered
// table.
func (t *Translator) Bind(table string, src TableSource) error {
	if _, err := t.registry.Lookup(table); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sources[table]; exists {
		return fmt.Errorf("table %q already bound", table)
	}
	t.sources[table] = src
	return nil
}

// Execute dispatches the statement by its variant. The dispatch is
// exhaustive: an unrecognized variant is an unsupported-query error.
func (t *Translator) Execute(ctx context.Context, stmt query.Statement) (*Result, error) {
	tbl, src, err := t.resolve(stmt.Table())
	if err != nil {
		return nil, err
	}

	switch s := stmt.(type) {
	case query.Select:
		return t.execSelect(ctx, tbl, src, s)
	case query.Insert:
		return t.execInsert(ctx, tbl, src, s)
	case query.Update:
		return t.execUpdate(ctx, tbl, src, s)
	case query.Delete:
		return t.execDelete(ctx, tbl, src, s)
	default:
		return nil, taberr.New(taberr.KindUnsupportedQuery,
			"unsupported statement variant %T", stmt)
	}
}

func (t *Translator) resolve(table string) (*schema.Table, TableSource, error) {
	tbl, err := t.registry.Lookup(table)
	if err != nil {
		return nil, nil, err
	}
	t.mu.RLock()
	src, ok := t.sources[table]
	t.mu.RUnlock()
	if !ok {
		return nil, nil, taberr.New(taberr.KindUnsupportedQuery,
			"table %q has no bound source", table)
	}
	return tbl, src, nil
}

func (t *Translator) execSelect(ctx context.Context, tbl *schema.Table,
	src TableSource, s query.Select) (*Result, error) {

	if err := validateColumns(tbl, query.Columns(s.Where)); err != nil {
		return nil, err
	}
	if err := validateColumns(tbl, s.Projection); err != nil {
		return nil, err
	}

	pushed, residual := Split(tbl, s.Where)

	// A projection is pushed upstream only when the table declares field
	// selection and the residual predicate does not reference columns the
	// projection would drop; otherwise the full row is fetched and the
	// projection applied locally after filtering.
	projection := orderByTable(tbl, s.Projection)
	pushProjection := len(projection) > 0 && tbl.FieldSelection &&
		len(droppedByProjection(residual, projection)) == 0

	var pushedProj []string
	if pushProjection {
		pushedProj = projection
	}

	// With a residual predicate the limit cannot be pushed either; rows
	// discarded locally would otherwise under-fill the result. Laziness
	// keeps this cheap: pulling stops as soon as the limit is met.
	pushedLimit := s.Limit
	if residual != nil {
		pushedLimit = 0
	}

	iter, err := src.Select(ctx, pushed, pushedProj, pushedLimit)
	if err != nil {
		return nil, err
	}

	t.logger.Debug("select translated",
		"table", tbl.Name,
		"pushed_conjuncts", len(pushed),
		"residual", residual != nil,
		"projection_pushed", pushProjection)

	return collect(tbl, iter, residual, projection, s.Limit)
}

func (t *Translator) execInsert(ctx context.Context, tbl *schema.Table,
	src TableSource, s query.Insert) (*Result, error) {

	if !tbl.Writable {
		return nil, taberr.New(taberr.KindUnsupportedQuery,
			"table %q is not writable", tbl.Name)
	}
	for i, row := range s.Rows {
		for col := range row {
			if _, ok := tbl.Column(col); !ok {
				return nil, taberr.New(taberr.KindUnsupportedQuery,
					"insert row %d references unknown column %q", i, col)
			}
		}
	}

	ack, err := src.Insert(ctx, s.Rows)
	if err != nil {
		return nil, err
	}
	return &Result{Ack: &ack}, nil
}

func (t *Translator) execUpdate(ctx context.Context, tbl *schema.Table,
	src TableSource, s query.Update) (*Result, error) {

	if !tbl.Writable {
		return nil, taberr.New(taberr.KindUnsupportedQuery,
			"table %q is not writable", tbl.Name)
	}
	if err := validateColumns(tbl, query.Columns(s.Where)); err != nil {
		return nil, err
	}
	for col := range s.Values {
		if _, ok := tbl.Column(col); !ok {
			return nil, taberr.New(taberr.KindUnsupportedQuery,
				"update references unknown column %q", col)
		}
	}

	ack, err := src.Update(ctx, s.Where, s.Values)
	if err != nil {
		return nil, err
	}
	return &Result{Ack: &ack}, nil
}

func (t *Translator) execDelete(ctx context.Context, tbl *schema.Table,
	src TableSource, s query.Delete) (*Result, error) {

	if !tbl.Writable {
		return nil, taberr.New(taberr.KindUnsupportedQuery,
			"table %q is not writable", tbl.Name)
	}
	if err := validateColumns(tbl, query.Columns(s.Where)); err != nil {
		return nil, err
	}

	ack, err := src.Delete(ctx, s.Where)
	if err != nil {
		return nil, err
	}
	return &Result{Ack: &ack}, nil
}

// Split performs the conjunctive pushdown decomposition. The predicate
// is flattened into top-level conjuncts; a conjunct is pushed only when
// it contains no disjunction and every condition's operator is declared
// supported for its column. Everything else is returned as the residual
// predicate for local evaluation.
func Split(tbl *schema.Table, pred query.Predicate) ([]query.Condition, query.Predicate) {
	if pred == nil {
		return nil, nil
	}

	var pushed []query.Condition
	var residual []query.Predicate

	for _, conjunct := range conjuncts(pred) {
		if pushable(tbl, conjunct) {
			pushed = append(pushed, query.Conditions(conjunct)...)
			continue
		}
		residual = append(residual, conjunct)
	}

	switch len(residual) {
	case 0:
		return pushed, nil
	case 1:
		return pushed, residual[0]
	default:
		return pushed, query.And{Preds: residual}
	}
}

// conjuncts flattens nested conjunctions into a top-level list.
func conjuncts(pred query.Predicate) []query.Predicate {
	and, ok := pred.(query.And)
	if !ok {
		return []query.Predicate{pred}
	}
	var out []query.Predicate
	for _, child := range and.Preds {
		out = append(out, conjuncts(child)...)
	}
	return out
}

// pushable reports whether one conjunct may be rewritten into API
// parameters: no disjunctions, and every operator declared supported.
func pushable(tbl *schema.Table, conjunct query.Predicate) bool {
	if query.HasOr(conjunct) {
		return false
	}
	for _, c := range query.Conditions(conjunct) {
		if !tbl.SupportsFilter(c.Column, c.Op) {
			return false
		}
	}
	return true
}

func validateColumns(tbl *schema.Table, cols []string) error {
	for _, col := range cols {
		if _, ok := tbl.Column(col); !ok {
			return taberr.New(taberr.KindUnsupportedQuery,
				"unknown column %q on table %q", col, tbl.Name)
		}
	}
	return nil
}

// orderByTable reorders a projection into declared schema order.
func orderByTable(tbl *schema.Table, projection []string) []string {
	if len(projection) == 0 {
		return nil
	}
	want := make(map[string]bool, len(projection))
	for _, col := range projection {
		want[col] = true
	}
	var ordered []string
	for _, col := range tbl.Columns {
		if want[col.Name] {
			ordered = append(ordered, col.Name)
		}
	}
	return ordered
}

// droppedByProjection returns the residual-referenced columns a projection would
// drop.
func droppedByProjection(residual query.Predicate, projection []string) []string {
	if residual == nil || len(projection) == 0 {
		return nil
	}
	keep := make(map[string]bool, len(projection))
	for _, col := range projection {
		keep[col] = true
	}
	var dropped []string
	for _, col := range query.Columns(residual) {
		if !keep[col] {
			dropped = append(dropped, col)
		}
	}
	return dropped
}

// collect drains the iterator applying residual filtering, the
// projection, and the row limit. The projection is applied to every row
// regardless of whether the source narrowed the fields upstream; a row
// already narrowed passes through unchanged.
func collect(tbl *schema.Table, iter RowIter, residual query.Predicate,
	projection []string, limit int) (*Result, error) {

	columns := tbl.ColumnNames()
	if len(projection) > 0 {
		columns = projection
	}

	res := &Result{Columns: columns, Rows: []materialize.Row{}}
	for {
		if limit > 0 && len(res.Rows) >= limit {
			break
		}
		row, ok := iter.Next()
		if !ok {
			break
		}
		if residual != nil {
			match, err := Eval(residual, row)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		if len(projection) > 0 {
			row = project(row, projection)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	res.Incomplete = iter.Incomplete()
	return res, nil
}

func project(row materialize.Row, projection []string) materialize.Row {
	out := make(materialize.Row, len(projection))
	for _, col := range projection {
		out[col] = row[col]
	}
	return out
}

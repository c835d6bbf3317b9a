package modelproxy

import (
	"context"

	"github.com/txn2/tabular/pkg/adapter"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/translate"
)

// Source adapts a ModelTable to the translator's table source contract.
type Source struct {
	Model *ModelTable
}

// Select runs the single-row prediction shape.
func (s Source) Select(ctx context.Context, pushed []query.Condition,
	projection []string, limit int) (translate.RowIter, error) {

	rows, err := s.Model.Select(ctx, pushed, projection, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert is not supported on model tables.
func (s Source) Insert(ctx context.Context, rows []map[string]any) (adapter.Ack, error) {
	return s.Model.Insert(ctx, rows)
}

// Update is not supported on model tables.
func (s Source) Update(ctx context.Context, pred query.Predicate,
	values map[string]any) (adapter.Ack, error) {
	return s.Model.Update(ctx, pred, values)
}

// Delete is not supported on model tables.
func (s Source) Delete(ctx context.Context, pred query.Predicate) (adapter.Ack, error) {
	return s.Model.Delete(ctx, pred)
}

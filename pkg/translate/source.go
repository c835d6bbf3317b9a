package translate

import (
	"context"

	"github.com/txn2/tabular/pkg/adapter"
	"github.com/txn2/tabular/pkg/query"
)

// AdapterSource adapts an API table adapter to the TableSource
// interface.
type AdapterSource struct {
	Adapter *adapter.TableAdapter
}

// Select starts a paginated read on the adapted table.
func (s AdapterSource) Select(ctx context.Context, pushed []query.Condition,
	projection []string, limit int) (RowIter, error) {

	rows, err := s.Adapter.Select(ctx, pushed, projection, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert forwards the batch to the adapted table.
func (s AdapterSource) Insert(ctx context.Context, rows []map[string]any) (adapter.Ack, error) {
	return s.Adapter.Insert(ctx, rows)
}

// Update forwards the mutation to the adapted table.
func (s AdapterSource) Update(ctx context.Context, pred query.Predicate,
	values map[string]any) (adapter.Ack, error) {
	return s.Adapter.Update(ctx, pred, values)
}

// Delete forwards the mutation to the adapted table.
func (s AdapterSource) Delete(ctx context.Context, pred query.Predicate) (adapter.Ack, error) {
	return s.Adapter.Delete(ctx, pred)
}

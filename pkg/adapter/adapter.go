// Package adapter implements CRUD against a single upstream API
// resource: building outbound requests from pushed-down predicates,
// driving the pagination loop, and applying mutations.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/txn2/tabular/pkg/apiclient"
	"github.com/txn2/tabular/pkg/conn"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/schema"
	"github.com/txn2/tabular/pkg/taberr"
)

// PaginationStyle selects the continuation protocol for a resource.
type PaginationStyle string

// Continuation protocols.
const (
	// PageCursor continues with an opaque token from each response.
	PageCursor PaginationStyle = "cursor"

	// PageNextLink follows an explicit next-page link in each response.
	PageNextLink PaginationStyle = "next_link"

	// PageOffset increments a numeric offset until an empty page.
	PageOffset PaginationStyle = "offset"

	// PageNone expects the full result in a single response.
	PageNone PaginationStyle = "none"
)

const (
	defaultPageSize = 100
	defaultMaxPages = 1000
)

// Pagination describes how one resource paginates.
type Pagination struct {
	Style PaginationStyle

	// CursorParam and CursorField name the request parameter and the
	// response field carrying the cursor token.
	CursorParam string
	CursorField string

	// NextLinkField names the response field carrying the next-page link.
	NextLinkField string

	// OffsetParam names the numeric offset request parameter.
	OffsetParam string

	// LimitParam names the page-size request parameter.
	LimitParam string

	// PageSize is the requested page size. Zero means defaultPageSize.
	PageSize int

	// MaxPages bounds the pagination loop. Exceeding it without reaching
	// the end of data is a pagination error. Zero means defaultMaxPages.
	MaxPages int
}

// Endpoints maps one resource onto upstream paths and parameter names.
type Endpoints struct {
	ListPath   string
	CreatePath string
	UpdatePath string
	DeletePath string

	// RecordsField names the response field holding the record list;
	// empty means the response body is the list itself.
	RecordsField string

	// FieldsParam names the field-selection parameter used to push
	// projections. Only consulted when the table declares the
	// FieldSelection capability.
	FieldsParam string

	// CountField names the mutation-response field carrying an affected
	// row count, when the upstream reports one.
	CountField string
}

// Ack acknowledges a mutation. Affected is meaningful only when Known;
// otherwise the upstream confirmed the mutation without a count.
type Ack struct {
	Affected int
	Known    bool
}

// TableAdapter translates operations on one table into upstream calls.
type TableAdapter struct {
	table      *schema.Table
	client     apiclient.Doer
	conn       *conn.Manager
	endpoints  Endpoints
	pagination Pagination
	logger     *slog.Logger
}

// New creates a TableAdapter for one registered table.
func New(t *schema.Table, client apiclient.Doer, cm *conn.Manager,
	eps Endpoints, pg Pagination, logger *slog.Logger) *TableAdapter {

	if pg.PageSize <= 0 {
		pg.PageSize = defaultPageSize
	}
	if pg.MaxPages <= 0 {
		pg.MaxPages = defaultMaxPages
	}
	if pg.Style == "" {
		pg.Style = PageNone
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TableAdapter{
		table:      t,
		client:     client,
		conn:       cm,
		endpoints:  eps,
		pagination: pg,
		logger:     logger,
	}
}

// Table returns the adapted table schema.
func (a *TableAdapter) Table() *schema.Table {
	return a.table
}

// Select starts a paginated read and returns a lazy, finite,
// non-restartable row sequence. pushed holds only conditions the
// translator verified the upstream supports; projection is pushed when
// the table declares field selection. The adapter stops fetching as soon
// as limit rows have been yielded.
func (a *TableAdapter) Select(ctx context.Context, pushed []query.Condition,
	projection []string, limit int) (*Rows, error) {

	if err := a.conn.Require(); err != nil {
		return nil, err
	}

	base, err := encodeConditions(pushed)
	if err != nil {
		return nil, err
	}

	// When the projection is pushed the upstream returns only the
	// selected fields, so pages materialize against the projected
	// sub-schema rather than the full table.
	target := a.table
	if a.table.FieldSelection && a.endpoints.FieldsParam != "" && len(projection) > 0 {
		base.Set(a.endpoints.FieldsParam, joinFields(projection))
		target = projectedTable(a.table, projection)
	}

	return newRows(ctx, a, target, base, limit), nil
}

// projectedTable narrows a table schema to the projected columns,
// preserving declared order.
func projectedTable(t *schema.Table, projection []string) *schema.Table {
	keep := make(map[string]bool, len(projection))
	for _, col := range projection {
		keep[col] = true
	}
	sub := &schema.Table{
		Name:           t.Name,
		Filters:        t.Filters,
		Writable:       t.Writable,
		FieldSelection: t.FieldSelection,
	}
	for _, col := range t.Columns {
		if keep[col.Name] {
			sub.Columns = append(sub.Columns, col)
		}
	}
	return sub
}

// Insert appends rows, one create call per row. Partial failure across
// the batch is reported as an aggregate error listing per-row outcomes;
// rows that succeeded stay applied.
func (a *TableAdapter) Insert(ctx context.Context, rows []map[string]any) (Ack, error) {
	if err := a.conn.Require(); err != nil {
		return Ack{}, err
	}
	if !a.table.Writable {
		return Ack{}, taberr.New(taberr.KindUnsupportedQuery,
			"table %q is not writable", a.table.Name)
	}

	batch := &BatchError{Table: a.table.Name, Op: "insert", Total: len(rows)}
	applied := 0
	for i, row := range rows {
		_, err := a.client.Do(ctx, &apiclient.Request{
			Method: http.MethodPost,
			Path:   a.createPath(),
			Body:   row,
		})
		if err != nil {
			batch.Fail(i, err)
			continue
		}
		batch.Succeed(i)
		applied++
	}

	if batch.Failed() {
		return Ack{Affected: applied, Known: true}, batch
	}
	return Ack{Affected: applied, Known: true}, nil
}

// Update rewrites values on rows matching the predicate with a single
// upstream call. The predicate arrives verbatim from the translator.
func (a *TableAdapter) Update(ctx context.Context, pred query.Predicate,
	values map[string]any) (Ack, error) {

	if err := a.conn.Require(); err != nil {
		return Ack{}, err
	}
	if !a.table.Writable {
		return Ack{}, taberr.New(taberr.KindUnsupportedQuery,
			"table %q is not writable", a.table.Name)
	}

	params, err := encodePredicate(pred)
	if err != nil {
		return Ack{}, err
	}
	resp, err := a.client.Do(ctx, &apiclient.Request{
		Method: http.MethodPut,
		Path:   a.updatePath(),
		Query:  params,
		Body:   values,
	})
	if err != nil {
		return Ack{}, err
	}
	return a.ackFrom(resp), nil
}

// Delete removes rows matching the predicate with a single upstream
// call.
func (a *TableAdapter) Delete(ctx context.Context, pred query.Predicate) (Ack, error) {
	if err := a.conn.Require(); err != nil {
		return Ack{}, err
	}
	if !a.table.Writable {
		return Ack{}, taberr.New(taberr.KindUnsupportedQuery,
			"table %q is not writable", a.table.Name)
	}

	params, err := encodePredicate(pred)
	if err != nil {
		return Ack{}, err
	}
	resp, err := a.client.Do(ctx, &apiclient.Request{
		Method: http.MethodDelete,
		Path:   a.deletePath(),
		Query:  params,
	})
	if err != nil {
		return Ack{}, err
	}
	return a.ackFrom(resp), nil
}

func (a *TableAdapter) ackFrom(resp *apiclient.Response) Ack {
	if a.endpoints.CountField == "" {
		return Ack{}
	}
	obj, ok := resp.Body.(map[string]any)
	if !ok {
		return Ack{}
	}
	n, ok := obj[a.endpoints.CountField].(float64)
	if !ok {
		return Ack{}
	}
	return Ack{Affected: int(n), Known: true}
}

func (a *TableAdapter) createPath() string {
	if a.endpoints.CreatePath != "" {
		return a.endpoints.CreatePath
	}
	return a.endpoints.ListPath
}

func (a *TableAdapter) updatePath() string {
	if a.endpoints.UpdatePath != "" {
		return a.endpoints.UpdatePath
	}
	return a.endpoints.ListPath
}

func (a *TableAdapter) deletePath() string {
	if a.endpoints.DeletePath != "" {
		return a.endpoints.DeletePath
	}
	return a.endpoints.ListPath
}

// BatchError aggregates per-row failures from a multi-row mutation.
type BatchError struct {
	Table     string
	Op        string
	Total     int
	Succeeded []int
	RowErrors map[int]error
}

// Fail records a per-row failure.
func (b *BatchError) Fail(row int, err error) {
	if b.RowErrors == nil {
		b.RowErrors = make(map[int]error)
	}
	b.RowErrors[row] = err
}

// Succeed records a per-row success.
func (b *BatchError) Succeed(row int) {
	b.Succeeded = append(b.Succeeded, row)
}

// Failed reports whether any row failed.
func (b *BatchError) Failed() bool {
	return len(b.RowErrors) > 0
}

// Error implements the error interface.
func (b *BatchError) Error() string {
	return fmt.Sprintf("%s on %q: %d of %d rows failed (succeeded: %v)",
		b.Op, b.Table, len(b.RowErrors), b.Total, b.Succeeded)
}

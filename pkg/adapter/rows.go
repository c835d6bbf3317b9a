package adapter

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/txn2/tabular/pkg/apiclient"
	"github.com/txn2/tabular/pkg/materialize"
	"github.com/txn2/tabular/pkg/schema"
	"github.com/txn2/tabular/pkg/taberr"
)

// Rows is a lazy, finite, non-restartable row sequence backed by the
// pagination loop. Pages are fetched on demand as Next drains them, so
// a limit never forces full materialization.
//
// Cancellation is cooperative and checked between pages, never
// mid-page. Policy: when the context is cancelled before any row was
// yielded, Err reports a cancellation error; otherwise iteration stops
// and Incomplete reports true so a truncated result is never mistaken
// for a complete one.
type Rows struct {
	ctx     context.Context
	adapter *TableAdapter
	target  *schema.Table
	base    url.Values
	limit   int

	pending []materialize.Row
	yielded int
	pages   int

	cursor   string
	nextLink string
	offset   int

	done       bool
	incomplete bool
	err        error
}

func newRows(ctx context.Context, a *TableAdapter, target *schema.Table,
	base url.Values, limit int) *Rows {
	return &Rows{
		ctx:     ctx,
		adapter: a,
		target:  target,
		base:    base,
		limit:   limit,
	}
}

// Next yields the next row. It returns false once the sequence is
// exhausted, the limit is reached, or an error occurred; consult Err and
// Incomplete afterwards.
func (r *Rows) Next() (materialize.Row, bool) {
	if r.err != nil {
		return nil, false
	}
	if r.limit > 0 && r.yielded >= r.limit {
		r.done = true
		return nil, false
	}

	for len(r.pending) == 0 {
		if r.done {
			return nil, false
		}
		if err := r.ctx.Err(); err != nil {
			r.done = true
			if r.yielded == 0 {
				r.err = taberr.Wrap(taberr.KindConnection, err, "select cancelled before any rows")
				return nil, false
			}
			r.incomplete = true
			return nil, false
		}
		if err := r.fetchPage(); err != nil {
			r.done = true
			r.err = err
			return nil, false
		}
	}

	row := r.pending[0]
	r.pending = r.pending[1:]
	r.yielded++
	return row, true
}

// Err returns the error that terminated iteration, if any.
func (r *Rows) Err() error {
	return r.err
}

// Incomplete reports whether iteration was cut short by cancellation
// after rows had already been yielded.
func (r *Rows) Incomplete() bool {
	return r.incomplete
}

// Collect drains the sequence into a slice.
func (r *Rows) Collect() ([]materialize.Row, error) {
	var rows []materialize.Row
	for {
		row, ok := r.Next()
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	return rows, r.err
}

func (r *Rows) fetchPage() error {
	pg := r.adapter.pagination
	if r.pages >= pg.MaxPages {
		return taberr.New(taberr.KindPagination,
			"page count bound %d exceeded for table %q", pg.MaxPages, r.adapter.table.Name)
	}

	req := r.pageRequest()
	resp, err := r.adapter.client.Do(r.ctx, req)
	if err != nil {
		return err
	}
	r.pages++

	records, err := apiclient.Records(resp.Body, r.adapter.endpoints.RecordsField)
	if err != nil {
		return taberr.Wrap(taberr.KindPagination, err,
			"malformed page %d for table %q", r.pages, r.adapter.table.Name)
	}

	rows, err := materialize.Page(r.target, records)
	if err != nil {
		return err
	}
	r.pending = rows

	r.advance(resp, len(records))
	return nil
}

// pageRequest builds the outbound request for the next page. The page
// size parameter is clamped to the remaining limit so the upstream never
// sends rows the caller will not consume.
func (r *Rows) pageRequest() *apiclient.Request {
	pg := r.adapter.pagination

	params := url.Values{}
	for k, vs := range r.base {
		params[k] = vs
	}

	size := pg.PageSize
	if r.limit > 0 {
		if remaining := r.limit - r.yielded; remaining < size {
			size = remaining
		}
	}
	if pg.LimitParam != "" {
		params.Set(pg.LimitParam, strconv.Itoa(size))
	}

	path := r.adapter.endpoints.ListPath
	switch pg.Style {
	case PageCursor:
		if r.cursor != "" {
			params.Set(pg.CursorParam, r.cursor)
		}
	case PageNextLink:
		if r.nextLink != "" {
			path = r.nextLink
			params = url.Values{}
		}
	case PageOffset:
		if pg.OffsetParam != "" {
			params.Set(pg.OffsetParam, strconv.Itoa(r.offset))
		}
	}

	return &apiclient.Request{Method: http.MethodGet, Path: path, Query: params}
}

// advance interprets the page's continuation signal and marks the
// sequence done when no further pages exist.
func (r *Rows) advance(resp *apiclient.Response, pageLen int) {
	pg := r.adapter.pagination
	switch pg.Style {
	case PageCursor:
		r.cursor = apiclient.StringField(resp.Body, pg.CursorField)
		if r.cursor == "" {
			r.done = true
		}
	case PageNextLink:
		r.nextLink = apiclient.StringField(resp.Body, pg.NextLinkField)
		if r.nextLink == "" {
			r.done = true
		}
	case PageOffset:
		if pageLen == 0 {
			r.done = true
			return
		}
		r.offset += pageLen
	case PageNone:
		r.done = true
	}
}

// Package materialize converts raw API response pages into rows that
// conform to a declared table schema.
package materialize

import (
	"fmt"
	"strconv"
	"time"

	"github.com/araddon/dateparse"

	"github.com/txn2/tabular/pkg/schema"
	"github.com/txn2/tabular/pkg/taberr"
)

// Row is one materialized row: column name to typed scalar. Every row
// carries exactly the columns the table schema declares.
type Row map[string]any

// Page converts one raw page of upstream records into schema-conformant
// rows. Unknown upstream fields are dropped; a missing declared field
// becomes nil when the column is nullable. Any coercion failure aborts
// the whole page with a schema-mismatch error so a partial page is never
// returned.
func Page(t *schema.Table, records []map[string]any) ([]Row, error) {
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		row, err := record(t, rec)
		if err != nil {
			return nil, taberr.Wrap(taberr.KindSchemaMismatch, err,
				"table %q record %d", t.Name, i)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func record(t *schema.Table, rec map[string]any) (Row, error) {
	row := make(Row, len(t.Columns))
	for _, col := range t.Columns {
		raw, ok := rec[col.Name]
		if !ok || raw == nil {
			if !col.Nullable {
				return nil, fmt.Errorf("missing non-nullable column %q", col.Name)
			}
			row[col.Name] = nil
			continue
		}
		v, err := Coerce(raw, col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		row[col.Name] = v
	}
	return row, nil
}

// Coerce converts one upstream scalar to the declared column type.
func Coerce(raw any, to schema.ColumnType) (any, error) {
	switch to {
	case schema.TypeString:
		return coerceString(raw)
	case schema.TypeInt:
		return coerceInt(raw)
	case schema.TypeFloat:
		return coerceFloat(raw)
	case schema.TypeBool:
		return coerceBool(raw)
	case schema.TypeTimestamp:
		return coerceTimestamp(raw)
	default:
		return nil, fmt.Errorf("unknown declared type %q", to)
	}
}

func coerceString(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to string", raw)
	}
}

func coerceInt(raw any) (any, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("non-integral value %v for int column", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("non-numeric text %q for int column", v)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to int", raw)
	}
}

func coerceFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("non-numeric text %q for float column", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to float", raw)
	}
}

func coerceBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("non-boolean text %q for bool column", v)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to bool", raw)
	}
}

func coerceTimestamp(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := dateparse.ParseAny(v)
		if err != nil {
			return nil, fmt.Errorf("unparseable timestamp %q: %w", v, err)
		}
		return t, nil
	case float64:
		// Upstream APIs commonly return epoch seconds as JSON numbers.
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to timestamp", raw)
	}
}

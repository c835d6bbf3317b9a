// Package schema provides the resource schema registry: per-table column
// declarations and capability flags consulted before predicate pushdown.
package schema

import (
	"fmt"
	"sync"

	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/taberr"
)

// ColumnType is a declared column type.
type ColumnType string

// Declared column types.
const (
	TypeString    ColumnType = "string"
	TypeInt       ColumnType = "int"
	TypeFloat     ColumnType = "float"
	TypeBool      ColumnType = "bool"
	TypeTimestamp ColumnType = "timestamp"
)

// Column declares one table column.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Table declares one resource: its ordered columns and capability flags.
// Capabilities are declared at registration, never inferred from data.
type Table struct {
	Name    string
	Columns []Column

	// Filters maps a column name to the operators the upstream API can
	// evaluate for it. Absent columns support no pushdown.
	Filters map[string][]query.Op

	// Writable permits Insert/Update/Delete against this table.
	Writable bool

	// FieldSelection indicates the upstream API accepts a field list,
	// letting projections be pushed instead of applied locally.
	FieldSelection bool
}

// Column returns the declared column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the declared column names in schema order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// SupportsFilter reports whether the upstream API can evaluate op on col.
func (t *Table) SupportsFilter(col string, op query.Op) bool {
	for _, supported := range t.Filters[col] {
		if supported == op {
			return true
		}
	}
	return false
}

// Registry holds the tables one handler instance exposes. Table names are
// unique within a registry and immutable for the session.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Register adds a table. Registering a name twice is an error.
func (r *Registry) Register(t *Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if _, exists := r.tables[t.Name]; exists {
		return fmt.Errorf("table %q already registered", t.Name)
	}
	r.tables[t.Name] = t
	return nil
}

// Lookup returns the table by name.
func (r *Registry) Lookup(name string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[name]
	if !ok {
		return nil, taberr.New(taberr.KindUnsupportedQuery, "unknown table %q", name)
	}
	return t, nil
}

// Tables returns the registered table names.
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	return names
}

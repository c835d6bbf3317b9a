// Package query defines the structured query representation handlers
// consume. The external parser produces these values; handlers never see
// raw query text.
package query

// Op is a filter comparison operator.
type Op string

// Supported comparison operators.
const (
	OpEquals    Op = "equals"
	OpNotEquals Op = "not_equals"
	OpGt        Op = "gt"
	OpGte       Op = "gte"
	OpLt        Op = "lt"
	OpLte       Op = "lte"
	OpIn        Op = "in"
	OpLike      Op = "like"
)

// Statement is the tagged union of the four query variants. It is sealed:
// only Select, Insert, Update, and Delete implement it, and the translator
// dispatches over the concrete type.
type Statement interface {
	Table() string
	stmt()
}

// Predicate is a node in a filter predicate tree.
type Predicate interface {
	pred()
}

// Condition compares one column against a literal value.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

// And is a conjunction of child predicates.
type And struct {
	Preds []Predicate
}

// Or is a disjunction of child predicates. Disjunctions are never pushed
// down; they are always evaluated locally.
type Or struct {
	Preds []Predicate
}

func (Condition) pred() {}
func (And) pred()       {}
func (Or) pred()        {}

// Select reads rows from one table.
type Select struct {
	From       string
	Where      Predicate // nil means no filter
	Projection []string  // nil means all declared columns
	Limit      int       // 0 means no limit
}

// Insert appends rows to one table.
type Insert struct {
	Into string
	Rows []map[string]any
}

// Update rewrites column values on rows matching Where.
type Update struct {
	In     string
	Where  Predicate
	Values map[string]any
}

// Delete removes rows matching Where.
type Delete struct {
	From  string
	Where Predicate
}

// Table returns the target table name.
func (s Select) Table() string { return s.From }

// Table returns the target table name.
func (i Insert) Table() string { return i.Into }

// Table returns the target table name.
func (u Update) Table() string { return u.In }

// Table returns the target table name.
func (d Delete) Table() string { return d.From }

func (Select) stmt() {}
func (Insert) stmt() {}
func (Update) stmt() {}
func (Delete) stmt() {}

// Columns returns every column name referenced by the predicate tree.
func Columns(p Predicate) []string {
	var cols []string
	walk(p, func(c Condition) {
		cols = append(cols, c.Column)
	})
	return cols
}

// Conditions returns every leaf condition in the predicate tree.
func Conditions(p Predicate) []Condition {
	var conds []Condition
	walk(p, func(c Condition) {
		conds = append(conds, c)
	})
	return conds
}

// HasOr reports whether the predicate tree contains a disjunction.
func HasOr(p Predicate) bool {
	switch v := p.(type) {
	case nil:
		return false
	case Condition:
		return false
	case And:
		for _, child := range v.Preds {
			if HasOr(child) {
				return true
			}
		}
		return false
	case Or:
		return true
	default:
		return false
	}
}

func walk(p Predicate, fn func(Condition)) {
	switch v := p.(type) {
	case nil:
	case Condition:
		fn(v)
	case And:
		for _, child := range v.Preds {
			walk(child, fn)
		}
	case Or:
		for _, child := range v.Preds {
			walk(child, fn)
		}
	}
}

package adapter

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/taberr"
)

// encodeConditions rewrites pushed-down conditions into API query
// parameters. Equality maps to the bare column name; other operators use
// the column__op suffix convention. IN values are comma-joined. Conjuncts
// sharing a column and operator each produce a parameter value, so every
// conjunct is reflected in the outbound request.
func encodeConditions(conds []query.Condition) (url.Values, error) {
	params := url.Values{}
	for _, c := range conds {
		key := c.Column
		if c.Op != query.OpEquals {
			key = c.Column + "__" + string(c.Op)
		}
		val, err := encodeValue(c)
		if err != nil {
			return nil, err
		}
		params.Add(key, val)
	}
	return params, nil
}

// encodePredicate encodes a mutation predicate, which must be a
// conjunction of conditions. Disjunctions cannot be expressed as API
// parameters and are rejected before any call is made.
func encodePredicate(pred query.Predicate) (url.Values, error) {
	if pred == nil {
		return url.Values{}, nil
	}
	if query.HasOr(pred) {
		return nil, taberr.New(taberr.KindUnsupportedQuery,
			"disjunctive predicates are not supported for mutations")
	}
	return encodeConditions(query.Conditions(pred))
}

func encodeValue(c query.Condition) (string, error) {
	if c.Op == query.OpIn {
		items, ok := c.Value.([]any)
		if !ok {
			return "", taberr.New(taberr.KindUnsupportedQuery,
				"IN predicate on %q requires a list value", c.Column)
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = scalarString(item)
		}
		return strings.Join(parts, ","), nil
	}
	return scalarString(c.Value), nil
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func joinFields(fields []string) string {
	return strings.Join(fields, ",")
}

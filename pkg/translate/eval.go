package translate

import (
	"strings"
	"time"

	"github.com/txn2/tabular/pkg/materialize"
	"github.com/txn2/tabular/pkg/query"
	"github.com/txn2/tabular/pkg/taberr"
)

// Eval evaluates a residual predicate against one materialized row.
// Null column values never match any condition.
func Eval(pred query.Predicate, row materialize.Row) (bool, error) {
	switch p := pred.(type) {
	case nil:
		return true, nil
	case query.Condition:
		return evalCondition(p, row)
	case query.And:
		for _, child := range p.Preds {
			ok, err := Eval(child, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case query.Or:
		for _, child := range p.Preds {
			ok, err := Eval(child, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, taberr.New(taberr.KindUnsupportedQuery,
			"unsupported predicate node %T", pred)
	}
}

func evalCondition(c query.Condition, row materialize.Row) (bool, error) {
	val, ok := row[c.Column]
	if !ok || val == nil {
		return false, nil
	}

	switch c.Op {
	case query.OpEquals:
		cmp, comparable := compare(val, c.Value)
		return comparable && cmp == 0, nil
	case query.OpNotEquals:
		cmp, comparable := compare(val, c.Value)
		return comparable && cmp != 0, nil
	case query.OpGt:
		cmp, comparable := compare(val, c.Value)
		return comparable && cmp > 0, nil
	case query.OpGte:
		cmp, comparable := compare(val, c.Value)
		return comparable && cmp >= 0, nil
	case query.OpLt:
		cmp, comparable := compare(val, c.Value)
		return comparable && cmp < 0, nil
	case query.OpLte:
		cmp, comparable := compare(val, c.Value)
		return comparable && cmp <= 0, nil
	case query.OpIn:
		items, ok := c.Value.([]any)
		if !ok {
			return false, taberr.New(taberr.KindUnsupportedQuery,
				"IN predicate on %q requires a list value", c.Column)
		}
		for _, item := range items {
			if cmp, comparable := compare(val, item); comparable && cmp == 0 {
				return true, nil
			}
		}
		return false, nil
	case query.OpLike:
		pattern, ok := c.Value.(string)
		if !ok {
			return false, taberr.New(taberr.KindUnsupportedQuery,
				"LIKE predicate on %q requires a string pattern", c.Column)
		}
		s, ok := val.(string)
		if !ok {
			return false, nil
		}
		return matchLike(s, pattern), nil
	default:
		return false, taberr.New(taberr.KindUnsupportedQuery,
			"unsupported operator %q", c.Op)
	}
}

// compare orders two scalars of possibly different dynamic types.
// Numbers compare numerically across int and float representations;
// strings, bools, and timestamps compare within their own type.
func compare(a, b any) (int, bool) {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if av == bv {
			return 0, true
		}
		if !av {
			return -1, true
		}
		return 1, true
	case time.Time:
		bv, ok := asTime(b)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// matchLike evaluates a SQL LIKE pattern where % matches any run and _
// matches a single character.
func matchLike(s, pattern string) bool {
	return likeMatch([]rune(s), []rune(pattern))
}

func likeMatch(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatch(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		return len(s) > 0 && likeMatch(s[1:], p[1:])
	default:
		return len(s) > 0 && s[0] == p[0] && likeMatch(s[1:], p[1:])
	}
}


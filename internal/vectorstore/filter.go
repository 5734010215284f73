// Package vectorstore provides the shared metadata-filter evaluator used by
// every concrete VectorStore adapter's delete/query/get/count operations.
package vectorstore

import (
	"fmt"

	"github.com/GetAdriAI/idxr/internal/port"
)

// Match reports whether metadata satisfies where. A nil or empty filter
// matches everything.
func Match(metadata map[string]any, where port.Filter) (bool, error) {
	if len(where) == 0 {
		return true, nil
	}
	for key, value := range where {
		switch key {
		case "$and":
			clauses, err := asFilterSlice(value)
			if err != nil {
				return false, fmt.Errorf("vectorstore: $and: %w", err)
			}
			for _, clause := range clauses {
				ok, err := Match(metadata, clause)
				if err != nil {
					return false, err
				}
				if !ok {
					return false, nil
				}
			}
		case "$or":
			clauses, err := asFilterSlice(value)
			if err != nil {
				return false, fmt.Errorf("vectorstore: $or: %w", err)
			}
			matched := false
			for _, clause := range clauses {
				ok, err := Match(metadata, clause)
				if err != nil {
					return false, err
				}
				if ok {
					matched = true
					break
				}
			}
			if !matched {
				return false, nil
			}
		default:
			ok, err := matchField(metadata[key], value)
			if err != nil {
				return false, fmt.Errorf("vectorstore: field %q: %w", key, err)
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// matchField evaluates one field's clause, which is either a bare scalar
// (implicit $eq) or a {$op: operand} map.
func matchField(actual any, clause any) (bool, error) {
	ops, ok := clause.(port.Filter)
	if !ok {
		if m, isMap := clause.(map[string]any); isMap {
			ops = port.Filter(m)
		} else {
			return compareEqual(actual, clause), nil
		}
	}

	for op, operand := range ops {
		var ok bool
		var err error
		switch op {
		case "$eq":
			ok = compareEqual(actual, operand)
		case "$ne":
			ok = !compareEqual(actual, operand)
		case "$gt":
			ok, err = compareOrdered(actual, operand, func(c int) bool { return c > 0 })
		case "$gte":
			ok, err = compareOrdered(actual, operand, func(c int) bool { return c >= 0 })
		case "$lt":
			ok, err = compareOrdered(actual, operand, func(c int) bool { return c < 0 })
		case "$lte":
			ok, err = compareOrdered(actual, operand, func(c int) bool { return c <= 0 })
		case "$in":
			ok, err = memberOf(actual, operand)
		case "$nin":
			var member bool
			member, err = memberOf(actual, operand)
			ok = !member
		default:
			return false, fmt.Errorf("unsupported operator %q", op)
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func compareEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareOrdered(a, b any, pred func(cmp int) bool) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return pred(-1), nil
		case af > bf:
			return pred(1), nil
		default:
			return pred(0), nil
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return pred(-1), nil
	case as > bs:
		return pred(1), nil
	default:
		return pred(0), nil
	}
}

func memberOf(value, set any) (bool, error) {
	items, ok := set.([]any)
	if !ok {
		return false, fmt.Errorf("$in/$nin operand must be a list, got %T", set)
	}
	for _, item := range items {
		if compareEqual(value, item) {
			return true, nil
		}
	}
	return false, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asFilterSlice(v any) ([]port.Filter, error) {
	switch vs := v.(type) {
	case []port.Filter:
		return vs, nil
	case []any:
		out := make([]port.Filter, 0, len(vs))
		for _, item := range vs {
			f, ok := item.(port.Filter)
			if !ok {
				if m, isMap := item.(map[string]any); isMap {
					f = port.Filter(m)
				} else {
					return nil, fmt.Errorf("clause must be a filter object, got %T", item)
				}
			}
			out = append(out, f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("operand must be a list of filters, got %T", v)
	}
}

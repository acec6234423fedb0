package expr

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// lookup resolves a variable path. Missing variables resolve to nil.
func lookup(variables map[string]any, path []string) any {
	var current any = variables
	for _, name := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[name]
	}
	return normalize(current)
}

// normalize converts numeric values to float64, so that all numbers are compared and computed the same way.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

func isNumber(v any) bool {
	_, ok := v.(float64)
	return ok
}

// toNumber coerces a value to a number. Booleans and numeric strings are coerced, other values are not.
func toNumber(v any) (float64, bool) {
	switch n := normalize(v).(type) {
	case float64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := normalize(v).(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

func compare(op string, a any, b any) bool {
	a, b = normalize(a), normalize(b)

	switch op {
	case "===":
		return strictEqual(a, b)
	case "!==":
		return !strictEqual(a, b)
	case "==":
		return looseEqual(a, b)
	case "!=":
		return !looseEqual(a, b)
	}

	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			switch op {
			case ">":
				return as > bs
			case "<":
				return as < bs
			case ">=":
				return as >= bs
			case "<=":
				return as <= bs
			}
			return false
		}
	}

	if a == nil || b == nil {
		return false
	}

	x, ok := toNumber(a)
	if !ok {
		return false
	}
	y, ok := toNumber(b)
	if !ok {
		return false
	}

	switch op {
	case ">":
		return x > y
	case "<":
		return x < y
	case ">=":
		return x >= y
	case "<=":
		return x <= y
	default:
		return false
	}
}

func strictEqual(a any, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return false
	}
}

func looseEqual(a any, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	_, aIsString := a.(string)
	_, bIsString := b.(string)
	if aIsString && bIsString {
		return a == b
	}

	if isNumber(a) || isNumber(b) || isBool(a) || isBool(b) {
		x, ok := toNumber(a)
		if !ok {
			return false
		}
		y, ok := toNumber(b)
		return ok && x == y
	}

	return strictEqual(a, b)
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

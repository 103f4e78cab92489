package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Args are the decoded JSON arguments of a tool call.
type Args map[string]any

func (a Args) String(name string) string {
	switch v := a[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (a Args) Int(name string) int {
	switch v := a[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

func (a Args) Bool(name string) bool {
	switch v := a[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (a Args) Strings(name string) []string {
	switch v := a[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	}
	return nil
}

// conform checks value against an abstract type, coercing the lenient forms
// models tend to produce (numeric strings, whole floats).
func conform(typ string, value any) (any, bool) {
	switch typ {
	case TypeString:
		switch v := value.(type) {
		case string:
			return v, true
		case float64, int, bool:
			return fmt.Sprint(v), true
		}
	case TypeInteger:
		switch v := value.(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case float64:
			if v == math.Trunc(v) {
				return int(v), true
			}
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	case TypeNumber:
		switch v := value.(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	case TypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b, true
			}
		}
	case TypeArray:
		switch v := value.(type) {
		case []any, []string:
			return v, true
		}
	case TypeObject:
		if v, ok := value.(map[string]any); ok {
			return v, true
		}
	}
	return nil, false
}

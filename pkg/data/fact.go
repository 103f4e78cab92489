package data

import (
	"fmt"
	"sort"
	"strings"
)

// Flatten renders an object as "key: value" pairs ordered by key.
func Flatten(obj map[string]any) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s: %v", k, obj[k]))
	}
	return strings.Join(pairs, ", ")
}

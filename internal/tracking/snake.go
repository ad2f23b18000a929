package tracking

import (
	"regexp"
	"sort"
	"strings"
)

var (
	camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)
	separators    = regexp.MustCompile(`[\s-]+`)
)

// ToSnakeCase converts camelCase, spaced, and hyphenated keys to snake_case.
func ToSnakeCase(s string) string {
	s = camelBoundary.ReplaceAllString(s, "${1}_${2}")
	s = separators.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}

// SnakeKeys returns a copy of m with every key snake-cased. When two keys
// collide, the one sorting last wins.
func SnakeKeys(m map[string]any) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[ToSnakeCase(k)] = m[k]
	}
	return out
}

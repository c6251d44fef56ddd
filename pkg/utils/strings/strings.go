package strings

import (
	"strings"
)

// like strings.Split(s, sep), but return empty slice when s == ""
func SplitIfNotEmpty(s string, sep string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, sep)
}

// SplitFields splits s with sep, trims spaces of each element and drops empty ones.
//
// example:
//
//	SplitFields(" a, ,b,", ",")  // -> ["a", "b"]
func SplitFields(s string, sep string) []string {
	ret := []string{}
	for _, f := range SplitIfNotEmpty(s, sep) {
		if f = strings.TrimSpace(f); f != "" {
			ret = append(ret, f)
		}
	}
	return ret
}

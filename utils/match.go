package utils

import "strings"

// Match reports whether value matches pattern. Patterns may be:
//   - "*" which matches anything,
//   - a literal, matched exactly,
//   - a literal with a trailing '*' matching any suffix (e.g. "document:*"),
//   - a segmented path with '/' separators, where a ':name' segment matches
//     any single segment and a final '*' segment matches the rest
//     (e.g. "GET /users/:id", "/admin/*").
func Match(value, pattern string) bool {
	if pattern == "*" || pattern == value {
		return true
	}
	if strings.ContainsRune(pattern, '/') || strings.ContainsRune(value, '/') {
		return matchSegments(value, pattern)
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, pattern[:len(pattern)-1])
	}
	return false
}

// MatchAny reports whether value matches at least one of the patterns.
func MatchAny(value string, patterns []string) bool {
	for _, p := range patterns {
		if Match(value, p) {
			return true
		}
	}
	return false
}

func matchSegments(value, pattern string) bool {
	// Split out an HTTP-method prefix ("GET /users/1") if the pattern has one.
	valParts := strings.SplitN(value, " ", 2)
	patParts := strings.SplitN(pattern, " ", 2)
	if len(patParts) == 2 {
		if len(valParts) != 2 {
			return false
		}
		if patParts[0] != "*" && patParts[0] != valParts[0] {
			return false
		}
		value = valParts[1]
		pattern = patParts[1]
	}

	vSegs := strings.Split(value, "/")
	pSegs := strings.Split(pattern, "/")
	for i, p := range pSegs {
		if p == "*" && i == len(pSegs)-1 {
			return true
		}
		if i >= len(vSegs) {
			return false
		}
		switch {
		case strings.HasPrefix(p, ":"):
			if vSegs[i] == "" {
				return false
			}
		case strings.HasSuffix(p, "*"):
			if !strings.HasPrefix(vSegs[i], p[:len(p)-1]) {
				return false
			}
		default:
			if p != vSegs[i] {
				return false
			}
		}
	}
	return len(vSegs) == len(pSegs)
}

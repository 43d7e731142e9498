package router

import "strings"

// PrefixMatcher matches path prefixes at segment boundaries.
type PrefixMatcher struct {
	prefix string
}

// NewPrefixMatcher creates a new prefix path matcher. The prefix is
// expected without a trailing slash, except for the root prefix "/".
func NewPrefixMatcher(prefix string) *PrefixMatcher {
	return &PrefixMatcher{prefix: prefix}
}

// Match checks if the path starts with the prefix.
func (m *PrefixMatcher) Match(path string) bool {
	if m.prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	if !strings.HasPrefix(path, m.prefix) {
		return false
	}
	// Ensure we match at path boundaries
	return len(path) == len(m.prefix) || path[len(m.prefix)] == '/'
}

// Strip removes the prefix from a path it matches. The result always
// starts with "/".
func (m *PrefixMatcher) Strip(path string) string {
	if m.prefix == "/" {
		return path
	}
	rest := strings.TrimPrefix(path, m.prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

// Pattern returns the pattern.
func (m *PrefixMatcher) Pattern() string {
	return m.prefix
}

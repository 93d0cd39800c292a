package weaver

import (
	"strings"

	"github.com/wippyai/autodispose/weaver/internal/engine"
)

// MethodMatcher determines if a method is woven. Methods are named
// "Type::Method".
type MethodMatcher = engine.MethodMatcher

func splitName(full string) (typ, method string) {
	if i := strings.LastIndex(full, "::"); i >= 0 {
		return full[:i], full[i+2:]
	}
	return "", full
}

// ExactMatcher matches "Type::Method" or bare "Method" names.
type ExactMatcher struct {
	names map[string]bool
}

// NewExactMatcher creates a matcher from a list of names.
func NewExactMatcher(names []string) *ExactMatcher {
	m := &ExactMatcher{names: make(map[string]bool)}
	for _, n := range names {
		m.names[n] = true
	}
	return m
}

// MatchMethod returns true if the method matches any name.
func (m *ExactMatcher) MatchMethod(name string) bool {
	if m.names[name] {
		return true
	}
	_, method := splitName(name)
	return m.names[method]
}

// PrefixMatcher matches methods by full name prefix.
type PrefixMatcher struct {
	prefixes []string
}

// NewPrefixMatcher creates a matcher that matches methods starting with any prefix.
func NewPrefixMatcher(prefixes []string) *PrefixMatcher {
	return &PrefixMatcher{prefixes: prefixes}
}

// MatchMethod returns true if the method name starts with any prefix.
func (m *PrefixMatcher) MatchMethod(name string) bool {
	for _, p := range m.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// WildcardMatcher matches method patterns with wildcard support.
//
// Supports patterns like:
//   - "Type::Method" - exact match
//   - "Method" - matches the method on any type
//   - "Type::*" - matches all methods of a type
//   - "*::Method" - same as "Method"
//   - "Namespace.*" - matches all methods of types in a namespace, nested ones included
//   - "*" - matches everything
type WildcardMatcher struct {
	exact      map[string]bool // exact "Type::Method" matches
	methods    map[string]bool // unqualified "Method" matches
	types      map[string]bool // "Type::*" matches
	namespaces []string        // "Namespace." prefixes
	matchAll   bool            // "*" matches everything
}

// NewWildcardMatcher creates a matcher with wildcard support.
func NewWildcardMatcher(patterns []string) *WildcardMatcher {
	m := &WildcardMatcher{
		exact:   make(map[string]bool),
		methods: make(map[string]bool),
		types:   make(map[string]bool),
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			m.matchAll = true
		case strings.HasSuffix(p, "::*"):
			m.types[strings.TrimSuffix(p, "::*")] = true
		case strings.HasPrefix(p, "*::"):
			m.methods[strings.TrimPrefix(p, "*::")] = true
		case strings.HasSuffix(p, ".*"):
			m.namespaces = append(m.namespaces, strings.TrimSuffix(p, "*"))
		case strings.Contains(p, "::"):
			m.exact[p] = true
		default:
			m.methods[p] = true
		}
	}
	return m
}

// MatchMethod returns true if the method matches any pattern.
func (m *WildcardMatcher) MatchMethod(name string) bool {
	if m.matchAll || m.exact[name] {
		return true
	}
	typ, method := splitName(name)
	if m.types[typ] || m.methods[method] {
		return true
	}
	for _, ns := range m.namespaces {
		if strings.HasPrefix(typ, ns) {
			return true
		}
	}
	return false
}

// CompositeMatcher combines multiple matchers.
type CompositeMatcher struct {
	matchers []MethodMatcher
}

// NewCompositeMatcher creates a matcher that matches if any sub-matcher matches.
func NewCompositeMatcher(matchers ...MethodMatcher) *CompositeMatcher {
	return &CompositeMatcher{matchers: matchers}
}

// MatchMethod returns true if any sub-matcher matches.
func (m *CompositeMatcher) MatchMethod(name string) bool {
	for _, matcher := range m.matchers {
		if matcher != nil && matcher.MatchMethod(name) {
			return true
		}
	}
	return false
}

// Package partselect filters partition names against include/exclude glob
// patterns, letting CLI subcommands scope an operation to a subset of the
// manifest (e.g. `idxr index --partitions 'partition_00*'`) without the
// caller hand-rolling pattern matching.
package partselect

import "github.com/bmatcuk/doublestar/v4"

// Selector matches partition names against a set of include/exclude glob
// patterns. A name is selected when it matches at least one include pattern
// and no exclude pattern.
type Selector struct {
	includes []string
	excludes []string
}

// New builds a Selector. An empty includes list matches every name.
func New(includes, excludes []string) *Selector {
	if len(includes) == 0 {
		includes = []string{"*"}
	}
	return &Selector{includes: includes, excludes: excludes}
}

// Match reports whether name is selected.
func (s *Selector) Match(name string) bool {
	if !matchesAny(s.includes, name) {
		return false
	}
	return !matchesAny(s.excludes, name)
}

// Filter returns the subset of names selected, preserving order.
func (s *Selector) Filter(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if s.Match(name) {
			out = append(out, name)
		}
	}
	return out
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

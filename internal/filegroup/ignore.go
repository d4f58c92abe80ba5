package filegroup

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreSet compiles a list of gitignore-style patterns, used by
// TaskHasher's HasherConfig.ignore_patterns (spec.md §4.7) to filter
// candidate paths out of a walk before fingerprinting.
type IgnoreSet struct {
	matcher *gitignore.GitIgnore
}

// CompileIgnores compiles patterns into an IgnoreSet. An empty pattern list
// produces a set that matches nothing.
func CompileIgnores(patterns []string) *IgnoreSet {
	if len(patterns) == 0 {
		return &IgnoreSet{}
	}
	return &IgnoreSet{matcher: gitignore.CompileIgnoreLines(patterns...)}
}

// Matches reports whether path is excluded by the ignore set.
func (s *IgnoreSet) Matches(path string) bool {
	if s == nil || s.matcher == nil {
		return false
	}
	return s.matcher.MatchesPath(path)
}

// Package util holds small, shared helpers with no natural home of their
// own: string sets, concurrency limits, and output-mode enums used across
// the engine.
package util

import (
	mapset "github.com/deckarep/golang-set"
)

// StringSet is a set of strings. The teacher hand-rolls this on top of a
// map[interface{}]interface{}; we give github.com/deckarep/golang-set (a
// real teacher go.mod dependency that otherwise has no component exercising
// it) the job instead.
type StringSet struct {
	inner mapset.Set
}

// NewStringSet returns an empty StringSet.
func NewStringSet() *StringSet {
	return &StringSet{inner: mapset.NewThreadUnsafeSet()}
}

// StringSetFrom builds a StringSet from a slice.
func StringSetFrom(items []string) *StringSet {
	s := NewStringSet()
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts a string into the set.
func (s *StringSet) Add(v string) {
	s.inner.Add(v)
}

// Delete removes a string from the set.
func (s *StringSet) Delete(v string) {
	s.inner.Remove(v)
}

// Includes reports whether v is a member.
func (s *StringSet) Includes(v string) bool {
	return s.inner.Contains(v)
}

// Len returns the number of members.
func (s *StringSet) Len() int {
	return s.inner.Cardinality()
}

// List returns the members in indeterminate order. Callers that need a
// stable order must sort it themselves.
func (s *StringSet) List() []string {
	out := make([]string, 0, s.inner.Cardinality())
	for v := range s.inner.Iter() {
		out = append(out, v.(string))
	}
	return out
}

// Union adds every member of other into s.
func (s *StringSet) Union(other *StringSet) {
	s.inner = s.inner.Union(other.inner)
}

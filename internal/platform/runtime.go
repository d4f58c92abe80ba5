package platform

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// Runtime names one resolved toolchain install: a platform slug paired
// with the semver it resolved to. SetupToolchain nodes for the same
// Runtime across different projects only need to run once per pipeline,
// the way the teacher's internal/packagemanager avoids re-running
// "yarn install" once per workspace package when every package shares
// one root lockfile.
type Runtime struct {
	Slug    string
	Version *semver.Version
}

// Key returns a string uniquely identifying this Runtime for dedup maps.
func (r Runtime) Key() string {
	if r.Version == nil {
		return r.Slug
	}
	return fmt.Sprintf("%s@%s", r.Slug, r.Version.String())
}

// Satisfies reports whether r's version falls within constraint (a
// Masterminds/semver range expression, e.g. ">=1.2.0 <2.0.0").
func (r Runtime) Satisfies(constraint string) (bool, error) {
	if r.Version == nil {
		return false, fmt.Errorf("runtime %s has no resolved version", r.Slug)
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, err
	}
	return c.Check(r.Version), nil
}

// RuntimeSet dedups SetupToolchain work across a pipeline run: the first
// project to resolve a given Runtime performs the install, and every
// later project sharing that exact toolchain/version short-circuits.
type RuntimeSet struct {
	seen map[string]struct{}
}

// NewRuntimeSet constructs an empty RuntimeSet.
func NewRuntimeSet() *RuntimeSet {
	return &RuntimeSet{seen: make(map[string]struct{})}
}

// ClaimFirst reports true the first time it's called for a given
// Runtime, and false on every subsequent call for the same Runtime.
func (s *RuntimeSet) ClaimFirst(r Runtime) bool {
	key := r.Key()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// ResolveRuntime reads a project's toolchain declaration ("<slug>@<semver>")
// and resolves it to a Runtime, defaulting to an unversioned Runtime for
// platforms (or projects) that don't pin one.
func ResolveRuntime(p Platform, rawToolchain string) (Runtime, error) {
	if rawToolchain == "" {
		return Runtime{Slug: p.Slug}, nil
	}
	v, err := ParseToolchainVersion(rawToolchain)
	if err != nil {
		return Runtime{}, err
	}
	return Runtime{Slug: p.Slug, Version: v}, nil
}

// Package vcs defines the Vcs capability interface the core engine consumes
// (spec.md §1: "VCS plumbing — consumed via a Vcs capability") along with
// the TouchedFiles value it produces and a git-backed implementation,
// adapted from the teacher's internal/scm (git_go.go) and internal/ci.
package vcs

import (
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// TouchedFiles holds six sets of workspace-relative paths, per spec.md §3.
// The sets are not necessarily disjoint (see Git.TouchedSince). All
// flattens them into the list AffectedTracker.DirectlyAffected takes.
type TouchedFiles struct {
	Added      []string
	Modified   []string
	Deleted    []string
	Staged     []string
	Unstaged   []string
	Untracked  []string
}

// All returns the union of every touched-file set, deduplicated.
func (t TouchedFiles) All() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, set := range [][]string{t.Added, t.Modified, t.Deleted, t.Staged, t.Unstaged, t.Untracked} {
		for _, f := range set {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				out = append(out, f)
			}
		}
	}
	return out
}

// BlobHash resolves the VCS-tracked content hash of a file, used by
// TaskHasher (spec.md §4.7) as the preferred fingerprint source.
type BlobHash func(repoRelativePath string) (string, bool, error)

// Vcs is the capability the core engine consumes for all repository state.
// Parsing the actual VCS plumbing (git porcelain, hg, etc.) is out of scope
// per spec.md §1; this interface is the seam.
type Vcs interface {
	// Enabled reports whether a VCS repository was found.
	Enabled() bool
	// TouchedSince computes TouchedFiles relative to fromRef (empty for
	// working-tree-only), restricted to relativeTo.
	TouchedSince(fromRef string, relativeTo string) (TouchedFiles, error)
	// Fingerprint returns the VCS blob hash for a tracked file, or ok=false
	// if the file is untracked/not under VCS.
	Fingerprint(repoRelativePath string) (hash string, ok bool, err error)
}

// ErrNoRepository describes a missing VCS root. New does not look for a
// repository and never returns it.
var ErrNoRepository = errors.New("no VCS repository found; falling back to manual file hashing, which may be slower")

// Stub is a no-op Vcs used when no repository is present. Matches the
// teacher's scm.stub fallback.
type Stub struct{}

// Enabled always reports false for Stub.
func (Stub) Enabled() bool { return false }

// TouchedSince returns an empty TouchedFiles for Stub.
func (Stub) TouchedSince(string, string) (TouchedFiles, error) { return TouchedFiles{}, nil }

// Fingerprint always misses for Stub.
func (Stub) Fingerprint(string) (string, bool, error) { return "", false, nil }

var _ Vcs = Stub{}
var _ Vcs = (*Git)(nil)

// Git is the git-backed Vcs implementation.
type Git struct {
	RepoRoot string
}

// New returns a Git Vcs rooted at repoRoot.
func New(repoRoot string) *Git {
	return &Git{RepoRoot: repoRoot}
}

// Enabled always reports true for a constructed Git. New does not verify
// the worktree; cmd/moonshot checks for a .git entry before calling it.
func (g *Git) Enabled() bool { return true }

// TouchedSince shells out to git to fill TouchedFiles: Modified and
// Unstaged both hold the working-tree diff, Added holds the files changed
// since fromRef, Staged and Untracked come from the index and ls-files.
// Deleted is left empty.
func (g *Git) TouchedSince(fromRef string, relativeTo string) (TouchedFiles, error) {
	if relativeTo == "" {
		relativeTo = g.RepoRoot
	}

	modified, err := g.diffNameOnly("", relativeTo)
	if err != nil {
		return TouchedFiles{}, err
	}

	var committed []string
	if fromRef != "" {
		committed, err = g.diffNameOnly(fromRef+"...", relativeTo)
		if err != nil {
			return TouchedFiles{}, err
		}
	}

	staged, err := g.run("diff", "--name-only", "--cached", "--", relativeTo)
	if err != nil {
		return TouchedFiles{}, err
	}
	untracked, err := g.run("ls-files", "--others", "--exclude-standard", "--", relativeTo)
	if err != nil {
		return TouchedFiles{}, err
	}

	return TouchedFiles{
		Modified:  modified,
		Added:     committed,
		Staged:    lines(staged),
		Unstaged:  modified,
		Untracked: lines(untracked),
	}, nil
}

// Fingerprint resolves the git blob hash for a tracked path via
// `git hash-object`, falling back to ok=false for untracked files.
func (g *Git) Fingerprint(repoRelativePath string) (string, bool, error) {
	out, err := g.run("ls-files", "--error-unmatch", repoRelativePath)
	if err != nil || strings.TrimSpace(out) == "" {
		return "", false, nil
	}
	hashOut, err := g.run("hash-object", repoRelativePath)
	if err != nil {
		return "", false, errors.Wrapf(err, "hashing %v", repoRelativePath)
	}
	return strings.TrimSpace(hashOut), true, nil
}

func (g *Git) diffNameOnly(ref string, relativeTo string) ([]string, error) {
	args := []string{"diff", "--name-only"}
	if ref != "" {
		args = append(args, ref)
	}
	args = append(args, "--", relativeTo)
	out, err := g.run(args...)
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

func (g *Git) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = g.RepoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "git %v", strings.Join(args, " "))
	}
	return string(out), nil
}

func lines(s string) []string {
	out := make([]string, 0)
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

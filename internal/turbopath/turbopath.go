// Package turbopath teaches the Go type system about two kinds of path used
// throughout moonshot: AbsolutePath (rooted at the filesystem root) and
// RelativePath (workspace- or project-relative, always slash-separated so
// that hashes and cache manifests are stable across platforms).
//
// Adapted from the teacher's six-variant turbopath package. The
// system/unix split doesn't earn its keep here: spec.md's data model only
// ever talks about "workspace-relative paths", never about the host's path
// separator, so RelativePath is unconditionally slash-separated and the
// system-path variant was dropped.
package turbopath

import (
	"path/filepath"
	"strings"
)

// AbsolutePath is an absolute filesystem path using host path separators.
type AbsolutePath string

// ToString returns the string form of the path.
func (p AbsolutePath) ToString() string { return string(p) }

// Join appends relative path segments.
func (p AbsolutePath) Join(parts ...string) AbsolutePath {
	return AbsolutePath(filepath.Join(append([]string{string(p)}, parts...)...))
}

// RelativeTo computes the RelativePath of p relative to base, always
// slash-separated regardless of host OS.
func (p AbsolutePath) RelativeTo(base AbsolutePath) (RelativePath, error) {
	rel, err := filepath.Rel(base.ToString(), p.ToString())
	if err != nil {
		return "", err
	}
	return RelativePath(filepath.ToSlash(rel)), nil
}

// RelativePath is a workspace- or project-relative path, always using `/`
// as the separator so it is portable and reproducible in hashes.
type RelativePath string

// ToString returns the string form of the path.
func (p RelativePath) ToString() string { return string(p) }

// RestoreAnchor prefixes the relative path with its anchor, producing an
// AbsolutePath using host separators.
func (p RelativePath) RestoreAnchor(anchor AbsolutePath) AbsolutePath {
	return anchor.Join(filepath.FromSlash(string(p)))
}

// Join appends more relative segments, normalizing to `/`.
func (p RelativePath) Join(parts ...string) RelativePath {
	all := append([]string{string(p)}, parts...)
	return RelativePath(strings.Join(trimEmpty(all), "/"))
}

func trimEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RelativePathFromUpstream casts a string to a RelativePath without
// checking. Marks the boundary where an external string is trusted to
// already be workspace-relative and slash-separated.
func RelativePathFromUpstream(s string) RelativePath {
	return RelativePath(filepath.ToSlash(s))
}

// EscapesRoot reports whether the relative path, once joined to any root,
// could reach outside of it (absolute path, or contains a `..` segment that
// isn't itself cancelled out). Used to enforce the outputs invariant in
// spec.md §3 ("outputs contain no absolute or parent-escaping paths").
func (p RelativePath) EscapesRoot() bool {
	s := string(p)
	if filepath.IsAbs(s) {
		return true
	}
	cleaned := filepath.ToSlash(filepath.Clean(s))
	return cleaned == ".." || strings.HasPrefix(cleaned, "../")
}

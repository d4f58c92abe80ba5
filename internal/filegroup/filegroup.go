// Package filegroup implements spec.md §4.1's FileGroup: a named, ordered
// set of files/dirs/globs owned by a project, resolved against the
// project's root on disk.
//
// Classification and walking are adapted from the teacher's
// internal/fs/copy_file.go (godirwalk-based Walk) and internal/fs
// (ignore-pattern handling); glob matching is done with gobwas/glob, a
// teacher go.mod dependency that had no component exercising it in the
// original tree (see SPEC_FULL.md domain-stack table).
package filegroup

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// EntryKind classifies one raw pattern in a FileGroup.
type EntryKind int

const (
	// KindFile is a literal file path.
	KindFile EntryKind = iota
	// KindDir is a literal directory path.
	KindDir
	// KindGlob is a glob pattern (including negations).
	KindGlob
)

// globChars are the characters that make a pattern a glob per spec.md §4.1:
// "a pattern is a glob iff it contains any of *?[{!".
const globChars = "*?[{!"

// FileGroup is a named, ordered set of files/dirs/globs.
type FileGroup struct {
	Name     string
	Patterns []string
}

// New constructs a FileGroup from its raw pattern list, preserving order.
func New(name string, patterns []string) FileGroup {
	return FileGroup{Name: name, Patterns: patterns}
}

// classify decides the EntryKind of one pattern, per spec.md §4.1:
// "classification rule: a pattern is a glob iff it contains any of *?[{!;
// otherwise the on-disk kind decides file vs. directory."
func classify(projectRoot string, pattern string) EntryKind {
	if strings.ContainsAny(pattern, globChars) {
		return KindGlob
	}
	info, err := os.Stat(filepath.Join(projectRoot, pattern))
	if err == nil && info.IsDir() {
		return KindDir
	}
	return KindFile
}

// Files returns the subset of patterns classified as literal files,
// regardless of whether they currently exist on disk — per spec.md §4.1,
// "Nonexistent literal paths are retained for hashing purposes."
func (fg FileGroup) Files(projectRoot string) []string {
	var out []string
	for _, p := range fg.Patterns {
		if classify(projectRoot, p) == KindFile {
			out = append(out, p)
		}
	}
	return out
}

// Dirs returns literal directories that exist on disk. Nonexistent
// directories are omitted from directory walks per spec.md §4.1.
func (fg FileGroup) Dirs(projectRoot string) []string {
	var out []string
	for _, p := range fg.Patterns {
		if classify(projectRoot, p) == KindDir {
			if info, err := os.Stat(filepath.Join(projectRoot, p)); err == nil && info.IsDir() {
				out = append(out, p)
			}
		}
	}
	return out
}

// DirPatterns returns every pattern classified as a directory, regardless
// of whether it currently exists on disk. Used by TokenExpander's
// @root(g) function, which names the group's directory anchors rather than
// its existing directory listing (@dirs(g) filters to existing ones).
func (fg FileGroup) DirPatterns(projectRoot string) []string {
	var out []string
	for _, p := range fg.Patterns {
		if classify(projectRoot, p) == KindDir {
			out = append(out, p)
		}
	}
	return out
}

// Globs returns the glob patterns verbatim.
func (fg FileGroup) Globs() []string {
	var out []string
	for _, p := range fg.Patterns {
		if strings.ContainsAny(p, globChars) {
			out = append(out, p)
		}
	}
	return out
}

// All merges files, dirs, and globs in a stable order: the order the
// patterns were declared in.
func (fg FileGroup) All(projectRoot string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(fg.Patterns))
	for _, p := range fg.Patterns {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Resolve expands every pattern in the group into a deduplicated, ordered
// list of projectRoot-relative file paths: literal files as-is, literal
// directories walked recursively, and globs expanded against the project
// root.
func Resolve(projectRoot string, patterns []string) ([]string, error) {
	fg := New("", patterns)
	seen := make(map[string]struct{})
	out := make([]string, 0)

	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}

	for _, p := range fg.Files(projectRoot) {
		add(p)
	}
	for _, dir := range fg.Dirs(projectRoot) {
		files, err := walkDir(filepath.Join(projectRoot, dir))
		if err != nil {
			return nil, errors.Wrapf(err, "walking %v", dir)
		}
		for _, f := range files {
			rel, err := filepath.Rel(projectRoot, f)
			if err != nil {
				return nil, err
			}
			add(filepath.ToSlash(rel))
		}
	}
	for _, pattern := range fg.Globs() {
		matches, err := expandGlob(projectRoot, pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "expanding glob %v", pattern)
		}
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

// walkDir recursively lists every regular file under root using
// godirwalk, matching the teacher's fs.Walk helper.
func walkDir(root string) ([]string, error) {
	var out []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, entry *godirwalk.Dirent) error {
			isDir, err := entry.IsDirOrSymlinkToDir()
			if err != nil {
				return godirwalk.SkipThis
			}
			if !isDir {
				out = append(out, path)
			}
			return nil
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// expandGlob walks the whole project tree and keeps paths matching pattern,
// honoring a leading "!" as negation per spec.md §4.1 ("glob (including
// negation)"). Matching is done with gobwas/glob, compiled once per call.
func expandGlob(projectRoot string, pattern string) ([]string, error) {
	negate := strings.HasPrefix(pattern, "!")
	clean := strings.TrimPrefix(pattern, "!")

	compiled, err := glob.Compile(clean, '/')
	if err != nil {
		return nil, err
	}

	var out []string
	err = godirwalk.Walk(projectRoot, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, entry *godirwalk.Dirent) error {
			isDir, err := entry.IsDirOrSymlinkToDir()
			if err != nil {
				return godirwalk.SkipThis
			}
			if isDir {
				return nil
			}
			rel, err := filepath.Rel(projectRoot, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			matched := compiled.Match(rel)
			if matched != negate {
				out = append(out, rel)
			}
			return nil
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

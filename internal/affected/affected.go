// Package affected implements spec.md §4.5's AffectedTracker: given a set of
// touched files (from vcs.TouchedFiles), determine which projects are
// directly affected, then expand the set along the dependency graph to
// dependents (downstream impact) or dependencies (upstream, when a project
// requests "run if my deps changed").
//
// Adapted from the teacher's internal/scope package, which computes the
// same "filter packages by changed files plus graph expansion" concern
// for turbo's --filter/--since flags, generalized away from turbo's
// package.json-file-list model to spec.md's FileGroup-driven ownership
// check.
package affected

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/moonshot/moonshot/internal/filegroup"
	"github.com/moonshot/moonshot/internal/graph"
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
)

// Direction picks which way the affected set expands along the graph.
type Direction int

const (
	// Dependents expands to every project that (transitively) depends on a
	// directly affected project: "what breaks if I change this."
	Dependents Direction = iota
	// Dependencies expands to every project a directly affected project
	// (transitively) depends on: "what do I need rebuilt to build this."
	Dependencies
)

// Tracker computes the affected-project set for a given touched-file list.
type Tracker struct {
	Graph         *graph.ProjectGraph
	WorkspaceRoot string
}

// NewTracker constructs a Tracker over g, rooted at workspaceRoot (an
// absolute path that is stored only; touched files and project sources are
// both taken as already workspace-relative).
func NewTracker(g *graph.ProjectGraph, workspaceRoot string) *Tracker {
	return &Tracker{Graph: g, WorkspaceRoot: workspaceRoot}
}

// DirectlyAffected returns the set of projects owning at least one of
// touchedFiles (workspace-relative paths), per spec.md §4.5: "a project is
// directly affected if a touched file falls under its root, or matches one
// of its declared file groups."
func (t *Tracker) DirectlyAffected(touchedFiles []string) map[identifier.ID]struct{} {
	out := make(map[identifier.ID]struct{})
	for _, p := range t.Graph.LoadAll() {
		if t.owns(p, touchedFiles) {
			out[p.ID] = struct{}{}
		}
	}
	return out
}

func (t *Tracker) owns(p *project.Project, touchedFiles []string) bool {
	projRel := relToWorkspace(t.WorkspaceRoot, p.Source)
	for _, f := range touchedFiles {
		if underRoot(projRel, f) {
			return true
		}
	}
	for _, fg := range p.FileGroups {
		group := filegroup.New(string(fg.Name), fg.Patterns)
		resolved, err := filegroup.Resolve(p.Root, group.Patterns)
		if err != nil {
			continue
		}
		for _, member := range resolved {
			candidate := path(projRel, member)
			for _, f := range touchedFiles {
				if f == candidate {
					return true
				}
			}
		}
	}
	return false
}

func relToWorkspace(workspaceRoot, source string) string {
	return filepath.ToSlash(source)
}

func underRoot(root, candidate string) bool {
	root = strings.TrimSuffix(root, "/")
	if root == "" {
		return true
	}
	return candidate == root || strings.HasPrefix(candidate, root+"/")
}

func path(root, rel string) string {
	if root == "" {
		return rel
	}
	return root + "/" + rel
}

// Expand grows the directly affected set along dir, returning every id in
// direct plus every id reachable via Direction.
func (t *Tracker) Expand(direct map[identifier.ID]struct{}, dir Direction) (map[identifier.ID]struct{}, error) {
	out := make(map[identifier.ID]struct{}, len(direct))
	for id := range direct {
		out[id] = struct{}{}
	}
	for id := range direct {
		var extra []identifier.ID
		var err error
		switch dir {
		case Dependents:
			extra, err = reachableDependents(t.Graph, id)
		default:
			extra, err = t.Graph.TransitiveDependenciesOf(id)
		}
		if err != nil {
			return nil, err
		}
		for _, e := range extra {
			out[e] = struct{}{}
		}
	}
	return out, nil
}

func reachableDependents(g *graph.ProjectGraph, id identifier.ID) ([]identifier.ID, error) {
	seen := make(map[identifier.ID]struct{})
	queue := []identifier.ID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		dependents, err := g.GetDependentsOf(cur)
		if err != nil {
			return nil, err
		}
		for _, d := range dependents {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			queue = append(queue, d)
		}
	}
	out := make([]identifier.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Sorted renders a set of ids as a stable, sorted slice, used by callers
// that need deterministic output (logging, RunSummary).
func Sorted(set map[identifier.ID]struct{}) []identifier.ID {
	out := make([]identifier.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

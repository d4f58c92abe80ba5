// Package taskhash implements spec.md §4.7's TaskHasher: computing the
// content-addressed TaskHash for one task from its resolved inputs, its
// upstream dependency hashes, the global hash, and the task's own
// definition, serialized as canonical JSON and digested with SHA-256.
//
// Adapted from the teacher's internal/taskhash.Tracker (package-inputs
// hashes computed once and cached, task hashes computed in topological
// order, building on a precomputed globalHash) generalized from turbo's
// xxhash-of-%v-formatted-struct scheme to spec.md's canonical-JSON+SHA-256
// scheme (an explicit spec invariant, not an ambient concern — see
// DESIGN.md for why this one piece stays on the standard library).
package taskhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/moonshot/moonshot/internal/env"
	"github.com/moonshot/moonshot/internal/filegroup"
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
	"github.com/moonshot/moonshot/internal/vcs"
)

// FileFingerprint is one content-addressed entry contributing to a hash:
// a workspace-relative path paired with its fingerprint, produced either by
// vcs.Vcs.Fingerprint (a git blob hash) or, when the path isn't tracked by a
// repository, the "size:<bytes>" fallback form spec.md §4.7's open question
// on non-VCS fingerprinting was resolved to use.
type FileFingerprint struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
}

// canonical renders v as deterministic JSON: struct field order is fixed by
// Go's encoding/json (declaration order), and every slice field callers
// pass in must already be sorted by the caller — TaskHasher never hashes a
// bare map.
func canonical(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint resolves one workspace-relative path's content fingerprint,
// preferring the VCS blob hash and falling back to a size-only fingerprint
// when the VCS can't answer (untracked repo, or no VCS at all).
func Fingerprint(v vcs.Vcs, repoRoot, repoRelativePath string) (string, error) {
	if v != nil && v.Enabled() {
		if hash, ok, err := v.Fingerprint(repoRelativePath); err != nil {
			return "", err
		} else if ok {
			return hash, nil
		}
	}
	return sizeFingerprint(repoRoot, repoRelativePath)
}

func sizeFingerprint(repoRoot, repoRelativePath string) (string, error) {
	info, err := os.Stat(filepath.Join(repoRoot, repoRelativePath))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("size:%d", info.Size()), nil
}

// globalHashPayload is the canonical shape hashed to produce the global
// hash, spec.md §4.7: "the global hash folds in global dependency file
// fingerprints, the resolved platform/toolchain versions, and the frozen
// environment snapshot."
type globalHashPayload struct {
	GlobalFiles []FileFingerprint `json:"global_files"`
	EnvPairs    env.Pairs         `json:"env_pairs"`
	Platforms   []string          `json:"platforms"`
}

// GlobalHash computes spec.md §4.7's global hash.
func GlobalHash(globalFiles []FileFingerprint, envSnapshot env.Map, platformContributions []string) (string, error) {
	sorted := append([]FileFingerprint{}, globalFiles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	platforms := append([]string{}, platformContributions...)
	sort.Strings(platforms)
	return canonical(globalHashPayload{
		GlobalFiles: sorted,
		EnvPairs:    envSnapshot.ToHashable(),
		Platforms:   platforms,
	})
}

// taskHashPayload is the canonical shape hashed to produce one task's
// TaskHash.
type taskHashPayload struct {
	GlobalHash       string            `json:"global_hash"`
	Command          string            `json:"command"`
	Args             []string          `json:"args"`
	EnvPairs         env.Pairs         `json:"env_pairs"`
	Inputs           []FileFingerprint `json:"inputs"`
	UpstreamHashes   []string          `json:"upstream_hashes"`
	OutputGlobs      []string          `json:"output_globs"`
	PlatformContrib  string            `json:"platform_contribution"`
}

// Tracker caches task hashes (input fingerprints are recomputed on every
// HashTask call), computed in topological order the same way the teacher's Tracker requires (inputs
// before the task that needs them, upstream task hashes before downstream
// tasks), guarded by a mutex since hashing runs from worker-pool goroutines.
type Tracker struct {
	Vcs vcs.Vcs

	mu         sync.RWMutex
	taskHashes map[string]string // keyed by "<projectID>/<taskID>", since task IDs repeat across projects
}

// NewTracker constructs a Tracker.
func NewTracker(v vcs.Vcs) *Tracker {
	return &Tracker{Vcs: v, taskHashes: make(map[string]string)}
}

func taskKey(projectID, taskID identifier.ID) string {
	return fmt.Sprintf("%s/%s", projectID, taskID)
}

// HashTask computes and caches the TaskHash for t, given its already-hashed
// upstream dependencies and the run's global hash.
func (tr *Tracker) HashTask(p *project.Project, t *project.Task, resolvedInputs []string, upstreamHashes []string, globalHash string, platformContribution string) (string, error) {
	fingerprints := make([]FileFingerprint, len(resolvedInputs))
	var g errgroup.Group
	for i, rel := range resolvedInputs {
		i, rel := i, rel
		g.Go(func() error {
			fp, err := Fingerprint(tr.Vcs, p.Root, rel)
			if err != nil {
				return errors.Wrapf(err, "fingerprinting input %v for task %v", rel, t.ID)
			}
			fingerprints[i] = FileFingerprint{Path: rel, Fingerprint: fp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	sort.Slice(fingerprints, func(i, j int) bool { return fingerprints[i].Path < fingerprints[j].Path })

	ups := append([]string{}, upstreamHashes...)
	sort.Strings(ups)

	var outputGlobs []string
	for _, o := range t.Outputs {
		outputGlobs = append(outputGlobs, o.Path)
	}
	sort.Strings(outputGlobs)

	args := append([]string{}, t.Args...)
	sort.Strings(args)

	envPairs := env.Map(t.Env).ToHashable()

	hash, err := canonical(taskHashPayload{
		GlobalHash:      globalHash,
		Command:         t.Command,
		Args:            args,
		EnvPairs:        envPairs,
		Inputs:          fingerprints,
		UpstreamHashes:  ups,
		OutputGlobs:     outputGlobs,
		PlatformContrib: platformContribution,
	})
	if err != nil {
		return "", err
	}

	tr.mu.Lock()
	tr.taskHashes[taskKey(p.ID, t.ID)] = hash
	tr.mu.Unlock()

	return hash, nil
}

// Get returns a previously computed task hash for the given project/task.
func (tr *Tracker) Get(projectID, taskID identifier.ID) (string, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	h, ok := tr.taskHashes[taskKey(projectID, taskID)]
	return h, ok
}

// ResolveInputs expands a task's InputPath list to a sorted, deduplicated
// list of workspace-relative paths via the project's file groups, matching
// the fully-expanded file set TaskHasher needs before fingerprinting.
func ResolveInputs(p *project.Project, t *project.Task) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(path string) {
		if _, ok := seen[path]; !ok {
			seen[path] = struct{}{}
			out = append(out, path)
		}
	}

	for _, in := range t.Inputs {
		switch in.Kind {
		case project.InputProjectFile, project.InputProjectGlob:
			resolved, err := filegroup.Resolve(p.Root, []string{in.Path})
			if err != nil {
				return nil, err
			}
			for _, r := range resolved {
				add(r)
			}
		case project.InputWorkspaceFile, project.InputWorkspaceGlob:
			add(in.Path)
		}
	}

	sort.Strings(out)
	return out, nil
}

package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/target"
	"github.com/moonshot/moonshot/internal/turbopath"
	"github.com/moonshot/moonshot/internal/util"
)

// languageMarkers maps a root-level marker file to the language it implies,
// checked in the order below. Grounded on the teacher's
// internal/packagemanager detection (package.json => npm/yarn/pnpm) and
// generalized to the other ecosystems the example pack's platforms cover.
var languageMarkers = []struct {
	file string
	lang string
}{
	{"package.json", "javascript"},
	{"Cargo.toml", "rust"},
	{"go.mod", "go"},
}

// DetectLanguage inspects root for a recognized marker file, spec.md §4.3
// "language is inferred from marker files, defaulting to unknown."
func DetectLanguage(root string) string {
	for _, m := range languageMarkers {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.lang
		}
	}
	return "unknown"
}

// BuildError wraps a failure assembling one project, naming the project so
// ProjectBuilder callers building many projects can report which one broke.
type BuildError struct {
	ProjectID string
	Cause     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building project %q: %v", e.ProjectID, e.Cause)
}
func (e *BuildError) Unwrap() error { return e.Cause }

// Builder assembles Projects from local and inherited config, per
// spec.md §4.3.
type Builder struct {
	WorkspaceRoot turbopath.AbsolutePath
}

// NewBuilder constructs a Builder rooted at workspaceRoot.
func NewBuilder(workspaceRoot turbopath.AbsolutePath) *Builder {
	return &Builder{WorkspaceRoot: workspaceRoot}
}

// Build assembles one Project from its source-relative path, local config,
// and the workspace's inherited config.
func (b *Builder) Build(source string, local LocalProjectConfig, inherited InheritedConfig) (*Project, error) {
	id, err := identifier.New(local.ID)
	if err != nil {
		return nil, &BuildError{ProjectID: local.ID, Cause: err}
	}

	root := b.WorkspaceRoot.Join(source)

	p := &Project{
		ID:     id,
		Alias:  local.Alias,
		Source: source,
		Root:   root.ToString(),
		Type:   projectTypeOf(local.Type),
		Tags:   make(map[identifier.ID]struct{}),
		FileGroups: make(map[identifier.ID]FileGroupRef),
		Tasks:      make(map[identifier.ID]*Task),
	}
	p.Language = DetectLanguage(p.Root)

	for _, t := range local.Tags {
		tagID, err := identifier.New(t)
		if err != nil {
			return nil, &BuildError{ProjectID: local.ID, Cause: errors.Wrapf(err, "tag %q", t)}
		}
		p.Tags[tagID] = struct{}{}
	}

	for _, dep := range local.Dependencies {
		depID, err := identifier.New(dep.ID)
		if err != nil {
			return nil, &BuildError{ProjectID: local.ID, Cause: errors.Wrapf(err, "dependency %q", dep.ID)}
		}
		scope := DependencyScope(dep.Scope)
		if scope == "" {
			scope = ScopeProduction
		}
		p.Dependencies = append(p.Dependencies, Dependency{ID: depID, Scope: scope, Source: SourceExplicit})
	}

	if err := b.buildFileGroups(p, local, inherited); err != nil {
		return nil, &BuildError{ProjectID: local.ID, Cause: err}
	}

	if err := b.buildTasks(p, local, inherited); err != nil {
		return nil, &BuildError{ProjectID: local.ID, Cause: err}
	}

	if err := validate(p); err != nil {
		return nil, &BuildError{ProjectID: local.ID, Cause: err}
	}

	return p, nil
}

func projectTypeOf(raw string) ProjectType {
	switch ProjectType(raw) {
	case TypeApplication, TypeLibrary, TypeTool, TypeConfiguration, TypeScaffolding, TypeAutomation:
		return ProjectType(raw)
	default:
		return TypeUnknown
	}
}

func (b *Builder) buildFileGroups(p *Project, local LocalProjectConfig, inherited InheritedConfig) error {
	merged := make(map[string][]string)
	for name, patterns := range inherited.FileGroups {
		merged[name] = append([]string{}, patterns...)
	}
	for name, patterns := range local.FileGroups {
		merged[name] = append([]string{}, patterns...)
	}
	for name, patterns := range merged {
		gid, err := identifier.New(name)
		if err != nil {
			return errors.Wrapf(err, "file group name %q", name)
		}
		p.FileGroups[gid] = FileGroupRef{Name: gid, Patterns: patterns}
	}
	return nil
}

// buildTasks merges inherited task templates with local overrides per
// spec.md §4.3: a local task with the same name as an inherited one is
// merged field-by-field using each field's MergeStrategy; a purely local
// task is taken as-is; inherited tasks absent from include (or present in
// exclude) are dropped; the inherit_tasks.rename map renames surviving
// inherited tasks before local tasks are applied on top.
func (b *Builder) buildTasks(p *Project, local LocalProjectConfig, inherited InheritedConfig) error {
	filter := local.InheritTasks
	for name, cfg := range inherited.Tasks {
		if filter != nil && !filterAllows(filter, name) {
			continue
		}
		finalName := name
		if filter != nil {
			if renamed, ok := filter.Rename[name]; ok {
				finalName = renamed
			}
		}
		task, err := b.assembleTask(p, finalName, DefaultTaskOptions(), cfg.TaskConfig, nil)
		if err != nil {
			return err
		}
		p.Tasks[task.ID] = task
	}

	for name, cfg := range local.Tasks {
		tid, err := identifier.New(name)
		if err != nil {
			return errors.Wrapf(err, "task name %q", name)
		}
		if existing, ok := p.Tasks[tid]; ok {
			merged, err := mergeTask(existing, cfg)
			if err != nil {
				return err
			}
			p.Tasks[tid] = merged
			continue
		}
		var base *Task
		if cfg.Extends != "" {
			extID, err := identifier.New(cfg.Extends)
			if err != nil {
				return errors.Wrapf(err, "extends %q", cfg.Extends)
			}
			sibling, ok := p.Tasks[extID]
			if !ok {
				return errors.Errorf("task %q extends unknown sibling task %q", name, cfg.Extends)
			}
			base = sibling
		}
		task, err := b.assembleTask(p, name, DefaultTaskOptions(), cfg, base)
		if err != nil {
			return err
		}
		p.Tasks[task.ID] = task
	}

	return nil
}

func filterAllows(f *InheritedTasksFilter, name string) bool {
	if len(f.Include) > 0 {
		found := false
		for _, inc := range f.Include {
			if inc == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, exc := range f.Exclude {
		if exc == name {
			return false
		}
	}
	return true
}

// assembleTask builds a fresh Task from cfg, optionally seeded from base
// (an extended sibling) before cfg's own fields are applied on top using
// each field's merge strategy, same as mergeTask does for inherited tasks.
func (b *Builder) assembleTask(p *Project, name string, defaults TaskOptions, cfg TaskConfig, base *Task) (*Task, error) {
	tid, err := identifier.New(name)
	if err != nil {
		return nil, errors.Wrapf(err, "task name %q", name)
	}

	t := &Task{
		ID:        tid,
		Target:    target.Target{Scope: target.Scope{Kind: target.ScopeExplicit, Value: p.ID}, Task: tid},
		ProjectID: p.ID,
		Command:   cfg.Command,
		Env:       map[string]string{},
		Options:   defaults,
	}
	if base != nil {
		*t = *base
		t.ID = tid
		t.Target = target.Target{Scope: target.Scope{Kind: target.ScopeExplicit, Value: p.ID}, Task: tid}
		if cfg.Command != "" {
			t.Command = cfg.Command
		}
	}

	applyOptions(&t.Options, cfg)

	t.Args = mergeStrings(t.Args, cfg.Args, t.Options.MergeArgs)
	t.Env = mergeEnv(t.Env, cfg.Env, t.Options.MergeEnv)

	inputs, err := parseInputs(cfg.Inputs)
	if err != nil {
		return nil, err
	}
	t.Inputs = mergeInputs(t.Inputs, inputs, t.Options.MergeInputs)

	outputs, err := parseOutputs(cfg.Outputs)
	if err != nil {
		return nil, err
	}
	t.Outputs = mergeOutputs(t.Outputs, outputs, t.Options.MergeOutputs)

	var deps []target.Target
	for _, raw := range cfg.Deps {
		d, err := target.Parse(raw)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	t.Deps = mergeTargets(t.Deps, deps, t.Options.MergeDeps)

	t.Type = inferTaskType(t)

	return t, nil
}

// mergeTask re-applies a local TaskConfig on top of an already-assembled
// inherited task, per the same strategies assembleTask uses.
func mergeTask(existing *Task, cfg TaskConfig) (*Task, error) {
	merged := *existing
	applyOptions(&merged.Options, cfg)

	if cfg.Command != "" {
		merged.Command = cfg.Command
	}
	merged.Args = mergeStrings(merged.Args, cfg.Args, merged.Options.MergeArgs)
	merged.Env = mergeEnv(merged.Env, cfg.Env, merged.Options.MergeEnv)

	inputs, err := parseInputs(cfg.Inputs)
	if err != nil {
		return nil, err
	}
	merged.Inputs = mergeInputs(merged.Inputs, inputs, merged.Options.MergeInputs)

	outputs, err := parseOutputs(cfg.Outputs)
	if err != nil {
		return nil, err
	}
	merged.Outputs = mergeOutputs(merged.Outputs, outputs, merged.Options.MergeOutputs)

	var deps []target.Target
	for _, raw := range cfg.Deps {
		d, err := target.Parse(raw)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	merged.Deps = mergeTargets(merged.Deps, deps, merged.Options.MergeDeps)

	merged.Type = inferTaskType(&merged)

	return &merged, nil
}

func applyOptions(o *TaskOptions, cfg TaskConfig) {
	if cfg.Cache != nil {
		o.Cache = *cfg.Cache
	}
	if cfg.RunInCI != nil {
		o.RunInCI = *cfg.RunInCI
	}
	if cfg.Persistent != nil {
		o.Persistent = *cfg.Persistent
	}
	if cfg.RetryCount != nil {
		o.RetryCount = *cfg.RetryCount
	}
	if cfg.OutputStyle != nil {
		o.OutputStyle = util.OutputStyle(*cfg.OutputStyle)
	}
	if cfg.AffectedFiles != nil {
		o.AffectedFiles = *cfg.AffectedFiles
	}
	if cfg.EnvFile != nil {
		o.EnvFile = *cfg.EnvFile
	}
	if cfg.MergeArgs != nil {
		o.MergeArgs = MergeStrategy(*cfg.MergeArgs)
	}
	if cfg.MergeDeps != nil {
		o.MergeDeps = MergeStrategy(*cfg.MergeDeps)
	}
	if cfg.MergeEnv != nil {
		o.MergeEnv = MergeStrategy(*cfg.MergeEnv)
	}
	if cfg.MergeInputs != nil {
		o.MergeInputs = MergeStrategy(*cfg.MergeInputs)
	}
	if cfg.MergeOutputs != nil {
		o.MergeOutputs = MergeStrategy(*cfg.MergeOutputs)
	}
	if cfg.RunFromWorkspaceRoot != nil {
		o.RunFromWorkspaceRoot = *cfg.RunFromWorkspaceRoot
	}
	if cfg.RunDepsInParallel != nil {
		o.RunDepsInParallel = *cfg.RunDepsInParallel
	}
	if cfg.Mutex != nil {
		o.Mutex = *cfg.Mutex
	}
	if cfg.TimeoutSeconds != nil {
		o.TimeoutSeconds = *cfg.TimeoutSeconds
	}
	if cfg.AllowFailure != nil {
		o.AllowFailure = *cfg.AllowFailure
	}
	if cfg.Shell != nil {
		o.Shell = *cfg.Shell
	}
}

func mergeStrings(existing, incoming []string, strategy MergeStrategy) []string {
	switch strategy {
	case MergeReplace:
		return incoming
	case MergePreserve:
		if len(existing) > 0 {
			return existing
		}
		return incoming
	case MergePrepend:
		return append(append([]string{}, incoming...), existing...)
	default: // MergeAppend
		return append(append([]string{}, existing...), incoming...)
	}
}

func mergeEnv(existing, incoming map[string]string, strategy MergeStrategy) map[string]string {
	if strategy == MergeReplace {
		out := make(map[string]string, len(incoming))
		for k, v := range incoming {
			out[k] = v
		}
		return out
	}
	if strategy == MergePreserve && len(existing) > 0 {
		return existing
	}
	out := make(map[string]string, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

func mergeInputs(existing, incoming []InputPath, strategy MergeStrategy) []InputPath {
	switch strategy {
	case MergeReplace:
		return incoming
	case MergePreserve:
		if len(existing) > 0 {
			return existing
		}
		return incoming
	case MergePrepend:
		return append(append([]InputPath{}, incoming...), existing...)
	default:
		return append(append([]InputPath{}, existing...), incoming...)
	}
}

func mergeOutputs(existing, incoming []OutputPath, strategy MergeStrategy) []OutputPath {
	switch strategy {
	case MergeReplace:
		return incoming
	case MergePreserve:
		if len(existing) > 0 {
			return existing
		}
		return incoming
	case MergePrepend:
		return append(append([]OutputPath{}, incoming...), existing...)
	default:
		return append(append([]OutputPath{}, existing...), incoming...)
	}
}

func mergeTargets(existing, incoming []target.Target, strategy MergeStrategy) []target.Target {
	switch strategy {
	case MergeReplace:
		return incoming
	case MergePreserve:
		if len(existing) > 0 {
			return existing
		}
		return incoming
	case MergePrepend:
		return append(append([]target.Target{}, incoming...), existing...)
	default:
		return append(append([]target.Target{}, existing...), incoming...)
	}
}

// inferTaskType implements spec.md §3's TaskType inference: a task named
// "build" or producing outputs is Build; a task named "test" is Test;
// everything else is Run.
func inferTaskType(t *Task) TaskType {
	switch {
	case t.ID == "test":
		return TaskTest
	case t.ID == "build" || len(t.Outputs) > 0:
		return TaskBuild
	default:
		return TaskRun
	}
}

// parseInputs classifies each raw input string into the InputPath tagged
// union per spec.md §4.2's grammar: "$VAR" is an env var, "@func(arg)" is a
// token function captured verbatim for later expansion, "//path" is
// workspace-rooted, everything else is project-rooted; a trailing "/**" or
// any glob char makes it a Glob kind instead of a File kind.
func parseInputs(raw []string) ([]InputPath, error) {
	var out []InputPath
	for _, s := range raw {
		ip, err := parseOneInput(s)
		if err != nil {
			return nil, err
		}
		out = append(out, ip)
	}
	return out, nil
}

func parseOneInput(s string) (InputPath, error) {
	switch {
	case len(s) > 1 && s[0] == '$':
		return InputPath{Kind: InputEnvVar, Path: s[1:]}, nil
	case len(s) > 1 && s[0] == '@':
		name, arg, err := splitFuncToken(s)
		if err != nil {
			return InputPath{}, err
		}
		return InputPath{Kind: InputTokenFunc, Func: name, Arg: arg}, nil
	case len(s) > 1 && s[0:2] == "//":
		if isGlobPath(s) {
			return InputPath{Kind: InputWorkspaceGlob, Path: s[2:]}, nil
		}
		return InputPath{Kind: InputWorkspaceFile, Path: s[2:]}, nil
	default:
		if isGlobPath(s) {
			return InputPath{Kind: InputProjectGlob, Path: s}, nil
		}
		return InputPath{Kind: InputProjectFile, Path: s}, nil
	}
}

func parseOutputs(raw []string) ([]OutputPath, error) {
	var out []OutputPath
	for _, s := range raw {
		op, err := parseOneOutput(s)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

func parseOneOutput(s string) (OutputPath, error) {
	switch {
	case len(s) > 1 && s[0:2] == "//":
		if isGlobPath(s) {
			return OutputPath{Kind: OutputWorkspaceGlob, Path: s[2:]}, nil
		}
		return OutputPath{Kind: OutputWorkspaceFile, Path: s[2:]}, nil
	default:
		if isGlobPath(s) {
			return OutputPath{Kind: OutputProjectGlob, Path: s}, nil
		}
		return OutputPath{Kind: OutputProjectFile, Path: s}, nil
	}
}

func isGlobPath(s string) bool {
	for _, c := range "*?[{!" {
		for _, r := range s {
			if r == c {
				return true
			}
		}
	}
	return false
}

func splitFuncToken(s string) (name string, arg string, err error) {
	open := -1
	for i, r := range s {
		if r == '(' {
			open = i
			break
		}
	}
	if open < 0 || s[len(s)-1] != ')' {
		return "", "", errors.Errorf("malformed token function %q", s)
	}
	return s[1:open], s[open+1 : len(s)-1], nil
}

// validate enforces spec.md §3's path-escape invariant: no input/output may
// resolve outside the project root once anchored.
func validate(p *Project) error {
	for _, t := range p.Tasks {
		for _, in := range t.Inputs {
			if in.Kind != InputProjectFile && in.Kind != InputProjectGlob {
				continue
			}
			if turbopath.RelativePathFromUpstream(in.Path).EscapesRoot() {
				return errors.Errorf("task %s: input %q escapes project root", t.ID, in.Path)
			}
		}
		for _, out := range t.Outputs {
			if out.Kind != OutputProjectFile && out.Kind != OutputProjectGlob {
				continue
			}
			if turbopath.RelativePathFromUpstream(out.Path).EscapesRoot() {
				return errors.Errorf("task %s: output %q escapes project root", t.ID, out.Path)
			}
		}
	}
	return nil
}

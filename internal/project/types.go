// Package project implements spec.md §4.3/§3: the Project and Task data
// model and the ProjectBuilder that assembles one project from inherited
// global task templates plus local config.
//
// Adapted from the teacher's internal/fs (TurboJSON/Pipeline/TaskDefinition)
// and internal/context (package.json-driven project assembly), generalized
// from turbo's JS-only package.json model to spec.md's explicit Project/Task
// data model with multi-language inputs/outputs and merge strategies.
package project

import (
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/target"
	"github.com/moonshot/moonshot/internal/util"
)

// TaskType is the inferred classification from spec.md §3.
type TaskType string

const (
	TaskBuild TaskType = "build"
	TaskRun   TaskType = "run"
	TaskTest  TaskType = "test"
)

// InputKind tags one entry of Task.Inputs.
type InputKind int

const (
	InputProjectFile InputKind = iota
	InputProjectGlob
	InputWorkspaceFile
	InputWorkspaceGlob
	InputEnvVar
	InputTokenFunc
	InputTokenVar
)

// InputPath is the tagged union from spec.md §3.
type InputPath struct {
	Kind  InputKind
	Path  string // for ProjectFile/ProjectGlob/WorkspaceFile/WorkspaceGlob/EnvVar
	Func  string // for TokenFunc
	Arg   string // for TokenFunc
	Var   string // for TokenVar
}

// OutputKind tags one entry of Task.Outputs. Outputs never carry EnvVar,
// TokenFunc, or TokenVar per spec.md (those are inputs-only extras; in
// practice outputs use the same path kinds turbo uses for its output globs).
type OutputKind int

const (
	OutputProjectFile OutputKind = iota
	OutputProjectGlob
	OutputWorkspaceFile
	OutputWorkspaceGlob
)

// OutputPath is the tagged union from spec.md §3.
type OutputPath struct {
	Kind OutputKind
	Path string
}

// MergeStrategy is one of the four per-field merge strategies from
// spec.md §4.3.
type MergeStrategy string

const (
	MergeAppend   MergeStrategy = "append"
	MergePrepend  MergeStrategy = "prepend"
	MergeReplace  MergeStrategy = "replace"
	MergePreserve MergeStrategy = "preserve"
)

// TaskOptions holds the per-task knobs from spec.md §3/§6.
type TaskOptions struct {
	Cache                bool
	RunInCI              bool
	Persistent           bool
	RetryCount           uint8
	OutputStyle          util.OutputStyle
	AffectedFiles        string // "", "true", "false", "args", "env"
	EnvFile              string // "" (disabled), "true" (default path), or an explicit path
	MergeArgs            MergeStrategy
	MergeDeps            MergeStrategy
	MergeEnv             MergeStrategy
	MergeInputs          MergeStrategy
	MergeOutputs         MergeStrategy
	RunFromWorkspaceRoot bool
	RunDepsInParallel    bool
	Mutex                string
	TimeoutSeconds       int
	AllowFailure         bool
	Shell                string
}

// DefaultTaskOptions returns the documented defaults: cache on, run_in_ci
// on, merge strategy append, deps run in parallel.
func DefaultTaskOptions() TaskOptions {
	return TaskOptions{
		Cache:             true,
		RunInCI:           true,
		OutputStyle:       util.OutputStream,
		MergeArgs:         MergeAppend,
		MergeDeps:         MergeAppend,
		MergeEnv:          MergeAppend,
		MergeInputs:       MergeAppend,
		MergeOutputs:      MergeAppend,
		RunDepsInParallel: true,
	}
}

// Task is immutable after ProjectBuilder finishes assembling it.
type Task struct {
	ID        identifier.ID
	Target    target.Target
	ProjectID identifier.ID

	Command string
	Args    []string
	Env     map[string]string

	Inputs  []InputPath
	Outputs []OutputPath

	Deps []target.Target

	Type TaskType

	Options TaskOptions
}

// DependencyScope classifies a project-to-project dependency edge,
// spec.md §3.
type DependencyScope string

const (
	ScopeProduction  DependencyScope = "production"
	ScopeDevelopment DependencyScope = "development"
	ScopePeer        DependencyScope = "peer"
	ScopeBuild       DependencyScope = "build"
	ScopeRoot        DependencyScope = "root"
)

// DependencySource records whether an edge was declared in config or
// inferred by a Platform capability, spec.md §3.
type DependencySource string

const (
	SourceExplicit DependencySource = "explicit"
	SourceImplicit DependencySource = "implicit"
)

// Dependency is one entry of Project.Dependencies.
type Dependency struct {
	ID     identifier.ID
	Scope  DependencyScope
	Source DependencySource
}

// ProjectType classifies a project for the constraint checks in
// spec.md §4.4.
type ProjectType string

const (
	TypeApplication   ProjectType = "application"
	TypeLibrary       ProjectType = "library"
	TypeTool          ProjectType = "tool"
	TypeConfiguration ProjectType = "configuration"
	TypeScaffolding   ProjectType = "scaffolding"
	TypeAutomation    ProjectType = "automation"
	TypeUnknown       ProjectType = "unknown"
)

// Project is immutable after ProjectBuilder finishes assembling it.
type Project struct {
	ID     identifier.ID
	Alias  string
	Source string // workspace-relative
	Root   string // absolute

	Language string
	Type     ProjectType
	Tags     map[identifier.ID]struct{}

	Dependencies []Dependency

	FileGroups map[identifier.ID]FileGroupRef
	Tasks      map[identifier.ID]*Task
}

// FileGroupRef is a name plus its raw patterns, kept alongside the project
// so callers such as AffectedTracker can re-resolve it against this project's
// root without needing a separate lookup table. Mirrors filegroup.FileGroup
// but avoids an import cycle by keeping the raw form here and letting
// callers wrap it with filegroup.New when they need resolution.
type FileGroupRef struct {
	Name     identifier.ID
	Patterns []string
}

package project

// This file defines the decoded shapes ProjectBuilder consumes. Parsing
// YAML/JSON into these structs is out of scope (spec.md §1 Non-goals), but
// the struct shapes themselves are part of the domain model: mapstructure
// tags mirror the teacher's internal/fs.TurboConfigJSON/Pipeline decoding
// convention (github.com/mitchellh/mapstructure), generalized from turbo's
// single task-name-keyed pipeline map to spec.md's project-plus-inherited
// two-tier config.

// TaskConfig is one task entry as it appears in either a project's local
// config or the inherited global config, before merging.
type TaskConfig struct {
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
	Inputs  []string          `mapstructure:"inputs"`
	Outputs []string          `mapstructure:"outputs"`
	Deps    []string          `mapstructure:"deps"`
	Extends string            `mapstructure:"extends"`

	Cache                *bool   `mapstructure:"cache"`
	RunInCI              *bool   `mapstructure:"run_in_ci"`
	Persistent           *bool   `mapstructure:"persistent"`
	RetryCount           *uint8  `mapstructure:"retry_count"`
	OutputStyle          *string `mapstructure:"output_style"`
	AffectedFiles        *string `mapstructure:"affected_files"`
	EnvFile              *string `mapstructure:"env_file"`
	MergeArgs            *string `mapstructure:"merge_args"`
	MergeDeps            *string `mapstructure:"merge_deps"`
	MergeEnv             *string `mapstructure:"merge_env"`
	MergeInputs          *string `mapstructure:"merge_inputs"`
	MergeOutputs         *string `mapstructure:"merge_outputs"`
	RunFromWorkspaceRoot *bool   `mapstructure:"run_from_workspace_root"`
	RunDepsInParallel    *bool   `mapstructure:"run_deps_in_parallel"`
	Mutex                *string `mapstructure:"mutex"`
	TimeoutSeconds       *int    `mapstructure:"timeout_seconds"`
	AllowFailure         *bool   `mapstructure:"allow_failure"`
	Shell                *string `mapstructure:"shell"`
}

// InheritedTaskConfig is one entry of the global inherited tasks config
// section (spec.md §4.3's "inherited tasks"). The include/exclude/rename
// filters a project applies to it live in InheritedTasksFilter.
type InheritedTaskConfig struct {
	TaskConfig `mapstructure:",squash"`
}

// InheritedTasksFilter is a project's local override of which inherited
// tasks apply to it and under what name, spec.md §4.3.
type InheritedTasksFilter struct {
	Include []string          `mapstructure:"include"`
	Exclude []string          `mapstructure:"exclude"`
	Rename  map[string]string `mapstructure:"rename"`
}

// LocalDependencyConfig is one explicit dependency declaration in a
// project's local config.
type LocalDependencyConfig struct {
	ID    string `mapstructure:"id"`
	Scope string `mapstructure:"scope"`
}

// LocalProjectConfig is the decoded shape of one project's own config file.
type LocalProjectConfig struct {
	ID           string                   `mapstructure:"id"`
	Alias        string                   `mapstructure:"alias"`
	Type         string                   `mapstructure:"type"`
	Tags         []string                 `mapstructure:"tags"`
	Dependencies []LocalDependencyConfig  `mapstructure:"dependencies"`
	FileGroups   map[string][]string      `mapstructure:"file_groups"`
	Tasks        map[string]TaskConfig    `mapstructure:"tasks"`
	InheritTasks *InheritedTasksFilter    `mapstructure:"inherit_tasks"`
}

// InheritedConfig is the decoded shape of the workspace-global config
// section every project inherits task templates and default file groups
// from, spec.md §4.3.
type InheritedConfig struct {
	FileGroups map[string][]string            `mapstructure:"file_groups"`
	Tasks      map[string]InheritedTaskConfig  `mapstructure:"tasks"`
}

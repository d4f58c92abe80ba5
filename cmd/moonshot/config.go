package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/moonshot/moonshot/internal/project"
)

// workspaceFileName is the root config file naming the workspace's project
// glob patterns and its inherited task/file-group templates. A minimal JSON
// decode, not the YAML/TOML front-end spec.md's Non-goals exclude: only
// the shapes project.LocalProjectConfig/InheritedConfig already name.
const workspaceFileName = "moonshot.json"

// projectFileName marks a directory as a project and holds its local config.
const projectFileName = "moonshot.project.json"

type workspaceFile struct {
	Workspaces []string `json:"workspaces"`
}

// loadWorkspace reads the root config, returning the project-glob patterns
// and the decoded InheritedConfig (file groups/tasks every project
// inherits), spec.md §4.3.
func loadWorkspace(root string) ([]string, project.InheritedConfig, error) {
	path := filepath.Join(root, workspaceFileName)
	raw, err := readJSONMap(path)
	if err != nil {
		return nil, project.InheritedConfig{}, errors.Wrapf(err, "reading %s", path)
	}

	var wf workspaceFile
	if err := mapstructure.Decode(raw, &wf); err != nil {
		return nil, project.InheritedConfig{}, err
	}

	var inherited project.InheritedConfig
	if err := mapstructure.Decode(raw, &inherited); err != nil {
		return nil, project.InheritedConfig{}, err
	}

	return wf.Workspaces, inherited, nil
}

// discoverProjects expands patterns (each relative to root, e.g.
// "apps/*", "packages/*") and returns the workspace-relative source paths
// of every directory holding a projectFileName. Sorted for deterministic
// project-graph construction order.
func discoverProjects(root string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid workspace pattern %q", pattern)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(m, projectFileName)); err != nil {
				continue
			}
			rel, err := filepath.Rel(root, m)
			if err != nil {
				return nil, err
			}
			seen[filepath.ToSlash(rel)] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// loadProjectConfig decodes one project's local config file.
func loadProjectConfig(root, source string) (project.LocalProjectConfig, error) {
	path := filepath.Join(root, source, projectFileName)
	raw, err := readJSONMap(path)
	if err != nil {
		return project.LocalProjectConfig{}, errors.Wrapf(err, "reading %s", path)
	}
	var cfg project.LocalProjectConfig
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return project.LocalProjectConfig{}, err
	}
	return cfg, nil
}

func readJSONMap(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]interface{}{}, nil
		}
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Package platform implements spec.md §3/§4.3's Platform capability
// registry: per-ecosystem logic for detecting a project's toolchain,
// installing its dependencies, syncing it, contributing extra hash inputs
// (lockfile/toolchain version), and wrapping a task's command for
// execution.
//
// Adapted from the teacher's internal/packagemanager: a registry of
// structs carrying Matches/detect predicate functions, tried in order
// until one claims the project. Generalized from turbo's Node-only
// (npm/yarn/pnpm) registry to the multi-language set SPEC_FULL.md's domain
// stack calls for, using github.com/Masterminds/semver for the version
// comparisons the teacher's package manager version matching needs.
package platform

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// Platform abstracts one language/ecosystem's toolchain conventions.
type Platform struct {
	// Name is the descriptive name ("Node.js", "Rust", "Go").
	Name string
	// Slug is the unique identifier used in config and hashing.
	Slug string
	// Specfile is the manifest file that marks a project as this platform's.
	Specfile string
	// Lockfile is the dependency-lock file contributing to the hash.
	Lockfile string

	// Detect reports whether projectRoot belongs to this platform.
	Detect func(projectRoot string) (bool, error)
	// InstallDeps installs the project's dependencies.
	InstallDeps func(projectRoot string) error
	// SyncProject performs any toolchain sync step (e.g. go mod download,
	// cargo fetch) the platform needs before tasks run.
	SyncProject func(projectRoot string) error
	// HashContribution returns extra content (lockfile bytes, toolchain
	// version) TaskHasher should fold into the global or project hash.
	HashContribution func(projectRoot string) (string, error)
	// WrapCommand adapts a task's raw command/args into the argv the
	// platform actually invokes (e.g. prefixing "npm run").
	WrapCommand func(command string, args []string) (string, []string)
}

// registry is tried in order until one Platform claims the project.
var registry = []Platform{nodePlatform, rustPlatform, goPlatform}

// System is the fallback used when no registered Platform claims a
// project: it runs the task's command directly with no ecosystem-specific
// install/sync/hash behavior.
var System = Platform{
	Name:             "system",
	Slug:             "system",
	Detect:           func(string) (bool, error) { return true, nil },
	InstallDeps:      func(string) error { return nil },
	SyncProject:      func(string) error { return nil },
	HashContribution: func(string) (string, error) { return "", nil },
	WrapCommand:      func(command string, args []string) (string, []string) { return command, args },
}

// Detect tries every registered Platform against projectRoot, falling back
// to System if none match.
func Detect(projectRoot string) (Platform, error) {
	for _, p := range registry {
		ok, err := p.Detect(projectRoot)
		if err != nil {
			return Platform{}, errors.Wrapf(err, "detecting platform %s", p.Slug)
		}
		if ok {
			return p, nil
		}
	}
	return System, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var nodePlatform = Platform{
	Name:     "Node.js",
	Slug:     "node",
	Specfile: "package.json",
	Lockfile: "package-lock.json",
	Detect: func(root string) (bool, error) {
		return exists(filepath.Join(root, "package.json")), nil
	},
	InstallDeps: func(root string) error {
		return run(root, "npm", "install")
	},
	SyncProject: func(root string) error { return nil },
	HashContribution: func(root string) (string, error) {
		return readAnyLockfile(root, "package-lock.json", "yarn.lock", "pnpm-lock.yaml")
	},
	WrapCommand: func(command string, args []string) (string, []string) {
		return "npm", append([]string{"run", command, "--"}, args...)
	},
}

var rustPlatform = Platform{
	Name:     "Rust",
	Slug:     "rust",
	Specfile: "Cargo.toml",
	Lockfile: "Cargo.lock",
	Detect: func(root string) (bool, error) {
		return exists(filepath.Join(root, "Cargo.toml")), nil
	},
	InstallDeps: func(root string) error {
		return run(root, "cargo", "fetch")
	},
	SyncProject: func(root string) error { return nil },
	HashContribution: func(root string) (string, error) {
		return readAnyLockfile(root, "Cargo.lock")
	},
	WrapCommand: func(command string, args []string) (string, []string) {
		return "cargo", append([]string{command}, args...)
	},
}

var goPlatform = Platform{
	Name:     "Go",
	Slug:     "go",
	Specfile: "go.mod",
	Lockfile: "go.sum",
	Detect: func(root string) (bool, error) {
		return exists(filepath.Join(root, "go.mod")), nil
	},
	InstallDeps: func(root string) error {
		return run(root, "go", "mod", "download")
	},
	SyncProject: func(root string) error {
		return run(root, "go", "mod", "tidy")
	},
	HashContribution: func(root string) (string, error) {
		return readAnyLockfile(root, "go.sum")
	},
	WrapCommand: func(command string, args []string) (string, []string) {
		return "go", append([]string{"run", command}, args...)
	},
}

func run(dir, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func readAnyLockfile(root string, candidates ...string) (string, error) {
	for _, c := range candidates {
		path := filepath.Join(root, c)
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
	}
	return "", nil
}

// ParseToolchainVersion parses a "<name>@<semver>" string (spec.md's
// packageManager/toolchain field convention) into the semver for
// comparisons against a platform's supported range.
func ParseToolchainVersion(raw string) (*semver.Version, error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '@' {
			return semver.NewVersion(raw[i+1:])
		}
	}
	return nil, errors.Errorf("toolchain string %q has no @version suffix", raw)
}

package main

import (
	"context"

	"github.com/moonshot/moonshot/internal/graph"
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/platform"
)

// toolchainHandler resolves each project's Platform and runs nothing
// itself: platform.Detect already ran once during graph construction, and
// toolchain resolution (no external installer to invoke here) is a no-op
// per-project step that exists so the ActionGraph's setup_toolchain node
// has a real handler to dispatch to, matching spec.md §4.6's dedicated
// node kind.
func toolchainHandler(pg *graph.ProjectGraph) func(context.Context, identifier.ID) error {
	return func(_ context.Context, projectID identifier.ID) error {
		p, err := pg.Load(string(projectID))
		if err != nil {
			return err
		}
		_, err = platform.Detect(p.Root)
		return err
	}
}

func installDepsHandler(pg *graph.ProjectGraph) func(context.Context, identifier.ID) error {
	return func(_ context.Context, projectID identifier.ID) error {
		p, err := pg.Load(string(projectID))
		if err != nil {
			return err
		}
		plat, err := platform.Detect(p.Root)
		if err != nil {
			return err
		}
		return plat.InstallDeps(p.Root)
	}
}

func syncProjectHandler(pg *graph.ProjectGraph) func(context.Context, identifier.ID) error {
	return func(_ context.Context, projectID identifier.ID) error {
		p, err := pg.Load(string(projectID))
		if err != nil {
			return err
		}
		plat, err := platform.Detect(p.Root)
		if err != nil {
			return err
		}
		return plat.SyncProject(p.Root)
	}
}

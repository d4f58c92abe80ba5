package main

import (
	"github.com/pkg/errors"

	"github.com/moonshot/moonshot/internal/graph"
	"github.com/moonshot/moonshot/internal/platform"
	"github.com/moonshot/moonshot/internal/project"
	"github.com/moonshot/moonshot/internal/turbopath"
)

// buildProjectGraph discovers every project under root (per its
// moonshot.json workspace patterns), assembles each via project.Builder,
// and links them into a constraint-checked graph.ProjectGraph.
func buildProjectGraph(root string, constraints graph.Constraints) (*graph.ProjectGraph, error) {
	patterns, inherited, err := loadWorkspace(root)
	if err != nil {
		return nil, err
	}
	sources, err := discoverProjects(root, patterns)
	if err != nil {
		return nil, err
	}

	projBuilder := project.NewBuilder(turbopath.AbsolutePath(root))
	graphBuilder := graph.NewBuilder(constraints)

	for _, source := range sources {
		graphBuilder.Discover(source)

		local, err := loadProjectConfig(root, source)
		if err != nil {
			return nil, err
		}

		p, err := projBuilder.Build(source, local, inherited)
		if err != nil {
			return nil, err
		}

		if err := applyPlatform(p); err != nil {
			return nil, errors.Wrapf(err, "resolving platform for project %q", p.ID)
		}

		if err := graphBuilder.AddProject(p); err != nil {
			return nil, err
		}
	}

	return graphBuilder.Link()
}

// applyPlatform detects p's Platform and returns any detection error. It
// adds no dependencies to p; only explicit config dependencies are linked.
func applyPlatform(p *project.Project) error {
	_, err := platform.Detect(p.Root)
	return err
}

// Command moonshot is the CLI entrypoint: thin flag parsing and wiring,
// deliberately without a subcommand tree, telemetry, or a project
// generator (SPEC_FULL.md §1.4 — "cmd/moonshot is intentionally thin").
// Grounded on the teacher's internal/cmdutil.Helper (flag parsing, UI/
// logger construction) adapted from cobra to a single pflag.FlagSet.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/moonshot/moonshot/internal/artifactstore"
	"github.com/moonshot/moonshot/internal/cacheengine"
	"github.com/moonshot/moonshot/internal/env"
	"github.com/moonshot/moonshot/internal/graph"
	"github.com/moonshot/moonshot/internal/logger"
	"github.com/moonshot/moonshot/internal/pipeline"
	"github.com/moonshot/moonshot/internal/plan"
	"github.com/moonshot/moonshot/internal/platform"
	"github.com/moonshot/moonshot/internal/project"
	"github.com/moonshot/moonshot/internal/runner"
	"github.com/moonshot/moonshot/internal/target"
	"github.com/moonshot/moonshot/internal/taskhash"
	"github.com/moonshot/moonshot/internal/util"
	"github.com/moonshot/moonshot/internal/vcs"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("moonshot", pflag.ContinueOnError)
	concurrency := flags.String("concurrency", "", "max parallel tasks, as an integer or percentage of CPU cores")
	failFast := flags.Bool("fail-fast", false, "abort remaining work as soon as one task fails")
	dryRun := flags.Bool("dry-run", false, "print the expanded action graph as DOT instead of running it")
	noColor := flags.Bool("no-color", false, "disable colored task output even when stdout is a terminal")
	verbose := flags.Bool("verbose", false, "enable debug logging")
	cwd := flags.String("cwd", "", "workspace root (defaults to the current directory)")

	ui := buildUI(colorEnabledFor(*noColor))

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		ui.Error(err.Error())
		return 1
	}

	targets := flags.Args()
	if len(targets) == 0 {
		ui.Error("usage: moonshot [flags] <target>...  (e.g. moonshot web:build)")
		return 1
	}

	root := *cwd
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			ui.Error(err.Error())
			return 1
		}
		root = wd
	}

	verbosity := 1
	if *verbose {
		verbosity = 2
	}
	log := logger.New(verbosity)

	pg, err := buildProjectGraph(root, graph.Constraints{})
	if err != nil {
		ui.Error("moonshot: " + err.Error())
		return 1
	}

	requested, err := plan.Requested(targets)
	if err != nil {
		ui.Error("moonshot: " + err.Error())
		return 1
	}

	actionGraph, err := plan.NewBuilder(pg).Build(requested)
	if err != nil {
		ui.Error("moonshot: " + err.Error())
		return 1
	}

	if *dryRun {
		ui.Output(actionGraph.RenderDOT())
		return 0
	}

	concurrencyN := 0
	if *concurrency != "" {
		n, err := util.ParseConcurrency(*concurrency)
		if err != nil {
			ui.Error("moonshot: " + err.Error())
			return 1
		}
		concurrencyN = n
	}

	repoVcs := resolveVcs(root)
	cacheRoot := filepath.Join(root, ".moon", "cache")
	cacheEngine := cacheengine.NewEngine(cacheRoot)
	hashTracker := taskhash.NewTracker(repoVcs)

	envSnapshot := env.Snapshot()
	globalHash, err := taskhash.GlobalHash(nil, envSnapshot, nil)
	if err != nil {
		ui.Error("moonshot: " + err.Error())
		return 1
	}

	output := runner.NewTaskOutput(os.Stdout, os.Stderr, colorEnabledFor(*noColor))

	platformFor := func(projectRoot string) (platform.Platform, error) {
		return platform.Detect(projectRoot)
	}

	lookup := func(t target.Target) (*project.Project, *project.Task, bool) {
		p, err := pg.Load(string(t.Scope.Value))
		if err != nil {
			return nil, nil, false
		}
		task, ok := p.Tasks[t.Task]
		return p, task, ok
	}

	runnerDeps := runner.Deps{
		Shared:        runner.NewSharedState(),
		HashTracker:   hashTracker,
		GlobalHash:    globalHash,
		CacheEngine:   cacheEngine,
		Remote:        artifactstore.NullStore{},
		PlatformFor:   platformFor,
		EnvSnapshot:   envSnapshot,
		WorkspaceRoot: root,
		Logger:        log,
		Output:        output,
	}

	handlers := pipeline.Handlers{
		SetupToolchain: toolchainHandler(pg),
		InstallDeps:    installDepsHandler(pg),
		SyncProject:    syncProjectHandler(pg),
		Lookup:         lookup,
		RunnerDeps:     runnerDeps,
	}

	p := pipeline.New(actionGraph, handlers, pipeline.Options{
		Concurrency: concurrencyN,
		FailFast:    *failFast,
		Logger:      log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	result, err := p.Run(ctx)
	if err != nil {
		ui.Error("moonshot: " + err.Error())
		return 1
	}
	if runErr := result.Errors(); runErr != nil {
		ui.Warn(runErr.Error())
	}

	if path, werr := pipeline.WriteSummary(cacheRoot, time.Now().UnixNano(), result); werr == nil {
		log.Debug("wrote run summary", "path", path, "run_id", result.RunID)
	}

	return exitCodeFor(result)
}

func exitCodeFor(result pipeline.Result) int {
	if result.Status == pipeline.Interrupted {
		return 130
	}
	for _, n := range result.Nodes {
		if n.State == runner.Failed {
			return 1
		}
	}
	if result.Status != pipeline.Completed {
		return 1
	}
	return 0
}

func resolveVcs(root string) vcs.Vcs {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		return vcs.Stub{}
	}
	return vcs.New(root)
}

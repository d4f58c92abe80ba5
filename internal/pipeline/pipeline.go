// Package pipeline implements spec.md §4.10's ActionPipeline: the
// scheduler that walks an ActionGraph batch by batch, runs each batch's
// nodes concurrently subject to a worker pool, propagates cancellation,
// and aggregates results.
//
// Grounded on the teacher's internal/core.Engine.Execute (a
// dag.AcyclicGraph.Walk driven by a semaphore and an atomic
// already-errored flag), adapted from turbo's single Walk-with-semaphore
// shape to spec.md's explicit batch-by-batch walk (since action.Graph
// exposes Batches() rather than a raw Walk callback) and its richer
// Pending/Persistent/Cancelled node handling.
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/moonshot/moonshot/internal/action"
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
	"github.com/moonshot/moonshot/internal/runner"
	"github.com/moonshot/moonshot/internal/target"
	"github.com/moonshot/moonshot/internal/util"
)

// Status is the pipeline's terminal outcome, spec.md §4.10.
type Status string

const (
	Completed   Status = "completed"
	Interrupted Status = "interrupted"
	Terminated  Status = "terminated"
	Aborted     Status = "aborted"
)

// NodeResult records one ActionGraph node's outcome.
type NodeResult struct {
	Label    string
	Kind     action.Kind
	State    runner.State
	Hash     string
	ExitCode int
	Err      error      `json:"-"`
	ErrText  string     `json:"error,omitempty"`
	Started  time.Time  `json:"started"`
	Finished time.Time  `json:"finished"`
}

// Result is the pipeline's overall outcome. RunID stamps a unique
// identifier onto this run's event stream and summary document, the way
// the teacher's runsummary keys each run's artifacts.
type Result struct {
	RunID  string
	Status Status
	Nodes  map[string]*NodeResult
}

// Handlers supplies the callbacks the pipeline dispatches non-RunTask
// nodes to, plus the lookup the pipeline needs to turn a RunTask node
// into a runner.Runner.
type Handlers struct {
	SetupToolchain func(ctx context.Context, projectID identifier.ID) error
	InstallDeps    func(ctx context.Context, projectID identifier.ID) error
	SyncProject    func(ctx context.Context, projectID identifier.ID) error

	// Lookup resolves a RunTask node's target to its Project and Task.
	Lookup func(t target.Target) (*project.Project, *project.Task, bool)

	// RunnerDeps is the shared Deps passed to every runner.Runner this
	// pipeline constructs.
	RunnerDeps runner.Deps
}

// Options configures one pipeline Run.
type Options struct {
	Concurrency int // 0 means "use every available CPU", per spec.md §5
	FailFast    bool
	Logger      hclog.Logger
}

// Pipeline walks a single ActionGraph.
type Pipeline struct {
	Graph    *action.Graph
	Handlers Handlers
	Options  Options

	mu        sync.Mutex
	results   map[string]*NodeResult
	failed    bool
	persistWG sync.WaitGroup
}

// New constructs a Pipeline over graph.
func New(graph *action.Graph, handlers Handlers, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Pipeline{
		Graph:    graph,
		Handlers: handlers,
		Options:  opts,
		results:  make(map[string]*NodeResult),
	}
}

// Run walks the ActionGraph to completion, returning the aggregated Result.
// ctx's cancellation (Ctrl-C, or the caller's own --fail-fast plumbing)
// transitions every in-flight and pending node to Cancelled.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	runID := uuid.New().String()

	batches, err := p.Graph.Batches()
	if err != nil {
		return Result{RunID: runID, Status: Aborted, Nodes: p.snapshot()}, err
	}

	concurrency := util.ResolveConcurrency(p.Options.Concurrency)
	sem := semaphore.NewWeighted(int64(concurrency))

	runCtx, internalCancel := context.WithCancel(ctx)
	defer internalCancel()

	var internalAbort bool

batchLoop:
	for _, batch := range batches {
		var wg sync.WaitGroup
		for _, label := range batch {
			label := label
			node, ok := p.Graph.Node(label)
			if !ok {
				continue
			}

			select {
			case <-runCtx.Done():
				p.record(label, node, runner.Cancelled, "", -1, runCtx.Err(), time.Now(), time.Now())
				continue
			default:
			}

			if node.Kind == action.RunTask {
				if proj, task, found := p.Handlers.Lookup(node.Target); found && task.Options.Persistent {
					p.persistWG.Add(1)
					go func() {
						defer p.persistWG.Done()
						p.runTask(runCtx, label, node, proj, task)
					}()
					continue
				}
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := sem.Acquire(runCtx, 1); err != nil {
					p.record(label, node, runner.Cancelled, "", -1, err, time.Now(), time.Now())
					return
				}
				defer sem.Release(1)
				p.dispatch(runCtx, label, node)
			}()
		}
		wg.Wait()

		if p.Options.FailFast && p.hasFailure() {
			internalAbort = true
			internalCancel()
			break batchLoop
		}
	}

	status := Completed
	switch {
	case ctx.Err() != nil:
		status = Interrupted
	case internalAbort:
		status = Terminated
	}

	return Result{RunID: runID, Status: status, Nodes: p.snapshot()}, nil
}

func (p *Pipeline) dispatch(ctx context.Context, label string, node action.Node) {
	started := time.Now()
	switch node.Kind {
	case action.SetupToolchain:
		err := p.call(p.Handlers.SetupToolchain, ctx, node.ProjectID)
		p.record(label, node, terminalFor(err), "", exitFrom(err), err, started, time.Now())
	case action.InstallDeps:
		err := p.call(p.Handlers.InstallDeps, ctx, node.ProjectID)
		p.record(label, node, terminalFor(err), "", exitFrom(err), err, started, time.Now())
	case action.SyncProject:
		err := p.call(p.Handlers.SyncProject, ctx, node.ProjectID)
		p.record(label, node, terminalFor(err), "", exitFrom(err), err, started, time.Now())
	case action.RunTask:
		proj, task, found := p.Handlers.Lookup(node.Target)
		if !found {
			p.record(label, node, runner.Failed, "", -1, errNotFound(node.Target), started, time.Now())
			return
		}
		p.runTask(ctx, label, node, proj, task)
	}
}

func (p *Pipeline) runTask(ctx context.Context, label string, node action.Node, proj *project.Project, task *project.Task) {
	started := time.Now()
	r := runner.New(proj, task, node, p.Handlers.RunnerDeps)
	ts, err := r.Run(ctx)
	p.record(label, node, ts.State, ts.Hash, ts.ExitCode, err, started, time.Now())
}

func (p *Pipeline) call(fn func(context.Context, identifier.ID) error, ctx context.Context, id identifier.ID) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, id)
}

func terminalFor(err error) runner.State {
	if err != nil {
		return runner.Failed
	}
	return runner.Archived
}

func exitFrom(err error) int {
	if err != nil {
		return 1
	}
	return 0
}

func (p *Pipeline) record(label string, node action.Node, state runner.State, hash string, exitCode int, err error, started, finished time.Time) {
	res := &NodeResult{
		Label:    label,
		Kind:     node.Kind,
		State:    state,
		Hash:     hash,
		ExitCode: exitCode,
		Err:      err,
		Started:  started,
		Finished: finished,
	}
	if err != nil {
		res.ErrText = err.Error()
	}

	p.mu.Lock()
	p.results[label] = res
	if state == runner.Failed {
		p.failed = true
	}
	p.mu.Unlock()
}

// Errors aggregates every failed node's error into a single
// *multierror.Error, the way the teacher's internal/core.Engine collects
// per-task errors from a Walk into one reportable value. Returns nil if
// nothing failed.
func (r Result) Errors() error {
	var merr *multierror.Error
	for _, n := range r.Nodes {
		if n.Err != nil {
			merr = multierror.Append(merr, errors.Wrapf(n.Err, "%s", n.Label))
		}
	}
	return merr.ErrorOrNil()
}

func (p *Pipeline) hasFailure() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

func (p *Pipeline) snapshot() map[string]*NodeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]*NodeResult, len(p.results))
	for k, v := range p.results {
		out[k] = v
	}
	return out
}

type notFoundError struct{ t target.Target }

func (e *notFoundError) Error() string { return "pipeline: no task registered for target " + e.t.String() }

func errNotFound(t target.Target) error { return &notFoundError{t: t} }

// WriteSummary serializes Result as a run summary document under
// "<cacheRoot>/runSummary/<unix-nanos>.json", SPEC_FULL.md §3's
// supplemented run-summary feature adapted from the teacher's
// internal/runsummary (trimmed to the fields moonshot's simpler task
// model actually has: no Vercel space upload, no single-package mode).
func WriteSummary(cacheRoot string, timestampNanos int64, result Result) (string, error) {
	dir := filepath.Join(cacheRoot, "runSummary")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, strconv.FormatInt(timestampNanos, 10)+".json")

	type taskEntry struct {
		Label    string `json:"label"`
		Kind     string `json:"kind"`
		State    string `json:"state"`
		Hash     string `json:"hash,omitempty"`
		ExitCode int    `json:"exit_code"`
		Error    string `json:"error,omitempty"`
	}
	doc := struct {
		RunID  string      `json:"run_id"`
		Status string      `json:"status"`
		Tasks  []taskEntry `json:"tasks"`
	}{RunID: result.RunID, Status: string(result.Status)}

	for _, res := range result.Nodes {
		doc.Tasks = append(doc.Tasks, taskEntry{
			Label:    res.Label,
			Kind:     res.Kind.String(),
			State:    res.State.String(),
			Hash:     res.Hash,
			ExitCode: res.ExitCode,
			Error:    res.ErrText,
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

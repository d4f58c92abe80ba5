// Package runner implements spec.md §4.9's TaskRunner: the per-task state
// machine that waits on dependencies, hashes, consults the cache, executes
// the task's command on a miss, archives its outputs, and records a
// terminal state.
//
// The process lifecycle (soft terminate, grace period, hard kill) is
// adapted from the teacher's internal/process.Child, trimmed of the
// consul-template restart/splay machinery spec.md has no use for: a task
// runs its command exactly once per attempt and is never restarted except
// by the runner's own retry loop.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/moonshot/moonshot/internal/action"
	"github.com/moonshot/moonshot/internal/artifactstore"
	"github.com/moonshot/moonshot/internal/cacheengine"
	"github.com/moonshot/moonshot/internal/env"
	"github.com/moonshot/moonshot/internal/filegroup"
	"github.com/moonshot/moonshot/internal/platform"
	"github.com/moonshot/moonshot/internal/project"
	"github.com/moonshot/moonshot/internal/target"
	"github.com/moonshot/moonshot/internal/taskhash"
)

// State is one of the TaskRunner state machine's named states, spec.md §4.9.
type State int

const (
	Pending State = iota
	WaitingOnDeps
	Hashing
	CacheLookup
	Executing
	Archiving
	Hydrating
	Skipped
	Archived
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case WaitingOnDeps:
		return "waiting_on_deps"
	case Hashing:
		return "hashing"
	case CacheLookup:
		return "cache_lookup"
	case Executing:
		return "executing"
	case Archiving:
		return "archiving"
	case Hydrating:
		return "hydrating"
	case Skipped:
		return "skipped"
	case Archived:
		return "archived"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is one of the state machine's terminal states.
func (s State) Terminal() bool {
	switch s {
	case Skipped, Archived, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// TerminalState is what a finished target publishes into SharedState,
// spec.md §5's target_states map.
type TerminalState struct {
	State    State
	Hash     string
	ExitCode int
}

// Passed reports whether this terminal state counts as success for the
// purpose of unblocking dependents (spec.md §4.9: Archived, or Failed
// converted to passing by allow_failure).
func (t TerminalState) Passed() bool {
	return t.State == Archived
}

// SharedState is the run-wide map of target_states/target_hashes from
// spec.md §5, guarded so each target writes its terminal entry exactly
// once and every read takes a read lock.
type SharedState struct {
	mu      sync.RWMutex
	states  map[string]TerminalState
	mutexes map[string]*sync.Mutex
	mutexMu sync.Mutex
}

// NewSharedState constructs an empty SharedState.
func NewSharedState() *SharedState {
	return &SharedState{
		states:  make(map[string]TerminalState),
		mutexes: make(map[string]*sync.Mutex),
	}
}

// Get reads a target's terminal state, if it has one yet.
func (s *SharedState) Get(t target.Target) (TerminalState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[t.String()]
	return st, ok
}

// Set publishes a target's terminal state. Called exactly once per target,
// at its transition to a terminal state.
func (s *SharedState) Set(t target.Target, st TerminalState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[t.String()] = st
}

// namedMutex returns the process-wide lock for a task's `mutex: <string>`
// option, spec.md §4.9, creating it on first use.
func (s *SharedState) namedMutex(name string) *sync.Mutex {
	s.mutexMu.Lock()
	defer s.mutexMu.Unlock()
	m, ok := s.mutexes[name]
	if !ok {
		m = &sync.Mutex{}
		s.mutexes[name] = m
	}
	return m
}

// Operation is one entry of the run's ordered operation log, spec.md §4.9:
// "append an Operation to an ordered list" on every terminal transition.
type Operation struct {
	Target   target.Target
	State    State
	Hash     string
	Duration time.Duration
	Err      error
}

// Event is published to Events as the runner crosses each state, for the
// pipeline's reporting layer to consume.
type Event struct {
	Target target.Target
	State  State
}

// Deps abstracts the collaborators a TaskRunner needs, so tests can swap in
// fakes without constructing a real cache root or HTTP remote.
type Deps struct {
	Shared        *SharedState
	HashTracker   *taskhash.Tracker
	GlobalHash    string
	CacheEngine   *cacheengine.Engine
	Remote        artifactstore.ArtifactStore
	PlatformFor   func(projectRoot string) (platform.Platform, error)
	EnvSnapshot   env.Map
	WorkspaceRoot string
	Logger        hclog.Logger
	Operations    chan<- Operation
	Events        chan<- Event

	// Output, when non-nil, streams each task's stdout/stderr through a
	// colored, label-prefixed writer instead of the process's raw stdout.
	// Left nil in tests so they run against the plain os.Stdout/os.Stderr.
	Output *TaskOutput
}

// TaskOutput is the shared collaborator Runner instances use to stream
// task output, keeping concurrent tasks' lines from interleaving and
// tagging each with a stable per-label color.
type TaskOutput struct {
	Stdout io.Writer
	Stderr io.Writer
	mu     sync.Mutex
	colors *PrefixColorCache
}

// NewTaskOutput constructs a TaskOutput writing to out/errOut, colored
// when colorEnabled is true (decided by the caller via ColorEnabled).
func NewTaskOutput(out, errOut io.Writer, colorEnabled bool) *TaskOutput {
	return &TaskOutput{Stdout: out, Stderr: errOut, colors: NewPrefixColorCache(colorEnabled)}
}

func (o *TaskOutput) writers(label string) (io.Writer, io.Writer) {
	return NewPrefixWriter(o.Stdout, &o.mu, o.colors, label), NewPrefixWriter(o.Stderr, &o.mu, o.colors, label)
}

// Runner drives one task's state machine.
type Runner struct {
	Project *project.Project
	Task    *project.Task
	Node    action.Node

	deps Deps
}

// New constructs a Runner for one RunTask action node.
func New(p *project.Project, t *project.Task, node action.Node, deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = hclog.NewNullLogger()
	}
	return &Runner{Project: p, Task: t, Node: node, deps: deps}
}

func (r *Runner) publish(state State) {
	if r.deps.Events != nil {
		r.deps.Events <- Event{Target: r.Task.Target, State: state}
	}
}

func (r *Runner) terminal(state State, hash string, exitCode int, start time.Time, err error) TerminalState {
	ts := TerminalState{State: state, Hash: hash, ExitCode: exitCode}
	r.deps.Shared.Set(r.Task.Target, ts)
	if r.deps.Operations != nil {
		r.deps.Operations <- Operation{
			Target:   r.Task.Target,
			State:    state,
			Hash:     hash,
			Duration: time.Since(start),
			Err:      err,
		}
	}
	r.publish(state)
	return ts
}

// Run executes the full state machine for one task, blocking until a
// terminal state is reached. ctx carries the run's cancellation signal.
func (r *Runner) Run(ctx context.Context) (TerminalState, error) {
	start := time.Now()
	r.publish(Pending)

	r.publish(WaitingOnDeps)
	if skip, err := r.waitOnDeps(); err != nil {
		return r.terminal(Failed, "", -1, start, err), err
	} else if skip {
		return r.terminal(Skipped, "", -1, start, nil), nil
	}

	select {
	case <-ctx.Done():
		return r.terminal(Cancelled, "", -1, start, ctx.Err()), ctx.Err()
	default:
	}

	r.publish(Hashing)
	hash, err := r.hash()
	if err != nil {
		return r.terminal(Failed, "", -1, start, errors.Wrap(err, "hashing")), err
	}

	r.publish(CacheLookup)
	if r.Task.Options.Mutex != "" {
		m := r.deps.Shared.namedMutex(r.Task.Options.Mutex)
		m.Lock()
		defer m.Unlock()
	}

	vcsEnabled := r.deps.HashTracker.Vcs != nil && r.deps.HashTracker.Vcs.Enabled()
	cacheEligible := r.Task.Options.Cache && r.deps.CacheEngine != nil && vcsEnabled
	if cacheEligible {
		hit, restoredFrom, err := r.tryCache(ctx, hash)
		if err != nil {
			r.deps.Logger.Warn("cache lookup failed, falling back to execute", "task", r.Task.ID, "error", err)
		} else if hit {
			r.publish(Hydrating)
			r.deps.Logger.Debug("cache hit", "task", r.Task.ID, "from", restoredFrom, "hash", hash)
			return r.terminal(Archived, hash, 0, start, nil), nil
		}
	}

	select {
	case <-ctx.Done():
		return r.terminal(Cancelled, hash, -1, start, ctx.Err()), ctx.Err()
	default:
	}

	r.publish(Executing)
	exitCode, execErr := r.execute(ctx)

	if execErr != nil && isCancelled(ctx) {
		return r.terminal(Cancelled, hash, exitCode, start, execErr), execErr
	}

	if exitCode != 0 {
		if r.Task.Options.AllowFailure {
			return r.terminal(Archived, hash, exitCode, start, nil), nil
		}
		return r.terminal(Failed, hash, exitCode, start, execErr), execErr
	}

	if len(r.Task.Outputs) > 0 && cacheEligible {
		r.publish(Archiving)
		if err := r.archive(hash); err != nil {
			r.deps.Logger.Warn("archiving outputs failed", "task", r.Task.ID, "error", err)
		}
	}

	return r.terminal(Archived, hash, exitCode, start, nil), nil
}

func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// waitOnDeps reads every dependency's terminal state from SharedState and
// decides whether this task should be skipped, per spec.md §4.9.
func (r *Runner) waitOnDeps() (skip bool, err error) {
	for _, dep := range r.Task.Deps {
		st, ok := r.deps.Shared.Get(dep)
		if !ok {
			return false, errors.Errorf("dependency %v has no recorded terminal state", dep)
		}
		if !st.Passed() {
			return true, nil
		}
	}
	return false, nil
}

// hash resolves the task's inputs and upstream hashes, then delegates to
// the shared HashTracker.
func (r *Runner) hash() (string, error) {
	inputs, err := taskhash.ResolveInputs(r.Project, r.Task)
	if err != nil {
		return "", err
	}

	var upstream []string
	for _, dep := range r.Task.Deps {
		st, ok := r.deps.Shared.Get(dep)
		if ok && st.Hash != "" {
			upstream = append(upstream, st.Hash)
		}
	}

	var platformContribution string
	if r.deps.PlatformForFn() != nil {
		plat, err := r.deps.PlatformForFn()(r.Project.Root)
		if err == nil {
			platformContribution, _ = plat.HashContribution(r.Project.Root)
		}
	}

	return r.deps.HashTracker.HashTask(r.Project, r.Task, inputs, upstream, r.deps.GlobalHash, platformContribution)
}

// PlatformForFn exposes deps.PlatformFor with a nil-safe default, so hash()
// can call it unconditionally.
func (d Deps) PlatformForFn() func(string) (platform.Platform, error) {
	if d.PlatformFor != nil {
		return d.PlatformFor
	}
	return nil
}

// tryCache implements spec.md §4.9's CacheLookup order: local entry, then
// remote, then a miss.
func (r *Runner) tryCache(ctx context.Context, hash string) (hit bool, restoredFrom string, err error) {
	if r.deps.CacheEngine.Has(hash) {
		_, _, err := r.deps.CacheEngine.Fetch(hash, r.Project.Root)
		if err == nil {
			return true, "local", nil
		}
	}

	if r.deps.Remote == nil {
		return false, "", nil
	}
	rc, ok, err := r.deps.Remote.Fetch(ctx, hash)
	if err != nil || !ok {
		return false, "", err
	}
	defer rc.Close()

	archivePath := filepath.Join(r.deps.CacheEngine.CacheRoot, "entries", hash, "archive.tar.zst")
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return false, "", err
	}
	out, err := os.Create(archivePath)
	if err != nil {
		return false, "", err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return false, "", err
	}
	out.Close()

	if _, err := cacheengine.RestoreArchive(archivePath, r.Project.Root); err != nil {
		return false, "", err
	}
	return true, "remote", nil
}

// execute spawns the task's command as a child process, streams its
// output, and applies the retry/timeout policy from spec.md §4.9/§5.
func (r *Runner) execute(ctx context.Context) (exitCode int, err error) {
	command, args := r.Task.Command, append([]string{}, r.Task.Args...)
	if r.deps.PlatformForFn() != nil {
		if plat, perr := r.deps.PlatformForFn()(r.Project.Root); perr == nil {
			command, args = plat.WrapCommand(command, args)
		}
	}

	attempts := int(r.Task.Options.RetryCount) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		exitCode, err = r.runOnce(ctx, command, args)
		if exitCode == 0 || isCancelled(ctx) {
			return exitCode, err
		}
		if attempt < attempts-1 {
			r.deps.Logger.Debug("retrying task", "task", r.Task.ID, "attempt", attempt+1, "exit_code", exitCode)
		}
	}
	return exitCode, err
}

func (r *Runner) runOnce(ctx context.Context, command string, args []string) (int, error) {
	cwd := r.Project.Root
	if r.Task.Options.RunFromWorkspaceRoot {
		cwd = r.deps.WorkspaceRoot
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = cwd
	cmd.Stdin = nil
	if r.deps.Output != nil {
		cmd.Stdout, cmd.Stderr = r.deps.Output.writers(r.Task.Target.String())
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	cmd.Env = mergedEnv(r.deps.EnvSnapshot, r.Task.Env, r.envFileContents())
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return -1, errors.Wrapf(err, "spawning task %v", r.Task.ID)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeout <-chan time.Time
	if r.Task.Options.TimeoutSeconds > 0 {
		timer := time.NewTimer(time.Duration(r.Task.Options.TimeoutSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		return exitCodeOf(err), err
	case <-timeout:
		softKill(cmd)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			hardKill(cmd)
			<-done
		}
		return -1, errors.Errorf("task %v timed out after %ds", r.Task.ID, r.Task.Options.TimeoutSeconds)
	case <-ctx.Done():
		softKill(cmd)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			hardKill(cmd)
			<-done
		}
		return -1, ctx.Err()
	}
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func (r *Runner) envFileContents() env.Map {
	if r.Task.Options.EnvFile == "" {
		return nil
	}
	path := r.Task.Options.EnvFile
	if path == "true" {
		path = filepath.Join(r.Project.Root, ".env")
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(r.Project.Root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	m := env.Map{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i > 0 {
			m[line[:i]] = line[i+1:]
		}
	}
	return m
}

func mergedEnv(snapshot env.Map, taskEnv map[string]string, fileEnv env.Map) []string {
	merged := snapshot.Clone()
	merged.Union(fileEnv)
	merged.Union(env.Map(taskEnv))
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// archive tars+zstds the task's matching output files under the CacheEngine.
func (r *Runner) archive(hash string) error {
	var patterns []string
	for _, o := range r.Task.Outputs {
		patterns = append(patterns, o.Path)
	}
	files, err := filegroup.Resolve(r.Project.Root, patterns)
	if err != nil {
		return err
	}
	_, err = r.deps.CacheEngine.Put(hash, r.Project.Root, files, 0, "")
	return err
}

func softKill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
}

func hardKill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

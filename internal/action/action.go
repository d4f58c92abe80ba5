// Package action implements spec.md §4.6's ActionGraph (a DepGraph of
// ActionNode): the setup_toolchain/install_deps/sync_project/run_task
// tagged-variant nodes derived from a ProjectGraph plus a task selection,
// in topological and batched-topological walk order.
//
// Built on github.com/pyr-sh/dag, matching the teacher's internal/core
// (TaskGraph *dag.AcyclicGraph, Engine.Execute's Walk-based scheduler) and
// internal/graphvisualizer (Dot rendering for --graph).
package action

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pyr-sh/dag"

	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/target"
)

// Kind tags one ActionNode variant, spec.md §4.6.
type Kind int

const (
	SetupToolchain Kind = iota
	InstallDeps
	SyncProject
	RunTask
)

func (k Kind) String() string {
	switch k {
	case SetupToolchain:
		return "setup_toolchain"
	case InstallDeps:
		return "install_deps"
	case SyncProject:
		return "sync_project"
	case RunTask:
		return "run_task"
	default:
		return "unknown"
	}
}

// Node is one vertex of the ActionGraph.
type Node struct {
	Kind      Kind
	ProjectID identifier.ID
	Target    target.Target // only set for RunTask
}

// Label renders the canonical name used both as the dag.Vertex identity and
// as the batched-topological tie-break key (spec.md §4.6: "lexicographic on
// the node's canonical label").
func (n Node) Label() string {
	switch n.Kind {
	case RunTask:
		return fmt.Sprintf("run_task:%s", n.Target.String())
	default:
		return fmt.Sprintf("%s:%s", n.Kind, n.ProjectID)
	}
}

func (n Node) String() string { return n.Label() }

// RootLabel names the synthetic root every ActionGraph is anchored under.
const RootLabel = "__root__"

// Graph is a DAG over action Nodes (DepGraph in spec.md's terms).
type Graph struct {
	dag   dag.AcyclicGraph
	nodes map[string]Node
}

// New constructs an empty Graph with its synthetic root.
func New() *Graph {
	g := &Graph{nodes: make(map[string]Node)}
	g.dag.Add(RootLabel)
	return g
}

// AddNode registers n (idempotent: adding the same label twice is a no-op),
// returning its canonical label.
func (g *Graph) AddNode(n Node) string {
	label := n.Label()
	if _, exists := g.nodes[label]; !exists {
		g.nodes[label] = n
		g.dag.Add(label)
	}
	return label
}

// Connect adds a dependency edge: from depends on to (to must run first).
func (g *Graph) Connect(from, to string) {
	g.dag.Connect(dag.BasicEdge(from, to))
}

// AnchorToRoot connects label to the synthetic root, whatever other
// dependencies label has, so every Graph has a single sink.
func (g *Graph) AnchorToRoot(label string) {
	g.dag.Connect(dag.BasicEdge(label, RootLabel))
}

// CycleError reports a dependency cycle in the ActionGraph.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("action graph has cycle(s): %v", e.Cycles)
}

// Validate checks the graph is acyclic.
func (g *Graph) Validate() error {
	cycles := g.dag.Cycles()
	if len(cycles) == 0 {
		return nil
	}
	var rendered [][]string
	for _, c := range cycles {
		var labels []string
		for _, v := range c {
			labels = append(labels, dag.VertexName(v))
		}
		rendered = append(rendered, labels)
	}
	return &CycleError{Cycles: rendered}
}

// Node looks up a previously added node by its canonical label.
func (g *Graph) Node(label string) (Node, bool) {
	n, ok := g.nodes[label]
	return n, ok
}

// DependenciesOf returns the labels label depends on (must run first),
// sorted for determinism.
func (g *Graph) DependenciesOf(label string) []string {
	set := g.dag.DownEdges(label)
	out := make([]string, 0, set.Len())
	for _, v := range set.List() {
		out = append(out, dag.VertexName(v))
	}
	sort.Strings(out)
	return out
}

// Walk executes visit concurrently on every non-root node, respecting
// dependency order (a node's dependencies always visit before it does),
// matching the teacher's Engine.Execute's use of dag.AcyclicGraph.Walk.
// Walk returns every error collected across the run, one per failed
// vertex, same as the underlying dag.Walk.
func (g *Graph) Walk(visit func(label string, n Node) error) []error {
	return g.dag.Walk(func(v dag.Vertex) error {
		label := dag.VertexName(v)
		if label == RootLabel {
			return nil
		}
		n, ok := g.nodes[label]
		if !ok {
			return nil
		}
		return visit(label, n)
	})
}

// TopologicalOrder returns every non-root label in a single deterministic
// topological order: Kahn's algorithm over DownEdges, breaking ties
// lexicographically on Node.Label() per spec.md §4.6.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	batches, err := g.Batches()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, batch := range batches {
		out = append(out, batch...)
	}
	return out, nil
}

// Batches returns the graph's dependency levels: batch[0] contains every
// leaf (no remaining unvisited dependency), batch[1] everything that
// depended only on batch[0], and so on. Within a batch, labels are sorted
// lexicographically (the tie-break spec.md §4.6 calls for since nodes
// within a batch carry no ordering constraint on each other).
func (g *Graph) Batches() ([][]string, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	remaining := make(map[string]struct{}, len(g.nodes))
	for label := range g.nodes {
		remaining[label] = struct{}{}
	}

	var batches [][]string
	for len(remaining) > 0 {
		var batch []string
		for label := range remaining {
			ready := true
			for _, dep := range g.DependenciesOf(label) {
				if dep == RootLabel {
					continue
				}
				if _, stillRemaining := remaining[dep]; stillRemaining {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, label)
			}
		}
		if len(batch) == 0 {
			return nil, &CycleError{Cycles: [][]string{remainingLabels(remaining)}}
		}
		sort.Strings(batch)
		for _, label := range batch {
			delete(remaining, label)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func remainingLabels(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RenderDOT renders the graph as a Graphviz DOT string, for the
// dry-run/graph-visualization supplemented feature (SPEC_FULL.md §3),
// grounded on the teacher's internal/graphvisualizer.generateDotString.
func (g *Graph) RenderDOT() string {
	var b strings.Builder
	b.WriteString("digraph {\n")
	labels := make([]string, 0, len(g.nodes))
	for label := range g.nodes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		b.WriteString(fmt.Sprintf("\t%q;\n", label))
		for _, dep := range g.DependenciesOf(label) {
			if dep == RootLabel {
				continue
			}
			b.WriteString(fmt.Sprintf("\t%q -> %q;\n", label, dep))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

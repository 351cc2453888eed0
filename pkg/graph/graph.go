// Package graph builds the reachability multigraph of a machine and answers
// the path and cycle queries the analyzer and simulator rely on.
package graph

import (
	"slices"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/multi"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/utils"
)

// Path is an ordered sequence of state names
type Path []string

// Line is a transition stored as a gonum line. Its ID is the declaration
// index of the transition, so parallel transitions stay distinct.
type Line struct {
	F, T       multi.Node
	UID        int64
	Transition model.Transition
}

// From implements graph.Line
func (l Line) From() graph.Node { return l.F }

// To implements graph.Line
func (l Line) To() graph.Node { return l.T }

// ID implements graph.Line
func (l Line) ID() int64 { return l.UID }

// ReversedLine implements graph.Line
func (l Line) ReversedLine() graph.Line {
	return Line{F: l.T, T: l.F, UID: l.UID, Transition: l.Transition}
}

// Graph is the read-only reachability multigraph of a machine. Node IDs
// follow state declaration order.
type Graph struct {
	g     *multi.DirectedGraph
	names []string
	ids   map[string]int64
	succ  map[int64][]int64
	lines []Line
}

// Build creates the graph of src. Every transition endpoint must be a
// declared state; wildcards must be expanded beforehand.
func Build(src model.Source) (*Graph, error) {
	gr := &Graph{
		g:    multi.NewDirectedGraph(),
		ids:  make(map[string]int64),
		succ: make(map[int64][]int64),
	}

	for _, s := range src.DeclaredStates() {
		if _, dup := gr.ids[s.Name]; dup {
			return nil, utils.NewDuplicateStateError(s.Name)
		}
		id := int64(len(gr.names))
		gr.ids[s.Name] = id
		gr.names = append(gr.names, s.Name)
		gr.g.AddNode(multi.Node(id))
	}

	for i, t := range src.DeclaredTransitions() {
		from, ok := gr.ids[t.Source]
		if !ok {
			return nil, utils.NewStateNotFoundError(t.Source).WithTrigger(t.Trigger)
		}
		to, ok := gr.ids[t.Destination]
		if !ok {
			return nil, utils.NewStateNotFoundError(t.Destination).WithTrigger(t.Trigger)
		}

		l := Line{F: multi.Node(from), T: multi.Node(to), UID: int64(i), Transition: t}
		gr.g.SetLine(l)
		gr.lines = append(gr.lines, l)
		if !slices.Contains(gr.succ[from], to) {
			gr.succ[from] = append(gr.succ[from], to)
		}
	}

	return gr, nil
}

// Nodes returns every state name in declaration order
func (gr *Graph) Nodes() []string {
	return slices.Clone(gr.names)
}

// NodeCount returns the number of states
func (gr *Graph) NodeCount() int {
	return gr.g.Nodes().Len()
}

// EdgeCount returns the number of transitions, parallel ones included
func (gr *Graph) EdgeCount() int {
	n := 0
	for _, u := range graph.NodesOf(gr.g.Nodes()) {
		for _, v := range graph.NodesOf(gr.g.From(u.ID())) {
			n += len(graph.LinesOf(gr.g.Lines(u.ID(), v.ID())))
		}
	}
	return n
}

// Has reports whether name is a node of the graph
func (gr *Graph) Has(name string) bool {
	_, ok := gr.ids[name]
	return ok
}

// Edges returns every transition in declaration order
func (gr *Graph) Edges() []model.Transition {
	out := make([]model.Transition, 0, len(gr.lines))
	for _, l := range gr.lines {
		out = append(out, l.Transition)
	}
	return out
}

// EdgesBetween returns the transitions from u to v in declaration order
func (gr *Graph) EdgesBetween(u, v string) []model.Transition {
	uid, ok := gr.ids[u]
	if !ok {
		return nil
	}
	vid, ok := gr.ids[v]
	if !ok {
		return nil
	}

	lines := graph.LinesOf(gr.g.Lines(uid, vid))
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID() < lines[j].ID() })

	out := make([]model.Transition, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.(Line).Transition)
	}
	return out
}

// Successors returns the distinct targets of n in declaration order
func (gr *Graph) Successors(n string) []string {
	id, ok := gr.ids[n]
	if !ok {
		return nil
	}
	return gr.namesOf(gr.succ[id])
}

// HasPath reports whether v can be reached from u. A node reaches itself.
func (gr *Graph) HasPath(u, v string) bool {
	uid, ok := gr.ids[u]
	if !ok {
		return false
	}
	vid, ok := gr.ids[v]
	if !ok {
		return false
	}
	return topo.PathExistsIn(gr.g, gr.g.Node(uid), gr.g.Node(vid))
}

// ShortestPathsFrom returns one shortest path from u to every node it
// reaches, u itself included. Ties resolve breadth-first with successors in
// declaration order: the first path to discover a node wins.
func (gr *Graph) ShortestPathsFrom(u string) map[string]Path {
	uid, ok := gr.ids[u]
	if !ok {
		return nil
	}

	parent := map[int64]int64{uid: -1}
	queue := []int64{uid}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, s := range gr.succ[n] {
			if _, seen := parent[s]; seen {
				continue
			}
			parent[s] = n
			queue = append(queue, s)
		}
	}

	paths := make(map[string]Path, len(parent))
	for id := range parent {
		var rev []int64
		for n := id; n != -1; n = parent[n] {
			rev = append(rev, n)
		}
		slices.Reverse(rev)
		paths[gr.names[id]] = gr.namesOf(rev)
	}
	return paths
}

// ShortestPath returns a shortest path from u to v, or nil when none exists
func (gr *Graph) ShortestPath(u, v string) Path {
	return gr.ShortestPathsFrom(u)[v]
}

// DiscoveryOrder returns the nodes reachable from u in breadth-first order,
// u first
func (gr *Graph) DiscoveryOrder(u string) []string {
	uid, ok := gr.ids[u]
	if !ok {
		return nil
	}

	seen := map[int64]bool{uid: true}
	order := []int64{uid}
	for i := 0; i < len(order); i++ {
		for _, s := range gr.succ[order[i]] {
			if !seen[s] {
				seen[s] = true
				order = append(order, s)
			}
		}
	}
	return gr.namesOf(order)
}

// AllSimplePaths returns every path from u to v that repeats no node, in
// depth-first order. Parallel transitions yield a single node sequence.
// When u == v the only simple path is [u].
func (gr *Graph) AllSimplePaths(u, v string) []Path {
	uid, ok := gr.ids[u]
	if !ok {
		return nil
	}
	vid, ok := gr.ids[v]
	if !ok {
		return nil
	}
	if uid == vid {
		return []Path{{u}}
	}

	var (
		paths   []Path
		stack   = []int64{uid}
		onStack = map[int64]bool{uid: true}
		visit   func(n int64)
	)
	visit = func(n int64) {
		for _, s := range gr.succ[n] {
			if onStack[s] {
				continue
			}
			if s == vid {
				paths = append(paths, gr.namesOf(append(slices.Clone(stack), s)))
				continue
			}
			stack = append(stack, s)
			onStack[s] = true
			visit(s)
			onStack[s] = false
			stack = stack[:len(stack)-1]
		}
	}
	visit(uid)

	return paths
}

// SimpleCycles returns every elementary cycle, self-loops included. Each
// cycle starts at its earliest-declared state and is closed, [c0 ... c0].
func (gr *Graph) SimpleCycles() []Path {
	var raw [][]int64
	for _, c := range topo.DirectedCyclesIn(gr.g) {
		ids := make([]int64, 0, len(c))
		for _, n := range c {
			ids = append(ids, n.ID())
		}
		raw = append(raw, ids)
	}
	for _, l := range gr.lines {
		if l.F == l.T {
			raw = append(raw, []int64{l.F.ID()})
		}
	}

	var cycles [][]int64
	for _, c := range raw {
		if len(c) > 1 && c[0] == c[len(c)-1] {
			c = c[:len(c)-1]
		}
		if len(c) == 0 {
			continue
		}

		start := 0
		for i := range c {
			if c[i] < c[start] {
				start = i
			}
		}
		norm := append(slices.Clone(c[start:]), c[:start]...)
		norm = append(norm, norm[0])

		if !slices.ContainsFunc(cycles, func(o []int64) bool { return slices.Equal(o, norm) }) {
			cycles = append(cycles, norm)
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return slices.Compare(cycles[i], cycles[j]) < 0
	})

	out := make([]Path, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, gr.namesOf(c))
	}
	return out
}

func (gr *Graph) namesOf(ids []int64) Path {
	out := make(Path, 0, len(ids))
	for _, id := range ids {
		out = append(out, gr.names[id])
	}
	return out
}

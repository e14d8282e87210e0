package mining

import (
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Operator is the kind of a process tree node.
type Operator int

const (
	Leaf Operator = iota
	Xor
	Sequence
	Parallel
	Loop
)

func (o Operator) String() string {
	switch o {
	case Xor:
		return "X"
	case Sequence:
		return "->"
	case Parallel:
		return "+"
	case Loop:
		return "*"
	}
	return "leaf"
}

// ProcessTree is a block-structured process model. A leaf with an empty
// label is a silent step. A loop's first child is the body; any further
// children are redo alternatives.
type ProcessTree struct {
	Op       Operator
	Label    string
	Children []*ProcessTree
}

func tau() *ProcessTree { return &ProcessTree{Op: Leaf} }

func leaf(a string) *ProcessTree { return &ProcessTree{Op: Leaf, Label: a} }

// String renders the tree in the usual operator notation.
func (t *ProcessTree) String() string {
	if t.Op == Leaf {
		if t.Label == "" {
			return "tau"
		}
		return "'" + t.Label + "'"
	}
	parts := make([]string, len(t.Children))
	for i, c := range t.Children {
		parts[i] = c.String()
	}
	return t.Op.String() + "( " + strings.Join(parts, ", ") + " )"
}

// InductiveTree discovers a process tree by recursively splitting the log
// along exclusive-choice, sequence, parallel and loop cuts of its DFG. A
// sublog no cut applies to becomes a flower model.
func InductiveTree(l *Log) *ProcessTree {
	return discover(sequences(l))
}

// InductiveMiner discovers a process tree and converts it to a Petri net.
func InductiveMiner(l *Log) *PetriNet {
	return InductiveTree(l).PetriNet()
}

func discover(seqs [][]string) *ProcessTree {
	var nonEmpty [][]string
	for _, s := range seqs {
		if len(s) > 0 {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) == 0 {
		return tau()
	}
	if len(nonEmpty) < len(seqs) {
		return &ProcessTree{Op: Xor, Children: []*ProcessTree{tau(), discover(nonEmpty)}}
	}

	d := dfgOf(seqs)
	acts := d.ActivityNames()
	if len(acts) == 1 {
		for _, s := range seqs {
			if len(s) > 1 {
				return &ProcessTree{Op: Loop, Children: []*ProcessTree{leaf(acts[0]), tau()}}
			}
		}
		return leaf(acts[0])
	}

	if parts := xorCut(d, acts); len(parts) > 1 {
		return split(Xor, parts, xorSplit(seqs, parts))
	}
	if parts := sequenceCut(d, acts); len(parts) > 1 {
		return split(Sequence, parts, projectAll(seqs, parts))
	}
	if parts := parallelCut(d, acts); len(parts) > 1 {
		return split(Parallel, parts, projectAll(seqs, parts))
	}
	if parts := loopCut(d, acts); len(parts) > 1 {
		return split(Loop, parts, loopSplit(seqs, parts))
	}
	return flower(acts)
}

func split(op Operator, parts [][]string, logs [][][]string) *ProcessTree {
	t := &ProcessTree{Op: op}
	if op == Loop && len(parts) > 2 {
		redo := &ProcessTree{Op: Xor}
		for i := 1; i < len(parts); i++ {
			redo.Children = append(redo.Children, discover(logs[i]))
		}
		t.Children = []*ProcessTree{discover(logs[0]), redo}
		return t
	}
	for i := range parts {
		t.Children = append(t.Children, discover(logs[i]))
	}
	return t
}

func flower(acts []string) *ProcessTree {
	choice := &ProcessTree{Op: Xor}
	for _, a := range acts {
		choice.Children = append(choice.Children, leaf(a))
	}
	return &ProcessTree{Op: Loop, Children: []*ProcessTree{tau(), choice}}
}

// activityGraph indexes activities as gonum nodes.
type activityGraph struct {
	acts  []string
	index map[string]int64
}

func newActivityGraph(acts []string) activityGraph {
	g := activityGraph{acts: acts, index: make(map[string]int64, len(acts))}
	for i, a := range acts {
		g.index[a] = int64(i)
	}
	return g
}

func (g activityGraph) names(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = g.acts[n.ID()]
	}
	sort.Strings(out)
	return out
}

// components returns the connected components of the undirected graph whose
// edges are the pairs for which linked holds.
func (g activityGraph) components(linked func(a, b string) bool) [][]string {
	u := simple.NewUndirectedGraph()
	for i := range g.acts {
		u.AddNode(simple.Node(i))
	}
	for i, a := range g.acts {
		for j := i + 1; j < len(g.acts); j++ {
			if linked(a, g.acts[j]) {
				u.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
			}
		}
	}
	var out [][]string
	for _, c := range topo.ConnectedComponents(u) {
		out = append(out, g.names(c))
	}
	sortParts(out)
	return out
}

func sortParts(parts [][]string) {
	sort.Slice(parts, func(i, j int) bool { return parts[i][0] < parts[j][0] })
}

func xorCut(d *DFG, acts []string) [][]string {
	return newActivityGraph(acts).components(func(a, b string) bool {
		return d.Follows(a, b) || d.Follows(b, a)
	})
}

// sequenceCut groups activities that are mutually reachable or mutually
// unreachable and orders the groups by reachability.
func sequenceCut(d *DFG, acts []string) [][]string {
	g := newActivityGraph(acts)
	dg := simple.NewDirectedGraph()
	for i := range acts {
		dg.AddNode(simple.Node(i))
	}
	for arc := range d.Edges {
		if arc.From != arc.To {
			dg.SetEdge(simple.Edge{F: simple.Node(g.index[arc.From]), T: simple.Node(g.index[arc.To])})
		}
	}
	reach := make([][]bool, len(acts))
	for i := range acts {
		reach[i] = make([]bool, len(acts))
		var bfs func(graph.Node)
		seen := make(map[int64]bool)
		bfs = func(n graph.Node) {
			nodes := dg.From(n.ID())
			for nodes.Next() {
				m := nodes.Node()
				if !seen[m.ID()] {
					seen[m.ID()] = true
					reach[i][m.ID()] = true
					bfs(m)
				}
			}
		}
		bfs(simple.Node(i))
	}

	parts := g.components(func(a, b string) bool {
		i, j := g.index[a], g.index[b]
		return reach[i][j] == reach[j][i]
	})
	if len(parts) < 2 {
		return nil
	}
	before := func(p, q []string) bool {
		for _, a := range p {
			for _, b := range q {
				if reach[g.index[a]][g.index[b]] {
					return true
				}
			}
		}
		return false
	}
	// a valid cut orders every pair of parts one way only
	for i := range parts {
		for j := i + 1; j < len(parts); j++ {
			if before(parts[i], parts[j]) == before(parts[j], parts[i]) {
				return nil
			}
		}
	}
	sort.SliceStable(parts, func(i, j int) bool { return before(parts[i], parts[j]) })
	return parts
}

// parallelCut splits activities that all directly follow each other both ways.
// Parts without a start or an end activity are merged into the first valid part.
func parallelCut(d *DFG, acts []string) [][]string {
	parts := newActivityGraph(acts).components(func(a, b string) bool {
		return !(d.Follows(a, b) && d.Follows(b, a))
	})
	if len(parts) < 2 {
		return nil
	}
	var valid, invalid [][]string
	for _, p := range parts {
		if hasAny(p, d.Start) && hasAny(p, d.End) {
			valid = append(valid, p)
		} else {
			invalid = append(invalid, p)
		}
	}
	if len(valid) < 2 {
		return nil
	}
	for _, p := range invalid {
		valid[0] = union(valid[0], p)
	}
	return valid
}

// loopCut puts start and end activities in the body and every other component
// that is entered only from all end activities and left only to all start
// activities in the redo part.
func loopCut(d *DFG, acts []string) [][]string {
	body := make(map[string]bool)
	for a := range d.Start {
		body[a] = true
	}
	for a := range d.End {
		body[a] = true
	}
	var rest []string
	for _, a := range acts {
		if !body[a] {
			rest = append(rest, a)
		}
	}
	if len(rest) == 0 {
		return nil
	}
	comps := newActivityGraph(rest).components(func(a, b string) bool {
		return d.Follows(a, b) || d.Follows(b, a)
	})

	starts, ends := sortedKeys(d.Start), sortedKeys(d.End)
	var redos [][]string
	for _, c := range comps {
		ok := true
		for _, a := range c {
			fromEnd, toStart := false, false
			for _, b := range sortedKeys(body) {
				if d.Follows(b, a) {
					if d.End[b] == 0 {
						ok = false
					}
					fromEnd = true
				}
				if d.Follows(a, b) {
					if d.Start[b] == 0 {
						ok = false
					}
					toStart = true
				}
			}
			if fromEnd && !followsAll(d, ends, a, true) {
				ok = false
			}
			if toStart && !followsAll(d, starts, a, false) {
				ok = false
			}
		}
		if ok {
			redos = append(redos, c)
			continue
		}
		for _, a := range c {
			body[a] = true
		}
	}
	if len(redos) == 0 {
		return nil
	}
	return append([][]string{sortedKeys(body)}, redos...)
}

// followsAll reports whether a directly follows every activity of set
// (incoming) or every activity of set directly follows a (!incoming).
func followsAll(d *DFG, set []string, a string, incoming bool) bool {
	for _, s := range set {
		if incoming && !d.Follows(s, a) || !incoming && !d.Follows(a, s) {
			return false
		}
	}
	return true
}

func hasAny(part []string, counts map[string]int) bool {
	for _, a := range part {
		if counts[a] > 0 {
			return true
		}
	}
	return false
}

// xorSplit sends every sequence to the part of its first activity.
func xorSplit(seqs [][]string, parts [][]string) [][][]string {
	owner := make(map[string]int)
	for i, p := range parts {
		for _, a := range p {
			owner[a] = i
		}
	}
	out := make([][][]string, len(parts))
	for _, s := range seqs {
		i := owner[s[0]]
		out[i] = append(out[i], s)
	}
	return out
}

// projectAll projects every sequence onto every part. A sequence without
// activities of a part projects to an empty trace.
func projectAll(seqs [][]string, parts [][]string) [][][]string {
	out := make([][][]string, len(parts))
	for i, p := range parts {
		set := toSet(p)
		for _, s := range seqs {
			var proj []string
			for _, a := range s {
				if set[a] {
					proj = append(proj, a)
				}
			}
			out[i] = append(out[i], proj)
		}
	}
	return out
}

// loopSplit cuts every sequence into maximal runs of one part; each run becomes
// a trace of that part's sublog.
func loopSplit(seqs [][]string, parts [][]string) [][][]string {
	owner := make(map[string]int)
	for i, p := range parts {
		for _, a := range p {
			owner[a] = i
		}
	}
	out := make([][][]string, len(parts))
	for _, s := range seqs {
		var run []string
		cur := -1
		for _, a := range s {
			if o := owner[a]; o != cur {
				if run != nil {
					out[cur] = append(out[cur], run)
				}
				run, cur = nil, o
			}
			run = append(run, a)
		}
		if run != nil {
			out[cur] = append(out[cur], run)
		}
	}
	return out
}

// PetriNet converts the tree into a workflow net with silent transitions for
// routing.
func (t *ProcessTree) PetriNet() *PetriNet {
	net := NewPetriNet("inductive")
	source := net.AddPlace("source")
	sink := net.AddPlace("sink")
	t.convert(net, source, sink)
	net.Initial[source.ID] = 1
	net.Final[sink.ID] = 1
	return net
}

func (t *ProcessTree) convert(net *PetriNet, in, out *Place) {
	switch t.Op {
	case Leaf:
		var tr *Transition
		if t.Label == "" {
			tr = net.AddSilent("tau")
		} else {
			// activities occurring in several leaves get distinct transitions
			name := t.Label
			for i := 2; ; i++ {
				if _, taken := net.Transition(name); !taken {
					break
				}
				name = t.Label + "#" + strconv.Itoa(i)
			}
			tr = net.AddTransition(name, t.Label)
		}
		net.PlaceToTransition(in, tr)
		net.TransitionToPlace(tr, out)
	case Xor:
		for _, c := range t.Children {
			c.convert(net, in, out)
		}
	case Sequence:
		cur := in
		for i, c := range t.Children {
			next := out
			if i < len(t.Children)-1 {
				next = net.AddFreshPlace()
			}
			c.convert(net, cur, next)
			cur = next
		}
	case Parallel:
		fork, join := net.AddSilent("fork"), net.AddSilent("join")
		net.PlaceToTransition(in, fork)
		net.TransitionToPlace(join, out)
		for _, c := range t.Children {
			ci, co := net.AddFreshPlace(), net.AddFreshPlace()
			net.TransitionToPlace(fork, ci)
			net.PlaceToTransition(co, join)
			c.convert(net, ci, co)
		}
	case Loop:
		enter, exit := net.AddSilent("enter"), net.AddSilent("exit")
		loopIn, loopOut := net.AddFreshPlace(), net.AddFreshPlace()
		net.PlaceToTransition(in, enter)
		net.TransitionToPlace(enter, loopIn)
		net.PlaceToTransition(loopOut, exit)
		net.TransitionToPlace(exit, out)
		t.Children[0].convert(net, loopIn, loopOut)
		for _, c := range t.Children[1:] {
			c.convert(net, loopOut, loopIn)
		}
	}
}

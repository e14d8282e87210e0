package mining

import "sort"

// HeuristicsParams tunes the heuristics miner.
type HeuristicsParams struct {
	DependencyThreshold float64
	AndThreshold        float64
	LoopTwoThreshold    float64
	MinActivityCount    int
	MinDFGOccurrences   int
}

// DefaultHeuristicsParams returns the customary defaults.
func DefaultHeuristicsParams() HeuristicsParams {
	return HeuristicsParams{
		DependencyThreshold: 0.5,
		AndThreshold:        0.65,
		LoopTwoThreshold:    2,
		MinActivityCount:    1,
		MinDFGOccurrences:   1,
	}
}

// Names of the artificial start and end nodes of a heuristics net.
const (
	ArtificialStart = "▶"
	ArtificialEnd   = "■"
)

// HeuristicsNet is a dependency graph with split and join bindings. Outputs
// and Inputs list AND-groups per node; distinct groups are XOR alternatives.
type HeuristicsNet struct {
	DFG        *DFG
	Activities map[string]int
	Dependency map[Arc]float64
	Outputs    map[string][][]string
	Inputs     map[string][][]string
}

// DependencyMeasure is (|a>b|-|b>a|)/(|a>b|+|b>a|+1), or |a>a|/(|a>a|+1) for a self-loop.
func DependencyMeasure(d *DFG, a, b string) float64 {
	ab := float64(d.Edges[Arc{a, b}])
	if a == b {
		return ab / (ab + 1)
	}
	ba := float64(d.Edges[Arc{b, a}])
	return (ab - ba) / (ab + ba + 1)
}

// loopTwoCounts counts a b a patterns with a != b.
func loopTwoCounts(l *Log) map[Arc]int {
	out := make(map[Arc]int)
	for _, t := range l.Traces {
		acts := t.Activities()
		for i := 2; i < len(acts); i++ {
			if acts[i] == acts[i-2] && acts[i] != acts[i-1] {
				out[Arc{acts[i-2], acts[i-1]}]++
			}
		}
	}
	return out
}

// DiscoverHeuristicsNet mines the dependency graph of l.
func DiscoverHeuristicsNet(l *Log, p HeuristicsParams) *HeuristicsNet {
	d := DiscoverDFG(l)
	h := &HeuristicsNet{
		DFG:        d,
		Activities: make(map[string]int),
		Dependency: make(map[Arc]float64),
		Outputs:    make(map[string][][]string),
		Inputs:     make(map[string][][]string),
	}
	for a, n := range d.Activities {
		if n >= p.MinActivityCount {
			h.Activities[a] = n
		}
	}
	for arc, n := range d.Edges {
		if h.Activities[arc.From] == 0 || h.Activities[arc.To] == 0 || n < p.MinDFGOccurrences {
			continue
		}
		if m := DependencyMeasure(d, arc.From, arc.To); m >= p.DependencyThreshold {
			h.Dependency[arc] = m
		}
	}
	l2 := loopTwoCounts(l)
	for arc, n := range l2 {
		a, b := arc.From, arc.To
		if h.Activities[a] == 0 || h.Activities[b] == 0 {
			continue
		}
		if _, ok := h.Dependency[Arc{a, a}]; ok {
			continue
		}
		if _, ok := h.Dependency[Arc{b, b}]; ok {
			continue
		}
		total := float64(n + l2[Arc{b, a}])
		if m := total / (total + 1); m >= p.LoopTwoThreshold {
			h.Dependency[Arc{a, b}] = m
			h.Dependency[Arc{b, a}] = m
		}
	}

	succ := make(map[string][]string)
	pred := make(map[string][]string)
	for arc := range h.Dependency {
		succ[arc.From] = append(succ[arc.From], arc.To)
		pred[arc.To] = append(pred[arc.To], arc.From)
	}
	for a := range h.Activities {
		if d.Start[a] > 0 {
			pred[a] = append(pred[a], ArtificialStart)
			succ[ArtificialStart] = append(succ[ArtificialStart], a)
		}
		if d.End[a] > 0 {
			succ[a] = append(succ[a], ArtificialEnd)
			pred[ArtificialEnd] = append(pred[ArtificialEnd], a)
		}
	}
	for a, outs := range succ {
		h.Outputs[a] = h.bindings(a, outs, p.AndThreshold, true)
	}
	for a, ins := range pred {
		h.Inputs[a] = h.bindings(a, ins, p.AndThreshold, false)
	}
	return h
}

// bindings groups the neighbours of a into AND-groups: two neighbours share a
// group when their AND-measure reaches the threshold.
func (h *HeuristicsNet) bindings(a string, neighbours []string, threshold float64, split bool) [][]string {
	sort.Strings(neighbours)
	parent := make(map[string]string, len(neighbours))
	var find func(string) string
	find = func(x string) string {
		if parent[x] == x {
			return x
		}
		parent[x] = find(parent[x])
		return parent[x]
	}
	for _, n := range neighbours {
		parent[n] = n
	}
	artificial := func(x string) bool { return x == ArtificialStart || x == ArtificialEnd }
	// self-loops and the artificial nodes always bind alone
	alone := func(x string) bool { return artificial(x) || x == a }
	for i, b := range neighbours {
		for _, c := range neighbours[i+1:] {
			if artificial(a) || alone(b) || alone(c) {
				continue
			}
			if h.andMeasure(a, b, c, split) >= threshold {
				parent[find(c)] = find(b)
			}
		}
	}
	groups := make(map[string][]string)
	var roots []string
	for _, n := range neighbours {
		r := find(n)
		if _, ok := groups[r]; !ok {
			roots = append(roots, r)
		}
		groups[r] = append(groups[r], n)
	}
	out := make([][]string, len(roots))
	for i, r := range roots {
		out[i] = groups[r]
	}
	return out
}

func (h *HeuristicsNet) andMeasure(a, b, c string, split bool) float64 {
	e := h.DFG.Edges
	bc := float64(e[Arc{b, c}] + e[Arc{c, b}])
	if split {
		return bc / float64(e[Arc{a, b}]+e[Arc{a, c}]+1)
	}
	return bc / float64(e[Arc{b, a}]+e[Arc{c, a}]+1)
}

// PetriNet converts the heuristics net. Every dependency becomes a place; a node
// with several binding groups routes them through silent transitions around a
// shared place so that the groups are exclusive.
func (h *HeuristicsNet) PetriNet() *PetriNet {
	net := NewPetriNet("heuristics")
	node := func(a string) *Transition {
		if a == ArtificialStart || a == ArtificialEnd {
			return net.AddTransition(a, "")
		}
		return net.AddTransition(a, a)
	}
	dep := func(a, b string) *Place { return net.AddPlace(a + "->" + b) }

	source := net.AddPlace("start")
	net.PlaceToTransition(source, node(ArtificialStart))
	for _, a := range sortedKeys(h.Activities) {
		node(a)
	}
	sink := net.AddPlace("end")
	net.TransitionToPlace(node(ArtificialEnd), sink)

	for _, a := range sortedKeys(h.Outputs) {
		groups := h.Outputs[a]
		t := node(a)
		if len(groups) == 1 {
			for _, b := range groups[0] {
				net.TransitionToPlace(t, dep(a, b))
			}
			continue
		}
		out := net.AddPlace(a + " out")
		net.TransitionToPlace(t, out)
		for _, g := range groups {
			tau := net.AddSilent("split")
			net.PlaceToTransition(out, tau)
			for _, b := range g {
				net.TransitionToPlace(tau, dep(a, b))
			}
		}
	}
	for _, b := range sortedKeys(h.Inputs) {
		groups := h.Inputs[b]
		t := node(b)
		if len(groups) == 1 {
			for _, a := range groups[0] {
				net.PlaceToTransition(dep(a, b), t)
			}
			continue
		}
		in := net.AddPlace(b + " in")
		net.PlaceToTransition(in, t)
		for _, g := range groups {
			tau := net.AddSilent("join")
			for _, a := range g {
				net.PlaceToTransition(dep(a, b), tau)
			}
			net.TransitionToPlace(tau, in)
		}
	}
	if len(h.Activities) > 0 {
		net.Initial[source.ID] = 1
		net.Final[sink.ID] = 1
	}
	return net
}

// HeuristicsMiner discovers a heuristics net with default parameters and
// converts it to a Petri net.
func HeuristicsMiner(l *Log) *PetriNet {
	return DiscoverHeuristicsNet(l, DefaultHeuristicsParams()).PetriNet()
}

package mining

import (
	"sort"
	"strings"
)

// Relation is a footprint entry between two activities.
type Relation int

const (
	Unrelated Relation = iota
	Causal
	ReverseCausal
	Concurrent
)

// Footprint holds the ordering relations of a DFG.
type Footprint struct {
	dfg *DFG
}

// NewFootprint derives the footprint of d.
func NewFootprint(d *DFG) Footprint { return Footprint{dfg: d} }

// Relation returns the relation of a to b.
func (f Footprint) Relation(a, b string) Relation {
	ab, ba := f.dfg.Follows(a, b), f.dfg.Follows(b, a)
	switch {
	case ab && ba:
		return Concurrent
	case ab:
		return Causal
	case ba:
		return ReverseCausal
	}
	return Unrelated
}

// AlphaPair is a maximal pair (A, B): every a in A causes every b in B and
// the activities inside A and inside B are mutually unrelated.
type AlphaPair struct {
	From, To []string
}

func (p AlphaPair) key() string {
	return strings.Join(p.From, ",") + "|" + strings.Join(p.To, ",")
}

func (p AlphaPair) contains(o AlphaPair) bool {
	return subset(o.From, p.From) && subset(o.To, p.To)
}

// AlphaPairs returns the maximal pairs of the footprint, ordered by key.
func AlphaPairs(d *DFG) []AlphaPair {
	f := NewFootprint(d)
	acts := d.ActivityNames()

	var pairs []AlphaPair
	seen := make(map[string]bool)
	add := func(p AlphaPair) bool {
		if seen[p.key()] {
			return false
		}
		seen[p.key()] = true
		pairs = append(pairs, p)
		return true
	}
	for _, a := range acts {
		for _, b := range acts {
			if f.Relation(a, b) == Causal && f.Relation(a, a) == Unrelated && f.Relation(b, b) == Unrelated {
				add(AlphaPair{From: []string{a}, To: []string{b}})
			}
		}
	}

	// grow pairs by union until no new valid pair appears
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(pairs); i++ {
			for j := i + 1; j < len(pairs); j++ {
				u := AlphaPair{From: union(pairs[i].From, pairs[j].From), To: union(pairs[i].To, pairs[j].To)}
				if f.valid(u) && add(u) {
					changed = true
				}
			}
		}
	}

	var maximal []AlphaPair
	for i, p := range pairs {
		dominated := false
		for j, o := range pairs {
			if i != j && o.contains(p) {
				dominated = true
				break
			}
		}
		if !dominated {
			maximal = append(maximal, p)
		}
	}
	sort.Slice(maximal, func(i, j int) bool { return maximal[i].key() < maximal[j].key() })
	return maximal
}

func (f Footprint) valid(p AlphaPair) bool {
	for _, a := range p.From {
		for _, b := range p.To {
			if f.Relation(a, b) != Causal {
				return false
			}
		}
	}
	return f.unrelated(p.From) && f.unrelated(p.To)
}

func (f Footprint) unrelated(set []string) bool {
	for _, a := range set {
		for _, b := range set {
			if f.Relation(a, b) != Unrelated {
				return false
			}
		}
	}
	return true
}

// AlphaMiner builds a Petri net with one place per maximal pair, a source place
// before the start activities and a sink place after the end activities.
func AlphaMiner(l *Log) *PetriNet {
	d := DiscoverDFG(l)
	net := NewPetriNet("alpha")
	for _, a := range d.ActivityNames() {
		net.AddTransition(a, a)
	}
	source := net.AddPlace("start")
	for _, a := range sortedKeys(d.Start) {
		t, _ := net.Transition(a)
		net.PlaceToTransition(source, t)
	}
	for _, p := range AlphaPairs(d) {
		place := net.AddPlace("({" + strings.Join(p.From, ",") + "},{" + strings.Join(p.To, ",") + "})")
		for _, a := range p.From {
			t, _ := net.Transition(a)
			net.TransitionToPlace(t, place)
		}
		for _, b := range p.To {
			t, _ := net.Transition(b)
			net.PlaceToTransition(place, t)
		}
	}
	sink := net.AddPlace("end")
	for _, a := range sortedKeys(d.End) {
		t, _ := net.Transition(a)
		net.TransitionToPlace(t, sink)
	}
	if len(d.Activities) > 0 {
		net.Initial[source.ID] = 1
		net.Final[sink.ID] = 1
	}
	return net
}

func union(a, b []string) []string {
	set := toSet(a)
	for _, v := range b {
		set[v] = true
	}
	return sortedKeys(set)
}

func subset(a, b []string) bool {
	set := toSet(b)
	for _, v := range a {
		if !set[v] {
			return false
		}
	}
	return true
}

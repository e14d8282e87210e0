package mining

import "fmt"

// Place holds tokens.
type Place struct {
	ID   string
	Name string
}

// Transition is labeled with an activity, or silent when Label is empty.
type Transition struct {
	ID    string
	Name  string
	Label string
}

// Silent reports whether the transition has no activity.
func (t *Transition) Silent() bool { return t.Label == "" }

// PetriArc connects a place and a transition by node id.
type PetriArc struct {
	Source, Target string
}

// Marking maps place ids to token counts.
type Marking map[string]int

// PetriNet is a labeled place/transition net with its initial and final markings.
type PetriNet struct {
	Name        string
	Places      []*Place
	Transitions []*Transition
	Arcs        []PetriArc
	Initial     Marking
	Final       Marking

	places      map[string]*Place
	transitions map[string]*Transition
	arcs        map[PetriArc]bool
	silent      int
}

// NewPetriNet returns an empty net.
func NewPetriNet(name string) *PetriNet {
	return &PetriNet{
		Name:        name,
		Initial:     make(Marking),
		Final:       make(Marking),
		places:      make(map[string]*Place),
		transitions: make(map[string]*Transition),
		arcs:        make(map[PetriArc]bool),
	}
}

// AddPlace returns the place called name, creating it when absent.
func (n *PetriNet) AddPlace(name string) *Place {
	if p, ok := n.places[name]; ok {
		return p
	}
	p := &Place{ID: fmt.Sprintf("p%d", len(n.Places)), Name: name}
	n.places[name] = p
	n.Places = append(n.Places, p)
	return p
}

// AddTransition returns the transition called name, creating it when absent.
func (n *PetriNet) AddTransition(name, label string) *Transition {
	if t, ok := n.transitions[name]; ok {
		return t
	}
	t := &Transition{ID: fmt.Sprintf("t%d", len(n.Transitions)), Name: name, Label: label}
	n.transitions[name] = t
	n.Transitions = append(n.Transitions, t)
	return t
}

// AddFreshPlace adds an unnamed place.
func (n *PetriNet) AddFreshPlace() *Place {
	return n.AddPlace(fmt.Sprintf("n%d", len(n.Places)))
}

// AddSilent adds a fresh silent transition.
func (n *PetriNet) AddSilent(prefix string) *Transition {
	n.silent++
	return n.AddTransition(fmt.Sprintf("%s_%d", prefix, n.silent), "")
}

// Connect adds an arc between two nodes; duplicates are ignored.
func (n *PetriNet) Connect(source, target string) {
	a := PetriArc{Source: source, Target: target}
	if n.arcs[a] {
		return
	}
	n.arcs[a] = true
	n.Arcs = append(n.Arcs, a)
}

// PlaceToTransition adds an arc p -> t.
func (n *PetriNet) PlaceToTransition(p *Place, t *Transition) { n.Connect(p.ID, t.ID) }

// TransitionToPlace adds an arc t -> p.
func (n *PetriNet) TransitionToPlace(t *Transition, p *Place) { n.Connect(t.ID, p.ID) }

// Transition looks up a transition by name.
func (n *PetriNet) Transition(name string) (*Transition, bool) {
	t, ok := n.transitions[name]
	return t, ok
}

// Place looks up a place by name.
func (n *PetriNet) Place(name string) (*Place, bool) {
	p, ok := n.places[name]
	return p, ok
}

// Preset returns the ids of the nodes with an arc into id.
func (n *PetriNet) Preset(id string) []string {
	var out []string
	for _, a := range n.Arcs {
		if a.Target == id {
			out = append(out, a.Source)
		}
	}
	return out
}

// Postset returns the ids of the nodes id has an arc into.
func (n *PetriNet) Postset(id string) []string {
	var out []string
	for _, a := range n.Arcs {
		if a.Source == id {
			out = append(out, a.Target)
		}
	}
	return out
}

// Enabled reports whether t can fire in m.
func (n *PetriNet) Enabled(m Marking, t *Transition) bool {
	for _, p := range n.Preset(t.ID) {
		if m[p] == 0 {
			return false
		}
	}
	return true
}

// Fire returns the marking after firing t in m.
func (n *PetriNet) Fire(m Marking, t *Transition) Marking {
	out := make(Marking, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, p := range n.Preset(t.ID) {
		out[p]--
		if out[p] == 0 {
			delete(out, p)
		}
	}
	for _, p := range n.Postset(t.ID) {
		out[p]++
	}
	return out
}

// maxReplayStates bounds the search in Replays.
const maxReplayStates = 100000

// Replays reports whether the net can execute the activity sequence from its
// initial marking to exactly its final marking, firing silent transitions freely.
func (n *PetriNet) Replays(seq []string) bool {
	type state struct {
		key string
		pos int
	}
	type item struct {
		m   Marking
		pos int
	}
	queue := []item{{m: n.Initial, pos: 0}}
	seen := map[state]bool{{n.Initial.key(), 0}: true}
	for len(queue) > 0 && len(seen) < maxReplayStates {
		cur := queue[0]
		queue = queue[1:]
		if cur.pos == len(seq) && cur.m.equal(n.Final) {
			return true
		}
		for _, t := range n.Transitions {
			if !n.Enabled(cur.m, t) {
				continue
			}
			next := cur.pos
			if !t.Silent() {
				if cur.pos == len(seq) || t.Label != seq[cur.pos] {
					continue
				}
				next++
			}
			m := n.Fire(cur.m, t)
			s := state{m.key(), next}
			if !seen[s] {
				seen[s] = true
				queue = append(queue, item{m: m, pos: next})
			}
		}
	}
	return false
}

func (m Marking) key() string {
	keys := sortedKeys(m)
	out := ""
	for _, k := range keys {
		if m[k] > 0 {
			out += fmt.Sprintf("%s:%d;", k, m[k])
		}
	}
	return out
}

func (m Marking) equal(o Marking) bool {
	return m.key() == o.key()
}

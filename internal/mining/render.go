package mining

import (
	"fmt"
	"strconv"

	"github.com/emicklei/dot"
)

func frequencyLabel(activity string, count int) string {
	return fmt.Sprintf("%s (%d)", activity, count)
}

// RenderDFG draws the graph with activity and directly-follows frequencies.
func RenderDFG(d *DFG) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "LR")
	nodes := make(map[string]dot.Node)
	for i, a := range d.ActivityNames() {
		nodes[a] = g.Node("a"+strconv.Itoa(i)).
			Label(frequencyLabel(a, d.Activities[a])).
			Box().
			Attr("style", "filled").
			Attr("fillcolor", "#ffffff")
	}
	for _, arc := range d.SortedEdges() {
		g.Edge(nodes[arc.From], nodes[arc.To], strconv.Itoa(d.Edges[arc]))
	}
	if len(d.Start) > 0 {
		start := g.Node("start").Label("").Attr("shape", "circle").Attr("style", "filled").Attr("fillcolor", "#32CD32")
		for _, a := range sortedKeys(d.Start) {
			g.Edge(start, nodes[a], strconv.Itoa(d.Start[a]))
		}
	}
	if len(d.End) > 0 {
		end := g.Node("end").Label("").Attr("shape", "circle").Attr("style", "filled").Attr("fillcolor", "#FFA500")
		for _, a := range sortedKeys(d.End) {
			g.Edge(nodes[a], end, strconv.Itoa(d.End[a]))
		}
	}
	return g
}

// RenderPetriNet draws the net. Transitions carry the frequency of their
// activity in counts; silent transitions are small black boxes.
func RenderPetriNet(net *PetriNet, counts map[string]int) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "LR")
	nodes := make(map[string]dot.Node)
	for _, p := range net.Places {
		n := g.Node(p.ID).Label("").Attr("shape", "circle").Attr("fixedsize", "true").Attr("width", "0.4")
		switch {
		case net.Initial[p.ID] > 0:
			n.Label("●").Attr("fontsize", "20")
		case net.Final[p.ID] > 0:
			n.Label("■").Attr("fontsize", "16")
		}
		nodes[p.ID] = n
	}
	for _, t := range net.Transitions {
		n := g.Node(t.ID).Box()
		if t.Silent() {
			n.Label("").Attr("style", "filled").Attr("fillcolor", "#000000").Attr("width", "0.2").Attr("height", "0.4")
		} else {
			n.Label(frequencyLabel(t.Label, counts[t.Label]))
		}
		nodes[t.ID] = n
	}
	for _, a := range net.Arcs {
		g.Edge(nodes[a.Source], nodes[a.Target])
	}
	return g
}

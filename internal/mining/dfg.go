package mining

import "sort"

// Arc is a directly-follows pair.
type Arc struct {
	From, To string
}

// DFG is the directly-follows graph of a log with its frequencies.
type DFG struct {
	Edges      map[Arc]int
	Start      map[string]int
	End        map[string]int
	Activities map[string]int
}

// DiscoverDFG counts directly-follows relations, start, end and activity occurrences.
func DiscoverDFG(l *Log) *DFG {
	return dfgOf(sequences(l))
}

// ActivityNames returns the activities in lexical order.
func (d *DFG) ActivityNames() []string {
	return sortedKeys(d.Activities)
}

// SortedEdges returns the arcs ordered by source then target.
func (d *DFG) SortedEdges() []Arc {
	out := make([]Arc, 0, len(d.Edges))
	for a := range d.Edges {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Follows reports whether b directly follows a at least once.
func (d *DFG) Follows(a, b string) bool {
	return d.Edges[Arc{a, b}] > 0
}

func sequences(l *Log) [][]string {
	out := make([][]string, len(l.Traces))
	for i, t := range l.Traces {
		out[i] = t.Activities()
	}
	return out
}

func dfgOf(seqs [][]string) *DFG {
	d := &DFG{
		Edges:      make(map[Arc]int),
		Start:      make(map[string]int),
		End:        make(map[string]int),
		Activities: make(map[string]int),
	}
	for _, s := range seqs {
		if len(s) == 0 {
			continue
		}
		d.Start[s[0]]++
		d.End[s[len(s)-1]]++
		for i, a := range s {
			d.Activities[a]++
			if i > 0 {
				d.Edges[Arc{s[i-1], a}]++
			}
		}
	}
	return d
}

package mining

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/xes"
)

var t0 = time.Date(2017, 10, 31, 12, 0, 0, 0, time.UTC)

// logOf builds a log from "a b c" style traces, each repeated n times.
func logOf(traces map[string]int) *Log {
	l := &Log{}
	id := 0
	for _, k := range sortedKeys(traces) {
		for i := 0; i < traces[k]; i++ {
			id++
			t := Trace{CaseID: strconv.Itoa(id)}
			for j, a := range strings.Fields(k) {
				t.Events = append(t.Events, Event{Activity: a, Timestamp: t0.Add(time.Duration(j) * time.Minute)})
			}
			l.Traces = append(l.Traces, t)
		}
	}
	return l
}

func support() *Log {
	ev := func(a, r string) Event { return Event{Activity: a, Resource: r, Timestamp: t0} }
	return &Log{Traces: []Trace{
		{CaseID: "1", Events: []Event{ev("Delivery", "115712"), ev("Apologize", "AmazonHelp")}},
		{CaseID: "2", Events: []Event{ev("Apologize", "AmazonHelp"), ev("Thank", "AmazonHelp")}},
		{CaseID: "3", Events: []Event{ev("Refund", "115713"), ev("Apologize", "AmazonHelp")}},
	}}
}

func TestFilterEventsByAttribute(t *testing.T) {
	l := support()
	customer := FilterEventsByAttribute(l, xes.KeyResource, []string{"AmazonHelp"}, false)
	require.Equal(t, 2, customer.Len(), "traces of company events only are dropped")
	assert.Equal(t, []string{"Delivery"}, customer.Traces[0].Activities())

	company := FilterEventsByAttribute(l, xes.KeyResource, []string{"AmazonHelp"}, true)
	assert.Equal(t, 3, company.Len())
	assert.Equal(t, 4, company.Events())
}

func TestFilterClassifiedStartActivities(t *testing.T) {
	got := FilterClassifiedStartActivities(support(), "AmazonHelp")
	require.Equal(t, 2, got.Len())
	assert.Equal(t, "1", got.Traces[0].CaseID)
	assert.Equal(t, "3", got.Traces[1].CaseID)
	assert.Equal(t, map[string]int{"Delivery": 1, "Refund": 1}, StartActivities(got))
	assert.Equal(t, map[string]int{"Apologize": 2}, EndActivities(got))
}

func TestVariantsAndAutoFilter(t *testing.T) {
	l := logOf(map[string]int{"a b": 10, "a c": 8, "a d": 5, "a e": 4})
	variants := Variants(l)
	require.Len(t, variants, 4)
	assert.Equal(t, "a,b", variants[0].Key())
	assert.Equal(t, 10, variants[0].Count)

	filtered := AutoFilterVariants(l, 0.7)
	assert.Equal(t, 18, filtered.Len(), "5 < 0.7*8 stops the scan")
	assert.Len(t, Variants(filtered), 2)

	assert.Equal(t, 27, AutoFilterVariants(l, 0.5).Len())
	assert.Equal(t, 0, AutoFilterVariants(&Log{}, 0.7).Len())
}

func TestVariantsTieOrder(t *testing.T) {
	variants := Variants(logOf(map[string]int{"b": 2, "a": 2, "c": 3}))
	keys := []string{variants[0].Key(), variants[1].Key(), variants[2].Key()}
	assert.Equal(t, []string{"c", "a", "b"}, keys)
}

func TestDFG(t *testing.T) {
	d := DiscoverDFG(logOf(map[string]int{"a b c": 2, "a c": 1}))
	assert.Equal(t, 2, d.Edges[Arc{"a", "b"}])
	assert.Equal(t, 3, d.Edges[Arc{"b", "c"}]+d.Edges[Arc{"a", "c"}])
	assert.Equal(t, map[string]int{"a": 3}, d.Start)
	assert.Equal(t, map[string]int{"c": 3}, d.End)
	assert.Equal(t, []string{"a", "b", "c"}, d.ActivityNames())
	assert.Equal(t, []Arc{{"a", "b"}, {"a", "c"}, {"b", "c"}}, d.SortedEdges())
}

var textbook = map[string]int{"a b c d": 3, "a c b d": 2, "a e d": 1}

func TestAlphaPairs(t *testing.T) {
	pairs := AlphaPairs(DiscoverDFG(logOf(textbook)))
	want := []AlphaPair{
		{From: []string{"a"}, To: []string{"b", "e"}},
		{From: []string{"a"}, To: []string{"c", "e"}},
		{From: []string{"b", "e"}, To: []string{"d"}},
		{From: []string{"c", "e"}, To: []string{"d"}},
	}
	assert.Equal(t, want, pairs)
}

func TestFootprint(t *testing.T) {
	f := NewFootprint(DiscoverDFG(logOf(textbook)))
	assert.Equal(t, Causal, f.Relation("a", "b"))
	assert.Equal(t, ReverseCausal, f.Relation("d", "b"))
	assert.Equal(t, Concurrent, f.Relation("b", "c"))
	assert.Equal(t, Concurrent, f.Relation("c", "b"))
	assert.Equal(t, Unrelated, f.Relation("b", "e"))
	assert.Equal(t, Unrelated, f.Relation("a", "a"))
}

func TestInductiveReplaysItsLog(t *testing.T) {
	for _, traces := range []map[string]int{
		textbook,
		{"a b a": 2, "a": 1},
		{"a b b c": 2, "a c": 1},
		{"a b c": 1, "a c b": 1, "b a c": 1},
		{"x y": 3, "y x": 2, "z": 1},
	} {
		l := logOf(traces)
		net := InductiveMiner(l)
		for _, tr := range l.Traces {
			assert.True(t, net.Replays(tr.Activities()), strings.Join(tr.Activities(), " "))
		}
	}
}

func TestAlphaMiner(t *testing.T) {
	net := AlphaMiner(logOf(textbook))
	assert.Len(t, net.Places, 6)
	assert.Len(t, net.Transitions, 5)
	for _, trace := range []string{"a b c d", "a c b d", "a e d"} {
		assert.True(t, net.Replays(strings.Fields(trace)), trace)
	}
	assert.False(t, net.Replays(strings.Fields("a b d")))
	assert.False(t, net.Replays(strings.Fields("a e")))
}

func TestAlphaIgnoresSelfLoops(t *testing.T) {
	pairs := AlphaPairs(DiscoverDFG(logOf(map[string]int{"a b b c": 1})))
	for _, p := range pairs {
		assert.NotContains(t, p.From, "b")
		assert.NotContains(t, p.To, "b")
	}
}

func TestDependencyMeasure(t *testing.T) {
	d := DiscoverDFG(logOf(map[string]int{"a b": 5, "b a": 1, "c c": 3}))
	assert.InDelta(t, 4.0/7.0, DependencyMeasure(d, "a", "b"), 1e-9)
	assert.InDelta(t, -4.0/7.0, DependencyMeasure(d, "b", "a"), 1e-9)
	assert.InDelta(t, 3.0/4.0, DependencyMeasure(d, "c", "c"), 1e-9)
}

func TestHeuristicsXor(t *testing.T) {
	l := logOf(map[string]int{"a b d": 3, "a c d": 3})
	h := DiscoverHeuristicsNet(l, DefaultHeuristicsParams())
	assert.InDelta(t, 0.75, h.Dependency[Arc{"a", "b"}], 1e-9)
	assert.Equal(t, [][]string{{"b"}, {"c"}}, h.Outputs["a"])
	assert.Equal(t, [][]string{{"b"}, {"c"}}, h.Inputs["d"])

	net := h.PetriNet()
	assert.True(t, net.Replays(strings.Fields("a b d")))
	assert.True(t, net.Replays(strings.Fields("a c d")))
	assert.False(t, net.Replays(strings.Fields("a b c d")))
}

func TestHeuristicsAnd(t *testing.T) {
	l := logOf(map[string]int{"a b c d": 5, "a c b d": 5})
	h := DiscoverHeuristicsNet(l, DefaultHeuristicsParams())
	_, ok := h.Dependency[Arc{"b", "c"}]
	assert.False(t, ok, "parallel activities have no dependency")
	assert.Equal(t, [][]string{{"b", "c"}}, h.Outputs["a"])
	assert.Equal(t, [][]string{{"b", "c"}}, h.Inputs["d"])
	assert.Equal(t, [][]string{{"a"}}, h.Outputs[ArtificialStart])

	net := HeuristicsMiner(l)
	assert.True(t, net.Replays(strings.Fields("a b c d")))
	assert.True(t, net.Replays(strings.Fields("a c b d")))
	assert.False(t, net.Replays(strings.Fields("a b d")))
}

func TestHeuristicsDropsWeakDependencies(t *testing.T) {
	l := logOf(map[string]int{"a b": 1, "b a": 1})
	h := DiscoverHeuristicsNet(l, DefaultHeuristicsParams())
	assert.Empty(t, h.Dependency)
}

func TestHeuristicsLoopTwo(t *testing.T) {
	l := logOf(map[string]int{"a b a b a": 4})
	p := DefaultHeuristicsParams()
	h := DiscoverHeuristicsNet(l, p)
	_, ok := h.Dependency[Arc{"b", "a"}]
	assert.False(t, ok, "default threshold never admits length-two loops")

	p.LoopTwoThreshold = 0.9
	h = DiscoverHeuristicsNet(l, p)
	_, ok = h.Dependency[Arc{"b", "a"}]
	assert.True(t, ok)
}

func TestInductiveTree(t *testing.T) {
	tree := InductiveTree(logOf(textbook))
	assert.Equal(t, "->( 'a', X( +( 'b', 'c' ), 'e' ), 'd' )", tree.String())

	net := tree.PetriNet()
	for _, trace := range []string{"a b c d", "a c b d", "a e d"} {
		assert.True(t, net.Replays(strings.Fields(trace)), trace)
	}
	assert.False(t, net.Replays(strings.Fields("a b e d")))
}

func TestInductiveLoop(t *testing.T) {
	tree := InductiveTree(logOf(map[string]int{"a b a": 2, "a": 1}))
	assert.Equal(t, "*( 'a', 'b' )", tree.String())

	net := InductiveMiner(logOf(map[string]int{"a b a": 2, "a": 1}))
	assert.True(t, net.Replays([]string{"a"}))
	assert.True(t, net.Replays(strings.Fields("a b a b a")))
	assert.False(t, net.Replays(strings.Fields("a b")))
}

func TestInductiveBaseCases(t *testing.T) {
	assert.Equal(t, "tau", InductiveTree(&Log{}).String())
	assert.Equal(t, "'a'", InductiveTree(logOf(map[string]int{"a": 2})).String())
	assert.Equal(t, "*( 'a', tau )", InductiveTree(logOf(map[string]int{"a a": 1})).String())

	l := logOf(map[string]int{"a": 1})
	l.Traces = append(l.Traces, Trace{CaseID: "empty"})
	assert.Equal(t, "X( tau, 'a' )", InductiveTree(l).String())
}

func TestFlowerReplaysAnything(t *testing.T) {
	net := flower([]string{"a", "b"}).PetriNet()
	assert.True(t, net.Replays(nil))
	assert.True(t, net.Replays(strings.Fields("b a a b")))
	assert.False(t, net.Replays([]string{"c"}))
}

func TestRender(t *testing.T) {
	l := logOf(map[string]int{"a b": 2})
	d := DiscoverDFG(l)
	dfg := RenderDFG(d).String()
	assert.Contains(t, dfg, `"a (2)"`)
	assert.Contains(t, dfg, "#32CD32")

	petri := RenderPetriNet(AlphaMiner(l), d.Activities).String()
	assert.Contains(t, petri, `"b (2)"`)
	assert.Contains(t, petri, "circle")
}

func TestXESRoundTrip(t *testing.T) {
	l := support()
	l.Traces[0].Events[0].Attributes = map[string]string{"text": "where is my parcel"}
	back, err := FromXES(l.ToXES())
	require.NoError(t, err)
	require.Equal(t, 3, back.Len())
	e := back.Traces[0].Events[0]
	assert.Equal(t, "Delivery", e.Activity)
	assert.Equal(t, "115712", e.Resource)
	assert.Equal(t, "where is my parcel", e.Attributes["text"])
	assert.True(t, e.Timestamp.Equal(t0))
}

func TestRunStage(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "xes")
	out := filepath.Join(dir, "process-discovery")

	l := support()
	for i := 0; i < 3; i++ {
		extra := support().Traces[0]
		extra.CaseID = "1" + strconv.Itoa(i)
		l.Traces = append(l.Traces, extra)
	}
	require.NoError(t, xes.WriteFile(filepath.Join(in, "twcs-AmazonHelp-6.xes"), l.ToXES()))
	require.NoError(t, xes.WriteFile(filepath.Join(in, "notes.xes"), l.ToXES()))
	require.NoError(t, os.WriteFile(filepath.Join(in, "readme.txt"), []byte("x"), 0o644))

	written, err := RunStage(StageOptions{XESDir: in, OutDir: out, DecreasingFactor: 0.7},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.Len(t, written, 6)
	for _, name := range []string{
		"AmazonHelp-variants.csv",
		"AmazonHelp-filtered.xes",
		"AmazonHelp-alpha_miner.dot",
		"AmazonHelp-heuristics_miner.dot",
		"AmazonHelp-inductive_miner.dot",
		"AmazonHelp-directly_follows_graph.dot",
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	csv, err := os.ReadFile(filepath.Join(out, "AmazonHelp-variants.csv"))
	require.NoError(t, err)
	assert.Equal(t, "variant,count\n\"Delivery,Apologize\",4\n", string(csv), "Refund (1) falls below 0.7*4")

	filtered, err := ReadXES(filepath.Join(out, "AmazonHelp-filtered.xes"))
	require.NoError(t, err)
	assert.Equal(t, 4, filtered.Len())
}

func TestRunStageMissingDir(t *testing.T) {
	_, err := RunStage(StageOptions{XESDir: filepath.Join(t.TempDir(), "none")}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

// Package mining discovers process models from customer-support event logs.
package mining

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/xes"
)

// Event is one activity occurrence.
type Event struct {
	Activity   string
	Timestamp  time.Time
	Resource   string
	Attributes map[string]string
}

// Trace is the ordered events of one case.
type Trace struct {
	CaseID string
	Events []Event
}

// Activities returns the trace's activity sequence.
func (t Trace) Activities() []string {
	out := make([]string, len(t.Events))
	for i, e := range t.Events {
		out[i] = e.Activity
	}
	return out
}

// Log is a list of traces.
type Log struct {
	Traces []Trace
}

// Len returns the number of traces.
func (l *Log) Len() int { return len(l.Traces) }

// Events returns the total number of events.
func (l *Log) Events() int {
	n := 0
	for _, t := range l.Traces {
		n += len(t.Events)
	}
	return n
}

// FromXES converts a decoded XES document. Events without concept:name are dropped.
func FromXES(x *xes.Log) (*Log, error) {
	l := &Log{Traces: make([]Trace, 0, len(x.Traces))}
	for i, xt := range x.Traces {
		caseID, _ := xt.Attributes.Get(xes.KeyConcept)
		t := Trace{CaseID: caseID}
		for _, xe := range xt.Events {
			activity, ok := xe.Attributes.Get(xes.KeyConcept)
			if !ok {
				continue
			}
			e := Event{Activity: activity, Attributes: make(map[string]string)}
			for _, a := range xe.Attributes {
				switch a.Key {
				case xes.KeyConcept:
				case xes.KeyResource:
					e.Resource = a.Value
				case xes.KeyTimestamp:
					ts, err := a.Time()
					if err != nil {
						return nil, fmt.Errorf("trace %d (%s): %w", i, caseID, err)
					}
					e.Timestamp = ts
				default:
					e.Attributes[a.Key] = a.Value
				}
			}
			t.Events = append(t.Events, e)
		}
		l.Traces = append(l.Traces, t)
	}
	return l, nil
}

// ReadXES imports the XES file at path.
func ReadXES(path string) (*Log, error) {
	x, err := xes.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromXES(x)
}

// ToXES exports the log. Extra attributes are written as strings in key order.
func (l *Log) ToXES() *xes.Log {
	x := xes.NewLog()
	for _, t := range l.Traces {
		xt := xes.Trace{Attributes: xes.Attributes{xes.String(xes.KeyConcept, t.CaseID)}}
		for _, e := range t.Events {
			keys := make([]string, 0, len(e.Attributes))
			for k := range e.Attributes {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var attrs xes.Attributes
			for _, k := range keys {
				attrs = append(attrs, xes.String(k, e.Attributes[k]))
			}
			if !e.Timestamp.IsZero() {
				attrs = append(attrs, xes.Date(xes.KeyTimestamp, e.Timestamp))
			}
			if e.Resource != "" {
				attrs = append(attrs, xes.String(xes.KeyResource, e.Resource))
			}
			attrs = append(attrs, xes.String(xes.KeyConcept, e.Activity))
			xt.Events = append(xt.Events, xes.Event{Attributes: attrs})
		}
		x.Traces = append(x.Traces, xt)
	}
	return x
}

func (e Event) attribute(key string) string {
	switch key {
	case xes.KeyConcept:
		return e.Activity
	case xes.KeyResource:
		return e.Resource
	}
	return e.Attributes[key]
}

// FilterEventsByAttribute keeps (positive) or removes (!positive) the events whose
// attribute key has one of values. Traces left without events are dropped.
func FilterEventsByAttribute(l *Log, key string, values []string, positive bool) *Log {
	set := toSet(values)
	out := &Log{}
	for _, t := range l.Traces {
		nt := Trace{CaseID: t.CaseID}
		for _, e := range t.Events {
			if set[e.attribute(key)] == positive {
				nt.Events = append(nt.Events, e)
			}
		}
		if len(nt.Events) > 0 {
			out.Traces = append(out.Traces, nt)
		}
	}
	return out
}

// StartActivities counts the first activity of every non-empty trace.
func StartActivities(l *Log) map[string]int {
	out := make(map[string]int)
	for _, t := range l.Traces {
		if len(t.Events) > 0 {
			out[t.Events[0].Activity]++
		}
	}
	return out
}

// EndActivities counts the last activity of every non-empty trace.
func EndActivities(l *Log) map[string]int {
	out := make(map[string]int)
	for _, t := range l.Traces {
		if n := len(t.Events); n > 0 {
			out[t.Events[n-1].Activity]++
		}
	}
	return out
}

// FilterStartActivities keeps traces whose first activity is in allowed.
func FilterStartActivities(l *Log, allowed map[string]bool) *Log {
	out := &Log{}
	for _, t := range l.Traces {
		if len(t.Events) > 0 && allowed[t.Events[0].Activity] {
			out.Traces = append(out.Traces, t)
		}
	}
	return out
}

// FilterClassifiedStartActivities keeps the traces that open with a customer
// topic: the start activities of the log without the company's own events.
func FilterClassifiedStartActivities(l *Log, company string) *Log {
	customer := FilterEventsByAttribute(l, xes.KeyResource, []string{company}, false)
	topics := make(map[string]bool)
	for a := range StartActivities(customer) {
		topics[a] = true
	}
	return FilterStartActivities(l, topics)
}

// Variant is a distinct activity sequence and the number of traces following it.
type Variant struct {
	Activities []string
	Count      int
}

// Key joins the activities with commas.
func (v Variant) Key() string { return strings.Join(v.Activities, ",") }

// Variants returns the log's variants by descending count, then by key.
func Variants(l *Log) []Variant {
	index := make(map[string]int)
	var out []Variant
	for _, t := range l.Traces {
		acts := t.Activities()
		key := strings.Join(acts, ",")
		if i, ok := index[key]; ok {
			out[i].Count++
			continue
		}
		index[key] = len(out)
		out = append(out, Variant{Activities: acts, Count: 1})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

// AutoFilterVariants keeps the most frequent variant and then every following
// variant whose count is at least factor times the previous kept count.
func AutoFilterVariants(l *Log, factor float64) *Log {
	variants := Variants(l)
	admitted := make(map[string]bool)
	for i, v := range variants {
		if i > 0 && float64(v.Count) < factor*float64(variants[i-1].Count) {
			break
		}
		admitted[v.Key()] = true
	}
	out := &Log{}
	for _, t := range l.Traces {
		if admitted[strings.Join(t.Activities(), ",")] {
			out.Traces = append(out.Traces, t)
		}
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

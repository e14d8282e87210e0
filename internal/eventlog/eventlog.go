// Package eventlog labels conversations with topics and activities and turns
// them into XES event logs.
package eventlog

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/nli"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/tweets"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/xes"
)

// Mapping ties an NLI label to the topic or activity it stands for.
type Mapping struct {
	Name      string
	Label     string
	Threshold float64
}

// LoadMappings reads a mapping sheet with columns nameColumn ("Topic" or
// "Activity"), Label and Optimal Threshold. Rows without a label are ignored.
func LoadMappings(t *sheet.Table, nameColumn string) ([]Mapping, error) {
	names, err := t.Column(nameColumn)
	if err != nil {
		return nil, err
	}
	labels, err := t.Column("Label")
	if err != nil {
		return nil, err
	}
	thresholds, err := t.Floats("Optimal Threshold")
	if err != nil {
		return nil, err
	}
	var out []Mapping
	for i := range names {
		if strings.TrimSpace(labels[i]) == "" {
			continue
		}
		out = append(out, Mapping{Name: names[i], Label: labels[i], Threshold: thresholds[i]})
	}
	return out, nil
}

// Labeler assigns activities to company replies and topics to the tweets that
// open a conversation.
type Labeler struct {
	Classifier nli.Classifier
	Activities []Mapping
	Topics     []Mapping
	Template   string
}

// Labels returns the topics or activities that apply to tw, in mapping order.
func (l *Labeler) Labels(ctx context.Context, tw tweets.Tweet) ([]string, error) {
	var mappings []Mapping
	switch {
	case tw.AuthorID == tw.Company:
		mappings = l.Activities
	case tw.IsConversationRoot():
		mappings = l.Topics
	default:
		return nil, nil
	}
	if len(mappings) == 0 {
		return nil, nil
	}

	// a label shared by several rows resolves to the first one
	byLabel := make(map[string]Mapping)
	var labels []string
	for _, m := range mappings {
		if _, ok := byLabel[m.Label]; !ok {
			byLabel[m.Label] = m
			labels = append(labels, m.Label)
		}
	}
	probs, err := l.Classifier.Classify(ctx, tw.Text, labels, l.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to classify tweet %d: %w", tw.TweetID, err)
	}
	var out []string
	for _, label := range labels {
		if m := byLabel[label]; probs[label] > m.Threshold {
			out = append(out, m.Name)
		}
	}
	return out, nil
}

// Event is one labeled tweet occurrence.
type Event struct {
	CaseID    int64
	TweetID   int64
	Timestamp time.Time
	Resource  string
	Activity  string
	Text      string
	Company   string
}

// CleanText prepares tweet text for XES attributes.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, `"`, `'`)
	return strings.ReplaceAll(s, "& amp;", "&")
}

// Build labels every tweet and explodes the result to one event per label.
// Tweets without labels produce no events. Events are ordered by case and then
// by timestamp, keeping input order for equal timestamps.
func Build(ctx context.Context, conversation []tweets.Tweet, labeler *Labeler) ([]Event, error) {
	var events []Event
	for _, tw := range conversation {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		labels, err := labeler.Labels(ctx, tw)
		if err != nil {
			return nil, err
		}
		for _, label := range labels {
			events = append(events, Event{
				CaseID:    tw.MainTweetID,
				TweetID:   tw.TweetID,
				Timestamp: tw.CreatedAt,
				Resource:  tw.AuthorID,
				Activity:  label,
				Text:      CleanText(tw.Text),
				Company:   tw.Company,
			})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CaseID != events[j].CaseID {
			return events[i].CaseID < events[j].CaseID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// ToXES groups events into one trace per case. Events must be sorted as Build
// returns them.
func ToXES(events []Event) *xes.Log {
	l := xes.NewLog()
	for i, e := range events {
		if i == 0 || e.CaseID != events[i-1].CaseID {
			l.Traces = append(l.Traces, xes.Trace{
				Attributes: xes.Attributes{xes.String(xes.KeyConcept, strconv.FormatInt(e.CaseID, 10))},
			})
		}
		trace := &l.Traces[len(l.Traces)-1]
		trace.Events = append(trace.Events, xes.Event{Attributes: xes.Attributes{
			xes.Int("tweet_id", e.TweetID),
			xes.String("text", e.Text),
			xes.String("company", e.Company),
			xes.Date(xes.KeyTimestamp, e.Timestamp),
			xes.String(xes.KeyResource, e.Resource),
			xes.String(xes.KeyConcept, e.Activity),
		}})
	}
	return l
}

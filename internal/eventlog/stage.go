package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/metrics"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/naming"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/nli"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/store"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/tweets"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/xes"
)

// Sink receives the events of each company's log.
type Sink interface {
	Write(ctx context.Context, company string, events []Event) error
}

// PostgresSink copies events into stage.twcs_events.
type PostgresSink struct {
	DB    *sql.DB
	RunID string
}

func (s *PostgresSink) Write(ctx context.Context, company string, events []Event) error {
	rows := make([]store.EventRow, len(events))
	for i, e := range events {
		rows[i] = store.EventRow{
			RunID:     s.RunID,
			Company:   company,
			CaseID:    e.CaseID,
			TweetID:   e.TweetID,
			Timestamp: e.Timestamp,
			Resource:  e.Resource,
			Activity:  e.Activity,
			Text:      e.Text,
		}
	}
	return store.CopyEvents(ctx, s.DB, rows)
}

// Flusher persists buffered classifier results.
type Flusher interface {
	Flush() error
}

// StageOptions locates the inputs and outputs of event-log construction.
type StageOptions struct {
	PreprocessedDir string
	MappingsDir     string
	XESDir          string
	Template        string
	// Cache is flushed after each file when set.
	Cache Flusher
	// Sink additionally receives every log when set.
	Sink Sink
}

// RunStage builds an XES log for every preprocessed conversation file.
func RunStage(ctx context.Context, opts StageOptions, clf nli.Classifier, logger *slog.Logger) ([]string, error) {
	start := time.Now()
	defer metrics.ObserveStage("event_log", start)

	entries, err := os.ReadDir(opts.PreprocessedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", opts.PreprocessedDir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		p, err := naming.ParsePreprocessed(name)
		if err != nil {
			logger.Warn("Skipping conversation file", "file", name, "error", err)
			metrics.FilesTotal.WithLabelValues("event_log", "skipped").Inc()
			continue
		}
		out, n, err := buildFile(ctx, opts, p, name, clf)
		if err != nil {
			metrics.FilesTotal.WithLabelValues("event_log", "error").Inc()
			return written, err
		}
		metrics.FilesTotal.WithLabelValues("event_log", "ok").Inc()
		metrics.EventsTotal.WithLabelValues(p.Company).Add(float64(n))
		logger.Info("Wrote event log", "company", p.Company, "events", n, "path", out)
		written = append(written, out)
	}
	return written, nil
}

func buildFile(ctx context.Context, opts StageOptions, p naming.Preprocessed, name string, clf nli.Classifier) (string, int, error) {
	activities, err := loadMappingFile(filepath.Join(opts.MappingsDir, naming.ActivityMappingFile(p.Company)), "Activity")
	if err != nil {
		return "", 0, err
	}
	topics, err := loadMappingFile(filepath.Join(opts.MappingsDir, naming.TopicMappingFile(p.Company)), "Topic")
	if err != nil {
		return "", 0, err
	}
	table, err := sheet.ReadFile(filepath.Join(opts.PreprocessedDir, name))
	if err != nil {
		return "", 0, err
	}
	conversation, err := tweets.FromConversationTable(table)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", name, err)
	}

	labeler := &Labeler{Classifier: clf, Activities: activities, Topics: topics, Template: opts.Template}
	events, err := Build(ctx, conversation, labeler)
	if opts.Cache != nil {
		if flushErr := opts.Cache.Flush(); flushErr != nil && err == nil {
			err = flushErr
		}
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to label %s: %w", name, err)
	}

	out := filepath.Join(opts.XESDir, naming.EventLogFile(p.Company, p.Tweets))
	if err := xes.WriteFile(out, ToXES(events)); err != nil {
		return "", 0, err
	}
	if opts.Sink != nil {
		if err := opts.Sink.Write(ctx, p.Company, events); err != nil {
			return "", 0, fmt.Errorf("failed to store events of %s: %w", p.Company, err)
		}
	}
	return out, len(events), nil
}

func loadMappingFile(path, nameColumn string) ([]Mapping, error) {
	t, err := sheet.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := LoadMappings(t, nameColumn)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

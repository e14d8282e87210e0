// Package preprocess turns the raw customer-support corpus into per-company
// conversation tables.
package preprocess

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/metrics"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/naming"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/tweets"
)

// Options configures a preprocessing run.
type Options struct {
	RawCSV         string
	OutDir         string
	Companies      []string
	SampleFraction float64
	Seed           int64
	Detector       LanguageDetector
	Speller        *SpellChecker
}

type step struct {
	name string
	fn   func([]tweets.Tweet) []tweets.Tweet
}

// Pipeline applies every preprocessing step in order and logs the row count after each.
func Pipeline(ts []tweets.Tweet, opts Options, logger *slog.Logger) []tweets.Tweet {
	if opts.Detector == nil {
		opts.Detector = WhatlangDetector{}
	}
	steps := []step{
		{"replace_newlines", ReplaceNewlines},
		{"filter_companies", func(ts []tweets.Tweet) []tweets.Tweet { return FilterOutboundByCompany(ts, opts.Companies) }},
		{"sample", func(ts []tweets.Tweet) []tweets.Tweet { return Sample(ts, opts.SampleFraction, opts.Seed) }},
		{"threads", AssignThreads},
		{"assign_company", AssignCompany},
		{"single_company", RemoveMultiCompanyConversations},
		{"english", func(ts []tweets.Tweet) []tweets.Tweet { return RemoveNonEnglish(ts, opts.Detector) }},
		{"conversational", RemoveNonConversational},
	}
	if opts.Speller != nil {
		steps = append(steps, step{"spelling", func(ts []tweets.Tweet) []tweets.Tweet { return CorrectInboundSpelling(ts, opts.Speller) }})
	}

	for _, st := range steps {
		ts = st.fn(ts)
		metrics.PreprocessRows.WithLabelValues(st.name).Set(float64(len(ts)))
		logger.Info("Preprocessing step done", "step", st.name, "rows", len(ts))
	}
	return ts
}

// Run reads the raw corpus, preprocesses it and writes one table per company.
// It returns the written paths.
func Run(opts Options, logger *slog.Logger) ([]string, error) {
	start := time.Now()
	defer metrics.ObserveStage("preprocess", start)

	raw, err := sheet.ReadFile(opts.RawCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to read raw corpus: %w", err)
	}
	ts, skipped, err := tweets.FromRawTable(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse raw corpus: %w", err)
	}
	for _, e := range skipped {
		logger.Warn("Skipping malformed tweet", "error", e)
	}
	logger.Info("Loaded raw corpus", "path", opts.RawCSV, "tweets", len(ts), "skipped", len(skipped))

	ts = Pipeline(ts, opts, logger)

	var written []string
	perCompany := ByCompany(ts, opts.Companies)
	for _, company := range opts.Companies {
		rows := perCompany[company]
		path := filepath.Join(opts.OutDir, naming.PreprocessedFile(company, len(rows)))
		if err := sheet.WriteXLSX(path, tweets.ToConversationTable(rows), sheet.WriteOptions{
			Numeric: []string{tweets.ColMainTweetID, tweets.ColTweetID, tweets.ColInResponseTo},
		}); err != nil {
			metrics.FilesTotal.WithLabelValues("preprocess", "error").Inc()
			return written, fmt.Errorf("failed to write %s: %w", company, err)
		}
		metrics.FilesTotal.WithLabelValues("preprocess", "ok").Inc()
		logger.Info("Wrote preprocessed conversations", "company", company, "rows", len(rows), "path", path)
		written = append(written, path)
	}
	return written, nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/artifacts"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/config"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/evaluation"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/eventlog"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/logging"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/metrics"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/mining"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/nli"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/preprocess"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/store"
)

// app carries what every stage needs for one command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	runID  string

	closers []io.Closer
	cache   *nli.Cache
	clf     nli.Classifier
	db      *sql.DB
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := logging.Setup(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, runID: uuid.NewString(), closers: []io.Closer{logCloser}}
	logger.Info("Starting twcs-miner", "run_id", a.runID, "companies", cfg.Companies)
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// classifier opens the cache and the Triton backend on first use.
func (a *app) classifier() (nli.Classifier, error) {
	if a.clf != nil {
		return a.clf, nil
	}
	tc := a.cfg.Triton
	encoder, err := nli.LoadEncoder(tc.TokenizerPath, tc.MaxLength)
	if err != nil {
		return nil, err
	}
	cache, err := nli.OpenCache(a.cfg.Cache.Path, a.cfg.Cache.LRUSize)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, cache)
	a.cache = cache
	entries, err := cache.Len()
	if err != nil {
		return nil, err
	}
	a.logger.Info("Opened classification cache", "path", a.cfg.Cache.Path, "entries", entries)

	client := nli.NewTritonClient(tc.BaseURL, tc.Model, tc.Timeout)
	client.CFAccessClientID = tc.CFAccessClientID
	client.CFAccessSecret = tc.CFAccessSecret
	a.clf = &nli.CachedClassifier{
		Backend: &nli.TritonClassifier{
			Client:             client,
			Encoder:            encoder,
			EntailmentIndex:    tc.EntailmentIndex,
			ContradictionIndex: tc.ContradictionIndex,
			PadID:              int64(tc.PadID),
		},
		Cache: cache,
	}
	return a.clf, nil
}

// sink returns the Postgres event sink, or nil when no database is configured.
func (a *app) sink(ctx context.Context) (eventlog.Sink, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, nil
	}
	if a.db == nil {
		db, err := store.Open(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		a.db = db
	}
	return &eventlog.PostgresSink{DB: a.db, RunID: a.runID}, nil
}

// stage is one pipeline step exposed as a subcommand.
type stage struct {
	name    string
	short   string
	run     func(ctx context.Context, a *app) error
	outputs func(cfg *config.Config) map[string]string
}

var stages = []stage{
	{
		name:  "preprocess",
		short: "Clean, sample and thread the raw corpus into per-company conversations",
		run:   runPreprocess,
		outputs: func(cfg *config.Config) map[string]string {
			return map[string]string{"preprocessed": cfg.PreprocessedDir()}
		},
	},
	{
		name:  "predict",
		short: "Score labeled tweets against every NLI hypothesis",
		run:   runPredict,
		outputs: func(cfg *config.Config) map[string]string {
			return map[string]string{"predicted": cfg.PredictedDir()}
		},
	},
	{
		name:  "cross-validate",
		short: "Choose the optimal threshold per hypothesis by stratified cross-validation",
		run:   runCrossValidate,
		outputs: func(cfg *config.Config) map[string]string {
			return map[string]string{"nli-cv": cfg.CrossValidationDir()}
		},
	},
	{
		name:  "keyword-baseline",
		short: "Evaluate the keyword classifier against the labeled tweets",
		run:   runKeywordBaseline,
		outputs: func(cfg *config.Config) map[string]string {
			return map[string]string{"keyword-classification": cfg.KeywordResultsDir()}
		},
	},
	{
		name:  "event-log",
		short: "Label conversations with topics and activities and write XES event logs",
		run:   runEventLog,
		outputs: func(cfg *config.Config) map[string]string {
			return map[string]string{"xes": cfg.XESDir}
		},
	},
	{
		name:  "discover",
		short: "Filter the event logs and discover process models",
		run:   runDiscover,
		outputs: func(cfg *config.Config) map[string]string {
			return map[string]string{"process-discovery": cfg.DiscoveryDir()}
		},
	},
}

func newStageCmd(configPath *string, s stage) *cobra.Command {
	return &cobra.Command{
		Use:   s.name,
		Short: s.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), *configPath, []stage{s})
		},
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every stage in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), *configPath, stages)
		},
	}
}

func execute(ctx context.Context, configPath string, todo []stage) (err error) {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for _, s := range todo {
		a.logger.Info("Running stage", "stage", s.name)
		if err := s.run(ctx, a); err != nil {
			a.logger.Error("Stage failed", "stage", s.name, "error", err)
			a.pushMetrics(ctx)
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	if err := a.publish(ctx, todo); err != nil {
		return err
	}
	a.pushMetrics(ctx)
	return nil
}

func (a *app) publish(ctx context.Context, done []stage) error {
	if a.cfg.S3.Bucket == "" {
		return nil
	}
	client, err := artifacts.NewS3Client(ctx, a.cfg.S3)
	if err != nil {
		return err
	}
	p := artifacts.NewPublisher(client, a.cfg.S3.Bucket, a.cfg.S3.Prefix, a.logger)
	p.RunID = a.runID
	for _, s := range done {
		for name, dir := range s.outputs(a.cfg) {
			keys, err := p.PublishDir(ctx, dir, name)
			if err != nil {
				return fmt.Errorf("failed to publish %s: %w", name, err)
			}
			a.logger.Info("Published results", "stage", s.name, "objects", len(keys))
		}
	}
	return nil
}

func (a *app) pushMetrics(ctx context.Context) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(ctx, a.cfg.PushgatewayURL, "twcs-miner"); err != nil {
		a.logger.Warn("Metrics not pushed", "error", err)
	}
}

func runPreprocess(_ context.Context, a *app) error {
	opts := preprocess.Options{
		RawCSV:         a.cfg.RawCSV,
		OutDir:         a.cfg.PreprocessedDir(),
		Companies:      a.cfg.Companies,
		SampleFraction: a.cfg.SampleFraction,
		Seed:           a.cfg.Seed,
		Detector:       preprocess.WhatlangDetector{MinConfidence: a.cfg.MinLangConfidence},
	}
	speller, err := preprocess.LoadSpellChecker(a.cfg.DictionaryPath)
	switch {
	case err == nil:
		opts.Speller = speller
		a.logger.Info("Loaded spelling dictionary", "path", a.cfg.DictionaryPath, "words", speller.Len())
	case errors.Is(err, os.ErrNotExist):
		a.logger.Warn("Spelling dictionary not found, skipping correction", "path", a.cfg.DictionaryPath)
	default:
		return err
	}
	_, err = preprocess.Run(opts, a.logger)
	return err
}

func runPredict(ctx context.Context, a *app) error {
	clf, err := a.classifier()
	if err != nil {
		return err
	}
	_, err = nli.RunStage(ctx, nli.StageOptions{
		LabeledDir:         a.cfg.LabeledDir(),
		TemplatesDir:       a.cfg.TemplatesDir,
		PredictedDir:       a.cfg.PredictedDir(),
		HypothesisTemplate: a.cfg.HypothesisTemplate,
	}, clf, a.logger)
	if flushErr := a.cache.Flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

func runCrossValidate(_ context.Context, a *app) error {
	_, err := evaluation.RunCrossValidation(evaluation.CrossValidationOptions{
		PredictedDir: a.cfg.PredictedDir(),
		TemplatesDir: a.cfg.TemplatesDir,
		OutDir:       a.cfg.CrossValidationDir(),
		Seed:         a.cfg.Seed,
	}, a.logger)
	return err
}

func runKeywordBaseline(_ context.Context, a *app) error {
	_, err := evaluation.RunKeywordBaseline(evaluation.KeywordOptions{
		MappingsDir: a.cfg.MappingsDir(),
		LabeledDir:  a.cfg.LabeledDir(),
		OutDir:      a.cfg.KeywordResultsDir(),
	}, a.logger)
	return err
}

func runEventLog(ctx context.Context, a *app) error {
	clf, err := a.classifier()
	if err != nil {
		return err
	}
	sink, err := a.sink(ctx)
	if err != nil {
		return err
	}
	_, err = eventlog.RunStage(ctx, eventlog.StageOptions{
		PreprocessedDir: a.cfg.PreprocessedDir(),
		MappingsDir:     a.cfg.MappingsDir(),
		XESDir:          a.cfg.XESDir,
		Template:        a.cfg.HypothesisTemplate,
		Cache:           a.cache,
		Sink:            sink,
	}, clf, a.logger)
	return err
}

func runDiscover(_ context.Context, a *app) error {
	_, err := mining.RunStage(mining.StageOptions{
		XESDir:           a.cfg.XESDir,
		OutDir:           a.cfg.DiscoveryDir(),
		DecreasingFactor: a.cfg.DecreasingFactor,
	}, a.logger)
	return err
}

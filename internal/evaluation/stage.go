package evaluation

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/metrics"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/naming"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
)

// CrossValidationOptions locates the inputs and outputs of the cross-validation stage.
type CrossValidationOptions struct {
	PredictedDir string
	TemplatesDir func(direction string) string
	OutDir       string
	Seed         int64
}

// RunCrossValidation cross-validates every predicted file and writes one result
// sheet per company and direction.
func RunCrossValidation(opts CrossValidationOptions, logger *slog.Logger) ([]string, error) {
	start := time.Now()
	defer metrics.ObserveStage("cross_validate", start)

	names, err := listFiles(opts.PredictedDir)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var written []string
	for _, name := range names {
		labeled, err := naming.ParsePredicted(name)
		if err != nil {
			logger.Warn("Skipping predicted file", "file", name, "error", err)
			metrics.FilesTotal.WithLabelValues("cross_validate", "skipped").Inc()
			continue
		}
		table, err := sheet.ReadFile(filepath.Join(opts.PredictedDir, name))
		if err != nil {
			return written, err
		}
		template, err := sheet.ReadFile(filepath.Join(opts.TemplatesDir(labeled.Direction), naming.TemplateFile(labeled.Company)))
		if err != nil {
			return written, fmt.Errorf("failed to load template for %s: %w", name, err)
		}
		results, err := CrossValidate(table, template, rng)
		if err != nil {
			metrics.FilesTotal.WithLabelValues("cross_validate", "error").Inc()
			return written, fmt.Errorf("failed to cross-validate %s: %w", name, err)
		}
		for _, r := range results {
			logger.Debug("Cross-validated hypothesis", "header", r.Header, "label", r.Label,
				"threshold", r.OptimalThreshold, "mcc", r.MCC)
		}

		out := filepath.Join(opts.OutDir, naming.CrossValidationFile(labeled.Company, labeled.Direction))
		if err := writeResults(out, ResultsTable(results), ResultColumns[2:]); err != nil {
			return written, err
		}
		metrics.FilesTotal.WithLabelValues("cross_validate", "ok").Inc()
		logger.Info("Wrote cross-validation results", "company", labeled.Company,
			"direction", labeled.Direction, "hypotheses", len(results), "path", out)
		written = append(written, out)
	}
	return written, nil
}

// KeywordOptions locates the inputs and outputs of the keyword baseline stage.
type KeywordOptions struct {
	MappingsDir string
	LabeledDir  string
	OutDir      string
}

// RunKeywordBaseline evaluates every mapping file against the labeled sample of
// its company and direction.
func RunKeywordBaseline(opts KeywordOptions, logger *slog.Logger) ([]string, error) {
	start := time.Now()
	defer metrics.ObserveStage("keyword_baseline", start)

	names, err := listFiles(opts.MappingsDir)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, name := range names {
		m, err := naming.ParseMapping(name)
		if err != nil {
			logger.Warn("Skipping mapping file", "file", name, "error", err)
			metrics.FilesTotal.WithLabelValues("keyword_baseline", "skipped").Inc()
			continue
		}
		labeledPath, err := findLabeled(opts.LabeledDir, m.Company, m.Direction)
		if err != nil {
			logger.Warn("Skipping mapping without labeled sample", "file", name, "error", err)
			metrics.FilesTotal.WithLabelValues("keyword_baseline", "skipped").Inc()
			continue
		}
		mapping, err := sheet.ReadFile(filepath.Join(opts.MappingsDir, name))
		if err != nil {
			return written, err
		}
		labeled, err := sheet.ReadFile(labeledPath)
		if err != nil {
			return written, err
		}
		results, err := KeywordBaseline(labeled, mapping, ItemColumn(m.Type))
		if err != nil {
			metrics.FilesTotal.WithLabelValues("keyword_baseline", "error").Inc()
			return written, fmt.Errorf("failed to evaluate %s: %w", name, err)
		}

		out := filepath.Join(opts.OutDir, naming.KeywordResultsFile(m.Company, m.Direction))
		if err := writeResults(out, KeywordTable(results), KeywordColumns[2:]); err != nil {
			return written, err
		}
		metrics.FilesTotal.WithLabelValues("keyword_baseline", "ok").Inc()
		logger.Info("Wrote keyword baseline", "company", m.Company, "direction", m.Direction,
			"items", len(results), "path", out)
		written = append(written, out)
	}
	return written, nil
}

// findLabeled returns the labeled sample twcs-<company>-<n>-<direction>.xlsx.
func findLabeled(dir, company, direction string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("twcs-%s-*-%s.xlsx", company, direction)))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if _, err := naming.ParseLabeled(filepath.Base(m)); err == nil {
			return m, nil
		}
	}
	return "", fmt.Errorf("no labeled file for %s/%s in %s", company, direction, dir)
}

func writeResults(path string, table *sheet.Table, numeric []string) error {
	return sheet.WriteXLSX(path, table, sheet.WriteOptions{Numeric: numeric, ColorScale: ScoreColumns})
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

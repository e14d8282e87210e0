package nli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/metrics"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/naming"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
)

// TextColumn holds the tweet text in labeled and predicted tables.
const TextColumn = "text"

// PredictionColumn names the score column of hypothesis under header.
func PredictionColumn(header, hypothesis string) string {
	return "pred_" + header + "_" + hypothesis
}

// Hypotheses returns the non-empty hypotheses of every template header, keeping
// the template's column order. Headers without hypotheses are left out.
func Hypotheses(template *sheet.Table) ([]string, map[string][]string) {
	var headers []string
	out := make(map[string][]string)
	for _, h := range template.Headers {
		if strings.TrimSpace(h) == "" {
			continue
		}
		hyps, _ := template.NonEmpty(h)
		if len(hyps) == 0 {
			continue
		}
		headers = append(headers, h)
		out[h] = hyps
	}
	return headers, out
}

// Predict adds a pred_<header>_<hypothesis> column for every template hypothesis,
// scored on the row's text. Blank label cells are set to 0.
func Predict(ctx context.Context, t *sheet.Table, template *sheet.Table, clf Classifier, hypothesisTemplate string) error {
	texts, err := t.Column(TextColumn)
	if err != nil {
		return err
	}
	headers, hyps := Hypotheses(template)
	for _, header := range headers {
		if err := fillZeros(t, header); err != nil {
			return err
		}
	}

	for _, header := range headers {
		columns := make(map[string][]string, len(hyps[header]))
		for _, hyp := range hyps[header] {
			columns[hyp] = make([]string, len(texts))
		}
		for i, text := range texts {
			scores, err := clf.Classify(ctx, text, hyps[header], hypothesisTemplate)
			if err != nil {
				return fmt.Errorf("failed to classify row %d: %w", i+1, err)
			}
			for _, hyp := range hyps[header] {
				columns[hyp][i] = sheet.FormatFloat(scores[hyp])
			}
		}
		for _, hyp := range hyps[header] {
			if err := t.SetColumn(PredictionColumn(header, hyp), columns[hyp]); err != nil {
				return err
			}
		}
	}
	return nil
}

func fillZeros(t *sheet.Table, name string) error {
	if !t.Has(name) {
		return nil
	}
	col, err := t.Column(name)
	if err != nil {
		return err
	}
	for i, v := range col {
		if strings.TrimSpace(v) == "" {
			col[i] = "0"
		}
	}
	return t.SetColumn(name, col)
}

// StageOptions locates the inputs and outputs of the prediction stage.
type StageOptions struct {
	LabeledDir string
	// TemplatesDir returns the template directory for a direction.
	TemplatesDir       func(direction string) string
	PredictedDir       string
	HypothesisTemplate string
}

// RunStage predicts every labeled file and writes the predicted copies. Files
// with malformed names are skipped with a warning.
func RunStage(ctx context.Context, opts StageOptions, clf Classifier, logger *slog.Logger) ([]string, error) {
	start := time.Now()
	defer metrics.ObserveStage("predict", start)

	entries, err := os.ReadDir(opts.LabeledDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", opts.LabeledDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		labeled, err := naming.ParseLabeled(name)
		if err != nil {
			logger.Warn("Skipping labeled file", "file", name, "error", err)
			metrics.FilesTotal.WithLabelValues("predict", "skipped").Inc()
			continue
		}
		out, err := predictFile(ctx, opts, labeled, name, clf)
		if err != nil {
			metrics.FilesTotal.WithLabelValues("predict", "error").Inc()
			return written, err
		}
		metrics.FilesTotal.WithLabelValues("predict", "ok").Inc()
		logger.Info("Wrote predictions", "company", labeled.Company, "direction", labeled.Direction, "path", out)
		written = append(written, out)
	}
	return written, nil
}

func predictFile(ctx context.Context, opts StageOptions, labeled naming.Labeled, name string, clf Classifier) (string, error) {
	table, err := sheet.ReadFile(filepath.Join(opts.LabeledDir, name))
	if err != nil {
		return "", err
	}
	templatePath := filepath.Join(opts.TemplatesDir(labeled.Direction), naming.TemplateFile(labeled.Company))
	template, err := sheet.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to load template for %s: %w", name, err)
	}
	if err := Predict(ctx, table, template, clf, opts.HypothesisTemplate); err != nil {
		return "", fmt.Errorf("failed to predict %s: %w", name, err)
	}

	var numeric []string
	for _, h := range table.Headers {
		if h != TextColumn {
			numeric = append(numeric, h)
		}
	}
	out := filepath.Join(opts.PredictedDir, naming.PredictedFile(labeled))
	if err := sheet.WriteXLSX(out, table, sheet.WriteOptions{Numeric: numeric}); err != nil {
		return "", err
	}
	return out, nil
}

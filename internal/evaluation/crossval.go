package evaluation

import (
	"fmt"
	"math/rand"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/nli"
	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
)

// MinPositives is the number of positive examples a label needs to be cross-validated.
const MinPositives = 3

// MaxFolds caps the number of folds.
const MaxFolds = 5

// Result is the cross-validated outcome for one hypothesis.
type Result struct {
	Header           string
	Label            string
	OptimalThreshold float64
	Scores
}

// ResultColumns is the column order of cross-validation result sheets.
var ResultColumns = []string{"Header", "Label", "Optimal Threshold", "MCC", "Accuracy", "Balanced Accuracy", "F1", "Items"}

// ScoreColumns get a colour scale in result sheets.
var ScoreColumns = []string{"MCC", "Accuracy", "Balanced Accuracy", "F1"}

// OptimalThreshold cross-validates the grid for one probability column and
// returns the threshold with the highest mean MCC over folds. Ties go to the
// first threshold of the grid.
func OptimalThreshold(yTrue []int, probs []float64, k int, rng *rand.Rand) (float64, error) {
	folds, err := StratifiedKFold(yTrue, k, rng)
	if err != nil {
		return 0, err
	}
	grid := Thresholds()
	best, bestMCC := grid[0], 0.0
	for i, threshold := range grid {
		perFold := make([]Scores, 0, len(folds))
		for _, test := range folds {
			t := make([]int, len(test))
			p := make([]float64, len(test))
			for j, idx := range test {
				t[j], p[j] = yTrue[idx], probs[idx]
			}
			perFold = append(perFold, Evaluate(t, Threshold(p, threshold)))
		}
		if m := mean(perFold).MCC; i == 0 || m > bestMCC {
			best, bestMCC = threshold, m
		}
	}
	return best, nil
}

// CrossValidate evaluates every template hypothesis whose header has at least
// MinPositives positive labels. The table must carry the prediction columns
// written by nli.Predict.
func CrossValidate(t *sheet.Table, template *sheet.Table, rng *rand.Rand) ([]Result, error) {
	headers, hyps := nli.Hypotheses(template)
	var results []Result
	for _, header := range headers {
		yTrue, err := binaryColumn(t, header)
		if err != nil {
			return nil, err
		}
		positives := 0
		for _, v := range yTrue {
			positives += v
		}
		if positives < MinPositives {
			continue
		}
		k := min(positives, MaxFolds)

		for _, hyp := range hyps[header] {
			probs, err := t.Floats(nli.PredictionColumn(header, hyp))
			if err != nil {
				return nil, err
			}
			threshold, err := OptimalThreshold(yTrue, probs, k, rng)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", header, hyp, err)
			}
			results = append(results, Result{
				Header:           header,
				Label:            hyp,
				OptimalThreshold: threshold,
				Scores:           Evaluate(yTrue, Threshold(probs, threshold)),
			})
		}
	}
	return results, nil
}

// binaryColumn reads a label column; 1 is positive, everything else negative.
func binaryColumn(t *sheet.Table, name string) ([]int, error) {
	values, err := t.Ints(name)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if v != 1 {
			values[i] = 0
		}
	}
	return values, nil
}

// ResultsTable renders cross-validation results with ResultColumns.
func ResultsTable(results []Result) *sheet.Table {
	table := sheet.NewTable(ResultColumns...)
	for _, r := range results {
		table.Append(
			r.Header,
			r.Label,
			sheet.FormatFloat(r.OptimalThreshold),
			sheet.FormatFloat(r.MCC),
			sheet.FormatFloat(r.Accuracy),
			sheet.FormatFloat(r.BalancedAccuracy),
			sheet.FormatFloat(r.F1),
			sheet.FormatFloat(r.Items),
		)
	}
	return table
}

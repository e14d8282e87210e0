// Package evaluation scores binary classifiers against manual labels: metric
// computation, threshold cross-validation and the keyword baseline.
package evaluation

import (
	"math"
)

// Scores are the metrics reported for one classifier.
type Scores struct {
	MCC              float64
	Accuracy         float64
	BalancedAccuracy float64
	F1               float64
	Items            float64
}

type confusion struct {
	tp, tn, fp, fn float64
}

func confusionOf(yTrue, yPred []int) confusion {
	var c confusion
	for i := range yTrue {
		switch {
		case yTrue[i] == 1 && yPred[i] == 1:
			c.tp++
		case yTrue[i] == 1:
			c.fn++
		case yPred[i] == 1:
			c.fp++
		default:
			c.tn++
		}
	}
	return c
}

// Evaluate compares binary predictions with the truth. Values other than 1
// count as negative. Undefined MCC and F1 are 0.
func Evaluate(yTrue, yPred []int) Scores {
	c := confusionOf(yTrue, yPred)
	n := c.tp + c.tn + c.fp + c.fn
	s := Scores{Items: c.tp + c.fn}
	if n == 0 {
		return s
	}

	if d := math.Sqrt((c.tp + c.fp) * (c.tp + c.fn) * (c.tn + c.fp) * (c.tn + c.fn)); d > 0 {
		s.MCC = (c.tp*c.tn - c.fp*c.fn) / d
	}
	s.Accuracy = (c.tp + c.tn) / n

	// mean recall over the classes present in yTrue
	var recall float64
	classes := 0
	if c.tp+c.fn > 0 {
		recall += c.tp / (c.tp + c.fn)
		classes++
	}
	if c.tn+c.fp > 0 {
		recall += c.tn / (c.tn + c.fp)
		classes++
	}
	s.BalancedAccuracy = recall / float64(classes)

	if d := 2*c.tp + c.fp + c.fn; d > 0 {
		s.F1 = 2 * c.tp / d
	}
	return s
}

// Threshold turns probabilities into predictions: 1 when p > threshold.
func Threshold(probs []float64, threshold float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		if p > threshold {
			out[i] = 1
		}
	}
	return out
}

// Thresholds is the search grid, highest first: 0.999 down to 0.980 in steps of
// 0.001, then 0.98 down to 0.70 in steps of 0.01.
func Thresholds() []float64 {
	var grid []float64
	for x := 0; x < 29; x++ {
		grid = append(grid, round3(0.7+float64(x)*0.01))
	}
	for x := 0; x < 20; x++ {
		grid = append(grid, round3(0.98+float64(x)*0.001))
	}
	for i, j := 0, len(grid)-1; i < j; i, j = i+1, j-1 {
		grid[i], grid[j] = grid[j], grid[i]
	}
	return grid
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

func mean(scores []Scores) Scores {
	var m Scores
	if len(scores) == 0 {
		return m
	}
	for _, s := range scores {
		m.MCC += s.MCC
		m.Accuracy += s.Accuracy
		m.BalancedAccuracy += s.BalancedAccuracy
		m.F1 += s.F1
		m.Items += s.Items
	}
	n := float64(len(scores))
	m.MCC /= n
	m.Accuracy /= n
	m.BalancedAccuracy /= n
	m.F1 /= n
	m.Items /= n
	return m
}

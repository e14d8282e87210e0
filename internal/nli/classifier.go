// Package nli scores texts against candidate labels with a zero-shot natural
// language inference model.
package nli

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// DefaultTemplate turns a label into a hypothesis sentence.
const DefaultTemplate = "{}."

// Classifier scores each label independently: the result maps every label to
// the probability that text entails the label's hypothesis.
type Classifier interface {
	Classify(ctx context.Context, text string, labels []string, template string) (map[string]float64, error)
}

// Hypothesis fills the first "{}" of template with label.
func Hypothesis(template, label string) string {
	if template == "" {
		template = DefaultTemplate
	}
	return strings.Replace(template, "{}", label, 1)
}

// TritonClassifier runs an MNLI model on Triton. All labels of one text go into
// a single batched request.
type TritonClassifier struct {
	Client             *TritonClient
	Encoder            Encoder
	EntailmentIndex    int
	ContradictionIndex int
	PadID              int64
	LogitsOutput       string
}

func (c *TritonClassifier) Classify(ctx context.Context, text string, labels []string, template string) (map[string]float64, error) {
	if len(labels) == 0 {
		return map[string]float64{}, nil
	}

	ids := make([][]int64, len(labels))
	masks := make([][]int64, len(labels))
	maxLen := 0
	for i, label := range labels {
		var err error
		ids[i], masks[i], err = c.Encoder.EncodePair(text, Hypothesis(template, label))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", label, err)
		}
		if len(ids[i]) > maxLen {
			maxLen = len(ids[i])
		}
	}

	inputIDs := make([]int64, 0, len(labels)*maxLen)
	attention := make([]int64, 0, len(labels)*maxLen)
	for i := range labels {
		inputIDs = append(inputIDs, ids[i]...)
		attention = append(attention, masks[i]...)
		for j := len(ids[i]); j < maxLen; j++ {
			inputIDs = append(inputIDs, c.PadID)
			attention = append(attention, 0)
		}
	}

	shape := []int{len(labels), maxLen}
	output := c.LogitsOutput
	if output == "" {
		output = "logits"
	}
	resp, err := c.Client.Infer(ctx, []TritonTensor{
		{Name: "input_ids", Shape: shape, DataType: "INT64", Data: inputIDs},
		{Name: "attention_mask", Shape: shape, DataType: "INT64", Data: attention},
	}, output)
	if err != nil {
		return nil, err
	}
	logits, err := resp.Output(output)
	if err != nil {
		return nil, err
	}
	return c.scores(labels, logits)
}

func (c *TritonClassifier) scores(labels []string, logits *TritonOutputTensor) (map[string]float64, error) {
	if len(logits.Shape) != 2 || logits.Shape[0] != len(labels) {
		return nil, fmt.Errorf("unexpected logits shape %v for %d labels", logits.Shape, len(labels))
	}
	classes := logits.Shape[1]
	if len(logits.Data) != len(labels)*classes {
		return nil, fmt.Errorf("logits data has %d values, shape %v", len(logits.Data), logits.Shape)
	}
	if c.EntailmentIndex >= classes || c.ContradictionIndex >= classes {
		return nil, fmt.Errorf("entailment/contradiction index out of range for %d classes", classes)
	}

	out := make(map[string]float64, len(labels))
	for i, label := range labels {
		row := logits.Data[i*classes : (i+1)*classes]
		out[label] = entailment(row[c.ContradictionIndex], row[c.EntailmentIndex])
	}
	return out, nil
}

// entailment is the entailment probability of a softmax over the contradiction
// and entailment logits only.
func entailment(contradiction, entail float64) float64 {
	return 1 / (1 + math.Exp(contradiction-entail))
}

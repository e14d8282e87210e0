package nli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/sheet"
)

// charEncoder emits one token per byte of the hypothesis plus a terminator.
type charEncoder struct{}

func (charEncoder) EncodePair(premise, hypothesis string) ([]int64, []int64, error) {
	ids := make([]int64, 0, len(hypothesis)+1)
	mask := make([]int64, 0, len(hypothesis)+1)
	for i := 0; i < len(hypothesis); i++ {
		ids = append(ids, int64(hypothesis[i]))
		mask = append(mask, 1)
	}
	return append(ids, 2), append(mask, 1), nil
}

type inferRequest struct {
	Inputs []struct {
		Name     string  `json:"name"`
		Shape    []int   `json:"shape"`
		DataType string  `json:"datatype"`
		Data     []int64 `json:"data"`
	} `json:"inputs"`
	Outputs []TritonOutput `json:"outputs"`
}

func newTritonServer(t *testing.T, logits func(n int) [][]float64) (*httptest.Server, *inferRequest) {
	t.Helper()
	var last inferRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/models/mnli/infer", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("CF-Access-Client-Id") != "id" || r.Header.Get("CF-Access-Client-Secret") != "secret" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n := last.Inputs[0].Shape[0]
		var data []float64
		for _, row := range logits(n) {
			data = append(data, row...)
		}
		json.NewEncoder(w).Encode(TritonResponse{
			ModelName: "mnli",
			Outputs:   []TritonOutputTensor{{Name: "logits", DataType: "FP32", Shape: []int{n, 3}, Data: data}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &last
}

func newClassifier(url string) *TritonClassifier {
	client := NewTritonClient(url, "mnli", 5*time.Second)
	client.CFAccessClientID = "id"
	client.CFAccessSecret = "secret"
	return &TritonClassifier{
		Client:             client,
		Encoder:            charEncoder{},
		EntailmentIndex:    2,
		ContradictionIndex: 0,
		PadID:              1,
	}
}

func TestTritonClassifier(t *testing.T) {
	srv, last := newTritonServer(t, func(n int) [][]float64 {
		rows := make([][]float64, n)
		rows[0] = []float64{0, 5, 0}
		for i := 1; i < n; i++ {
			rows[i] = []float64{0, -2, math.Log(3)}
		}
		return rows
	})
	clf := newClassifier(srv.URL)

	got, err := clf.Classify(context.Background(), "where is my parcel", []string{"refund", "ok"}, "This is about {}.")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got["refund"], 1e-9)
	assert.InDelta(t, 0.75, got["ok"], 1e-9)

	require.Len(t, last.Inputs, 2)
	ids, mask := last.Inputs[0], last.Inputs[1]
	assert.Equal(t, "input_ids", ids.Name)
	assert.Equal(t, "INT64", ids.DataType)
	width := len("This is about refund.") + 1
	assert.Equal(t, []int{2, width}, ids.Shape)
	short := len("This is about ok.") + 1
	assert.Equal(t, int64(1), ids.Data[width+short], "second row must be padded with the pad id")
	assert.Equal(t, int64(0), mask.Data[width+short])
	assert.Equal(t, int64(1), mask.Data[width+short-1])
	assert.Equal(t, []TritonOutput{{Name: "logits"}}, last.Outputs)
}

func TestTritonClassifierErrors(t *testing.T) {
	srv, _ := newTritonServer(t, func(n int) [][]float64 { return [][]float64{{0, 0, 0}} })
	clf := newClassifier(srv.URL)

	_, err := clf.Classify(context.Background(), "x", []string{"a", "b"}, "")
	assert.ErrorContains(t, err, "logits data has 3 values")

	clf.Client.CFAccessSecret = "wrong"
	_, err = clf.Classify(context.Background(), "x", []string{"a"}, "")
	assert.ErrorContains(t, err, "triton error 403")

	empty, err := clf.Classify(context.Background(), "x", nil, "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHypothesis(t *testing.T) {
	assert.Equal(t, "refund.", Hypothesis("", "refund"))
	assert.Equal(t, "It is about refund.", Hypothesis("It is about {}.", "refund"))
}

func TestTruncateTrimsPremise(t *testing.T) {
	// <s> p1 p2 p3 p4 </s> </s> h1 h2 </s>
	ids := []int64{0, 11, 12, 13, 14, 2, 2, 21, 22, 2}
	mask := []int64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	special := []int{1, 0, 0, 0, 0, 1, 1, 0, 0, 1}

	got, gotMask, err := truncate(ids, mask, special, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 11, 2, 2, 21, 22, 2}, got)
	assert.Len(t, gotMask, 7)

	got, _, err = truncate(ids, mask, special, 0)
	require.NoError(t, err)
	assert.Len(t, got, 10)

	_, _, err = truncate(ids, mask, special, 5)
	assert.Error(t, err)

	_, _, err = truncate([]int64{1}, nil, []int{0}, 3)
	assert.Error(t, err)
}

// countingClassifier scores a label by its length and records what it was asked.
type countingClassifier struct {
	calls [][]string
	err   error
}

func (c *countingClassifier) Classify(_ context.Context, text string, labels []string, _ string) (map[string]float64, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.calls = append(c.calls, append([]string(nil), labels...))
	out := make(map[string]float64, len(labels))
	for _, l := range labels {
		out[l] = float64(len(l)) / 10
	}
	return out, nil
}

func TestCachedClassifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	cache, err := OpenCache(path, 16)
	require.NoError(t, err)

	backend := &countingClassifier{}
	clf := &CachedClassifier{Backend: backend, Cache: cache}
	ctx := context.Background()

	got, err := clf.Classify(ctx, "hello", []string{"ab", "abc"}, DefaultTemplate)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"ab": 0.2, "abc": 0.3}, got)

	got, err = clf.Classify(ctx, "hello", []string{"abc", "abcd"}, DefaultTemplate)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, got["abcd"], 1e-12)
	assert.Equal(t, [][]string{{"ab", "abc"}, {"abcd"}}, backend.calls, "only cache misses reach the backend")

	require.NoError(t, cache.Close())

	reopened, err := OpenCache(path, 16)
	require.NoError(t, err)
	defer reopened.Close()
	n, err := reopened.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	v, ok, err := reopened.Get("hello", "abcd")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-12)
	_, ok, err = reopened.Get("bye", "abcd")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheReadErrors(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"), 4)
	require.NoError(t, err)
	require.NoError(t, cache.Close())

	_, ok, err := cache.Get("hello", "refund")
	assert.Error(t, err)
	assert.False(t, ok)
	_, err = cache.Len()
	assert.Error(t, err)

	clf := &CachedClassifier{Backend: &countingClassifier{}, Cache: cache}
	_, err = clf.Classify(context.Background(), "hello", []string{"refund"}, "")
	assert.ErrorContains(t, err, "failed to read cache")
}

func TestCachedClassifierBackendError(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.db"), 0)
	require.NoError(t, err)
	defer cache.Close()

	clf := &CachedClassifier{Backend: &countingClassifier{err: errors.New("down")}, Cache: cache}
	_, err = clf.Classify(context.Background(), "x", []string{"a"}, "")
	assert.EqualError(t, err, "down")
}

func TestPredict(t *testing.T) {
	table := sheet.NewTable("", "text", "Refund", "Delivery")
	table.Append("0", "I want my money back", "1", "")
	table.Append("1", "where is it", "", "1")

	template := sheet.NewTable("Refund", "Delivery", "Empty")
	template.Append("refund", "delivery", "")
	template.Append("money", "", "")

	backend := &countingClassifier{}
	require.NoError(t, Predict(context.Background(), table, template, backend, DefaultTemplate))

	assert.Equal(t, []string{"", "text", "Refund", "Delivery", "pred_Refund_refund", "pred_Refund_money", "pred_Delivery_delivery"}, table.Headers)
	assert.Equal(t, "0", table.Value(0, "Delivery"))
	assert.Equal(t, "0", table.Value(1, "Refund"))
	assert.Equal(t, "0.6", table.Value(1, "pred_Refund_refund"))
	assert.Equal(t, "0.8", table.Value(0, "pred_Delivery_delivery"))
	assert.Len(t, backend.calls, 4)
}

func TestPredictRequiresText(t *testing.T) {
	err := Predict(context.Background(), sheet.NewTable("Refund"), sheet.NewTable("Refund"), &countingClassifier{}, "")
	assert.ErrorIs(t, err, sheet.ErrNoColumn)
}

func TestRunStage(t *testing.T) {
	dir := t.TempDir()
	labeledDir := filepath.Join(dir, "labeled")
	templates := filepath.Join(dir, "nli-templates")

	labeled := sheet.NewTable("text", "Refund")
	labeled.Append("money back please", "1")
	labeled.Append("thanks", "0")
	require.NoError(t, sheet.WriteXLSX(filepath.Join(labeledDir, "twcs-AmazonHelp-200-inbound.xlsx"), labeled, sheet.WriteOptions{}))
	require.NoError(t, sheet.WriteXLSX(filepath.Join(labeledDir, "notes.xlsx"), labeled, sheet.WriteOptions{}))

	template := sheet.NewTable("Refund")
	template.Append("refund")
	require.NoError(t, sheet.WriteXLSX(filepath.Join(templates, "inbound", "twcs-AmazonHelp-nli.xlsx"), template, sheet.WriteOptions{}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	written, err := RunStage(context.Background(), StageOptions{
		LabeledDir:   labeledDir,
		TemplatesDir: func(direction string) string { return filepath.Join(templates, direction) },
		PredictedDir: filepath.Join(dir, "predicted"),
	}, &countingClassifier{}, logger)
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.True(t, strings.HasSuffix(written[0], "twcs-AmazonHelp-200-inbound-predicted.xlsx"))

	got, err := sheet.ReadFile(written[0])
	require.NoError(t, err)
	assert.Equal(t, "0.6", got.Value(0, "pred_Refund_refund"))
}

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(FilesTotal.WithLabelValues("predict", "ok"))
	FilesTotal.WithLabelValues("predict", "ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FilesTotal.WithLabelValues("predict", "ok")))

	VariantsKept.WithLabelValues("AmazonHelp").Set(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(VariantsKept.WithLabelValues("AmazonHelp")))
}

func TestObserveStage(t *testing.T) {
	ObserveStage("test_stage", time.Now().Add(-time.Second))
	n, err := testutil.GatherAndCount(Registry, "twcs_stage_duration_seconds")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}

func TestPush(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	EventsTotal.WithLabelValues("AppleSupport").Add(3)
	require.NoError(t, Push(context.Background(), srv.URL, "twcs-miner"))
	assert.Equal(t, "/metrics/job/twcs-miner", path)
	assert.NotEmpty(t, body)
}

func TestPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := Push(context.Background(), srv.URL, "twcs-miner")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to push metrics"))
}

package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"console debug", "debug", "console", false},
		{"defaults", "", "", false},
		{"invalid level", "verbose", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			_ = logger.Sync()
		})
	}
}

func TestRetrievalMetrics_Records(t *testing.T) {
	m := NewRetrievalMetrics()

	m.ObserveRequest("ok", "miss", 120*time.Millisecond)
	m.ObserveRequest("ok", "hit", time.Millisecond)
	m.ObserveRequest("validation", "miss", 0)
	m.ObserveUpstream("remote", "ok", 80*time.Millisecond)
	m.ObserveResult(4, 0.82)
	m.IncExclusion("below_min_score")
	m.IncExclusion("below_min_score")
	m.IncWarning("low_recall", "high")
	m.IncCacheError("get")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("ok", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("validation", "miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.exclusions.WithLabelValues("below_min_score")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warnings.WithLabelValues("low_recall", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheErrors.WithLabelValues("get")))
}

func TestRetrievalMetrics_NilIsNoop(t *testing.T) {
	var m *RetrievalMetrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("ok", "miss", time.Second)
		m.ObserveUpstream("remote", "ok", time.Second)
		m.ObserveResult(1, 0.5)
		m.IncExclusion("excluded_id")
		m.IncWarning("low_relevance", "medium")
		m.IncCacheError("set")
	})
}

func TestRetrievalMetrics_Handler(t *testing.T) {
	m := NewRetrievalMetrics()
	m.IncWarning("insufficient_results", "high")

	ts := httptest.NewServer(m.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `context_retrieval_warnings_total{severity="high",type="insufficient_results"} 1`)
}

func TestInitTracing_Disabled(t *testing.T) {
	tracer, shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "context-retrieval"})
	require.NoError(t, err)
	require.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "retrieval")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_Enabled(t *testing.T) {
	tracer, shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "context-retrieval",
		Endpoint:    "http://127.0.0.1:4318",
		SampleRate:  1,
	})
	require.NoError(t, err)

	_, span := tracer.Start(context.Background(), "retrieval")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// nothing listens on the endpoint, so only check shutdown returns
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}

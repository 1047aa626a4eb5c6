package retrieval

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildResult(t *testing.T) {
	chunks := []Chunk{chunk("a", 0.9), chunk("b", 0.7)}
	m := CalculateMetrics(chunks, 0.9)

	r := BuildResult(chunks, m, nil, "hash", time.Now().Add(-25*time.Millisecond))

	assert.Equal(t, 2, r.TotalRetrieved)
	assert.Equal(t, m.RecallMetrics, r.RecallMetrics)
	assert.Equal(t, "hash", r.QueryHash)
	assert.Equal(t, CacheMiss, r.CacheStatus)
	assert.GreaterOrEqual(t, r.ProcessingTimeMS, int64(25))
	assert.NotNil(t, r.Warnings)
}

func TestBuildResult_StableShape(t *testing.T) {
	r := BuildResult(nil, Metrics{}, nil, "hash", time.Now())
	r.ProcessingTimeMS = 0

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"chunks": [],
		"total_retrieved": 0,
		"recall_metrics": {"recall_score": 0, "avg_score": 0, "score_distribution": {"high": 0, "medium": 0, "low": 0}},
		"query_hash": "hash",
		"processing_time_ms": 0,
		"warnings": [],
		"cache_status": "miss"
	}`, string(data))
}

func TestResult_WithCacheStatus(t *testing.T) {
	orig := BuildResult([]Chunk{chunk("a", 0.9)}, Metrics{}, []Warning{{Type: WarningLowRecall}}, "hash", time.Now())

	hit := orig.WithCacheStatus(CacheHit)

	assert.Equal(t, CacheHit, hit.CacheStatus)
	assert.Equal(t, CacheMiss, orig.CacheStatus)

	hit.CacheStatus = orig.CacheStatus
	assert.Equal(t, orig, hit)
}

func TestResult_WithCacheStatusAfterDecode(t *testing.T) {
	// a cached empty result decodes its lists as empty slices
	var r Result
	require.NoError(t, json.Unmarshal([]byte(`{"query_hash":"h","cache_status":"miss"}`), &r))

	hit := r.WithCacheStatus(CacheHit)
	assert.NotNil(t, hit.Chunks)
	assert.NotNil(t, hit.Warnings)
}

package retrieval

import "time"

// BuildResult assembles the response envelope for a freshly computed result.
// processing_time_ms covers the span from started to now.
func BuildResult(chunks []Chunk, m Metrics, warnings []Warning, queryHash string, started time.Time) *Result {
	if chunks == nil {
		chunks = []Chunk{}
	}
	if warnings == nil {
		warnings = []Warning{}
	}
	return &Result{
		Chunks:           chunks,
		TotalRetrieved:   len(chunks),
		RecallMetrics:    m.RecallMetrics,
		QueryHash:        queryHash,
		ProcessingTimeMS: time.Since(started).Milliseconds(),
		Warnings:         warnings,
		CacheStatus:      CacheMiss,
	}
}

// WithCacheStatus returns a copy of r that differs only in CacheStatus.
func (r *Result) WithCacheStatus(status CacheStatus) *Result {
	cp := *r
	cp.CacheStatus = status
	if cp.Chunks == nil {
		cp.Chunks = []Chunk{}
	}
	if cp.Warnings == nil {
		cp.Warnings = []Warning{}
	}
	return &cp
}

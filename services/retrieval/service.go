package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/context-retrieval/internal/observability"
	"github.com/upb/context-retrieval/services"
	"github.com/upb/context-retrieval/services/cache"
	"github.com/upb/context-retrieval/services/search"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service runs the retrieval pipeline with a read-through result cache.
type Service struct {
	provider search.Provider
	store    cache.Store
	boosts   *BoostTable
	opts     Options
	metrics  *observability.RetrievalMetrics
	tracer   trace.Tracer
	logger   *zap.Logger

	// inflight coalesces concurrent misses on the same cache key
	inflight singleflight.Group
	now      func() time.Time
}

// ServiceDeps groups the collaborators of a Service. Metrics and Tracer are
// optional.
type ServiceDeps struct {
	Provider search.Provider
	Store    cache.Store
	Boosts   *BoostTable
	Metrics  *observability.RetrievalMetrics
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// NewService creates a Service. A nil store disables caching.
func NewService(deps ServiceDeps, opts Options) *Service {
	s := &Service{
		provider: deps.Provider,
		store:    deps.Store,
		boosts:   deps.Boosts,
		opts:     opts,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		logger:   deps.Logger,
		now:      time.Now,
	}
	if s.store == nil {
		s.store = cache.NewNoopStore()
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("retrieval")
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Boosts returns the boost table the service was built with.
func (s *Service) Boosts() *BoostTable {
	return s.boosts
}

// Explanation describes how a request would be executed.
type Explanation struct {
	Request   Request      `json:"request"`
	QueryHash string       `json:"query_hash"`
	CacheKey  string       `json:"cache_key"`
	Query     search.Query `json:"provider_query"`
}

// Explain validates raw and compiles it without calling the provider or cache.
func (s *Service) Explain(raw map[string]any) (*Explanation, error) {
	req, err := ValidateRequest(raw, s.opts)
	if err != nil {
		return nil, err
	}
	hash := DeriveQueryHash(req)
	return &Explanation{
		Request:   req,
		QueryHash: hash,
		CacheKey:  CacheKey(s.opts.CacheKeyPrefix, hash),
		Query:     BuildQuery(req, s.boosts, s.opts),
	}, nil
}

// Retrieve validates an untyped request body and runs the pipeline.
func (s *Service) Retrieve(ctx context.Context, raw map[string]any) (*Result, error) {
	started := s.now()
	req, err := ValidateRequest(raw, s.opts)
	if err != nil {
		s.metrics.ObserveRequest(string(services.GetErrorType(err)), string(CacheMiss), 0)
		return nil, err
	}
	return s.run(ctx, req, started)
}

// RetrieveRequest runs the pipeline for a request produced by ValidateRequest.
func (s *Service) RetrieveRequest(ctx context.Context, req Request) (*Result, error) {
	return s.run(ctx, req, s.now())
}

func (s *Service) run(ctx context.Context, req Request, started time.Time) (*Result, error) {
	hash := DeriveQueryHash(req)
	key := CacheKey(s.opts.CacheKeyPrefix, hash)
	logger := s.logger.With(zap.String("query_hash", hash), zap.String("section_id", req.SectionID))

	ctx, span := s.tracer.Start(ctx, "retrieval.Retrieve", trace.WithAttributes(
		attribute.String("retrieval.query_hash", hash),
		attribute.Int("retrieval.k", req.K),
	))
	defer span.End()

	if cached, ok := s.cacheGet(ctx, key, logger); ok {
		result := cached.WithCacheStatus(CacheHit)
		span.SetAttributes(attribute.String("retrieval.cache_status", string(CacheHit)))
		s.metrics.ObserveRequest("ok", string(CacheHit), s.now().Sub(started))
		logger.Info("retrieval served from cache", zap.Int("total_retrieved", result.TotalRetrieved))
		return result, nil
	}

	result, shared, err := s.awaitCompute(ctx, req, hash, key, started, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ObserveRequest(string(services.GetErrorType(err)), string(CacheMiss), 0)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("retrieval.cache_status", string(CacheMiss)),
		attribute.Int("retrieval.total_retrieved", result.TotalRetrieved),
		attribute.Bool("retrieval.shared", shared),
	)
	s.metrics.ObserveRequest("ok", string(CacheMiss), s.now().Sub(started))
	return result, nil
}

// awaitCompute joins the in-flight computation for key, starting one if
// needed. The computation ignores caller cancellation and is bounded by the
// upstream timeout only. Each caller stops waiting when its own context ends.
func (s *Service) awaitCompute(ctx context.Context, req Request, hash, key string, started time.Time, logger *zap.Logger) (*Result, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(key, func() (interface{}, error) {
		return s.compute(detached, req, hash, key, started, logger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(*Result), res.Shared, nil
	case <-ctx.Done():
		logger.Info("caller stopped waiting for retrieval", zap.Error(ctx.Err()))
		return nil, false, toUpstreamError(ctx.Err())
	}
}

// compute runs steps search through build for one cache miss and stores the
// result. Failures are returned without touching the cache.
func (s *Service) compute(ctx context.Context, req Request, hash, key string, started time.Time, logger *zap.Logger) (*Result, error) {
	query := BuildQuery(req, s.boosts, s.opts)

	resp, err := s.search(ctx, query, logger)
	if err != nil {
		return nil, err
	}

	chunks := FormatChunks(resp.Documents, s.opts.DefaultLanguage)
	logger.Debug("provider documents formatted",
		zap.Int("provider_total", resp.Total),
		zap.Int("documents", len(resp.Documents)),
		zap.Int("chunks", len(chunks)))

	quality := ApplyQualityFilter(chunks, req, s.opts)
	for _, ex := range quality.Excluded {
		s.metrics.IncExclusion(string(ex.Reason))
		logger.Debug("chunk excluded", zap.String("chunk_id", ex.ChunkID), zap.String("reason", string(ex.Reason)))
	}

	metrics := CalculateMetrics(quality.Chunks, s.opts.NearDuplicateSimilarity)
	warnings := GenerateWarnings(quality.Chunks, metrics, req, s.opts)
	for _, w := range warnings {
		s.metrics.IncWarning(string(w.Type), string(w.Severity))
	}

	result := BuildResult(quality.Chunks, metrics, warnings, hash, started)
	s.metrics.ObserveResult(result.TotalRetrieved, result.RecallMetrics.RecallScore)

	s.cacheSet(ctx, key, result, logger)

	logger.Info("retrieval completed",
		zap.String("cache_status", string(result.CacheStatus)),
		zap.Int("total_retrieved", result.TotalRetrieved),
		zap.Int("excluded", len(quality.Excluded)),
		zap.Int("truncated", quality.Truncated),
		zap.Float64("recall_score", result.RecallMetrics.RecallScore),
		zap.Float64("duplicate_ratio", metrics.DuplicateRatio),
		zap.Float64("near_duplicate_ratio", metrics.NearDuplicateRatio),
		zap.Int64("processing_time_ms", result.ProcessingTimeMS),
		zap.Int("warnings", len(result.Warnings)))

	return result, nil
}

// search makes the single provider call under the upstream timeout.
func (s *Service) search(ctx context.Context, query search.Query, logger *zap.Logger) (*search.Response, error) {
	if s.opts.UpstreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.UpstreamTimeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "retrieval.search", trace.WithAttributes(
		attribute.String("search.provider", s.provider.Name()),
		attribute.Int("search.limit", query.Limit),
		attribute.String("search.filter", query.Filter),
	))
	defer span.End()

	start := s.now()
	resp, err := s.provider.Search(ctx, query)
	elapsed := s.now().Sub(start)
	if err != nil {
		upstreamErr := toUpstreamError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, upstreamErr.Message)
		s.metrics.ObserveUpstream(s.provider.Name(), "error", elapsed)
		logger.Error("vector search failed",
			zap.String("provider", s.provider.Name()),
			zap.Int("upstream_status", services.UpstreamStatus(upstreamErr)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, upstreamErr
	}

	s.metrics.ObserveUpstream(s.provider.Name(), "ok", elapsed)
	span.SetAttributes(attribute.Int("search.documents", len(resp.Documents)))
	return resp, nil
}

// toUpstreamError maps a provider failure to the domain taxonomy. The
// message never includes the provider's response body.
func toUpstreamError(err error) *services.DomainError {
	pe, ok := search.AsProviderError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return services.NewUpstreamError(http.StatusGatewayTimeout, "vector search timed out", err).
				WithDetail(services.DetailTimeout, true)
		}
		return services.NewUpstreamError(0, "vector search failed", err)
	}

	switch pe.Code {
	case search.CodeTimeout:
		return services.NewUpstreamError(http.StatusGatewayTimeout, "vector search timed out", err).
			WithDetail(services.DetailTimeout, true)
	case search.CodeMalformed:
		return services.NewUpstreamError(pe.StatusCode, "vector search returned a malformed response", err).
			WithDetail(services.DetailMalformedResponse, true)
	case search.CodeStatus:
		return services.NewUpstreamError(pe.StatusCode, fmt.Sprintf("vector search returned status %d", pe.StatusCode), err)
	default:
		return services.NewUpstreamError(pe.StatusCode, "vector search unavailable", err)
	}
}

// cacheGet reads and decodes a cached result. Any failure is logged and
// treated as a miss.
func (s *Service) cacheGet(ctx context.Context, key string, logger *zap.Logger) (*Result, bool) {
	ctx, span := s.tracer.Start(ctx, "retrieval.cache_get")
	defer span.End()

	data, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.cacheFailed(span, logger, services.NewCacheError("get", err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		s.cacheFailed(span, logger, services.NewCacheError("decode", err))
		return nil, false
	}
	return &result, true
}

// cacheSet stores a computed result. A failure is logged; the result is
// still returned to the caller.
func (s *Service) cacheSet(ctx context.Context, key string, result *Result, logger *zap.Logger) {
	ctx, span := s.tracer.Start(ctx, "retrieval.cache_set")
	defer span.End()

	data, err := json.Marshal(result)
	if err != nil {
		s.cacheFailed(span, logger, services.NewCacheError("encode", err))
		return
	}
	if err := s.store.Set(ctx, key, data, s.opts.CacheTTL); err != nil {
		s.cacheFailed(span, logger, services.NewCacheError("set", err))
	}
}

func (s *Service) cacheFailed(span trace.Span, logger *zap.Logger, err *services.DomainError) {
	op, _ := err.Details[services.DetailCacheOperation].(string)
	span.RecordError(err)
	s.metrics.IncCacheError(op)
	logger.Warn("cache unavailable, continuing as miss", zap.String("operation", op), zap.Error(err))
}

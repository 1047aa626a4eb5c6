package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/upb/context-retrieval/middleware"
	"github.com/upb/context-retrieval/services"
	"github.com/upb/context-retrieval/services/retrieval"
	"github.com/upb/context-retrieval/utils"
	"go.uber.org/zap"
)

// Response headers echoing the result
const (
	HeaderQueryHash   = "X-Query-Hash"
	HeaderCacheStatus = "X-Cache-Status"
)

// maxRequestBytes bounds a retrieval request body
const maxRequestBytes = 64 << 10

// RetrievalService defines the pipeline operations exposed over HTTP
type RetrievalService interface {
	Retrieve(ctx context.Context, raw map[string]any) (*retrieval.Result, error)
	Explain(raw map[string]any) (*retrieval.Explanation, error)
	Boosts() *retrieval.BoostTable
}

// RetrievalHandler handles retrieval HTTP requests
type RetrievalHandler struct {
	service RetrievalService
	logger  *zap.Logger
}

// NewRetrievalHandler creates a new RetrievalHandler
func NewRetrievalHandler(service RetrievalService, logger *zap.Logger) *RetrievalHandler {
	return &RetrievalHandler{
		service: service,
		logger:  logger,
	}
}

// HandleRetrieve handles POST /api/v1/retrieve
func (h *RetrievalHandler) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeBody(w, r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	result, err := h.service.Retrieve(r.Context(), raw)
	if err != nil {
		h.logger.Debug("retrieval failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	w.Header().Set(HeaderQueryHash, result.QueryHash)
	w.Header().Set(HeaderCacheStatus, string(result.CacheStatus))
	if err := utils.WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("failed to write retrieval response", zap.Error(err))
	}
}

// HandleExplain handles POST /api/v1/retrieve/explain
func (h *RetrievalHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeBody(w, r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	explanation, err := h.service.Explain(raw)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	w.Header().Set(HeaderQueryHash, explanation.QueryHash)
	if err := utils.WriteOK(w, explanation); err != nil {
		h.logger.Error("failed to write explain response", zap.Error(err))
	}
}

// HandleBoostProfiles handles GET /api/v1/boost-profiles
func (h *RetrievalHandler) HandleBoostProfiles(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.service.Boosts()); err != nil {
		h.logger.Error("failed to write boost profiles response", zap.Error(err))
	}
}

// decodeBody reads a JSON object body. Numbers are kept as json.Number so
// integral checks on k see the literal the caller sent.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, bodyViolation("request body is too large")
		}
		return nil, bodyViolation("request body could not be read")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, bodyViolation("request body must be a JSON object")
	}
	if dec.More() {
		return nil, bodyViolation("request body must contain a single JSON object")
	}
	return raw, nil
}

func bodyViolation(message string) error {
	return services.NewValidationError([]services.Violation{{Field: "body", Message: message}})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/context-retrieval/services"
	"github.com/upb/context-retrieval/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var domainErr *services.DomainError
	errors.As(err, &domainErr)

	switch {
	case services.IsValidationError(err):
		violations := services.GetViolations(err)
		if violations == nil {
			violations = []services.Violation{}
		}
		if err := utils.WriteValidationFailed(w, domainErr.Message, violations); err != nil {
			logger.Error("failed to write validation response", zap.Error(err))
		}

	case services.IsUpstreamError(err):
		// Only the domain message and status leave the service; the wrapped
		// provider error may carry the upstream body.
		details := map[string]interface{}{
			services.DetailUpstreamStatus: services.UpstreamStatus(err),
		}
		if services.IsUpstreamTimeout(err) {
			details[services.DetailTimeout] = true
		}
		if malformed, _ := domainErr.Details[services.DetailMalformedResponse].(bool); malformed {
			details[services.DetailMalformedResponse] = true
		}
		if err := utils.WriteUpstreamError(w, services.IsUpstreamTimeout(err), domainErr.Message, details); err != nil {
			logger.Error("failed to write upstream error response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		if err := utils.WriteUnauthorized(w, domainErr.Message); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, domainErr.Message); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}

	if domainErr != nil {
		logger.Debug("handled service error",
			zap.String("type", string(domainErr.Type)),
			zap.String("message", domainErr.Message))
	}
}

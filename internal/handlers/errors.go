package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/url-shortener/internal/apperr"
	"go.uber.org/zap"
)

const msgInternal = "internal server error"

// toHTTPError translates a classified service failure into a huma status
// error. Unclassified failures are logged and hidden behind a 500.
func toHTTPError(logger *zap.Logger, operation string, err error) error {
	msg := apperr.Message(err, msgInternal)

	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return huma.Error400BadRequest(msg)
	case errors.Is(err, apperr.ErrUnauthorized):
		return huma.Error401Unauthorized(msg)
	case errors.Is(err, apperr.ErrForbidden):
		return huma.Error403Forbidden(msg)
	case errors.Is(err, apperr.ErrNotFound):
		return huma.Error404NotFound(msg)
	case errors.Is(err, apperr.ErrConflict):
		return huma.Error409Conflict(msg)
	}

	logger.Error("request failed",
		zap.String("operation", operation),
		zap.Error(err),
	)

	return huma.Error500InternalServerError(msgInternal)
}

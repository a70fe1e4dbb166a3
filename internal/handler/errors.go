package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"notetree-server/internal/service"
	"notetree-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// writeError maps service error kinds to HTTP status codes. Storage failures
// are logged and reported without details.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		response.BadRequest(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		response.Conflict(w, err.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		response.InternalError(w, "internal error")
	}
}

// decodeRequest reads a JSON body into v and validates it, writing the error
// response itself when it returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, "Invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		response.ValidationFailed(w, err)
		return false
	}
	return true
}

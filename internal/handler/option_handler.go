package handler

import (
	"net/http"

	"notetree-server/internal/domain"
	"notetree-server/internal/service"
	"notetree-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type OptionHandler struct {
	service  *service.OptionService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewOptionHandler(service *service.OptionService, logger *zap.Logger) *OptionHandler {
	return &OptionHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.Named("options_handler"),
	}
}

func (h *OptionHandler) GetSnapshotInterval(w http.ResponseWriter, r *http.Request) {
	interval, err := h.service.SnapshotInterval(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, domain.SnapshotIntervalRequest{Seconds: int(interval.Seconds())})
}

func (h *OptionHandler) SetSnapshotInterval(w http.ResponseWriter, r *http.Request) {
	var req domain.SnapshotIntervalRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	if err := h.service.SetSnapshotInterval(r.Context(), req.Seconds); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, req)
}

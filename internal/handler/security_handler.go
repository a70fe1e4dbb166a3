package handler

import (
	"net/http"

	"notetree-server/internal/domain"
	"notetree-server/internal/middleware"
	"notetree-server/internal/service"
	"notetree-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type SecurityHandler struct {
	service  *service.SecurityService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewSecurityHandler(service *service.SecurityService, logger *zap.Logger) *SecurityHandler {
	return &SecurityHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.Named("security_handler"),
	}
}

func (h *SecurityHandler) OpenProtectedSession(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenProtectedSessionRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	resp, err := h.service.OpenProtectedSession(r.Context(), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("protected session opened", zap.String("actor_id", middleware.GetActorID(r)))
	response.Created(w, resp)
}

func (h *SecurityHandler) CloseProtectedSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(middleware.ProtectedSessionHeader)
	if sessionID == "" {
		response.BadRequest(w, middleware.ProtectedSessionHeader+" header is required")
		return
	}

	if err := h.service.CloseProtectedSession(sessionID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.NoContent(w)
}

package handler

import (
	"net/http"

	"notetree-server/internal/domain"
	"notetree-server/internal/service"
	"notetree-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService     *service.AuthService
	securityService *service.SecurityService
	validator       *validator.Validate
	logger          *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, securityService *service.SecurityService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:     authService,
		securityService: securityService,
		validator:       validator.New(),
		logger:          logger.Named("auth_handler"),
	}
}

// Setup sets the password on a fresh instance.
func (h *AuthHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req domain.SetupPasswordRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	if err := h.securityService.Setup(r.Context(), &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Created(w, map[string]string{
		"message": "Password set up. Please login.",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	loginResp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		h.logger.Info("login rejected", zap.String("browser_id", req.BrowserID))
		response.Unauthorized(w, "invalid credentials")
		return
	}

	response.Success(w, loginResp)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if !decodeRequest(w, r, h.validator, &req) {
		return
	}

	tokenResp, err := h.authService.RefreshToken(&req)
	if err != nil {
		response.Unauthorized(w, err.Error())
		return
	}

	response.Success(w, tokenResp)
}

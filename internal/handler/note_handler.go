package handler

import (
	"net/http"

	"notetree-server/internal/domain"
	"notetree-server/internal/middleware"
	"notetree-server/internal/service"
	"notetree-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type NoteHandler struct {
	service  *service.NoteService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewNoteHandler(service *service.NoteService, logger *zap.Logger) *NoteHandler {
	return &NoteHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.Named("notes_handler"),
	}
}

// Create handles both POST /notes (top level) and POST /notes/{parentId}/children.
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	parentID := mux.Vars(r)["parentId"]

	resp, err := h.service.Create(r.Context(), parentID, &req, middleware.GetActorID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Created(w, resp)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	note, err := h.service.Get(r.Context(), noteID, middleware.Session(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	var req domain.UpdateNoteRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	if err := h.service.Update(r.Context(), noteID, &req, middleware.Session(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.NoContent(w)
}

func (h *NoteHandler) History(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	history, err := h.service.ListHistory(r.Context(), noteID, middleware.Session(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, history)
}

func (h *NoteHandler) Protect(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]

	var req domain.ProtectRequest
	if !decodeRequest(w, r, h.validate, &req) {
		return
	}

	if err := h.service.ProtectRecursively(r.Context(), noteID, middleware.Session(r), req.Protect); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.NoContent(w)
}

func (h *NoteHandler) DeletePlacement(w http.ResponseWriter, r *http.Request) {
	placementID := mux.Vars(r)["id"]

	if err := h.service.DeleteByPlacement(r.Context(), placementID, middleware.GetActorID(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.NoContent(w)
}

package handler

import (
	"net/http"
	"strconv"

	"notetree-server/internal/service"
	"notetree-server/pkg/response"

	"go.uber.org/zap"
)

type SyncHandler struct {
	syncService *service.SyncService
	logger      *zap.Logger
}

func NewSyncHandler(syncService *service.SyncService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		logger:      logger.Named("sync_handler"),
	}
}

// GetChanges returns change records after the "since" cursor. "limit" is optional.
func (h *SyncHandler) GetChanges(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var since int64
	if v := query.Get("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			response.BadRequest(w, "invalid since parameter")
			return
		}
		since = parsed
	}

	var limit int
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	res, err := h.syncService.GetChangesSince(r.Context(), since, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, res)
}

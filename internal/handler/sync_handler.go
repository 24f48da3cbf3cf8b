package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"notes-sync-server/internal/domain"
	"notes-sync-server/internal/middleware"
	"notes-sync-server/internal/service"
	"notes-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
)

type SyncHandler struct {
	syncService *service.SyncService
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewSyncHandler(syncService *service.SyncService, logger *slog.Logger) *SyncHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncHandler{
		syncService: syncService,
		validate:    validator.New(),
		logger:      logger,
	}
}

// Pull serves GET /sync/notes?since=<timestamp>. Without since every record
// is returned.
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := domain.ParseCursor(raw)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		since = &t
	}

	notes, err := h.syncService.Pull(r.Context(), since)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, notes)
}

// Push serves POST /sync/push. Per-change failures are reported in the
// results, so the status is 200 whenever the batch itself was well formed.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	var req domain.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	results := h.syncService.Push(r.Context(), middleware.GetUserID(r), middleware.GetDeviceID(r), req.Changes)
	response.Success(w, domain.PushResponse{Results: results})
}

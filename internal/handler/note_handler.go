package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"notes-sync-server/internal/domain"
	"notes-sync-server/internal/middleware"
	"notes-sync-server/internal/service"
	"notes-sync-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type NoteHandler struct {
	service  *service.NoteService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewNoteHandler(service *service.NoteService, logger *slog.Logger) *NoteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoteHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Create(r.Context(), middleware.GetUserID(r), middleware.GetDeviceID(r), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	note, err := h.service.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Update(r.Context(), middleware.GetUserID(r), middleware.GetDeviceID(r), mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if err := h.service.Delete(r.Context(), middleware.GetUserID(r), middleware.GetDeviceID(r), noteID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, map[string]string{"message": "Note deleted successfully"})
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"notes-sync-server/internal/domain"
	"notes-sync-server/internal/repository"
	"notes-sync-server/internal/service"
	"notes-sync-server/pkg/response"
)

// writeError maps a service or store error onto the response envelope.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var conflict *service.ConflictError

	switch {
	case errors.Is(err, domain.ErrMalformedTimestamp):
		response.BadRequest(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, "Note not found")
	case errors.As(err, &conflict):
		response.Conflict(w, "Server version has changed", map[string]string{
			"id":   conflict.NoteID,
			"hash": conflict.CurrentHash,
		})
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(w, "Incorrect username or password")
	case errors.Is(err, service.ErrInvalidToken):
		response.Unauthorized(w, "Invalid or expired token")
	case errors.Is(err, repository.ErrStoreUnavailable):
		logger.Error("store unavailable", "error", err)
		response.ServiceUnavailable(w, "Note store unavailable")
	default:
		logger.Error("request failed", "error", err)
		response.InternalError(w, "Internal server error")
	}
}

package handler

import (
	"log/slog"
	"net/http"

	"notes-sync-server/internal/middleware"
	"notes-sync-server/pkg/response"

	"github.com/gorilla/mux"
)

type Handlers struct {
	Auth      *AuthHandler
	Notes     *NoteHandler
	Sync      *SyncHandler
	WebSocket *WebSocketHandler
}

type CORSOptions struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

func NewRouter(h Handlers, tokens middleware.TokenValidator, cors CORSOptions, logger *slog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(cors.AllowedOrigins, cors.AllowedMethods, cors.AllowedHeaders))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/login", h.Auth.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", h.Auth.Refresh).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(tokens))

	protected.HandleFunc("/notes", h.Notes.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes", h.Notes.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Notes.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Notes.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Notes.Delete).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/sync/notes", h.Sync.Pull).Methods("GET", "OPTIONS")
	protected.HandleFunc("/sync/push", h.Sync.Push).Methods("POST", "OPTIONS")

	if h.WebSocket != nil {
		r.HandleFunc("/ws", h.WebSocket.HandleConnection)
	}

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.HandleFunc("/", rootHandler).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{
		"status":  "healthy",
		"service": "notes-sync-server",
	})
}

func rootHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]interface{}{
		"message": "Notes Sync Server API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"/api/v1/auth/login":   "POST",
			"/api/v1/auth/refresh": "POST",
			"/api/v1/notes":        "GET, POST (protected)",
			"/api/v1/notes/{id}":   "GET, PUT, DELETE (protected)",
			"/api/v1/sync/notes":   "GET ?since= (protected)",
			"/api/v1/sync/push":    "POST (protected)",
			"/ws":                  "GET ?token=&device_id=",
		},
	})
}

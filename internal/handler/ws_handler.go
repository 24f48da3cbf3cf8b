package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"notes-sync-server/internal/domain"
	"notes-sync-server/internal/middleware"
	"notes-sync-server/internal/service"
	"notes-sync-server/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager   *websocket.Manager
	validator middleware.TokenValidator
	upgrader  ws.Upgrader
	logger    *slog.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, validator middleware.TokenValidator, readBuf, writeBuf int, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		manager:   manager,
		validator: validator,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Browsers are already filtered by CORS and the token check.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With("component", "websocket"),
	}
}

// HandleConnection upgrades GET /ws. The bearer token comes from the token
// query parameter or the Authorization header.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = r.Header.Get(middleware.DeviceIDHeader)
	}
	if deviceID == "" {
		deviceID = "default"
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), claims.UserID, deviceID, conn, h.manager)
	if !h.manager.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// WebSocketMessageHandler answers client messages arriving through the hub.
type WebSocketMessageHandler struct {
	syncService *service.SyncService
	manager     *websocket.Manager
}

func NewWebSocketMessageHandler(syncService *service.SyncService, manager *websocket.Manager) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{
		syncService: syncService,
		manager:     manager,
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeSyncRequest:
		if err := h.handleSyncRequest(ctx, client, msg); err != nil {
			h.reply(client, websocket.TypeError, &websocket.ErrorPayload{Message: err.Error()})
			return err
		}
		return nil

	case websocket.TypePing:
		return h.reply(client, websocket.TypePong, nil)

	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (h *WebSocketMessageHandler) handleSyncRequest(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.SyncRequestPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return err
	}

	var since *time.Time
	if payload.Since != "" {
		t, err := domain.ParseCursor(payload.Since)
		if err != nil {
			return err
		}
		since = &t
	}

	syncTime := time.Now().UTC()
	notes, err := h.syncService.Pull(ctx, since)
	if err != nil {
		return err
	}

	return h.reply(client, websocket.TypeSyncResponse, &websocket.SyncResponsePayload{
		Notes:    notes,
		SyncTime: syncTime,
	})
}

func (h *WebSocketMessageHandler) reply(client *websocket.Client, msgType websocket.MessageType, payload interface{}) error {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return h.manager.SendToClient(client, msg)
}

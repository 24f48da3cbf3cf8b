package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type MessageHandler interface {
	HandleWebSocketMessage(ctx context.Context, client *Client, msg *Message) error
}

type Options struct {
	MaxConnPerUser int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

// Manager is the connection hub. Registration, unregistration and inbound
// messages are serialized through Run.
type Manager struct {
	clients      map[string]*Client
	userIndex    map[string]map[string]bool
	clientsMutex sync.RWMutex

	registerCh    chan *Client
	unregisterCh  chan *Client
	handleMessage chan *ClientMessage
	done          chan struct{}
	stopped       bool

	maxConnPerUser int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64

	messageHandler MessageHandler
	logger         *slog.Logger
}

func NewManager(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 1 << 20
	}
	return &Manager{
		clients:        make(map[string]*Client),
		userIndex:      make(map[string]map[string]bool),
		registerCh:     make(chan *Client),
		unregisterCh:   make(chan *Client),
		handleMessage:  make(chan *ClientMessage),
		done:           make(chan struct{}),
		maxConnPerUser: opts.MaxConnPerUser,
		writeWait:      opts.WriteWait,
		pongWait:       opts.PongWait,
		pingPeriod:     opts.PingPeriod,
		maxMessageSize: opts.MaxMessageSize,
		logger:         logger.With("component", "websocket"),
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

// Run serves the hub until ctx is cancelled. On return every registered
// client's Send channel is closed.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil

		case client := <-m.registerCh:
			m.registerClient(client)

		case client := <-m.unregisterCh:
			m.unregisterClient(client)

		case clientMsg := <-m.handleMessage:
			m.processMessage(ctx, clientMsg)
		}
	}
}

// Register hands client to the hub. It reports false if the hub is stopped.
func (m *Manager) Register(client *Client) bool {
	select {
	case m.registerCh <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) unregister(client *Client) {
	select {
	case m.unregisterCh <- client:
	case <-m.done:
	}
}

func (m *Manager) shutdown() {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	m.stopped = true
	close(m.done)
	for id, client := range m.clients {
		close(client.Send)
		delete(m.clients, id)
	}
	m.userIndex = make(map[string]map[string]bool)
	m.logger.Info("websocket hub stopped")
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.userIndex[client.UserID] == nil {
		m.userIndex[client.UserID] = make(map[string]bool)
	}

	if m.maxConnPerUser > 0 && len(m.userIndex[client.UserID]) >= m.maxConnPerUser {
		m.logger.Warn("max connections reached", "user_id", client.UserID)
		close(client.Send)
		return
	}

	m.clients[client.ID] = client
	m.userIndex[client.UserID][client.ID] = true

	m.logger.Info("client registered", "client_id", client.ID, "user_id", client.UserID, "device_id", client.DeviceID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.userIndex[client.UserID], client.ID)

		if len(m.userIndex[client.UserID]) == 0 {
			delete(m.userIndex, client.UserID)
		}

		close(client.Send)
		m.logger.Info("client unregistered", "client_id", client.ID)
	}
}

func (m *Manager) processMessage(ctx context.Context, clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Warn("malformed websocket message", "client_id", clientMsg.Client.ID, "error", err)
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(ctx, clientMsg.Client, &msg); err != nil {
			m.logger.Warn("websocket message failed", "client_id", clientMsg.Client.ID, "type", msg.Type, "error", err)
		}
	}
}

// BroadcastToUser queues message for every connection of userID except the
// ones registered under excludeDeviceID. Clients whose buffer is full are
// dropped.
func (m *Manager) BroadcastToUser(userID string, message *Message, excludeDeviceID string) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if m.stopped {
		return nil
	}

	for clientID := range m.userIndex[userID] {
		client := m.clients[clientID]
		if excludeDeviceID != "" && client.DeviceID == excludeDeviceID {
			continue
		}
		select {
		case client.Send <- messageBytes:
		default:
			m.logger.Warn("send buffer full, dropping client", "client_id", clientID)
			go m.unregister(client)
		}
	}

	return nil
}

func (m *Manager) SendToClient(client *Client, message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	if _, ok := m.clients[client.ID]; !ok {
		return nil
	}

	select {
	case client.Send <- messageBytes:
	default:
		m.logger.Warn("send buffer full", "client_id", client.ID)
	}

	return nil
}

func (m *Manager) GetUserConnections(userID string) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	return len(m.userIndex[userID])
}

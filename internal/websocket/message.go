package websocket

import (
	"encoding/json"
	"time"

	"notes-sync-server/internal/domain"
)

type MessageType string

const (
	TypeSyncRequest  MessageType = "sync_request"
	TypeSyncResponse MessageType = "sync_response"
	TypeNoteUpdate   MessageType = "note_update"
	TypeNoteDelete   MessageType = "note_delete"
	TypeError        MessageType = "error"
	TypePing         MessageType = "ping"
	TypePong         MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SyncRequestPayload asks for a Pull over the socket. An empty Since means
// a full snapshot.
type SyncRequestPayload struct {
	Since string `json:"since,omitempty"`
}

type SyncResponsePayload struct {
	Notes    []domain.SyncNote `json:"notes"`
	SyncTime time.Time         `json:"sync_time"`
}

type NoteUpdatePayload struct {
	NoteID    string    `json:"note_id"`
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
	DeviceID  string    `json:"device_id"`
}

type NoteDeletePayload struct {
	NoteID    string    `json:"note_id"`
	UpdatedAt time.Time `json:"updated_at"`
	DeviceID  string    `json:"device_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

package websocket

import (
	"encoding/json"
	"time"

	"notetree-server/internal/domain"
)

type MessageType string

const (
	TypeSyncRequest   MessageType = "sync_request"
	TypeSyncResponse  MessageType = "sync_response"
	TypeEntityChanged MessageType = "entity_changed"
	TypeError         MessageType = "error"
	TypePing          MessageType = "ping"
	TypePong          MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// SyncRequestPayload asks for change records after LastSyncID.
type SyncRequestPayload struct {
	LastSyncID int64 `json:"last_sync_id"`
}

type SyncResponsePayload struct {
	Changes    []*domain.ChangeRecord `json:"changes"`
	LastSyncID int64                  `json:"last_sync_id"`
	HasMore    bool                   `json:"has_more"`
}

type EntityChangedPayload struct {
	ActorID string                 `json:"actor_id"`
	Changes []*domain.ChangeRecord `json:"changes"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   raw,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

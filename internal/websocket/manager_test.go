package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"notetree-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(maxConn int) *Manager {
	return NewManager(Options{
		MaxConnPerActor: maxConn,
		MaxMessageSize:  1024,
		WriteWait:       time.Second,
		PongWait:        time.Minute,
		PingPeriod:      50 * time.Second,
	}, zap.NewNop())
}

func TestManager_RegisterRespectsLimit(t *testing.T) {
	m := newTestManager(1)

	c1 := NewClient("c1", "browser-1", nil, m)
	rejected := NewClient("c2", "browser-1", nil, m)
	m.registerClient(c1)
	m.registerClient(rejected)
	m.registerClient(NewClient("c3", "browser-2", nil, m))

	assert.Equal(t, 2, m.ConnectionCount())

	// the write pump of a rejected client must see Send closed
	_, open := <-rejected.Send
	assert.False(t, open)
	assert.False(t, rejected.Enqueue([]byte("late")))

	// its read pump still unregisters it on exit
	m.unregisterClient(rejected)
	assert.Equal(t, 2, m.ConnectionCount())

	m.unregisterClient(c1)
	assert.Equal(t, 1, m.ConnectionCount())
	assert.NotContains(t, m.actorIndex, "browser-1")

	_, open = <-c1.Send
	assert.False(t, open)
}

func TestClient_EnqueueAfterClose(t *testing.T) {
	c := NewClient("c1", "browser-1", nil, nil)

	assert.True(t, c.Enqueue([]byte("a")))
	c.close()
	c.close()
	assert.False(t, c.Enqueue([]byte("b")))

	assert.Equal(t, []byte("a"), <-c.Send)
	_, open := <-c.Send
	assert.False(t, open)
}

func TestManager_BroadcastSkipsActor(t *testing.T) {
	m := newTestManager(5)

	own := NewClient("c1", "browser-1", nil, m)
	other := NewClient("c2", "browser-2", nil, m)
	m.registerClient(own)
	m.registerClient(other)

	msg, err := NewMessage(TypeEntityChanged, &EntityChangedPayload{
		ActorID: "browser-1",
		Changes: []*domain.ChangeRecord{{ID: 7, EntityName: domain.EntityNote, EntityID: "n1"}},
	})
	require.NoError(t, err)
	require.NoError(t, m.Broadcast(msg, "browser-1"))

	assert.Empty(t, own.Send)
	require.Len(t, other.Send, 1)

	var got Message
	require.NoError(t, json.Unmarshal(<-other.Send, &got))
	assert.Equal(t, TypeEntityChanged, got.Type)

	var payload EntityChangedPayload
	require.NoError(t, got.UnmarshalPayload(&payload))
	require.Len(t, payload.Changes, 1)
	assert.Equal(t, "n1", payload.Changes[0].EntityID)
}

type recordingHandler struct {
	types []MessageType
}

func (h *recordingHandler) HandleWebSocketMessage(client *Client, msg *Message) error {
	h.types = append(h.types, msg.Type)
	return nil
}

func TestManager_ProcessMessage(t *testing.T) {
	m := newTestManager(5)
	h := &recordingHandler{}
	m.SetMessageHandler(h)

	client := NewClient("c1", "browser-1", nil, m)
	m.processMessage(&ClientMessage{Client: client, Message: []byte(`{"type":"ping"}`)})
	m.processMessage(&ClientMessage{Client: client, Message: []byte(`not json`)})

	assert.Equal(t, []MessageType{TypePing}, h.types)
}

package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Options holds connection limits and timings shared by every client.
type Options struct {
	MaxConnPerActor int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
}

// Manager tracks connected replicas and fans change notifications out to them.
type Manager struct {
	clients        map[string]*Client
	actorIndex     map[string]map[string]bool
	clientsMutex   sync.RWMutex
	Register       chan *Client
	Unregister     chan *Client
	HandleMessage  chan *ClientMessage
	opts           Options
	messageHandler MessageHandler
	logger         *zap.Logger
}

type MessageHandler interface {
	HandleWebSocketMessage(client *Client, msg *Message) error
}

func NewManager(opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		clients:       make(map[string]*Client),
		actorIndex:    make(map[string]map[string]bool),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		HandleMessage: make(chan *ClientMessage),
		opts:          opts,
		logger:        logger.Named("websocket"),
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if m.actorIndex[client.ActorID] == nil {
		m.actorIndex[client.ActorID] = make(map[string]bool)
	}

	if len(m.actorIndex[client.ActorID]) >= m.opts.MaxConnPerActor {
		m.logger.Warn("max connections reached", zap.String("actor_id", client.ActorID))
		// the write pump sends a close frame and drops the connection
		client.close()
		return
	}

	m.clients[client.ID] = client
	m.actorIndex[client.ActorID][client.ID] = true

	m.logger.Info("client registered", zap.String("client_id", client.ID), zap.String("actor_id", client.ActorID))
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		delete(m.actorIndex[client.ActorID], client.ID)

		if len(m.actorIndex[client.ActorID]) == 0 {
			delete(m.actorIndex, client.ActorID)
		}

		client.close()
		m.logger.Info("client unregistered", zap.String("client_id", client.ID))
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.logger.Warn("error unmarshaling message", zap.Error(err))
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleWebSocketMessage(clientMsg.Client, &msg); err != nil {
			m.logger.Warn("error handling message", zap.Error(err), zap.String("type", string(msg.Type)))
		}
	}
}

// Broadcast sends message to every connected client except those belonging
// to excludeActorID, which already knows about its own changes.
func (m *Manager) Broadcast(message *Message, excludeActorID string) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.clientsMutex.RLock()
	var stale []*Client
	for _, client := range m.clients {
		if client.ActorID == excludeActorID {
			continue
		}
		if !client.Enqueue(messageBytes) {
			m.logger.Warn("client send buffer full, closing connection", zap.String("client_id", client.ID))
			stale = append(stale, client)
		}
	}
	m.clientsMutex.RUnlock()

	for _, client := range stale {
		go func(c *Client) { m.Unregister <- c }(client)
	}
	return nil
}

func (m *Manager) SendToClient(clientID string, message *Message) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return nil
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	if !client.Enqueue(messageBytes) {
		m.logger.Warn("client send buffer full", zap.String("client_id", clientID))
	}

	return nil
}

func (m *Manager) ConnectionCount() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

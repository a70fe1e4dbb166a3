package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"notetree-server/internal/service"
	"notetree-server/internal/websocket"
	"notetree-server/pkg/jwt"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	manager   *websocket.Manager
	jwtSecret string
	upgrader  ws.Upgrader
	logger    *zap.Logger
}

func NewWebSocketHandler(manager *websocket.Manager, jwtSecret string, readBufferSize, writeBufferSize int, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager:   manager,
		jwtSecret: jwtSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.Named("ws_handler"),
	}
}

// HandleConnection authenticates with a token from the query string (browsers
// cannot set headers on websocket requests) or the Authorization header.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	claims, err := jwt.ValidateToken(token, h.jwtSecret)
	if err != nil {
		h.logger.Debug("token validation failed", zap.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	client := websocket.NewClient(uuid.New().String(), claims.ActorID, conn, h.manager)
	h.manager.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// WebSocketMessageHandler answers requests sent by replicas over the socket.
type WebSocketMessageHandler struct {
	syncService *service.SyncService
	logger      *zap.Logger
}

func NewWebSocketMessageHandler(syncService *service.SyncService, logger *zap.Logger) *WebSocketMessageHandler {
	return &WebSocketMessageHandler{
		syncService: syncService,
		logger:      logger.Named("ws_messages"),
	}
}

func (h *WebSocketMessageHandler) HandleWebSocketMessage(client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeSyncRequest:
		return h.handleSyncRequest(client, msg)

	case websocket.TypePing:
		return send(client, websocket.TypePong, nil)

	default:
		h.logger.Debug("unknown message type", zap.String("type", string(msg.Type)))
		return send(client, websocket.TypeError, &websocket.ErrorPayload{Message: "unknown message type"})
	}
}

func (h *WebSocketMessageHandler) handleSyncRequest(client *websocket.Client, msg *websocket.Message) error {
	var payload websocket.SyncRequestPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return send(client, websocket.TypeError, &websocket.ErrorPayload{Message: "invalid sync request"})
	}

	res, err := h.syncService.GetChangesSince(context.Background(), payload.LastSyncID, 0)
	if err != nil {
		return err
	}

	return send(client, websocket.TypeSyncResponse, &websocket.SyncResponsePayload{
		Changes:    res.Changes,
		LastSyncID: res.LastID,
		HasMore:    len(res.Changes) == service.MaxChangesPerPage,
	})
}

func send(client *websocket.Client, msgType websocket.MessageType, payload any) error {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if !client.Enqueue(data) {
		return fmt.Errorf("client %s is not accepting messages", client.ID)
	}
	return nil
}

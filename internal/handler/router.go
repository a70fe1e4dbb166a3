package handler

import (
	"context"
	"net/http"

	"notetree-server/internal/middleware"
	"notetree-server/pkg/response"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type Handlers struct {
	Auth      *AuthHandler
	Security  *SecurityHandler
	Note      *NoteHandler
	Sync      *SyncHandler
	Option    *OptionHandler
	WebSocket *WebSocketHandler
}

func NewRouter(cfg RouterConfig, h *Handlers, keys middleware.DataKeyLookup, store Pinger, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins, cfg.AllowedMethods, cfg.AllowedHeaders))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/setup", h.Auth.Setup).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", h.Auth.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", h.Auth.Refresh).Methods("POST", "OPTIONS")

	// opening a session must work while the client still holds a stale session id
	api.Handle("/protected-session",
		middleware.AuthMiddleware(cfg.JWTSecret)(http.HandlerFunc(h.Security.OpenProtectedSession)),
	).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protected.Use(middleware.ProtectedSessionMiddleware(keys))

	protected.HandleFunc("/protected-session", h.Security.CloseProtectedSession).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/notes", h.Note.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{parentId}/children", h.Note.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Note.Get).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.Note.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notes/{id}/history", h.Note.History).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes/{id}/protect", h.Note.Protect).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/placements/{id}", h.Note.DeletePlacement).Methods("DELETE", "OPTIONS")

	protected.HandleFunc("/sync/changes", h.Sync.GetChanges).Methods("GET", "OPTIONS")

	protected.HandleFunc("/options/history-snapshot-interval", h.Option.GetSnapshotInterval).Methods("GET", "OPTIONS")
	protected.HandleFunc("/options/history-snapshot-interval", h.Option.SetSnapshotInterval).Methods("PUT", "OPTIONS")

	if h.WebSocket != nil {
		r.HandleFunc("/ws", h.WebSocket.HandleConnection)
	}

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", healthHandler(store)).Methods("GET")

	return r
}

func healthHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			response.Error(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		response.Success(w, map[string]string{
			"status":  "healthy",
			"service": "notetree-server",
		})
	}
}

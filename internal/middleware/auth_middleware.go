package middleware

import (
	"context"
	"net/http"
	"strings"

	"notetree-server/internal/domain"
	"notetree-server/pkg/jwt"
	"notetree-server/pkg/response"
)

type contextKey string

const (
	ActorIDKey contextKey = "actorID"
	DataKeyKey contextKey = "dataKey"

	actorSlotKey contextKey = "actorSlot"

	// ProtectedSessionHeader carries the id returned when a protected session
	// is opened.
	ProtectedSessionHeader = "X-Protected-Session"
)

func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(parts[1], jwtSecret)
			if err != nil || claims.TokenType != jwt.TokenTypeAccess {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			if slot, ok := r.Context().Value(actorSlotKey).(*string); ok {
				*slot = claims.ActorID
			}

			ctx := context.WithValue(r.Context(), ActorIDKey, claims.ActorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DataKeyLookup resolves a protected session id to its data key.
type DataKeyLookup interface {
	DataKey(sessionID string) ([]byte, bool)
}

// ProtectedSessionMiddleware attaches the data key of the request's protected
// session, if any. An unknown or expired session id is rejected so the client
// learns it has to reopen the session.
func ProtectedSessionMiddleware(keys DataKeyLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get(ProtectedSessionHeader)
			if sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}

			key, ok := keys.DataKey(sessionID)
			if !ok {
				response.Unauthorized(w, "Protected session expired")
				return
			}

			ctx := context.WithValue(r.Context(), DataKeyKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// withActorSlot lets an outer middleware observe the actor resolved further in.
func withActorSlot(ctx context.Context, slot *string) context.Context {
	return context.WithValue(ctx, actorSlotKey, slot)
}

func GetActorID(r *http.Request) string {
	actorID, ok := r.Context().Value(ActorIDKey).(string)
	if !ok {
		return ""
	}
	return actorID
}

// Session builds the per-request session passed to note operations.
func Session(r *http.Request) *domain.Session {
	key, _ := r.Context().Value(DataKeyKey).([]byte)
	return &domain.Session{
		ActorID: GetActorID(r),
		DataKey: key,
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/orgscope/pkg/contextkeys"
	"github.com/platinummonkey/orgscope/pkg/httputil"
)

// Auth authenticates requests with bearer service tokens and places the
// resolved actor id in the request context. Downstream code never sees the
// credential itself.
type Auth struct {
	tokens *TokenStore
}

// NewAuth creates authentication middleware backed by a token store.
func NewAuth(tokens *TokenStore) *Auth {
	return &Auth{tokens: tokens}
}

// Handler wraps an HTTP handler with authentication
func (m *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthenticated(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthenticated(w, "invalid authorization header format")
			return
		}

		actorID, ok := m.tokens.Resolve(parts[1])
		if !ok {
			httputil.WriteUnauthenticated(w, "invalid token")
			return
		}

		ctx := contextkeys.WithActorID(r.Context(), actorID.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ActorID extracts the authenticated actor id from the request. Returns
// uuid.Nil and false when the request is unauthenticated or the stored value
// is malformed.
func ActorID(r *http.Request) (uuid.UUID, bool) {
	raw := contextkeys.GetActorID(r.Context())
	if raw == "" {
		return uuid.Nil, false
	}
	actorID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return actorID, true
}

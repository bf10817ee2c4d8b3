package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coinwork/backend/internal/models"
)

type contextKey string

const ctxSessionKey contextKey = "session"

// Session is the authenticated caller of one request. It is rebuilt from the
// user row on every request, so role changes apply immediately.
type Session struct {
	UserID uuid.UUID
	Role   models.Role
	Email  string
}

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, models.Role, error)
}

// UserLookup loads the current user behind a token.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Authenticate validates the Bearer token, loads the user and stores a Session in the request context.
func Authenticate(tokens TokenValidator, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "missing or malformed Authorization header")
				return
			}
			userID, _, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			u, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					writeError(w, http.StatusUnauthorized, "account no longer exists")
					return
				}
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			sess := &Session{UserID: u.ID, Role: u.Role, Email: u.Email}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RequireRole rejects sessions whose role is not in roles with 403.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromCtx(r.Context())
			if sess == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !slices.Contains(roles, sess.Role) {
				writeError(w, http.StatusForbidden, "forbidden for role "+string(sess.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromCtx returns the authenticated session or nil.
func SessionFromCtx(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxSessionKey).(*Session)
	return s
}

// WithSession returns a context carrying the given session.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxSessionKey, s)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

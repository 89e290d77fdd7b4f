package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/runnable/runnable-api/internal/api/response"
	"github.com/runnable/runnable-api/internal/model"
)

// TokenHeader carries the caller's API token.
const TokenHeader = "runnable-token"

type contextKey string

const (
	userKey  contextKey = "user"
	tokenKey contextKey = "token"
)

// UserLookup resolves a hashed API token to its user.
type UserLookup interface {
	GetByTokenHash(ctx context.Context, hash string) (*model.User, error)
}

// HashToken returns the stored form of an API token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Auth returns a middleware that resolves the runnable-token header to a
// user. The raw token stays in the context so commits can forward it to the
// build service.
func Auth(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TokenHeader)
			if token == "" {
				response.WriteError(w, http.StatusUnauthorized, "access token required")
				return
			}

			user, err := users.GetByTokenHash(r.Context(), HashToken(token))
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid access token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user, token)))
		})
	}
}

// WithUser stores the authenticated user and the token it presented.
func WithUser(ctx context.Context, user *model.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, token)
}

// GetUser returns the authenticated user, or nil.
func GetUser(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

func GetToken(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/miniapp-auth/internal/model"
)

// CookieName is the cookie that carries the session token.
const CookieName = "token"

// DefaultPublicPaths are served without a session. Matching is by prefix,
// so "/health" also covers "/healthz" and "/health/db".
var DefaultPublicPaths = []string{"/auth/telegram", "/health", "/docs", "/openapi.json"}

// ErrNoUserInContext is returned by RequireUserID when no identity has been
// attached to the request.
var ErrNoUserInContext = errors.New("auth: no user id in context")

// contextKey is unexported so only this package can set or read the
// authenticated identity.
type contextKey string

const userIDKey contextKey = "userID"

// TokenVerifier is the part of TokenService the middleware depends on.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// Authenticate is a global middleware that enforces a valid session on
// every request except OPTIONS pre-flights and public paths.
//
// It reads the JWT from the "token" cookie, verifies it, and stores the
// subject as a model.UserID in the request context. Any failure (missing
// cookie, bad token, non-numeric subject, even a panic in verification)
// ends the request with 401.
func Authenticate(tokens TokenVerifier, logger *slog.Logger, publicPaths ...string) func(http.Handler) http.Handler {
	if len(publicPaths) == 0 {
		publicPaths = DefaultPublicPaths
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || isPublic(r.URL.Path, publicPaths) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CookieName)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			userID, err := verifySubject(tokens, cookie.Value)
			if err != nil {
				logger.Debug("rejected session token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// verifySubject turns a token into a UserID. A panic in the verifier is
// reported as an error.
func verifySubject(tokens TokenVerifier, token string) (id model.UserID, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("auth: panic verifying token: %v", p)
		}
	}()

	claims, err := tokens.Verify(token)
	if err != nil {
		return 0, err
	}
	return model.ParseUserID(claims.Subject)
}

func isPublic(path string, publicPaths []string) bool {
	for _, p := range publicPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","message":"Unauthorized"}` + "\n"))
}

// WithUserID returns a copy of ctx carrying id.
func WithUserID(ctx context.Context, id model.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext retrieves the authenticated user's ID from the request
// context.
func UserIDFromContext(ctx context.Context) (model.UserID, bool) {
	id, ok := ctx.Value(userIDKey).(model.UserID)
	return id, ok
}

// RequireUserID is UserIDFromContext for handlers that are never reached
// without a session.
func RequireUserID(ctx context.Context) (model.UserID, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return 0, ErrNoUserInContext
	}
	return id, nil
}

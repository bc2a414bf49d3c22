// Package authctx provides a minimal bearer-token authentication
// middleware, carrying the caller identity into the request context for
// downstream handlers.
package authctx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey int

const authContextKey contextKey = iota

// Context is the caller identity attached to an authenticated request.
type Context struct {
	// Subject identifies the caller, as resolved from the bearer token by
	// the configured TokenResolver.
	Subject string
}

// TokenResolver resolves a bearer token to a Context, or returns false if
// the token is not recognized.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (Context, bool)
}

// StaticTokens is a TokenResolver backed by a fixed token-to-subject map,
// suitable for single-operator deployments.
type StaticTokens map[string]string

// Resolve implements TokenResolver.
func (t StaticTokens) Resolve(_ context.Context, token string) (Context, bool) {
	subject, ok := t[token]
	if !ok {
		return Context{}, false
	}
	return Context{Subject: subject}, true
}

// Config configures the authentication middleware.
type Config struct {
	// Resolver validates bearer tokens.
	Resolver TokenResolver

	// SkipPaths lists request paths exempt from authentication (e.g.
	// health and metrics endpoints).
	SkipPaths []string
}

// Middleware builds an authentication middleware requiring a valid
// "Authorization: Bearer <token>" header, except on Config.SkipPaths.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}

			authCtx, ok := cfg.Resolver.Resolve(r.Context(), token)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}

			r = r.WithContext(context.WithValue(r.Context(), authContextKey, authCtx))
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimPrefix(header, prefix)
	if token == "" {
		return "", false
	}
	return token, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// FromContext retrieves the authenticated Context from a request context.
func FromContext(ctx context.Context) (Context, bool) {
	authCtx, ok := ctx.Value(authContextKey).(Context)
	return authCtx, ok
}

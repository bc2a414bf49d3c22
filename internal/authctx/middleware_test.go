package authctx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newOKHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := FromContext(r.Context())
		if !ok {
			t.Fatalf("expected an authenticated context to be attached")
		}
		w.Header().Set("X-Subject", authCtx.Subject)
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	mw := Middleware(Config{Resolver: StaticTokens{"secret": "alice"}})
	handler := mw(newOKHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/widgets/a", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsMalformedHeader(t *testing.T) {
	mw := Middleware(Config{Resolver: StaticTokens{"secret": "alice"}})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/widgets/a", nil)
	req.Header.Set("Authorization", "Basic abc123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareRejectsUnknownToken(t *testing.T) {
	mw := Middleware(Config{Resolver: StaticTokens{"secret": "alice"}})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/widgets/a", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	mw := Middleware(Config{Resolver: StaticTokens{"secret": "alice"}})
	handler := mw(newOKHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/widgets/a", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Subject"); got != "alice" {
		t.Fatalf("expected resolved subject 'alice', got %q", got)
	}
}

func TestMiddlewareSkipsConfiguredPaths(t *testing.T) {
	mw := Middleware(Config{
		Resolver:  StaticTokens{"secret": "alice"},
		SkipPaths: []string{"/healthz"},
	})
	reached := false
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a skipped path, got %d", rec.Code)
	}
	if !reached {
		t.Fatalf("expected the wrapped handler to run for a skipped path")
	}
}

func TestStaticTokensResolve(t *testing.T) {
	tokens := StaticTokens{"secret": "alice"}

	ctx, ok := tokens.Resolve(nil, "secret")
	if !ok || ctx.Subject != "alice" {
		t.Fatalf("expected resolved subject 'alice', got %+v ok=%v", ctx, ok)
	}

	_, ok = tokens.Resolve(nil, "unknown")
	if ok {
		t.Fatalf("expected unknown token to not resolve")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	if ok {
		t.Fatalf("expected no authenticated context on a bare request context")
	}
}

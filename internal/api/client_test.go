package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"billpoint/client/internal/config"
	"billpoint/client/internal/store"
)

func newTestClient(t *testing.T, baseURL string, secure store.Secure, onUnauthorized UnauthorizedHandler) *Client {
	t.Helper()
	cfg := &config.Config{APIBaseURL: baseURL, APIKey: "test-key", RequestTimeout: "5s"}
	return New(cfg, secure, onUnauthorized, zap.NewNop())
}

func TestClient_AttachesBearerAndAPIKey(t *testing.T) {
	ctx := context.Background()
	secure := store.NewMemory()
	if err := secure.Set(ctx, store.KeyAccessToken, []byte("tok-123")); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	var gotAuth, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("x-api-key")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, secure, nil)
	if _, err := c.Get(ctx, "/user/me"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
	if gotKey != "test-key" {
		t.Errorf("x-api-key = %q, want test-key", gotKey)
	}
}

func TestClient_NoTokenNoAuthorizationHeader(t *testing.T) {
	ctx := context.Background()

	var gotAuth string
	var hadAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, hadAuth = r.Header["Authorization"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, store.NewMemory(), nil)
	if _, err := c.Get(ctx, "/ping"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hadAuth {
		t.Errorf("Authorization header sent without a stored token: %q", gotAuth)
	}
}

func TestClient_UnauthorizedClearsTokenAndNotifies(t *testing.T) {
	ctx := context.Background()
	secure := store.NewMemory()
	if err := secure.Set(ctx, store.KeyAccessToken, []byte("stale")); err != nil {
		t.Fatalf("seed token: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"token expired"}`))
	}))
	defer srv.Close()

	var notified atomic.Int64
	c := newTestClient(t, srv.URL, secure, func() { notified.Add(1) })

	_, err := c.Get(ctx, "/user/me")
	if StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("StatusOf = %d, want 401 (err = %v)", StatusOf(err), err)
	}
	if !IsUnauthorized(err) {
		t.Error("IsUnauthorized = false")
	}
	if notified.Load() != 1 {
		t.Errorf("unauthorized handler calls = %d, want 1", notified.Load())
	}
	if _, err := secure.Get(ctx, store.KeyAccessToken); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("access token still stored after 401: err = %v", err)
	}
}

func TestClient_ConcurrentUnauthorized(t *testing.T) {
	ctx := context.Background()
	secure := store.NewMemory()
	_ = secure.Set(ctx, store.KeyAccessToken, []byte("stale"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	// Handler must tolerate concurrent invocation; each 401 reports once.
	var notified atomic.Int64
	c := newTestClient(t, srv.URL, secure, func() { notified.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get(ctx, "/user/me")
		}()
	}
	wg.Wait()

	if notified.Load() != 8 {
		t.Errorf("handler calls = %d, want 8 (one per 401)", notified.Load())
	}
	if _, err := secure.Get(ctx, store.KeyAccessToken); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("access token still stored: err = %v", err)
	}
}

func TestClient_ErrorCarriesServerMessage(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"phone number is invalid"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, store.NewMemory(), nil)
	_, err := c.Do(ctx, http.MethodPost, "/auth/onboarding", map[string]string{"email": "x"})

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "phone number is invalid" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestClient_TransportErrorHasNoStatus(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(t, srv.URL, store.NewMemory(), nil)
	_, err := c.Get(ctx, "/user/me")
	if err == nil {
		t.Fatal("Get should fail against a closed server")
	}
	if StatusOf(err) != 0 {
		t.Errorf("StatusOf = %d, want 0 for transport errors", StatusOf(err))
	}
}

func TestClient_DoJSONDecodes(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Write([]byte(`{"userId":"u-9","email":"a@b.c"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, store.NewMemory(), nil)
	var out struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
	}
	if err := c.Post(ctx, "/auth/login", map[string]string{"id": "a@b.c"}, &out); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if out.UserID != "u-9" || out.Email != "a@b.c" {
		t.Errorf("out = %+v", out)
	}
}

package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/api"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

func newTestManager(t *testing.T, handler http.Handler) (*Manager, *TokenStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := api.New(server.URL, 5*time.Second)
	store := NewTokenStore("", client)
	return NewManager(client, store), store
}

func TestRefreshSingleFlight(t *testing.T) {
	var refreshCalls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/refreshtoken" {
			http.NotFound(w, r)
			return
		}
		refreshCalls.Add(1)
		// Hold the request open long enough for every caller to join the flight.
		time.Sleep(100 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"access_token": "rotated",
		})
	})

	manager, store := newTestManager(t, handler)
	store.Set(models.Session{AccessToken: "stale", RefreshToken: "refresh-1"})

	const callers = 8
	var (
		start   = make(chan struct{})
		wg      sync.WaitGroup
		mu      sync.Mutex
		tokens  []string
		lastErr error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			token, err := manager.Refresh(context.Background())
			mu.Lock()
			tokens = append(tokens, token)
			if err != nil {
				lastErr = err
			}
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	if lastErr != nil {
		t.Fatalf("Refresh returned error: %v", lastErr)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("refresh endpoint hit %d times, want 1", got)
	}
	for _, token := range tokens {
		if token != "rotated" {
			t.Errorf("caller received token %q, want %q", token, "rotated")
		}
	}

	session, ok := store.Get()
	if !ok || session.AccessToken != "rotated" || session.RefreshToken != "refresh-1" {
		t.Errorf("stored session after refresh = %+v", session)
	}
}

func TestRefreshStillValidKeepsCurrentToken(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "Access token is still valid",
		})
	})

	manager, store := newTestManager(t, handler)
	store.Set(models.Session{AccessToken: "current", RefreshToken: "refresh-1"})

	token, err := manager.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if token != "current" {
		t.Errorf("Refresh returned %q, want the unchanged token", token)
	}
}

func TestRefreshFailureClearsSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	manager, store := newTestManager(t, handler)
	store.Set(models.Session{AccessToken: "stale", RefreshToken: "dead"})

	_, err := manager.Refresh(context.Background())
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Refresh error = %v, want ErrSessionExpired", err)
	}
	if _, ok := store.Get(); ok {
		t.Error("session survived a failed refresh")
	}
	if manager.IsAuthenticated() {
		t.Error("IsAuthenticated still true after failed refresh")
	}
}

func TestRefreshWithoutSession(t *testing.T) {
	manager, _ := newTestManager(t, http.NotFoundHandler())
	_, err := manager.Refresh(context.Background())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Refresh error = %v, want ErrNotAuthenticated", err)
	}
}

func TestVerifyCodeStoresSession(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["otp"] != "123456" {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":       true,
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"complete":      false,
		})
	})

	manager, store := newTestManager(t, handler)

	if _, err := manager.VerifyCode(context.Background(), "a@b.c", "000000"); !errors.Is(err, ErrLoginFailed) {
		t.Errorf("wrong code: error = %v, want ErrLoginFailed", err)
	}
	if _, ok := store.Get(); ok {
		t.Error("failed verification stored a session")
	}

	result, err := manager.VerifyCode(context.Background(), "a@b.c", "123456")
	if err != nil {
		t.Fatalf("VerifyCode returned error: %v", err)
	}
	if !result.RequiresCompletion {
		t.Error("incomplete account should require profile completion")
	}
	session, ok := store.Get()
	if !ok || session.AccessToken != "access-1" {
		t.Errorf("stored session = %+v", session)
	}
}

func TestHandleOAuthCallbackIsOneShot(t *testing.T) {
	manager, store := newTestManager(t, http.NotFoundHandler())

	first := manager.HandleOAuthCallback("access-1", "refresh-1", true)
	if first.RequiresCompletion {
		t.Error("complete account flagged as requiring completion")
	}

	store.Clear()
	second := manager.HandleOAuthCallback("access-2", "refresh-2", false)
	if second != first {
		t.Errorf("second callback = %+v, want cached %+v", second, first)
	}
	if _, ok := store.Get(); ok {
		t.Error("second callback wrote to the store")
	}
}

func TestAdminBypassLoginEncodesCredentials(t *testing.T) {
	var payload map[string]string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/bypass-login" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":       true,
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"complete":      true,
		})
	})

	manager, store := newTestManager(t, handler)
	result, err := manager.AdminBypassLogin(context.Background(), "admin@b.c", "root", "hunter2")
	if err != nil {
		t.Fatalf("AdminBypassLogin returned error: %v", err)
	}
	if result.RequiresCompletion {
		t.Error("complete admin account flagged as requiring completion")
	}

	email, err := base64.StdEncoding.DecodeString(payload["email_base64"])
	if err != nil || string(email) != "admin@b.c" {
		t.Errorf("email_base64 decoded to %q (%v)", email, err)
	}
	if payload["admin_username_hash"] != sha256Hex("root") {
		t.Errorf("admin_username_hash = %q", payload["admin_username_hash"])
	}
	if payload["admin_password_hash"] != sha256Hex("hunter2") {
		t.Errorf("admin_password_hash = %q", payload["admin_password_hash"])
	}
	if _, ok := store.Get(); !ok {
		t.Error("admin bypass did not store a session")
	}
}

func TestLogoutClearsFirstThenNotifiesServer(t *testing.T) {
	var (
		mu         sync.Mutex
		authHeader string
	)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/logout" {
			mu.Lock()
			authHeader = r.Header.Get("Authorization")
			mu.Unlock()
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	manager, store := newTestManager(t, handler)
	store.Set(models.Session{AccessToken: "access-1", RefreshToken: "refresh-1"})

	manager.Logout(context.Background())

	if _, ok := store.Get(); ok {
		t.Error("session survived logout")
	}
	mu.Lock()
	defer mu.Unlock()
	if authHeader != "Bearer access-1" {
		t.Errorf("logout notification Authorization = %q, want the pre-clear token", authHeader)
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAccessTokenExpiry(t *testing.T) {
	manager, store := newTestManager(t, http.NotFoundHandler())

	if _, ok := manager.AccessTokenExpiry(); ok {
		t.Error("expiry reported without a session")
	}

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	store.Set(models.Session{AccessToken: signedToken(t, exp), RefreshToken: "ref"})
	got, ok := manager.AccessTokenExpiry()
	if !ok {
		t.Fatal("expiry not reported for a parseable token")
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}

	store.Set(models.Session{AccessToken: "opaque", RefreshToken: "ref"})
	if _, ok := manager.AccessTokenExpiry(); ok {
		t.Error("expiry reported for an unparseable token")
	}
}

func TestIsAuthenticatedHonorsExpiry(t *testing.T) {
	manager, store := newTestManager(t, http.NotFoundHandler())

	if manager.IsAuthenticated() {
		t.Error("authenticated without a session")
	}

	store.Set(models.Session{AccessToken: "opaque", RefreshToken: "ref"})
	if !manager.IsAuthenticated() {
		t.Error("opaque token should count as authenticated")
	}

	store.Set(models.Session{AccessToken: signedToken(t, time.Now().Add(time.Hour)), RefreshToken: "ref"})
	if !manager.IsAuthenticated() {
		t.Error("unexpired token should count as authenticated")
	}

	store.Set(models.Session{AccessToken: signedToken(t, time.Now().Add(-time.Hour)), RefreshToken: "ref"})
	if manager.IsAuthenticated() {
		t.Error("expired token should not count as authenticated")
	}
}

func TestLogoutWithoutSessionSkipsServerCall(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	manager, _ := newTestManager(t, handler)
	manager.Logout(context.Background())

	if got := calls.Load(); got != 0 {
		t.Errorf("logout without a session hit the server %d times", got)
	}
}

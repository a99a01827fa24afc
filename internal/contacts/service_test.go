package contacts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/api"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

func newContactService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	svc := NewService(api.New(server.URL, 5*time.Second), time.Minute, 10*time.Millisecond)
	t.Cleanup(svc.Close)
	return svc
}

func TestContactsEnrichedWithProfiles(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/contacts":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"contacts": []map[string]any{
					{"email": "known@b.c", "conversation_id": "conv-1", "muted": true},
					{"email": "ghost@b.c", "conversation_id": "conv-2"},
				},
			})
		case "/users/info":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != "known@b.c" {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"email": "known@b.c",
				"name":  "Known Person",
			})
		default:
			http.NotFound(w, r)
		}
	})

	svc := newContactService(t, handler)
	contacts, err := svc.Contacts(context.Background())
	if err != nil {
		t.Fatalf("Contacts returned error: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2", len(contacts))
	}

	if contacts[0].Name != "Known Person" || !contacts[0].Muted {
		t.Errorf("enriched contact = %+v", contacts[0])
	}
	// Unresolvable profile still appears, named from the email local part.
	if contacts[1].Name != "ghost" || contacts[1].ConversationID != "conv-2" {
		t.Errorf("fallback contact = %+v", contacts[1])
	}
}

func TestSearchSkipsEmptyQueries(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"users": []any{}})
	})

	svc := newContactService(t, handler)
	users, err := svc.Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if users != nil {
		t.Errorf("blank query returned %v", users)
	}
	if got := hits.Load(); got != 0 {
		t.Errorf("blank query reached the network %d times", got)
	}
}

func TestMeCachedUntilForceRefresh(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"email": "me@b.c"})
	})

	svc := newContactService(t, handler)
	ctx := context.Background()

	if _, err := svc.Me(ctx, false); err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if _, err := svc.Me(ctx, false); err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("profile fetched %d times, want 1", got)
	}

	if _, err := svc.Me(ctx, true); err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("force refresh did not reach the server, %d hits", got)
	}

	svc.ClearCache()
	if _, err := svc.Me(ctx, false); err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("cache survived ClearCache, %d hits", got)
	}
}

func TestSearchDebouncedDeliversLastQuery(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"users": []map[string]any{{"email": r.URL.Query().Get("q") + "@b.c"}},
		})
	})

	svc := newContactService(t, handler)
	results := make(chan string, 2)

	deliver := func(users []models.User, err error) {
		if err != nil || len(users) != 1 {
			t.Errorf("deliver got users=%v err=%v", users, err)
			return
		}
		results <- users[0].Email
	}
	svc.SearchDebounced(context.Background(), "first", deliver)
	svc.SearchDebounced(context.Background(), "second", deliver)

	select {
	case email := <-results:
		if email != "second@b.c" {
			t.Errorf("delivered %q, want the last query's result", email)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounced search never delivered")
	}

	select {
	case email := <-results:
		t.Errorf("superseded query also delivered: %q", email)
	case <-time.After(100 * time.Millisecond):
	}
}

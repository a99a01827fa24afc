package auth

import (
	"path/filepath"
	"testing"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

type recordingSink struct {
	tokens []string
}

func (r *recordingSink) SetAuthToken(token string) {
	r.tokens = append(r.tokens, token)
}

func (r *recordingSink) last() string {
	if len(r.tokens) == 0 {
		return ""
	}
	return r.tokens[len(r.tokens)-1]
}

func TestTokenStorePersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	session := models.Session{AccessToken: "access-1", RefreshToken: "refresh-1"}

	first := NewTokenStore(path, &recordingSink{})
	first.Set(session)

	sink := &recordingSink{}
	second := NewTokenStore(path, sink)
	got, ok := second.Get()
	if !ok {
		t.Fatal("restarted store reports no session")
	}
	if got != session {
		t.Errorf("restored session = %+v, want %+v", got, session)
	}
	if sink.last() != "access-1" {
		t.Errorf("sink token after restore = %q, want %q", sink.last(), "access-1")
	}
}

func TestTokenStoreIgnoresCorruptStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := writeState(path, models.Session{}); err != nil {
		t.Fatalf("seed state file: %v", err)
	}

	store := NewTokenStore(path, &recordingSink{})
	if _, ok := store.Get(); ok {
		t.Error("store reported a session from an incomplete state file")
	}
}

func TestSinkUpdatedBeforeSubscribers(t *testing.T) {
	sink := &recordingSink{}
	store := NewTokenStore("", sink)

	var seenBySubscriber string
	store.Subscribe(func(TokenEvent) {
		seenBySubscriber = sink.last()
	})

	store.Set(models.Session{AccessToken: "access-2", RefreshToken: "refresh-2"})
	if seenBySubscriber != "access-2" {
		t.Errorf("subscriber observed sink token %q, want %q", seenBySubscriber, "access-2")
	}
}

func TestSetAccessTokenKeepsRefreshToken(t *testing.T) {
	store := NewTokenStore("", &recordingSink{})
	store.Set(models.Session{AccessToken: "access-1", RefreshToken: "refresh-1"})

	store.SetAccessToken("access-2")
	session, ok := store.Get()
	if !ok {
		t.Fatal("session vanished after access token rotation")
	}
	if session.AccessToken != "access-2" || session.RefreshToken != "refresh-1" {
		t.Errorf("session after rotation = %+v", session)
	}
}

func TestClearNotifiesTokenCleared(t *testing.T) {
	sink := &recordingSink{}
	store := NewTokenStore("", sink)
	store.Set(models.Session{AccessToken: "access-1", RefreshToken: "refresh-1"})

	var events []TokenEvent
	store.Subscribe(func(e TokenEvent) { events = append(events, e) })

	store.Clear()
	if _, ok := store.Get(); ok {
		t.Error("store still reports a session after Clear")
	}
	if sink.last() != "" {
		t.Errorf("sink token after Clear = %q, want empty", sink.last())
	}
	if len(events) != 1 || events[0] != TokenCleared {
		t.Errorf("events = %v, want [TokenCleared]", events)
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	store := NewTokenStore("", &recordingSink{})

	calls := 0
	unsubscribe := store.Subscribe(func(TokenEvent) { calls++ })
	store.Set(models.Session{AccessToken: "a", RefreshToken: "r"})
	unsubscribe()
	store.Clear()

	if calls != 1 {
		t.Errorf("subscriber ran %d times, want 1", calls)
	}
}

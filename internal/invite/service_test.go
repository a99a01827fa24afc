package invite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/api"
)

func newTestService(t *testing.T, handler http.Handler, now time.Time) (*Service, *Codec) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	codec := fixedCodec(now)
	return NewService(api.New(server.URL, 5*time.Second), codec), codec
}

func linksHandler(t *testing.T, links *[]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{"invite_links": *links})
		case http.MethodPost:
			var payload inviteLinksPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode register payload: %v", err)
			}
			*links = append(*links, payload.InviteLinks)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
		case http.MethodDelete:
			var payload inviteLinksPayload
			_ = json.NewDecoder(r.Body).Decode(&payload)
			kept := (*links)[:0]
			for _, link := range *links {
				if link != payload.InviteLinks {
					kept = append(kept, link)
				}
			}
			*links = kept
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
		default:
			http.NotFound(w, r)
		}
	})
}

func TestCreateRegistersAndListRoundTrips(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	var stored []string
	svc, _ := newTestService(t, linksHandler(t, &stored), now)

	link, err := svc.Create(context.Background(), "group-1", 7)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if link.GroupID != "group-1" || link.ExpirationDays != 7 {
		t.Errorf("link = %+v", link)
	}
	if want := now.Add(7 * 24 * time.Hour); !link.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", link.ExpiresAt, want)
	}
	if len(stored) != 1 || stored[0] != link.Token {
		t.Fatalf("server stored %v", stored)
	}

	links, err := svc.List(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(links) != 1 || links[0].Token != link.Token {
		t.Errorf("listed links = %+v", links)
	}
}

func TestCreateRejectsNonPositiveDays(t *testing.T) {
	svc, _ := newTestService(t, http.NotFoundHandler(), time.Now())
	if _, err := svc.Create(context.Background(), "group-1", 0); err == nil {
		t.Error("Create accepted zero expiration days")
	}
}

func TestListDropsUndecodableTokens(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	stored := []string{"garbage"}
	svc, codec := newTestService(t, linksHandler(t, &stored), now)

	good, err := codec.Encode("group-1", now.Add(time.Hour), 1)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	stored = append(stored, good)

	links, err := svc.List(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(links) != 1 || links[0].Token != good {
		t.Errorf("listed links = %+v", links)
	}
}

func TestValidateRevokesTokensTheServerDropped(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	var stored []string
	svc, codec := newTestService(t, linksHandler(t, &stored), now)

	token, err := codec.Encode("group-1", now.Add(time.Hour), 1)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	// Token is locally fine but absent from the authoritative list.
	v := svc.Validate(context.Background(), token)
	if v.Valid || v.Reason != ReasonRevoked {
		t.Errorf("got valid=%v reason=%q, want revoked", v.Valid, v.Reason)
	}
	if _, ok := codec.RevocationOf(token); !ok {
		t.Error("server-side revocation not cached in the local ledger")
	}
}

func TestValidateFallsBackOfflineOnServerError(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	codec := fixedCodec(now)
	svc := NewService(api.New(server.URL, time.Second), codec)

	token, err := codec.Encode("group-1", now.Add(time.Hour), 1)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	v := svc.Validate(context.Background(), token)
	if !v.Valid {
		t.Errorf("offline fallback rejected a locally valid token: %+v", v)
	}
}

func TestRevokeSyncsServerAndLedger(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	var stored []string
	svc, codec := newTestService(t, linksHandler(t, &stored), now)

	link, err := svc.Create(context.Background(), "group-1", 1)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := svc.Revoke(context.Background(), link.Token); err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("server still lists %v", stored)
	}
	if v := codec.Validate(link.Token); v.Valid || v.Reason != ReasonRevoked {
		t.Errorf("local validation after revoke = %+v", v)
	}
}

func TestRevokeRejectsMalformedToken(t *testing.T) {
	svc, _ := newTestService(t, http.NotFoundHandler(), time.Now())
	if err := svc.Revoke(context.Background(), "garbage"); err == nil {
		t.Error("Revoke accepted a malformed token")
	}
}

package contacts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

type stubLookup struct {
	user  models.User
	err   error
	calls int
}

func (s *stubLookup) Lookup(context.Context, string) (models.User, error) {
	s.calls++
	if s.err != nil {
		return models.User{}, s.err
	}
	return s.user, nil
}

func TestCachingLookup(t *testing.T) {
	base := &stubLookup{user: models.User{Email: "a@b.c", Name: "Ada"}}
	cache := NewCachingLookup(base, time.Minute)

	ctx := context.Background()

	user, err := cache.Lookup(ctx, "a@b.c")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user.Name != "Ada" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if base.calls != 1 {
		t.Fatalf("expected base called once got %d", base.calls)
	}

	if _, err = cache.Lookup(ctx, "a@b.c"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected cached result got %d calls", base.calls)
	}
}

func TestCachingLookupDoesNotCacheErrors(t *testing.T) {
	failure := errors.New("backend down")
	base := &stubLookup{err: failure}
	cache := NewCachingLookup(base, time.Minute)

	if _, err := cache.Lookup(context.Background(), "a@b.c"); !errors.Is(err, failure) {
		t.Fatalf("expected backend error got %v", err)
	}
	if _, err := cache.Lookup(context.Background(), "a@b.c"); !errors.Is(err, failure) {
		t.Fatalf("expected backend error got %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("failed lookup was cached, base called %d times", base.calls)
	}
}

func TestCachingLookupExpiry(t *testing.T) {
	base := &stubLookup{user: models.User{Email: "a@b.c"}}
	cache := NewCachingLookup(base, time.Millisecond)

	if _, err := cache.Lookup(context.Background(), "a@b.c"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cache.Lookup(context.Background(), "a@b.c"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected cache miss after expiry got %d calls", base.calls)
	}
}

func TestCachingLookupInvalidate(t *testing.T) {
	base := &stubLookup{user: models.User{Email: "a@b.c"}}
	cache := NewCachingLookup(base, time.Minute)

	if _, err := cache.Lookup(context.Background(), "a@b.c"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	cache.Invalidate("a@b.c")
	if _, err := cache.Lookup(context.Background(), "a@b.c"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("invalidated entry still served, base called %d times", base.calls)
	}
}

func TestCachingLookupDefaultTTL(t *testing.T) {
	cache := NewCachingLookup(&stubLookup{}, 0)
	if cache.ttl <= 0 {
		t.Fatalf("expected ttl to default positive got %v", cache.ttl)
	}
}

// Package contacts provides the contact list, profile lookups and user search
// on top of the REST API.
package contacts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/api"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/logging"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

// Service exposes contact management and user search. Profile lookups go
// through a TTL cache that is invalidated explicitly on profile updates and
// reset on logout.
type Service struct {
	api      *api.Client
	users    *CachingLookup
	searches *Debouncer

	mu sync.Mutex
	me *models.User
}

// NewService constructs a contact Service. searchDebounce bounds how often
// keystroke-driven searches reach the network.
func NewService(client *api.Client, userCacheTTL, searchDebounce time.Duration) *Service {
	if client == nil {
		panic("contacts: api client must not be nil")
	}
	s := &Service{
		api:      client,
		searches: NewDebouncer(searchDebounce),
	}
	s.users = NewCachingLookup(apiLookup{client}, userCacheTTL)
	return s
}

type apiLookup struct {
	api *api.Client
}

func (l apiLookup) Lookup(ctx context.Context, email string) (models.User, error) {
	var user models.User
	if err := l.api.Post(ctx, "/users/info", map[string]string{"email": email}, &user); err != nil {
		return models.User{}, fmt.Errorf("fetch user info: %w", err)
	}
	return user, nil
}

// Me returns the caller's own profile, cached for the session unless
// forceRefresh is set.
func (s *Service) Me(ctx context.Context, forceRefresh bool) (models.User, error) {
	s.mu.Lock()
	if s.me != nil && !forceRefresh {
		me := *s.me
		s.mu.Unlock()
		return me, nil
	}
	s.mu.Unlock()

	var me models.User
	if err := s.api.Get(ctx, "/users/me", &me); err != nil {
		return models.User{}, fmt.Errorf("fetch own profile: %w", err)
	}

	s.mu.Lock()
	s.me = &me
	s.mu.Unlock()
	return me, nil
}

// UserInfo resolves a profile by email through the TTL cache.
func (s *Service) UserInfo(ctx context.Context, email string) (models.User, error) {
	return s.users.Lookup(ctx, email)
}

// InvalidateUser drops one cached profile after it was updated server-side.
func (s *Service) InvalidateUser(email string) {
	s.users.Invalidate(email)
}

// ClearCache resets all session-scoped caches. Called on logout.
func (s *Service) ClearCache() {
	s.users.Reset()
	s.mu.Lock()
	s.me = nil
	s.mu.Unlock()
}

type wireContact struct {
	Email          string `json:"email"`
	ConversationID string `json:"conversation_id"`
	Blocked        bool   `json:"blocked"`
	Archived       bool   `json:"archived"`
	Muted          bool   `json:"muted"`
	IsPinned       bool   `json:"is_pinned"`
	IsFavorited    bool   `json:"is_favorited"`
}

type contactsResponse struct {
	Success  bool          `json:"success"`
	Contacts []wireContact `json:"contacts"`
}

// Contacts lists the caller's contacts, enriched with cached profile details.
// A contact whose profile cannot be resolved still appears, carrying only its
// email.
func (s *Service) Contacts(ctx context.Context) ([]models.Contact, error) {
	var resp contactsResponse
	if err := s.api.Get(ctx, "/users/contacts", &resp); err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("contacts: listing rejected")
	}

	contacts := make([]models.Contact, 0, len(resp.Contacts))
	for _, c := range resp.Contacts {
		contact := models.Contact{
			User:           models.User{Email: c.Email, Name: fallbackName(c.Email)},
			ConversationID: c.ConversationID,
			Blocked:        c.Blocked,
			Archived:       c.Archived,
			Muted:          c.Muted,
			Pinned:         c.IsPinned,
			Favorited:      c.IsFavorited,
		}
		if user, err := s.users.Lookup(ctx, c.Email); err == nil {
			contact.User = user
		} else {
			logging.FromContext(ctx).Debug("contact profile lookup failed", "email", c.Email, "error", err)
		}
		contacts = append(contacts, contact)
	}
	return contacts, nil
}

type searchResponse struct {
	Users []models.User `json:"users"`
}

// Search queries the user directory. Empty or whitespace queries resolve to an
// empty result without a network call.
func (s *Service) Search(ctx context.Context, query string) ([]models.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	var resp searchResponse
	if err := s.api.Get(ctx, "/users/search?q="+url.QueryEscape(query), &resp); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return resp.Users, nil
}

// SearchDebounced schedules a search after the debounce interval, delivering
// the outcome to the callback. Earlier pending searches are canceled, so only
// the last query within the window reaches the network.
func (s *Service) SearchDebounced(ctx context.Context, query string, deliver func([]models.User, error)) {
	s.searches.Do(func() {
		deliver(s.Search(ctx, query))
	})
}

// Close releases the debounce timer. Call it when the owning view goes away.
func (s *Service) Close() {
	s.searches.Stop()
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Service) post(ctx context.Context, path, email string) error {
	var resp successResponse
	if err := s.api.Post(ctx, path, map[string]string{"email": email}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("contacts: request rejected")
	}
	return nil
}

// Add puts a user on the contact list.
func (s *Service) Add(ctx context.Context, email string) error {
	if err := s.post(ctx, "/users/add", email); err != nil {
		return fmt.Errorf("add contact: %w", err)
	}
	return nil
}

// Remove drops a user from the contact list.
func (s *Service) Remove(ctx context.Context, email string) error {
	if err := s.post(ctx, "/users/remove", email); err != nil {
		return fmt.Errorf("remove contact: %w", err)
	}
	return nil
}

// ToggleMute flips the muted flag for a contact.
func (s *Service) ToggleMute(ctx context.Context, email string) error {
	if err := s.post(ctx, "/users/mute", email); err != nil {
		return fmt.Errorf("mute contact: %w", err)
	}
	return nil
}

// ToggleBlock flips the blocked flag for a contact.
func (s *Service) ToggleBlock(ctx context.Context, email string) error {
	if err := s.post(ctx, "/users/block", email); err != nil {
		return fmt.Errorf("block contact: %w", err)
	}
	return nil
}

// ToggleArchive flips the archived flag for a contact.
func (s *Service) ToggleArchive(ctx context.Context, email string) error {
	if err := s.post(ctx, "/users/archive", email); err != nil {
		return fmt.Errorf("archive contact: %w", err)
	}
	return nil
}

// TogglePin flips the pinned flag for a contact.
func (s *Service) TogglePin(ctx context.Context, email string) error {
	if err := s.post(ctx, "/users/pin", email); err != nil {
		return fmt.Errorf("pin contact: %w", err)
	}
	return nil
}

// ToggleFavorite flips the favorited flag for a contact.
func (s *Service) ToggleFavorite(ctx context.Context, email string) error {
	if err := s.post(ctx, "/users/favorite", email); err != nil {
		return fmt.Errorf("favorite contact: %w", err)
	}
	return nil
}

func fallbackName(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

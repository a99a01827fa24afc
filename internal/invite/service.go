package invite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/api"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/logging"
)

// Link is an invite token together with its decoded metadata, as presented to
// group admins.
type Link struct {
	Token          string
	GroupID        string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	ExpirationDays int
}

// Service keeps the server's invite-link list in step with the local codec.
// The server list is authoritative; the codec's ledger caches revocations so
// links can be judged offline.
type Service struct {
	api   *api.Client
	codec *Codec
}

// NewService constructs an invite Service around the shared API client.
func NewService(client *api.Client, codec *Codec) *Service {
	if client == nil {
		panic("invite: api client must not be nil")
	}
	if codec == nil {
		panic("invite: codec must not be nil")
	}
	return &Service{api: client, codec: codec}
}

type inviteLinksPayload struct {
	InviteLinks string `json:"invite_links"`
}

type inviteLinksResponse struct {
	InviteLinks []string `json:"invite_links"`
}

// Create mints a token expiring expirationDays from now and registers it with
// the server.
func (s *Service) Create(ctx context.Context, groupID string, expirationDays int) (Link, error) {
	if expirationDays <= 0 {
		return Link{}, fmt.Errorf("invite: expiration days must be positive, got %d", expirationDays)
	}

	now := s.codec.now()
	expiresAt := now.Add(time.Duration(expirationDays) * 24 * time.Hour)

	token, err := s.codec.Encode(groupID, expiresAt, expirationDays)
	if err != nil {
		return Link{}, fmt.Errorf("encode invite token: %w", err)
	}

	path := fmt.Sprintf("/conversations/invites/%s/invite", groupID)
	if err := s.api.Post(ctx, path, inviteLinksPayload{InviteLinks: token}, nil); err != nil {
		return Link{}, fmt.Errorf("store invite link: %w", err)
	}

	logging.FromContext(ctx).Info("invite link created", "groupId", groupID, "expiresAt", expiresAt)
	return Link{
		Token:          token,
		GroupID:        groupID,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		ExpirationDays: expirationDays,
	}, nil
}

// List fetches the group's registered links, dropping any that no longer
// decode.
func (s *Service) List(ctx context.Context, groupID string) ([]Link, error) {
	var resp inviteLinksResponse
	path := fmt.Sprintf("/conversations/invites/%s/invite", groupID)
	if err := s.api.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch invite links: %w", err)
	}

	links := make([]Link, 0, len(resp.InviteLinks))
	for _, token := range resp.InviteLinks {
		record := s.codec.Decode(token)
		if record == nil {
			continue
		}
		links = append(links, Link{
			Token:          token,
			GroupID:        record.GroupID,
			CreatedAt:      record.IssuedAt,
			ExpiresAt:      record.ExpiresAt,
			ExpirationDays: record.ExpirationDays,
		})
	}
	return links, nil
}

// Active returns the most recently created unexpired link, or false when none
// exists.
func (s *Service) Active(ctx context.Context, groupID string) (Link, bool, error) {
	links, err := s.List(ctx, groupID)
	if err != nil {
		return Link{}, false, err
	}

	now := s.codec.now()
	active := links[:0]
	for _, link := range links {
		if now.Before(link.ExpiresAt) {
			active = append(active, link)
		}
	}
	if len(active) == 0 {
		return Link{}, false, nil
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active[0], true, nil
}

// Revoke removes the link server-side and records it in the local ledger so
// offline validation agrees immediately.
func (s *Service) Revoke(ctx context.Context, token string) error {
	record := s.codec.Decode(token)
	if record == nil {
		return fmt.Errorf("invite: cannot revoke malformed token")
	}

	path := fmt.Sprintf("/conversations/invites/%s/invite", record.GroupID)
	if err := s.api.Delete(ctx, path, inviteLinksPayload{InviteLinks: token}, nil); err != nil {
		return fmt.Errorf("revoke invite link: %w", err)
	}

	s.codec.Revoke(token)
	logging.FromContext(ctx).Info("invite link revoked", "groupId", record.GroupID)
	return nil
}

// RevokeAll revokes every registered link for the group and reports how many
// were removed.
func (s *Service) RevokeAll(ctx context.Context, groupID string) (int, error) {
	links, err := s.List(ctx, groupID)
	if err != nil {
		return 0, err
	}
	for _, link := range links {
		if err := s.Revoke(ctx, link.Token); err != nil {
			return 0, err
		}
	}
	return len(links), nil
}

// Validate checks a token against the server list when reachable, falling back
// to offline judgment when the server is not. A decodable, unexpired token the
// server no longer lists counts as revoked.
func (s *Service) Validate(ctx context.Context, token string) Validation {
	local := s.codec.Validate(token)
	if !local.Valid {
		return local
	}

	var resp inviteLinksResponse
	path := fmt.Sprintf("/conversations/invites/%s/invite", local.Record.GroupID)
	if err := s.api.Get(ctx, path, &resp); err != nil {
		logging.FromContext(ctx).Warn("invite validation falling back to offline check", "error", err)
		return local
	}

	for _, known := range resp.InviteLinks {
		if known == token {
			return local
		}
	}

	s.codec.Revoke(token)
	return Validation{Valid: false, Reason: ReasonRevoked, Record: local.Record}
}

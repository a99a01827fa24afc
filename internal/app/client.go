package app

import (
	"context"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/api"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/auth"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/chat"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/config"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/contacts"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/invite"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/realtime"
)

// Client aggregates the session-scoped components. It replaces the ambient
// globals of earlier incarnations: every component receives its dependencies
// at construction and nothing reaches for shared module state.
type Client struct {
	Config config.Config

	API           *api.Client
	Store         *auth.TokenStore
	Sessions      *auth.Manager
	Cache         *chat.Cache
	Conversations *chat.Service
	Contacts      *contacts.Service
	Codec         *invite.Codec
	Invites       *invite.Service
	Supervisor    *realtime.Supervisor
}

// NewClient wires a full client from configuration. Ownership is explicit:
// the token store owns credentials and only the session manager writes them;
// the cache owns message state and only the supervisor and REST loaders
// mutate it.
func NewClient(ctx context.Context, cfg config.Config) *Client {
	httpClient := api.New(cfg.APIBaseURL, cfg.RequestTimeout)
	store := auth.NewTokenStore(cfg.StatePath, httpClient)
	sessions := auth.NewManager(httpClient, store)

	cache := chat.NewCache(httpClient, cfg.MessagePageSize)
	conversations := chat.NewService(httpClient)
	contactsSvc := contacts.NewService(httpClient, cfg.UserCacheTTL, cfg.SearchDebounce)

	codec := invite.NewCodec()
	invites := invite.NewService(httpClient, codec)

	supervisor := realtime.NewSupervisor(
		cfg.SocketBaseURL,
		store,
		sessions,
		realtime.CacheEvents{Cache: cache},
		cfg.ReconnectDelay,
		cfg.TypingTimeout,
	)
	supervisor.Start(ctx)

	return &Client{
		Config:        cfg,
		API:           httpClient,
		Store:         store,
		Sessions:      sessions,
		Cache:         cache,
		Conversations: conversations,
		Contacts:      contactsSvc,
		Codec:         codec,
		Invites:       invites,
		Supervisor:    supervisor,
	}
}

// Close releases timers, subscriptions and the push channel.
func (c *Client) Close() {
	c.Supervisor.Stop()
	c.Contacts.Close()
}

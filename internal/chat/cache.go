// Package chat holds the client-side mirror of conversations and messages.
// Everything here is a best-effort cache of server state: entries may be stale
// or wrong and are corrected as REST responses and push events arrive.
package chat

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/api"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

// optimisticWindow bounds the timestamp-proximity heuristic used to collapse a
// locally-optimistic entry with its server-confirmed echo.
const optimisticWindow = 2 * time.Second

// Page is the result of loading one page of history.
type Page struct {
	Messages []models.Message
	HasMore  bool
}

// Cache keeps per-conversation message sequences in ascending createdAt order.
// Pagination prepends strictly older pages; push events append, patch or flag
// entries in place.
type Cache struct {
	api      *api.Client
	pageSize int
	NowFunc  func() time.Time

	mu       sync.Mutex
	messages map[string][]models.Message
	hasMore  map[string]bool
}

// NewCache constructs a message cache fetching pageSize messages per request.
func NewCache(client *api.Client, pageSize int) *Cache {
	if client == nil {
		panic("chat: api client must not be nil")
	}
	if pageSize <= 0 {
		pageSize = 30
	}
	return &Cache{
		api:      client,
		pageSize: pageSize,
		messages: make(map[string][]models.Message),
		hasMore:  make(map[string]bool),
	}
}

type wireMessage struct {
	ID             string     `json:"_id"`
	ConversationID string     `json:"conversation_id"`
	Sender         string     `json:"sender"`
	Type           string     `json:"type"`
	Content        string     `json:"content"`
	FileName       string     `json:"file_name"`
	ReplyTo        string     `json:"reply_to"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at"`
	Pinned         bool       `json:"pinned"`
	IsDeleted      bool       `json:"is_deleted"`
}

func (w wireMessage) toModel(conversationID string) models.Message {
	if w.ConversationID != "" {
		conversationID = w.ConversationID
	}
	return models.Message{
		ID:             w.ID,
		ConversationID: conversationID,
		Sender:         w.Sender,
		Type:           w.Type,
		Content:        w.Content,
		FileName:       w.FileName,
		ReplyToID:      w.ReplyTo,
		CreatedAt:      w.CreatedAt,
		EditedAt:       w.EditedAt,
		Pinned:         w.Pinned,
		Deleted:        w.IsDeleted,
	}
}

type messagesResponse struct {
	Messages []wireMessage `json:"messages"`
	Count    int           `json:"count"`
}

// LoadPage fetches one page of history. With an empty beforeID the latest page
// replaces the cached tail; with a beforeID the strictly older page is
// prepended. A short page clears the conversation's hasMore flag.
func (c *Cache) LoadPage(ctx context.Context, conversationID, beforeID string) (Page, error) {
	if conversationID == "" {
		return Page{}, fmt.Errorf("chat: conversation id must be provided")
	}

	query := url.Values{}
	query.Set("conversation_id", conversationID)
	query.Set("limit", strconv.Itoa(c.pageSize))
	if beforeID != "" {
		query.Set("before", beforeID)
	}

	var resp messagesResponse
	if err := c.api.Get(ctx, "/messages/get?"+query.Encode(), &resp); err != nil {
		return Page{}, fmt.Errorf("fetch messages: %w", err)
	}

	// The server answers newest-first; the cache keeps ascending order.
	page := make([]models.Message, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		page = append(page, resp.Messages[i].toModel(conversationID))
	}
	hasMore := len(resp.Messages) == c.pageSize

	c.mu.Lock()
	if beforeID == "" {
		c.messages[conversationID] = append([]models.Message(nil), page...)
	} else {
		c.messages[conversationID] = append(page, c.messages[conversationID]...)
	}
	c.hasMore[conversationID] = hasMore
	snapshot := append([]models.Message(nil), c.messages[conversationID]...)
	c.mu.Unlock()

	return Page{Messages: snapshot, HasMore: hasMore}, nil
}

// Messages returns a copy of the cached sequence for a conversation.
func (c *Cache) Messages(conversationID string) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages[conversationID]...)
}

// HasMore reports whether older history may remain. True until a page returns
// fewer items than requested.
func (c *Cache) HasMore(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	more, seen := c.hasMore[conversationID]
	if !seen {
		return true
	}
	return more
}

// SendOptimistic inserts a message before server acknowledgment. The entry
// gets a local identifier and is reconciled against the eventual server echo
// by ApplyNew.
func (c *Cache) SendOptimistic(msg models.Message) models.Message {
	msg.ID = ""
	msg.LocalID = uuid.NewString()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = c.now()
	}

	c.mu.Lock()
	c.messages[msg.ConversationID] = append(c.messages[msg.ConversationID], msg)
	c.mu.Unlock()
	return msg
}

// ApplyNew applies a pushed or echoed message exactly once. Duplicates are
// detected by server identifier; entries still waiting for their identifier
// are matched by sender, type, content (filename for media) and createdAt
// proximity, then upgraded in place with the server copy. The return value
// reports whether a new entry was added.
func (c *Cache) ApplyNew(msg models.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.messages[msg.ConversationID]
	for i := range seq {
		if seq[i].ID != "" && msg.ID != "" && seq[i].ID == msg.ID {
			localID := seq[i].LocalID
			seq[i] = msg
			seq[i].LocalID = localID
			return false
		}
		if seq[i].ID == "" && c.matchesOptimistic(seq[i], msg) {
			localID := seq[i].LocalID
			seq[i] = msg
			seq[i].LocalID = localID
			return false
		}
	}

	c.messages[msg.ConversationID] = insertOrdered(seq, msg)
	return true
}

func (c *Cache) matchesOptimistic(local, incoming models.Message) bool {
	if local.Sender != incoming.Sender || local.Type != incoming.Type {
		return false
	}
	switch local.Type {
	case models.MessageTypeImage, models.MessageTypeFile:
		if local.FileName != incoming.FileName {
			return false
		}
	default:
		if local.Content != incoming.Content {
			return false
		}
	}
	diff := local.CreatedAt.Sub(incoming.CreatedAt)
	if diff < 0 {
		diff = -diff
	}
	return diff < optimisticWindow
}

// ApplyEdit patches the cached entry's content in place and stamps editedAt.
func (c *Cache) ApplyEdit(conversationID, messageID, content string, editedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.messages[conversationID]
	for i := range seq {
		if seq[i].ID == messageID {
			seq[i].Content = content
			at := editedAt
			if at.IsZero() {
				at = c.now()
			}
			seq[i].EditedAt = &at
			return
		}
	}
}

// ApplyDelete flags the cached entry as deleted. History is kept so the UI
// can render a tombstone, matching the server's soft-delete model.
func (c *Cache) ApplyDelete(conversationID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.messages[conversationID]
	for i := range seq {
		if seq[i].ID == messageID {
			seq[i].Deleted = true
			return
		}
	}
}

// ApplyPin toggles the cached entry's pinned flag.
func (c *Cache) ApplyPin(conversationID, messageID string, pinned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.messages[conversationID]
	for i := range seq {
		if seq[i].ID == messageID {
			seq[i].Pinned = pinned
			return
		}
	}
}

// Clear drops the cached sequence for a conversation, resetting pagination.
func (c *Cache) Clear(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, conversationID)
	delete(c.hasMore, conversationID)
}

func (c *Cache) now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now().UTC()
}

func insertOrdered(seq []models.Message, msg models.Message) []models.Message {
	idx := sort.Search(len(seq), func(i int) bool {
		return seq[i].CreatedAt.After(msg.CreatedAt)
	})
	seq = append(seq, models.Message{})
	copy(seq[idx+1:], seq[idx:])
	seq[idx] = msg
	return seq
}

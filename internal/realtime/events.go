package realtime

import (
	"time"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/chat"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

// Push channel event names, client to server.
const (
	eventJoinConversation = "join_conversation"
	eventSendMessage      = "send_message"
	eventEditMessage      = "edit_message"
	eventDeleteMessage    = "delete_message"
	eventTogglePin        = "toggle_pin_message"
	eventTyping           = "typing"
	eventStopTyping       = "stop_typing"
)

// Push channel event names, server to client.
const (
	eventNewMessage     = "new_message"
	eventMessageEdited  = "message_edited"
	eventMessageDeleted = "message_deleted"
	eventMessagePinned  = "message_pinned"
	eventPresence       = "presence"
)

// EventHandler receives decoded push events. Handlers must tolerate redelivery
// of the same event after a reconnect; the cache-backed handler deduplicates
// by message identifier.
type EventHandler interface {
	NewMessage(msg models.Message)
	MessageEdited(conversationID, messageID, content string)
	MessageDeleted(conversationID, messageID string)
	MessagePinned(conversationID, messageID string, pinned bool)
	Presence(email string, online bool)
	Typing(conversationID, email string, typing bool)
}

// CacheEvents routes push events into the message cache and forwards
// presence/typing to optional callbacks. The nil callbacks are simply dropped;
// presence and typing are transient and have no cache representation.
type CacheEvents struct {
	Cache      *chat.Cache
	OnPresence func(email string, online bool)
	OnTyping   func(conversationID, email string, typing bool)
}

// NewMessage applies a pushed message to the cache exactly once.
func (e CacheEvents) NewMessage(msg models.Message) {
	e.Cache.ApplyNew(msg)
}

// MessageEdited patches the cached entry in place.
func (e CacheEvents) MessageEdited(conversationID, messageID, content string) {
	e.Cache.ApplyEdit(conversationID, messageID, content, time.Time{})
}

// MessageDeleted flags the cached entry deleted.
func (e CacheEvents) MessageDeleted(conversationID, messageID string) {
	e.Cache.ApplyDelete(conversationID, messageID)
}

// MessagePinned toggles the cached entry's pinned flag.
func (e CacheEvents) MessagePinned(conversationID, messageID string, pinned bool) {
	e.Cache.ApplyPin(conversationID, messageID, pinned)
}

// Presence forwards a presence change when a callback is installed.
func (e CacheEvents) Presence(email string, online bool) {
	if e.OnPresence != nil {
		e.OnPresence(email, online)
	}
}

// Typing forwards a typing indicator when a callback is installed.
func (e CacheEvents) Typing(conversationID, email string, typing bool) {
	if e.OnTyping != nil {
		e.OnTyping(conversationID, email, typing)
	}
}

type wireMessage struct {
	ID             string     `json:"_id"`
	MessageID      string     `json:"message_id"`
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

func (w wireMessage) toModel() models.Message {
	id := w.ID
	if id == "" {
		id = w.MessageID
	}
	return models.Message{
		ID:             id,
		ConversationID: w.ConversationID,
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

type wireMessageRef struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
	NewContent     string `json:"new_content"`
	Pinned         bool   `json:"pinned"`
}

type wirePresence struct {
	Email  string `json:"email"`
	Online bool   `json:"online"`
}

type wireTyping struct {
	ConversationID string `json:"conversation_id"`
	Email          string `json:"email"`
}

type outboundMessage struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content,omitempty"`
	Type           string `json:"type"`
	FileName       string `json:"file_name,omitempty"`
	FileData       string `json:"file_data,omitempty"`
	ReplyTo        string `json:"reply_to,omitempty"`
}

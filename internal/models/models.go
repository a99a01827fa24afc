package models

import "time"

// Session groups the bearer credentials issued to an authenticated user.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Valid reports whether both credentials are present.
func (s Session) Valid() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// User is a cached, non-authoritative mirror of a server-side account.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profile_picture"`
}

// ConversationFlags carries the per-user relationship state of a conversation.
type ConversationFlags struct {
	Archived  bool `json:"archived"`
	Muted     bool `json:"muted"`
	Pinned    bool `json:"pinned"`
	Favorited bool `json:"favorited"`
}

// Conversation mirrors a direct or group conversation. Conversations are never
// hard-deleted client side; deletion is server-authoritative.
type Conversation struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	IsGroup       bool              `json:"is_group"`
	Participants  []string          `json:"participants"`
	LastMessageID string            `json:"last_message_id,omitempty"`
	Flags         ConversationFlags `json:"flags"`
}

// Message types understood by the push channel.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// Message mirrors a single chat message. Deleted messages are flagged, not
// removed, so the UI can render tombstones consistently with the server's
// soft-delete model.
type Message struct {
	ID             string     `json:"id"`
	LocalID        string     `json:"local_id,omitempty"`
	ConversationID string     `json:"conversation_id"`
	Sender         string     `json:"sender"`
	Type           string     `json:"type"`
	Content        string     `json:"content"`
	FileName       string     `json:"file_name,omitempty"`
	ReplyToID      string     `json:"reply_to,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Deleted        bool       `json:"deleted"`
	Pinned         bool       `json:"pinned"`
}

// Edited reports whether the message has been edited at least once.
func (m Message) Edited() bool {
	return m.EditedAt != nil
}

// Contact is a user on the contact list together with relationship flags.
type Contact struct {
	User
	ConversationID string `json:"conversation_id"`
	Blocked        bool   `json:"blocked"`
	Archived       bool   `json:"archived"`
	Muted          bool   `json:"muted"`
	Pinned         bool   `json:"is_pinned"`
	Favorited      bool   `json:"is_favorited"`
}

// JoinRequest is a pending request to join a group conversation.
type JoinRequest struct {
	ConversationID string    `json:"conversation_id"`
	Requester      string    `json:"requester"`
	RequestedAt    time.Time `json:"requested_at"`
}

package chat

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/api"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/logging"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

// Service wraps the conversation REST endpoints: creation, group membership,
// relationship flags and the join-request workflow.
type Service struct {
	api *api.Client
}

// NewService constructs a conversation Service around the shared API client.
func NewService(client *api.Client) *Service {
	if client == nil {
		panic("chat: api client must not be nil")
	}
	return &Service{api: client}
}

type createConversationResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversation_id"`
	Email          string `json:"email"`
	AlreadyExists  bool   `json:"already_exists"`
}

// CreateConversation opens (or reopens) a direct conversation with a contact.
func (s *Service) CreateConversation(ctx context.Context, email string) (models.Conversation, error) {
	var resp createConversationResponse
	if err := s.api.Post(ctx, "/conversations/create", map[string]string{"email": email}, &resp); err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	if !resp.Success {
		return models.Conversation{}, fmt.Errorf("chat: conversation creation rejected")
	}
	return models.Conversation{
		ID:           resp.ConversationID,
		Participants: []string{resp.Email},
	}, nil
}

type createGroupResponse struct {
	Success        bool   `json:"success"`
	ConversationID string `json:"conversation_id"`
}

// CreateGroup creates a group conversation with the given participants.
func (s *Service) CreateGroup(ctx context.Context, name string, participants []string) (models.Conversation, error) {
	payload := map[string]any{"group_name": name, "participants": participants}

	var resp createGroupResponse
	if err := s.api.Post(ctx, "/conversations/create/group", payload, &resp); err != nil {
		return models.Conversation{}, fmt.Errorf("create group: %w", err)
	}
	if !resp.Success {
		return models.Conversation{}, fmt.Errorf("chat: group creation rejected")
	}
	return models.Conversation{
		ID:           resp.ConversationID,
		Name:         name,
		IsGroup:      true,
		Participants: participants,
	}, nil
}

type wireGroup struct {
	ConversationID string   `json:"conversation_id"`
	GroupName      string   `json:"group_name"`
	Participants   []string `json:"participants"`
	LastMessageID  string   `json:"last_message_id"`
}

type groupsResponse struct {
	Success bool        `json:"success"`
	Groups  []wireGroup `json:"groups"`
}

// Groups lists the caller's group conversations.
func (s *Service) Groups(ctx context.Context) ([]models.Conversation, error) {
	var resp groupsResponse
	if err := s.api.Get(ctx, "/conversations/fetch/groups", &resp); err != nil {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("chat: group listing rejected")
	}

	groups := make([]models.Conversation, 0, len(resp.Groups))
	for _, g := range resp.Groups {
		groups = append(groups, models.Conversation{
			ID:            g.ConversationID,
			Name:          g.GroupName,
			IsGroup:       true,
			Participants:  g.Participants,
			LastMessageID: g.LastMessageID,
		})
	}
	return groups, nil
}

type wireConversation struct {
	ID            string   `json:"_id"`
	IsGroup       bool     `json:"is_group"`
	GroupName     string   `json:"group_name"`
	Participants  []string `json:"participants"`
	LastMessageID string   `json:"last_message"`
}

// ConversationInfo fetches the full conversation document.
func (s *Service) ConversationInfo(ctx context.Context, conversationID string) (models.Conversation, error) {
	var resp wireConversation
	path := "/conversations/info?conversation_id=" + url.QueryEscape(conversationID)
	if err := s.api.Get(ctx, path, &resp); err != nil {
		return models.Conversation{}, fmt.Errorf("fetch conversation info: %w", err)
	}
	return models.Conversation{
		ID:            resp.ID,
		Name:          resp.GroupName,
		IsGroup:       resp.IsGroup,
		Participants:  resp.Participants,
		LastMessageID: resp.LastMessageID,
	}, nil
}

// MessageInfo fetches a single message, as when resolving a reply reference
// that is outside the cached window.
func (s *Service) MessageInfo(ctx context.Context, messageID string) (models.Message, error) {
	var resp wireMessage
	path := "/messages/info?message_id=" + url.QueryEscape(messageID)
	if err := s.api.Get(ctx, path, &resp); err != nil {
		return models.Message{}, fmt.Errorf("fetch message info: %w", err)
	}
	return resp.toModel(""), nil
}

type wireGroupState struct {
	ConversationID string `json:"conversation_id"`
	Archived       bool   `json:"archived"`
	Muted          bool   `json:"muted"`
	Pinned         bool   `json:"pinned"`
	Favorited      bool   `json:"favorited"`
}

type groupDataResponse struct {
	Success   bool             `json:"success"`
	GroupList []wireGroupState `json:"group_list"`
}

// GroupFlags fetches the caller's per-conversation relationship flags.
func (s *Service) GroupFlags(ctx context.Context) (map[string]models.ConversationFlags, error) {
	var resp groupDataResponse
	if err := s.api.Get(ctx, "/users/getgroupdata", &resp); err != nil {
		return nil, fmt.Errorf("fetch group flags: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("chat: group flag listing rejected")
	}

	flags := make(map[string]models.ConversationFlags, len(resp.GroupList))
	for _, g := range resp.GroupList {
		flags[g.ConversationID] = models.ConversationFlags{
			Archived:  g.Archived,
			Muted:     g.Muted,
			Pinned:    g.Pinned,
			Favorited: g.Favorited,
		}
	}
	return flags, nil
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Service) toggle(ctx context.Context, path, conversationID string) error {
	var resp successResponse
	if err := s.api.Post(ctx, path, map[string]string{"conversation_id": conversationID}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("chat: request rejected")
	}
	return nil
}

// ToggleArchive flips the archived flag for a conversation.
func (s *Service) ToggleArchive(ctx context.Context, conversationID string) error {
	return s.toggle(ctx, "/conversations/archive", conversationID)
}

// ToggleMute flips the muted flag for a conversation.
func (s *Service) ToggleMute(ctx context.Context, conversationID string) error {
	return s.toggle(ctx, "/conversations/mute", conversationID)
}

// TogglePin flips the pinned flag for a conversation.
func (s *Service) TogglePin(ctx context.Context, conversationID string) error {
	return s.toggle(ctx, "/conversations/pinned", conversationID)
}

// ToggleFavorite flips the favorited flag for a conversation.
func (s *Service) ToggleFavorite(ctx context.Context, conversationID string) error {
	return s.toggle(ctx, "/conversations/favorite", conversationID)
}

// DeleteGroup removes a group. Deletion is server-authoritative; the caller is
// expected to drop any cached state on success.
func (s *Service) DeleteGroup(ctx context.Context, conversationID string) error {
	var resp successResponse
	path := "/conversations/delete/group?conversation_id=" + url.QueryEscape(conversationID)
	if err := s.api.Delete(ctx, path, nil, &resp); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("chat: group deletion rejected")
	}
	return nil
}

// LeaveGroup removes the caller from a group's membership.
func (s *Service) LeaveGroup(ctx context.Context, conversationID string) error {
	if err := s.toggle(ctx, "/conversations/leave", conversationID); err != nil {
		return fmt.Errorf("leave group: %w", err)
	}
	return nil
}

// JoinGroup joins a group directly, as after accepting a valid invite.
func (s *Service) JoinGroup(ctx context.Context, conversationID string) error {
	var resp successResponse
	path := "/conversations/group/join?conversation_id=" + url.QueryEscape(conversationID)
	if err := s.api.Post(ctx, path, struct{}{}, &resp); err != nil {
		return fmt.Errorf("join group: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("chat: group join rejected")
	}
	logging.FromContext(ctx).Info("joined group", "conversationId", conversationID)
	return nil
}

// EditGroup updates group metadata such as its name.
func (s *Service) EditGroup(ctx context.Context, conversationID string, changes map[string]any) error {
	var resp successResponse
	path := "/conversations/edit/group?conversation_id=" + url.QueryEscape(conversationID)
	if err := s.api.Put(ctx, path, changes, &resp); err != nil {
		return fmt.Errorf("edit group: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("chat: group edit rejected")
	}
	return nil
}

// RequestJoin files a join request for a group the caller is not a member of.
func (s *Service) RequestJoin(ctx context.Context, conversationID string) error {
	if err := s.toggle(ctx, "/conversations/group/join", conversationID); err != nil {
		return fmt.Errorf("request join: %w", err)
	}
	return nil
}

type pendingRequestsResponse struct {
	Success  bool                 `json:"success"`
	Requests []models.JoinRequest `json:"requests"`
}

// PendingRequests lists outstanding join requests for a group the caller
// administers.
func (s *Service) PendingRequests(ctx context.Context, conversationID string) ([]models.JoinRequest, error) {
	var resp pendingRequestsResponse
	path := "/conversations/group/join/pending?conversation_id=" + url.QueryEscape(conversationID)
	if err := s.api.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("fetch pending requests: %w", err)
	}
	return resp.Requests, nil
}

func (s *Service) resolveJoin(ctx context.Context, path, conversationID, requester string) error {
	payload := map[string]string{
		"conversation_id": conversationID,
		"requester_email": requester,
	}
	var resp successResponse
	if err := s.api.Post(ctx, path, payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("chat: request rejected")
	}
	return nil
}

// ApproveJoin accepts a pending join request.
func (s *Service) ApproveJoin(ctx context.Context, conversationID, requester string) error {
	return s.resolveJoin(ctx, "/conversations/group/join/approve", conversationID, requester)
}

// RejectJoin declines a pending join request.
func (s *Service) RejectJoin(ctx context.Context, conversationID, requester string) error {
	return s.resolveJoin(ctx, "/conversations/group/join/reject", conversationID, requester)
}

// ExportGroupChat downloads the group history as a CSV payload.
func (s *Service) ExportGroupChat(ctx context.Context, conversationID string) ([]byte, error) {
	path := "/backup/export/group/chat?conversation_id=" + url.QueryEscape(conversationID)
	payload, _, err := s.api.Download(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("export group chat: %w", err)
	}
	return payload, nil
}

// ImportGroupChat uploads a previously exported CSV history.
func (s *Service) ImportGroupChat(ctx context.Context, fileName string, csv []byte) error {
	var resp successResponse
	if err := s.api.PostMultipart(ctx, "/backup/import/group/chat", nil, "file", fileName, csv, &resp); err != nil {
		return fmt.Errorf("import group chat: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("chat: import rejected")
	}
	return nil
}

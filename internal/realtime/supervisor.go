// Package realtime supervises the single push-channel connection: opening,
// closing, authenticated reconnects, and translation of inbound events into
// cache mutations.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/auth"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/logging"
	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

// State of the supervised connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrNoToken indicates a connection attempt without stored credentials.
	ErrNoToken = errors.New("realtime: no access token available")
	// ErrNotConnected indicates an emit while the channel is down.
	ErrNotConnected = errors.New("realtime: not connected")
)

// SessionManager is the slice of the auth manager the supervisor drives: token
// refresh on transport auth failures and forced logout when refresh fails.
type SessionManager interface {
	Refresh(ctx context.Context) (string, error)
	Logout(ctx context.Context)
}

// maxReconnectAttempts bounds a single recovery episode. Recovery is
// best-effort; after the attempts run out the supervisor settles in
// Disconnected and waits for an explicit Connect.
const maxReconnectAttempts = 5

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Supervisor owns the push-channel connection. There is never more than one
// live connection handle: every (re)connect tears down the previous handle
// under the supervisor's lock before dialing.
type Supervisor struct {
	socketURL string
	store     *auth.TokenStore
	sessions  SessionManager
	handler   EventHandler
	limiter   *rate.Limiter
	dialer    *websocket.Dialer

	typingTTL time.Duration

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	gen         uint64
	recovering  bool
	typingTimer *time.Timer
	unsubscribe func()

	writeMu sync.Mutex
}

// NewSupervisor constructs a Supervisor. reconnectDelay is the fixed pause
// between recovery attempts; the rate limiter guarantees at most one dial per
// delay window even when drops arrive in bursts.
func NewSupervisor(socketURL string, store *auth.TokenStore, sessions SessionManager, handler EventHandler, reconnectDelay, typingTTL time.Duration) *Supervisor {
	if store == nil {
		panic("realtime: token store must not be nil")
	}
	if sessions == nil {
		panic("realtime: session manager must not be nil")
	}
	if handler == nil {
		panic("realtime: event handler must not be nil")
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}
	if typingTTL <= 0 {
		typingTTL = 3 * time.Second
	}
	return &Supervisor{
		socketURL: socketURL,
		store:     store,
		sessions:  sessions,
		handler:   handler,
		limiter:   rate.NewLimiter(rate.Every(reconnectDelay), 1),
		dialer:    websocket.DefaultDialer,
		typingTTL: typingTTL,
		state:     StateDisconnected,
	}
}

// Start subscribes the supervisor to token store changes: a rotated token
// rebinds a live connection, a cleared token tears it down for good. The
// returned supervisor is not yet connected; call Connect.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	unsubscribe := s.store.Subscribe(func(event auth.TokenEvent) {
		switch event {
		case auth.TokenUpdated:
			s.mu.Lock()
			active := s.state == StateConnected || s.state == StateConnecting
			s.mu.Unlock()
			if active {
				logging.FromContext(ctx).Info("token rotated, rebinding push channel")
				go func() {
					if err := s.Connect(ctx); err != nil {
						logging.FromContext(ctx).Warn("rebind after token rotation failed", "error", err)
					}
				}()
			}
		case auth.TokenCleared:
			s.Disconnect()
		}
	})

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect establishes the push channel, tearing down any existing connection
// first. A transport-level auth rejection triggers one refresh-then-redial;
// if the refresh fails too, the session is forcibly logged out.
func (s *Supervisor) Connect(ctx context.Context) error {
	session, ok := s.store.Get()
	if !ok {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return ErrNoToken
	}

	err := s.dial(ctx, session.AccessToken)
	if err == nil {
		return nil
	}
	if !isAuthRejection(err) {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}

	logging.FromContext(ctx).Info("push channel rejected credentials, refreshing token")
	token, refreshErr := s.sessions.Refresh(ctx)
	if refreshErr != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.sessions.Logout(ctx)
		return fmt.Errorf("refresh for push channel: %w", refreshErr)
	}

	if err := s.dial(ctx, token); err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Supervisor) dial(ctx context.Context, token string) error {
	endpoint, err := s.endpoint(token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.teardownLocked()
	s.state = StateConnecting
	gen := s.gen
	s.mu.Unlock()

	conn, resp, err := s.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w: status %d", errAuthRejected, resp.StatusCode)
		}
		return fmt.Errorf("dial push channel: %w", err)
	}

	s.mu.Lock()
	// A concurrent Disconnect or newer Connect won while we were dialing.
	if s.gen != gen || s.state != StateConnecting {
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.state = StateConnected
	s.recovering = false
	s.gen++
	gen = s.gen
	s.mu.Unlock()

	logging.FromContext(ctx).Info("push channel connected")
	go s.readLoop(ctx, gen, conn)
	return nil
}

var errAuthRejected = errors.New("realtime: authentication rejected")

func isAuthRejection(err error) bool {
	return errors.Is(err, errAuthRejected)
}

func (s *Supervisor) endpoint(token string) (string, error) {
	u, err := url.Parse(s.socketURL)
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	query := u.Query()
	query.Set("access_token", token)
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (s *Supervisor) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.handleDrop(ctx, gen, err)
			return
		}
		s.dispatch(ctx, env)
	}
}

// handleDrop reacts to a broken read loop. Deliberate disconnects and
// superseded connections are recognized by generation mismatch and ignored;
// everything else enters bounded, fixed-delay recovery.
func (s *Supervisor) handleDrop(ctx context.Context, gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = StateReconnecting
	s.recovering = true
	s.mu.Unlock()

	logging.FromContext(ctx).Warn("push channel dropped, reconnecting", "error", cause)

	go s.recover(ctx)
}

func (s *Supervisor) recover(ctx context.Context) {
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		s.mu.Lock()
		if !s.recovering {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		err := s.Connect(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, ErrNoToken) {
			return
		}
		logging.FromContext(ctx).Warn("reconnect attempt failed", "attempt", attempt, "error", err)

		s.mu.Lock()
		// Connect settles in Disconnected on failure; stay in recovery until
		// the attempts run out or someone deliberately disconnects.
		if s.recovering && attempt < maxReconnectAttempts {
			s.state = StateReconnecting
		} else {
			s.recovering = false
		}
		s.mu.Unlock()
	}

	logging.FromContext(ctx).Error("push channel recovery exhausted, staying disconnected")
}

// Disconnect closes the channel and settles in Disconnected. It is valid from
// any state, idempotent, and never triggers auto-reconnect.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	s.teardownLocked()
	s.recovering = false
	s.state = StateDisconnected
	s.mu.Unlock()
}

// Stop disconnects and removes the token store subscription.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.teardownLocked()
	s.recovering = false
	s.state = StateDisconnected
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// teardownLocked closes any live handle and invalidates its read loop. Callers
// hold s.mu.
func (s *Supervisor) teardownLocked() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.gen++
}

func (s *Supervisor) dispatch(ctx context.Context, env envelope) {
	logger := logging.FromContext(ctx)
	switch env.Event {
	case eventNewMessage:
		var msg wireMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			logger.Warn("malformed push payload", "event", env.Event, "error", err)
			return
		}
		s.handler.NewMessage(msg.toModel())
	case eventMessageEdited:
		var ref wireMessageRef
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			logger.Warn("malformed push payload", "event", env.Event, "error", err)
			return
		}
		content := ref.Content
		if content == "" {
			content = ref.NewContent
		}
		s.handler.MessageEdited(ref.ConversationID, ref.MessageID, content)
	case eventMessageDeleted:
		var ref wireMessageRef
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			logger.Warn("malformed push payload", "event", env.Event, "error", err)
			return
		}
		s.handler.MessageDeleted(ref.ConversationID, ref.MessageID)
	case eventMessagePinned:
		var ref wireMessageRef
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			logger.Warn("malformed push payload", "event", env.Event, "error", err)
			return
		}
		s.handler.MessagePinned(ref.ConversationID, ref.MessageID, ref.Pinned)
	case eventPresence:
		var p wirePresence
		if err := json.Unmarshal(env.Data, &p); err != nil {
			logger.Warn("malformed push payload", "event", env.Event, "error", err)
			return
		}
		s.handler.Presence(p.Email, p.Online)
	case eventTyping, eventStopTyping:
		var t wireTyping
		if err := json.Unmarshal(env.Data, &t); err != nil {
			logger.Warn("malformed push payload", "event", env.Event, "error", err)
			return
		}
		s.handler.Typing(t.ConversationID, t.Email, env.Event == eventTyping)
	default:
		logger.Debug("unhandled push event", "event", env.Event)
	}
}

func (s *Supervisor) emit(event string, data any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(outEnvelope{Event: event, Data: data}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// JoinConversation subscribes this connection to a conversation's events.
func (s *Supervisor) JoinConversation(conversationID string) error {
	return s.emit(eventJoinConversation, map[string]string{"conversation_id": conversationID})
}

// SendText sends a text message, optionally replying to another message.
func (s *Supervisor) SendText(conversationID, content, replyTo string) error {
	return s.emit(eventSendMessage, outboundMessage{
		ConversationID: conversationID,
		Content:        content,
		Type:           models.MessageTypeText,
		ReplyTo:        replyTo,
	})
}

// SendImage sends an image attachment as base64 file data.
func (s *Supervisor) SendImage(conversationID, fileName, fileData string) error {
	return s.emit(eventSendMessage, outboundMessage{
		ConversationID: conversationID,
		Type:           models.MessageTypeImage,
		FileName:       fileName,
		FileData:       fileData,
	})
}

// SendFile sends a generic file attachment as base64 file data.
func (s *Supervisor) SendFile(conversationID, fileName, fileData string) error {
	return s.emit(eventSendMessage, outboundMessage{
		ConversationID: conversationID,
		Type:           models.MessageTypeFile,
		FileName:       fileName,
		FileData:       fileData,
	})
}

// EditMessage replaces a message's content.
func (s *Supervisor) EditMessage(messageID, content string) error {
	return s.emit(eventEditMessage, map[string]string{
		"message_id":  messageID,
		"new_content": content,
	})
}

// DeleteMessage soft-deletes a message.
func (s *Supervisor) DeleteMessage(messageID string) error {
	return s.emit(eventDeleteMessage, map[string]string{"message_id": messageID})
}

// TogglePinMessage flips a message's pinned flag.
func (s *Supervisor) TogglePinMessage(messageID string) error {
	return s.emit(eventTogglePin, map[string]string{"message_id": messageID})
}

// StartTyping announces a typing indicator and schedules its automatic stop.
// Repeated calls push the stop out, keeping at most one timer alive.
func (s *Supervisor) StartTyping(conversationID string) error {
	if err := s.emit(eventTyping, map[string]string{"conversation_id": conversationID}); err != nil {
		return err
	}

	s.mu.Lock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.typingTTL, func() {
		_ = s.StopTyping(conversationID)
	})
	s.mu.Unlock()
	return nil
}

// StopTyping clears the typing indicator and cancels the pending auto-stop.
func (s *Supervisor) StopTyping(conversationID string) error {
	s.mu.Lock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.mu.Unlock()

	return s.emit(eventStopTyping, map[string]string{"conversation_id": conversationID})
}

// Package chat holds the state of the active conversation in the chat view.
package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aksara/internal/client"
	"aksara/internal/dummydata"
	"aksara/internal/logging"
	"aksara/internal/models"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 512

	// ErrorReply is appended in place of a reply when the request fails.
	ErrorReply = "An error occurred, please try again."
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a reply is still pending")
)

type State int

const (
	Idle State = iota
	Sending
	AwaitingReply
	ErrorAppended
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case AwaitingReply:
		return "awaiting_reply"
	case ErrorAppended:
		return "error_appended"
	}
	return "unknown"
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message is one bubble in the chat view.
type Message struct {
	ID        string
	Content   string
	Sender    Sender
	Timestamp time.Time
	IsError   bool
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	State      State
	Messages   []Message
	SelectedID string
	Typing     bool
	LastErr    error
}

// Session tracks the selected conversation and its messages.
// All methods are safe for concurrent use; listeners run outside the lock.
type Session struct {
	backend client.Backend
	logger  *zap.Logger
	now     func() time.Time

	mu         sync.Mutex
	opts       client.SendOptions
	state      State
	messages   []Message
	selected   string
	generation uint64
	lastErr    error
	listeners  []func(Snapshot)
}

// New starts on an unsaved conversation showing the greeting.
func New(backend client.Backend, logger *zap.Logger) *Session {
	s := &Session{
		backend: backend,
		logger:  logging.OrNop(logger),
		now:     time.Now,
		opts:    client.SendOptions{Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens},
	}
	s.messages = []Message{s.greeting()}
	return s
}

// SetOptions changes the sampling options used by later sends.
func (s *Session) SetOptions(opts client.SendOptions) {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// OnChange registers fn to be called after every change.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:      s.state,
		Messages:   append([]Message(nil), s.messages...),
		SelectedID: s.selected,
		Typing:     s.state == AwaitingReply,
		LastErr:    s.lastErr,
	}
}

// commitLocked releases the lock and notifies listeners of the new state.
func (s *Session) commitLocked() {
	snap := s.snapshotLocked()
	listeners := make([]func(Snapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *Session) pendingLocked() bool {
	return s.state == Sending || s.state == AwaitingReply
}

func (s *Session) greeting() Message {
	return Message{ID: uuid.NewString(), Content: dummydata.Greeting, Sender: SenderAI, Timestamp: s.now()}
}

// Send appends text as a user message and waits for the reply. Failures end
// up in the conversation as an error message rather than in the returned error.
func (s *Session) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	s.mu.Lock()
	if s.pendingLocked() {
		s.mu.Unlock()
		return ErrBusy
	}
	s.messages = append(s.messages, Message{ID: uuid.NewString(), Content: text, Sender: SenderUser, Timestamp: s.now()})
	s.state = Sending
	s.lastErr = nil
	gen := s.generation
	conversationID := s.selected
	opts := s.opts
	s.commitLocked()

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	s.state = AwaitingReply
	s.commitLocked()

	resp, err := s.backend.SendMessage(ctx, conversationID, text, opts)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.logger.Debug("dropping reply for a conversation no longer shown", zap.String("conversation_id", conversationID))
		return nil
	}
	if err != nil {
		s.logger.Warn("send message failed", zap.String("conversation_id", conversationID), zap.Error(err))
		s.messages = append(s.messages, Message{ID: uuid.NewString(), Content: ErrorReply, Sender: SenderAI, Timestamp: s.now(), IsError: true})
		s.state = ErrorAppended
		s.lastErr = err
		s.commitLocked()
		return nil
	}
	ts := resp.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	s.messages = append(s.messages, Message{ID: uuid.NewString(), Content: resp.Output, Sender: SenderAI, Timestamp: ts})
	if resp.ConversationID != "" {
		s.selected = resp.ConversationID
	}
	s.state = Idle
	s.commitLocked()
	return nil
}

// Select loads conversation id and replaces the message list with it.
// On failure the current list stays and the error is returned. Selecting the
// conversation that is waiting for a reply keeps the local list, which is
// ahead of the server until the reply lands.
func (s *Session) Select(ctx context.Context, id string) error {
	detail, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.commitLocked()
		return err
	}
	messages := make([]Message, 0, len(detail.Messages))
	for _, m := range detail.Messages {
		messages = append(messages, fromModel(m))
	}
	s.mu.Lock()
	if s.pendingLocked() && s.selected != "" && detail.ConversationID == s.selected {
		s.lastErr = nil
		s.commitLocked()
		return nil
	}
	s.generation++
	s.messages = messages
	s.selected = detail.ConversationID
	s.state = Idle
	s.lastErr = nil
	s.commitLocked()
	return nil
}

// NewChat deselects the conversation and shows the greeting.
func (s *Session) NewChat() {
	s.mu.Lock()
	s.generation++
	s.messages = []Message{s.greeting()}
	s.selected = ""
	s.state = Idle
	s.lastErr = nil
	s.commitLocked()
}

// Clear empties the session, used on logout.
func (s *Session) Clear() {
	s.mu.Lock()
	s.generation++
	s.messages = nil
	s.selected = ""
	s.state = Idle
	s.lastErr = nil
	s.commitLocked()
}

// Forget resets to a new chat when id is the selected conversation.
func (s *Session) Forget(id string) {
	s.mu.Lock()
	selected := s.selected
	s.mu.Unlock()
	if id != "" && id == selected {
		s.NewChat()
	}
}

func fromModel(m models.Message) Message {
	sender := SenderUser
	if m.Sender == models.SenderAssistant {
		sender = SenderAI
	}
	return Message{
		ID:        strconv.FormatInt(m.ID, 10),
		Content:   m.Text,
		Sender:    sender,
		Timestamp: m.CreatedAt,
	}
}

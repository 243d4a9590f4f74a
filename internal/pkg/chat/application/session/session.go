// Package session keeps one user's client-side view of their conversations:
// the list, the open thread, the draft and unread counters.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
)

// Backend is what a Session talks to: the HTTP client or the use cases
// directly.
type Backend interface {
	ListConversations(ctx context.Context) ([]usecase.ConversationView, error)
	CreateConversation(ctx context.Context, recipientID string) (usecase.ConversationView, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	ListMessages(ctx context.Context, conversationID string, before *time.Time, limit int) (usecase.MessagePage, error)
	SendMessage(ctx context.Context, conversationID, content string) (chat.Message, error)
	MarkRead(ctx context.Context, conversationID string) (int64, error)
}

// Event kinds a Session reacts to.
const (
	EventMessage             = "message"
	EventConversationDeleted = "conversation_deleted"
)

// Event is a realtime notification already decoded by the transport.
type Event struct {
	Type           string
	ConversationID string
	Message        *chat.Message
}

// ErrNoSelection is returned by operations that need an open conversation.
var ErrNoSelection = errors.New("session: no conversation selected")

// ConversationState is a list entry plus its unread counter.
type ConversationState struct {
	usecase.ConversationView
	Unread int
}

// Session methods are safe for concurrent use. Backend calls run under the
// session lock, so events wait for an in-flight request.
type Session struct {
	backend  Backend
	userID   string
	pageSize int

	mu            sync.Mutex
	conversations []ConversationState
	selected      string
	messages      []chat.Message
	hasMore       bool
	draft         string
	warning       string
}

func New(backend Backend, userID string, pageSize int) *Session {
	if pageSize <= 0 {
		pageSize = usecase.DefaultPageSize
	}
	return &Session{backend: backend, userID: userID, pageSize: pageSize}
}

// Load replaces the conversation list, keeping unread counters for
// conversations that are still there.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Session) loadLocked(ctx context.Context) error {
	views, err := s.backend.ListConversations(ctx)
	if err != nil {
		return err
	}
	unread := make(map[string]int, len(s.conversations))
	for _, c := range s.conversations {
		unread[c.Conversation.ID] = c.Unread
	}
	next := make([]ConversationState, len(views))
	for i, v := range views {
		next[i] = ConversationState{ConversationView: v, Unread: unread[v.Conversation.ID]}
	}
	s.conversations = next
	if s.selected != "" && s.indexLocked(s.selected) < 0 {
		s.clearSelectionLocked()
	}
	return nil
}

// Select opens a conversation: newest page, unread reset, read receipt.
func (s *Session) Select(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.backend.ListMessages(ctx, conversationID, nil, s.pageSize)
	if err != nil {
		return err
	}
	s.selected = conversationID
	s.messages = append([]chat.Message(nil), page.Messages...)
	s.hasMore = page.HasMore
	s.warning = ""
	if i := s.indexLocked(conversationID); i >= 0 {
		s.conversations[i].Unread = 0
	}
	_, err = s.backend.MarkRead(ctx, conversationID)
	return err
}

// LoadMore prepends the page before the oldest loaded message.
func (s *Session) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return ErrNoSelection
	}
	if !s.hasMore || len(s.messages) == 0 {
		return nil
	}
	before := s.messages[0].CreatedAt
	page, err := s.backend.ListMessages(ctx, s.selected, &before, s.pageSize)
	if err != nil {
		return err
	}
	s.messages = append(append([]chat.Message(nil), page.Messages...), s.messages...)
	s.hasMore = page.HasMore
	return nil
}

// SetDraft replaces the text being composed.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	s.draft = text
	s.mu.Unlock()
}

// Send posts text to the open conversation. The draft survives any failure;
// a moderation rejection also sets Warning.
func (s *Session) Send(ctx context.Context, text string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return chat.Message{}, ErrNoSelection
	}
	s.draft = text

	m, err := s.backend.SendMessage(ctx, s.selected, text)
	if err != nil {
		var modErr *chat.ModerationError
		if errors.As(err, &modErr) {
			s.warning = modErr.Warning()
		} else if errors.Is(err, chat.ErrModeration) {
			s.warning = chat.ModerationWarning
		}
		return chat.Message{}, err
	}
	s.appendLocked(m)
	s.bumpLocked(m)
	s.draft = ""
	s.warning = ""
	return m, nil
}

// HandleEvent applies a pushed event. A message for a conversation the
// session has not seen yet reloads the list.
func (s *Session) HandleEvent(ctx context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case EventMessage:
		if ev.Message == nil {
			return nil
		}
		m := *ev.Message
		if s.indexLocked(m.ConversationID) < 0 {
			if err := s.loadLocked(ctx); err != nil {
				return err
			}
		}
		if m.ConversationID == s.selected {
			s.appendLocked(m)
		} else if i := s.indexLocked(m.ConversationID); i >= 0 && m.SenderID != s.userID {
			s.conversations[i].Unread++
		}
		s.bumpLocked(m)
	case EventConversationDeleted:
		s.removeLocked(ev.ConversationID)
	}
	return nil
}

// Create opens (or reuses) a conversation with recipientID and selects it.
func (s *Session) Create(ctx context.Context, recipientID string) (usecase.ConversationView, error) {
	view, err := s.backend.CreateConversation(ctx, recipientID)
	if err != nil {
		return usecase.ConversationView{}, err
	}
	s.mu.Lock()
	if i := s.indexLocked(view.Conversation.ID); i >= 0 {
		s.conversations[i].ConversationView = view
	} else {
		s.conversations = append([]ConversationState{{ConversationView: view}}, s.conversations...)
	}
	s.mu.Unlock()
	return view, s.Select(ctx, view.Conversation.ID)
}

// Delete removes the conversation on the server and from the list.
func (s *Session) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.DeleteConversation(ctx, conversationID); err != nil {
		return err
	}
	s.removeLocked(conversationID)
	return nil
}

// Conversations returns a copy of the list, most recent first.
func (s *Session) Conversations() []ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ConversationState(nil), s.conversations...)
}

// Messages returns a copy of the open thread, oldest first.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.messages...)
}

func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// Warning is the last moderation warning for the open conversation.
func (s *Session) Warning() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.warning
}

func (s *Session) indexLocked(id string) int {
	for i, c := range s.conversations {
		if c.Conversation.ID == id {
			return i
		}
	}
	return -1
}

// appendLocked adds m to the open thread unless it is already there.
func (s *Session) appendLocked(m chat.Message) {
	for _, have := range s.messages {
		if have.ID == m.ID {
			return
		}
	}
	s.messages = append(s.messages, m)
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].CreatedAt.Before(s.messages[j].CreatedAt)
	})
}

// bumpLocked records m as the conversation's latest message and moves the
// conversation to the top.
func (s *Session) bumpLocked(m chat.Message) {
	i := s.indexLocked(m.ConversationID)
	if i < 0 {
		return
	}
	entry := s.conversations[i]
	entry.Conversation.RecordMessage(m)
	copy(s.conversations[1:i+1], s.conversations[:i])
	s.conversations[0] = entry
}

func (s *Session) removeLocked(id string) {
	if i := s.indexLocked(id); i >= 0 {
		s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
	}
	if s.selected == id {
		s.clearSelectionLocked()
	}
}

func (s *Session) clearSelectionLocked() {
	s.selected = ""
	s.messages = nil
	s.hasMore = false
	s.draft = ""
	s.warning = ""
}

package usecase

import (
	"context"
	"time"

	"github.com/dannybszn/doris-referral/internal/infrastructure/clock"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	repository "github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/port"
)

// Paging bounds for ListPage.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// MessagePage is a contiguous slice of a conversation, oldest first.
type MessagePage struct {
	Messages []chat.Message
	// HasMore reports that older messages exist before Messages[0].
	HasMore bool
}

// Oldest returns the timestamp to pass as before for the next older page.
func (p MessagePage) Oldest() *time.Time {
	if len(p.Messages) == 0 {
		return nil
	}
	t := p.Messages[0].CreatedAt
	return &t
}

// MessageStore owns message persistence and ordering.
type MessageStore struct {
	Repo      repository.ChatRepository
	Clock     clock.Clock
	PageSize  int
	MaxLength int
}

func NewMessageStore(repo repository.ChatRepository, c clock.Clock, pageSize, maxLength int) *MessageStore {
	if c == nil {
		c = clock.Real()
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	if maxLength <= 0 {
		maxLength = chat.DefaultMaxMessageLength
	}
	return &MessageStore{Repo: repo, Clock: c, PageSize: pageSize, MaxLength: maxLength}
}

// Validate normalizes content without storing anything.
func (s *MessageStore) Validate(conversationID, senderID, content string) (*chat.Message, error) {
	return chat.NewMessage(conversationID, senderID, content, s.MaxLength)
}

// Append stores a message. The timestamp is the current time moved forward
// past the previous message when needed, and Read starts false.
func (s *MessageStore) Append(ctx context.Context, conversationID, senderID, content string) (chat.Message, error) {
	draft, err := s.Validate(conversationID, senderID, content)
	if err != nil {
		return chat.Message{}, err
	}
	m, err := s.Repo.AppendMessage(ctx, *draft, s.Clock.Now())
	if err != nil {
		return chat.Message{}, persistErr(err)
	}
	return m, nil
}

// ListPage returns up to limit messages older than before (the newest when
// before is nil) in chronological order. Walking back with before set to
// the previous page's Oldest visits every message exactly once.
func (s *MessageStore) ListPage(ctx context.Context, conversationID string, before *time.Time, limit int) (MessagePage, error) {
	if limit <= 0 {
		limit = s.PageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	newestFirst, err := s.Repo.ListMessages(ctx, conversationID, before, limit+1)
	if err != nil {
		return MessagePage{}, persistErr(err)
	}
	page := MessagePage{HasMore: len(newestFirst) > limit}
	if page.HasMore {
		newestFirst = newestFirst[:limit]
	}
	page.Messages = make([]chat.Message, len(newestFirst))
	for i, m := range newestFirst {
		page.Messages[len(newestFirst)-1-i] = m
	}
	return page, nil
}

// MarkRead flags messages addressed to readerID as read.
func (s *MessageStore) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	n, err := s.Repo.MarkRead(ctx, conversationID, readerID)
	return n, persistErr(err)
}

// DeleteAllForConversation is only called while tearing a conversation down.
func (s *MessageStore) DeleteAllForConversation(ctx context.Context, conversationID string) (int64, error) {
	n, err := s.Repo.DeleteMessages(ctx, conversationID)
	return n, persistErr(err)
}

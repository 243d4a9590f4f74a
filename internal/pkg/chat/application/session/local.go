package session

import (
	"context"
	"time"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	users "github.com/dannybszn/doris-referral/internal/repository/port"
)

// LocalBackend runs a session against the use cases in the same process,
// acting as UserID.
type LocalBackend struct {
	UserID string

	list     *usecase.ListConversationUseCase
	create   *usecase.CreateConversationUseCase
	remove   *usecase.DeleteConversationUseCase
	page     *usecase.GetMessageUseCase
	send     *usecase.SendMessageUseCase
	markRead *usecase.MarkReadUseCase
}

var _ Backend = (*LocalBackend)(nil)

func NewLocalBackend(userID string, m *usecase.ConversationManager, s *usecase.MessageStore, send *usecase.SendMessageUseCase, dir users.UserDirectory) *LocalBackend {
	return &LocalBackend{
		UserID:   userID,
		list:     usecase.NewListConversationUseCase(m, dir),
		create:   usecase.NewCreateConversationUseCase(m, dir),
		remove:   usecase.NewDeleteConversationUseCase(m),
		page:     usecase.NewGetMessageUseCase(m, s, dir),
		send:     send,
		markRead: usecase.NewMarkReadUseCase(m, s),
	}
}

func (b *LocalBackend) ListConversations(ctx context.Context) ([]usecase.ConversationView, error) {
	return b.list.Execute(ctx, b.UserID)
}

func (b *LocalBackend) CreateConversation(ctx context.Context, recipientID string) (usecase.ConversationView, error) {
	out, err := b.create.Execute(ctx, usecase.CreateConversationInput{InitiatorID: b.UserID, RecipientID: recipientID})
	if err != nil {
		return usecase.ConversationView{}, err
	}
	return out.ConversationView, nil
}

func (b *LocalBackend) DeleteConversation(ctx context.Context, conversationID string) error {
	return b.remove.Execute(ctx, conversationID, b.UserID)
}

func (b *LocalBackend) ListMessages(ctx context.Context, conversationID string, before *time.Time, limit int) (usecase.MessagePage, error) {
	view, err := b.page.Execute(ctx, usecase.GetMessageInput{
		ConversationID: conversationID,
		RequesterID:    b.UserID,
		Before:         before,
		Limit:          limit,
	})
	if err != nil {
		return usecase.MessagePage{}, err
	}
	return view.MessagePage, nil
}

func (b *LocalBackend) SendMessage(ctx context.Context, conversationID, content string) (chat.Message, error) {
	out, err := b.send.Execute(ctx, usecase.SendMessageInput{ConversationID: conversationID, SenderID: b.UserID, Content: content})
	if err != nil {
		return chat.Message{}, err
	}
	return out.Message, nil
}

func (b *LocalBackend) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	return b.markRead.Execute(ctx, conversationID, b.UserID)
}

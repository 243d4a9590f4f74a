package usecase

import (
	"context"
	"time"

	users "github.com/dannybszn/doris-referral/internal/repository/port"
)

// GetMessageInput carries parameters to fetch one page of a conversation.
type GetMessageInput struct {
	ConversationID string
	RequesterID    string
	Before         *time.Time
	Limit          int
}

// GetMessageUseCase returns a page of messages to a participant.
type GetMessageUseCase struct {
	Manager  *ConversationManager
	Messages *MessageStore
	Users    users.UserDirectory
}

func NewGetMessageUseCase(m *ConversationManager, s *MessageStore, dir users.UserDirectory) *GetMessageUseCase {
	return &GetMessageUseCase{Manager: m, Messages: s, Users: dir}
}

// Execute returns messages oldest first, with HasMore set when older ones exist.
func (uc *GetMessageUseCase) Execute(ctx context.Context, in GetMessageInput) (*MessageView, error) {
	conv, err := uc.Manager.Get(ctx, in.ConversationID, in.RequesterID)
	if err != nil {
		return nil, err
	}
	page, err := uc.Messages.ListPage(ctx, conv.ID, in.Before, in.Limit)
	if err != nil {
		return nil, err
	}
	senders, err := resolveUsers(ctx, uc.Users, conv.Participants)
	if err != nil {
		return nil, err
	}
	return &MessageView{MessagePage: page, Senders: senders}, nil
}

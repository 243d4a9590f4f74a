package usecase

import (
	"context"

	users "github.com/dannybszn/doris-referral/internal/repository/port"
)

// GetConversationUseCase returns one conversation to a participant.
type GetConversationUseCase struct {
	Manager *ConversationManager
	Users   users.UserDirectory
}

func NewGetConversationUseCase(m *ConversationManager, dir users.UserDirectory) *GetConversationUseCase {
	return &GetConversationUseCase{Manager: m, Users: dir}
}

func (uc *GetConversationUseCase) Execute(ctx context.Context, conversationID, requesterID string) (*ConversationView, error) {
	conv, err := uc.Manager.Get(ctx, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	views, err := conversationViews(ctx, uc.Users, conv)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

package usecase

import (
	"context"

	users "github.com/dannybszn/doris-referral/internal/repository/port"
)

// ListConversationUseCase lists a user's conversations, newest activity first.
type ListConversationUseCase struct {
	Manager *ConversationManager
	Users   users.UserDirectory
}

func NewListConversationUseCase(m *ConversationManager, dir users.UserDirectory) *ListConversationUseCase {
	return &ListConversationUseCase{Manager: m, Users: dir}
}

func (uc *ListConversationUseCase) Execute(ctx context.Context, userID string) ([]ConversationView, error) {
	if _, err := uc.Manager.requester(ctx, userID); err != nil {
		return nil, err
	}
	convs, err := uc.Manager.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return conversationViews(ctx, uc.Users, convs...)
}

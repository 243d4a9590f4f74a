package usecase

import (
	"context"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	users "github.com/dannybszn/doris-referral/internal/repository/port"
)

// ListTalentUseCase returns the model directory an agency picks recipients from.
type ListTalentUseCase struct {
	Manager *ConversationManager
	Users   users.UserDirectory
}

func NewListTalentUseCase(m *ConversationManager, dir users.UserDirectory) *ListTalentUseCase {
	return &ListTalentUseCase{Manager: m, Users: dir}
}

func (uc *ListTalentUseCase) Execute(ctx context.Context, requesterID string) ([]chat.User, error) {
	if _, err := uc.Manager.requester(ctx, requesterID); err != nil {
		return nil, err
	}
	talents, err := uc.Users.ListByRole(ctx, chat.RoleModel)
	if err != nil {
		return nil, persistErr(err)
	}
	return talents, nil
}

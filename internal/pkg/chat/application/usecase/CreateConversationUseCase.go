package usecase

import (
	"context"

	users "github.com/dannybszn/doris-referral/internal/repository/port"
)

// CreateConversationInput names the two sides of a new conversation.
type CreateConversationInput struct {
	InitiatorID string
	RecipientID string
}

// CreateConversationOutput reports whether the conversation was new.
type CreateConversationOutput struct {
	ConversationView
	Created bool
}

// CreateConversationUseCase finds or creates the conversation for a pair.
type CreateConversationUseCase struct {
	Manager *ConversationManager
	Users   users.UserDirectory
}

func NewCreateConversationUseCase(m *ConversationManager, dir users.UserDirectory) *CreateConversationUseCase {
	return &CreateConversationUseCase{Manager: m, Users: dir}
}

// Execute returns the existing conversation for the pair when there is one.
func (uc *CreateConversationUseCase) Execute(ctx context.Context, in CreateConversationInput) (*CreateConversationOutput, error) {
	conv, created, err := uc.Manager.FindOrCreate(ctx, in.InitiatorID, in.RecipientID)
	if err != nil {
		return nil, err
	}
	views, err := conversationViews(ctx, uc.Users, conv)
	if err != nil {
		return nil, err
	}
	return &CreateConversationOutput{ConversationView: views[0], Created: created}, nil
}

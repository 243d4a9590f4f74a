package usecase

import "context"

// DeleteConversationUseCase removes a conversation and its messages.
type DeleteConversationUseCase struct {
	Manager *ConversationManager
}

func NewDeleteConversationUseCase(m *ConversationManager) *DeleteConversationUseCase {
	return &DeleteConversationUseCase{Manager: m}
}

func (uc *DeleteConversationUseCase) Execute(ctx context.Context, conversationID, requesterID string) error {
	return uc.Manager.Delete(ctx, conversationID, requesterID)
}

package usecase

import "context"

// LeaveConversationUseCase lets any participant walk away from a
// conversation. For a pair this ends the conversation for both sides.
type LeaveConversationUseCase struct {
	Manager *ConversationManager
}

func NewLeaveConversationUseCase(m *ConversationManager) *LeaveConversationUseCase {
	return &LeaveConversationUseCase{Manager: m}
}

func (uc *LeaveConversationUseCase) Execute(ctx context.Context, conversationID, userID string) error {
	return uc.Manager.RemoveParticipant(ctx, conversationID, userID)
}

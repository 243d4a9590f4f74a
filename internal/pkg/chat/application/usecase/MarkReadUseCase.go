package usecase

import "context"

// MarkReadUseCase flags the other side's messages as read for a participant.
type MarkReadUseCase struct {
	Manager  *ConversationManager
	Messages *MessageStore
}

func NewMarkReadUseCase(m *ConversationManager, s *MessageStore) *MarkReadUseCase {
	return &MarkReadUseCase{Manager: m, Messages: s}
}

// Execute returns how many messages changed state.
func (uc *MarkReadUseCase) Execute(ctx context.Context, conversationID, readerID string) (int64, error) {
	conv, err := uc.Manager.Get(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return uc.Messages.MarkRead(ctx, conv.ID, readerID)
}

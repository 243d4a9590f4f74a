package usecase

import (
	"context"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
)

// Notifier pushes committed changes to connected clients. Implementations
// swallow delivery failures; a push never fails the operation that caused it.
type Notifier interface {
	MessageCreated(ctx context.Context, conv chat.Conversation, m chat.Message)
	ConversationDeleted(ctx context.Context, conv chat.Conversation, actorID string)
}

// ResyncScheduler asks for a conversation's last-message pointer to be
// re-derived in the background.
type ResyncScheduler interface {
	ScheduleResync(ctx context.Context, conversationID string) error
}

type nopNotifier struct{}

func (nopNotifier) MessageCreated(context.Context, chat.Conversation, chat.Message) {}
func (nopNotifier) ConversationDeleted(context.Context, chat.Conversation, string)  {}

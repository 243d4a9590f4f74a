package usecase

import (
	"context"
	"errors"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/moderation"
	users "github.com/dannybszn/doris-referral/internal/repository/port"
	"go.uber.org/zap"
)

// SendMessageInput carries the data needed to send a new message.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
}

// SendMessageOutput is the stored message and who sent it.
type SendMessageOutput struct {
	Message chat.Message
	Sender  chat.User
}

// SendMessageUseCase runs the send pipeline: moderation, append, pointer
// update, push. One class per use case (own file).
type SendMessageUseCase struct {
	Manager  *ConversationManager
	Messages *MessageStore
	Filter   *moderation.Filter
	Users    users.UserDirectory
	Resync   ResyncScheduler
	Log      *zap.Logger
}

func NewSendMessageUseCase(m *ConversationManager, s *MessageStore, f *moderation.Filter, dir users.UserDirectory, resync ResyncScheduler, log *zap.Logger) *SendMessageUseCase {
	if f == nil {
		f = moderation.NewFilter()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SendMessageUseCase{Manager: m, Messages: s, Filter: f, Users: dir, Resync: resync, Log: log}
}

// Execute stores and publishes a message. A flagged draft returns a
// *chat.ModerationError and nothing is written.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*SendMessageOutput, error) {
	draft, err := uc.Messages.Validate(in.ConversationID, in.SenderID, in.Content)
	if err != nil {
		return nil, err
	}
	if v := uc.Filter.Classify(draft.Content); v.Flagged {
		uc.Log.Info("message blocked by moderation",
			zap.String("conversation_id", in.ConversationID),
			zap.String("sender_id", in.SenderID),
			zap.String("reason", v.Reason))
		return nil, &chat.ModerationError{Reason: v.Reason}
	}

	sender, err := uc.Manager.requester(ctx, in.SenderID)
	if err != nil {
		return nil, err
	}

	unlock := uc.Manager.Lock(in.ConversationID)
	defer unlock()

	conv, err := uc.Manager.Get(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	msg, err := uc.Messages.Append(ctx, conv.ID, in.SenderID, draft.Content)
	if err != nil {
		return nil, err
	}

	// The message is durable from here on; a pointer failure is healed later.
	if err := uc.Manager.RecordMessage(ctx, conv.ID, msg); err != nil {
		uc.Log.Error("record last message failed",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		uc.scheduleResync(ctx, conv.ID)
	} else {
		conv.RecordMessage(msg)
	}

	uc.Manager.Notifier.MessageCreated(ctx, conv, msg)
	return &SendMessageOutput{Message: msg, Sender: sender}, nil
}

func (uc *SendMessageUseCase) scheduleResync(ctx context.Context, conversationID string) {
	if uc.Resync == nil {
		return
	}
	// The request context may already be done; the task must still go out.
	if err := uc.Resync.ScheduleResync(context.WithoutCancel(ctx), conversationID); err != nil && !errors.Is(err, context.Canceled) {
		uc.Log.Error("schedule resync failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}
}

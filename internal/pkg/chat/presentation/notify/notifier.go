// Package notify turns committed conversation changes into realtime events.
package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/infrastructure/realtime"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
	users "github.com/dannybszn/doris-referral/internal/repository/port"
)

// BusNotifier publishes events on a realtime.Bus. Delivery problems are
// logged and dropped.
type BusNotifier struct {
	bus   realtime.Bus
	users users.UserDirectory
	log   *zap.Logger
}

var _ usecase.Notifier = (*BusNotifier)(nil)

// NewBusNotifier builds a notifier. dir is optional and only used to attach
// the sender summary to message events.
func NewBusNotifier(bus realtime.Bus, dir users.UserDirectory, log *zap.Logger) *BusNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &BusNotifier{bus: bus, users: dir, log: log}
}

// MessageCreated pushes m to every participant except its sender.
func (n *BusNotifier) MessageCreated(ctx context.Context, conv chat.Conversation, m chat.Message) {
	payload := dto.FromMessage(m, nil)
	if n.users != nil {
		if u, err := n.users.FindByID(ctx, m.SenderID); err == nil {
			s := dto.FromUser(u)
			payload.Sender = &s
		}
	}
	n.publish(ctx, conv.OtherParticipants(m.SenderID), dto.Event{
		Type:           dto.EventMessage,
		ConversationID: conv.ID,
		Message:        &payload,
	})
}

// ConversationDeleted tells the remaining participants the thread is gone.
func (n *BusNotifier) ConversationDeleted(ctx context.Context, conv chat.Conversation, actorID string) {
	n.publish(ctx, conv.OtherParticipants(actorID), dto.Event{
		Type:           dto.EventConversationDeleted,
		ConversationID: conv.ID,
		ActorID:        actorID,
	})
}

func (n *BusNotifier) publish(ctx context.Context, recipients []string, ev dto.Event) {
	if len(recipients) == 0 {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		n.log.Error("encode event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if err := n.bus.Publish(context.WithoutCancel(ctx), realtime.Envelope{Recipients: recipients, Payload: b}); err != nil {
		n.log.Debug("event dropped",
			zap.String("type", ev.Type),
			zap.String("conversation_id", ev.ConversationID),
			zap.Error(err))
	}
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/infrastructure/realtime"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
	userrepo "github.com/dannybszn/doris-referral/internal/repository/adapter"
)

type captureBus struct {
	envs []realtime.Envelope
	err  error
}

func (b *captureBus) Publish(_ context.Context, env realtime.Envelope) error {
	b.envs = append(b.envs, env)
	return b.err
}
func (b *captureBus) Run(context.Context) error { return nil }
func (b *captureBus) Close() error              { return nil }

func TestMessageCreatedSkipsSender(t *testing.T) {
	bus := &captureBus{}
	dir := userrepo.NewMemoryUserRepository(chat.User{ID: "a", Role: chat.RoleAgency, CompanyName: "Northlight"})
	n := NewBusNotifier(bus, dir, zap.NewNop())

	conv := chat.Conversation{ID: "c1", Participants: []string{"a", "m"}}
	msg := chat.Message{ID: "x", ConversationID: "c1", SenderID: "a", Content: "hi", CreatedAt: time.Unix(10, 0).UTC(), Seq: 3}
	n.MessageCreated(context.Background(), conv, msg)

	if len(bus.envs) != 1 {
		t.Fatalf("published %d envelopes, want 1", len(bus.envs))
	}
	env := bus.envs[0]
	if len(env.Recipients) != 1 || env.Recipients[0] != "m" {
		t.Fatalf("recipients = %v, want [m]", env.Recipients)
	}
	var ev dto.Event
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != dto.EventMessage || ev.Message == nil || ev.Message.Seq != 3 {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Message.Sender == nil || ev.Message.Sender.DisplayName != "Northlight" {
		t.Fatalf("sender summary = %+v", ev.Message.Sender)
	}
}

func TestConversationDeletedAndPublishFailure(t *testing.T) {
	bus := &captureBus{err: errors.New("redis down")}
	n := NewBusNotifier(bus, nil, nil)

	conv := chat.Conversation{ID: "c1", Participants: []string{"a", "m"}}
	// A failing bus must not panic or block.
	n.ConversationDeleted(context.Background(), conv, "a")

	var ev dto.Event
	if err := json.Unmarshal(bus.envs[0].Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != dto.EventConversationDeleted || ev.ActorID != "a" || bus.envs[0].Recipients[0] != "m" {
		t.Fatalf("event = %+v to %v", ev, bus.envs[0].Recipients)
	}

	// Nobody else left to tell.
	n.ConversationDeleted(context.Background(), chat.Conversation{ID: "c2", Participants: []string{"a"}}, "a")
	if len(bus.envs) != 1 {
		t.Fatalf("published to an empty audience")
	}
}

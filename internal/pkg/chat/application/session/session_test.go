package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/infrastructure/clock"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	chatrepo "github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/adapter"
	userrepo "github.com/dannybszn/doris-referral/internal/repository/adapter"
)

type world struct {
	clock   *clock.FakeClock
	manager *usecase.ConversationManager
	store   *usecase.MessageStore
	send    *usecase.SendMessageUseCase
	dir     *userrepo.MemoryUserRepository
}

func newWorld(t *testing.T) *world {
	t.Helper()
	dir := userrepo.NewMemoryUserRepository(
		chat.User{ID: "agency", Role: chat.RoleAgency, CompanyName: "Northlight"},
		chat.User{ID: "model", Role: chat.RoleModel, FirstName: "Ada"},
		chat.User{ID: "model2", Role: chat.RoleModel, FirstName: "Bea"},
	)
	repo := chatrepo.NewMemoryChatRepository()
	w := &world{clock: clock.Fake(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)), dir: dir}
	w.store = usecase.NewMessageStore(repo, w.clock, 20, 2000)
	w.manager = usecase.NewConversationManager(repo, dir, w.store, w.clock, nil, zap.NewNop())
	w.send = usecase.NewSendMessageUseCase(w.manager, w.store, nil, dir, nil, zap.NewNop())
	return w
}

func (w *world) session(user string, pageSize int) *Session {
	return New(NewLocalBackend(user, w.manager, w.store, w.send, w.dir), user, pageSize)
}

func TestSendKeepsDraftOnModeration(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	s := w.session("agency", 20)

	view, err := s.Create(ctx, "model")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.Selected() != view.Conversation.ID {
		t.Fatal("Create did not select the new conversation")
	}

	_, err = s.Send(ctx, "email me at ada@example.com")
	if !errors.Is(err, chat.ErrModeration) {
		t.Fatalf("Send error = %v, want moderation", err)
	}
	if s.Draft() != "email me at ada@example.com" || s.Warning() != chat.ModerationWarning {
		t.Fatalf("draft %q warning %q after rejection", s.Draft(), s.Warning())
	}
	if len(s.Messages()) != 0 {
		t.Fatal("rejected message shown in thread")
	}

	m, err := s.Send(ctx, "Let's talk here instead")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if s.Draft() != "" || s.Warning() != "" {
		t.Fatal("successful send left draft or warning behind")
	}
	// The pushed copy of our own message must not duplicate it.
	if err := s.HandleEvent(ctx, Event{Type: EventMessage, Message: &m}); err != nil {
		t.Fatal(err)
	}
	if got := s.Messages(); len(got) != 1 || got[0].ID != m.ID {
		t.Fatalf("thread = %v", got)
	}
}

func TestUnreadAndOrderingFromEvents(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	agency := w.session("agency", 20)
	model := w.session("model", 20)

	first, err := agency.Create(ctx, "model")
	if err != nil {
		t.Fatal(err)
	}
	w.clock.Advance(time.Second)
	if _, err := agency.Create(ctx, "model2"); err != nil {
		t.Fatal(err)
	}
	if err := agency.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if agency.Conversations()[0].Conversation.ID == first.Conversation.ID {
		t.Fatal("older conversation listed first")
	}

	// The model replies in the first conversation while the agency has the
	// second one open.
	w.clock.Advance(time.Second)
	if err := model.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := model.Select(ctx, first.Conversation.ID); err != nil {
		t.Fatal(err)
	}
	reply, err := model.Send(ctx, "Hello!")
	if err != nil {
		t.Fatal(err)
	}
	if err := agency.HandleEvent(ctx, Event{Type: EventMessage, ConversationID: first.Conversation.ID, Message: &reply}); err != nil {
		t.Fatal(err)
	}
	list := agency.Conversations()
	if list[0].Conversation.ID != first.Conversation.ID || list[0].Unread != 1 {
		t.Fatalf("top = %s unread %d, want first conversation with 1 unread", list[0].Conversation.ID, list[0].Unread)
	}
	if len(agency.Messages()) != 0 {
		t.Fatal("message for a background conversation landed in the open thread")
	}

	if err := agency.Select(ctx, first.Conversation.ID); err != nil {
		t.Fatal(err)
	}
	if agency.Conversations()[0].Unread != 0 || len(agency.Messages()) != 1 {
		t.Fatal("Select did not reset unread or load the thread")
	}
}

func TestHandleEventForUnknownConversationReloads(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	agency := w.session("agency", 20)
	model := w.session("model", 20)
	if err := model.Load(ctx); err != nil {
		t.Fatal(err)
	}

	conv, err := agency.Create(ctx, "model")
	if err != nil {
		t.Fatal(err)
	}
	m, err := agency.Send(ctx, "Welcome aboard")
	if err != nil {
		t.Fatal(err)
	}
	if err := model.HandleEvent(ctx, Event{Type: EventMessage, ConversationID: conv.Conversation.ID, Message: &m}); err != nil {
		t.Fatal(err)
	}
	list := model.Conversations()
	if len(list) != 1 || list[0].Unread != 1 {
		t.Fatalf("model list = %+v", list)
	}

	if err := model.HandleEvent(ctx, Event{Type: EventConversationDeleted, ConversationID: conv.Conversation.ID}); err != nil {
		t.Fatal(err)
	}
	if len(model.Conversations()) != 0 {
		t.Fatal("deleted conversation still listed")
	}
}

func TestLoadMoreWalksBackwards(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	agency := w.session("agency", 5)

	conv, err := agency.Create(ctx, "model")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 12; i++ {
		if _, err := agency.Send(ctx, fmt.Sprintf("note %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	reader := w.session("model", 5)
	if err := reader.Select(ctx, conv.Conversation.ID); err != nil {
		t.Fatal(err)
	}
	for reader.HasMore() {
		if err := reader.LoadMore(ctx); err != nil {
			t.Fatal(err)
		}
	}
	msgs := reader.Messages()
	if len(msgs) != 12 {
		t.Fatalf("loaded %d messages, want 12", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != fmt.Sprintf("note %d", i) {
			t.Fatalf("message %d = %q", i, m.Content)
		}
	}
}

func TestDeleteClearsSelection(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	agency := w.session("agency", 20)
	conv, err := agency.Create(ctx, "model")
	if err != nil {
		t.Fatal(err)
	}
	if err := agency.Delete(ctx, conv.Conversation.ID); err != nil {
		t.Fatal(err)
	}
	if agency.Selected() != "" || len(agency.Conversations()) != 0 {
		t.Fatal("Delete left state behind")
	}
	if _, err := agency.Send(ctx, "hello?"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("Send without selection = %v", err)
	}

	model := w.session("model", 20)
	conv, _ = agency.Create(ctx, "model")
	if err := model.Delete(ctx, conv.Conversation.ID); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("model Delete = %v, want forbidden", err)
	}
}

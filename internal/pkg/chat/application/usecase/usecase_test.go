package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/infrastructure/clock"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/moderation"
	chatrepo "github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/adapter"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/port"
	userrepo "github.com/dannybszn/doris-referral/internal/repository/adapter"
)

var (
	agency  = chat.User{ID: "agency-1", Role: chat.RoleAgency, CompanyName: "Northlight"}
	agency2 = chat.User{ID: "agency-2", Role: chat.RoleAgency, CompanyName: "Southgate"}
	model   = chat.User{ID: "model-1", Role: chat.RoleModel, FirstName: "Ada", LastName: "Stone"}
	model2  = chat.User{ID: "model-2", Role: chat.RoleModel, FirstName: "Bea", LastName: "Marsh"}
	admin   = chat.User{ID: "admin-1", Role: chat.RoleAdmin, FirstName: "Root"}
)

type recordingNotifier struct {
	mu      sync.Mutex
	created []chat.Message
	deleted []string
}

func (n *recordingNotifier) MessageCreated(_ context.Context, _ chat.Conversation, m chat.Message) {
	n.mu.Lock()
	n.created = append(n.created, m)
	n.mu.Unlock()
}

func (n *recordingNotifier) ConversationDeleted(_ context.Context, c chat.Conversation, _ string) {
	n.mu.Lock()
	n.deleted = append(n.deleted, c.ID)
	n.mu.Unlock()
}

type recordingResync struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingResync) ScheduleResync(_ context.Context, id string) error {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	return nil
}

// brokenPointerRepo fails every last-message update after the append commits.
type brokenPointerRepo struct {
	port.ChatRepository
}

func (brokenPointerRepo) RecordLastMessage(context.Context, string, chat.Message) (bool, error) {
	return false, errors.New("connection reset by peer")
}

type fixture struct {
	repo     port.ChatRepository
	clock    *clock.FakeClock
	notifier *recordingNotifier
	resync   *recordingResync
	manager  *ConversationManager
	store    *MessageStore
	send     *SendMessageUseCase
	page     *GetMessageUseCase
}

func newFixture(t *testing.T, repo port.ChatRepository) *fixture {
	t.Helper()
	if repo == nil {
		repo = chatrepo.NewMemoryChatRepository()
	}
	dir := userrepo.NewMemoryUserRepository(agency, agency2, model, model2, admin)
	f := &fixture{
		repo:     repo,
		clock:    clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		notifier: &recordingNotifier{},
		resync:   &recordingResync{},
	}
	f.store = NewMessageStore(repo, f.clock, 20, 2000)
	f.manager = NewConversationManager(repo, dir, f.store, f.clock, f.notifier, zap.NewNop())
	f.send = NewSendMessageUseCase(f.manager, f.store, moderation.NewFilter(), dir, f.resync, zap.NewNop())
	f.page = NewGetMessageUseCase(f.manager, f.store, dir)
	return f
}

func (f *fixture) open(t *testing.T, initiator, recipient string) chat.Conversation {
	t.Helper()
	conv, _, err := f.manager.FindOrCreate(context.Background(), initiator, recipient)
	if err != nil {
		t.Fatalf("FindOrCreate(%s, %s) failed: %v", initiator, recipient, err)
	}
	return conv
}

func (f *fixture) say(t *testing.T, convID, sender, text string) chat.Message {
	t.Helper()
	out, err := f.send.Execute(context.Background(), SendMessageInput{ConversationID: convID, SenderID: sender, Content: text})
	if err != nil {
		t.Fatalf("send %q as %s failed: %v", text, sender, err)
	}
	return out.Message
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, created, err := f.manager.FindOrCreate(ctx, agency.ID, model.ID)
	if err != nil || !created {
		t.Fatalf("first FindOrCreate = (%v, %v), want created", created, err)
	}
	again, created, err := f.manager.FindOrCreate(ctx, agency.ID, model.ID)
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("second FindOrCreate = (%s, %v, %v), want existing %s", again.ID, created, err, first.ID)
	}
	// Admin opening the reverse direction of another pair is a new conversation.
	other, _, err := f.manager.FindOrCreate(ctx, admin.ID, model.ID)
	if err != nil || other.ID == first.ID {
		t.Fatalf("admin conversation = (%s, %v), want a distinct one", other.ID, err)
	}
}

func TestFindOrCreateUnderRace(t *testing.T) {
	f := newFixture(t, nil)
	const callers = 16
	ids := make([]string, callers)
	var createdCount int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, created, err := f.manager.FindOrCreate(context.Background(), agency.ID, model.ID)
			if err != nil {
				t.Errorf("FindOrCreate failed: %v", err)
				return
			}
			mu.Lock()
			ids[i] = conv.ID
			if created {
				createdCount++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("racing callers got different conversations: %v", ids)
		}
	}
	if createdCount != 1 {
		t.Fatalf("created reported %d times, want 1", createdCount)
	}
}

func TestFindOrCreateRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cases := []struct {
		name      string
		initiator string
		recipient string
		want      error
	}{
		{"model cannot initiate", model.ID, agency.ID, chat.ErrForbidden},
		{"self", agency.ID, agency.ID, chat.ErrValidation},
		{"unknown recipient", agency.ID, "ghost", chat.ErrNotFound},
		{"unknown initiator", "ghost", model.ID, chat.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := f.manager.FindOrCreate(ctx, tc.initiator, tc.recipient); !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAgencyModelScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.open(t, agency.ID, model.ID)

	f.say(t, conv.ID, agency.ID, "Hi Ada, are you free for the spring campaign?")

	_, err := f.send.Execute(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: agency.ID, Content: "call me at 555-123-4567"})
	var modErr *chat.ModerationError
	if !errors.As(err, &modErr) || modErr.Reason != moderation.ReasonPhone {
		t.Fatalf("flagged send error = %v, want phone moderation error", err)
	}
	if modErr.Warning() != chat.ModerationWarning {
		t.Fatalf("warning = %q", modErr.Warning())
	}

	reply := f.say(t, conv.ID, model.ID, "Yes, send me the details here.")

	view, err := f.page.Execute(ctx, GetMessageInput{ConversationID: conv.ID, RequesterID: model.ID})
	if err != nil {
		t.Fatalf("page failed: %v", err)
	}
	if len(view.Messages) != 2 || view.HasMore {
		t.Fatalf("page = %d messages (hasMore %v), want exactly 2", len(view.Messages), view.HasMore)
	}
	if view.Messages[1].ID != reply.ID {
		t.Fatalf("newest message = %s, want the reply %s", view.Messages[1].ID, reply.ID)
	}
	if view.Senders[model.ID].FirstName != "Ada" {
		t.Fatalf("sender summary missing: %+v", view.Senders)
	}

	got, err := f.manager.Get(ctx, conv.ID, agency.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessage == nil || got.LastMessage.ID != reply.ID {
		t.Fatalf("last message = %+v, want reply", got.LastMessage)
	}
	if len(f.notifier.created) != 2 {
		t.Fatalf("notifier saw %d messages, want 2", len(f.notifier.created))
	}
}

func TestSendRejectsStrangersAndBadInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.open(t, agency.ID, model.ID)

	cases := []struct {
		name string
		in   SendMessageInput
		want error
	}{
		{"stranger", SendMessageInput{ConversationID: conv.ID, SenderID: model2.ID, Content: "hi"}, chat.ErrNotFound},
		{"unknown sender", SendMessageInput{ConversationID: conv.ID, SenderID: "ghost", Content: "hi"}, chat.ErrUnauthorized},
		{"missing conversation", SendMessageInput{ConversationID: "nope", SenderID: agency.ID, Content: "hi"}, chat.ErrNotFound},
		{"blank", SendMessageInput{ConversationID: conv.ID, SenderID: agency.ID, Content: "  "}, chat.ErrValidation},
		{"email", SendMessageInput{ConversationID: conv.ID, SenderID: agency.ID, Content: "mail ada@example.com"}, chat.ErrModeration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.send.Execute(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
	page, err := f.store.ListPage(ctx, conv.ID, nil, 0)
	if err != nil || len(page.Messages) != 0 {
		t.Fatalf("rejected sends stored messages: %v %v", page.Messages, err)
	}
}

func TestPaginationReconstructsHistory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.open(t, agency.ID, model.ID)

	// The clock never moves, so every timestamp comes from clamping.
	var sent []string
	for i := 0; i < 45; i++ {
		sender := agency.ID
		if i%3 == 0 {
			sender = model.ID
		}
		sent = append(sent, f.say(t, conv.ID, sender, fmt.Sprintf("message %d", i)).ID)
	}

	var pages [][]chat.Message
	var before *time.Time
	for {
		page, err := f.store.ListPage(ctx, conv.ID, before, 20)
		if err != nil {
			t.Fatalf("ListPage failed: %v", err)
		}
		pages = append([][]chat.Message{page.Messages}, pages...)
		if !page.HasMore {
			break
		}
		before = page.Oldest()
	}
	if len(pages) != 3 {
		t.Fatalf("walked %d pages, want 3", len(pages))
	}
	var got []string
	for _, p := range pages {
		for i, m := range p {
			if i > 0 && !m.CreatedAt.After(p[i-1].CreatedAt) {
				t.Fatalf("page not strictly ascending at %d", i)
			}
			got = append(got, m.ID)
		}
	}
	if fmt.Sprint(got) != fmt.Sprint(sent) {
		t.Fatalf("reconstructed history differs:\n got %v\nwant %v", got, sent)
	}
}

func TestListPageBounds(t *testing.T) {
	f := newFixture(t, nil)
	conv := f.open(t, agency.ID, model.ID)
	for i := 0; i < 3; i++ {
		f.say(t, conv.ID, agency.ID, "ping")
	}
	page, err := f.store.ListPage(context.Background(), conv.ID, nil, 500)
	if err != nil || len(page.Messages) != 3 || page.HasMore {
		t.Fatalf("oversized limit page = (%d, %v, %v)", len(page.Messages), page.HasMore, err)
	}
	page, err = f.store.ListPage(context.Background(), conv.ID, nil, 3)
	if err != nil || page.HasMore {
		t.Fatalf("exact-fit page reported more: %v %v", page.HasMore, err)
	}
}

func TestLastMessageTracksHighestSeqUnderConcurrentSends(t *testing.T) {
	f := newFixture(t, nil)
	conv := f.open(t, agency.ID, model.ID)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := agency.ID
			if i%2 == 1 {
				sender = model.ID
			}
			f.clock.Advance(time.Millisecond)
			if _, err := f.send.Execute(context.Background(), SendMessageInput{ConversationID: conv.ID, SenderID: sender, Content: "hello"}); err != nil {
				t.Errorf("send failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	page, err := f.store.ListPage(context.Background(), conv.ID, nil, MaxPageSize)
	if err != nil || len(page.Messages) != 40 {
		t.Fatalf("page = %d messages, err %v", len(page.Messages), err)
	}
	newest := page.Messages[len(page.Messages)-1]
	got, err := f.manager.Get(context.Background(), conv.ID, agency.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageSeq != newest.Seq || got.LastMessage == nil || got.LastMessage.ID != newest.ID {
		t.Fatalf("last message seq = %d, want %d", got.LastMessageSeq, newest.Seq)
	}
	for i := 1; i < len(f.notifier.created); i++ {
		if f.notifier.created[i].Seq <= f.notifier.created[i-1].Seq {
			t.Fatalf("notifications out of append order at %d", i)
		}
	}
}

func TestRecordFailureSchedulesResync(t *testing.T) {
	base := chatrepo.NewMemoryChatRepository()
	f := newFixture(t, brokenPointerRepo{ChatRepository: base})
	conv := f.open(t, agency.ID, model.ID)

	msg := f.say(t, conv.ID, agency.ID, "still delivered")
	if len(f.resync.ids) != 1 || f.resync.ids[0] != conv.ID {
		t.Fatalf("resync scheduled for %v, want [%s]", f.resync.ids, conv.ID)
	}
	if len(f.notifier.created) != 1 {
		t.Fatal("message was not pushed after a pointer failure")
	}

	stale, _ := base.GetConversation(context.Background(), conv.ID)
	if stale.LastMessageID != nil {
		t.Fatal("pointer moved although the update failed")
	}
	if err := f.manager.Resync(context.Background(), conv.ID); err != nil {
		t.Fatalf("Resync failed: %v", err)
	}
	healed, _ := base.GetConversation(context.Background(), conv.ID)
	if healed.LastMessageID == nil || *healed.LastMessageID != msg.ID {
		t.Fatalf("pointer after resync = %v, want %s", healed.LastMessageID, msg.ID)
	}
	// A conversation deleted before the task runs is not an error.
	if err := f.manager.Resync(context.Background(), "gone"); err != nil {
		t.Fatalf("Resync of a missing conversation = %v", err)
	}
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.open(t, agency.ID, model.ID)
	f.say(t, conv.ID, model.ID, "hello")

	if err := f.manager.Delete(ctx, conv.ID, model.ID); !errors.Is(err, chat.ErrForbidden) {
		t.Fatalf("model delete error = %v, want forbidden", err)
	}
	if err := f.manager.Delete(ctx, conv.ID, agency2.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("foreign agency delete error = %v, want not found", err)
	}
	if err := f.manager.Delete(ctx, conv.ID, "ghost"); !errors.Is(err, chat.ErrUnauthorized) {
		t.Fatalf("unknown requester error = %v, want unauthorized", err)
	}
	if err := f.manager.Delete(ctx, conv.ID, agency.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := f.manager.Get(ctx, conv.ID, agency.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("Get after delete = %v, want not found", err)
	}
	if _, err := f.store.ListPage(ctx, conv.ID, nil, 0); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("ListPage after delete = %v, want not found", err)
	}
	if len(f.notifier.deleted) != 1 {
		t.Fatalf("deletions pushed = %v", f.notifier.deleted)
	}
	// The pair can start over with a fresh conversation.
	fresh := f.open(t, agency.ID, model.ID)
	if fresh.ID == conv.ID {
		t.Fatal("recreated conversation reused the deleted id")
	}

	other := f.open(t, agency2.ID, model2.ID)
	if err := f.manager.Delete(ctx, other.ID, admin.ID); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}
}

func TestLeaveEndsPairConversation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.open(t, agency.ID, model.ID)
	f.say(t, conv.ID, agency.ID, "hello")

	leave := NewLeaveConversationUseCase(f.manager)
	if err := leave.Execute(ctx, conv.ID, model2.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("stranger leave error = %v, want not found", err)
	}
	if err := leave.Execute(ctx, conv.ID, model.ID); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if _, err := f.manager.Get(ctx, conv.ID, agency.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("Get after leave = %v, want not found", err)
	}
	list, err := f.manager.ListForUser(ctx, agency.ID)
	if err != nil || len(list) != 0 {
		t.Fatalf("list after leave = %v, %v", list, err)
	}
}

func TestMarkReadOnlyCountsIncoming(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	conv := f.open(t, agency.ID, model.ID)
	f.say(t, conv.ID, agency.ID, "one")
	f.say(t, conv.ID, agency.ID, "two")
	f.say(t, conv.ID, model.ID, "three")

	uc := NewMarkReadUseCase(f.manager, f.store)
	n, err := uc.Execute(ctx, conv.ID, model.ID)
	if err != nil || n != 2 {
		t.Fatalf("MarkRead = (%d, %v), want 2", n, err)
	}
	if n, _ := uc.Execute(ctx, conv.ID, model.ID); n != 0 {
		t.Fatalf("second MarkRead = %d, want 0", n)
	}
	if _, err := uc.Execute(ctx, conv.ID, model2.ID); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("stranger MarkRead error = %v", err)
	}
}

func TestListConversationsNewestActivityFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := f.open(t, agency.ID, model.ID)
	f.clock.Advance(time.Second)
	second := f.open(t, agency.ID, model2.ID)
	f.clock.Advance(time.Second)
	f.say(t, first.ID, agency.ID, "bump")

	views, err := NewListConversationUseCase(f.manager, f.manager.Users).Execute(ctx, agency.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 || views[0].Conversation.ID != first.ID || views[1].Conversation.ID != second.ID {
		t.Fatalf("order = %v", views)
	}
	if len(views[0].Participants) != 2 || views[0].Participants[1].FirstName != "Ada" {
		t.Fatalf("participants not resolved: %+v", views[0].Participants)
	}
}

func TestListTalentReturnsModels(t *testing.T) {
	f := newFixture(t, nil)
	talents, err := NewListTalentUseCase(f.manager, f.manager.Users).Execute(context.Background(), agency.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(talents) != 2 {
		t.Fatalf("talents = %v, want the two models", talents)
	}
	for _, u := range talents {
		if u.Role != chat.RoleModel {
			t.Fatalf("non-model %s in talent list", u.ID)
		}
	}
}

func TestPersistErrClassifiesUnknownFailures(t *testing.T) {
	if err := persistErr(errors.New("disk full")); !errors.Is(err, ErrPersistence) {
		t.Fatalf("persistErr = %v, want ErrPersistence", err)
	}
	if err := persistErr(chat.ErrNotParticipant); err != chat.ErrNotParticipant {
		t.Fatalf("domain error was rewrapped: %v", err)
	}
	if persistErr(nil) != nil {
		t.Fatal("nil became an error")
	}
}

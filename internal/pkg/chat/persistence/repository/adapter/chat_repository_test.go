package adapter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dannybszn/doris-referral/internal/infrastructure/database"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/port"
)

type repoFactory func(t *testing.T) port.ChatRepository

func repositories(t *testing.T) map[string]repoFactory {
	t.Helper()
	factories := map[string]repoFactory{
		"memory": func(t *testing.T) port.ChatRepository { return NewMemoryChatRepository() },
		"sqlite": func(t *testing.T) port.ChatRepository {
			db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
			if err != nil {
				t.Fatalf("OpenSQLite failed: %v", err)
			}
			t.Cleanup(func() { db.Close() })
			return NewSqliteChatRepository(db)
		},
	}
	// Postgres runs only when a disposable database is provided.
	if dsn := os.Getenv("TEST_DB_URL"); dsn != "" {
		factories["postgres"] = func(t *testing.T) port.ChatRepository {
			ctx := context.Background()
			pool, err := database.Connect(ctx, dsn)
			if err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			t.Cleanup(pool.Close)
			if err := database.Migrate(ctx, pool); err != nil {
				t.Fatalf("Migrate failed: %v", err)
			}
			if _, err := pool.Exec(ctx, `TRUNCATE conversations CASCADE`); err != nil {
				t.Fatalf("truncate: %v", err)
			}
			return NewPgChatRepository(pool)
		}
	}
	return factories
}

var repoEpoch = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func mustConversation(t *testing.T, repo port.ChatRepository, a, b string) chat.Conversation {
	t.Helper()
	c, err := chat.NewConversation(a, b, repoEpoch)
	if err != nil {
		t.Fatal(err)
	}
	stored, created, err := repo.CreateConversation(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if !created {
		t.Fatalf("CreateConversation(%s,%s) returned an existing conversation", a, b)
	}
	return stored
}

func TestChatRepositoryContract(t *testing.T) {
	for name, factory := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("create is idempotent on pair", func(t *testing.T) { testCreateIdempotent(t, factory(t)) })
			t.Run("append assigns order", func(t *testing.T) { testAppendOrdering(t, factory(t)) })
			t.Run("append checks membership", func(t *testing.T) { testAppendMembership(t, factory(t)) })
			t.Run("list messages pages backwards", func(t *testing.T) { testListMessages(t, factory(t)) })
			t.Run("last message never regresses", func(t *testing.T) { testRecordLastMessage(t, factory(t)) })
			t.Run("mark read", func(t *testing.T) { testMarkRead(t, factory(t)) })
			t.Run("delete cascades", func(t *testing.T) { testDeleteCascade(t, factory(t)) })
			t.Run("list for user orders by activity", func(t *testing.T) { testListForUser(t, factory(t)) })
			t.Run("update participants", func(t *testing.T) { testUpdateParticipants(t, factory(t)) })
		})
	}
}

func testCreateIdempotent(t *testing.T, repo port.ChatRepository) {
	ctx := context.Background()
	first := mustConversation(t, repo, "agency", "model")

	again, err := chat.NewConversation("model", "agency", repoEpoch.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	stored, created, err := repo.CreateConversation(ctx, again)
	if err != nil {
		t.Fatalf("second CreateConversation failed: %v", err)
	}
	if created || stored.ID != first.ID {
		t.Fatalf("second create = (%s, created=%v), want (%s, false)", stored.ID, created, first.ID)
	}
	if len(stored.Participants) != 2 {
		t.Fatalf("participants = %v", stored.Participants)
	}

	byPair, err := repo.FindConversationByPair(ctx, chat.PairKey("agency", "model"))
	if err != nil || byPair.ID != first.ID {
		t.Fatalf("FindConversationByPair = (%s, %v)", byPair.ID, err)
	}

	// Racing creators all land on one conversation.
	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _ := chat.NewConversation("agency2", "model2", repoEpoch)
			got, _, err := repo.CreateConversation(ctx, c)
			if err != nil {
				t.Errorf("concurrent create: %v", err)
				return
			}
			ids[i] = got.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent creators got different ids: %v", ids)
		}
	}
}

func testAppendOrdering(t *testing.T, repo port.ChatRepository) {
	ctx := context.Background()
	c := mustConversation(t, repo, "a", "b")

	var prev chat.Message
	for i := 0; i < 5; i++ {
		// Same wall-clock reading every time; the store must still order them.
		m, err := repo.AppendMessage(ctx, chat.Message{ConversationID: c.ID, SenderID: "a", Content: "hello"}, repoEpoch)
		if err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
		if m.ID == "" || m.Read {
			t.Fatalf("appended message = %+v", m)
		}
		if i > 0 && (m.Seq <= prev.Seq || !m.CreatedAt.After(prev.CreatedAt)) {
			t.Fatalf("message %d (seq %d, %v) not after previous (seq %d, %v)", i, m.Seq, m.CreatedAt, prev.Seq, prev.CreatedAt)
		}
		prev = m
	}
}

func testAppendMembership(t *testing.T, repo port.ChatRepository) {
	ctx := context.Background()
	c := mustConversation(t, repo, "a", "b")

	if _, err := repo.AppendMessage(ctx, chat.Message{ConversationID: c.ID, SenderID: "intruder", Content: "hi"}, repoEpoch); !errors.Is(err, chat.ErrNotParticipant) {
		t.Fatalf("intruder append error = %v, want ErrNotParticipant", err)
	}
	if _, err := repo.AppendMessage(ctx, chat.Message{ConversationID: "missing", SenderID: "a", Content: "hi"}, repoEpoch); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("missing conversation append error = %v, want ErrConversationNotFound", err)
	}
	page, err := repo.ListMessages(ctx, c.ID, nil, 10)
	if err != nil || len(page) != 0 {
		t.Fatalf("rejected appends left messages behind: %v (%v)", page, err)
	}
}

func testListMessages(t *testing.T, repo port.ChatRepository) {
	ctx := context.Background()
	c := mustConversation(t, repo, "a", "b")
	var all []chat.Message
	for i := 0; i < 7; i++ {
		m, err := repo.AppendMessage(ctx, chat.Message{ConversationID: c.ID, SenderID: "b", Content: "m"}, repoEpoch.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, m)
	}

	first, err := repo.ListMessages(ctx, c.ID, nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 || first[0].ID != all[6].ID || first[2].ID != all[4].ID {
		t.Fatalf("newest page = %v", ids(first))
	}
	before := first[2].CreatedAt
	second, err := repo.ListMessages(ctx, c.ID, &before, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 4 || second[0].ID != all[3].ID || second[3].ID != all[0].ID {
		t.Fatalf("older page = %v", ids(second))
	}
	if _, err := repo.ListMessages(ctx, "missing", nil, 3); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("ListMessages(missing) error = %v", err)
	}
}

func testRecordLastMessage(t *testing.T, repo port.ChatRepository) {
	ctx := context.Background()
	c := mustConversation(t, repo, "a", "b")
	m1, _ := repo.AppendMessage(ctx, chat.Message{ConversationID: c.ID, SenderID: "a", Content: "one"}, repoEpoch)
	m2, _ := repo.AppendMessage(ctx, chat.Message{ConversationID: c.ID, SenderID: "b", Content: "two"}, repoEpoch)

	if moved, err := repo.RecordLastMessage(ctx, c.ID, m2); err != nil || !moved {
		t.Fatalf("RecordLastMessage(m2) = (%v, %v), want (true, nil)", moved, err)
	}
	if moved, err := repo.RecordLastMessage(ctx, c.ID, m1); err != nil || moved {
		t.Fatalf("RecordLastMessage(m1) after m2 = (%v, %v), want (false, nil)", moved, err)
	}
	got, err := repo.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessage == nil || got.LastMessage.ID != m2.ID || got.LastMessageSeq != m2.Seq {
		t.Fatalf("last message = %+v, want %s", got.LastMessage, m2.ID)
	}
	if !got.UpdatedAt.Equal(m2.CreatedAt) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, m2.CreatedAt)
	}

	// A pointer that was never recorded is healed by resync.
	m3, _ := repo.AppendMessage(ctx, chat.Message{ConversationID: c.ID, SenderID: "a", Content: "three"}, repoEpoch)
	healed, err := repo.ResyncLastMessage(ctx, c.ID)
	if err != nil {
		t.Fatalf("ResyncLastMessage failed: %v", err)
	}
	if healed.LastMessage == nil || healed.LastMessage.ID != m3.ID {
		t.Fatalf("resynced last message = %+v, want %s", healed.LastMessage, m3.ID)
	}
	if _, err := repo.RecordLastMessage(ctx, "missing", m3); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("RecordLastMessage(missing) error = %v", err)
	}
}

func testMarkRead(t *testing.T, repo port.ChatRepository) {
	ctx := context.Background()
	c := mustConversation(t, repo, "a", "b")
	for _, sender := range []string{"a", "b", "a"} {
		if _, err := repo.AppendMessage(ctx, chat.Message{ConversationID: c.ID, SenderID: sender, Content: "x"}, repoEpoch); err != nil {
			t.Fatal(err)
		}
	}
	n, err := repo.MarkRead(ctx, c.ID, "b")
	if err != nil || n != 2 {
		t.Fatalf("MarkRead(b) = (%d, %v), want (2, nil)", n, err)
	}
	n, err = repo.MarkRead(ctx, c.ID, "b")
	if err != nil || n != 0 {
		t.Fatalf("second MarkRead(b) = (%d, %v), want (0, nil)", n, err)
	}
	page, _ := repo.ListMessages(ctx, c.ID, nil, 10)
	for _, m := range page {
		if want := m.SenderID == "a"; m.Read != want {
			t.Fatalf("message from %s read=%v, want %v", m.SenderID, m.Read, want)
		}
	}
}

func testDeleteCascade(t *testing.T, repo port.ChatRepository) {
	ctx := context.Background()
	c := mustConversation(t, repo, "a", "b")
	m, _ := repo.AppendMessage(ctx, chat.Message{ConversationID: c.ID, SenderID: "a", Content: "x"}, repoEpoch)
	_, _ = repo.RecordLastMessage(ctx, c.ID, m)

	if n, err := repo.DeleteMessages(ctx, c.ID); err != nil || n != 1 {
		t.Fatalf("DeleteMessages = (%d, %v), want (1, nil)", n, err)
	}
	if err := repo.DeleteConversation(ctx, c.ID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if _, err := repo.GetConversation(ctx, c.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("GetConversation after delete = %v", err)
	}
	if _, err := repo.ListMessages(ctx, c.ID, nil, 10); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("ListMessages after delete = %v", err)
	}
	if err := repo.DeleteConversation(ctx, c.ID); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("second delete = %v", err)
	}
	// The pair is free again.
	again := mustConversation(t, repo, "b", "a")
	if again.ID == c.ID {
		t.Fatal("recreated conversation reused the deleted id")
	}
}

func testListForUser(t *testing.T, repo port.ChatRepository) {
	ctx := context.Background()
	older := mustConversation(t, repo, "agency", "m1")
	newer := mustConversation(t, repo, "agency", "m2")
	_ = mustConversation(t, repo, "other", "m3")

	m, _ := repo.AppendMessage(ctx, chat.Message{ConversationID: older.ID, SenderID: "m1", Content: "bump"}, repoEpoch.Add(time.Hour))
	_, _ = repo.RecordLastMessage(ctx, older.ID, m)

	list, err := repo.ListConversationsForUser(ctx, "agency")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != older.ID || list[1].ID != newer.ID {
		t.Fatalf("list = %v, want [%s %s]", convIDs(list), older.ID, newer.ID)
	}
	if list[0].LastMessage == nil || list[0].LastMessage.Content != "bump" {
		t.Fatalf("list[0].LastMessage = %+v", list[0].LastMessage)
	}
	if len(list[1].Participants) != 2 {
		t.Fatalf("participants not populated: %v", list[1].Participants)
	}
}

func testUpdateParticipants(t *testing.T, repo port.ChatRepository) {
	ctx := context.Background()
	c := mustConversation(t, repo, "a", "b")
	if err := repo.UpdateParticipants(ctx, c.ID, []string{"b"}); err != nil {
		t.Fatalf("UpdateParticipants failed: %v", err)
	}
	got, _ := repo.GetConversation(ctx, c.ID)
	if len(got.Participants) != 1 || got.Participants[0] != "b" {
		t.Fatalf("participants = %v, want [b]", got.Participants)
	}
	if err := repo.UpdateParticipants(ctx, "missing", []string{"b"}); !errors.Is(err, chat.ErrConversationNotFound) {
		t.Fatalf("UpdateParticipants(missing) = %v", err)
	}
}

func ids(ms []chat.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func convIDs(cs []chat.Conversation) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/port"
)

type memoryConversation struct {
	conv     chat.Conversation
	messages []chat.Message // ascending seq, which is also ascending CreatedAt
}

// MemoryChatRepository keeps everything in process memory behind one mutex.
// Used for the memory storage driver and in tests.
type MemoryChatRepository struct {
	mu     sync.RWMutex
	convs  map[string]*memoryConversation
	byPair map[string]string
	seq    int64
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		convs:  make(map[string]*memoryConversation),
		byPair: make(map[string]string),
	}
}

var _ port.ChatRepository = (*MemoryChatRepository)(nil)

func (r *MemoryChatRepository) CreateConversation(_ context.Context, c chat.Conversation) (chat.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byPair[c.PairKey]; ok {
		return r.hydrateLocked(r.convs[id]), false, nil
	}
	c.Participants = append([]string(nil), c.Participants...)
	c.LastMessage = nil
	r.convs[c.ID] = &memoryConversation{conv: c}
	r.byPair[c.PairKey] = c.ID
	return r.hydrateLocked(r.convs[c.ID]), true, nil
}

func (r *MemoryChatRepository) FindConversationByPair(_ context.Context, pairKey string) (chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairKey]
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	return r.hydrateLocked(r.convs[id]), nil
}

func (r *MemoryChatRepository) GetConversation(_ context.Context, id string) (chat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mc, ok := r.convs[id]
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	return r.hydrateLocked(mc), nil
}

func (r *MemoryChatRepository) ListConversationsForUser(_ context.Context, userID string) ([]chat.Conversation, error) {
	r.mu.RLock()
	out := make([]chat.Conversation, 0)
	for _, mc := range r.convs {
		if mc.conv.HasParticipant(userID) {
			out = append(out, r.hydrateLocked(mc))
		}
	}
	r.mu.RUnlock()
	sortByUpdatedDesc(out)
	return out, nil
}

func (r *MemoryChatRepository) UpdateParticipants(_ context.Context, conversationID string, participants []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.convs[conversationID]
	if !ok {
		return chat.ErrConversationNotFound
	}
	mc.conv.Participants = append([]string(nil), participants...)
	return nil
}

func (r *MemoryChatRepository) DeleteConversation(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.convs[id]
	if !ok {
		return chat.ErrConversationNotFound
	}
	delete(r.byPair, mc.conv.PairKey)
	delete(r.convs, id)
	return nil
}

func (r *MemoryChatRepository) AppendMessage(_ context.Context, m chat.Message, now time.Time) (chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.convs[m.ConversationID]
	if !ok {
		return chat.Message{}, chat.ErrConversationNotFound
	}
	agg := chat.Chat{Conversation: mc.conv}
	if n := len(mc.messages); n > 0 {
		last := mc.messages[n-1].CreatedAt
		agg.LastMessageAt = &last
	}
	posted, err := agg.PostMessage(m, now)
	if err != nil {
		return chat.Message{}, err
	}
	r.seq++
	posted.ID = uuid.NewString()
	posted.Seq = r.seq
	mc.messages = append(mc.messages, posted)
	return posted, nil
}

func (r *MemoryChatRepository) ListMessages(_ context.Context, conversationID string, before *time.Time, limit int) ([]chat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mc, ok := r.convs[conversationID]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	out := make([]chat.Message, 0, limit)
	for i := len(mc.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := mc.messages[i]
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *MemoryChatRepository) MarkRead(_ context.Context, conversationID, readerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.convs[conversationID]
	if !ok {
		return 0, chat.ErrConversationNotFound
	}
	var n int64
	for i := range mc.messages {
		if mc.messages[i].SenderID != readerID && !mc.messages[i].Read {
			mc.messages[i].Read = true
			n++
		}
	}
	return n, nil
}

func (r *MemoryChatRepository) DeleteMessages(_ context.Context, conversationID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.convs[conversationID]
	if !ok {
		return 0, chat.ErrConversationNotFound
	}
	n := int64(len(mc.messages))
	mc.messages = nil
	mc.conv.LastMessageID = nil
	mc.conv.LastMessageSeq = 0
	return n, nil
}

func (r *MemoryChatRepository) RecordLastMessage(_ context.Context, conversationID string, m chat.Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.convs[conversationID]
	if !ok {
		return false, chat.ErrConversationNotFound
	}
	moved := mc.conv.RecordMessage(m)
	mc.conv.LastMessage = nil
	return moved, nil
}

func (r *MemoryChatRepository) ResyncLastMessage(_ context.Context, conversationID string) (chat.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mc, ok := r.convs[conversationID]
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	if n := len(mc.messages); n > 0 {
		last := mc.messages[n-1]
		id := last.ID
		mc.conv.LastMessageID = &id
		mc.conv.LastMessageSeq = last.Seq
		mc.conv.UpdatedAt = last.CreatedAt
	} else {
		mc.conv.LastMessageID = nil
		mc.conv.LastMessageSeq = 0
	}
	return r.hydrateLocked(mc), nil
}

func (r *MemoryChatRepository) hydrateLocked(mc *memoryConversation) chat.Conversation {
	c := mc.conv
	c.Participants = append([]string(nil), mc.conv.Participants...)
	c.LastMessage = nil
	if c.LastMessageID != nil {
		for i := len(mc.messages) - 1; i >= 0; i-- {
			if mc.messages[i].ID == *c.LastMessageID {
				m := mc.messages[i]
				c.LastMessage = &m
				break
			}
		}
	}
	return c
}

func sortByUpdatedDesc(cs []chat.Conversation) {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].UpdatedAt.Equal(cs[j].UpdatedAt) {
			return cs[i].UpdatedAt.After(cs[j].UpdatedAt)
		}
		return cs[i].ID < cs[j].ID
	})
}

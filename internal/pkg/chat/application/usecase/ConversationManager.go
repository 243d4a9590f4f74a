package usecase

import (
	"context"
	"errors"

	"github.com/dannybszn/doris-referral/internal/infrastructure/clock"
	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	repository "github.com/dannybszn/doris-referral/internal/pkg/chat/persistence/repository/port"
	users "github.com/dannybszn/doris-referral/internal/repository/port"
	"go.uber.org/zap"
)

// ConversationManager owns conversation lifecycle and the last-message
// pointer. The use cases are thin wrappers over it.
type ConversationManager struct {
	Repo     repository.ChatRepository
	Users    users.UserDirectory
	Messages *MessageStore
	Clock    clock.Clock
	Notifier Notifier
	Log      *zap.Logger

	locks *keyedMutex
}

func NewConversationManager(repo repository.ChatRepository, dir users.UserDirectory, messages *MessageStore, c clock.Clock, n Notifier, log *zap.Logger) *ConversationManager {
	if c == nil {
		c = clock.Real()
	}
	if n == nil {
		n = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversationManager{
		Repo:     repo,
		Users:    dir,
		Messages: messages,
		Clock:    c,
		Notifier: n,
		Log:      log,
		locks:    newKeyedMutex(),
	}
}

// Lock serializes writers of one conversation. The send pipeline holds it
// from append until the push is queued.
func (m *ConversationManager) Lock(conversationID string) (unlock func()) {
	return m.locks.Lock("conv:" + conversationID)
}

// requester loads the acting user. An identity the directory does not know
// is not authenticated as far as messaging is concerned.
func (m *ConversationManager) requester(ctx context.Context, userID string) (chat.User, error) {
	if userID == "" {
		return chat.User{}, chat.ErrUnauthorized
	}
	u, err := m.Users.FindByID(ctx, userID)
	if errors.Is(err, chat.ErrNotFound) {
		return chat.User{}, chat.ErrUnauthorized
	}
	return u, persistErr(err)
}

// FindOrCreate returns the conversation between initiator and recipient,
// creating it when none exists. Repeated and concurrent calls for the same
// pair yield the same conversation.
func (m *ConversationManager) FindOrCreate(ctx context.Context, initiatorID, recipientID string) (chat.Conversation, bool, error) {
	initiator, err := m.Users.FindByID(ctx, initiatorID)
	if err != nil {
		return chat.Conversation{}, false, persistErr(err)
	}
	if !initiator.Role.CanInitiate() {
		return chat.Conversation{}, false, chat.ErrRoleNotAllowed
	}
	if initiatorID == recipientID {
		return chat.Conversation{}, false, chat.ErrSelfConversation
	}
	if _, err := m.Users.FindByID(ctx, recipientID); err != nil {
		return chat.Conversation{}, false, persistErr(err)
	}

	draft, err := chat.NewConversation(initiatorID, recipientID, m.Clock.Now())
	if err != nil {
		return chat.Conversation{}, false, err
	}
	unlock := m.locks.Lock("pair:" + draft.PairKey)
	defer unlock()

	if existing, err := m.Repo.FindConversationByPair(ctx, draft.PairKey); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, chat.ErrNotFound) {
		return chat.Conversation{}, false, persistErr(err)
	}
	// Another node may have won the race; the store resolves it on pair_key.
	stored, created, err := m.Repo.CreateConversation(ctx, draft)
	if err != nil {
		return chat.Conversation{}, false, persistErr(err)
	}
	if created {
		m.Log.Info("conversation created",
			zap.String("conversation_id", stored.ID),
			zap.String("initiator_id", initiatorID),
			zap.String("recipient_id", recipientID))
	}
	return stored, created, nil
}

// ListForUser returns userID's conversations, most recently active first.
func (m *ConversationManager) ListForUser(ctx context.Context, userID string) ([]chat.Conversation, error) {
	convs, err := m.Repo.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, persistErr(err)
	}
	return convs, nil
}

// Get returns the conversation when requesterID takes part in it. Strangers
// get the same not-found answer as for a missing id.
func (m *ConversationManager) Get(ctx context.Context, conversationID, requesterID string) (chat.Conversation, error) {
	conv, err := m.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, persistErr(err)
	}
	if !conv.HasParticipant(requesterID) {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	return conv, nil
}

// RecordMessage moves the last-message pointer to msg unless a newer message
// is already recorded.
func (m *ConversationManager) RecordMessage(ctx context.Context, conversationID string, msg chat.Message) error {
	_, err := m.Repo.RecordLastMessage(ctx, conversationID, msg)
	return persistErr(err)
}

// Resync points the conversation at its newest stored message. A deleted
// conversation is treated as done.
func (m *ConversationManager) Resync(ctx context.Context, conversationID string) error {
	unlock := m.Lock(conversationID)
	defer unlock()

	conv, err := m.Repo.ResyncLastMessage(ctx, conversationID)
	if errors.Is(err, chat.ErrNotFound) {
		return nil
	}
	if err != nil {
		return persistErr(err)
	}
	m.Log.Debug("conversation resynced",
		zap.String("conversation_id", conv.ID),
		zap.Int64("last_message_seq", conv.LastMessageSeq))
	return nil
}

// RemoveParticipant takes userID out of the conversation. A pair that loses
// a member is deleted together with its messages.
func (m *ConversationManager) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	unlock := m.Lock(conversationID)
	defer unlock()

	conv, err := m.Get(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	snapshot := conv
	snapshot.Participants = append([]string(nil), conv.Participants...)

	terminal, err := conv.RemoveParticipant(userID)
	if err != nil {
		return err
	}
	if !terminal {
		return persistErr(m.Repo.UpdateParticipants(ctx, conversationID, conv.Participants))
	}
	return m.teardown(ctx, snapshot, userID)
}

// Delete removes the conversation and every message in it. Admins may
// delete any conversation, agencies only their own, models none.
func (m *ConversationManager) Delete(ctx context.Context, conversationID, requesterID string) error {
	actor, err := m.requester(ctx, requesterID)
	if err != nil {
		return err
	}
	if !actor.Role.CanInitiate() {
		return chat.ErrRoleNotAllowed
	}

	unlock := m.Lock(conversationID)
	defer unlock()

	conv, err := m.Repo.GetConversation(ctx, conversationID)
	if err != nil {
		return persistErr(err)
	}
	if actor.Role != chat.RoleAdmin && !conv.HasParticipant(requesterID) {
		return chat.ErrConversationNotFound
	}
	return m.teardown(ctx, conv, requesterID)
}

func (m *ConversationManager) teardown(ctx context.Context, conv chat.Conversation, actorID string) error {
	var removed int64
	if m.Messages != nil {
		n, err := m.Messages.DeleteAllForConversation(ctx, conv.ID)
		if err != nil {
			return err
		}
		removed = n
	}
	if err := m.Repo.DeleteConversation(ctx, conv.ID); err != nil {
		return persistErr(err)
	}
	m.Log.Info("conversation deleted",
		zap.String("conversation_id", conv.ID),
		zap.String("actor_id", actorID),
		zap.Int64("messages_removed", removed))
	m.Notifier.ConversationDeleted(ctx, conv, actorID)
	return nil
}

package port

import (
	"context"
	"time"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
)

// ChatRepository persists conversations and their message logs.
//
// Read methods return chat.ErrConversationNotFound for a missing
// conversation. Conversations are returned with Participants populated and,
// when set, LastMessage hydrated.
type ChatRepository interface {
	// CreateConversation inserts c, or returns the conversation already stored
	// under c.PairKey with created=false. Safe under concurrent callers.
	CreateConversation(ctx context.Context, c chat.Conversation) (stored chat.Conversation, created bool, err error)
	FindConversationByPair(ctx context.Context, pairKey string) (chat.Conversation, error)
	GetConversation(ctx context.Context, id string) (chat.Conversation, error)
	// ListConversationsForUser orders by UpdatedAt descending.
	ListConversationsForUser(ctx context.Context, userID string) ([]chat.Conversation, error)
	UpdateParticipants(ctx context.Context, conversationID string, participants []string) error
	// DeleteConversation removes the conversation, its participants and all
	// of its messages in one step.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage stores m under the conversation's write lock. It checks
	// membership with chat.Chat.PostMessage, assigns ID, Seq and a CreatedAt
	// strictly after the previous message, and returns the stored message.
	AppendMessage(ctx context.Context, m chat.Message, now time.Time) (chat.Message, error)
	// ListMessages returns up to limit messages strictly older than before
	// (all when nil), newest first.
	ListMessages(ctx context.Context, conversationID string, before *time.Time, limit int) ([]chat.Message, error)
	// MarkRead flags every message not sent by readerID as read and returns
	// how many changed.
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	DeleteMessages(ctx context.Context, conversationID string) (int64, error)

	// RecordLastMessage moves the last-message pointer to m when m.Seq is
	// higher than the recorded one. It reports whether the pointer moved.
	RecordLastMessage(ctx context.Context, conversationID string, m chat.Message) (bool, error)
	// ResyncLastMessage points the conversation at its highest-seq message.
	ResyncLastMessage(ctx context.Context, conversationID string) (chat.Conversation, error)
}

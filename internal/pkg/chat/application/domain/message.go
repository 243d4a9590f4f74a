package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxMessageLength bounds message content in runes.
const DefaultMaxMessageLength = 2000

// Message is an immutable log entry in a conversation. Only Read changes
// after creation.
type Message struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	SenderID       string    `db:"sender_id"`
	Content        string    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
	Read           bool      `db:"is_read"`
	// Seq is assigned by the store and increases with every append.
	Seq int64 `db:"seq"`
}

// NewMessage validates and normalizes a draft. maxLen <= 0 uses DefaultMaxMessageLength.
func NewMessage(conversationID, senderID, content string, maxLen int) (*Message, error) {
	if conversationID == "" || senderID == "" {
		return nil, ErrMissingIdentifier
	}
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return nil, ErrMessageTooLong
	}
	return &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        trimmed,
	}, nil
}

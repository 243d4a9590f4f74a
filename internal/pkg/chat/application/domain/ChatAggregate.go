package chat

import (
	"errors"
	"fmt"
	"time"
)

// Error classes. Every domain error wraps exactly one of these so callers can
// branch with errors.Is without knowing the specific cause.
var (
	ErrUnauthorized = errors.New("chat: unauthorized")
	ErrForbidden    = errors.New("chat: forbidden")
	ErrNotFound     = errors.New("chat: not found")
	ErrValidation   = errors.New("chat: validation failed")
	ErrModeration   = errors.New("chat: content blocked by moderation")
)

// Domain-level errors for chat behaviors
var (
	ErrNotParticipant       = fmt.Errorf("%w: user is not a participant in the conversation", ErrForbidden)
	ErrRoleNotAllowed       = fmt.Errorf("%w: only agency or admin accounts may do this", ErrForbidden)
	ErrConversationNotFound = fmt.Errorf("%w: conversation not found", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrInvalidConversation  = fmt.Errorf("%w: conversation/message mismatch", ErrValidation)
	ErrEmptyMessage         = fmt.Errorf("%w: message content is required", ErrValidation)
	ErrMessageTooLong       = fmt.Errorf("%w: message content is too long", ErrValidation)
	ErrSelfConversation     = fmt.Errorf("%w: cannot start a conversation with yourself", ErrValidation)
	ErrMissingIdentifier    = fmt.Errorf("%w: identifier is required", ErrValidation)
)

// ModerationWarning is shown to the sender whenever the filter rejects a draft.
const ModerationWarning = "Your message contains restricted content (phone number, email, or social media account). All communications must be done on the platform."

// ModerationError reports a blocked send. The draft is never stored.
type ModerationError struct {
	Reason string
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("chat: content blocked by moderation (%s)", e.Reason)
}

func (e *ModerationError) Unwrap() error { return ErrModeration }

// Warning returns the user-facing text for the rejection.
func (e *ModerationError) Warning() string { return ModerationWarning }

// Chat is the write-side aggregate for a single conversation.
//
// Adapters hydrate it with the conversation and the timestamp of the newest
// stored message, then call PostMessage under their per-conversation write
// lock. The aggregate enforces membership and assigns a timestamp that is
// strictly after every earlier message, so timestamp order and sequence order
// agree inside one conversation.
type Chat struct {
	Conversation  Conversation
	LastMessageAt *time.Time // newest persisted message CreatedAt, if any
}

// HasParticipant tells whether userID is part of this chat.
func (c *Chat) HasParticipant(userID string) bool {
	if c == nil {
		return false
	}
	return c.Conversation.HasParticipant(userID)
}

// PostMessage applies domain rules and returns a validated message ready to persist.
//
// Validations:
// - Conversation/message identity must match
// - Sender must be a participant
// - Content must be present (NewMessage already trimmed it)
//
// Behavior:
//   - The timestamp is now, moved forward to LastMessageAt+1µs when the clock
//     did not advance past the previous message.
//   - On success, c.LastMessageAt is advanced to the new timestamp.
func (c *Chat) PostMessage(m Message, now time.Time) (Message, error) {
	if m.ConversationID == "" || c.Conversation.ID == "" || m.ConversationID != c.Conversation.ID {
		return Message{}, ErrInvalidConversation
	}
	if !c.HasParticipant(m.SenderID) {
		return Message{}, ErrNotParticipant
	}
	if m.Content == "" {
		return Message{}, ErrEmptyMessage
	}

	var last time.Time
	if c.LastMessageAt != nil {
		last = *c.LastMessageAt
	}
	ts := NextTimestamp(now, last)
	m.CreatedAt = ts
	m.Read = false
	c.LastMessageAt = &ts
	return m, nil
}

// NextTimestamp returns now truncated to microseconds (the resolution every
// adapter persists), or last+1µs when now is not strictly after last.
func NextTimestamp(now, last time.Time) time.Time {
	if now.IsZero() {
		now = time.Now()
	}
	ts := now.UTC().Truncate(time.Microsecond)
	if !last.IsZero() && !ts.After(last) {
		ts = last.UTC().Add(time.Microsecond)
	}
	return ts
}

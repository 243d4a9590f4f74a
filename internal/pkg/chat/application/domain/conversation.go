package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ParticipantsPerConversation is the size of an active conversation.
const ParticipantsPerConversation = 2

// Conversation represents a 1:1 thread between two users.
type Conversation struct {
	ID             string    `db:"id"`
	PairKey        string    `db:"pair_key"`
	Participants   []string  `db:"-"`
	LastMessageID  *string   `db:"last_message_id"`
	LastMessageSeq int64     `db:"last_message_seq"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`

	// LastMessage is hydrated on reads when LastMessageID is set.
	LastMessage *Message `db:"-"`
}

// PairKey returns the canonical key for an unordered pair of users.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// NewConversation builds an active conversation between initiator and recipient.
func NewConversation(initiatorID, recipientID string, now time.Time) (Conversation, error) {
	initiatorID = strings.TrimSpace(initiatorID)
	recipientID = strings.TrimSpace(recipientID)
	if initiatorID == "" || recipientID == "" {
		return Conversation{}, ErrMissingIdentifier
	}
	if initiatorID == recipientID {
		return Conversation{}, ErrSelfConversation
	}
	ts := now.UTC().Truncate(time.Microsecond)
	return Conversation{
		ID:           uuid.NewString(),
		PairKey:      PairKey(initiatorID, recipientID),
		Participants: []string{initiatorID, recipientID},
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}, nil
}

// HasParticipant tells whether userID is part of this conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	if c == nil || userID == "" {
		return false
	}
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except userID.
func (c *Conversation) OtherParticipants(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// RecordMessage moves the last-message pointer to m when m carries a higher
// store sequence than the one already recorded. It reports whether the
// pointer moved. Arrival order does not matter, so a late writer can never
// regress the pointer.
func (c *Conversation) RecordMessage(m Message) bool {
	if m.Seq <= c.LastMessageSeq {
		return false
	}
	id := m.ID
	c.LastMessageID = &id
	c.LastMessageSeq = m.Seq
	c.UpdatedAt = m.CreatedAt
	msg := m
	c.LastMessage = &msg
	return true
}

// RemoveParticipant drops userID from the participant set. It returns true
// when the conversation is no longer active and must be torn down.
func (c *Conversation) RemoveParticipant(userID string) (bool, error) {
	if !c.HasParticipant(userID) {
		return false, ErrNotParticipant
	}
	c.Participants = c.OtherParticipants(userID)
	return len(c.Participants) < ParticipantsPerConversation, nil
}

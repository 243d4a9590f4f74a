// Package dto holds the JSON shapes shared by the HTTP API, the realtime
// feed and the Go client.
package dto

import (
	"time"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
)

// Event kinds pushed over SSE and WebSocket.
const (
	EventMessage             = "message"
	EventConversationDeleted = "conversation_deleted"
	EventConnected           = "connected"
	EventError               = "error"
)

// Error codes carried in ErrorResponse.Code and error events.
const (
	CodeUnauthorized      = "unauthorized"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeValidationFailed  = "validation_failed"
	CodeModerationFlagged = "moderation_flagged"
	CodeUnavailable       = "unavailable"
	CodeInternal          = "internal"
	CodeBadRequest        = "bad_request"
)

type UserSummary struct {
	ID          string    `json:"id"`
	Role        chat.Role `json:"role"`
	FirstName   string    `json:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty"`
	CompanyName string    `json:"companyName,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	DisplayName string    `json:"displayName"`
}

type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	Sender         *UserSummary `json:"sender,omitempty"`
	Content        string       `json:"content"`
	Timestamp      time.Time    `json:"timestamp"`
	Read           bool         `json:"read"`
	Seq            int64        `json:"seq"`
}

type Conversation struct {
	ID           string        `json:"id"`
	Participants []UserSummary `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type MessagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// Event is one realtime frame.
type Event struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversationId,omitempty"`
	Message        *Message `json:"message,omitempty"`
	ActorID        string   `json:"actorId,omitempty"`
	UserID         string   `json:"userId,omitempty"`
	Code           string   `json:"code,omitempty"`
	Error          string   `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Warning string `json:"warning,omitempty"`
}

type CreateConversationRequest struct {
	RecipientID string `json:"recipientId" binding:"required"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Content        string `json:"content"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

func FromUser(u chat.User) UserSummary {
	return UserSummary{
		ID:          u.ID,
		Role:        u.Role,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		CompanyName: u.CompanyName,
		Avatar:      u.Avatar,
		DisplayName: u.DisplayName(),
	}
}

// FromMessage converts m. senders may be nil.
func FromMessage(m chat.Message, senders map[string]chat.User) Message {
	out := Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Timestamp:      m.CreatedAt,
		Read:           m.Read,
		Seq:            m.Seq,
	}
	if u, ok := senders[m.SenderID]; ok {
		s := FromUser(u)
		out.Sender = &s
	}
	return out
}

func FromConversation(c chat.Conversation, participants []chat.User) Conversation {
	out := Conversation{
		ID:           c.ID,
		Participants: make([]UserSummary, len(participants)),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	byID := make(map[string]chat.User, len(participants))
	for i, u := range participants {
		out.Participants[i] = FromUser(u)
		byID[u.ID] = u
	}
	if c.LastMessage != nil {
		m := FromMessage(*c.LastMessage, byID)
		out.LastMessage = &m
	}
	return out
}

func FromMessagePage(msgs []chat.Message, hasMore bool, senders map[string]chat.User) MessagePage {
	out := MessagePage{Messages: make([]Message, len(msgs)), HasMore: hasMore}
	for i, m := range msgs {
		out.Messages[i] = FromMessage(m, senders)
	}
	return out
}

// ToUser converts a summary back to the domain view. Clients use it.
func (u UserSummary) ToUser() chat.User {
	return chat.User{
		ID:          u.ID,
		Role:        u.Role,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		CompanyName: u.CompanyName,
		Avatar:      u.Avatar,
	}
}

func (m Message) ToMessage() chat.Message {
	return chat.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.Timestamp,
		Read:           m.Read,
		Seq:            m.Seq,
	}
}

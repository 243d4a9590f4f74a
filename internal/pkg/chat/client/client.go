// Package client is a Go client for the messaging API. It implements
// session.Backend and can follow the realtime feed over SSE or WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chat "github.com/dannybszn/doris-referral/internal/pkg/chat/application/domain"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/session"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// APIError is a non-2xx answer. It unwraps to the matching domain error
// class so callers can use errors.Is the same way as in-process.
type APIError struct {
	Status  int
	Code    string
	Message string
	Warning string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case dto.CodeUnauthorized:
		return chat.ErrUnauthorized
	case dto.CodeForbidden:
		return chat.ErrForbidden
	case dto.CodeNotFound:
		return chat.ErrNotFound
	case dto.CodeValidationFailed, dto.CodeBadRequest:
		return chat.ErrValidation
	case dto.CodeModerationFlagged:
		return &chat.ModerationError{Reason: "flagged"}
	case dto.CodeUnavailable:
		return usecase.ErrPersistence
	}
	return nil
}

// Client talks to one server as one user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ session.Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a client for baseURL (scheme and host, e.g.
// "http://localhost:8080") authenticating with token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e dto.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Code: e.Code, Message: e.Error, Warning: e.Warning}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) ListConversations(ctx context.Context) ([]usecase.ConversationView, error) {
	var out []dto.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	views := make([]usecase.ConversationView, len(out))
	for i, conv := range out {
		views[i] = toView(conv)
	}
	return views, nil
}

func (c *Client) CreateConversation(ctx context.Context, recipientID string) (usecase.ConversationView, error) {
	var out dto.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", dto.CreateConversationRequest{RecipientID: recipientID}, &out); err != nil {
		return usecase.ConversationView{}, err
	}
	return toView(out), nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (usecase.ConversationView, error) {
	var out dto.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID), nil, &out); err != nil {
		return usecase.ConversationView{}, err
	}
	return toView(out), nil
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(conversationID), nil, nil)
}

func (c *Client) LeaveConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/leave", nil, nil)
}

func (c *Client) ListMessages(ctx context.Context, conversationID string, before *time.Time, limit int) (usecase.MessagePage, error) {
	q := url.Values{}
	if before != nil {
		q.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/messages/" + url.PathEscape(conversationID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out dto.MessagePage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return usecase.MessagePage{}, err
	}
	page := usecase.MessagePage{HasMore: out.HasMore, Messages: make([]chat.Message, len(out.Messages))}
	for i, m := range out.Messages {
		page.Messages[i] = m.ToMessage()
	}
	return page, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (chat.Message, error) {
	var out dto.Message
	if err := c.do(ctx, http.MethodPost, "/messages", dto.SendMessageRequest{ConversationID: conversationID, Content: content}, &out); err != nil {
		return chat.Message{}, err
	}
	return out.ToMessage(), nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) (int64, error) {
	var out dto.MarkReadResponse
	if err := c.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(conversationID)+"/read", nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

// ListTalents returns the model directory.
func (c *Client) ListTalents(ctx context.Context) ([]chat.User, error) {
	var out []dto.UserSummary
	if err := c.do(ctx, http.MethodGet, "/talents", nil, &out); err != nil {
		return nil, err
	}
	users := make([]chat.User, len(out))
	for i, u := range out {
		users[i] = u.ToUser()
	}
	return users, nil
}

func toView(c dto.Conversation) usecase.ConversationView {
	v := usecase.ConversationView{
		Conversation: chat.Conversation{
			ID:        c.ID,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		},
		Participants: make([]chat.User, len(c.Participants)),
	}
	for i, p := range c.Participants {
		v.Participants[i] = p.ToUser()
		v.Conversation.Participants = append(v.Conversation.Participants, p.ID)
	}
	if c.LastMessage != nil {
		m := c.LastMessage.ToMessage()
		v.Conversation.RecordMessage(m)
		v.Conversation.UpdatedAt = c.UpdatedAt
	}
	if len(c.Participants) > 1 {
		v.Conversation.PairKey = chat.PairKey(c.Participants[0].ID, c.Participants[1].ID)
	}
	return v
}

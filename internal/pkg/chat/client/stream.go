package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/session"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/presentation/dto"
)

// EventHandler receives each decoded event. Returning an error stops the stream.
type EventHandler func(dto.Event) error

// ToSessionEvent converts a wire event for Session.HandleEvent. ok is false
// for kinds a session does not track.
func ToSessionEvent(ev dto.Event) (session.Event, bool) {
	switch ev.Type {
	case dto.EventMessage:
		out := session.Event{Type: session.EventMessage, ConversationID: ev.ConversationID}
		if ev.Message != nil {
			m := ev.Message.ToMessage()
			out.Message = &m
		}
		return out, true
	case dto.EventConversationDeleted:
		return session.Event{Type: session.EventConversationDeleted, ConversationID: ev.ConversationID}, true
	}
	return session.Event{}, false
}

func (c *Client) streamURL(path, scheme string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", err
	}
	if scheme != "" {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// StreamSSE follows /messages/sse until ctx ends, the server closes the
// stream, or h returns an error.
func (c *Client) StreamSSE(ctx context.Context, h EventHandler) error {
	u, err := c.streamURL("/messages/sse", "")
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	// The shared client's timeout would cut the stream.
	resp, err := (&http.Client{Transport: c.http.Transport}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Code: dto.CodeUnauthorized, Message: "stream rejected"}
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev dto.Event
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return fmt.Errorf("client: decode event: %w", err)
			}
			data.Reset()
			if err := h(ev); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return sc.Err()
}

// Socket is an open WebSocket session.
type Socket struct {
	ws *websocket.Conn
}

// DialWebSocket opens /messages/ws.
func (c *Client) DialWebSocket(ctx context.Context) (*Socket, error) {
	u, err := c.streamURL("/messages/ws", "ws")
	if err != nil {
		return nil, err
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Code: dto.CodeUnauthorized, Message: err.Error()}
		}
		return nil, err
	}
	return &Socket{ws: ws}, nil
}

// Send writes a message frame. The result arrives as an event.
func (s *Socket) Send(conversationID, content string) error {
	return s.ws.WriteJSON(map[string]string{"type": "message", "conversationId": conversationID, "content": content})
}

// MarkRead writes a read frame.
func (s *Socket) MarkRead(conversationID string) error {
	return s.ws.WriteJSON(map[string]string{"type": "read", "conversationId": conversationID})
}

// Listen reads events until the socket closes, ctx ends, or h fails.
func (s *Socket) Listen(ctx context.Context, h EventHandler) error {
	stop := context.AfterFunc(ctx, func() { _ = s.ws.Close() })
	defer stop()
	for {
		var ev dto.Event
		if err := s.ws.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if err := h(ev); err != nil {
			return err
		}
	}
}

func (s *Socket) Close() error {
	_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	return s.ws.Close()
}

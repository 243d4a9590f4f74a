package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WebSocketTransport writes text frames to a gorilla connection.
type WebSocketTransport struct {
	ws *websocket.Conn
}

func NewWebSocketTransport(ws *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{ws: ws}
}

func (t *WebSocketTransport) WriteMessage(payload []byte) error {
	if err := t.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.ws.WriteMessage(websocket.TextMessage, payload)
}

func (t *WebSocketTransport) WritePing() error {
	return t.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close sends a close frame and closes the socket. WriteControl may run
// concurrently with WriteMessage per gorilla's concurrency rules.
func (t *WebSocketTransport) Close(code int, reason string) error {
	_ = t.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	return t.ws.Close()
}

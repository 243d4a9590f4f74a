package realtime

import (
	"errors"
	"fmt"
	"net/http"
)

// SSETransport streams "data: <payload>\n\n" events over a flushed HTTP
// response. The handler that owns w must run the Connection so writes stay
// on its goroutine.
type SSETransport struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSETransport writes the event-stream headers.
func NewSSETransport(w http.ResponseWriter) (*SSETransport, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("realtime: response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &SSETransport{w: w, flusher: f}, nil
}

func (t *SSETransport) WriteMessage(payload []byte) error {
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

// WritePing sends an SSE comment line, which clients ignore.
func (t *SSETransport) WritePing() error {
	if _, err := fmt.Fprint(t.w, ": ping\n\n"); err != nil {
		return err
	}
	t.flusher.Flush()
	return nil
}

// Close is a no-op; the stream ends when the owning handler returns.
func (t *SSETransport) Close(int, string) error { return nil }

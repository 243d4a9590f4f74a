package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSendBuffer = 128
	defaultPingPeriod = 30 * time.Second
)

// Close codes sent to clients.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseSessionReplaced = 4001
	CloseSlowConsumer    = 4008
)

var (
	ErrConnectionClosed = errors.New("realtime: connection closed")
	ErrBufferExceeded   = errors.New("realtime: connection buffer exceeded")
)

// Transport is the wire a Connection writes to. Only the connection's write
// loop calls WriteMessage and WritePing, so implementations need not lock.
type Transport interface {
	WriteMessage(payload []byte) error
	WritePing() error
	// Close tells the peer why the stream ends and releases the wire. It may
	// be called concurrently with a write.
	Close(code int, reason string) error
}

// Options tune a Connection. Zero values pick defaults.
type Options struct {
	SendBuffer int
	PingPeriod time.Duration
}

// Connection is one subscriber stream. Outbound payloads go through a FIFO
// buffer drained by a single writer, so delivery order is enqueue order.
type Connection struct {
	ID     string
	UserID string

	transport  Transport
	send       chan []byte
	pingPeriod time.Duration

	once   sync.Once
	closed chan struct{}
	done   chan struct{}
}

// NewConnection constructs a Connection for userID over t.
func NewConnection(userID string, t Transport, opts Options) *Connection {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = defaultPingPeriod
	}
	return &Connection{
		ID:         uuid.NewString(),
		UserID:     userID,
		transport:  t,
		send:       make(chan []byte, opts.SendBuffer),
		pingPeriod: opts.PingPeriod,
		closed:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Send enqueues payload. A full buffer closes the connection; a slow reader
// never blocks the sender or other subscribers.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.Close(CloseSlowConsumer, "send buffer full")
		return ErrBufferExceeded
	}
}

// Close terminates the connection. Safe to call more than once.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.transport.Close(code, reason)
	})
}

// Closed is closed once Close has been called.
func (c *Connection) Closed() <-chan struct{} { return c.closed }

// Done is closed when Run has returned.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Run drains the send buffer into the transport until the connection is
// closed, ctx ends, or a write fails. It must be called exactly once, and
// the caller's goroutine owns the transport for writing meanwhile.
func (c *Connection) Run(ctx context.Context) error {
	defer close(c.done)
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close(CloseGoingAway, "context done")
			return ctx.Err()
		case <-c.closed:
			return nil
		case msg := <-c.send:
			if err := c.transport.WriteMessage(msg); err != nil {
				c.Close(CloseGoingAway, "write failed")
				return err
			}
		case <-ticker.C:
			if err := c.transport.WritePing(); err != nil {
				c.Close(CloseGoingAway, "ping failed")
				return err
			}
		}
	}
}

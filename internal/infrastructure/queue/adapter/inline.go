package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dannybszn/doris-referral/internal/infrastructure/queue/port"
)

// ErrQueueFull is returned by InlineQueue.Enqueue when the buffer is full.
var ErrQueueFull = errors.New("queue: inline buffer full")

// ErrQueueClosed is returned after Stop.
var ErrQueueClosed = errors.New("queue: closed")

// InlineQueue is an in-process Client and Server for nodes without Redis.
// Tasks are lost on restart.
type InlineQueue struct {
	log        *zap.Logger
	retryDelay time.Duration
	maxRetry   int

	mu       sync.RWMutex
	handlers map[string]port.Handler
	closed   bool

	tasks    chan inlineTask
	stop     chan struct{}
	stopOnce sync.Once
	pending  sync.WaitGroup
}

type inlineTask struct {
	port.Task
	maxRetry int
	timeout  time.Duration
}

// NewInlineQueue buffers up to size tasks.
func NewInlineQueue(size int, retryDelay time.Duration, log *zap.Logger) *InlineQueue {
	if size <= 0 {
		size = 256
	}
	return &InlineQueue{
		log:        log,
		retryDelay: retryDelay,
		maxRetry:   5,
		handlers:   make(map[string]port.Handler),
		tasks:      make(chan inlineTask, size),
		stop:       make(chan struct{}),
	}
}

var (
	_ port.Client = (*InlineQueue)(nil)
	_ port.Server = (*InlineQueue)(nil)
)

func (q *InlineQueue) Enqueue(_ context.Context, t port.Task, opts ...port.EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("queue: task type is required")
	}
	it := inlineTask{Task: t, maxRetry: q.maxRetry}
	if len(opts) > 0 {
		if opts[0].MaxRetry > 0 {
			it.maxRetry = opts[0].MaxRetry
		}
		it.timeout = opts[0].Timeout
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return "", ErrQueueClosed
	}
	q.pending.Add(1)
	select {
	case q.tasks <- it:
		return uuid.NewString(), nil
	default:
		q.pending.Done()
		return "", ErrQueueFull
	}
}

func (q *InlineQueue) Close() error {
	return q.Stop(context.Background())
}

func (q *InlineQueue) Register(taskType string, h port.Handler) {
	q.mu.Lock()
	q.handlers[taskType] = h
	q.mu.Unlock()
}

// Run processes tasks one at a time until ctx is canceled or Stop is called.
func (q *InlineQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.stop:
			return nil
		case t := <-q.tasks:
			q.process(ctx, t)
			q.pending.Done()
		}
	}
}

func (q *InlineQueue) Stop(context.Context) error {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.stop)
	})
	return nil
}

// Wait blocks until every enqueued task has been processed. Run must be active.
func (q *InlineQueue) Wait() {
	q.pending.Wait()
}

func (q *InlineQueue) process(ctx context.Context, t inlineTask) {
	q.mu.RLock()
	h, ok := q.handlers[t.Type]
	q.mu.RUnlock()
	if !ok {
		q.log.Warn("no handler for task", zap.String("type", t.Type))
		return
	}

	for attempt := 0; ; attempt++ {
		err := q.attempt(ctx, h, t)
		if err == nil {
			return
		}
		if attempt >= t.maxRetry {
			q.log.Error("task exhausted retries", zap.String("type", t.Type), zap.Int("attempts", attempt+1), zap.Error(err))
			return
		}
		q.log.Warn("task attempt failed", zap.String("type", t.Type), zap.Int("retry", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		case <-time.After(q.retryDelay * time.Duration(attempt+1)):
		}
	}
}

func (q *InlineQueue) attempt(ctx context.Context, h port.Handler, t inlineTask) (err error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in task handler: %v", r)
		}
	}()
	return h(ctx, t.Task)
}

package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dannybszn/doris-referral/internal/infrastructure/queue/port"
)

type stubEnqueuer struct {
	err   error
	calls int
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "id-" + task.Type(), Type: task.Type()}, nil
}

func (s *stubEnqueuer) Close() error { return nil }

func TestAsynqClientCollapsesDuplicates(t *testing.T) {
	ctx := context.Background()
	task := port.Task{Type: "chat:resync_conversation", Payload: []byte(`{"conversationId":"c1"}`)}

	ok := &AsynqClient{client: &stubEnqueuer{}}
	id, err := ok.Enqueue(ctx, task)
	if err != nil || id != "id-chat:resync_conversation" {
		t.Fatalf("Enqueue = (%q, %v)", id, err)
	}

	dup := &AsynqClient{client: &stubEnqueuer{err: asynq.ErrDuplicateTask}}
	if id, err := dup.Enqueue(ctx, task, port.EnqueueOption{UniqueTTL: 30 * time.Second}); err != nil || id != "" {
		t.Fatalf("duplicate Enqueue = (%q, %v), want empty id and nil", id, err)
	}

	boom := errors.New("redis down")
	failing := &AsynqClient{client: &stubEnqueuer{err: boom}}
	if _, err := failing.Enqueue(ctx, task); !errors.Is(err, boom) {
		t.Fatalf("failing Enqueue = %v, want %v", err, boom)
	}

	if _, err := ok.Enqueue(ctx, port.Task{}); err == nil {
		t.Fatal("Enqueue without a type succeeded")
	}
}

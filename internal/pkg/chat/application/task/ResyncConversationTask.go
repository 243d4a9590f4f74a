package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	qport "github.com/dannybszn/doris-referral/internal/infrastructure/queue/port"
	"github.com/dannybszn/doris-referral/internal/pkg/chat/application/usecase"
)

// ResyncConversationTaskType is the queue task name for healing a
// conversation's last-message pointer.
const ResyncConversationTaskType = "chat:resync_conversation"

// ResyncConversationTaskPayload is the JSON payload transported via the queue.
type ResyncConversationTaskPayload struct {
	ConversationID string `json:"conversationId"`
}

// ResyncScheduler enqueues resync tasks. It satisfies usecase.ResyncScheduler.
type ResyncScheduler struct {
	Client qport.Client
	Queue  string
}

var _ usecase.ResyncScheduler = (*ResyncScheduler)(nil)

func NewResyncScheduler(client qport.Client, queue string) *ResyncScheduler {
	return &ResyncScheduler{Client: client, Queue: queue}
}

// ScheduleResync enqueues one task per conversation; duplicates inside the
// unique window collapse into the pending one.
func (s *ResyncScheduler) ScheduleResync(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errors.New("task: conversation id is required")
	}
	payload, err := json.Marshal(ResyncConversationTaskPayload{ConversationID: conversationID})
	if err != nil {
		return err
	}
	_, err = s.Client.Enqueue(ctx, qport.Task{Type: ResyncConversationTaskType, Payload: payload}, qport.EnqueueOption{
		Queue:     s.Queue,
		MaxRetry:  10,
		UniqueTTL: 30 * time.Second,
		Timeout:   10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("task: enqueue resync for %s: %w", conversationID, err)
	}
	return nil
}

// RegisterResyncConversationTask binds the handler to the provided server.
func RegisterResyncConversationTask(srv qport.Server, manager *usecase.ConversationManager) {
	srv.Register(ResyncConversationTaskType, func(ctx context.Context, t qport.Task) error {
		var p ResyncConversationTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: retrying will not fix it
			return nil
		}
		if p.ConversationID == "" {
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return manager.Resync(ctx, p.ConversationID)
	})
}

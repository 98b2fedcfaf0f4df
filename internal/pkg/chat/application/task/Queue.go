package task

import (
	"context"

	qport "github.com/yasser311511/chat-app2/internal/infrastructure/queue/port"
)

// Queue adapts the infrastructure queue client to the engine's enqueue
// surface. All chat tasks ride the "chat" queue with a bounded retry budget.
type Queue struct {
	client qport.Client
}

func NewQueue(client qport.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Enqueue(ctx context.Context, taskType string, payload []byte) error {
	_, err := q.client.Enqueue(ctx, qport.Task{Type: taskType, Payload: payload}, qport.EnqueueOption{
		Queue:    "chat",
		MaxRetry: 5,
	})
	return err
}
